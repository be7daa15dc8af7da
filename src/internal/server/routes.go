package server

import (
	"time"

	"firegate-svc/src/clients"
	"firegate-svc/src/internal/dependency"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func SetupRoutes(deps *dependency.Manager) {
	router := deps.Router
	router.Use(enableCORS)

	handler := NewHandler(deps.Config,
		deps.Coordinator,
		deps.SessionService,
		deps.AccessService,
		deps.WhitelistService,
		deps.CacheService)

	setupHealthEndpoints(deps)
	setupPublicRoutes(router, handler)
	setupAdminRoutes(router, deps, handler)
}

func setupHealthEndpoints(deps *dependency.Manager) {
	router := deps.Router
	mongodb := deps.Mongodb
	redisClient := deps.Redis
	cfg := deps.Config

	router.GET("/health", func(c *gin.Context) {
		log.Info("Health check endpoint requested")

		mongoStatus := "ok"
		if err := mongodb.Client.Ping(c.Request.Context(), nil); err != nil {
			mongoStatus = "error: " + err.Error()
		}

		redisStatus := "ok"
		if err := redisClient.Client.Ping(c.Request.Context()).Err(); err != nil {
			redisStatus = "error: " + err.Error()
		}

		c.JSON(200, gin.H{
			"status":    "ok",
			"service":   cfg.App.Name,
			"version":   cfg.App.Version,
			"mongodb":   mongoStatus,
			"redis":     redisStatus,
			"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	})

	router.GET("health/detailed", func(c *gin.Context) {
		log.Info("Detailed health check endpoint requested")

		stats := collectStats(c, deps)

		c.JSON(200, gin.H{
			"status":  "operational",
			"service": cfg.App.Name,
			"version": cfg.App.Version,
			"components": gin.H{
				"database": gin.H{
					"mongodb": getStatus(isMongoConnected(mongodb, c)),
					"redis":   getStatus(isRedisConnected(redisClient.Client, c)),
				},
				"publisher": gin.H{
					"mode":   cfg.Publisher.Mode,
					"status": getStatus(deps.Publisher.Healthy()),
				},
			},
			"stats": stats,
		})
	})
}

func setupPublicRoutes(router *gin.Engine, handler Handler) {
	// API status endpoint
	router.GET("/api/v1/status", func(c *gin.Context) {
		log.Info("API status requested")
		c.JSON(200, gin.H{
			"api_version": "v1",
			"status":      "operational",
			"service":     "firegate-svc",
		})
	})

	router.GET("/list/:token", setRouteName("listActive"), handler.ListActive)
	router.GET("/s/:id", setRouteName("requestStatus"), handler.RequestStatus)
	router.POST("/c/:id", setRouteName("closeAccess"), handler.CloseAccess)
	router.POST("/a/:token", setRouteName("openAccess"), handler.OpenAccess)
	router.GET("/:token", setRouteName("accessPage"), handler.AccessPage)
}

func setupAdminRoutes(router *gin.Engine, deps *dependency.Manager, handler Handler) {
	authMiddleware := deps.AuthMiddleware

	// Apply route name FIRST, then auth middlewares
	admin := router.Group("/api/v1/admin")
	{
		admin.POST("/sessions",
			setRouteName("createSession"),
			authMiddleware.RequireAuth(),
			authMiddleware.RequireAdminRights(),
			handler.CreateSession)

		admin.GET("/whitelist",
			setRouteName("listWhitelist"),
			authMiddleware.RequireAuth(),
			authMiddleware.RequireAdminRights(),
			handler.ListWhitelistUsers)

		admin.POST("/whitelist",
			setRouteName("addWhitelistUser"),
			authMiddleware.RequireAuth(),
			authMiddleware.RequireAdminRights(),
			handler.AddWhitelistUser)

		admin.DELETE("/whitelist",
			setRouteName("removeWhitelistUser"),
			authMiddleware.RequireAuth(),
			authMiddleware.RequireAdminRights(),
			handler.RemoveWhitelistUser)
	}
}

func setRouteName(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("route_name", name)
		c.Next()
	}
}

func isMongoConnected(mongodb *clients.MongoDB, c *gin.Context) bool {
	if err := mongodb.Client.Ping(c.Request.Context(), nil); err != nil {
		return false
	}
	return true
}

func isRedisConnected(redisClient *redis.Client, c *gin.Context) bool {
	if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
		return false
	}
	return true
}

func enableCORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if c.Request.Method == "OPTIONS" {
		c.AbortWithStatus(204)
		return
	}

	c.Next()
}

func getStatus(b bool) string {
	if b {
		return "connected"
	}
	return "disconnected"
}
