package dependency

import (
	"firegate-svc/src/clients"
	"firegate-svc/src/internal/access"
	"firegate-svc/src/internal/cache"
	"firegate-svc/src/internal/config"
	"firegate-svc/src/internal/coordinator"
	"firegate-svc/src/internal/middleware"
	"firegate-svc/src/internal/publisher"
	"firegate-svc/src/internal/session"
	"firegate-svc/src/internal/sweeper"
	"firegate-svc/src/internal/whitelist"

	"github.com/gin-gonic/gin"
)

type Manager struct {
	Router           *gin.Engine
	Config           *config.Configuration
	Mongodb          *clients.MongoDB
	Redis            *clients.RedisClient
	Publisher        publisher.Publisher
	SessionService   session.Service
	AccessService    access.Service
	WhitelistService whitelist.Service
	CacheService     cache.Service
	Coordinator      *coordinator.Coordinator
	Sweeper          *sweeper.Sweeper
	AuthMiddleware   *middleware.AuthMiddleware
}

func NewDependencyManager(router *gin.Engine,
	mongodb *clients.MongoDB,
	redisClient *clients.RedisClient,
	cfg *config.Configuration) *Manager {
	cacheService := cache.NewCacheService(redisClient.Client, cfg)

	sessionRepo := session.NewRepository(mongodb, cfg.Database.SessionCollection)
	sessionService := session.NewService(sessionRepo)

	accessRepo := access.NewRepository(mongodb, cfg.Database.AccessCollection)
	accessService := access.NewService(accessRepo)

	whitelistRepo := whitelist.NewRepository(mongodb, cfg.Database.WhitelistCollection)
	whitelistService := whitelist.NewService(whitelistRepo, &cfg.Access)

	pub := publisher.New(&cfg.Publisher)
	coord := coordinator.New(sessionService, accessService, pub, &cfg.Access)
	swp := sweeper.New(sessionService, accessService, pub, &cfg.Sweeper)

	authMiddleware := middleware.NewAuthMiddleware(cfg.Security.JwtKey, whitelistService)

	return &Manager{
		Router:           router,
		Config:           cfg,
		Mongodb:          mongodb,
		Redis:            redisClient,
		Publisher:        pub,
		SessionService:   sessionService,
		AccessService:    accessService,
		WhitelistService: whitelistService,
		CacheService:     cacheService,
		Coordinator:      coord,
		Sweeper:          swp,
		AuthMiddleware:   authMiddleware,
	}
}
