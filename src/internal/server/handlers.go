package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"firegate-svc/src/internal/access"
	"firegate-svc/src/internal/cache"
	"firegate-svc/src/internal/config"
	"firegate-svc/src/internal/coordinator"
	"firegate-svc/src/internal/models"
	"firegate-svc/src/internal/session"
	"firegate-svc/src/internal/whitelist"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Handler interface {
	AccessPage(c *gin.Context)
	OpenAccess(c *gin.Context)
	RequestStatus(c *gin.Context)
	CloseAccess(c *gin.Context)
	ListActive(c *gin.Context)
	CreateSession(c *gin.Context)
	AddWhitelistUser(c *gin.Context)
	RemoveWhitelistUser(c *gin.Context)
	ListWhitelistUsers(c *gin.Context)
}

type handler struct {
	config       *config.Configuration
	coordinator  *coordinator.Coordinator
	sessions     session.Service
	requests     access.Service
	whitelist    whitelist.Service
	cacheService cache.Service
}

func NewHandler(cfg *config.Configuration,
	coord *coordinator.Coordinator,
	sessions session.Service,
	requests access.Service,
	whitelistService whitelist.Service,
	cacheService cache.Service) Handler {
	return &handler{
		config:       cfg,
		coordinator:  coord,
		sessions:     sessions,
		requests:     requests,
		whitelist:    whitelistService,
		cacheService: cacheService,
	}
}

type openAccessRequest struct {
	Duration int `json:"duration"`
}

type createSessionRequest struct {
	OwnerID    int64 `json:"ownerId" binding:"required"`
	ChatID     int64 `json:"chatId"`
	TTLSeconds int   `json:"ttlSeconds"`
}

type removeWhitelistRequest struct {
	OwnerID int64 `json:"ownerId" binding:"required"`
}

// AccessPage resolves a token for the visitor and records the address the
// request arrived from. Every failure gets the same neutral reply so the
// endpoint leaks nothing about which tokens exist.
func (h *handler) AccessPage(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	token := c.Param("token")
	if !isValidToken(token) {
		logrus.WithField("remote_ip", c.ClientIP()).Warn("Malformed token on access page")
		sendNeutralResponse(c)
		return
	}

	sess, err := h.sessions.GetSession(ctx, token)
	if err != nil {
		logrus.WithField("remote_ip", c.ClientIP()).Info("Access page requested for unknown token")
		sendNeutralResponse(c)
		return
	}

	observedIP := c.ClientIP()
	if err := h.sessions.SetObservedIP(ctx, token, observedIP); err != nil {
		logrus.WithError(err).Warn("Failed to record observed address")
	}

	active, err := h.requests.ListActiveForOwner(ctx, sess.OwnerID)
	if err != nil {
		logrus.WithError(err).Warn("Failed to list active requests for access page")
	}
	views := make([]gin.H, 0, len(active))
	for _, request := range active {
		views = append(views, requestView(request))
	}

	c.JSON(http.StatusOK, gin.H{
		"ip_address":        observedIP,
		"allowed_durations": h.coordinator.AllowedDurations(),
		"active_requests":   views,
	})
}

func (h *handler) OpenAccess(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	token := c.Param("token")
	if !isValidToken(token) {
		logrus.WithField("remote_ip", c.ClientIP()).Warn("Malformed token on open request")
		sendNeutralResponse(c)
		return
	}

	var req openAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Malformed open request body")
		sendNeutralResponse(c)
		return
	}

	request, err := h.coordinator.OpenAccess(ctx, token, req.Duration, c.ClientIP())
	if err != nil {
		if !errors.Is(err, models.ErrAccessDenied) {
			logrus.WithError(err).Error("Failed to open access")
		}
		sendNeutralResponse(c)
		return
	}

	response := gin.H{
		"success":  true,
		"id":       request.ID,
		"status":   request.Status,
		"duration": request.DurationSeconds,
	}
	if request.IPAddress != nil {
		response["ip_address"] = *request.IPAddress
	}
	if request.ExpiresAt != nil {
		response["expires_at"] = request.ExpiresAt.UTC().Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, response)
}

func (h *handler) RequestStatus(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	id := c.Param("id")
	if !isValidToken(id) {
		sendNeutralResponse(c)
		return
	}

	request, err := h.requests.GetRequest(ctx, id)
	if err != nil {
		sendNeutralResponse(c)
		return
	}

	c.JSON(http.StatusOK, requestView(request))
}

func (h *handler) CloseAccess(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	id := c.Param("id")
	if !isValidToken(id) {
		sendNeutralResponse(c)
		return
	}

	request, err := h.coordinator.CloseAccess(ctx, id)
	if err != nil {
		if !errors.Is(err, models.ErrAccessDenied) {
			logrus.WithError(err).Error("Failed to close access")
		}
		sendNeutralResponse(c)
		return
	}

	c.JSON(http.StatusOK, requestView(request))
}

// ListActive returns the caller's open grants keyed by their token. The
// token is only used for lookup here and stays redeemable.
func (h *handler) ListActive(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	token := c.Param("token")
	if !isValidToken(token) {
		sendNeutralResponse(c)
		return
	}

	sess, err := h.sessions.GetSession(ctx, token)
	if err != nil {
		sendNeutralResponse(c)
		return
	}

	requests, err := h.requests.ListActiveForOwner(ctx, sess.OwnerID)
	if err != nil {
		logrus.WithError(err).Error("Failed to list active requests")
		sendNeutralResponse(c)
		return
	}

	views := make([]gin.H, 0, len(requests))
	for _, request := range requests {
		views = append(views, requestView(request))
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(views),
		"requests": views,
	})
}

func (h *handler) CreateSession(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}

	authorized, err := h.whitelist.IsAuthorized(ctx, req.OwnerID)
	if err != nil {
		logrus.WithError(err).Error("Failed to check authorization")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Authorization check failed",
		})
		return
	}
	if !authorized {
		logrus.WithField("owner_id", req.OwnerID).Warn("Session requested for unauthorized user")
		c.JSON(http.StatusForbidden, gin.H{
			"error": "User is not whitelisted",
		})
		return
	}

	ttl := req.TTLSeconds
	if ttl <= 0 {
		ttl = h.config.Access.SessionTTLSeconds
	}

	sess, err := h.sessions.CreateSession(ctx, req.OwnerID, req.ChatID, ttl)
	if err != nil {
		logrus.WithError(err).Error("Failed to create session")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create session",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"token":      sess.Token,
		"link":       h.config.App.SiteURL + "/" + sess.Token,
		"expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *handler) AddWhitelistUser(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	var req whitelist.AddUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}

	adminID := adminIDFromContext(c)
	if err := h.whitelist.AddUser(ctx, &req, adminID); err != nil {
		logrus.WithError(err).Error("Failed to add whitelist user")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to add user",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User added to whitelist",
	})
}

func (h *handler) RemoveWhitelistUser(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	var req removeWhitelistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}

	if err := h.whitelist.RemoveUser(ctx, req.OwnerID); err != nil {
		if errors.Is(err, models.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "User is not on the whitelist",
			})
			return
		}
		logrus.WithError(err).Error("Failed to remove whitelist user")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to remove user",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User removed from whitelist",
	})
}

func (h *handler) ListWhitelistUsers(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	users, err := h.whitelist.ListUsers(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to list whitelist users")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve users",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(users),
		"users":   users,
	})
}

func (h *handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(),
		time.Duration(h.config.App.Timeout)*time.Second)
}

func requestView(request *access.AccessRequest) gin.H {
	view := gin.H{
		"id":       request.ID,
		"status":   request.Status,
		"duration": request.DurationSeconds,
	}
	if request.IPAddress != nil {
		view["ip_address"] = *request.IPAddress
	}
	if request.ExpiresAt != nil {
		view["expires_at"] = request.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if request.ClosedAt != nil {
		view["closed_at"] = request.ClosedAt.UTC().Format(time.RFC3339)
	}
	return view
}

func isValidToken(token string) bool {
	if _, err := uuid.Parse(token); err != nil {
		return false
	}
	return true
}

// sendNeutralResponse is the single reply for every failed public request.
func sendNeutralResponse(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func adminIDFromContext(c *gin.Context) int64 {
	value, exists := c.Get("admin_id")
	if !exists {
		return 0
	}
	adminID, ok := value.(int64)
	if !ok {
		return 0
	}
	return adminID
}
