package server

import (
	"time"

	"firegate-svc/src/internal/access"
	"firegate-svc/src/internal/dependency"
	"firegate-svc/src/internal/models"

	"github.com/gin-gonic/gin"
)

// collectStats serves counters from the cache when fresh enough and falls
// back to the stores otherwise.
func collectStats(c *gin.Context, deps *dependency.Manager) *models.StoreStats {
	ctx := c.Request.Context()

	cached, err := deps.CacheService.GetStats(ctx)
	if err == nil && cached != nil {
		log.Debug("Store stats served from cache")
		return cached
	}

	stats := &models.StoreStats{}

	if count, err := deps.SessionService.CountActive(ctx, time.Now()); err == nil {
		stats.ActiveSessions = count
	} else {
		log.WithError(err).Warn("Failed to count active sessions")
	}

	if count, err := deps.AccessService.CountByStatus(ctx, access.StatusOpen); err == nil {
		stats.OpenRequests = count
	} else {
		log.WithError(err).Warn("Failed to count open requests")
	}

	if count, err := deps.AccessService.CountByStatus(ctx, access.StatusClosed); err == nil {
		stats.ClosedRequests = count
	} else {
		log.WithError(err).Warn("Failed to count closed requests")
	}

	if count, err := deps.WhitelistService.Count(ctx); err == nil {
		stats.WhitelistUsers = count
	} else {
		log.WithError(err).Warn("Failed to count whitelist users")
	}

	if err := deps.CacheService.SaveStats(ctx, stats); err != nil {
		log.WithError(err).Warn("Failed to cache store stats")
	}

	return stats
}
