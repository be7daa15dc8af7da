package middleware

import (
	"errors"
	"net/http"
	"strings"

	"firegate-svc/src/internal/whitelist"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Claims represents JWT token claims
type Claims struct {
	AdminID   int64  `json:"adminId"`
	TokenType string `json:"tokenType"`
	jwt.RegisteredClaims
}

// AuthMiddleware handles authentication and authorization for the admin API
type AuthMiddleware struct {
	jwtSecret string
	whitelist whitelist.Service
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtSecret string, whitelistService whitelist.Service) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSecret: jwtSecret,
		whitelist: whitelistService,
	}
}

// RequireAuth validates the JWT bearer token
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := m.extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is required",
			})
			c.Abort()
			return
		}

		claims, err := m.validateJWTToken(token)
		if err != nil {
			logrus.WithError(err).Error("JWT token validation failed")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set("admin_id", claims.AdminID)

		logrus.WithField("admin_id", claims.AdminID).Debug("Caller authenticated successfully")
		c.Next()
	}
}

// RequireAdminRights checks that the authenticated caller is a configured administrator
func (m *AuthMiddleware) RequireAdminRights() gin.HandlerFunc {
	return func(c *gin.Context) {
		adminIDInterface, exists := c.Get("admin_id")
		if !exists {
			logrus.Error("Admin id not found in context - ensure RequireAuth middleware runs first")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			c.Abort()
			return
		}

		adminID, ok := adminIDInterface.(int64)
		if !ok {
			logrus.Error("Invalid admin id format")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Invalid admin id format",
			})
			c.Abort()
			return
		}

		if !m.whitelist.IsAdmin(adminID) {
			logrus.WithField("admin_id", adminID).Warn("Caller attempted to access admin endpoint without admin privileges")
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Access forbidden - admin privileges required",
			})
			c.Abort()
			return
		}

		logrus.WithField("admin_id", adminID).Debug("Admin access granted")
		c.Next()
	}
}

// extractToken extracts the JWT token from the Authorization header
func (m *AuthMiddleware) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		logrus.Error("Authorization header missing")
		return ""
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		logrus.Error("Invalid authorization header format")
		return ""
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		logrus.Error("Empty token")
		return ""
	}

	return token
}

// validateJWTToken parses and validates the JWT token (checks signature and expiration)
func (m *AuthMiddleware) validateJWTToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(m.jwtSecret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("token expired")
		}
		return nil, errors.New("invalid token")
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	if claims.TokenType != "access" {
		return nil, errors.New("invalid token type")
	}

	return claims, nil
}
