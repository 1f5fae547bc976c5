package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"knowledge-platform/internal/auth"
	"knowledge-platform/internal/config"
	"knowledge-platform/internal/store"
	"knowledge-platform/utils"
)

const (
	ServiceKeyHeader = "X-Service-Key"
	TenantHeader     = "X-Tenant-ID"
)

type AuthMiddleware struct {
	config  *config.Config
	control *store.ControlStore
}

func NewAuthMiddleware(cfg *config.Config, control *store.ControlStore) *AuthMiddleware {
	return &AuthMiddleware{config: cfg, control: control}
}

// RequireAuth accepts either a Bearer JWT or a tenant service key. The
// resolved tenant id comes from the credential, never from the request
// body.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader(ServiceKeyHeader); key != "" {
			a.authenticateServiceKey(c, key)
			return
		}

		tokenString := extractBearerToken(c.GetHeader("Authorization"))
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			c.Abort()
			return
		}

		claims, err := auth.ValidateToken(a.config.JWTSecret, tokenString)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set("tenant_id", claims.TenantID)
		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// authenticateServiceKey validates machine credentials. Service keys carry
// the tenant in a companion header because the key itself is opaque.
func (a *AuthMiddleware) authenticateServiceKey(c *gin.Context, key string) {
	tenantID := c.GetHeader(TenantHeader)
	if tenantID == "" {
		utils.RespondWithUnauthorized(c, "X-Tenant-ID header is required with a service key")
		c.Abort()
		return
	}

	ok, err := a.control.VerifyServiceKey(c.Request.Context(), tenantID, key)
	if err != nil {
		utils.RespondWithInternalError(c, "Service key verification failed", nil)
		c.Abort()
		return
	}
	if !ok {
		utils.RespondWithUnauthorized(c, "Invalid service key")
		c.Abort()
		return
	}

	c.Set("tenant_id", tenantID)
	c.Set("role", "service")
	c.Next()
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetTenantID returns the authenticated tenant, empty if unauthenticated.
func GetTenantID(c *gin.Context) string {
	if v, exists := c.Get("tenant_id"); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetUserID returns the authenticated user id, empty for service keys.
func GetUserID(c *gin.Context) string {
	if v, exists := c.Get("user_id"); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetRole returns the authenticated role.
func GetRole(c *gin.Context) string {
	if v, exists := c.Get("role"); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
