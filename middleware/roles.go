package middleware

import (
	"github.com/gin-gonic/gin"

	"knowledge-platform/utils"
)

type RoleMiddleware struct{}

func NewRoleMiddleware() *RoleMiddleware {
	return &RoleMiddleware{}
}

func (r *RoleMiddleware) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		if role == "" {
			utils.RespondWithUnauthorized(c, "User role not found")
			c.Abort()
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				c.Next()
				return
			}
		}

		utils.RespondWithForbidden(c, "Insufficient permissions")
		c.Abort()
	}
}

// AdminGuard restricts to tenant administrators.
func (r *RoleMiddleware) AdminGuard() gin.HandlerFunc {
	return r.RequireRole("admin")
}

// WriterGuard covers everyone allowed to mutate sources and start jobs:
// humans with the editor role and machine agents holding a service key.
func (r *RoleMiddleware) WriterGuard() gin.HandlerFunc {
	return r.RequireRole("admin", "editor", "service")
}

// ReaderGuard covers every authenticated caller, including read-only ones.
func (r *RoleMiddleware) ReaderGuard() gin.HandlerFunc {
	return r.RequireRole("admin", "editor", "service", "reader")
}
