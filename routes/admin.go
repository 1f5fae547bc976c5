package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"knowledge-platform/internal/store"
	"knowledge-platform/middleware"
	"knowledge-platform/utils"
)

// SetupAdminRoutes mounts tenant administration endpoints.
func SetupAdminRoutes(router *gin.Engine, control *store.ControlStore, authMW *middleware.AuthMiddleware, roleMW *middleware.RoleMiddleware) {
	group := router.Group("/api/v1/admin")
	group.Use(authMW.RequireAuth(), roleMW.AdminGuard(), middleware.EnrichTrace())

	group.POST("/service-keys", HandleCreateServiceKey(control))
	group.DELETE("/service-keys/:id", HandleRevokeServiceKey(control))
}

type createServiceKeyRequest struct {
	Name string `json:"name" binding:"required"`
}

// HandleCreateServiceKey mints a machine credential for the caller's
// tenant. The plaintext key appears in this response and nowhere else.
func HandleCreateServiceKey(control *store.ControlStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		var req createServiceKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}

		plaintext, key, err := control.CreateServiceKey(c.Request.Context(), tenantID, req.Name)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create service key", nil)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":         key.ID.Hex(),
			"name":       key.Name,
			"key":        plaintext,
			"created_at": key.CreatedAt,
		})
	}
}

func HandleRevokeServiceKey(control *store.ControlStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid service key id", nil)
			return
		}

		err = control.DeleteServiceKey(c.Request.Context(), tenantID, id)
		if errors.Is(err, mongo.ErrNoDocuments) {
			utils.RespondWithNotFound(c, "Service key not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to revoke service key", nil)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
