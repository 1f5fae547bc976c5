package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowledge-platform/internal/retrieval"
	"knowledge-platform/middleware"
	"knowledge-platform/models"
	"knowledge-platform/utils"
)

// SetupRetrieveRoutes mounts the retrieval endpoint.
func SetupRetrieveRoutes(router *gin.Engine, engine *retrieval.Engine, authMW *middleware.AuthMiddleware, roleMW *middleware.RoleMiddleware) {
	group := router.Group("/api/v1")
	group.Use(authMW.RequireAuth(), middleware.EnrichTrace())

	group.POST("/retrieve", roleMW.ReaderGuard(), HandleRetrieve(engine))
}

// HandleRetrieve answers a hybrid retrieval query scoped to the caller's
// tenant. An empty result set is a normal 200, not an error.
func HandleRetrieve(engine *retrieval.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		var req models.RetrieveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}

		results, err := engine.Retrieve(c.Request.Context(), tenantID, req)
		if err != nil {
			utils.RespondWithInternalError(c, "Retrieval failed", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"query":   req.Query,
			"results": results,
		})
	}
}
