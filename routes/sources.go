package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/connector"
	"knowledge-platform/internal/store"
	"knowledge-platform/middleware"
	"knowledge-platform/models"
	"knowledge-platform/utils"
)

// SetupSourceRoutes mounts source and connector definition management plus
// read-only document inspection.
func SetupSourceRoutes(router *gin.Engine, control *store.ControlStore, tenantStore *store.Store, registry *connector.Registry, authMW *middleware.AuthMiddleware, roleMW *middleware.RoleMiddleware) {
	group := router.Group("/api/v1")
	group.Use(authMW.RequireAuth(), middleware.EnrichTrace())

	sources := group.Group("/sources")
	sources.POST("", roleMW.WriterGuard(), HandleCreateSource(control, registry))
	sources.GET("", roleMW.ReaderGuard(), HandleListSources(control))
	sources.GET("/:id", roleMW.ReaderGuard(), HandleGetSource(control))
	sources.PATCH("/:id", roleMW.WriterGuard(), HandleUpdateSource(control))
	sources.DELETE("/:id", roleMW.WriterGuard(), HandleDeactivateSource(control))

	defs := group.Group("/connector-definitions")
	defs.POST("", roleMW.WriterGuard(), HandleCreateDefinition(control, registry))
	defs.GET("", roleMW.ReaderGuard(), HandleListDefinitions(control))
	defs.DELETE("/:name", roleMW.WriterGuard(), HandleDeleteDefinition(control))

	docs := group.Group("/documents")
	docs.GET("", roleMW.ReaderGuard(), HandleListDocuments(tenantStore))
	docs.GET("/:id/versions", roleMW.ReaderGuard(), HandleListDocumentVersions(tenantStore))

	group.GET("/stats", roleMW.ReaderGuard(), HandleTenantStats(control, tenantStore))
}

type createSourceRequest struct {
	Type         string              `json:"type" binding:"required"`
	Location     string              `json:"location" binding:"required"`
	Params       models.SourceParams `json:"params"`
	Credentials  string              `json:"credentials"`
	FromTemplate string              `json:"from_template,omitempty"`
}

// HandleCreateSource registers a source. With from_template set, params and
// credentials default from the named connector definition.
func HandleCreateSource(control *store.ControlStore, registry *connector.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		var req createSourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}

		source := &models.Source{
			TenantID:    tenantID,
			Type:        req.Type,
			Location:    req.Location,
			Params:      req.Params,
			Credentials: req.Credentials,
		}

		if req.FromTemplate != "" {
			def, err := control.GetDefinition(c.Request.Context(), tenantID, req.FromTemplate)
			if errors.Is(err, store.ErrDefinitionNotFound) {
				utils.RespondWithNotFound(c, "Connector definition not found")
				return
			}
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to load connector definition", nil)
				return
			}
			source.Type = def.Type
			source.Params = def.Params
			if source.Credentials == "" {
				source.Credentials = def.Credentials
			}
		}

		if _, err := registry.Lookup(source.Type); err != nil {
			utils.RespondWithBadRequest(c, "Unknown source type", gin.H{"type": source.Type})
			return
		}

		err := control.CreateSource(c.Request.Context(), source)
		if errors.Is(err, store.ErrSourceConflict) {
			utils.RespondWithConflict(c, "An active source already exists at this location", nil)
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create source", nil)
			return
		}
		c.JSON(http.StatusCreated, source)
	}
}

func HandleListSources(control *store.ControlStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		activeOnly := c.DefaultQuery("active", "true") == "true"

		sources, err := control.ListSources(c.Request.Context(), tenantID, activeOnly)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list sources", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sources": sources})
	}
}

func HandleGetSource(control *store.ControlStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid source id", nil)
			return
		}

		source, err := control.GetSource(c.Request.Context(), tenantID, id)
		if errors.Is(err, store.ErrSourceNotFound) {
			utils.RespondWithNotFound(c, "Source not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load source", nil)
			return
		}
		c.JSON(http.StatusOK, source)
	}
}

type updateSourceRequest struct {
	Params      models.SourceParams `json:"params"`
	Credentials string              `json:"credentials"`
}

// HandleUpdateSource replaces params and credentials and bumps the source
// version. Location and type are immutable; replace the source instead.
func HandleUpdateSource(control *store.ControlStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid source id", nil)
			return
		}

		var req updateSourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}

		source, err := control.UpdateSourceParams(c.Request.Context(), tenantID, id, req.Params, req.Credentials)
		if errors.Is(err, store.ErrSourceNotFound) {
			utils.RespondWithNotFound(c, "Source not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to update source", nil)
			return
		}
		c.JSON(http.StatusOK, source)
	}
}

// HandleDeactivateSource retires a source. Ingested documents stay
// queryable.
func HandleDeactivateSource(control *store.ControlStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid source id", nil)
			return
		}

		err = control.DeactivateSource(c.Request.Context(), tenantID, id)
		if errors.Is(err, store.ErrSourceNotFound) {
			utils.RespondWithNotFound(c, "Source not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to deactivate source", nil)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type createDefinitionRequest struct {
	Name        string              `json:"name" binding:"required"`
	Type        string              `json:"type" binding:"required"`
	Params      models.SourceParams `json:"params"`
	Credentials string              `json:"credentials"`
}

func HandleCreateDefinition(control *store.ControlStore, registry *connector.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		var req createDefinitionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}
		if _, err := registry.Lookup(req.Type); err != nil {
			utils.RespondWithBadRequest(c, "Unknown source type", gin.H{"type": req.Type})
			return
		}

		def := &models.ConnectorDefinition{
			TenantID:    tenantID,
			Name:        req.Name,
			Type:        req.Type,
			Params:      req.Params,
			Credentials: req.Credentials,
		}
		err := control.CreateDefinition(c.Request.Context(), def)
		if errors.Is(err, store.ErrDefinitionConflict) {
			utils.RespondWithConflict(c, "A connector definition with this name already exists", nil)
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create connector definition", nil)
			return
		}
		c.JSON(http.StatusCreated, def)
	}
}

func HandleListDefinitions(control *store.ControlStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		defs, err := control.ListDefinitions(c.Request.Context(), tenantID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list connector definitions", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"connector_definitions": defs})
	}
}

func HandleDeleteDefinition(control *store.ControlStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		err := control.DeleteDefinition(c.Request.Context(), tenantID, c.Param("name"))
		if errors.Is(err, store.ErrDefinitionNotFound) {
			utils.RespondWithNotFound(c, "Connector definition not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to delete connector definition", nil)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func HandleListDocuments(tenantStore *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		var sourceID *primitive.ObjectID
		if raw := c.Query("source_id"); raw != "" {
			id, err := primitive.ObjectIDFromHex(raw)
			if err != nil {
				utils.RespondWithBadRequest(c, "Invalid source id", nil)
				return
			}
			sourceID = &id
		}
		limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)

		docs, err := tenantStore.ListDocuments(c.Request.Context(), tenantID, sourceID, limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": docs})
	}
}

func HandleListDocumentVersions(tenantStore *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid document id", nil)
			return
		}

		versions, err := tenantStore.ListVersions(c.Request.Context(), tenantID, id)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list document versions", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"versions": versions})
	}
}

// HandleTenantStats reports coarse ingestion totals for the caller's tenant.
func HandleTenantStats(control *store.ControlStore, tenantStore *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)
		ctx := c.Request.Context()

		sources, err := control.ListSources(ctx, tenantID, true)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load sources", nil)
			return
		}

		docCount, err := tenantStore.CountDocuments(ctx, tenantID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to count documents", nil)
			return
		}

		chunks, err := tenantStore.CountChunks(ctx, tenantID)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to count chunks", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"active_sources": len(sources),
			"documents":      docCount,
			"chunks":         chunks,
		})
	}
}
