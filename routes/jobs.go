package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"knowledge-platform/internal/jobs"
	"knowledge-platform/internal/store"
	"knowledge-platform/middleware"
	"knowledge-platform/models"
	"knowledge-platform/utils"
)

// SetupJobRoutes mounts the job lifecycle endpoints.
func SetupJobRoutes(router *gin.Engine, jobStore *jobs.Store, control *store.ControlStore, enqueuer *jobs.Enqueuer, jobLog jobs.Log, authMW *middleware.AuthMiddleware, roleMW *middleware.RoleMiddleware) {
	group := router.Group("/api/v1/jobs")
	group.Use(authMW.RequireAuth(), middleware.EnrichTrace())

	group.POST("", roleMW.WriterGuard(), HandleStartJob(jobStore, control, enqueuer))
	group.GET("", roleMW.ReaderGuard(), HandleListJobs(jobStore))
	group.GET("/:id", roleMW.ReaderGuard(), HandleGetJob(jobStore))
	group.GET("/:id/log", roleMW.ReaderGuard(), HandleJobLog(jobStore, jobLog))
	group.POST("/:id/cancel", roleMW.WriterGuard(), HandleCancelJob(jobStore))
	group.POST("/:id/rerun", roleMW.WriterGuard(), HandleRerunJob(jobStore, enqueuer))
}

// HandleStartJob creates a queued job for a source and enqueues it. The
// request names an existing source or describes one inline; an inline
// location that matches an existing active source reuses it.
func HandleStartJob(jobStore *jobs.Store, control *store.ControlStore, enqueuer *jobs.Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		var req models.StartJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request body", err.Error())
			return
		}

		source, err := resolveJobSource(c, control, tenantID, req)
		if err != nil {
			return // resolveJobSource already responded
		}

		job, err := jobStore.Create(c.Request.Context(), tenantID, source.ID)
		if errors.Is(err, jobs.ErrJobConflict) {
			utils.RespondWithConflict(c, "A job is already queued or running for this source", gin.H{
				"source_id": source.ID.Hex(),
			})
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create job", nil)
			return
		}

		if err := enqueuer.EnqueueIngest(c.Request.Context(), job.ID, tenantID); err != nil {
			utils.RespondWithInternalError(c, "Failed to enqueue job", nil)
			return
		}

		c.JSON(http.StatusAccepted, job)
	}
}

func resolveJobSource(c *gin.Context, control *store.ControlStore, tenantID string, req models.StartJobRequest) (*models.Source, error) {
	ctx := c.Request.Context()

	if req.SourceID != "" {
		id, err := primitive.ObjectIDFromHex(req.SourceID)
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid source id", nil)
			return nil, err
		}
		source, err := control.GetSource(ctx, tenantID, id)
		if errors.Is(err, store.ErrSourceNotFound) {
			utils.RespondWithNotFound(c, "Source not found")
			return nil, err
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load source", nil)
			return nil, err
		}
		return source, nil
	}

	if req.Type == "" || req.Location == "" {
		utils.RespondWithBadRequest(c, "Either source_id or type and location are required", nil)
		return nil, errors.New("missing source descriptor")
	}
	if !models.ValidSourceType(req.Type) {
		utils.RespondWithBadRequest(c, "Unknown source type", gin.H{"type": req.Type})
		return nil, errors.New("unknown source type")
	}

	source := &models.Source{
		TenantID: tenantID,
		Type:     req.Type,
		Location: req.Location,
	}
	if req.Params != nil {
		source.Params = *req.Params
	}

	err := control.CreateSource(ctx, source)
	if errors.Is(err, store.ErrSourceConflict) {
		existing, lookupErr := control.GetActiveSourceByLocation(ctx, tenantID, req.Location)
		if lookupErr != nil {
			utils.RespondWithInternalError(c, "Failed to load source", nil)
			return nil, lookupErr
		}
		return existing, nil
	}
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to create source", nil)
		return nil, err
	}
	return source, nil
}

// HandleListJobs returns the tenant's jobs, newest first.
func HandleListJobs(jobStore *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
		list, err := jobStore.ListByTenant(c.Request.Context(), tenantID, limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list jobs", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": list})
	}
}

// HandleGetJob returns one job's status and tallies.
func HandleGetJob(jobStore *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		job, ok := loadJob(c, jobStore, tenantID)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// HandleJobLog returns a slice of the append-only job log. The response
// carries next_offset so clients poll without re-reading, and the job's
// terminal status once it has one, so pollers know when to stop.
func HandleJobLog(jobStore *jobs.Store, jobLog jobs.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		job, ok := loadJob(c, jobStore, tenantID)
		if !ok {
			return
		}

		offset, err := strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
		if err != nil || offset < 0 {
			utils.RespondWithBadRequest(c, "offset must be a non-negative integer", nil)
			return
		}
		limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "0"), 10, 64)

		content, nextOffset, err := jobLog.Read(c.Request.Context(), job.ID.Hex(), offset, limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read job log", nil)
			return
		}

		slice := models.JobLogSlice{
			Content:    content,
			NextOffset: nextOffset,
		}
		if job.Terminal() {
			slice.Status = job.Status
		}
		c.JSON(http.StatusOK, slice)
	}
}

// HandleCancelJob requests cancellation. Idempotent: repeating the call, or
// canceling an already terminal job, succeeds and reports current status.
func HandleCancelJob(jobStore *jobs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid job id", nil)
			return
		}

		job, err := jobStore.RequestCancel(c.Request.Context(), tenantID, id)
		if errors.Is(err, jobs.ErrJobNotFound) {
			utils.RespondWithNotFound(c, "Job not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to cancel job", nil)
			return
		}
		c.JSON(http.StatusAccepted, job)
	}
}

// HandleRerunJob starts a fresh job for a finished job's source. The
// original job row is untouched; history stays append-only.
func HandleRerunJob(jobStore *jobs.Store, enqueuer *jobs.Enqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := middleware.GetTenantID(c)

		prev, ok := loadJob(c, jobStore, tenantID)
		if !ok {
			return
		}
		if !prev.Terminal() {
			utils.RespondWithConflict(c, "Job is still live, cancel it or wait for it to finish", nil)
			return
		}

		job, err := jobStore.Create(c.Request.Context(), tenantID, prev.SourceID)
		if errors.Is(err, jobs.ErrJobConflict) {
			utils.RespondWithConflict(c, "A job is already queued or running for this source", nil)
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create job", nil)
			return
		}

		if err := enqueuer.EnqueueIngest(c.Request.Context(), job.ID, tenantID); err != nil {
			utils.RespondWithInternalError(c, "Failed to enqueue job", nil)
			return
		}
		c.JSON(http.StatusAccepted, job)
	}
}

func loadJob(c *gin.Context, jobStore *jobs.Store, tenantID string) (*models.Job, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		utils.RespondWithBadRequest(c, "Invalid job id", nil)
		return nil, false
	}

	job, err := jobStore.Get(c.Request.Context(), tenantID, id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		utils.RespondWithNotFound(c, "Job not found")
		return nil, false
	}
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to load job", nil)
		return nil, false
	}
	return job, true
}
