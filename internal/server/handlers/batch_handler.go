package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrosense/agrosense/internal/domain/models"
	"github.com/agrosense/agrosense/internal/lifecycle"
	"github.com/agrosense/agrosense/internal/service/batches"
	"github.com/agrosense/agrosense/pkg/clients/agrosense"
)

// BatchService is the lifecycle surface exposed over HTTP.
type BatchService interface {
	List(ctx context.Context, filter batches.ListFilter) ([]models.BatchView, error)
	Get(ctx context.Context, batchID string) (models.BatchView, error)
	Create(ctx context.Context, req models.CreateBatchRequest) (models.BatchView, error)
	UpdateStage(ctx context.Context, batchID string, req models.StageUpdateRequest) (models.BatchView, error)
	RecordHarvest(ctx context.Context, batchID string, req models.HarvestRequest) (models.BatchView, error)
	UpdateEnvironment(ctx context.Context, batchID string, env models.Environment) (models.BatchView, error)
	LogMaintenance(ctx context.Context, batchID string, req models.MaintenanceRequest) (models.BatchView, error)
	Predict(ctx context.Context, batchID string) (models.PredictionState, error)
	LatestPrediction(batchID string) (models.PredictionState, bool)
	ExpirySummary(ctx context.Context) (models.ExpirySummary, error)
}

var _ BatchService = (*batches.Service)(nil)

// BatchHandler serves the batch lifecycle endpoints.
type BatchHandler struct {
	svc    BatchService
	logger *zap.Logger
}

// NewBatchHandler constructs the HTTP handler adapter.
func NewBatchHandler(svc BatchService, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{svc: svc, logger: logger}
}

// List returns batches, optionally filtered by stage and derived status.
func (h *BatchHandler) List(c *gin.Context) {
	var filter batches.ListFilter
	if raw := c.Query("stage"); raw != "" {
		stage, ok := models.ParseStage(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown stage"})
			return
		}
		filter.Stage = stage
	}
	if raw := c.Query("status"); raw != "" {
		switch status := models.Status(strings.ToUpper(strings.TrimSpace(raw))); status {
		case models.StatusActive, models.StatusExpired:
			filter.Status = status
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be ACTIVE or EXPIRED"})
			return
		}
	}

	views, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "list batches", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": views})
}

// Create registers a new batch.
func (h *BatchHandler) Create(c *gin.Context) {
	var req models.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid batch payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	view, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "create batch", err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// Get returns one batch.
func (h *BatchHandler) Get(c *gin.Context) {
	view, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get batch", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Expiry lists derived-expired and expiring-soon batches.
func (h *BatchHandler) Expiry(c *gin.Context) {
	summary, err := h.svc.ExpirySummary(c.Request.Context())
	if err != nil {
		h.fail(c, "expiry summary", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// UpdateStage moves a batch to another stage.
func (h *BatchHandler) UpdateStage(c *gin.Context) {
	var req models.StageUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid stage payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	view, err := h.svc.UpdateStage(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, "update stage", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// RecordHarvest stores harvest data.
func (h *BatchHandler) RecordHarvest(c *gin.Context) {
	var req models.HarvestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid harvest payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	view, err := h.svc.RecordHarvest(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, "record harvest", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// UpdateEnvironment stores an environment snapshot.
func (h *BatchHandler) UpdateEnvironment(c *gin.Context) {
	var env models.Environment
	if err := c.ShouldBindJSON(&env); err != nil {
		h.logger.Warn("invalid environment payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	view, err := h.svc.UpdateEnvironment(c.Request.Context(), c.Param("id"), env)
	if err != nil {
		h.fail(c, "update environment", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// LogMaintenance appends a maintenance entry.
func (h *BatchHandler) LogMaintenance(c *gin.Context) {
	var req models.MaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid maintenance payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	view, err := h.svc.LogMaintenance(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, "log maintenance", err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// Prediction requests a fresh harvest prediction. An unavailable prediction
// is not an error: the state simply carries none.
func (h *BatchHandler) Prediction(c *gin.Context) {
	state, err := h.svc.Predict(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "predict harvest", err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// LatestPrediction returns the displayed prediction without a new request.
func (h *BatchHandler) LatestPrediction(c *gin.Context) {
	state, ok := h.svc.LatestPrediction(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no prediction requested for this batch"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *BatchHandler) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.String("batch_id", c.Param("id")), zap.Error(err))
	} else {
		h.logger.Info(op+" rejected", zap.String("batch_id", c.Param("id")), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor maps lifecycle and API errors onto HTTP status codes. Client
// errors reported by the AgroSense API pass through unchanged.
func statusFor(err error) int {
	var (
		transitionErr *lifecycle.InvalidTransitionError
		apiErr        *agrosense.APIError
	)
	switch {
	case lifecycle.IsClientError(err):
		return http.StatusBadRequest
	case errors.As(err, &transitionErr), errors.Is(err, lifecycle.ErrAlreadyHarvested):
		return http.StatusConflict
	case errors.As(err, &apiErr):
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			return apiErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
