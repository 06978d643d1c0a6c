package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agrosense/agrosense/internal/domain/models"
	"github.com/agrosense/agrosense/internal/repository/mongodb"
)

// ReportReader loads stored lifecycle reports.
type ReportReader interface {
	LatestLifecycleReport(ctx context.Context) (models.LifecycleReport, error)
}

// ReportHandler serves stored lifecycle reports.
type ReportHandler struct {
	reports ReportReader
	logger  *zap.Logger
}

// NewReportHandler constructs the handler. reports may be nil when MongoDB
// is not configured.
func NewReportHandler(reports ReportReader, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{reports: reports, logger: logger}
}

// Latest returns the most recent daily report.
func (h *ReportHandler) Latest(c *gin.Context) {
	if h.reports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "report storage is not configured"})
		return
	}

	report, err := h.reports.LatestLifecycleReport(c.Request.Context())
	if errors.Is(err, mongodb.ErrNoReport) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report generated yet"})
		return
	}
	if err != nil {
		h.logger.Error("failed loading latest report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to load report"})
		return
	}
	c.JSON(http.StatusOK, report)
}
