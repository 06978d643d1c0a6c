package batches

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agrosense/agrosense/internal/domain/models"
	"github.com/agrosense/agrosense/internal/lifecycle"
	"github.com/agrosense/agrosense/internal/metrics"
	"github.com/agrosense/agrosense/pkg/clients/agrosense"
)

// ListFilter narrows List results. Empty fields match everything; Status is
// compared against the derived status.
type ListFilter struct {
	Stage  models.Stage
	Status models.Status
}

// Service orchestrates the batch lifecycle over the AgroSense API.
type Service struct {
	client  agrosense.Client
	expiry  *lifecycle.ExpiryCalculator
	stages  *lifecycle.StageMachine
	tracker *lifecycle.PredictionTracker
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService wires the lifecycle modules with the API client.
func NewService(
	client agrosense.Client,
	expiry *lifecycle.ExpiryCalculator,
	stages *lifecycle.StageMachine,
	tracker *lifecycle.PredictionTracker,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:  client,
		expiry:  expiry,
		stages:  stages,
		tracker: tracker,
		metrics: m,
		logger:  logger,
	}
}

// Now returns the instant used for projections.
func (s *Service) Now() time.Time {
	return s.expiry.Now()
}

// Location returns the calendar location of the lifecycle rules.
func (s *Service) Location() *time.Location {
	return s.expiry.Location()
}

// List returns the views of every batch matching filter, newest start first.
// Batches with malformed dates are kept and sorted last.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]models.BatchView, error) {
	batches, err := s.client.ListBatches(ctx)
	if err != nil {
		return nil, err
	}

	now := s.expiry.Now()
	views := make([]models.BatchView, 0, len(batches))
	for _, b := range batches {
		view := s.expiry.Describe(b, now)
		if view.DateError != "" {
			s.logger.Warn("batch has an invalid start date",
				zap.String("batch_id", b.BatchID),
				zap.String("start_date", b.StartDate))
		}
		if filter.Stage != "" && view.Stage != filter.Stage {
			continue
		}
		if filter.Status != "" && view.DerivedStatus != filter.Status {
			continue
		}
		views = append(views, view)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return startKey(views[i]) > startKey(views[j])
	})
	return views, nil
}

// startKey orders by ISO date; unparseable dates sort as empty.
func startKey(v models.BatchView) string {
	if v.DateError != "" {
		return ""
	}
	start, err := lifecycle.ParseDate(v.StartDate)
	if err != nil {
		return ""
	}
	return start.String()
}

// Get returns the view of one batch.
func (s *Service) Get(ctx context.Context, batchID string) (models.BatchView, error) {
	b, err := s.client.GetBatch(ctx, batchID)
	if err != nil {
		return models.BatchView{}, err
	}
	return s.expiry.Describe(b, s.expiry.Now()), nil
}

// Create validates req and submits it. Fields the API did not echo back are
// filled from the lifecycle defaults.
func (s *Service) Create(ctx context.Context, req models.CreateBatchRequest) (models.BatchView, error) {
	normalised, err := lifecycle.ValidateNewBatch(req, s.expiry.Today())
	if err != nil {
		return models.BatchView{}, err
	}

	b, err := s.client.CreateBatch(ctx, normalised)
	if err != nil {
		return models.BatchView{}, err
	}

	if b.Stage == "" {
		b.Stage = models.StageSpawn
	}
	if b.Status == "" {
		b.Status = models.StatusActive
	}
	if b.GrowthDays == 0 {
		b.GrowthDays = normalised.GrowthDays
	}
	if b.ExpiryDate == "" {
		if start, err := lifecycle.ParseDate(b.StartDate); err == nil {
			b.ExpiryDate = lifecycle.ProjectedExpiryDate(start).String()
		}
	}

	s.logger.Info("batch created",
		zap.String("batch_id", b.BatchID),
		zap.String("start_date", b.StartDate),
		zap.Int("growth_days", b.GrowthDays))

	return s.expiry.Describe(b, s.expiry.Now()), nil
}

// UpdateStage moves a batch to the requested stage.
func (s *Service) UpdateStage(ctx context.Context, batchID string, req models.StageUpdateRequest) (models.BatchView, error) {
	target, ok := models.ParseStage(string(req.Stage))
	if !ok {
		s.metrics.TransitionRejected("unknown_stage")
		return models.BatchView{}, &lifecycle.ValidationError{Field: "stage", Reason: fmt.Sprintf("unknown stage %q", req.Stage)}
	}

	b, err := s.client.GetBatch(ctx, batchID)
	if err != nil {
		return models.BatchView{}, err
	}

	updated, err := s.stages.ApplyTransition(ctx, b, target, strings.TrimSpace(req.Notes))
	if err != nil {
		s.metrics.TransitionRejected(rejectionReason(err))
		return models.BatchView{}, err
	}

	s.metrics.StageTransition(string(target))
	return s.expiry.Describe(updated, s.expiry.Now()), nil
}

// RecordHarvest stores the terminal harvest of a batch.
func (s *Service) RecordHarvest(ctx context.Context, batchID string, req models.HarvestRequest) (models.BatchView, error) {
	if err := lifecycle.ValidateHarvest(req.ActualYield, req.QualityScore); err != nil {
		return models.BatchView{}, err
	}

	b, err := s.client.GetBatch(ctx, batchID)
	if err != nil {
		return models.BatchView{}, err
	}

	updated, err := s.stages.RecordHarvest(ctx, b, req.ActualYield, req.QualityScore, strings.TrimSpace(req.Notes))
	if err != nil {
		return models.BatchView{}, err
	}

	s.metrics.HarvestRecorded()
	s.tracker.Forget(batchID)
	return s.expiry.Describe(updated, s.expiry.Now()), nil
}

// UpdateEnvironment stores a new environment snapshot. At least one reading
// is required.
func (s *Service) UpdateEnvironment(ctx context.Context, batchID string, env models.Environment) (models.BatchView, error) {
	if env.Empty() {
		return models.BatchView{}, &lifecycle.ValidationError{Field: "environment", Reason: "at least one reading is required"}
	}

	b, err := s.client.UpdateBatchEnvironment(ctx, batchID, env)
	if err != nil {
		return models.BatchView{}, err
	}
	return s.refreshed(ctx, batchID, b)
}

// LogMaintenance appends an operator maintenance entry.
func (s *Service) LogMaintenance(ctx context.Context, batchID string, req models.MaintenanceRequest) (models.BatchView, error) {
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	if !slices.Contains(models.MaintenanceActions, req.Type) {
		return models.BatchView{}, &lifecycle.ValidationError{
			Field:  "type",
			Reason: fmt.Sprintf("must be one of %s", strings.Join(models.MaintenanceActions, ", ")),
		}
	}

	b, err := s.client.LogMaintenance(ctx, batchID, req)
	if err != nil {
		return models.BatchView{}, err
	}
	return s.refreshed(ctx, batchID, b)
}

// refreshed re-reads the batch when the API only acknowledged a write.
func (s *Service) refreshed(ctx context.Context, batchID string, b models.Batch) (models.BatchView, error) {
	if b.BatchID == "" {
		fresh, err := s.client.GetBatch(ctx, batchID)
		if err != nil {
			return models.BatchView{}, err
		}
		b = fresh
	}
	return s.expiry.Describe(b, s.expiry.Now()), nil
}

// Predict requests a harvest prediction for a batch. The returned state is
// what is displayed afterwards; a superseded request returns the state of
// the newer one.
func (s *Service) Predict(ctx context.Context, batchID string) (models.PredictionState, error) {
	view, err := s.Get(ctx, batchID)
	if err != nil {
		return models.PredictionState{}, err
	}

	state, applied := s.tracker.Request(ctx, batchID, view.DaysSinceSpawn)
	if applied {
		if state.Prediction != nil {
			s.metrics.Prediction(metrics.PredictionApplied)
		} else {
			s.metrics.Prediction(metrics.PredictionUnavailable)
		}
	}
	return state, nil
}

// RefreshPrediction updates the prediction of a batch whose days since spawn
// are already known. A request already in flight, typically an operator's,
// is left to finish and nothing new is issued.
func (s *Service) RefreshPrediction(ctx context.Context, batchID string, daysSinceSpawn *int) (models.PredictionState, bool) {
	state, applied := s.tracker.Refresh(ctx, batchID, daysSinceSpawn)
	if applied {
		if state.Prediction != nil {
			s.metrics.Prediction(metrics.PredictionApplied)
		} else {
			s.metrics.Prediction(metrics.PredictionUnavailable)
		}
	}
	return state, applied
}

// LatestPrediction returns the displayed prediction without issuing a request.
func (s *Service) LatestPrediction(batchID string) (models.PredictionState, bool) {
	return s.tracker.Latest(batchID)
}

// ExpirySummary lists derived-expired and expiring-soon batches.
func (s *Service) ExpirySummary(ctx context.Context) (models.ExpirySummary, error) {
	views, err := s.List(ctx, ListFilter{})
	if err != nil {
		return models.ExpirySummary{}, err
	}
	return Summarise(views), nil
}

// Summarise partitions views by displayed expiry state. Batches the server
// already reports EXPIRED are listed with the derived-expired ones.
func Summarise(views []models.BatchView) models.ExpirySummary {
	summary := models.ExpirySummary{
		Expired:      []models.BatchView{},
		ExpiringSoon: []models.BatchView{},
	}
	for _, v := range views {
		switch {
		case v.DerivedStatus == models.StatusExpired:
			summary.Expired = append(summary.Expired, v)
		case v.ExpiringSoon:
			summary.ExpiringSoon = append(summary.ExpiringSoon, v)
		}
	}
	return summary
}

func rejectionReason(err error) string {
	var transitionErr *lifecycle.InvalidTransitionError
	switch {
	case errors.As(err, &transitionErr):
		return "invalid_transition"
	case lifecycle.IsClientError(err):
		return "validation"
	default:
		return "store"
	}
}
