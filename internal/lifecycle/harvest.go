package lifecycle

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"github.com/agrosense/agrosense/internal/domain/models"
)

// DefaultPredictionTimeout bounds a single call to the predictor.
const DefaultPredictionTimeout = 10 * time.Second

// Predictor is the external ML harvest prediction collaborator.
type Predictor interface {
	PredictHarvest(ctx context.Context, daysSinceSpawn int) (models.Prediction, error)
}

// PredictorFunc adapts a function to the Predictor interface.
type PredictorFunc func(ctx context.Context, daysSinceSpawn int) (models.Prediction, error)

// PredictHarvest calls f.
func (f PredictorFunc) PredictHarvest(ctx context.Context, daysSinceSpawn int) (models.Prediction, error) {
	return f(ctx, daysSinceSpawn)
}

// EstimatedHarvestDate returns start plus growthDays calendar days.
func EstimatedHarvestDate(start civil.Date, growthDays int) (civil.Date, error) {
	if growthDays <= 0 {
		return civil.Date{}, &ValidationError{Field: "growthDays", Reason: "must be a positive number of days"}
	}
	return start.AddDays(growthDays), nil
}

// HarvestProjector combines the local harvest estimate with the advisory
// external prediction.
type HarvestProjector struct {
	predictor Predictor
	timeout   time.Duration
	logger    *zap.Logger
}

// NewHarvestProjector builds a projector. A nil predictor disables predictions.
func NewHarvestProjector(predictor Predictor, timeout time.Duration, logger *zap.Logger) *HarvestProjector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultPredictionTimeout
	}
	return &HarvestProjector{predictor: predictor, timeout: timeout, logger: logger}
}

// RequestPrediction asks the predictor for a forecast. Missing or negative
// input, and any predictor failure, yield nil: predictions never block the
// caller.
func (p *HarvestProjector) RequestPrediction(ctx context.Context, daysSinceSpawn *int) *models.Prediction {
	if daysSinceSpawn == nil || *daysSinceSpawn < 0 || p.predictor == nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prediction, err := p.predictor.PredictHarvest(callCtx, *daysSinceSpawn)
	if err != nil {
		p.logger.Warn(ErrPredictionUnavailable.Error(),
			zap.Int("days_since_spawn", *daysSinceSpawn),
			zap.Error(err))
		return nil
	}

	return &prediction
}
