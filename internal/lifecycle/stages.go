package lifecycle

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agrosense/agrosense/internal/domain/models"
)

const (
	MinQualityScore = 1
	MaxQualityScore = 10
)

// TransitionPolicy selects how freely operators may move between stages
// before a batch is completed.
type TransitionPolicy int

const (
	// PolicyLateral allows any non-terminal stage to any other non-terminal
	// stage so operators can correct misclicks.
	PolicyLateral TransitionPolicy = iota
	// PolicyForwardOnly only allows moves forward along the canonical path.
	PolicyForwardOnly
)

func (p TransitionPolicy) String() string {
	switch p {
	case PolicyForwardOnly:
		return "forward"
	default:
		return "lateral"
	}
}

// ParsePolicy maps a configuration value onto a TransitionPolicy.
func ParsePolicy(value string) (TransitionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "lateral":
		return PolicyLateral, nil
	case "forward", "forward-only", "forward_only":
		return PolicyForwardOnly, nil
	default:
		return PolicyLateral, fmt.Errorf("unknown stage policy %q", value)
	}
}

// StageStore persists stage changes. It is the authority: a rejection is
// surfaced unchanged.
type StageStore interface {
	UpdateBatchStage(ctx context.Context, batchID string, stage models.Stage, notes string) (models.Batch, error)
	RecordBatchHarvest(ctx context.Context, batchID string, actualYield float64, qualityScore int, notes string) (models.Batch, error)
}

// StageMachine validates and applies cultivation stage transitions.
type StageMachine struct {
	policy TransitionPolicy
	store  StageStore
	logger *zap.Logger
	now    func() time.Time
}

// NewStageMachine wires a state machine over the given store.
func NewStageMachine(policy TransitionPolicy, store StageStore, logger *zap.Logger) *StageMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageMachine{
		policy: policy,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Policy returns the configured transition policy.
func (m *StageMachine) Policy() TransitionPolicy {
	return m.policy
}

// CanTransition reports whether target is reachable from current. COMPLETED
// is only reachable through RecordHarvest, and a harvested batch never leaves it.
func (m *StageMachine) CanTransition(current, target models.Stage, harvested bool) bool {
	if current == "" {
		current = models.StageSpawn
	}
	if !target.Valid() || target == current || target == models.StageCompleted {
		return false
	}

	if current == models.StageCompleted {
		// Legacy rows may sit in COMPLETED without harvest data; only the
		// lateral policy lets operators walk those back.
		return !harvested && m.policy == PolicyLateral
	}

	switch m.policy {
	case PolicyForwardOnly:
		return current.Valid() && target.Rank() > current.Rank()
	default:
		return true
	}
}

// ApplyTransition moves b to target. Nothing is mutated when validation or
// the store rejects the move.
func (m *StageMachine) ApplyTransition(ctx context.Context, b models.Batch, target models.Stage, notes string) (models.Batch, error) {
	from := b.CurrentStage()
	if !m.CanTransition(from, target, b.Harvested()) {
		return b, &InvalidTransitionError{From: from, To: target}
	}

	if _, err := m.store.UpdateBatchStage(ctx, b.BatchID, target, notes); err != nil {
		m.logger.Warn("stage update rejected by store",
			zap.String("batch_id", b.BatchID),
			zap.String("from", string(from)),
			zap.String("to", string(target)),
			zap.Error(err))
		return b, err
	}

	updated := b.Clone()
	updated.Stage = target
	updated.MaintenanceLogs = append(updated.MaintenanceLogs, models.MaintenanceLog{
		Action:    models.ActionStageChange,
		Value:     fmt.Sprintf("%s->%s", from, target),
		Notes:     notes,
		Timestamp: m.now().UTC(),
	})

	m.logger.Info("stage updated",
		zap.String("batch_id", b.BatchID),
		zap.String("from", string(from)),
		zap.String("to", string(target)))

	return updated, nil
}

// ValidateHarvest checks harvest inputs without touching any batch.
func ValidateHarvest(actualYield float64, qualityScore int) error {
	if math.IsNaN(actualYield) || math.IsInf(actualYield, 0) || actualYield <= 0 {
		return &ValidationError{Field: "actualYield", Reason: "must be greater than 0"}
	}
	if qualityScore < MinQualityScore || qualityScore > MaxQualityScore {
		return &ValidationError{Field: "qualityScore", Reason: fmt.Sprintf("must be between %d and %d", MinQualityScore, MaxQualityScore)}
	}
	return nil
}

// RecordHarvest stores the terminal harvest and completes the batch. It is
// the only way into COMPLETED.
func (m *StageMachine) RecordHarvest(ctx context.Context, b models.Batch, actualYield float64, qualityScore int, notes string) (models.Batch, error) {
	if err := ValidateHarvest(actualYield, qualityScore); err != nil {
		return b, err
	}
	if b.CurrentStage() == models.StageCompleted || b.Harvested() {
		return b, ErrAlreadyHarvested
	}

	if _, err := m.store.RecordBatchHarvest(ctx, b.BatchID, actualYield, qualityScore, notes); err != nil {
		m.logger.Warn("harvest rejected by store", zap.String("batch_id", b.BatchID), zap.Error(err))
		return b, err
	}

	updated := b.Clone()
	updated.Stage = models.StageCompleted
	updated.ActualYield = &actualYield
	updated.QualityScore = &qualityScore
	updated.HarvestNotes = notes
	updated.MaintenanceLogs = append(updated.MaintenanceLogs, models.MaintenanceLog{
		Action:    models.ActionHarvest,
		Value:     fmt.Sprintf("%.2f kg / quality %d", actualYield, qualityScore),
		Notes:     notes,
		Timestamp: m.now().UTC(),
	})

	m.logger.Info("harvest recorded",
		zap.String("batch_id", b.BatchID),
		zap.Float64("actual_yield", actualYield),
		zap.Int("quality_score", qualityScore))

	return updated, nil
}
