package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agrosense/agrosense/internal/domain/models"
	"github.com/agrosense/agrosense/internal/metrics"
	"github.com/agrosense/agrosense/internal/service/batches"
)

// BatchSource lists batch views and refreshes predictions.
type BatchSource interface {
	List(ctx context.Context, filter batches.ListFilter) ([]models.BatchView, error)
	RefreshPrediction(ctx context.Context, batchID string, daysSinceSpawn *int) (models.PredictionState, bool)
	Now() time.Time
}

// AuditStore persists status disagreements.
type AuditStore interface {
	SaveExpiryAudits(ctx context.Context, audits []models.ExpiryAudit) error
}

// Notifier delivers a message to the operator.
type Notifier interface {
	NotifyOperator(ctx context.Context, body string) error
}

// SweepResult summarises one expiry sweep.
type SweepResult struct {
	Scanned      int
	Expired      int
	ExpiringSoon int
	Audited      int
	Alerted      int
	Predicted    int
}

type alertState int

const (
	alertNone alertState = iota
	alertExpiring
	alertExpired
)

// ExpirySweeper classifies every batch, records each new disagreement
// between the reported and derived status, alerts the operator once per state
// change and refreshes harvest predictions of growing batches. Derived expiry
// is never written back to the API.
type ExpirySweeper struct {
	source      BatchSource
	audits      AuditStore
	notifier    Notifier
	metrics     *metrics.Metrics
	concurrency int
	logger      *zap.Logger

	mu      sync.Mutex
	alerted map[string]alertState
	// audited holds the disagreement last stored per batch.
	audited map[string]statusPair
}

type statusPair struct {
	reported, derived models.Status
}

// NewExpirySweeper builds a sweeper. audits and notifier are optional.
func NewExpirySweeper(source BatchSource, audits AuditStore, notifier Notifier, m *metrics.Metrics, concurrency int, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ExpirySweeper{
		source:      source,
		audits:      audits,
		notifier:    notifier,
		metrics:     m,
		concurrency: concurrency,
		logger:      logger,
		alerted:     make(map[string]alertState),
		audited:     make(map[string]statusPair),
	}
}

// Sweep runs one pass over all batches.
func (s *ExpirySweeper) Sweep(ctx context.Context) (SweepResult, error) {
	result, err := s.sweep(ctx)
	s.metrics.Sweep(err, result.Expired, result.ExpiringSoon)
	return result, err
}

func (s *ExpirySweeper) sweep(ctx context.Context) (SweepResult, error) {
	views, err := s.source.List(ctx, batches.ListFilter{})
	if err != nil {
		return SweepResult{}, fmt.Errorf("list batches: %w", err)
	}

	result := SweepResult{Scanned: len(views)}
	observedAt := s.source.Now().UTC()

	for _, v := range views {
		switch {
		case v.DerivedExpired:
			result.Expired++
		case v.ExpiringSoon:
			result.ExpiringSoon++
		}
	}

	if s.audits != nil {
		audits, current := s.collectAudits(views, observedAt)
		if len(audits) == 0 {
			s.commitAudits(current)
		} else if err := s.audits.SaveExpiryAudits(ctx, audits); err != nil {
			s.logger.Error("failed to store expiry audits", zap.Int("count", len(audits)), zap.Error(err))
		} else {
			s.commitAudits(current)
			result.Audited = len(audits)
		}
	}

	if alert := s.collectAlert(views); alert.count > 0 && s.notifier != nil {
		if err := s.notifier.NotifyOperator(ctx, alert.body); err != nil {
			s.logger.Error("failed to send expiry alert", zap.Error(err))
		} else {
			s.commitAlert(alert)
			result.Alerted = alert.count
		}
	}

	result.Predicted = s.refreshPredictions(ctx, views)

	s.logger.Info("expiry sweep completed",
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("expiring_soon", result.ExpiringSoon),
		zap.Int("audited", result.Audited),
		zap.Int("alerted", result.Alerted),
		zap.Int("predicted", result.Predicted))

	return result, nil
}

// collectAudits returns audits for disagreements not stored yet, and the
// full set of current disagreements.
func (s *ExpirySweeper) collectAudits(views []models.BatchView, observedAt time.Time) ([]models.ExpiryAudit, map[string]statusPair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]statusPair)
	var audits []models.ExpiryAudit
	for _, v := range views {
		if v.DateError != "" || v.DerivedStatus == v.ReportedStatus {
			continue
		}
		pair := statusPair{reported: v.ReportedStatus, derived: v.DerivedStatus}
		current[v.BatchID] = pair
		if s.audited[v.BatchID] == pair {
			continue
		}
		audits = append(audits, models.ExpiryAudit{
			BatchID:        v.BatchID,
			StartDate:      v.StartDate,
			ReportedStatus: v.ReportedStatus,
			DerivedStatus:  v.DerivedStatus,
			ObservedAt:     observedAt,
		})
	}
	return audits, current
}

func (s *ExpirySweeper) commitAudits(current map[string]statusPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audited = current
}

type pendingAlert struct {
	body   string
	count  int
	states map[string]alertState
}

// collectAlert renders the batches whose alert state changed since the last
// delivered alert.
func (s *ExpirySweeper) collectAlert(views []models.BatchView) pendingAlert {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[string]alertState, len(views))
	var expired, expiring []string
	for _, v := range views {
		state := alertNone
		switch {
		case v.DerivedExpired:
			state = alertExpired
		case v.ExpiringSoon:
			state = alertExpiring
		}
		states[v.BatchID] = state
		if state == alertNone || s.alerted[v.BatchID] == state {
			continue
		}
		line := fmt.Sprintf("- %s (started %s, expiry %s)", v.BatchID, v.StartDate, v.ProjectedExpiryDate)
		if state == alertExpired {
			expired = append(expired, line)
		} else {
			expiring = append(expiring, line)
		}
	}

	alert := pendingAlert{count: len(expired) + len(expiring), states: states}
	var b strings.Builder
	if len(expired) > 0 {
		fmt.Fprintf(&b, "Expired batches:\n%s\n", strings.Join(expired, "\n"))
	}
	if len(expiring) > 0 {
		fmt.Fprintf(&b, "Expiring within 36h:\n%s\n", strings.Join(expiring, "\n"))
	}
	alert.body = strings.TrimRight(b.String(), "\n")
	return alert
}

func (s *ExpirySweeper) commitAlert(alert pendingAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerted = alert.states
}

// refreshPredictions requests predictions for growing batches with at most
// concurrency calls in flight. Batches with a prediction already loading are
// skipped.
func (s *ExpirySweeper) refreshPredictions(ctx context.Context, views []models.BatchView) int {
	var refreshed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, v := range views {
		if v.DateError != "" || v.DerivedExpired || v.DaysSinceSpawn == nil || v.Stage == models.StageCompleted || v.Harvested() {
			continue
		}
		batchID, days := v.BatchID, v.DaysSinceSpawn
		g.Go(func() error {
			state, applied := s.source.RefreshPrediction(gctx, batchID, days)
			if !applied {
				s.logger.Debug("prediction refresh skipped", zap.String("batch_id", batchID), zap.Bool("loading", state.Loading))
				return nil
			}
			if state.Prediction != nil {
				refreshed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(refreshed.Load())
}
