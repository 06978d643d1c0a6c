package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agrosense/agrosense/internal/domain/models"
)

// PredictionTracker keeps the prediction displayed for each key (batch ID)
// consistent with the most recently issued request. A newer request cancels
// the one in flight, and a response whose ticket has been superseded is
// dropped no matter when it arrives.
type PredictionTracker struct {
	projector *HarvestProjector
	now       func() time.Time
	onStale   func()

	mu      sync.Mutex
	seq     uint64
	entries map[string]*trackedPrediction
}

type trackedPrediction struct {
	latest    uint64
	requestID string
	days      *int
	cancel    context.CancelFunc
	loading   bool

	applied     *models.Prediction
	appliedDays *int
	updatedAt   time.Time
}

// NewPredictionTracker builds a tracker. onStale, when set, is invoked for
// every discarded response.
func NewPredictionTracker(projector *HarvestProjector, onStale func()) *PredictionTracker {
	return &PredictionTracker{
		projector: projector,
		now:       time.Now,
		onStale:   onStale,
		entries:   make(map[string]*trackedPrediction),
	}
}

// Request issues a prediction for key and blocks until it resolves. The
// returned state is what is displayed afterwards; applied is false when the
// response was discarded because a newer request superseded it.
func (t *PredictionTracker) Request(ctx context.Context, key string, daysSinceSpawn *int) (models.PredictionState, bool) {
	return t.request(ctx, key, daysSinceSpawn, false)
}

// Refresh is Request for background callers: when a request for key is
// already in flight it is left alone and its current state is returned
// with applied false.
func (t *PredictionTracker) Refresh(ctx context.Context, key string, daysSinceSpawn *int) (models.PredictionState, bool) {
	return t.request(ctx, key, daysSinceSpawn, true)
}

func (t *PredictionTracker) request(ctx context.Context, key string, daysSinceSpawn *int, yield bool) (models.PredictionState, bool) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	entry, ok := t.entries[key]
	if !ok {
		entry = &trackedPrediction{}
		t.entries[key] = entry
	}
	if yield && entry.loading {
		state := entry.state(key)
		t.mu.Unlock()
		return state, false
	}
	t.seq++
	ticket := t.seq
	if entry.cancel != nil {
		entry.cancel()
	}
	entry.latest = ticket
	entry.requestID = uuid.NewString()
	entry.days = copyInt(daysSinceSpawn)
	entry.cancel = cancel
	entry.loading = true
	t.mu.Unlock()

	prediction := t.projector.RequestPrediction(reqCtx, daysSinceSpawn)

	t.mu.Lock()
	defer t.mu.Unlock()

	if entry.latest != ticket {
		if t.onStale != nil {
			t.onStale()
		}
		return entry.state(key), false
	}

	entry.cancel = nil
	entry.loading = false
	entry.applied = prediction
	entry.appliedDays = copyInt(daysSinceSpawn)
	entry.updatedAt = t.now().UTC()
	return entry.state(key), true
}

// Latest returns the displayed prediction for key.
func (t *PredictionTracker) Latest(key string) (models.PredictionState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return models.PredictionState{BatchID: key}, false
	}
	return entry.state(key), true
}

// Forget drops the tracked state for key and cancels its pending request.
func (t *PredictionTracker) Forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[key]; ok {
		if entry.cancel != nil {
			entry.cancel()
		}
		// Any response still in flight will see a foreign ticket.
		entry.latest = 0
		delete(t.entries, key)
	}
}

func (e *trackedPrediction) state(key string) models.PredictionState {
	state := models.PredictionState{
		BatchID:        key,
		DaysSinceSpawn: copyInt(e.appliedDays),
		Loading:        e.loading,
		RequestID:      e.requestID,
		UpdatedAt:      e.updatedAt,
	}
	if e.applied != nil {
		p := *e.applied
		state.Prediction = &p
	}
	return state
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
