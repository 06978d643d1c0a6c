package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/agrosense/agrosense/internal/domain/models"
)

func TestPredictionTrackerLatestRequestWins(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	started := make(chan struct{})
	var cancelled atomic.Bool

	predictor := PredictorFunc(func(ctx context.Context, days int) (models.Prediction, error) {
		if days == 0 {
			close(started)
			<-release
			cancelled.Store(ctx.Err() != nil)
			// Answer anyway: the tracker must drop it regardless of cancellation.
			return models.Prediction{ExpectedHarvestDay: 100}, nil
		}
		return models.Prediction{ExpectedHarvestDay: 30 - days}, nil
	})

	var stale atomic.Int32
	tracker := NewPredictionTracker(NewHarvestProjector(predictor, time.Second, nil), func() { stale.Add(1) })

	var (
		wg           sync.WaitGroup
		firstApplied bool
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstApplied = tracker.Request(context.Background(), "B-001", intPtr(0))
	}()

	<-started
	state, applied := tracker.Request(context.Background(), "B-001", intPtr(5))
	require.True(t, applied)
	require.NotNil(t, state.DaysSinceSpawn)
	assert.Equal(t, 5, *state.DaysSinceSpawn)

	close(release)
	wg.Wait()

	assert.False(t, firstApplied)
	assert.True(t, cancelled.Load())
	assert.Equal(t, int32(1), stale.Load())

	latest, ok := tracker.Latest("B-001")
	require.True(t, ok)
	assert.False(t, latest.Loading)
	require.NotNil(t, latest.DaysSinceSpawn)
	assert.Equal(t, 5, *latest.DaysSinceSpawn)
	require.NotNil(t, latest.Prediction)
	assert.Equal(t, 25, latest.Prediction.ExpectedHarvestDay)
}

func TestPredictionTrackerShowsLoadingWhileInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	started := make(chan struct{})
	predictor := PredictorFunc(func(context.Context, int) (models.Prediction, error) {
		close(started)
		<-release
		return models.Prediction{ExpectedYieldKg: 1.5}, nil
	})
	tracker := NewPredictionTracker(NewHarvestProjector(predictor, time.Second, nil), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		tracker.Request(context.Background(), "B-002", intPtr(4))
	}()

	<-started
	state, ok := tracker.Latest("B-002")
	require.True(t, ok)
	assert.True(t, state.Loading)
	assert.Nil(t, state.Prediction)

	close(release)
	<-done

	state, _ = tracker.Latest("B-002")
	assert.False(t, state.Loading)
	require.NotNil(t, state.Prediction)
	assert.InDelta(t, 1.5, state.Prediction.ExpectedYieldKg, 1e-9)
}

func TestPredictionTrackerRefreshLeavesInFlightRequest(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	started := make(chan struct{})
	var calls, cancelled atomic.Int32
	predictor := PredictorFunc(func(ctx context.Context, days int) (models.Prediction, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		if ctx.Err() != nil {
			cancelled.Add(1)
		}
		return models.Prediction{ExpectedHarvestDay: 30 - days}, nil
	})
	tracker := NewPredictionTracker(NewHarvestProjector(predictor, time.Second, nil), nil)

	var operatorApplied bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, operatorApplied = tracker.Request(context.Background(), "B-003", intPtr(6))
	}()

	<-started
	state, applied := tracker.Refresh(context.Background(), "B-003", intPtr(6))
	assert.False(t, applied)
	assert.True(t, state.Loading)

	close(release)
	<-done

	assert.True(t, operatorApplied)
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, cancelled.Load())

	// Idle keys are refreshed normally.
	state, applied = tracker.Refresh(context.Background(), "B-003", intPtr(7))
	require.True(t, applied)
	assert.Equal(t, 23, state.Prediction.ExpectedHarvestDay)
}

func TestPredictionTrackerKeysAreIndependent(t *testing.T) {
	defer goleak.VerifyNone(t)

	tracker := NewPredictionTracker(NewHarvestProjector(PredictorFunc(func(_ context.Context, days int) (models.Prediction, error) {
		return models.Prediction{ExpectedHarvestDay: days}, nil
	}), time.Second, nil), nil)

	_, applied := tracker.Request(context.Background(), "A-100", intPtr(1))
	require.True(t, applied)
	_, applied = tracker.Request(context.Background(), "B-200", intPtr(2))
	require.True(t, applied)

	a, _ := tracker.Latest("A-100")
	b, _ := tracker.Latest("B-200")
	assert.Equal(t, 1, a.Prediction.ExpectedHarvestDay)
	assert.Equal(t, 2, b.Prediction.ExpectedHarvestDay)

	tracker.Forget("A-100")
	_, ok := tracker.Latest("A-100")
	assert.False(t, ok)
}

func TestPredictionTrackerUnavailableClearsPrediction(t *testing.T) {
	defer goleak.VerifyNone(t)

	fail := false
	tracker := NewPredictionTracker(NewHarvestProjector(PredictorFunc(func(_ context.Context, days int) (models.Prediction, error) {
		if fail {
			return models.Prediction{}, errors.New("predictor down")
		}
		return models.Prediction{ExpectedHarvestDay: days}, nil
	}), time.Second, nil), nil)

	_, applied := tracker.Request(context.Background(), "C-300", intPtr(7))
	require.True(t, applied)

	fail = true
	state, applied := tracker.Request(context.Background(), "C-300", intPtr(8))
	require.True(t, applied)
	assert.Nil(t, state.Prediction)
	require.NotNil(t, state.DaysSinceSpawn)
	assert.Equal(t, 8, *state.DaysSinceSpawn)
}
