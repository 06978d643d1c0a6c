package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosense/agrosense/internal/domain/models"
)

type fakeBatches struct {
	stageReq   models.StageUpdateRequest
	harvestReq models.HarvestRequest
	env        models.Environment
	maint      models.MaintenanceRequest
	lastID     string
	summary    models.ExpirySummary
	prediction models.PredictionState
	err        error
}

func (f *fakeBatches) Get(_ context.Context, id string) (models.BatchView, error) {
	f.lastID = id
	days := 3
	return models.BatchView{
		Batch:               models.Batch{BatchID: id, StartDate: "2024-06-01", Stage: models.StageFruiting},
		ReportedStatus:      models.StatusActive,
		DerivedStatus:       models.StatusExpired,
		DerivedExpired:      true,
		DaysSinceSpawn:      &days,
		ProjectedExpiryDate: "2024-06-03",
	}, f.err
}

func (f *fakeBatches) UpdateStage(_ context.Context, id string, req models.StageUpdateRequest) (models.BatchView, error) {
	f.lastID, f.stageReq = id, req
	return models.BatchView{Batch: models.Batch{BatchID: id, Stage: req.Stage}}, f.err
}

func (f *fakeBatches) RecordHarvest(_ context.Context, id string, req models.HarvestRequest) (models.BatchView, error) {
	f.lastID, f.harvestReq = id, req
	return models.BatchView{Batch: models.Batch{BatchID: id}}, f.err
}

func (f *fakeBatches) UpdateEnvironment(_ context.Context, id string, env models.Environment) (models.BatchView, error) {
	f.lastID, f.env = id, env
	return models.BatchView{Batch: models.Batch{BatchID: id}}, f.err
}

func (f *fakeBatches) LogMaintenance(_ context.Context, id string, req models.MaintenanceRequest) (models.BatchView, error) {
	f.lastID, f.maint = id, req
	return models.BatchView{Batch: models.Batch{BatchID: id}}, f.err
}

func (f *fakeBatches) ExpirySummary(context.Context) (models.ExpirySummary, error) {
	return f.summary, f.err
}

func (f *fakeBatches) Predict(_ context.Context, id string) (models.PredictionState, error) {
	f.lastID = id
	state := f.prediction
	state.BatchID = id
	return state, f.err
}

func dispatch(t *testing.T, svc *Service, text string) (string, error) {
	t.Helper()
	return svc.HandleCommand(context.Background(), models.ParseCommand(text), "919800000000")
}

func TestBatchCommand(t *testing.T) {
	fake := &fakeBatches{}
	svc := NewService(fake, nil)

	reply, err := dispatch(t, svc, "/batch Oys-1")
	require.NoError(t, err)
	assert.Equal(t, "Oys-1", fake.lastID)
	assert.Contains(t, reply, "Batch Oys-1")
	assert.Contains(t, reply, "Status: EXPIRED (reported ACTIVE)")
	assert.Contains(t, reply, "(day 3)")
}

func TestStageCommand(t *testing.T) {
	fake := &fakeBatches{}
	svc := NewService(fake, nil)

	reply, err := dispatch(t, svc, "/STAGE OYS-1 fruiting first pins")
	require.NoError(t, err)
	assert.Equal(t, models.StageFruiting, fake.stageReq.Stage)
	assert.Equal(t, "first pins", fake.stageReq.Notes)
	assert.Equal(t, "Batch OYS-1 moved to FRUITING.", reply)

	_, err = dispatch(t, svc, "/stage OYS-1 rotten")
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestHarvestCommand(t *testing.T) {
	fake := &fakeBatches{}
	svc := NewService(fake, nil)

	reply, err := dispatch(t, svc, "/harvest OYS-1 2.5kg 8 good flush")
	require.NoError(t, err)
	assert.InDelta(t, 2.5, fake.harvestReq.ActualYield, 1e-9)
	assert.Equal(t, 8, fake.harvestReq.QualityScore)
	assert.Equal(t, "good flush", fake.harvestReq.Notes)
	assert.Contains(t, reply, "2.50 kg")

	_, err = dispatch(t, svc, "/harvest OYS-1 lots 8")
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestEnvCommand(t *testing.T) {
	fake := &fakeBatches{}
	svc := NewService(fake, nil)

	reply, err := dispatch(t, svc, "/env OYS-1 temp=24.5 hum=88 co2=800")
	require.NoError(t, err)
	require.NotNil(t, fake.env.Temperature)
	assert.InDelta(t, 24.5, *fake.env.Temperature, 1e-9)
	require.NotNil(t, fake.env.CO2Level)
	assert.Nil(t, fake.env.LightLevel)
	assert.Contains(t, reply, "humidity 88%")

	_, err = dispatch(t, svc, "/env OYS-1 wind=3")
	assert.ErrorIs(t, err, ErrInvalidArguments)
	_, err = dispatch(t, svc, "/env OYS-1 temp=warm")
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestLogCommand(t *testing.T) {
	fake := &fakeBatches{}
	svc := NewService(fake, nil)

	reply, err := dispatch(t, svc, "/log OYS-1 Watering 2L morning round")
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceRequest{Type: "watering", Value: "2L", Notes: "morning round"}, fake.maint)
	assert.Equal(t, "Logged watering on OYS-1.", reply)
}

func TestExpiryCommand(t *testing.T) {
	fake := &fakeBatches{}
	svc := NewService(fake, nil)

	reply, err := dispatch(t, svc, "/expiry")
	require.NoError(t, err)
	assert.Equal(t, "No expired or expiring batches.", reply)

	fake.summary = models.ExpirySummary{
		Expired:      []models.BatchView{{Batch: models.Batch{BatchID: "A", StartDate: "2024-06-01"}, ProjectedExpiryDate: "2024-06-03"}},
		ExpiringSoon: []models.BatchView{{Batch: models.Batch{BatchID: "B", StartDate: "2024-06-02"}, ProjectedExpiryDate: "2024-06-04"}},
	}
	reply, err = dispatch(t, svc, "/expiry")
	require.NoError(t, err)
	assert.Contains(t, reply, "Expired (1):\n- A started 2024-06-01, expired 2024-06-03")
	assert.Contains(t, reply, "Expiring soon (1):\n- B started 2024-06-02")
}

func TestPredictCommand(t *testing.T) {
	fake := &fakeBatches{}
	svc := NewService(fake, nil)

	reply, err := dispatch(t, svc, "/predict OYS-1")
	require.NoError(t, err)
	assert.Equal(t, "Prediction unavailable for OYS-1.", reply)

	days := 4
	fake.prediction = models.PredictionState{DaysSinceSpawn: &days, Prediction: &models.Prediction{ExpectedHarvestDay: 21, ExpectedYieldKg: 3}}
	reply, err = dispatch(t, svc, "/predict OYS-1")
	require.NoError(t, err)
	assert.Equal(t, "Prediction for OYS-1: harvest around day 21, expected yield 3.00 kg. Currently day 4.", reply)
}

func TestErrorsPropagate(t *testing.T) {
	boom := errors.New("api down")
	svc := NewService(&fakeBatches{err: boom}, nil)

	_, err := dispatch(t, svc, "/batch OYS-1")
	assert.ErrorIs(t, err, boom)

	_, err = dispatch(t, svc, "/dance")
	assert.ErrorIs(t, err, ErrUnsupportedCommand)

	_, err = dispatch(t, svc, "/batch")
	assert.ErrorIs(t, err, ErrInvalidArguments)
}
