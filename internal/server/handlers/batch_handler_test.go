package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrosense/agrosense/internal/domain/models"
	"github.com/agrosense/agrosense/internal/lifecycle"
	"github.com/agrosense/agrosense/internal/service/batches"
	"github.com/agrosense/agrosense/pkg/clients/agrosense"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBatchService struct {
	err        error
	filter     batches.ListFilter
	created    models.CreateBatchRequest
	stage      models.StageUpdateRequest
	harvest    models.HarvestRequest
	env        models.Environment
	maint      models.MaintenanceRequest
	batchID    string
	prediction *models.PredictionState
}

func (f *fakeBatchService) List(_ context.Context, filter batches.ListFilter) ([]models.BatchView, error) {
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return []models.BatchView{{Batch: models.Batch{BatchID: "B-1"}}}, nil
}

func (f *fakeBatchService) Get(_ context.Context, id string) (models.BatchView, error) {
	f.batchID = id
	return models.BatchView{Batch: models.Batch{BatchID: id}}, f.err
}

func (f *fakeBatchService) Create(_ context.Context, req models.CreateBatchRequest) (models.BatchView, error) {
	f.created = req
	return models.BatchView{Batch: models.Batch{BatchID: req.BatchID}}, f.err
}

func (f *fakeBatchService) UpdateStage(_ context.Context, id string, req models.StageUpdateRequest) (models.BatchView, error) {
	f.batchID, f.stage = id, req
	return models.BatchView{Batch: models.Batch{BatchID: id, Stage: req.Stage}}, f.err
}

func (f *fakeBatchService) RecordHarvest(_ context.Context, id string, req models.HarvestRequest) (models.BatchView, error) {
	f.batchID, f.harvest = id, req
	return models.BatchView{Batch: models.Batch{BatchID: id}}, f.err
}

func (f *fakeBatchService) UpdateEnvironment(_ context.Context, id string, env models.Environment) (models.BatchView, error) {
	f.batchID, f.env = id, env
	return models.BatchView{Batch: models.Batch{BatchID: id}}, f.err
}

func (f *fakeBatchService) LogMaintenance(_ context.Context, id string, req models.MaintenanceRequest) (models.BatchView, error) {
	f.batchID, f.maint = id, req
	return models.BatchView{Batch: models.Batch{BatchID: id}}, f.err
}

func (f *fakeBatchService) Predict(_ context.Context, id string) (models.PredictionState, error) {
	f.batchID = id
	return models.PredictionState{BatchID: id, Prediction: &models.Prediction{ExpectedHarvestDay: 21}}, f.err
}

func (f *fakeBatchService) LatestPrediction(string) (models.PredictionState, bool) {
	if f.prediction == nil {
		return models.PredictionState{}, false
	}
	return *f.prediction, true
}

func (f *fakeBatchService) ExpirySummary(context.Context) (models.ExpirySummary, error) {
	return models.ExpirySummary{Expired: []models.BatchView{}, ExpiringSoon: []models.BatchView{}}, f.err
}

func batchEngine(svc BatchService) *gin.Engine {
	h := NewBatchHandler(svc, nil)
	r := gin.New()
	r.GET("/api/batches", h.List)
	r.POST("/api/batches", h.Create)
	r.GET("/api/batches/expiry", h.Expiry)
	r.GET("/api/batches/:id", h.Get)
	r.PUT("/api/batches/:id/stage", h.UpdateStage)
	r.POST("/api/batches/:id/harvest", h.RecordHarvest)
	r.PUT("/api/batches/:id/environment", h.UpdateEnvironment)
	r.POST("/api/batches/:id/maintenance", h.LogMaintenance)
	r.GET("/api/batches/:id/prediction", h.Prediction)
	r.GET("/api/batches/:id/prediction/latest", h.LatestPrediction)
	return r
}

func perform(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListFilters(t *testing.T) {
	svc := &fakeBatchService{}
	rec := perform(batchEngine(svc), http.MethodGet, "/api/batches?stage=fruiting&status=expired", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, batches.ListFilter{Stage: models.StageFruiting, Status: models.StatusExpired}, svc.filter)

	var body struct {
		Batches []models.BatchView `json:"batches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Batches, 1)
	assert.Equal(t, "B-1", body.Batches[0].BatchID)
}

func TestListRejectsUnknownFilters(t *testing.T) {
	r := batchEngine(&fakeBatchService{})

	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodGet, "/api/batches?stage=SPROUT", "").Code)
	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodGet, "/api/batches?status=DONE", "").Code)
}

func TestCreateBatch(t *testing.T) {
	svc := &fakeBatchService{}
	rec := perform(batchEngine(svc), http.MethodPost, "/api/batches", `{"batchId":"B-9","startDate":"2024-06-01","growthDays":60}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.CreateBatchRequest{BatchID: "B-9", StartDate: "2024-06-01", GrowthDays: 60}, svc.created)
}

func TestMalformedBodies(t *testing.T) {
	r := batchEngine(&fakeBatchService{})

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/api/batches"},
		{http.MethodPut, "/api/batches/B-1/stage"},
		{http.MethodPost, "/api/batches/B-1/harvest"},
		{http.MethodPut, "/api/batches/B-1/environment"},
		{http.MethodPost, "/api/batches/B-1/maintenance"},
	} {
		rec := perform(r, tc.method, tc.path, `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.path)
	}

	// stage and type are required fields.
	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPut, "/api/batches/B-1/stage", `{"notes":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, "/api/batches/B-1/maintenance", `{"value":"2L"}`).Code)
}

func TestBatchMutations(t *testing.T) {
	svc := &fakeBatchService{}
	r := batchEngine(svc)

	rec := perform(r, http.MethodPut, "/api/batches/B-1/stage", `{"stage":"INCUBATION","notes":"moved"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "B-1", svc.batchID)
	assert.Equal(t, models.StageUpdateRequest{Stage: models.StageIncubation, Notes: "moved"}, svc.stage)

	rec = perform(r, http.MethodPost, "/api/batches/B-2/harvest", `{"actualYield":4.5,"qualityScore":8,"notes":"good"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.HarvestRequest{ActualYield: 4.5, QualityScore: 8, Notes: "good"}, svc.harvest)

	rec = perform(r, http.MethodPut, "/api/batches/B-3/environment", `{"temperature":22.5}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.env.Temperature)
	assert.InDelta(t, 22.5, *svc.env.Temperature, 0.001)
	assert.Nil(t, svc.env.Humidity)

	rec = perform(r, http.MethodPost, "/api/batches/B-4/maintenance", `{"type":"watering","value":"2L"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "B-4", svc.batchID)
	assert.Equal(t, "watering", svc.maint.Type)
}

func TestPredictionEndpoints(t *testing.T) {
	svc := &fakeBatchService{}
	r := batchEngine(svc)

	assert.Equal(t, http.StatusNotFound, perform(r, http.MethodGet, "/api/batches/B-1/prediction/latest", "").Code)

	rec := perform(r, http.MethodGet, "/api/batches/B-1/prediction", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state models.PredictionState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.NotNil(t, state.Prediction)
	assert.Equal(t, 21, state.Prediction.ExpectedHarvestDay)

	svc.prediction = &models.PredictionState{BatchID: "B-1", Loading: true}
	rec = perform(r, http.MethodGet, "/api/batches/B-1/prediction/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"loading":true`)
}

func TestExpiryRouteIsNotABatchID(t *testing.T) {
	svc := &fakeBatchService{}
	rec := perform(batchEngine(svc), http.MethodGet, "/api/batches/expiry", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.batchID)
	assert.JSONEq(t, `{"expired":[],"expiringSoon":[]}`, rec.Body.String())
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &lifecycle.ValidationError{Field: "batchId", Reason: "too short"}, http.StatusBadRequest},
		{"invalid date", &lifecycle.InvalidDateError{Value: "2024-13-01"}, http.StatusBadRequest},
		{"transition", &lifecycle.InvalidTransitionError{From: models.StageSpawn, To: models.StageHarvest}, http.StatusConflict},
		{"harvested", lifecycle.ErrAlreadyHarvested, http.StatusConflict},
		{"api not found", &agrosense.APIError{StatusCode: http.StatusNotFound, Message: "Batch not found"}, http.StatusNotFound},
		{"api unauthorized", &agrosense.APIError{StatusCode: http.StatusUnauthorized}, http.StatusUnauthorized},
		{"api server error", &agrosense.APIError{StatusCode: http.StatusInternalServerError}, http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := perform(batchEngine(&fakeBatchService{err: tc.err}), http.MethodGet, "/api/batches/B-1", "")
			assert.Equal(t, tc.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}
