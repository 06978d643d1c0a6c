package agrosense

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/agrosense/agrosense/internal/config"
	"github.com/agrosense/agrosense/internal/domain/models"
)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client exposes the AgroSense REST operations used by the lifecycle service.
type Client interface {
	ListBatches(ctx context.Context) ([]models.Batch, error)
	GetBatch(ctx context.Context, batchID string) (models.Batch, error)
	CreateBatch(ctx context.Context, req models.CreateBatchRequest) (models.Batch, error)
	UpdateBatchStage(ctx context.Context, batchID string, stage models.Stage, notes string) (models.Batch, error)
	RecordBatchHarvest(ctx context.Context, batchID string, actualYield float64, qualityScore int, notes string) (models.Batch, error)
	UpdateBatchEnvironment(ctx context.Context, batchID string, env models.Environment) (models.Batch, error)
	LogMaintenance(ctx context.Context, batchID string, req models.MaintenanceRequest) (models.Batch, error)
	PredictHarvest(ctx context.Context, daysSinceSpawn int) (models.Prediction, error)
}

// APIError is a non-2xx answer from the AgroSense API. The API is the
// authority, so callers surface it unchanged.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("agrosense api error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("agrosense api error: status=%d, message=%s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds an AgroSense API client. tokens may be nil for anonymous access.
func NewClient(cfg config.AgroSenseConfig, tokens TokenSource) *APIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	restyClient := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	if tokens != nil {
		restyClient.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			token, err := tokens.Token(r.Context())
			if err != nil {
				return fmt.Errorf("load session token: %w", err)
			}
			if token != "" {
				r.SetAuthToken(token)
			}
			return nil
		})
	}

	return &APIClient{httpClient: restyClient}
}

// errorBody covers the error shapes returned by the API.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// batchEnvelope accepts either a batch document or a bare acknowledgement.
type batchEnvelope struct {
	models.Batch
	Message string `json:"message"`
}

// ListBatches returns every batch known to the API.
func (c *APIClient) ListBatches(ctx context.Context) ([]models.Batch, error) {
	var batches []models.Batch
	if err := c.do(ctx, http.MethodGet, "/batch", nil, &batches); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return batches, nil
}

// GetBatch fetches one batch.
func (c *APIClient) GetBatch(ctx context.Context, batchID string) (models.Batch, error) {
	var batch models.Batch
	if err := c.do(ctx, http.MethodGet, "/batch/{id}", nil, &batch, batchID); err != nil {
		return models.Batch{}, fmt.Errorf("get batch %s: %w", batchID, err)
	}
	return batch, nil
}

// CreateBatch submits a new batch. Some API versions only acknowledge the
// creation; the returned batch then carries the request fields and whatever
// expiry date the API reported.
func (c *APIClient) CreateBatch(ctx context.Context, req models.CreateBatchRequest) (models.Batch, error) {
	var envelope batchEnvelope
	if err := c.do(ctx, http.MethodPost, "/batch", req, &envelope); err != nil {
		return models.Batch{}, fmt.Errorf("create batch %s: %w", req.BatchID, err)
	}

	batch := envelope.Batch
	if batch.BatchID == "" {
		batch = models.Batch{
			BatchID:    req.BatchID,
			StartDate:  req.StartDate,
			GrowthDays: req.GrowthDays,
			ExpiryDate: envelope.ExpiryDate,
		}
	}
	return batch, nil
}

// UpdateBatchStage stores a stage change.
func (c *APIClient) UpdateBatchStage(ctx context.Context, batchID string, stage models.Stage, notes string) (models.Batch, error) {
	body := map[string]any{"stage": stage, "notes": notes}
	var envelope batchEnvelope
	if err := c.do(ctx, http.MethodPut, "/batch/{id}/stage", body, &envelope, batchID); err != nil {
		return models.Batch{}, fmt.Errorf("update stage of %s: %w", batchID, err)
	}
	return envelope.Batch, nil
}

// RecordBatchHarvest stores the terminal harvest of a batch.
func (c *APIClient) RecordBatchHarvest(ctx context.Context, batchID string, actualYield float64, qualityScore int, notes string) (models.Batch, error) {
	body := models.HarvestRequest{ActualYield: actualYield, QualityScore: qualityScore, Notes: notes}
	var envelope batchEnvelope
	if err := c.do(ctx, http.MethodPost, "/batch/{id}/harvest", body, &envelope, batchID); err != nil {
		return models.Batch{}, fmt.Errorf("record harvest of %s: %w", batchID, err)
	}
	return envelope.Batch, nil
}

// UpdateBatchEnvironment stores the provided readings; absent readings are omitted.
func (c *APIClient) UpdateBatchEnvironment(ctx context.Context, batchID string, env models.Environment) (models.Batch, error) {
	var envelope batchEnvelope
	if err := c.do(ctx, http.MethodPut, "/batch/{id}/environment", env, &envelope, batchID); err != nil {
		return models.Batch{}, fmt.Errorf("update environment of %s: %w", batchID, err)
	}
	return envelope.Batch, nil
}

// LogMaintenance appends a maintenance entry.
func (c *APIClient) LogMaintenance(ctx context.Context, batchID string, req models.MaintenanceRequest) (models.Batch, error) {
	var envelope batchEnvelope
	if err := c.do(ctx, http.MethodPost, "/batch/{id}/maintenance", req, &envelope, batchID); err != nil {
		return models.Batch{}, fmt.Errorf("log maintenance on %s: %w", batchID, err)
	}
	return envelope.Batch, nil
}

// PredictHarvest asks the ML endpoint for a harvest forecast.
func (c *APIClient) PredictHarvest(ctx context.Context, daysSinceSpawn int) (models.Prediction, error) {
	body := map[string]int{"days_since_spawn": daysSinceSpawn}
	var prediction models.Prediction
	if err := c.do(ctx, http.MethodPost, "/predict/harvest", body, &prediction); err != nil {
		return models.Prediction{}, fmt.Errorf("predict harvest: %w", err)
	}
	return prediction, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, result any, batchID ...string) error {
	apiErr := new(errorBody)

	req := c.httpClient.R().
		SetContext(ctx).
		SetError(apiErr)
	if result != nil {
		req.SetResult(result)
	}
	if body != nil {
		req.SetBody(body)
	}
	if len(batchID) > 0 {
		req.SetPathParam("id", batchID[0])
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}

	if resp.IsError() {
		message := apiErr.Error
		if message == "" {
			message = apiErr.Message
		}
		if message == "" {
			message = strings.TrimSpace(resp.String())
		}
		return &APIError{StatusCode: resp.StatusCode(), Message: message}
	}

	return nil
}
