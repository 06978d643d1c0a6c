package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/agrosense/agrosense/internal/domain/models"
	"github.com/agrosense/agrosense/internal/service/batches"
)

// ErrInvalidArguments indicates the command payload could not be parsed.
var ErrInvalidArguments = errors.New("invalid command arguments")

// ErrUnsupportedCommand indicates we do not yet support the requested command.
var ErrUnsupportedCommand = errors.New("unsupported command")

const dateFormat = "2006-01-02"

// Usage lists the supported operator commands.
const Usage = `Supported commands:
/batch <id>
/stage <id> <SPAWN|INCUBATION|FRUITING|HARVEST> [notes]
/harvest <id> <yieldKg> <quality 1-10> [notes]
/env <id> temp=<c> hum=<%> co2=<ppm> light=<lux>
/log <id> <action> [value] [notes]
/expiry
/predict <id>`

// BatchOperations is the part of the batch service the dispatcher drives.
type BatchOperations interface {
	Get(ctx context.Context, batchID string) (models.BatchView, error)
	UpdateStage(ctx context.Context, batchID string, req models.StageUpdateRequest) (models.BatchView, error)
	RecordHarvest(ctx context.Context, batchID string, req models.HarvestRequest) (models.BatchView, error)
	UpdateEnvironment(ctx context.Context, batchID string, env models.Environment) (models.BatchView, error)
	LogMaintenance(ctx context.Context, batchID string, req models.MaintenanceRequest) (models.BatchView, error)
	ExpirySummary(ctx context.Context) (models.ExpirySummary, error)
	Predict(ctx context.Context, batchID string) (models.PredictionState, error)
}

var _ BatchOperations = (*batches.Service)(nil)

// Dispatcher executes parsed operator commands.
type Dispatcher interface {
	HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error)
}

// Service implements the Dispatcher interface.
type Service struct {
	batches BatchOperations
	logger  *zap.Logger
}

// NewService constructs a command dispatcher.
func NewService(ops BatchOperations, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{batches: ops, logger: logger}
}

// HandleCommand runs cmd and returns the reply for the operator.
func (s *Service) HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error) {
	s.logger.Debug("dispatching command", zap.String("command", string(cmd.Type)), zap.String("sender", sender), zap.Strings("args", cmd.Args))

	switch cmd.Type {
	case models.CommandBatch:
		if len(cmd.Args) < 1 {
			return "", ErrInvalidArguments
		}
		view, err := s.batches.Get(ctx, cmd.Args[0])
		if err != nil {
			return "", err
		}
		return FormatBatch(view), nil
	case models.CommandStage:
		batchID, req, err := buildStageRequest(cmd)
		if err != nil {
			return "", err
		}
		view, err := s.batches.UpdateStage(ctx, batchID, req)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Batch %s moved to %s.", view.BatchID, view.Stage), nil
	case models.CommandHarvest:
		batchID, req, err := buildHarvestRequest(cmd)
		if err != nil {
			return "", err
		}
		view, err := s.batches.RecordHarvest(ctx, batchID, req)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Harvest recorded for %s: %.2f kg, quality %d/10. Batch completed.", view.BatchID, req.ActualYield, req.QualityScore), nil
	case models.CommandEnv:
		batchID, env, err := buildEnvironment(cmd)
		if err != nil {
			return "", err
		}
		view, err := s.batches.UpdateEnvironment(ctx, batchID, env)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Environment updated for %s: %s.", view.BatchID, formatEnvironment(env)), nil
	case models.CommandLog:
		batchID, req, err := buildMaintenanceRequest(cmd)
		if err != nil {
			return "", err
		}
		view, err := s.batches.LogMaintenance(ctx, batchID, req)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Logged %s on %s.", req.Type, view.BatchID), nil
	case models.CommandExpiry:
		summary, err := s.batches.ExpirySummary(ctx)
		if err != nil {
			return "", err
		}
		return FormatExpirySummary(summary), nil
	case models.CommandPredict:
		if len(cmd.Args) < 1 {
			return "", ErrInvalidArguments
		}
		state, err := s.batches.Predict(ctx, cmd.Args[0])
		if err != nil {
			return "", err
		}
		return formatPrediction(state), nil
	default:
		return "", ErrUnsupportedCommand
	}
}

func buildStageRequest(cmd models.Command) (string, models.StageUpdateRequest, error) {
	if len(cmd.Args) < 2 {
		return "", models.StageUpdateRequest{}, ErrInvalidArguments
	}
	stage, ok := models.ParseStage(cmd.Args[1])
	if !ok {
		return "", models.StageUpdateRequest{}, fmt.Errorf("%w: unknown stage %q", ErrInvalidArguments, cmd.Args[1])
	}
	return cmd.Args[0], models.StageUpdateRequest{Stage: stage, Notes: strings.Join(cmd.Args[2:], " ")}, nil
}

func buildHarvestRequest(cmd models.Command) (string, models.HarvestRequest, error) {
	if len(cmd.Args) < 3 {
		return "", models.HarvestRequest{}, ErrInvalidArguments
	}
	yield, err := strconv.ParseFloat(strings.TrimSuffix(strings.ToLower(cmd.Args[1]), "kg"), 64)
	if err != nil {
		return "", models.HarvestRequest{}, ErrInvalidArguments
	}
	quality, err := strconv.Atoi(cmd.Args[2])
	if err != nil {
		return "", models.HarvestRequest{}, ErrInvalidArguments
	}
	return cmd.Args[0], models.HarvestRequest{
		ActualYield:  yield,
		QualityScore: quality,
		Notes:        strings.Join(cmd.Args[3:], " "),
	}, nil
}

func buildEnvironment(cmd models.Command) (string, models.Environment, error) {
	if len(cmd.Args) < 2 {
		return "", models.Environment{}, ErrInvalidArguments
	}

	var env models.Environment
	for _, arg := range cmd.Args[1:] {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return "", models.Environment{}, fmt.Errorf("%w: expected key=value, got %q", ErrInvalidArguments, arg)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", models.Environment{}, fmt.Errorf("%w: %s is not a number", ErrInvalidArguments, key)
		}
		switch strings.ToLower(key) {
		case "temp", "temperature":
			env.Temperature = &value
		case "hum", "humidity":
			env.Humidity = &value
		case "co2":
			env.CO2Level = &value
		case "light":
			env.LightLevel = &value
		default:
			return "", models.Environment{}, fmt.Errorf("%w: unknown reading %q", ErrInvalidArguments, key)
		}
	}
	return cmd.Args[0], env, nil
}

func buildMaintenanceRequest(cmd models.Command) (string, models.MaintenanceRequest, error) {
	if len(cmd.Args) < 2 {
		return "", models.MaintenanceRequest{}, ErrInvalidArguments
	}
	req := models.MaintenanceRequest{Type: strings.ToLower(cmd.Args[1])}
	if len(cmd.Args) > 2 {
		req.Value = cmd.Args[2]
	}
	if len(cmd.Args) > 3 {
		req.Notes = strings.Join(cmd.Args[3:], " ")
	}
	return cmd.Args[0], req, nil
}

// FormatBatch renders a batch view as a short operator message.
func FormatBatch(v models.BatchView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s\n", v.BatchID)
	fmt.Fprintf(&b, "Stage: %s\n", v.Stage)
	if v.DateError != "" {
		fmt.Fprintf(&b, "Start: %s (invalid date)\n", v.StartDate)
		fmt.Fprintf(&b, "Status: %s\n", v.ReportedStatus)
		return strings.TrimRight(b.String(), "\n")
	}

	fmt.Fprintf(&b, "Start: %s", v.StartDate)
	if v.DaysSinceSpawn != nil {
		fmt.Fprintf(&b, " (day %d)", *v.DaysSinceSpawn)
	}
	b.WriteString("\n")

	status := string(v.DerivedStatus)
	switch {
	case v.DerivedExpired && v.ReportedStatus != models.StatusExpired:
		status += " (reported " + string(v.ReportedStatus) + ")"
	case v.ExpiringSoon:
		status += " (expiring soon)"
	}
	fmt.Fprintf(&b, "Status: %s\n", status)

	if v.ProjectedExpiryDate != "" {
		fmt.Fprintf(&b, "Expiry: %s\n", v.ProjectedExpiryDate)
	}
	if v.EstimatedHarvestDate != "" {
		fmt.Fprintf(&b, "Estimated harvest: %s\n", v.EstimatedHarvestDate)
	}
	if v.CurrentEnvironment != nil && !v.CurrentEnvironment.Empty() {
		fmt.Fprintf(&b, "Environment: %s\n", formatEnvironment(*v.CurrentEnvironment))
	}
	if v.ActualYield != nil && v.QualityScore != nil {
		fmt.Fprintf(&b, "Harvested: %.2f kg, quality %d/10\n", *v.ActualYield, *v.QualityScore)
	}
	if len(v.RecentLogs) > 0 {
		last := v.RecentLogs[0]
		fmt.Fprintf(&b, "Last log: %s %s", last.Timestamp.Format(dateFormat), last.Action)
		if last.Value != "" {
			fmt.Fprintf(&b, " %s", last.Value)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatExpirySummary renders the expired and expiring batches.
func FormatExpirySummary(summary models.ExpirySummary) string {
	if len(summary.Expired) == 0 && len(summary.ExpiringSoon) == 0 {
		return "No expired or expiring batches."
	}

	var b strings.Builder
	if len(summary.Expired) > 0 {
		fmt.Fprintf(&b, "Expired (%d):\n", len(summary.Expired))
		for _, v := range summary.Expired {
			fmt.Fprintf(&b, "- %s started %s, expired %s\n", v.BatchID, v.StartDate, v.ProjectedExpiryDate)
		}
	}
	if len(summary.ExpiringSoon) > 0 {
		fmt.Fprintf(&b, "Expiring soon (%d):\n", len(summary.ExpiringSoon))
		for _, v := range summary.ExpiringSoon {
			fmt.Fprintf(&b, "- %s started %s, expires after %s\n", v.BatchID, v.StartDate, v.ProjectedExpiryDate)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatPrediction(state models.PredictionState) string {
	if state.Prediction == nil {
		return fmt.Sprintf("Prediction unavailable for %s.", state.BatchID)
	}
	p := state.Prediction
	msg := fmt.Sprintf("Prediction for %s: harvest around day %d, expected yield %.2f kg.", state.BatchID, p.ExpectedHarvestDay, p.ExpectedYieldKg)
	if state.DaysSinceSpawn != nil {
		msg += fmt.Sprintf(" Currently day %d.", *state.DaysSinceSpawn)
	}
	return msg
}

func formatEnvironment(env models.Environment) string {
	var parts []string
	if env.Temperature != nil {
		parts = append(parts, fmt.Sprintf("temp %.1f°C", *env.Temperature))
	}
	if env.Humidity != nil {
		parts = append(parts, fmt.Sprintf("humidity %.0f%%", *env.Humidity))
	}
	if env.CO2Level != nil {
		parts = append(parts, fmt.Sprintf("CO2 %.0f ppm", *env.CO2Level))
	}
	if env.LightLevel != nil {
		parts = append(parts, fmt.Sprintf("light %.0f lux", *env.LightLevel))
	}
	return strings.Join(parts, ", ")
}
