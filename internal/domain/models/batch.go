package models

import (
	"strings"
	"time"
)

// Stage enumerates the cultivation phases of a batch.
type Stage string

const (
	StageSpawn      Stage = "SPAWN"
	StageIncubation Stage = "INCUBATION"
	StageFruiting   Stage = "FRUITING"
	StageHarvest    Stage = "HARVEST"
	StageCompleted  Stage = "COMPLETED"
)

// Stages lists every stage in canonical order.
var Stages = []Stage{StageSpawn, StageIncubation, StageFruiting, StageHarvest, StageCompleted}

// Rank returns the position of the stage on the canonical path, or -1 when unknown.
func (s Stage) Rank() int {
	for i, stage := range Stages {
		if stage == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	return s.Rank() >= 0
}

// ParseStage normalises free-form input (case, whitespace) into a Stage.
func ParseStage(value string) (Stage, bool) {
	stage := Stage(strings.ToUpper(strings.TrimSpace(value)))
	return stage, stage.Valid()
}

// Status is the server reported batch status.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
)

// DefaultGrowthDays is applied when a batch does not carry a growth period.
const DefaultGrowthDays = 90

// Environment is a point-in-time snapshot of a batch's growing conditions.
type Environment struct {
	Temperature *float64 `json:"temperature,omitempty" bson:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty" bson:"humidity,omitempty"`
	CO2Level    *float64 `json:"co2Level,omitempty" bson:"co2_level,omitempty"`
	LightLevel  *float64 `json:"lightLevel,omitempty" bson:"light_level,omitempty"`
}

// Empty reports whether no reading is present.
func (e Environment) Empty() bool {
	return e.Temperature == nil && e.Humidity == nil && e.CO2Level == nil && e.LightLevel == nil
}

// MaintenanceLog is a timestamped operational action taken on a batch.
type MaintenanceLog struct {
	Action    string    `json:"action" bson:"action"`
	Value     string    `json:"value,omitempty" bson:"value,omitempty"`
	Notes     string    `json:"notes,omitempty" bson:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Maintenance actions offered to operators.
const (
	ActionWatering           = "watering"
	ActionCO2Adjustment      = "co2_adjustment"
	ActionTemperatureCheck   = "temperature_check"
	ActionHumidityCheck      = "humidity_check"
	ActionLightAdjustment    = "light_adjustment"
	ActionContaminationCheck = "contamination_check"
	ActionSubstrateCheck     = "substrate_check"
	ActionOther              = "other"

	// Recorded by the lifecycle itself.
	ActionStageChange = "stage_change"
	ActionHarvest     = "harvest"
)

// MaintenanceActions lists the actions an operator may log manually.
var MaintenanceActions = []string{
	ActionWatering,
	ActionCO2Adjustment,
	ActionTemperatureCheck,
	ActionHumidityCheck,
	ActionLightAdjustment,
	ActionContaminationCheck,
	ActionSubstrateCheck,
	ActionOther,
}

// Batch is one cultivation run as exposed by the AgroSense API.
type Batch struct {
	BatchID            string           `json:"batchId"`
	StartDate          string           `json:"startDate"`
	GrowthDays         int              `json:"growthDays,omitempty"`
	Stage              Stage            `json:"stage,omitempty"`
	Status             Status           `json:"status,omitempty"`
	ExpiryDate         string           `json:"expiryDate,omitempty"`
	CurrentEnvironment *Environment     `json:"currentEnvironment,omitempty"`
	MaintenanceLogs    []MaintenanceLog `json:"maintenanceLogs,omitempty"`
	ActualYield        *float64         `json:"actualYield,omitempty"`
	QualityScore       *int             `json:"qualityScore,omitempty"`
	HarvestNotes       string           `json:"harvestNotes,omitempty"`
}

// CurrentStage returns the batch stage, defaulting to SPAWN when absent.
func (b Batch) CurrentStage() Stage {
	if b.Stage == "" {
		return StageSpawn
	}
	return b.Stage
}

// Harvested reports whether harvest data has been recorded.
func (b Batch) Harvested() bool {
	return b.ActualYield != nil || b.QualityScore != nil
}

// EffectiveGrowthDays returns the growth period, falling back to the default.
func (b Batch) EffectiveGrowthDays() int {
	if b.GrowthDays <= 0 {
		return DefaultGrowthDays
	}
	return b.GrowthDays
}

// Clone returns a deep copy so callers can derive a new batch without
// touching the original.
func (b Batch) Clone() Batch {
	out := b
	if b.CurrentEnvironment != nil {
		env := *b.CurrentEnvironment
		out.CurrentEnvironment = &env
	}
	if b.MaintenanceLogs != nil {
		out.MaintenanceLogs = append([]MaintenanceLog(nil), b.MaintenanceLogs...)
	}
	if b.ActualYield != nil {
		v := *b.ActualYield
		out.ActualYield = &v
	}
	if b.QualityScore != nil {
		v := *b.QualityScore
		out.QualityScore = &v
	}
	return out
}

// CreateBatchRequest is the payload accepted for new batches.
type CreateBatchRequest struct {
	BatchID    string `json:"batchId"`
	StartDate  string `json:"startDate"`
	GrowthDays int    `json:"growthDays,omitempty"`
}

// StageUpdateRequest moves a batch to another stage.
type StageUpdateRequest struct {
	Stage Stage  `json:"stage" binding:"required"`
	Notes string `json:"notes"`
}

// HarvestRequest records the terminal harvest of a batch.
type HarvestRequest struct {
	ActualYield  float64 `json:"actualYield"`
	QualityScore int     `json:"qualityScore"`
	Notes        string  `json:"notes"`
}

// MaintenanceRequest appends a maintenance entry to a batch.
type MaintenanceRequest struct {
	Type  string `json:"type" binding:"required"`
	Value string `json:"value"`
	Notes string `json:"notes"`
}

// BatchView is the display projection of a batch. The server reported
// status and the locally derived status are kept side by side.
type BatchView struct {
	Batch
	ReportedStatus       Status           `json:"reportedStatus"`
	DerivedStatus        Status           `json:"derivedStatus"`
	DerivedExpired       bool             `json:"derivedExpired"`
	ExpiringSoon         bool             `json:"expiringSoon"`
	ProjectedExpiryDate  string           `json:"projectedExpiryDate,omitempty"`
	EstimatedHarvestDate string           `json:"estimatedHarvestDate,omitempty"`
	DaysSinceSpawn       *int             `json:"daysSinceSpawn,omitempty"`
	RecentLogs           []MaintenanceLog `json:"recentLogs,omitempty"`
	DateError            string           `json:"dateError,omitempty"`
}

// ExpirySummary groups batches by derived expiry state.
type ExpirySummary struct {
	Expired      []BatchView `json:"expired"`
	ExpiringSoon []BatchView `json:"expiringSoon"`
}
