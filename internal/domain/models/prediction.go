package models

import "time"

// Prediction is the advisory harvest forecast returned by the ML endpoint.
type Prediction struct {
	ExpectedHarvestDay int     `json:"expected_harvest_day" bson:"expected_harvest_day"`
	ExpectedYieldKg    float64 `json:"expected_yield_kg" bson:"expected_yield_kg"`
	CurrentTemperature float64 `json:"current_temperature" bson:"current_temperature"`
	CurrentHumidity    float64 `json:"current_humidity" bson:"current_humidity"`
	CurrentAirQuality  int     `json:"current_air_quality,omitempty" bson:"current_air_quality,omitempty"`
}

// PredictionState is what the dashboard shows for a batch: the last applied
// prediction and whether a newer request is still in flight.
type PredictionState struct {
	BatchID        string      `json:"batchId"`
	DaysSinceSpawn *int        `json:"daysSinceSpawn,omitempty"`
	Prediction     *Prediction `json:"prediction,omitempty"`
	Loading        bool        `json:"loading"`
	RequestID      string      `json:"requestId,omitempty"`
	UpdatedAt      time.Time   `json:"updatedAt,omitempty"`
}
