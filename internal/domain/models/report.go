package models

import "time"

// LifecycleReport represents the aggregated daily batch data stored in MongoDB.
type LifecycleReport struct {
	Date             time.Time         `bson:"date" json:"date"`
	TotalBatches     int               `bson:"total_batches" json:"total_batches"`
	StageCounts      map[Stage]int     `bson:"stage_counts" json:"stage_counts"`
	Expired          int               `bson:"expired" json:"expired"`
	ExpiringSoon     int               `bson:"expiring_soon" json:"expiring_soon"`
	InvalidDates     int               `bson:"invalid_dates" json:"invalid_dates"`
	HarvestedYieldKg float64           `bson:"harvested_yield_kg" json:"harvested_yield_kg"`
	AverageQuality   float64           `bson:"average_quality" json:"average_quality"`
	UpcomingHarvests []UpcomingHarvest `bson:"upcoming_harvests" json:"upcoming_harvests"`
	CreatedAt        time.Time         `bson:"created_at" json:"created_at"`
}

// UpcomingHarvest names a batch whose estimated harvest date is near.
type UpcomingHarvest struct {
	BatchID              string `bson:"batch_id" json:"batch_id"`
	EstimatedHarvestDate string `bson:"estimated_harvest_date" json:"estimated_harvest_date"`
}

// ExpiryAudit records a disagreement between the server reported status and
// the locally derived one. Derived expiry is never written back to the API.
type ExpiryAudit struct {
	BatchID        string    `bson:"batch_id" json:"batch_id"`
	StartDate      string    `bson:"start_date" json:"start_date"`
	ReportedStatus Status    `bson:"reported_status" json:"reported_status"`
	DerivedStatus  Status    `bson:"derived_status" json:"derived_status"`
	ObservedAt     time.Time `bson:"observed_at" json:"observed_at"`
}
