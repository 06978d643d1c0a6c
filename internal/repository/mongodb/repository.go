package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/agrosense/agrosense/internal/domain/models"
)

const (
	reportsCollection = "lifecycle_reports"
	auditsCollection  = "expiry_audits"
)

// Repository defines the interface for report and audit storage.
type Repository interface {
	SaveLifecycleReport(ctx context.Context, report models.LifecycleReport) error
	SaveExpiryAudits(ctx context.Context, audits []models.ExpiryAudit) error
	LatestLifecycleReport(ctx context.Context) (models.LifecycleReport, error)
}

// ErrNoReport is returned when no lifecycle report has been stored yet.
var ErrNoReport = errors.New("no lifecycle report stored")

// MongoDBRepository implements the Repository interface for MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoDBRepository connects to MongoDB and verifies the connection.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return NewMongoDBRepositoryFromClient(client, dbName), nil
}

// NewMongoDBRepositoryFromClient wraps an existing client.
func NewMongoDBRepositoryFromClient(client *mongo.Client, dbName string) *MongoDBRepository {
	return &MongoDBRepository{client: client, db: client.Database(dbName)}
}

// SaveLifecycleReport stores a daily lifecycle report.
func (r *MongoDBRepository) SaveLifecycleReport(ctx context.Context, report models.LifecycleReport) error {
	if _, err := r.db.Collection(reportsCollection).InsertOne(ctx, report); err != nil {
		return fmt.Errorf("failed to insert lifecycle report: %w", err)
	}
	return nil
}

// SaveExpiryAudits stores status disagreements observed by an expiry sweep.
func (r *MongoDBRepository) SaveExpiryAudits(ctx context.Context, audits []models.ExpiryAudit) error {
	if len(audits) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(audits))
	for _, audit := range audits {
		docs = append(docs, audit)
	}

	if _, err := r.db.Collection(auditsCollection).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to insert %d expiry audits: %w", len(audits), err)
	}
	return nil
}

// LatestLifecycleReport returns the most recently generated report.
func (r *MongoDBRepository) LatestLifecycleReport(ctx context.Context) (models.LifecycleReport, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var report models.LifecycleReport
	err := r.db.Collection(reportsCollection).FindOne(ctx, bson.D{}, opts).Decode(&report)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.LifecycleReport{}, ErrNoReport
	}
	if err != nil {
		return models.LifecycleReport{}, fmt.Errorf("failed to load latest lifecycle report: %w", err)
	}
	return report, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
