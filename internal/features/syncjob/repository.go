package syncjob

import (
	"context"
	"errors"
	"time"

	"go-syncbridge/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository is the durable store behind the manager: job history plus
// per-entity sync status rows.
type Repository interface {
	SaveJob(ctx context.Context, job *SyncJob) error
	GetJob(ctx context.Context, id string) (*SyncJob, error)
	ListJobs(ctx context.Context, status *JobStatus, entityType string, limit, offset int64) ([]SyncJob, error)
	DeleteOldJobs(ctx context.Context, cutoff time.Time) (int64, error)
	GetLastSuccessfulSync(ctx context.Context, entityType string) (*time.Time, error)

	GetEntityStatus(ctx context.Context, entityType, entityID string) (*EntitySyncStatus, error)
	SaveEntityStatus(ctx context.Context, status *EntitySyncStatus) error
}

type MongoRepository struct {
	jobs     *mongo.Collection
	statuses *mongo.Collection
}

func NewRepository(db *database.MongodbDB) Repository {
	return &MongoRepository{
		jobs:     db.DB.Collection("sync_jobs"),
		statuses: db.DB.Collection("entity_sync_status"),
	}
}

func (r *MongoRepository) SaveJob(ctx context.Context, job *SyncJob) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.jobs.ReplaceOne(ctx, bson.M{"_id": job.ID}, job, opts)
	return err
}

func (r *MongoRepository) GetJob(ctx context.Context, id string) (*SyncJob, error) {
	var job SyncJob
	err := r.jobs.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *MongoRepository) ListJobs(ctx context.Context, status *JobStatus, entityType string, limit, offset int64) ([]SyncJob, error) {
	filter := bson.M{}
	if status != nil {
		filter["status"] = *status
	}
	if entityType != "" {
		filter["entity_type"] = entityType
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.jobs.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []SyncJob
	if err = cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *MongoRepository) DeleteOldJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.jobs.DeleteMany(ctx, bson.M{
		"created_at": bson.M{"$lt": cutoff},
		"status":     bson.M{"$in": []JobStatus{StatusCompleted, StatusFailed, StatusPartial, StatusCancelled}},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *MongoRepository) GetLastSuccessfulSync(ctx context.Context, entityType string) (*time.Time, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "completed_at", Value: -1}})
	filter := bson.M{
		"entity_type": entityType,
		"status":      StatusCompleted,
	}

	var job SyncJob
	err := r.jobs.FindOne(ctx, filter, opts).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return job.CompletedAt, nil
}

func (r *MongoRepository) GetEntityStatus(ctx context.Context, entityType, entityID string) (*EntitySyncStatus, error) {
	var status EntitySyncStatus
	err := r.statuses.FindOne(ctx, bson.M{
		"entity_type": entityType,
		"entity_id":   entityID,
	}).Decode(&status)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *MongoRepository) SaveEntityStatus(ctx context.Context, status *EntitySyncStatus) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.statuses.ReplaceOne(ctx, bson.M{
		"entity_type": status.EntityType,
		"entity_id":   status.EntityID,
	}, status, opts)
	return err
}
