package repository

import (
	"context"
	"errors"
	"time"

	"notiflow/internal/model"

	"gorm.io/gorm"
)

type JobInterface interface {
	GetActive(ctx context.Context, businessID int64, naturalKey string) (*model.QueuedJob, error)
	Create(ctx context.Context, job *model.QueuedJob) error
	Cancel(ctx context.Context, businessID int64, naturalKey, reason string, at time.Time) (bool, error)
	FetchDue(ctx context.Context, now time.Time, limit int) ([]model.QueuedJob, error)
	ClaimFire(ctx context.Context, id int64) (bool, error)
	WithTx(tx *gorm.DB) JobInterface
}

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// GetActive returns the live (non-cancelled) job for the key. A racing
// enqueue that slips past this read is stopped by the uniq_live_job index;
// Create then returns gorm.ErrDuplicatedKey for the caller to resolve.
func (r *JobRepository) GetActive(ctx context.Context, businessID int64, naturalKey string) (*model.QueuedJob, error) {
	var job model.QueuedJob
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND natural_key = ? AND active IS NOT NULL", businessID, naturalKey).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) Create(ctx context.Context, job *model.QueuedJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Cancel flips pending → cancelled and clears the live marker so a later
// enqueue for the same key is free to create a fresh row. A job that already
// fired (or was already cancelled) affects zero rows and reports false, not
// an error.
func (r *JobRepository) Cancel(ctx context.Context, businessID int64, naturalKey, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.QueuedJob{}).
		Where("business_id = ? AND natural_key = ? AND status = ?", businessID, naturalKey, model.JobPending).
		Updates(map[string]any{
			"status":        model.JobCancelled,
			"active":        nil,
			"cancel_reason": reason,
			"cancelled_at":  at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *JobRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]model.QueuedJob, error) {
	var jobs []model.QueuedJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", model.JobPending, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClaimFire transitions pending → fired. Exactly one sweeper tick wins the
// claim; the loser sees zero rows affected and skips the job.
func (r *JobRepository) ClaimFire(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.QueuedJob{}).
		Where("id = ? AND status = ?", id, model.JobPending).
		Update("status", model.JobFired)
	return res.RowsAffected > 0, res.Error
}

func (r *JobRepository) WithTx(tx *gorm.DB) JobInterface {
	return &JobRepository{db: tx}
}
