package repositories

import (
	"context"
	"time"

	"example.com/backstage/allegro/internal/models"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobRepository persists processor schedule state
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Get returns the job by processor name
func (r *JobRepository) Get(ctx context.Context, name string) (*models.ProcessorJob, error) {
	var job models.ProcessorJob
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&job).Error; err != nil {
		return nil, notFound(err, "failed to get processor job")
	}
	return &job, nil
}

// List returns every known job
func (r *JobRepository) List(ctx context.Context) ([]models.ProcessorJob, error) {
	var jobs []models.ProcessorJob
	if err := r.db.WithContext(ctx).Order("name").Find(&jobs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list processor jobs")
	}
	return jobs, nil
}

// MarkPending records that the job is armed to run at next
func (r *JobRepository) MarkPending(ctx context.Context, name, owner string, next time.Time) error {
	return r.upsert(ctx, &models.ProcessorJob{
		Name:      name,
		State:     models.JobStatePending,
		Owner:     owner,
		NextRunAt: &next,
	}, "state", "owner", "next_run_at", "updated_at")
}

// MarkRunning records that the job started executing at
func (r *JobRepository) MarkRunning(ctx context.Context, name, owner string, at time.Time) error {
	return r.upsert(ctx, &models.ProcessorJob{
		Name:      name,
		State:     models.JobStateRunning,
		Owner:     owner,
		LastRunAt: &at,
	}, "state", "owner", "last_run_at", "updated_at")
}

// MarkFinished records the end of a run; failed jobs are not re-armed
func (r *JobRepository) MarkFinished(ctx context.Context, name string, state models.JobState, lastError string) error {
	err := r.db.WithContext(ctx).
		Model(&models.ProcessorJob{}).
		Where("name = ?", name).
		Updates(map[string]interface{}{
			"state":      state,
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return errors.Wrap(err, "failed to finish processor job")
	}
	return nil
}

func (r *JobRepository) upsert(ctx context.Context, job *models.ProcessorJob, columns ...string) error {
	job.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(job).Error
	if err != nil {
		return errors.Wrapf(err, "failed to save processor job %s", job.Name)
	}
	return nil
}
