package repository

import (
	"context"
	"time"

	statsdomain "inboxstats-backend/internal/stats/domain"

	"gorm.io/gorm"
)

// LoadRunRepository persists backfill run history.
type LoadRunRepository interface {
	Create(ctx context.Context, run *statsdomain.LoadRun) error
	Update(ctx context.Context, run *statsdomain.LoadRun) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*statsdomain.LoadRun, error)
	// FailStale marks running runs started before the cutoff as failed.
	FailStale(ctx context.Context, startedBefore time.Time, reason string) (int64, error)
}

type loadRunRepository struct {
	db *gorm.DB
}

func NewLoadRunRepository(db *gorm.DB) LoadRunRepository {
	return &loadRunRepository{db: db}
}

func (r *loadRunRepository) Create(ctx context.Context, run *statsdomain.LoadRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *loadRunRepository) Update(ctx context.Context, run *statsdomain.LoadRun) error {
	return r.db.WithContext(ctx).Model(&statsdomain.LoadRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":      run.Status,
			"pages":       run.Pages,
			"before":      run.Before,
			"newest":      run.Newest,
			"error":       run.Error,
			"finished_at": run.FinishedAt,
		}).Error
}

// ListByUser returns the most recent runs first.
func (r *loadRunRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*statsdomain.LoadRun, error) {
	var runs []*statsdomain.LoadRun
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *loadRunRepository) FailStale(ctx context.Context, startedBefore time.Time, reason string) (int64, error) {
	result := r.db.WithContext(ctx).Model(&statsdomain.LoadRun{}).
		Where("status = ? AND started_at < ?", statsdomain.LoadRunRunning, startedBefore).
		Updates(map[string]any{
			"status":      statsdomain.LoadRunFailed,
			"error":       reason,
			"finished_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}
