package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"starlinks/internal/core"
)

// DefaultLockStaleAfter is how long a job lock survives a process that died
// without releasing it.
const DefaultLockStaleAfter = 2 * time.Hour

type gormJobLockRepo struct {
	db         *gorm.DB
	staleAfter time.Duration
	owner      string
	now        func() time.Time
}

func lockOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}

func (r *gormJobLockRepo) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *gormJobLockRepo) Acquire(ctx context.Context, jobID string, keys []string) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}
	now := r.clock().UTC()

	acquired := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("key IN ? AND created_at < ?", keys, now.Add(-r.staleAfter)).
			Delete(&core.JobLock{}).Error; err != nil {
			return fmt.Errorf("failed to clear stale job locks: %w", err)
		}
		for _, key := range keys {
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoNothing: true,
			}).Create(&core.JobLock{Key: key, JobID: jobID, Owner: r.owner, CreatedAt: now})
			if result.Error != nil {
				return fmt.Errorf("failed to lock %s: %w", key, result.Error)
			}
			if result.RowsAffected == 0 {
				// roll back the keys already claimed
				return errLockHeld
			}
		}
		acquired = true
		return nil
	})
	if errors.Is(err, errLockHeld) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acquired, nil
}

func (r *gormJobLockRepo) Release(ctx context.Context, jobID string) error {
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&core.JobLock{}).Error; err != nil {
		return fmt.Errorf("failed to release job %s: %w", jobID, err)
	}
	return nil
}

func (r *gormJobLockRepo) Held(ctx context.Context) ([]core.JobLock, error) {
	var out []core.JobLock
	if err := r.db.WithContext(ctx).Order("key").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list job locks: %w", err)
	}
	return out, nil
}
