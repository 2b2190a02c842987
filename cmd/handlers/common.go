package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"starlinks/internal/config"
	"starlinks/internal/core"
	"starlinks/internal/jobs"
	"starlinks/internal/llm"
	"starlinks/internal/persistence"
	"starlinks/internal/wikipedia"
)

func openDatabase() (*persistence.GormDB, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := persistence.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// getDatabase opens the configured database and migrates it.
func getDatabase(ctx context.Context) (*persistence.GormDB, error) {
	db, err := openDatabase()
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func getGenerator(ctx context.Context) (llm.Generator, error) {
	client, err := llm.New(ctx, config.Get().AI)
	if err != nil {
		return nil, fmt.Errorf("failed to create text generation client: %w", err)
	}
	return client, nil
}

func getWikipedia() *wikipedia.Client {
	return wikipedia.NewClient(config.Get().Wikipedia)
}

// newQueue creates a queue whose job keys are also claimed in db, so two
// processes cannot run the same key at once.
func newQueue(db *persistence.GormDB) *jobs.Queue {
	cfg := config.Get().Jobs
	db.SetLockStaleAfter(config.Duration(cfg.LockTTL, persistence.DefaultLockStaleAfter))
	return jobs.NewQueue(cfg.Workers, cfg.QueueSize, jobs.WithLocker(db.JobLocks()))
}

// runJob submits fn to a fresh queue, waits for it and stops the queue.
func runJob(ctx context.Context, db *persistence.GormDB, job *jobs.Job, fn jobs.Func) (jobs.Result, error) {
	return runJobOn(ctx, newQueue(db), job, fn)
}

// runJobOn cancels the running job when ctx ends.
func runJobOn(ctx context.Context, q *jobs.Queue, job *jobs.Job, fn jobs.Func) (jobs.Result, error) {
	defer func() { _ = q.Stop(ctx) }()

	id, err := q.SubmitJob(job, fn)
	if err != nil {
		return jobs.Result{}, err
	}
	res, err := q.Wait(ctx, id)
	if err != nil {
		return res, err
	}
	return res, res.Err
}

// parseDate accepts YYYY-MM-DD, "today" or an empty string (today, UTC).
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "today" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(core.GameDateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

// parseIDs accepts ids as repeated flags or comma separated lists.
func parseIDs(values []string) ([]uint, error) {
	var ids []uint
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseUint(part, 10, 64)
			if err != nil || id == 0 {
				return nil, fmt.Errorf("invalid celebrity id %q", part)
			}
			ids = append(ids, uint(id))
		}
	}
	return ids, nil
}
