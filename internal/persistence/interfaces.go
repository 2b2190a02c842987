// Package persistence provides gorm-backed storage for celebrities,
// relationships, daily games, settings and job locks.
package persistence

import (
	"context"
	"encoding/json"

	"starlinks/internal/core"
)

// CelebrityRepository handles celebrity persistence operations
type CelebrityRepository interface {
	// Get retrieves a celebrity by ID
	Get(ctx context.Context, id uint) (*core.Celebrity, error)

	// FindByName retrieves the oldest celebrity whose name matches case-insensitively
	FindByName(ctx context.Context, name string) (*core.Celebrity, error)

	// FindByNameAndBirthYear narrows FindByName to one birth year
	FindByNameAndBirthYear(ctx context.Context, name string, birthYear int) (*core.Celebrity, error)

	// Create inserts a new celebrity
	Create(ctx context.Context, celebrity *core.Celebrity) error

	// Update saves every column of an existing celebrity
	Update(ctx context.Context, celebrity *core.Celebrity) error

	// UpdatePhotoURL sets photo_url only
	UpdatePhotoURL(ctx context.Context, id uint, photoURL string) error

	// List retrieves celebrities matching opts
	List(ctx context.Context, opts ListOptions) ([]core.Celebrity, error)

	// Delete removes a celebrity and every relationship that references it
	Delete(ctx context.Context, id uint) error
}

// RelationshipRepository handles celebrity relationship persistence operations
type RelationshipRepository interface {
	// CreateIfAbsent links a (answer side) and b (partner side) unless the
	// unordered pair already exists. It reports whether a row was inserted.
	CreateIfAbsent(ctx context.Context, a, b uint, citation string) (bool, error)

	// Exists reports whether the unordered pair is linked
	Exists(ctx context.Context, a, b uint) (bool, error)

	// ListForCelebrity retrieves relationships touching id with both sides preloaded
	ListForCelebrity(ctx context.Context, id uint) ([]core.CelebrityRelationship, error)

	// Count returns the number of stored relationships
	Count(ctx context.Context) (int64, error)
}

// DailyGameRepository handles daily game persistence operations
type DailyGameRepository interface {
	// GetByDate retrieves the game for a YYYY-MM-DD date with its answer preloaded
	GetByDate(ctx context.Context, date string) (*core.DailyGame, error)

	// CreateIfAbsent inserts game unless its date already has one
	CreateIfAbsent(ctx context.Context, game *core.DailyGame) (bool, error)

	// Subjects retrieves the four subjects of game in display order
	Subjects(ctx context.Context, game *core.DailyGame) ([]core.Celebrity, error)

	// RecentAnswers retrieves answers of games dated on or after since
	RecentAnswers(ctx context.Context, since string) ([]core.Celebrity, error)

	// List retrieves the most recent games dated on or before through;
	// an empty through applies no bound
	List(ctx context.Context, through string, limit int) ([]core.DailyGame, error)
}

// SettingsRepository handles the key to JSON settings table
type SettingsRepository interface {
	// Get retrieves the raw JSON value of key
	Get(ctx context.Context, key string) (json.RawMessage, error)

	// All retrieves every setting
	All(ctx context.Context) (map[string]json.RawMessage, error)

	// Set inserts or replaces key
	Set(ctx context.Context, key string, value json.RawMessage) error

	// SetIfAbsent inserts key only when missing and reports whether it did
	SetIfAbsent(ctx context.Context, key string, value json.RawMessage) (bool, error)
}

// JobLockRepository claims job keys shared by every process on the database
type JobLockRepository interface {
	// Acquire claims every key for jobID, or none of them. It reports false
	// when another job holds one of the keys. Locks older than the stale
	// threshold are taken over.
	Acquire(ctx context.Context, jobID string, keys []string) (bool, error)

	// Release drops every key held by jobID
	Release(ctx context.Context, jobID string) error

	// Held lists the keys currently claimed
	Held(ctx context.Context) ([]core.JobLock, error)
}

// Database aggregates the repositories behind one connection
type Database interface {
	Celebrities() CelebrityRepository
	Relationships() RelationshipRepository
	DailyGames() DailyGameRepository
	Settings() SettingsRepository
	JobLocks() JobLockRepository

	// Migrate creates or updates the schema
	Migrate(ctx context.Context) error

	// Ping checks the connection
	Ping(ctx context.Context) error

	// Close releases the underlying connection pool
	Close() error
}

// ListOptions filters celebrity listings
type ListOptions struct {
	IDs          []uint
	MissingPhoto bool
	Limit        int
	Offset       int
}
