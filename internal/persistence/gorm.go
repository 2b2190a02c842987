package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"starlinks/internal/config"
	"starlinks/internal/core"
	"starlinks/internal/logger"
)

// GormDB implements Database on top of gorm
type GormDB struct {
	db            *gorm.DB
	celebrities   CelebrityRepository
	relationships RelationshipRepository
	dailyGames    DailyGameRepository
	settings      SettingsRepository
	jobLocks      *gormJobLockRepo
}

// Models lists every table managed by Migrate.
var Models = []any{
	&core.Celebrity{},
	&core.CelebrityRelationship{},
	&core.DailyGame{},
	&core.Setting{},
	&core.JobLock{},
}

// Open connects to the configured database.
func Open(cfg config.Database) (*GormDB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dsn, err := sqliteDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}
	if cfg.Driver == "postgres" {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
	} else {
		// one writer keeps sqlite free of "database is locked"
		sqlDB.SetMaxOpenConns(1)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Debug("database opened", "driver", cfg.Driver)
	return NewGormDB(db), nil
}

// OpenSQLite opens (creating if needed) a sqlite file at path.
func OpenSQLite(path string) (*GormDB, error) {
	return Open(config.Database{Driver: "sqlite", DSN: path, LogLevel: "silent"})
}

// NewGormDB wraps an existing gorm connection.
func NewGormDB(db *gorm.DB) *GormDB {
	return &GormDB{
		db:            db,
		celebrities:   &gormCelebrityRepo{db: db},
		relationships: &gormRelationshipRepo{db: db},
		dailyGames:    &gormDailyGameRepo{db: db},
		settings:      &gormSettingsRepo{db: db},
		jobLocks:      &gormJobLockRepo{db: db, staleAfter: DefaultLockStaleAfter, owner: lockOwner()},
	}
}

func (g *GormDB) Celebrities() CelebrityRepository      { return g.celebrities }
func (g *GormDB) Relationships() RelationshipRepository { return g.relationships }
func (g *GormDB) DailyGames() DailyGameRepository       { return g.dailyGames }
func (g *GormDB) Settings() SettingsRepository          { return g.settings }
func (g *GormDB) JobLocks() JobLockRepository           { return g.jobLocks }

// SetLockStaleAfter changes how old a job lock must be before another
// process may take it over.
func (g *GormDB) SetLockStaleAfter(d time.Duration) {
	if d > 0 {
		g.jobLocks.staleAfter = d
	}
}

// DB exposes the gorm handle for callers that need ad hoc queries.
func (g *GormDB) DB() *gorm.DB { return g.db }

// Migrate creates or updates every table in Models.
func (g *GormDB) Migrate(ctx context.Context) error {
	if err := g.db.WithContext(ctx).AutoMigrate(Models...); err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	logger.Info("database schema migrated", "tables", len(Models))
	return nil
}

// TableStatus reports whether each managed table exists.
func (g *GormDB) TableStatus(ctx context.Context) map[string]bool {
	status := make(map[string]bool, len(Models))
	migrator := g.db.WithContext(ctx).Migrator()
	for _, m := range Models {
		stmt := &gorm.Statement{DB: g.db}
		if err := stmt.Parse(m); err != nil {
			continue
		}
		status[stmt.Schema.Table] = migrator.HasTable(m)
	}
	return status
}

// Ping checks that the database is reachable.
func (g *GormDB) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (g *GormDB) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// sqliteDSN enables foreign keys and creates the parent directory of file DSNs.
func sqliteDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", fmt.Errorf("sqlite DSN is empty")
	}
	if !strings.Contains(dsn, ":memory:") {
		path := strings.TrimPrefix(dsn, "file:")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn, nil
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=1", nil
}

// slogWriter forwards gorm's printf-style log lines to the application logger.
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "gorm")
}

func newGormLogger(level string) gormlogger.Interface {
	lvl := gormlogger.Warn
	switch strings.ToLower(level) {
	case "silent":
		lvl = gormlogger.Silent
	case "error":
		lvl = gormlogger.Error
	case "info", "debug":
		lvl = gormlogger.Info
	}
	return gormlogger.New(slogWriter{}, gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
