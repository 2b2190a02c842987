package portrait

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"starlinks/internal/config"
	"starlinks/internal/core"
	"starlinks/internal/logger"
	"starlinks/internal/persistence"
)

// PublicURL maps a saved file under outputDir to the URL served under prefix.
// Files outside outputDir keep only their base name.
func PublicURL(path, outputDir, prefix string) string {
	rel, err := filepath.Rel(outputDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	return strings.TrimRight(prefix, "/") + "/" + filepath.ToSlash(rel)
}

// Apply stores the public URL of every path as the celebrity's photo_url and
// returns how many rows were updated.
func Apply(ctx context.Context, repo persistence.CelebrityRepository, paths map[uint]string, outputDir, prefix string) (int, error) {
	ids := make([]uint, 0, len(paths))
	for id := range paths {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var (
		updated int
		errs    []error
	)
	for _, id := range ids {
		url := PublicURL(paths[id], outputDir, prefix)
		if err := repo.UpdatePhotoURL(ctx, id, url); err != nil {
			errs = append(errs, err)
			continue
		}
		updated++
	}
	return updated, errors.Join(errs...)
}

// ErrNoSelection is returned by Select when neither ids nor the missing
// filter were given.
var ErrNoSelection = errors.New("either celebrity ids or the missing filter is required")

// RunOptions selects the celebrities of one regeneration run.
type RunOptions struct {
	IDs     []uint
	Missing bool
	Force   bool
	Limit   int
}

// Report summarizes one run.
type Report struct {
	RunID     string
	Requested int
	Generated int
	Updated   int
	Missing   []string
}

// Service selects celebrities, runs the orchestrator and stores the results.
type Service struct {
	repo   persistence.CelebrityRepository
	orch   *Orchestrator
	outDir string
	prefix string
	// MaxSide bounds stored portraits; zero keeps files as generated.
	MaxSide int
}

// NewService creates a service.
func NewService(repo persistence.CelebrityRepository, orch *Orchestrator, outputDir, publicPrefix string) *Service {
	return &Service{repo: repo, orch: orch, outDir: outputDir, prefix: publicPrefix}
}

// NewServiceFromConfig wires the exec runner and fallback from configuration.
func NewServiceFromConfig(cfg config.Portraits, repo persistence.CelebrityRepository, fallback Fallback) *Service {
	runner := &ExecRunner{
		Command: cfg.Command,
		Args:    cfg.Args,
		Timeout: config.Duration(cfg.Timeout, 10*time.Minute),
	}
	orch := NewOrchestrator(runner, fallback, Options{
		OutputDir:            cfg.OutputDir,
		MaxAttempts:          cfg.MaxAttempts,
		VariantSwitchAttempt: cfg.VariantSwitchAttempt,
		VariantPause:         config.Duration(cfg.VariantPause, DefaultVariantPause),
	})
	svc := NewService(repo, orch, cfg.OutputDir, cfg.PublicPrefix)
	svc.MaxSide = cfg.MaxSide
	return svc
}

// Select returns the celebrities a run with opts would process.
func (s *Service) Select(ctx context.Context, opts RunOptions) ([]core.Celebrity, error) {
	if len(opts.IDs) == 0 && !opts.Missing {
		return nil, ErrNoSelection
	}
	return s.repo.List(ctx, persistence.ListOptions{
		IDs:          opts.IDs,
		MissingPhoto: opts.Missing,
		Limit:        opts.Limit,
	})
}

// Run regenerates portraits for the selected celebrities.
func (s *Service) Run(ctx context.Context, celebrities []core.Celebrity, force bool) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), Requested: len(celebrities)}
	if len(celebrities) == 0 {
		return report, nil
	}
	log := logger.Get().With("run_id", report.RunID)
	log.Info("Starting portrait run", "celebrities", len(celebrities), "force", force)

	subjects := make([]Subject, 0, len(celebrities))
	for _, c := range celebrities {
		subjects = append(subjects, SubjectFromCelebrity(c))
	}

	paths, runErr := s.orch.Generate(ctx, subjects, force)
	if dropped := s.normalize(paths, log, subjects...); len(dropped) > 0 && ctx.Err() == nil {
		recovered := s.orch.FetchFallback(ctx, dropped)
		s.normalize(recovered, log)
		for id, path := range recovered {
			paths[id] = path
		}
		log.Info("Retried unusable portraits through fallback", "dropped", len(dropped), "recovered", len(recovered))
	}
	report.Generated = len(paths)
	for _, c := range celebrities {
		if _, ok := paths[c.ID]; !ok {
			report.Missing = append(report.Missing, c.Name)
		}
	}

	updated, err := Apply(ctx, s.repo, paths, s.outDir, s.prefix)
	report.Updated = updated
	if err != nil {
		log.Error("Failed to store some portraits", "error", err)
	}
	log.Info("Portrait run finished", "generated", report.Generated, "updated", report.Updated, "missing", len(report.Missing))
	return report, errors.Join(runErr, err)
}

// normalize drops every path that is not a readable image and returns the
// subjects it dropped.
func (s *Service) normalize(paths map[uint]string, log *slog.Logger, subjects ...Subject) []Subject {
	byID := make(map[uint]Subject, len(subjects))
	for _, subject := range subjects {
		byID[subject.ID] = subject
	}

	var dropped []Subject
	for id, path := range paths {
		resized, err := Normalize(path, s.MaxSide)
		if err != nil {
			log.Warn("Discarding unusable portrait", "celebrity_id", id, "path", path, "error", err)
			_ = os.Remove(path)
			delete(paths, id)
			if subject, ok := byID[id]; ok {
				dropped = append(dropped, subject)
			}
			continue
		}
		if resized {
			log.Debug("Resized portrait", "celebrity_id", id, "max_side", s.MaxSide)
		}
	}
	return dropped
}
