// Package portrait drives the external image generation process with
// bounded retries and an encyclopedia image fallback.
package portrait

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"starlinks/internal/core"
	"starlinks/internal/logger"
)

// Defaults for Options fields left at zero.
const (
	DefaultMaxAttempts          = 4
	DefaultVariantSwitchAttempt = 3
	DefaultVariantPause         = 15 * time.Second
)

// Prompt variants understood by the generation process.
const (
	PrimaryVariant   = 1
	AlternateVariant = 2
)

// Subject is an entity that needs a portrait.
type Subject struct {
	ID        uint
	Name      string
	BirthYear int
	Tagline   string
}

// SubjectFromCelebrity copies the fields the generator needs.
func SubjectFromCelebrity(c core.Celebrity) Subject {
	return Subject{ID: c.ID, Name: c.Name, BirthYear: c.BirthYear, Tagline: c.Tagline}
}

// Fallback fetches a portrait for the named celebrity from another source
// into dir.
type Fallback interface {
	FetchPortrait(ctx context.Context, name string, birthYear int, dir string) (string, error)
}

// Options configures an Orchestrator.
type Options struct {
	OutputDir            string
	MaxAttempts          int
	VariantSwitchAttempt int
	VariantPause         time.Duration
}

// Orchestrator runs the attempt loop for a batch. It does not touch storage;
// callers persist the returned paths.
type Orchestrator struct {
	runner   Runner
	fallback Fallback
	opts     Options
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator. A nil fallback disables the
// post-loop fallback.
func NewOrchestrator(runner Runner, fallback Fallback, opts Options) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.VariantSwitchAttempt <= 0 {
		opts.VariantSwitchAttempt = DefaultVariantSwitchAttempt
	}
	if opts.VariantPause < 0 {
		opts.VariantPause = 0
	}
	return &Orchestrator{
		runner:   runner,
		fallback: fallback,
		opts:     opts,
		sleep:    sleepContext,
	}
}

// VariantFor returns the prompt variant used on attempt.
func (o *Orchestrator) VariantFor(attempt int) int {
	if attempt < o.opts.VariantSwitchAttempt {
		return PrimaryVariant
	}
	return AlternateVariant
}

type subjectKey struct {
	name      string
	birthYear int
}

// batchState is the loop state: the entities still pending, the attempt
// about to run and the paths collected so far.
type batchState struct {
	pending []Subject
	attempt int
	paths   map[uint]string
}

// Generate returns a path for every subject that got an image, keyed by
// subject ID. With force set, existing files for the batch are removed first.
// The error is non-nil only when ctx ends; the map then holds partial results.
func (o *Orchestrator) Generate(ctx context.Context, subjects []Subject, force bool) (map[uint]string, error) {
	st := &batchState{pending: dedupe(subjects), paths: make(map[uint]string)}
	if len(st.pending) == 0 {
		return st.paths, nil
	}
	if force {
		o.removeExisting(st.pending)
	}

	for st.attempt = 1; st.attempt <= o.opts.MaxAttempts && len(st.pending) > 0; st.attempt++ {
		variant := o.VariantFor(st.attempt)
		if st.attempt > 1 && st.attempt == o.opts.VariantSwitchAttempt && o.opts.VariantPause > 0 {
			logger.Info("Pausing before switching prompt variant", "attempt", st.attempt, "pause", o.opts.VariantPause)
			if err := o.sleep(ctx, o.opts.VariantPause); err != nil {
				return st.paths, err
			}
		}

		logger.Info("Generating portraits", "attempt", st.attempt, "variant", variant, "pending", len(st.pending))
		out, err := o.runner.Run(ctx, o.request(st.pending, variant))
		if err != nil {
			if ctx.Err() != nil {
				return st.paths, ctx.Err()
			}
			logger.Error("Portrait attempt failed", err, "attempt", st.attempt, "variant", variant)
			continue
		}

		st.pending = collect(st.pending, out, st.paths)
		for _, f := range out.Failed {
			logger.Warn("Portrait generation failed", "celebrity", f.Name, "birth_year", f.BirthYear, "attempt", st.attempt, "error", f.Error)
		}
	}

	if len(st.pending) > 0 {
		o.applyFallback(ctx, st)
	}
	logger.Info("Portrait batch finished", "generated", len(st.paths), "missing", len(st.pending))
	return st.paths, ctx.Err()
}

func (o *Orchestrator) request(pending []Subject, variant int) Request {
	req := Request{OutputDir: o.opts.OutputDir, PromptVariant: variant}
	for _, s := range pending {
		req.Celebrities = append(req.Celebrities, RequestCelebrity{
			Name:      s.Name,
			BirthYear: s.BirthYear,
			Tagline:   s.Tagline,
			FileStem:  core.PortraitStem(s.Name, s.BirthYear),
		})
	}
	return req
}

// collect records generated paths matched by exact (name, birth_year) and
// returns the subjects that are still pending.
func collect(pending []Subject, out *Output, paths map[uint]string) []Subject {
	generated := make(map[subjectKey]string, len(out.Generated))
	for _, g := range out.Generated {
		if g.Path != "" {
			generated[subjectKey{g.Name, g.BirthYear}] = g.Path
		}
	}

	var still []Subject
	for _, s := range pending {
		if path, ok := generated[subjectKey{s.Name, s.BirthYear}]; ok {
			paths[s.ID] = path
			continue
		}
		still = append(still, s)
	}
	return still
}

func (o *Orchestrator) applyFallback(ctx context.Context, st *batchState) {
	if o.fallback == nil {
		return
	}
	var still []Subject
	for _, s := range st.pending {
		path, err := o.fallback.FetchPortrait(ctx, s.Name, s.BirthYear, o.opts.OutputDir)
		if err != nil {
			logger.Warn("Portrait fallback failed", "celebrity", s.Name, "error", err)
			still = append(still, s)
			continue
		}
		st.paths[s.ID] = path
	}
	st.pending = still
}

// FetchFallback fetches portraits for subjects from the fallback source only,
// for images that came back from a run but turned out to be unusable.
func (o *Orchestrator) FetchFallback(ctx context.Context, subjects []Subject) map[uint]string {
	st := &batchState{pending: dedupe(subjects), paths: make(map[uint]string)}
	o.applyFallback(ctx, st)
	return st.paths
}

// removeExisting deletes cached images for the batch across every known
// extension.
func (o *Orchestrator) removeExisting(subjects []Subject) {
	for _, s := range subjects {
		for _, path := range CandidatePaths(o.opts.OutputDir, s.Name, s.BirthYear) {
			err := os.Remove(path)
			switch {
			case err == nil:
				logger.Debug("Removed existing portrait", "path", path)
			case !errors.Is(err, os.ErrNotExist):
				logger.Warn("Failed to remove existing portrait", "path", path, "error", err)
			}
		}
	}
}

// CandidatePaths lists the files a portrait of name and birthYear may occupy
// in dir.
func CandidatePaths(dir, name string, birthYear int) []string {
	stem := core.PortraitStem(name, birthYear)
	paths := make([]string, 0, len(core.ImageExtensions))
	for _, ext := range core.ImageExtensions {
		paths = append(paths, filepath.Join(dir, fmt.Sprintf("%s.%s", stem, ext)))
	}
	return paths
}

func dedupe(subjects []Subject) []Subject {
	seen := make(map[uint]bool, len(subjects))
	out := make([]Subject, 0, len(subjects))
	for _, s := range subjects {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
