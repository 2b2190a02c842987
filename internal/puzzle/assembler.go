// Package puzzle assembles one daily game per calendar date from a generated
// answer and its four partners.
package puzzle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"starlinks/internal/celebrity"
	"starlinks/internal/config"
	"starlinks/internal/core"
	"starlinks/internal/logger"
	"starlinks/internal/persistence"
	"starlinks/internal/relationship"
	"starlinks/internal/settings"
)

// Options bounds assembly.
type Options struct {
	MinBirthYear int
	MaxBirthYear int
	// ExcludeDays is how far back answers are withheld from the prompt.
	ExcludeDays int
	Timeout     time.Duration
}

// OptionsFromConfig converts the puzzle configuration section.
func OptionsFromConfig(cfg config.Puzzle) Options {
	return Options{
		MinBirthYear: cfg.MinBirthYear,
		MaxBirthYear: cfg.MaxBirthYear,
		ExcludeDays:  cfg.ExcludeDays,
		Timeout:      config.Duration(cfg.Timeout, 3*time.Minute),
	}
}

// Result describes one Assemble call.
type Result struct {
	RunID   string
	Game    *core.DailyGame
	Created bool
}

// Assembler creates the daily game for a date exactly once.
type Assembler struct {
	db       persistence.Database
	upserter *celebrity.Upserter
	linker   *relationship.Linker
	strategy Strategy
	opts     Options
}

// NewAssembler creates an assembler.
func NewAssembler(db persistence.Database, upserter *celebrity.Upserter, linker *relationship.Linker, strategy Strategy, opts Options) *Assembler {
	if opts.MinBirthYear == 0 {
		opts.MinBirthYear = core.MinBirthYear
	}
	if opts.MaxBirthYear == 0 {
		opts.MaxBirthYear = 2010
	}
	return &Assembler{
		db:       db,
		upserter: upserter,
		linker:   linker,
		strategy: strategy,
		opts:     opts,
	}
}

// Assemble creates the game for date unless one exists. An existing game is
// returned with Created false and no generation call is made. Generation and
// validation failures are returned.
func (a *Assembler) Assemble(ctx context.Context, date time.Time) (*Result, error) {
	gameDate := core.FormatGameDate(date)
	res := &Result{RunID: uuid.NewString()}
	log := loggerFor(res.RunID, gameDate, a.strategy.Name())

	existing, err := a.db.DailyGames().GetByDate(ctx, gameDate)
	switch {
	case err == nil:
		log.Info("Daily game already exists", "game_id", existing.ID)
		res.Game = existing
		return res, nil
	case !errors.Is(err, persistence.ErrNotFound):
		return nil, err
	}

	rc, err := settings.Load(ctx, a.db.Settings(), a.strategy.RequiredSettings()...)
	if err != nil {
		return nil, err
	}

	exclude, err := a.recentAnswers(ctx, date)
	if err != nil {
		return nil, err
	}

	genCtx := ctx
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	log.Info("Generating daily puzzle", "excluded", len(exclude))
	draft, err := a.strategy.Draft(genCtx, rc, DraftRequest{
		Date:         gameDate,
		MinBirthYear: a.opts.MinBirthYear,
		MaxBirthYear: a.opts.MaxBirthYear,
		Exclude:      exclude,
	})
	if err != nil {
		log.Error("Puzzle generation failed", "error", err)
		return nil, err
	}
	if err := draft.Validate(a.opts.MinBirthYear, a.opts.MaxBirthYear); err != nil {
		log.Error("Puzzle draft rejected", "error", err)
		return nil, err
	}

	game, err := a.persist(ctx, gameDate, draft)
	if err != nil {
		return nil, err
	}

	created, err := a.db.DailyGames().CreateIfAbsent(ctx, game)
	if err != nil {
		return nil, err
	}
	if !created {
		// another run stored this date first
		existing, err := a.db.DailyGames().GetByDate(ctx, gameDate)
		if err != nil {
			return nil, err
		}
		log.Warn("Daily game was created concurrently", "game_id", existing.ID)
		res.Game = existing
		return res, nil
	}

	res.Game, res.Created = game, true
	log.Info("Daily game created", "game_id", game.ID, "answer", draft.Answer.Name)
	return res, nil
}

// persist upserts the answer and links its partners, returning the unsaved game.
func (a *Assembler) persist(ctx context.Context, gameDate string, draft *Draft) (*core.DailyGame, error) {
	answer, outcome, err := a.upserter.UpsertExact(ctx, draft.Answer)
	if err != nil {
		return nil, err
	}
	if outcome == celebrity.Skipped || answer == nil {
		return nil, &ValidationError{Problems: []string{"answer was rejected by the upsert engine"}}
	}

	ids := make([]uint, 0, core.SubjectCount)
	seen := map[uint]bool{answer.ID: true}
	for _, cand := range draft.Relationships {
		partner, _, err := a.linker.Link(ctx, answer, cand)
		if err != nil {
			return nil, fmt.Errorf("failed to link %s to %s: %w", cand.Name, answer.Name, err)
		}
		if seen[partner.ID] {
			return nil, &ValidationError{Problems: []string{fmt.Sprintf("partner %s resolves to an existing subject", cand.Name)}}
		}
		seen[partner.ID] = true
		ids = append(ids, partner.ID)
	}

	game := &core.DailyGame{
		GameDate: gameDate,
		AnswerID: answer.ID,
		Type:     core.GameTypeRomance,
		Answer:   answer,
	}
	game.SetSubjects(ids)
	return game, nil
}

func (a *Assembler) recentAnswers(ctx context.Context, date time.Time) ([]string, error) {
	if a.opts.ExcludeDays <= 0 {
		return nil, nil
	}
	since := core.FormatGameDate(date.AddDate(0, 0, -a.opts.ExcludeDays))
	answers, err := a.db.DailyGames().RecentAnswers(ctx, since)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(answers))
	for _, c := range answers {
		names = append(names, c.Name)
	}
	return names, nil
}

func loggerFor(runID, date, strategy string) *slog.Logger {
	return logger.Get().With("run_id", runID, "date", date, "strategy", strategy)
}
