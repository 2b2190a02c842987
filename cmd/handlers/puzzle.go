package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"starlinks/internal/celebrity"
	"starlinks/internal/config"
	"starlinks/internal/core"
	"starlinks/internal/jobs"
	"starlinks/internal/persistence"
	"starlinks/internal/puzzle"
	"starlinks/internal/relationship"
)

// NewPuzzleCmd creates the puzzle command
func NewPuzzleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "puzzle",
		Short: "Assemble and inspect daily puzzles",
		Long: `Assemble and inspect daily puzzles. Each calendar date has at most one
puzzle; generating a date that already has one returns it unchanged.

Examples:
  starlinks puzzle generate
  starlinks puzzle generate --date 2025-06-01 --strategy legacy
  starlinks puzzle show --date 2025-06-01
  starlinks puzzle list`,
	}

	cmd.AddCommand(newPuzzleGenerateCmd())
	cmd.AddCommand(newPuzzleShowCmd())
	cmd.AddCommand(newPuzzleListCmd())

	return cmd
}

func newPuzzleGenerateCmd() *cobra.Command {
	var (
		date     string
		strategy string
		attempts int
		backoff  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create the puzzle for a date unless it exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			return runPuzzleGenerate(cmd.Context(), day, strategy, attempts, backoff)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Game date YYYY-MM-DD (default today, UTC)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Generation strategy: combined or legacy (default puzzle.strategy)")
	cmd.Flags().IntVar(&attempts, "attempts", 1, "Tries before giving up")
	cmd.Flags().DurationVar(&backoff, "backoff", 5*time.Second, "Pause between tries")

	return cmd
}

func newPuzzleShowCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the puzzle of a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			return runPuzzleShow(cmd.Context(), core.FormatGameDate(day))
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Game date YYYY-MM-DD (default today, UTC)")

	return cmd
}

func newPuzzleListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent puzzles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPuzzleList(cmd.Context(), limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 14, "Maximum number of puzzles")

	return cmd
}

func runPuzzleGenerate(ctx context.Context, date time.Time, strategyName string, attempts int, backoff time.Duration) error {
	cfg := config.Get()
	if strategyName == "" {
		strategyName = cfg.Puzzle.Strategy
	}

	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	gen, err := getGenerator(ctx)
	if err != nil {
		return err
	}
	strategy, err := puzzle.NewStrategy(strategyName, gen)
	if err != nil {
		return err
	}

	upserter := celebrity.NewUpserter(db.Celebrities(), getWikipedia())
	assembler := puzzle.NewAssembler(db, upserter, relationship.NewLinker(upserter, db), strategy, puzzle.OptionsFromConfig(cfg.Puzzle))

	gameDate := core.FormatGameDate(date)
	var result *puzzle.Result
	job := &jobs.Job{
		Name:     "puzzle",
		Keys:     []string{"puzzle:" + gameDate},
		Attempts: attempts,
		Backoff:  backoff,
	}
	if _, err := runJob(ctx, db, job, func(ctx context.Context) error {
		res, err := assembler.Assemble(ctx, date)
		if err != nil {
			return err
		}
		result = res
		return nil
	}); err != nil {
		return fmt.Errorf("failed to assemble puzzle for %s: %w", gameDate, err)
	}

	if result.Created {
		fmt.Printf("✅ Created puzzle %d for %s (run %s)\n", result.Game.ID, gameDate, result.RunID)
	} else {
		fmt.Printf("ℹ️  Puzzle %d for %s already exists\n", result.Game.ID, gameDate)
	}
	return printGame(ctx, db.DailyGames(), result.Game)
}

func runPuzzleShow(ctx context.Context, gameDate string) error {
	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	game, err := db.DailyGames().GetByDate(ctx, gameDate)
	if err != nil {
		return err
	}
	return printGame(ctx, db.DailyGames(), game)
}

func runPuzzleList(ctx context.Context, limit int) error {
	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	games, err := db.DailyGames().List(ctx, "", limit)
	if err != nil {
		return err
	}
	if len(games) == 0 {
		fmt.Println("No puzzles yet")
		return nil
	}
	for _, g := range games {
		answer := "?"
		if g.Answer != nil {
			answer = g.Answer.Name
		}
		fmt.Printf("%s  #%-5d %s\n", g.GameDate, g.ID, answer)
	}
	return nil
}

func printGame(ctx context.Context, games persistence.DailyGameRepository, game *core.DailyGame) error {
	subjects, err := games.Subjects(ctx, game)
	if err != nil {
		return err
	}

	fmt.Printf("\n🎯 %s (%s)\n", game.GameDate, game.Type)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	for i, c := range subjects {
		fmt.Printf("  %d. %-32s %d\n", i+1, c.Name, c.BirthYear)
	}
	if game.Answer != nil {
		fmt.Printf("\n  Answer: %s (%d)\n", game.Answer.Name, game.Answer.BirthYear)
	}
	return nil
}
