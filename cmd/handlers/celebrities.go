package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"starlinks/internal/celebrity"
	"starlinks/internal/config"
	"starlinks/internal/persistence"
	"starlinks/internal/settings"
)

// NewCelebritiesCmd creates the celebrities command
func NewCelebritiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "celebrities",
		Aliases: []string{"celebs"},
		Short:   "Generate, import and list celebrities",
		Long: `Generate, import and list celebrities.

Examples:
  starlinks celebrities generate --count 20
  starlinks celebrities import candidates.json
  starlinks celebrities list --missing-photo`,
	}

	cmd.AddCommand(newCelebritiesGenerateCmd())
	cmd.AddCommand(newCelebritiesImportCmd())
	cmd.AddCommand(newCelebritiesListCmd())

	return cmd
}

func newCelebritiesGenerateCmd() *cobra.Command {
	var opts celebrity.GenerateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Ask the model for new male celebrities and store them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCelebritiesGenerate(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.Count, "count", 10, "Number of celebrities to request")
	cmd.Flags().IntVar(&opts.MinYear, "min-year", 0, "Earliest birth year (default puzzle.min_birth_year)")
	cmd.Flags().IntVar(&opts.MaxYear, "max-year", 0, "Latest birth year (default puzzle.max_birth_year)")

	return cmd
}

func newCelebritiesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import a candidate list, repairing truncated JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCelebritiesImport(cmd.Context(), args[0])
		},
	}
}

func newCelebritiesListCmd() *cobra.Command {
	var (
		missing bool
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored celebrities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCelebritiesList(cmd.Context(), persistence.ListOptions{MissingPhoto: missing, Limit: limit})
		},
	}

	cmd.Flags().BoolVar(&missing, "missing-photo", false, "Only celebrities without a photo")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of rows")

	return cmd
}

func runCelebritiesGenerate(ctx context.Context, opts celebrity.GenerateOptions) error {
	cfg := config.Get()
	if opts.MinYear == 0 {
		opts.MinYear = cfg.Puzzle.MinBirthYear
	}
	if opts.MaxYear == 0 {
		opts.MaxYear = cfg.Puzzle.MaxBirthYear
	}

	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	rc, err := settings.Load(ctx, db.Settings(), settings.KeyCelebritiesSystemPrompt, settings.KeyCelebritiesUserPrompt)
	if err != nil {
		return err
	}
	gen, err := getGenerator(ctx)
	if err != nil {
		return err
	}

	upserter := celebrity.NewUpserter(db.Celebrities(), getWikipedia())
	batch, err := upserter.Generate(ctx, gen, rc, opts)
	if err != nil {
		return err
	}

	printBatch(batch)
	return nil
}

func runCelebritiesImport(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	upserter := celebrity.NewUpserter(db.Celebrities(), getWikipedia())
	batch, err := upserter.ImportText(ctx, string(data))
	if err != nil {
		return err
	}

	printBatch(batch)
	return nil
}

func runCelebritiesList(ctx context.Context, opts persistence.ListOptions) error {
	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	list, err := db.Celebrities().List(ctx, opts)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No celebrities found")
		return nil
	}

	fmt.Printf("%-6s %-32s %-6s %-8s %s\n", "ID", "Name", "Born", "Gender", "Photo")
	for _, c := range list {
		photo := c.PhotoURL
		if photo == "" {
			photo = "-"
		}
		fmt.Printf("%-6d %-32s %-6d %-8s %s\n", c.ID, c.Name, c.BirthYear, c.Gender, photo)
	}
	return nil
}

func printBatch(batch celebrity.Batch) {
	fmt.Printf("📊 %s\n", batch.Stats.String())
	for _, c := range batch.Celebrities {
		fmt.Printf("  %-6d %s (%d)\n", c.ID, c.Name, c.BirthYear)
	}
}
