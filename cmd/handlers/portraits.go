package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"starlinks/internal/config"
	"starlinks/internal/jobs"
	"starlinks/internal/portrait"
)

// NewPortraitsCmd creates the portraits command
func NewPortraitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portraits",
		Short: "Regenerate celebrity portraits",
		Long: `Regenerate celebrity portraits with the external image generator.
Failed celebrities are retried with an alternate prompt variant and finally
fall back to the encyclopedia page image.

Examples:
  starlinks portraits generate --missing
  starlinks portraits generate --id 12 --id 40 --force`,
	}

	cmd.AddCommand(newPortraitsGenerateCmd())

	return cmd
}

func newPortraitsGenerateCmd() *cobra.Command {
	var (
		ids  []string
		opts portrait.RunOptions
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate portraits for selected celebrities",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseIDs(ids)
			if err != nil {
				return err
			}
			opts.IDs = parsed
			return runPortraitsGenerate(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringSliceVar(&ids, "id", nil, "Celebrity id (repeatable or comma separated)")
	cmd.Flags().BoolVar(&opts.Missing, "missing", false, "Select celebrities without a photo")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Remove existing portrait files first")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of celebrities")

	return cmd
}

func runPortraitsGenerate(ctx context.Context, opts portrait.RunOptions) error {
	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	service := portrait.NewServiceFromConfig(config.Get().Portraits, db.Celebrities(), getWikipedia())
	celebrities, err := service.Select(ctx, opts)
	if err != nil {
		return err
	}
	if len(celebrities) == 0 {
		fmt.Println("No celebrities selected")
		return nil
	}

	keys := make([]string, 0, len(celebrities))
	for _, c := range celebrities {
		keys = append(keys, "portrait:"+strconv.FormatUint(uint64(c.ID), 10))
	}

	var report *portrait.Report
	_, runErr := runJob(ctx, db, &jobs.Job{Name: "portraits", Keys: keys}, func(ctx context.Context) error {
		var err error
		report, err = service.Run(ctx, celebrities, opts.Force)
		return err
	})

	if report != nil {
		fmt.Printf("📊 Run %s: requested %d, generated %d, updated %d\n", report.RunID, report.Requested, report.Generated, report.Updated)
		for _, name := range report.Missing {
			fmt.Printf("  ❌ %s\n", name)
		}
	}
	return runErr
}
