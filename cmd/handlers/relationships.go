package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"starlinks/internal/celebrity"
	"starlinks/internal/core"
	"starlinks/internal/jsonrepair"
	"starlinks/internal/persistence"
	"starlinks/internal/relationship"
	"starlinks/internal/settings"
)

// NewRelationshipsCmd creates the relationships command
func NewRelationshipsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relationships",
		Short: "Generate, import and list documented relationships",
		Long: `Generate, import and list documented relationships between celebrities.
Links are unordered: (A, B) and (B, A) are the same relationship.

Examples:
  starlinks relationships generate --celebrity "Jon Doe"
  starlinks relationships import partners.json
  starlinks relationships list --celebrity "Jon Doe"`,
	}

	cmd.AddCommand(newRelationshipsGenerateCmd())
	cmd.AddCommand(newRelationshipsImportCmd())
	cmd.AddCommand(newRelationshipsListCmd())

	return cmd
}

func newRelationshipsGenerateCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Ask the model for the partners of a stored celebrity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelationshipsGenerate(cmd.Context(), name)
		},
	}

	cmd.Flags().StringVar(&name, "celebrity", "", "Name of the stored celebrity")
	_ = cmd.MarkFlagRequired("celebrity")

	return cmd
}

func newRelationshipsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import {celebrity_name, relationships} documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelationshipsImport(cmd.Context(), args[0])
		},
	}
}

func newRelationshipsListCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the relationships of a celebrity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelationshipsList(cmd.Context(), name)
		},
	}

	cmd.Flags().StringVar(&name, "celebrity", "", "Name of the stored celebrity")
	_ = cmd.MarkFlagRequired("celebrity")

	return cmd
}

func newLinker(db persistence.Database) *relationship.Linker {
	return relationship.NewLinker(celebrity.NewUpserter(db.Celebrities(), getWikipedia()), db)
}

func runRelationshipsGenerate(ctx context.Context, name string) error {
	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := db.Celebrities().FindByName(ctx, name)
	if err != nil {
		return err
	}
	rc, err := settings.Load(ctx, db.Settings(), settings.KeyRelationshipsSystemPrompt, settings.KeyRelationshipsUserPrompt)
	if err != nil {
		return err
	}
	gen, err := getGenerator(ctx)
	if err != nil {
		return err
	}

	stats, err := newLinker(db).Generate(ctx, gen, rc, c)
	if err != nil {
		return err
	}
	fmt.Printf("📊 %s: %s\n", c.Name, stats.String())
	return nil
}

func runRelationshipsImport(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	records, err := jsonrepair.ExtractList(string(data))
	if err != nil {
		return fmt.Errorf("failed to extract relationship documents: %w", err)
	}

	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	linker := newLinker(db)
	for _, record := range records {
		doc, ok := core.RelationshipCandidatesFromRecord(record)
		if !ok {
			continue
		}
		stats, err := linker.LinkCandidates(ctx, doc)
		if err != nil {
			fmt.Printf("❌ %s: %v\n", doc.CelebrityName, err)
			continue
		}
		fmt.Printf("📊 %s: %s\n", doc.CelebrityName, stats.String())
	}
	return nil
}

func runRelationshipsList(ctx context.Context, name string) error {
	db, err := getDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := db.Celebrities().FindByName(ctx, name)
	if err != nil {
		return err
	}
	links, err := db.Relationships().ListForCelebrity(ctx, c.ID)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		fmt.Printf("%s has no stored relationships\n", c.Name)
		return nil
	}

	for _, link := range links {
		partner := link.Celebrity2
		if link.Celebrity2ID == c.ID {
			partner = link.Celebrity1
		}
		if partner == nil {
			continue
		}
		fmt.Printf("  %-32s %s\n", partner.Name, link.Citation)
	}
	return nil
}
