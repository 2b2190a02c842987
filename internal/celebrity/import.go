package celebrity

import (
	"context"
	"fmt"
	"strconv"

	"starlinks/internal/core"
	"starlinks/internal/jsonrepair"
	"starlinks/internal/llm"
	"starlinks/internal/logger"
	"starlinks/internal/settings"
)

// Batch is the result of importing a candidate list.
type Batch struct {
	Stats Stats
	// Celebrities holds every accepted record, created or matched, in input order.
	Celebrities []*core.Celebrity
}

// ImportRecords upserts every decodable record. A storage failure on one
// record is logged and counted as failed; the rest of the batch continues.
func (u *Upserter) ImportRecords(ctx context.Context, records []any, allowed ...core.Gender) Batch {
	var batch Batch
	for i, record := range records {
		cand, ok := core.CandidateFromRecord(record)
		if !ok {
			logger.Debug("Skipping undecodable record", "index", i)
			batch.Stats.Skipped++
			continue
		}
		c, outcome, err := u.Upsert(ctx, cand, allowed...)
		if err != nil {
			logger.Error("Failed to upsert candidate", err, "celebrity", cand.Name)
			batch.Stats.Failed++
			continue
		}
		batch.Stats.Add(outcome)
		if c != nil {
			batch.Celebrities = append(batch.Celebrities, c)
		}
	}
	return batch
}

// ImportText extracts a candidate list from raw model output and imports it.
// It returns jsonrepair.ErrNoCandidates when nothing could be recovered.
func (u *Upserter) ImportText(ctx context.Context, text string, allowed ...core.Gender) (Batch, error) {
	records, err := jsonrepair.ExtractList(text)
	if err != nil {
		return Batch{}, fmt.Errorf("failed to extract candidates: %w", err)
	}
	batch := u.ImportRecords(ctx, records, allowed...)
	logger.Info("Imported celebrity candidates", "records", len(records), "stats", batch.Stats.String())
	return batch, nil
}

// GenerateOptions bounds a celebrity generation request.
type GenerateOptions struct {
	Count   int
	MinYear int
	MaxYear int
}

// Generate asks the model for a list of male celebrities and imports the
// male candidates it returns.
func (u *Upserter) Generate(ctx context.Context, gen llm.Generator, rc *settings.RunConfig, opts GenerateOptions) (Batch, error) {
	if opts.Count <= 0 {
		opts.Count = 10
	}
	prompt := settings.Render(rc.CelebritiesUserPrompt, map[string]string{
		"count":    strconv.Itoa(opts.Count),
		"min_year": strconv.Itoa(opts.MinYear),
		"max_year": strconv.Itoa(opts.MaxYear),
	})

	text, err := gen.Generate(ctx, llm.Request{
		System: rc.CelebritiesSystemPrompt,
		User:   prompt,
		Model:  rc.Model,
	})
	if err != nil {
		return Batch{}, fmt.Errorf("failed to generate celebrities: %w", err)
	}
	return u.ImportText(ctx, text, core.GenderMale)
}
