// Package relationship links an answer celebrity to its partners exactly once
// per unordered pair.
package relationship

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"starlinks/internal/celebrity"
	"starlinks/internal/core"
	"starlinks/internal/jsonrepair"
	"starlinks/internal/llm"
	"starlinks/internal/logger"
	"starlinks/internal/persistence"
	"starlinks/internal/settings"
)

// ErrPartnerSkipped is returned when the partner candidate fails validation.
var ErrPartnerSkipped = errors.New("partner candidate skipped")

// Linker upserts partners and records relationships.
type Linker struct {
	upserter *celebrity.Upserter
	repo     persistence.RelationshipRepository
	people   persistence.CelebrityRepository
}

// NewLinker creates a linker.
func NewLinker(upserter *celebrity.Upserter, db persistence.Database) *Linker {
	return &Linker{
		upserter: upserter,
		repo:     db.Relationships(),
		people:   db.Celebrities(),
	}
}

// Link upserts partner by name and links answer to it with answer as
// celebrity_1. It reports whether a new relationship row was created; linking
// an existing pair in either direction is a no-op.
func (l *Linker) Link(ctx context.Context, answer *core.Celebrity, partner core.Candidate) (*core.Celebrity, bool, error) {
	p, outcome, err := l.upserter.Upsert(ctx, partner)
	if err != nil {
		return nil, false, err
	}
	if outcome == celebrity.Skipped || p == nil {
		return nil, false, fmt.Errorf("%w: %s", ErrPartnerSkipped, partner.Name)
	}

	created, err := l.repo.CreateIfAbsent(ctx, answer.ID, p.ID, partner.Citation)
	if err != nil {
		return p, false, err
	}
	logger.Debug("Linked partner", "celebrity", answer.Name, "partner", p.Name, "created", created)
	return p, created, nil
}

// Stats counts linking outcomes across a batch.
type Stats struct {
	Linked   int
	Existing int
	Skipped  int
	Failed   int
}

func (s Stats) String() string {
	return fmt.Sprintf("linked=%d existing=%d skipped=%d failed=%d", s.Linked, s.Existing, s.Skipped, s.Failed)
}

// LinkAll links every partner to answer. Individual failures are logged and
// counted; they never abort the batch.
func (l *Linker) LinkAll(ctx context.Context, answer *core.Celebrity, partners []core.Candidate) Stats {
	var stats Stats
	for _, partner := range partners {
		_, created, err := l.Link(ctx, answer, partner)
		switch {
		case errors.Is(err, ErrPartnerSkipped):
			stats.Skipped++
		case err != nil:
			logger.Error("Failed to link partner", err, "celebrity", answer.Name, "partner", partner.Name)
			stats.Failed++
		case created:
			stats.Linked++
		default:
			stats.Existing++
		}
	}
	return stats
}

// LinkCandidates resolves the named celebrity of a nested candidate document
// and links its partners.
func (l *Linker) LinkCandidates(ctx context.Context, rc core.RelationshipCandidates) (Stats, error) {
	answer, err := l.people.FindByName(ctx, rc.CelebrityName)
	if err != nil {
		return Stats{}, err
	}
	return l.LinkAll(ctx, answer, rc.Relationships), nil
}

// Generate asks the model for the partners of c and links them.
func (l *Linker) Generate(ctx context.Context, gen llm.Generator, rc *settings.RunConfig, c *core.Celebrity) (Stats, error) {
	prompt := settings.Render(rc.RelationshipsUserPrompt, map[string]string{
		"name":       c.Name,
		"birth_year": strconv.Itoa(c.BirthYear),
	})
	text, err := gen.Generate(ctx, llm.Request{
		System: rc.RelationshipsSystemPrompt,
		User:   prompt,
		Model:  rc.Model,
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to generate relationships for %s: %w", c.Name, err)
	}

	partners, err := DecodePartners(text)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to decode relationships for %s: %w", c.Name, err)
	}
	stats := l.LinkAll(ctx, c, partners)
	logger.Info("Linked generated relationships", "celebrity", c.Name, "candidates", len(partners), "stats", stats.String())
	return stats, nil
}

// DecodePartners recovers partner candidates from model output shaped either
// as {celebrity_name, relationships: [...]} or as a bare list of partners.
func DecodePartners(text string) ([]core.Candidate, error) {
	if obj, err := jsonrepair.ExtractObject(text); err == nil {
		if nested, ok := core.RelationshipCandidatesFromRecord(obj); ok && len(nested.Relationships) > 0 {
			return nested.Relationships, nil
		}
	}

	records, err := jsonrepair.ExtractList(text)
	if err != nil {
		return nil, err
	}
	var partners []core.Candidate
	for _, record := range records {
		if nested, ok := core.RelationshipCandidatesFromRecord(record); ok && len(nested.Relationships) > 0 {
			partners = append(partners, nested.Relationships...)
			continue
		}
		if cand, ok := core.CandidateFromRecord(record); ok {
			partners = append(partners, cand)
		}
	}
	if len(partners) == 0 {
		return nil, jsonrepair.ErrNoCandidates
	}
	return partners, nil
}
