package puzzle

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"starlinks/internal/core"
	"starlinks/internal/jsonrepair"
	"starlinks/internal/llm"
	"starlinks/internal/logger"
	"starlinks/internal/relationship"
	"starlinks/internal/settings"
)

// Strategy names accepted in configuration.
const (
	StrategyCombined = "combined"
	StrategyLegacy   = "legacy"
)

// DraftRequest carries the per-date inputs of a generation call.
type DraftRequest struct {
	Date         string
	MinBirthYear int
	MaxBirthYear int
	Exclude      []string
}

// Strategy produces a draft puzzle from the model.
type Strategy interface {
	Name() string
	// RequiredSettings lists the setting keys the strategy cannot run without.
	RequiredSettings() []string
	Draft(ctx context.Context, rc *settings.RunConfig, req DraftRequest) (*Draft, error)
}

// NewStrategy returns the strategy registered under name.
func NewStrategy(name string, gen llm.Generator) (Strategy, error) {
	switch name {
	case "", StrategyCombined:
		return &CombinedStrategy{gen: gen}, nil
	case StrategyLegacy:
		return &LegacyStrategy{gen: gen, Candidates: 10, MaxAnswers: 3}, nil
	default:
		return nil, fmt.Errorf("unknown puzzle strategy %q", name)
	}
}

// CombinedStrategy asks for the answer and its four cited partners in a
// single structured call.
type CombinedStrategy struct {
	gen llm.Generator
}

func (s *CombinedStrategy) Name() string { return StrategyCombined }

func (s *CombinedStrategy) RequiredSettings() []string {
	return []string{settings.KeyPuzzleSystemPrompt, settings.KeyPuzzleUserPrompt}
}

func (s *CombinedStrategy) Draft(ctx context.Context, rc *settings.RunConfig, req DraftRequest) (*Draft, error) {
	schema, err := llm.SchemaFor[draftDocument]()
	if err != nil {
		return nil, err
	}
	llm.SetNumberBounds(schema, req.MinBirthYear, req.MaxBirthYear, "properties", "answer", "properties", "birth_year")

	text, err := s.gen.Generate(ctx, llm.Request{
		System:     rc.PuzzleSystemPrompt,
		User:       settings.Render(rc.PuzzleUserPrompt, promptVars(req)),
		Model:      rc.Model,
		Schema:     schema,
		SchemaName: "daily_puzzle",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	obj, err := jsonrepair.ExtractObject(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return DecodeDraft(obj)
}

// LegacyStrategy runs the two-phase flow: a list of male candidates, then the
// partners of the first usable one.
type LegacyStrategy struct {
	gen llm.Generator
	// Candidates is the list size requested in the first phase.
	Candidates int
	// MaxAnswers bounds how many candidates get a relationships call.
	MaxAnswers int
}

func (s *LegacyStrategy) Name() string { return StrategyLegacy }

func (s *LegacyStrategy) RequiredSettings() []string {
	return []string{
		settings.KeyCelebritiesSystemPrompt,
		settings.KeyCelebritiesUserPrompt,
		settings.KeyRelationshipsSystemPrompt,
		settings.KeyRelationshipsUserPrompt,
	}
}

func (s *LegacyStrategy) Draft(ctx context.Context, rc *settings.RunConfig, req DraftRequest) (*Draft, error) {
	vars := promptVars(req)
	vars["count"] = strconv.Itoa(s.Candidates)

	text, err := s.gen.Generate(ctx, llm.Request{
		System: rc.CelebritiesSystemPrompt,
		User:   settings.Render(rc.CelebritiesUserPrompt, vars),
		Model:  rc.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	records, err := jsonrepair.ExtractList(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	excluded := make(map[string]bool, len(req.Exclude))
	for _, name := range req.Exclude {
		excluded[core.NormalizeName(name)] = true
	}

	tried := 0
	var lastErr error
	for _, record := range records {
		answer, ok := core.CandidateFromRecord(record)
		if !ok || !answer.Valid() || answer.Gender != core.GenderMale || excluded[core.NormalizeName(answer.Name)] {
			continue
		}
		if answer.BirthYear < req.MinBirthYear || answer.BirthYear > req.MaxBirthYear {
			continue
		}
		if tried >= s.MaxAnswers {
			break
		}
		tried++

		draft, err := s.partnersOf(ctx, rc, answer)
		if err != nil {
			lastErr = err
			logger.Warn("Legacy candidate rejected", "celebrity", answer.Name, "error", err)
			continue
		}
		return draft, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%w: no usable answer candidate among %d records", ErrGeneration, len(records))
}

func (s *LegacyStrategy) partnersOf(ctx context.Context, rc *settings.RunConfig, answer core.Candidate) (*Draft, error) {
	text, err := s.gen.Generate(ctx, llm.Request{
		System: rc.RelationshipsSystemPrompt,
		User: settings.Render(rc.RelationshipsUserPrompt, map[string]string{
			"name":       answer.Name,
			"birth_year": strconv.Itoa(answer.BirthYear),
		}),
		Model: rc.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	partners, err := relationship.DecodePartners(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	draft := &Draft{Answer: answer}
	for _, p := range partners {
		if len(draft.Relationships) == core.SubjectCount {
			break
		}
		if p.Valid() && validCitation(p.Citation) {
			draft.Relationships = append(draft.Relationships, p)
		}
	}
	if len(draft.Relationships) < core.SubjectCount {
		return nil, &ValidationError{Problems: []string{
			fmt.Sprintf("%s has %d cited partners, need %d", answer.Name, len(draft.Relationships), core.SubjectCount),
		}}
	}
	return draft, nil
}

func promptVars(req DraftRequest) map[string]string {
	exclude := "none"
	if len(req.Exclude) > 0 {
		exclude = strings.Join(req.Exclude, ", ")
	}
	return map[string]string{
		"date":     req.Date,
		"min_year": strconv.Itoa(req.MinBirthYear),
		"max_year": strconv.Itoa(req.MaxBirthYear),
		"exclude":  exclude,
	}
}
