// Package celebrity creates or updates canonical celebrity records from
// model-generated candidates.
package celebrity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"starlinks/internal/core"
	"starlinks/internal/logger"
	"starlinks/internal/persistence"
)

// ThumbnailLookup resolves a best-effort photo URL for a name. It returns ""
// when nothing is found and never fails.
type ThumbnailLookup interface {
	Thumbnail(ctx context.Context, name string) string
}

// ThumbnailFunc adapts a function to ThumbnailLookup.
type ThumbnailFunc func(ctx context.Context, name string) string

// Thumbnail calls f.
func (f ThumbnailFunc) Thumbnail(ctx context.Context, name string) string {
	return f(ctx, name)
}

// NoThumbnails never finds a photo.
var NoThumbnails = ThumbnailFunc(func(context.Context, string) string { return "" })

// Outcome describes what an upsert did.
type Outcome int

const (
	Skipped Outcome = iota
	Created
	Updated
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	default:
		return "skipped"
	}
}

// Stats counts upsert outcomes across a batch.
type Stats struct {
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
	Failed    int
}

// Add records one outcome.
func (s *Stats) Add(o Outcome) {
	switch o {
	case Created:
		s.Created++
	case Updated:
		s.Updated++
	case Unchanged:
		s.Unchanged++
	default:
		s.Skipped++
	}
}

// Merge adds the counters of other.
func (s *Stats) Merge(other Stats) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}

func (s Stats) String() string {
	return fmt.Sprintf("created=%d updated=%d unchanged=%d skipped=%d failed=%d",
		s.Created, s.Updated, s.Unchanged, s.Skipped, s.Failed)
}

// Upserter applies create-or-update semantics to candidates.
type Upserter struct {
	repo   persistence.CelebrityRepository
	thumbs ThumbnailLookup
}

// NewUpserter creates an upserter. A nil lookup disables photo enrichment.
func NewUpserter(repo persistence.CelebrityRepository, thumbs ThumbnailLookup) *Upserter {
	if thumbs == nil {
		thumbs = NoThumbnails
	}
	return &Upserter{repo: repo, thumbs: thumbs}
}

// Upsert matches cand by name. Invalid candidates and candidates whose gender
// is not in allowed are skipped without error. An empty allowed list accepts
// both genders. Errors are storage failures only.
func (u *Upserter) Upsert(ctx context.Context, cand core.Candidate, allowed ...core.Gender) (*core.Celebrity, Outcome, error) {
	return u.upsert(ctx, cand, allowed, func() (*core.Celebrity, error) {
		return u.repo.FindByName(ctx, cand.Name)
	})
}

// UpsertExact matches cand by name and birth year so two people sharing a
// common name are kept apart.
func (u *Upserter) UpsertExact(ctx context.Context, cand core.Candidate, allowed ...core.Gender) (*core.Celebrity, Outcome, error) {
	return u.upsert(ctx, cand, allowed, func() (*core.Celebrity, error) {
		return u.repo.FindByNameAndBirthYear(ctx, cand.Name, cand.BirthYear)
	})
}

func (u *Upserter) upsert(ctx context.Context, cand core.Candidate, allowed []core.Gender, find func() (*core.Celebrity, error)) (*core.Celebrity, Outcome, error) {
	cand.Name = strings.TrimSpace(cand.Name)
	cand.Tagline = strings.TrimSpace(cand.Tagline)

	if problems := cand.Problems(); len(problems) > 0 {
		logger.Debug("Skipping invalid candidate", "name", cand.Name, "problems", strings.Join(problems, "; "))
		return nil, Skipped, nil
	}
	if len(allowed) > 0 && !slices.Contains(allowed, cand.Gender) {
		logger.Debug("Skipping candidate by gender filter", "name", cand.Name, "gender", cand.Gender)
		return nil, Skipped, nil
	}

	existing, err := find()
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return nil, Skipped, fmt.Errorf("failed to look up %s: %w", cand.Name, err)
	}

	if existing == nil {
		c := &core.Celebrity{
			Name:      cand.Name,
			BirthYear: cand.BirthYear,
			Gender:    cand.Gender,
			Tagline:   cand.Tagline,
			PhotoURL:  u.thumbs.Thumbnail(ctx, cand.Name),
		}
		if err := u.repo.Create(ctx, c); err != nil {
			return nil, Skipped, fmt.Errorf("failed to create %s: %w", cand.Name, err)
		}
		logger.Debug("Created celebrity", "celebrity", c.Name, "id", c.ID, "has_photo", c.PhotoURL != "")
		return c, Created, nil
	}

	changed := false
	if existing.BirthYear != cand.BirthYear {
		existing.BirthYear = cand.BirthYear
		changed = true
	}
	if existing.Tagline == "" {
		existing.Tagline = cand.Tagline
		changed = true
	}
	if existing.PhotoURL == "" {
		if photo := u.thumbs.Thumbnail(ctx, existing.Name); photo != "" {
			existing.PhotoURL = photo
			changed = true
		}
	}
	if !changed {
		return existing, Unchanged, nil
	}
	if err := u.repo.Update(ctx, existing); err != nil {
		return nil, Skipped, fmt.Errorf("failed to update %s: %w", existing.Name, err)
	}
	logger.Debug("Updated celebrity", "celebrity", existing.Name, "id", existing.ID)
	return existing, Updated, nil
}
