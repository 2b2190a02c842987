package puzzle

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"starlinks/internal/core"
)

var (
	// ErrInvalidDraft is wrapped by ValidationError.
	ErrInvalidDraft = errors.New("invalid puzzle draft")

	// ErrGeneration is returned when the model call or decoding fails.
	ErrGeneration = errors.New("puzzle generation failed")
)

// ValidationError lists everything wrong with a draft.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalidDraft, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidDraft }

// Draft is a generated puzzle before it is stored.
type Draft struct {
	Answer        core.Candidate
	Relationships []core.Candidate
}

// draftPerson and draftDocument describe the structured output requested
// from the model.
type draftPerson struct {
	Name      string `json:"name" jsonschema:"description=Full name as commonly known"`
	BirthYear int    `json:"birth_year" jsonschema:"minimum=1900,maximum=2100"`
	Gender    string `json:"gender" jsonschema:"enum=male,enum=female"`
	Tagline   string `json:"tagline" jsonschema:"maxLength=120"`
}

type draftPartner struct {
	Name      string `json:"name"`
	BirthYear int    `json:"birth_year" jsonschema:"minimum=1900,maximum=2100"`
	Gender    string `json:"gender" jsonschema:"enum=male,enum=female"`
	Tagline   string `json:"tagline" jsonschema:"maxLength=120"`
	Citation  string `json:"citation" jsonschema:"format=uri,description=URL of a source confirming the relationship"`
}

type draftDocument struct {
	Answer        draftPerson    `json:"answer"`
	Relationships []draftPartner `json:"relationships" jsonschema:"minItems=4,maxItems=4"`
}

// DecodeDraft reads an {answer, relationships} object. An object without an
// answer key is read as the answer itself.
func DecodeDraft(obj map[string]any) (*Draft, error) {
	answerRecord, ok := obj["answer"]
	if !ok {
		answerRecord = obj
	}
	answer, ok := core.CandidateFromRecord(answerRecord)
	if !ok {
		return nil, fmt.Errorf("%w: answer is not an object", ErrGeneration)
	}

	draft := &Draft{Answer: answer}
	list, _ := obj["relationships"].([]any)
	for _, item := range list {
		if c, ok := core.CandidateFromRecord(item); ok {
			draft.Relationships = append(draft.Relationships, c)
		}
	}
	return draft, nil
}

// Validate checks the answer against the configured birth year window and
// requires exactly SubjectCount distinct, cited partners.
func (d *Draft) Validate(minYear, maxYear int) error {
	var problems []string
	for _, p := range d.Answer.Problems() {
		problems = append(problems, "answer: "+p)
	}
	if y := d.Answer.BirthYear; y != 0 && (y < minYear || y > maxYear) {
		problems = append(problems, fmt.Sprintf("answer: birth_year %d outside %d-%d", y, minYear, maxYear))
	}

	if n := len(d.Relationships); n != core.SubjectCount {
		problems = append(problems, fmt.Sprintf("expected %d relationships, got %d", core.SubjectCount, n))
	}
	seen := map[string]bool{core.NormalizeName(d.Answer.Name): true}
	for i, rel := range d.Relationships {
		label := fmt.Sprintf("relationship %d", i+1)
		if rel.Name != "" {
			label = fmt.Sprintf("relationship %d (%s)", i+1, rel.Name)
		}
		for _, p := range rel.Problems() {
			problems = append(problems, label+": "+p)
		}
		if !validCitation(rel.Citation) {
			problems = append(problems, label+": citation must be an http(s) URL")
		}
		key := core.NormalizeName(rel.Name)
		if key != "" && seen[key] {
			problems = append(problems, label+": duplicate person")
		}
		seen[key] = true
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validCitation(s string) bool {
	u, err := url.ParseRequestURI(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
