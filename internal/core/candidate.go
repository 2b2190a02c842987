package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Candidate is an unvalidated celebrity decoded from model output.
type Candidate struct {
	Name      string `json:"name"`
	BirthYear int    `json:"birth_year"`
	Gender    Gender `json:"gender"`
	Tagline   string `json:"tagline"`
	Citation  string `json:"citation,omitempty"`
}

// Problems lists the required fields that are missing or out of range.
func (c Candidate) Problems() []string {
	var problems []string
	if strings.TrimSpace(c.Name) == "" {
		problems = append(problems, "name is required")
	}
	if c.BirthYear == 0 {
		problems = append(problems, "birth_year is required")
	} else if c.BirthYear < MinBirthYear || c.BirthYear > MaxBirthYear {
		problems = append(problems, fmt.Sprintf("birth_year %d outside %d-%d", c.BirthYear, MinBirthYear, MaxBirthYear))
	}
	if c.Gender == "" {
		problems = append(problems, "gender is required")
	} else if !c.Gender.Valid() {
		problems = append(problems, fmt.Sprintf("gender %q is not male or female", c.Gender))
	}
	if strings.TrimSpace(c.Tagline) == "" {
		problems = append(problems, "tagline is required")
	}
	return problems
}

// Valid reports whether every required field is present.
func (c Candidate) Valid() bool {
	return len(c.Problems()) == 0
}

// RelationshipCandidates is the nested shape returned when the model is asked
// for the partners of one celebrity.
type RelationshipCandidates struct {
	CelebrityName string
	Relationships []Candidate
}

// CandidateFromRecord decodes one extracted record. Records are either JSON
// objects or flat strings of the form `Name, 1980, male, 'Tagline'`. The
// returned candidate may still be invalid; callers check Valid.
func CandidateFromRecord(record any) (Candidate, bool) {
	switch v := record.(type) {
	case map[string]any:
		return candidateFromObject(v), true
	case string:
		return candidateFromString(v)
	default:
		return Candidate{}, false
	}
}

// RelationshipCandidatesFromRecord decodes a {celebrity_name, relationships}
// object. Partners that fail to decode are dropped.
func RelationshipCandidatesFromRecord(record any) (RelationshipCandidates, bool) {
	obj, ok := record.(map[string]any)
	if !ok {
		return RelationshipCandidates{}, false
	}
	out := RelationshipCandidates{CelebrityName: stringField(obj, "celebrity_name", "celebrity", "name")}
	if out.CelebrityName == "" {
		return out, false
	}
	list, _ := obj["relationships"].([]any)
	for _, item := range list {
		if c, ok := CandidateFromRecord(item); ok {
			out.Relationships = append(out.Relationships, c)
		}
	}
	return out, true
}

func candidateFromObject(obj map[string]any) Candidate {
	return Candidate{
		Name:      stringField(obj, "name", "full_name"),
		BirthYear: intField(obj, "birth_year", "birthYear", "born"),
		Gender:    Gender(strings.ToLower(stringField(obj, "gender", "sex"))),
		Tagline:   stringField(obj, "tagline", "description"),
		Citation:  stringField(obj, "citation", "source", "source_url"),
	}
}

func candidateFromString(s string) (Candidate, bool) {
	parts := strings.Split(s, ",")
	if len(parts) < 4 {
		return Candidate{}, false
	}
	year, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Candidate{}, false
	}
	return Candidate{
		Name:      unquote(parts[0]),
		BirthYear: year,
		Gender:    Gender(strings.ToLower(unquote(parts[2]))),
		Tagline:   unquote(strings.Join(parts[3:], ",")),
	}, true
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			s = s[1 : len(s)-1]
		}
	}
	return strings.TrimSpace(s)
}

func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func intField(obj map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case float64:
			if v == math.Trunc(v) {
				return int(v)
			}
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n)
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return 0
}
