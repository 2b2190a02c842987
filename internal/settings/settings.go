// Package settings assembles the per-run configuration (prompts and model
// overrides) from the key to JSON settings table.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"starlinks/internal/persistence"
)

// Setting keys read by the pipeline.
const (
	KeyModel                     = "ai.model"
	KeyPuzzleSystemPrompt        = "puzzle.system_prompt"
	KeyPuzzleUserPrompt          = "puzzle.user_prompt"
	KeyCelebritiesSystemPrompt   = "legacy.celebrities_system_prompt"
	KeyCelebritiesUserPrompt     = "legacy.celebrities_user_prompt"
	KeyRelationshipsSystemPrompt = "legacy.relationships_system_prompt"
	KeyRelationshipsUserPrompt   = "legacy.relationships_user_prompt"
	KeyUICopy                    = "ui.copy"
)

// ErrMissingKeys is wrapped by MissingKeysError.
var ErrMissingKeys = errors.New("required settings are missing")

// MissingKeysError lists every required key that is absent or empty.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingKeys, strings.Join(e.Keys, ", "))
}

func (e *MissingKeysError) Unwrap() error { return ErrMissingKeys }

// RunConfig is the configuration snapshot used by one pipeline run.
type RunConfig struct {
	Model                     string
	PuzzleSystemPrompt        string
	PuzzleUserPrompt          string
	CelebritiesSystemPrompt   string
	CelebritiesUserPrompt     string
	RelationshipsSystemPrompt string
	RelationshipsUserPrompt   string
}

// Load reads every setting once and fails fast when any key in required is
// missing, empty, or not a JSON string.
func Load(ctx context.Context, repo persistence.SettingsRepository, required ...string) (*RunConfig, error) {
	all, err := repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	values := make(map[string]string, len(all))
	for key, raw := range all {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			values[key] = strings.TrimSpace(s)
		}
	}

	var missing []string
	for _, key := range required {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingKeysError{Keys: missing}
	}

	return &RunConfig{
		Model:                     values[KeyModel],
		PuzzleSystemPrompt:        values[KeyPuzzleSystemPrompt],
		PuzzleUserPrompt:          values[KeyPuzzleUserPrompt],
		CelebritiesSystemPrompt:   values[KeyCelebritiesSystemPrompt],
		CelebritiesUserPrompt:     values[KeyCelebritiesUserPrompt],
		RelationshipsSystemPrompt: values[KeyRelationshipsSystemPrompt],
		RelationshipsUserPrompt:   values[KeyRelationshipsUserPrompt],
	}, nil
}

// Seed writes Defaults for keys that are not set yet and returns the keys it wrote.
func Seed(ctx context.Context, repo persistence.SettingsRepository) ([]string, error) {
	keys := make([]string, 0, len(Defaults))
	for key := range Defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var written []string
	for _, key := range keys {
		raw, err := json.Marshal(Defaults[key])
		if err != nil {
			return written, fmt.Errorf("failed to encode default %s: %w", key, err)
		}
		ok, err := repo.SetIfAbsent(ctx, key, raw)
		if err != nil {
			return written, err
		}
		if ok {
			written = append(written, key)
		}
	}
	return written, nil
}

// Render substitutes {{name}} placeholders in template.
func Render(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
