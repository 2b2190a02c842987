package puzzle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"starlinks/internal/celebrity"
	"starlinks/internal/core"
	"starlinks/internal/llm"
	"starlinks/internal/persistence"
	"starlinks/internal/relationship"
	"starlinks/internal/settings"
)

const combinedResponse = "```json\n" + `{
  "answer": {"name": "Jon Doe", "birth_year": 1975, "gender": "male", "tagline": "Leading man"},
  "relationships": [
    {"name": "Ann One", "birth_year": 1978, "gender": "female", "tagline": "Singer", "citation": "https://news.example/1"},
    {"name": "Bea Two", "birth_year": 1980, "gender": "female", "tagline": "Actor", "citation": "https://news.example/2"},
    {"name": "Cat Three", "birth_year": 1982, "gender": "female", "tagline": "Model", "citation": "https://news.example/3"},
    {"name": "Dee Four", "birth_year": 1985, "gender": "female", "tagline": "Director", "citation": "https://news.example/4"},
  ]
}` + "\n```"

var gameDay = time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)

type fixture struct {
	db    *persistence.GormDB
	calls atomic.Int32
	last  llm.Request
	reply func(req llm.Request) (string, error)
}

func newFixture(t *testing.T, seed bool) *fixture {
	t.Helper()
	db, err := persistence.OpenSQLite(filepath.Join(t.TempDir(), "puzzle.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if seed {
		if _, err := settings.Seed(ctx, db.Settings()); err != nil {
			t.Fatalf("Seed failed: %v", err)
		}
	}
	f := &fixture{db: db}
	f.reply = func(llm.Request) (string, error) { return combinedResponse, nil }
	return f
}

func (f *fixture) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.calls.Add(1)
	f.last = req
	return f.reply(req)
}

func (f *fixture) assembler(strategy Strategy) *Assembler {
	up := celebrity.NewUpserter(f.db.Celebrities(), nil)
	linker := relationship.NewLinker(up, f.db)
	return NewAssembler(f.db, up, linker, strategy, Options{MinBirthYear: 1900, MaxBirthYear: 2010, ExcludeDays: 30, Timeout: time.Minute})
}

func TestAssemble_CreatesGameOncePerDate(t *testing.T) {
	f := newFixture(t, true)
	a := f.assembler(&CombinedStrategy{gen: f})
	ctx := context.Background()

	res, err := a.Assemble(ctx, gameDay)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if !res.Created || res.RunID == "" {
		t.Errorf("Expected a new game, got %+v", res)
	}

	again, err := a.Assemble(ctx, gameDay.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("second Assemble failed: %v", err)
	}
	if again.Created {
		t.Error("Expected the second call to be a no-op")
	}
	if again.Game.ID != res.Game.ID {
		t.Errorf("Expected game %d, got %d", res.Game.ID, again.Game.ID)
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("Expected exactly one generation call, got %d", n)
	}

	games, _ := f.db.DailyGames().List(ctx, "", 0)
	if len(games) != 1 {
		t.Fatalf("Expected one daily game row, got %d", len(games))
	}
	stored, err := f.db.DailyGames().GetByDate(ctx, "2026-10-17")
	if err != nil {
		t.Fatalf("GetByDate failed: %v", err)
	}
	if stored.Answer == nil || stored.Answer.Name != "Jon Doe" || stored.Type != core.GameTypeRomance {
		t.Errorf("Unexpected stored game %+v", stored)
	}
	subjects, err := f.db.DailyGames().Subjects(ctx, stored)
	if err != nil {
		t.Fatalf("Subjects failed: %v", err)
	}
	var names []string
	for _, s := range subjects {
		names = append(names, s.Name)
	}
	if strings.Join(names, ",") != "Ann One,Bea Two,Cat Three,Dee Four" {
		t.Errorf("Unexpected subjects %v", names)
	}
	n, _ := f.db.Relationships().Count(ctx)
	if n != 4 {
		t.Errorf("Expected 4 relationships, got %d", n)
	}
}

func TestAssemble_RequestShape(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	prev := &core.Celebrity{Name: "Old Answer", BirthYear: 1960, Gender: core.GenderMale, Tagline: "t"}
	if err := f.db.Celebrities().Create(ctx, prev); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	var ids []uint
	for i := 0; i < core.SubjectCount; i++ {
		c := &core.Celebrity{Name: fmt.Sprintf("S%d", i), BirthYear: 1970, Gender: core.GenderFemale, Tagline: "t"}
		if err := f.db.Celebrities().Create(ctx, c); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, c.ID)
	}
	old := &core.DailyGame{GameDate: "2026-10-10", AnswerID: prev.ID, Type: core.GameTypeRomance}
	old.SetSubjects(ids)
	if _, err := f.db.DailyGames().CreateIfAbsent(ctx, old); err != nil {
		t.Fatalf("CreateIfAbsent failed: %v", err)
	}

	if _, err := f.assembler(&CombinedStrategy{gen: f}).Assemble(ctx, gameDay); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if !strings.Contains(f.last.User, "Old Answer") || !strings.Contains(f.last.User, "2026-10-17") {
		t.Errorf("Expected prompt to name the recent answer and date, got %q", f.last.User)
	}
	if f.last.SchemaName != "daily_puzzle" {
		t.Errorf("Unexpected schema name %q", f.last.SchemaName)
	}
	schema, ok := f.last.Schema.(map[string]any)
	if !ok {
		t.Fatalf("Expected schema map, got %T", f.last.Schema)
	}
	by := schema["properties"].(map[string]any)["answer"].(map[string]any)["properties"].(map[string]any)["birth_year"].(map[string]any)
	if fmt.Sprint(by["minimum"]) != "1900" || fmt.Sprint(by["maximum"]) != "2010" {
		t.Errorf("Expected answer birth_year bounds 1900-2010, got %v-%v", by["minimum"], by["maximum"])
	}
}

func TestAssemble_ValidationFailuresAreSurfaced(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{
			name: "three relationships",
			reply: `{"answer": {"name": "A", "birth_year": 1970, "gender": "male", "tagline": "a"}, "relationships": [
				{"name": "B", "birth_year": 1971, "gender": "female", "tagline": "b", "citation": "https://x.example/b"},
				{"name": "C", "birth_year": 1971, "gender": "female", "tagline": "c", "citation": "https://x.example/c"},
				{"name": "D", "birth_year": 1971, "gender": "female", "tagline": "d", "citation": "https://x.example/d"}]}`,
		},
		{
			name: "missing citation",
			reply: `{"answer": {"name": "A", "birth_year": 1970, "gender": "male", "tagline": "a"}, "relationships": [
				{"name": "B", "birth_year": 1971, "gender": "female", "tagline": "b", "citation": "https://x.example/b"},
				{"name": "C", "birth_year": 1971, "gender": "female", "tagline": "c", "citation": "https://x.example/c"},
				{"name": "D", "birth_year": 1971, "gender": "female", "tagline": "d", "citation": "https://x.example/d"},
				{"name": "E", "birth_year": 1971, "gender": "female", "tagline": "e", "citation": "a magazine"}]}`,
		},
		{
			name: "answer too young",
			reply: `{"answer": {"name": "A", "birth_year": 2015, "gender": "male", "tagline": "a"}, "relationships": [
				{"name": "B", "birth_year": 1971, "gender": "female", "tagline": "b", "citation": "https://x.example/b"},
				{"name": "C", "birth_year": 1971, "gender": "female", "tagline": "c", "citation": "https://x.example/c"},
				{"name": "D", "birth_year": 1971, "gender": "female", "tagline": "d", "citation": "https://x.example/d"},
				{"name": "E", "birth_year": 1971, "gender": "female", "tagline": "e", "citation": "https://x.example/e"}]}`,
		},
		{
			name: "duplicate partner",
			reply: `{"answer": {"name": "A", "birth_year": 1970, "gender": "male", "tagline": "a"}, "relationships": [
				{"name": "B", "birth_year": 1971, "gender": "female", "tagline": "b", "citation": "https://x.example/b"},
				{"name": "b", "birth_year": 1971, "gender": "female", "tagline": "b", "citation": "https://x.example/b"},
				{"name": "D", "birth_year": 1971, "gender": "female", "tagline": "d", "citation": "https://x.example/d"},
				{"name": "E", "birth_year": 1971, "gender": "female", "tagline": "e", "citation": "https://x.example/e"}]}`,
		},
		{
			name:  "answer missing tagline",
			reply: `{"answer": {"name": "A", "birth_year": 1970, "gender": "male"}, "relationships": []}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			f.reply = func(llm.Request) (string, error) { return tt.reply, nil }
			ctx := context.Background()

			_, err := f.assembler(&CombinedStrategy{gen: f}).Assemble(ctx, gameDay)
			if !errors.Is(err, ErrInvalidDraft) {
				t.Fatalf("Expected ErrInvalidDraft, got %v", err)
			}
			if _, err := f.db.DailyGames().GetByDate(ctx, "2026-10-17"); !errors.Is(err, persistence.ErrNotFound) {
				t.Errorf("Expected no game to be stored, got %v", err)
			}
		})
	}
}

func TestAssemble_GenerationFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply func(llm.Request) (string, error)
	}{
		{"upstream error", func(llm.Request) (string, error) { return "", llm.ErrEmptyResponse }},
		{"unparseable", func(llm.Request) (string, error) { return "I'd rather not.", nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			f.reply = tt.reply
			_, err := f.assembler(&CombinedStrategy{gen: f}).Assemble(context.Background(), gameDay)
			if !errors.Is(err, ErrGeneration) {
				t.Errorf("Expected ErrGeneration, got %v", err)
			}
		})
	}
}

func TestAssemble_MissingSettingsFailFast(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.assembler(&CombinedStrategy{gen: f}).Assemble(context.Background(), gameDay)
	if !errors.Is(err, settings.ErrMissingKeys) {
		t.Errorf("Expected ErrMissingKeys, got %v", err)
	}
	if f.calls.Load() != 0 {
		t.Error("Expected no generation call without settings")
	}
}

func TestAssemble_AnswerMatchedByNameAndBirthYear(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	namesake := &core.Celebrity{Name: "Jon Doe", BirthYear: 1940, Gender: core.GenderMale, Tagline: "Painter"}
	if err := f.db.Celebrities().Create(ctx, namesake); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	res, err := f.assembler(&CombinedStrategy{gen: f}).Assemble(ctx, gameDay)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if res.Game.AnswerID == namesake.ID {
		t.Error("Expected a new answer record instead of the 1940 namesake")
	}
	kept, _ := f.db.Celebrities().Get(ctx, namesake.ID)
	if kept.BirthYear != 1940 {
		t.Errorf("Expected namesake to be untouched, got %d", kept.BirthYear)
	}
}

func TestLegacyStrategy(t *testing.T) {
	f := newFixture(t, true)
	f.reply = func(req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.User, "famous male celebrities"):
			return `[
				{"name": "Too Young", "birth_year": 2012, "gender": "male", "tagline": "x"},
				{"name": "Few Partners", "birth_year": 1970, "gender": "male", "tagline": "x"},
				{"name": "Jon Doe", "birth_year": 1975, "gender": "male", "tagline": "Leading man"}
			]`, nil
		case strings.Contains(req.User, "Few Partners"):
			return `{"celebrity_name": "Few Partners", "relationships": [
				{"name": "Solo", "birth_year": 1971, "gender": "female", "tagline": "s", "citation": "https://x.example/s"}]}`, nil
		case strings.Contains(req.User, "Jon Doe"):
			return combinedResponse, nil
		}
		return "", fmt.Errorf("unexpected prompt %q", req.User)
	}
	ctx := context.Background()

	strategy, err := NewStrategy(StrategyLegacy, f)
	if err != nil {
		t.Fatalf("NewStrategy failed: %v", err)
	}
	res, err := f.assembler(strategy).Assemble(ctx, gameDay)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if !res.Created || res.Game.Answer.Name != "Jon Doe" {
		t.Errorf("Unexpected result %+v", res)
	}
	if n := f.calls.Load(); n != 3 {
		t.Errorf("Expected 3 generation calls, got %d", n)
	}
}

func TestNewStrategy_Unknown(t *testing.T) {
	if _, err := NewStrategy("random", nil); err == nil {
		t.Error("Expected error for unknown strategy")
	}
}
