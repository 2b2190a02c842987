package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"starlinks/internal/config"
	"starlinks/internal/core"
)

func newTestDB(t *testing.T) *GormDB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func createCelebrity(t *testing.T, db *GormDB, name string, year int) *core.Celebrity {
	t.Helper()
	c := &core.Celebrity{Name: name, BirthYear: year, Gender: core.GenderMale, Tagline: "tag"}
	if err := db.Celebrities().Create(context.Background(), c); err != nil {
		t.Fatalf("Create %s failed: %v", name, err)
	}
	return c
}

func TestCelebrityRepo_FindByName(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	first := createCelebrity(t, db, "Jon Doe", 1980)
	createCelebrity(t, db, "jon  doe", 1991)

	got, err := db.Celebrities().FindByName(ctx, "JON DOE")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("Expected oldest match %d, got %d", first.ID, got.ID)
	}

	got, err = db.Celebrities().FindByNameAndBirthYear(ctx, "Jon Doe", 1991)
	if err != nil {
		t.Fatalf("FindByNameAndBirthYear failed: %v", err)
	}
	if got.BirthYear != 1991 {
		t.Errorf("Expected 1991, got %d", got.BirthYear)
	}

	_, err = db.Celebrities().FindByName(ctx, "Nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCelebrityRepo_ListMissingPhoto(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createCelebrity(t, db, "A", 1980)
	b := createCelebrity(t, db, "B", 1981)
	if err := db.Celebrities().UpdatePhotoURL(ctx, b.ID, "/portraits/b.png"); err != nil {
		t.Fatalf("UpdatePhotoURL failed: %v", err)
	}

	missing, err := db.Celebrities().List(ctx, ListOptions{MissingPhoto: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(missing) != 1 || missing[0].ID != a.ID {
		t.Errorf("Expected only A to be missing a photo, got %+v", missing)
	}

	if err := db.Celebrities().UpdatePhotoURL(ctx, 9999, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestRelationshipRepo_UnorderedPairIsUnique(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createCelebrity(t, db, "A", 1980)
	b := createCelebrity(t, db, "B", 1981)
	repo := db.Relationships()

	created, err := repo.CreateIfAbsent(ctx, a.ID, b.ID, "https://example.com/ab")
	if err != nil || !created {
		t.Fatalf("first link: created=%v err=%v", created, err)
	}
	created, err = repo.CreateIfAbsent(ctx, a.ID, b.ID, "")
	if err != nil || created {
		t.Errorf("repeat link: created=%v err=%v", created, err)
	}
	created, err = repo.CreateIfAbsent(ctx, b.ID, a.ID, "")
	if err != nil || created {
		t.Errorf("reversed link: created=%v err=%v", created, err)
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected exactly 1 relationship row, got %d", n)
	}

	exists, err := repo.Exists(ctx, b.ID, a.ID)
	if err != nil || !exists {
		t.Errorf("Exists(b, a): %v %v", exists, err)
	}

	rels, err := repo.ListForCelebrity(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListForCelebrity failed: %v", err)
	}
	if len(rels) != 1 || rels[0].Celebrity1ID != a.ID || rels[0].Celebrity1 == nil || rels[0].Celebrity1.Name != "A" {
		t.Errorf("Unexpected relationships %+v", rels)
	}
}

func TestRelationshipRepo_SelfLink(t *testing.T) {
	db := newTestDB(t)
	a := createCelebrity(t, db, "A", 1980)
	if _, err := db.Relationships().CreateIfAbsent(context.Background(), a.ID, a.ID, ""); !errors.Is(err, ErrSelfLink) {
		t.Errorf("Expected ErrSelfLink, got %v", err)
	}
}

func TestCelebrityRepo_DeleteCascadesRelationships(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createCelebrity(t, db, "A", 1980)
	b := createCelebrity(t, db, "B", 1981)
	if _, err := db.Relationships().CreateIfAbsent(ctx, a.ID, b.ID, ""); err != nil {
		t.Fatalf("link failed: %v", err)
	}

	if err := db.Celebrities().Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	n, _ := db.Relationships().Count(ctx)
	if n != 0 {
		t.Errorf("Expected relationships to be deleted, got %d", n)
	}
	if _, err := db.Celebrities().Get(ctx, b.ID); err != nil {
		t.Errorf("Partner should survive: %v", err)
	}
}

func TestDailyGameRepo_OnePerDate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	answer := createCelebrity(t, db, "Answer", 1970)
	var ids []uint
	for _, name := range []string{"S1", "S2", "S3", "S4"} {
		ids = append(ids, createCelebrity(t, db, name, 1980).ID)
	}

	game := &core.DailyGame{GameDate: "2026-10-17", AnswerID: answer.ID, Type: core.GameTypeRomance}
	game.SetSubjects(ids)
	created, err := db.DailyGames().CreateIfAbsent(ctx, game)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}

	dup := &core.DailyGame{GameDate: "2026-10-17", AnswerID: ids[0], Type: core.GameTypeRomance}
	dup.SetSubjects([]uint{answer.ID, ids[1], ids[2], ids[3]})
	created, err = db.DailyGames().CreateIfAbsent(ctx, dup)
	if err != nil || created {
		t.Errorf("duplicate create: created=%v err=%v", created, err)
	}

	stored, err := db.DailyGames().GetByDate(ctx, "2026-10-17")
	if err != nil {
		t.Fatalf("GetByDate failed: %v", err)
	}
	if stored.AnswerID != answer.ID || stored.Answer == nil || stored.Answer.Name != "Answer" {
		t.Errorf("Unexpected stored game %+v", stored)
	}

	subjects, err := db.DailyGames().Subjects(ctx, stored)
	if err != nil {
		t.Fatalf("Subjects failed: %v", err)
	}
	if len(subjects) != 4 || subjects[0].Name != "S1" || subjects[3].Name != "S4" {
		t.Errorf("Unexpected subjects %+v", subjects)
	}

	recent, err := db.DailyGames().RecentAnswers(ctx, "2026-10-01")
	if err != nil {
		t.Fatalf("RecentAnswers failed: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != answer.ID {
		t.Errorf("Unexpected recent answers %+v", recent)
	}

	if _, err := db.DailyGames().GetByDate(ctx, "2026-10-18"); !IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestSettingsRepo(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.Settings()

	if err := repo.Set(ctx, "puzzle.system_prompt", json.RawMessage(`"v1"`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := repo.Set(ctx, "puzzle.system_prompt", json.RawMessage(`"v2"`)); err != nil {
		t.Fatalf("Set overwrite failed: %v", err)
	}
	raw, err := repo.Get(ctx, "puzzle.system_prompt")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(raw) != `"v2"` {
		t.Errorf("Expected \"v2\", got %s", raw)
	}

	seeded, err := repo.SetIfAbsent(ctx, "puzzle.system_prompt", json.RawMessage(`"v3"`))
	if err != nil || seeded {
		t.Errorf("SetIfAbsent on existing key: seeded=%v err=%v", seeded, err)
	}
	seeded, err = repo.SetIfAbsent(ctx, "ui.copy", json.RawMessage(`{"title":"Who?"}`))
	if err != nil || !seeded {
		t.Errorf("SetIfAbsent on new key: seeded=%v err=%v", seeded, err)
	}

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 settings, got %d", len(all))
	}

	if err := repo.Set(ctx, "bad", json.RawMessage(`{nope`)); err == nil {
		t.Error("Expected invalid JSON to be rejected")
	}
	if _, err := repo.Get(ctx, "missing"); !IsNotFound(err) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestTableStatus(t *testing.T) {
	db := newTestDB(t)
	status := db.TableStatus(context.Background())
	for _, table := range []string{"celebrities", "celebrity_relationships", "daily_games", "settings"} {
		if !status[table] {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(config.Database{Driver: "mysql", DSN: "x"})
	if !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("Expected ErrUnknownDriver, got %v", err)
	}
}

func TestDailyGameRepo_ListThrough(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	answer := createCelebrity(t, db, "Answer", 1970)
	ids := []uint{answer.ID, answer.ID, answer.ID, answer.ID}
	for _, date := range []string{"2025-06-01", "2025-06-02", "2025-06-03", "2025-06-04"} {
		game := &core.DailyGame{GameDate: date, AnswerID: answer.ID, Type: core.GameTypeRomance}
		game.SetSubjects(ids)
		if _, err := db.DailyGames().CreateIfAbsent(ctx, game); err != nil {
			t.Fatalf("CreateIfAbsent(%s) failed: %v", date, err)
		}
	}

	games, err := db.DailyGames().List(ctx, "2025-06-02", 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(games) != 2 || games[0].GameDate != "2025-06-02" || games[1].GameDate != "2025-06-01" {
		t.Errorf("Expected the two games through 2025-06-02, got %+v", games)
	}

	all, _ := db.DailyGames().List(ctx, "", 0)
	if len(all) != 4 || all[0].GameDate != "2025-06-04" {
		t.Errorf("Expected every game newest first, got %d", len(all))
	}
}
