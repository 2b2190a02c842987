package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"starlinks/internal/config"
	"starlinks/internal/core"
	"starlinks/internal/persistence"
)

type fixture struct {
	db        *persistence.GormDB
	server    *Server
	answerID  uint
	portraits string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := persistence.OpenSQLite(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	var ids []uint
	for i, name := range []string{"Answer", "P1", "P2", "P3", "P4"} {
		gender := core.GenderFemale
		if i == 0 {
			gender = core.GenderMale
		}
		c := &core.Celebrity{Name: name, BirthYear: 1970 + i, Gender: gender, PhotoURL: "/portraits/" + name + ".png"}
		if err := db.Celebrities().Create(ctx, c); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, c.ID)
	}

	for _, date := range []string{"2025-06-01", "2025-06-02", "2025-06-03"} {
		game := &core.DailyGame{GameDate: date, AnswerID: ids[0], Type: core.GameTypeRomance}
		game.SetSubjects(ids[1:])
		if created, err := db.DailyGames().CreateIfAbsent(ctx, game); err != nil || !created {
			t.Fatalf("CreateIfAbsent(%s) = %v, %v", date, created, err)
		}
	}

	portraits := t.TempDir()
	if err := os.WriteFile(filepath.Join(portraits, "P1.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	s := New(db, config.Server{Host: "localhost", Port: 0, CORSOrigins: []string{"http://localhost:5173"}},
		config.Portraits{OutputDir: portraits, PublicPrefix: "/portraits"})
	s.now = func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) }

	return &fixture{db: db, server: s, answerID: ids[0], portraits: portraits}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if resp.Status != "ok" || resp.Checks["database"] != "ok" {
		t.Errorf("Unexpected health %+v", resp)
	}
}

func TestPuzzleEndpoints(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantAnswer bool
	}{
		{"today hides answer", "/api/puzzles/today", http.StatusOK, false},
		{"past reveals answer", "/api/puzzles/2025-06-01", http.StatusOK, true},
		{"future is hidden", "/api/puzzles/2025-06-03", http.StatusNotFound, false},
		{"missing date", "/api/puzzles/2025-05-01", http.StatusNotFound, false},
		{"bad date", "/api/puzzles/june", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, tt.path)
			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if rec.Code != http.StatusOK {
				return
			}
			var resp PuzzleResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if len(resp.Subjects) != core.SubjectCount || resp.Subjects[0].Name != "P1" {
				t.Errorf("Unexpected subjects %+v", resp.Subjects)
			}
			if (resp.Answer != nil) != tt.wantAnswer {
				t.Errorf("Answer present = %v, want %v", resp.Answer != nil, tt.wantAnswer)
			}
			if resp.Answer != nil && resp.Answer.ID != f.answerID {
				t.Errorf("Unexpected answer %+v", resp.Answer)
			}
		})
	}
}

func TestListPuzzlesSkipsFutureDates(t *testing.T) {
	f := newFixture(t)
	rec := f.get(t, "/api/puzzles?limit=10")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var list []PuzzleSummary
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(list) != 2 || list[0].GameDate != "2025-06-02" || list[1].GameDate != "2025-06-01" {
		t.Errorf("Unexpected list %+v", list)
	}

	// the future game must not take a slot of the limit
	rec = f.get(t, "/api/puzzles?limit=1")
	list = nil
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(list) != 1 || list[0].GameDate != "2025-06-02" {
		t.Errorf("Expected today's puzzle for limit=1, got %+v", list)
	}

	if rec := f.get(t, "/api/puzzles?limit=0"); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for limit=0, got %d", rec.Code)
	}
}

func TestGetCelebrity(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, fmt.Sprintf("/api/celebrities/%d", f.answerID))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var c CelebrityResponse
	if err := json.NewDecoder(rec.Body).Decode(&c); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if c.Name != "Answer" || c.PhotoURL != "/portraits/Answer.png" {
		t.Errorf("Unexpected celebrity %+v", c)
	}

	if rec := f.get(t, "/api/celebrities/9999"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
	if rec := f.get(t, "/api/celebrities/abc"); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestUICopy(t *testing.T) {
	f := newFixture(t)

	if rec := f.get(t, "/api/copy"); rec.Code != http.StatusOK || rec.Body.String() != "{}\n" {
		t.Errorf("Expected empty copy, got %d %q", rec.Code, rec.Body.String())
	}

	if err := f.db.Settings().Set(context.Background(), "ui.copy", json.RawMessage(`{"title":"Who links them?"}`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	rec := f.get(t, "/api/copy")
	var uiCopy map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&uiCopy); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if uiCopy["title"] != "Who links them?" {
		t.Errorf("Unexpected copy %v", uiCopy)
	}
}

func TestServesPortraits(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/portraits/P1.png")
	if rec.Code != http.StatusOK || rec.Body.String() != "png-bytes" {
		t.Errorf("Expected portrait bytes, got %d %q", rec.Code, rec.Body.String())
	}
	if rec := f.get(t, "/portraits/missing.png"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/puzzles/today", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Expected allowed origin header, got %q", got)
	}
}
