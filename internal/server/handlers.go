package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"starlinks/internal/core"
	"starlinks/internal/persistence"
	"starlinks/internal/settings"
)

// HealthResponse is returned by /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// CelebrityResponse is the public view of a celebrity
type CelebrityResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	BirthYear int    `json:"birth_year"`
	Tagline   string `json:"tagline,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// PuzzleResponse is the public view of a daily game. Answer is only set
// once the game date has passed.
type PuzzleResponse struct {
	ID       uint                `json:"id"`
	GameDate string              `json:"game_date"`
	Type     string              `json:"type"`
	Subjects []CelebrityResponse `json:"subjects"`
	Answer   *CelebrityResponse  `json:"answer,omitempty"`
}

// PuzzleSummary is one row of /api/puzzles
type PuzzleSummary struct {
	ID       uint   `json:"id"`
	GameDate string `json:"game_date"`
}

func newCelebrityResponse(c core.Celebrity) CelebrityResponse {
	return CelebrityResponse{
		ID:        c.ID,
		Name:      c.Name,
		BirthYear: c.BirthYear,
		Tagline:   c.Tagline,
		PhotoURL:  c.PhotoURL,
	}
}

func (s *Server) today() string {
	return core.FormatGameDate(s.now().UTC())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}
	if err := s.db.Ping(r.Context()); err != nil {
		checks["database"] = "error"
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: checks})
		return
	}
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}

func (s *Server) handleListPuzzles(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 365 {
			s.respondError(w, http.StatusBadRequest, "limit must be between 1 and 365")
			return
		}
		limit = n
	}

	// future puzzles stay hidden
	games, err := s.db.DailyGames().List(r.Context(), s.today(), limit)
	if err != nil {
		s.log.Error("Failed to list puzzles", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to list puzzles")
		return
	}

	out := make([]PuzzleSummary, 0, len(games))
	for _, g := range games {
		out = append(out, PuzzleSummary{ID: g.ID, GameDate: g.GameDate})
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleTodayPuzzle(w http.ResponseWriter, r *http.Request) {
	s.writePuzzle(w, r, s.today())
}

func (s *Server) handleGetPuzzle(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse(core.GameDateLayout, date); err != nil {
		s.respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	s.writePuzzle(w, r, date)
}

func (s *Server) writePuzzle(w http.ResponseWriter, r *http.Request, date string) {
	today := s.today()
	if date > today {
		s.respondError(w, http.StatusNotFound, "no puzzle for "+date)
		return
	}

	game, err := s.db.DailyGames().GetByDate(r.Context(), date)
	if errors.Is(err, persistence.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "no puzzle for "+date)
		return
	}
	if err != nil {
		s.log.Error("Failed to load puzzle", "date", date, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load puzzle")
		return
	}

	subjects, err := s.db.DailyGames().Subjects(r.Context(), game)
	if err != nil {
		s.log.Error("Failed to load puzzle subjects", "date", date, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load puzzle")
		return
	}

	resp := PuzzleResponse{
		ID:       game.ID,
		GameDate: game.GameDate,
		Type:     game.Type,
		Subjects: make([]CelebrityResponse, 0, len(subjects)),
	}
	for _, c := range subjects {
		resp.Subjects = append(resp.Subjects, newCelebrityResponse(c))
	}
	if game.GameDate < today && game.Answer != nil {
		answer := newCelebrityResponse(*game.Answer)
		resp.Answer = &answer
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCelebrity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		s.respondError(w, http.StatusBadRequest, "invalid celebrity id")
		return
	}

	c, err := s.db.Celebrities().Get(r.Context(), uint(id))
	if errors.Is(err, persistence.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "celebrity not found")
		return
	}
	if err != nil {
		s.log.Error("Failed to load celebrity", "id", id, "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load celebrity")
		return
	}
	s.respondJSON(w, http.StatusOK, newCelebrityResponse(*c))
}

func (s *Server) handleUICopy(w http.ResponseWriter, r *http.Request) {
	value, err := s.db.Settings().Get(r.Context(), settings.KeyUICopy)
	if errors.Is(err, persistence.ErrNotFound) {
		s.respondJSON(w, http.StatusOK, json.RawMessage("{}"))
		return
	}
	if err != nil {
		s.log.Error("Failed to load UI copy", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load UI copy")
		return
	}
	s.respondJSON(w, http.StatusOK, value)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]any{
		"error": map[string]any{
			"status":  status,
			"message": message,
		},
	})
}
