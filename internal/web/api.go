package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/jaminalder/tictactoe-bot/internal/app"
	"github.com/jaminalder/tictactoe-bot/internal/bot"
	"github.com/jaminalder/tictactoe-bot/internal/domain"
	"github.com/jaminalder/tictactoe-bot/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// apiStatus maps service and domain errors to HTTP codes.
func apiStatus(err error) int {
	switch {
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrNotAPlayer):
		return http.StatusForbidden
	case errors.Is(err, app.ErrNotPlaying),
		errors.Is(err, app.ErrNotYourTurn),
		errors.Is(err, app.ErrNotInSetup),
		errors.Is(err, app.ErrNotFinished),
		errors.Is(err, domain.ErrOccupied),
		errors.Is(err, domain.ErrOutOfBounds),
		errors.Is(err, domain.ErrGameOver),
		errors.Is(err, domain.ErrUnknownResult),
		errors.Is(err, bot.ErrUnknownDifficulty),
		errors.Is(err, store.ErrMissingUser):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) apiError(w http.ResponseWriter, r *http.Request, err error) {
	status := apiStatus(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("api request failed")
	}
	writeError(w, status, err.Error())
}

type gameRequest struct {
	User       string `json:"user"`
	Difficulty string `json:"difficulty"`
	FirstMover string `json:"first_mover"`
}

// user falls back to the player cookie when the body names nobody.
func requestUser(r *http.Request, user string) string {
	if user != "" {
		return user
	}
	return playerID(r)
}

func (h *handlers) apiCreateGame(w http.ResponseWriter, r *http.Request) {
	var req gameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	d, err := bot.ParseDifficulty(req.Difficulty)
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	first, err := app.ParseSide(req.FirstMover)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user := requestUser(r, req.User)
	if user == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	snap, err := h.svc.CreateGame(user, app.Settings{Difficulty: d, FirstMover: first})
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	snap, err = h.svc.Start(snap.ID, user)
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *handlers) apiGetGame(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.svc.Get(chi.URLParam(r, "id"))
	if !ok {
		h.apiError(w, r, app.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type moveRequest struct {
	User string `json:"user"`
	Cell *int   `json:"cell"`
}

func (h *handlers) apiMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Cell == nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	snap, err := h.svc.Play(chi.URLParam(r, "id"), requestUser(r, req.User), *req.Cell)
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) apiHint(w http.ResponseWriter, r *http.Request) {
	cell, err := h.svc.Hint(chi.URLParam(r, "id"))
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cell": cell})
}

type matchRequest struct {
	User   string `json:"user"`
	Result string `json:"result"`
}

func (h *handlers) apiCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	m, err := h.matches.Create(r.Context(), req.User, domain.Result(req.Result))
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *handlers) apiListMatches(w http.ResponseWriter, r *http.Request) {
	filter, err := parseResultFilter(r)
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	all, err := h.matches.ListOutcomes(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, store.Filter(all, filter))
}

func (h *handlers) apiStats(w http.ResponseWriter, r *http.Request) {
	all, err := h.matches.ListOutcomes(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, store.Summarize(all))
}
