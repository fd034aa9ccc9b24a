package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/jaminalder/tictactoe-bot/internal/app"
	"github.com/jaminalder/tictactoe-bot/internal/bot"
	"github.com/jaminalder/tictactoe-bot/internal/domain"
	"github.com/jaminalder/tictactoe-bot/internal/store"
)

// MatchStore is the history backing the history page and match API.
type MatchStore interface {
	Create(ctx context.Context, user string, result domain.Result) (store.Match, error)
	ListOutcomes(ctx context.Context, user string) ([]store.Match, error)
}

type handlers struct {
	svc     *app.Service
	matches MatchStore
	tpl     *templates
}

type boardData struct {
	Snap  app.Snapshot
	Error string
	Rows  [][]int
	Form  settingsForm
}

func (h *handlers) renderBoard(snap app.Snapshot, errMsg string) []byte {
	return renderTemplate(h.tpl.board, "", boardData{Snap: snap, Error: errMsg, Rows: boardRows, Form: formOf(snap.Settings)})
}

func writeHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, http.StatusOK, renderTemplate(h.tpl.index, "", settingsForm{Difficulty: "medium", First: "user"}))
}

// settingsFromForm reads the difficulty and first-mover fields.
func settingsFromForm(r *http.Request) (app.Settings, error) {
	if err := r.ParseForm(); err != nil {
		return app.Settings{}, err
	}
	d, err := bot.ParseDifficulty(r.Form.Get("difficulty"))
	if err != nil {
		return app.Settings{}, err
	}
	first, err := app.ParseSide(r.Form.Get("first"))
	if err != nil {
		return app.Settings{}, err
	}
	return app.Settings{Difficulty: d, FirstMover: first}, nil
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	pid := ensurePlayerCookie(w, r)
	settings, err := settingsFromForm(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snap, err := h.svc.CreateGame(pid, settings)
	if err != nil {
		http.Error(w, "failed to create", http.StatusInternalServerError)
		return
	}
	if _, err := h.svc.Start(snap.ID, pid); err != nil {
		http.Error(w, "failed to start", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/game/"+snap.ID, http.StatusSeeOther)
}

func (h *handlers) view(w http.ResponseWriter, r *http.Request) {
	ensurePlayerCookie(w, r)
	snap, ok := h.svc.Get(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	data := struct {
		ID        string
		BoardHTML template.HTML
	}{ID: snap.ID, BoardHTML: template.HTML(h.renderBoard(snap, ""))}
	writeHTML(w, http.StatusOK, renderTemplate(h.tpl.game, "", data))
}

// moveMessage turns a rejected action into text for the board fragment.
func moveMessage(err error) string {
	switch {
	case errors.Is(err, app.ErrNotYourTurn):
		return "Not your turn"
	case errors.Is(err, app.ErrNotAPlayer):
		return "You are a spectator"
	case errors.Is(err, app.ErrNotPlaying), errors.Is(err, domain.ErrGameOver):
		return "Game is over"
	case errors.Is(err, app.ErrNotFinished):
		return "Game is still in progress"
	case errors.Is(err, app.ErrNotInSetup):
		return "Game already started"
	case errors.Is(err, domain.ErrOccupied):
		return "Cell is occupied"
	case errors.Is(err, domain.ErrOutOfBounds):
		return "Out of bounds"
	default:
		return "Invalid move"
	}
}

// fragment runs action for the cookie player and answers with the board.
func (h *handlers) fragment(w http.ResponseWriter, r *http.Request, action func(id, pid string) (app.Snapshot, error)) {
	id := chi.URLParam(r, "id")
	pid := ensurePlayerCookie(w, r)
	snap, err := action(id, pid)
	if errors.Is(err, app.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	var errMsg string
	if err != nil {
		errMsg = moveMessage(err)
	}
	writeHTML(w, http.StatusOK, h.renderBoard(snap, errMsg))
}

func (h *handlers) play(w http.ResponseWriter, r *http.Request) {
	h.fragment(w, r, func(id, pid string) (app.Snapshot, error) {
		_ = r.ParseForm()
		cell, err := strconv.Atoi(r.Form.Get("cell"))
		if err != nil {
			cell = -1
		}
		return h.svc.Play(id, pid, cell)
	})
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	h.fragment(w, r, func(id, pid string) (app.Snapshot, error) {
		settings, err := settingsFromForm(r)
		if err != nil {
			snap, _ := h.svc.Get(id)
			return snap, err
		}
		if snap, err := h.svc.Configure(id, pid, settings); err != nil {
			return snap, err
		}
		return h.svc.Start(id, pid)
	})
}

func (h *handlers) again(w http.ResponseWriter, r *http.Request) {
	h.fragment(w, r, h.svc.PlayAgain)
}

func (h *handlers) newGame(w http.ResponseWriter, r *http.Request) {
	h.fragment(w, r, h.svc.NewGame)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	pid := ensurePlayerCookie(w, r)
	all, err := h.matches.ListOutcomes(r.Context(), pid)
	if err != nil {
		log.Error().Err(err).Str("user", pid).Msg("list outcomes")
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	filter, err := parseResultFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data := struct {
		Stats   store.Stats
		Matches []store.Match
	}{Stats: store.Summarize(all), Matches: store.Filter(all, filter)}
	writeHTML(w, http.StatusOK, renderTemplate(h.tpl.history, "", data))
}

func parseResultFilter(r *http.Request) (domain.Result, error) {
	v := r.URL.Query().Get("result")
	if v == "" {
		return "", nil
	}
	return domain.ParseResult(v)
}

func signed(n int) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return strconv.Itoa(n)
}

var heartbeatInterval = 15 * time.Second

// writeEvent writes one SSE event; every line of data gets its own prefix.
func writeEvent(w io.Writer, event string, data []byte) {
	_, _ = fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = io.WriteString(w, "\n")
}

func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.svc.Get(id); !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	// Plain GETs only get the headers.
	if r.Header.Get("Accept") != "text/event-stream" {
		w.WriteHeader(http.StatusOK)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()
	ch, unsub, err := h.svc.Subscribe(ctx, id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer unsub()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case snap, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, "board", h.renderBoard(snap, ""))
			flusher.Flush()
		}
	}
}
