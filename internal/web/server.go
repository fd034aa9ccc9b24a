package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jaminalder/tictactoe-bot/internal/app"
)

// NewServer wires routes and returns an http.Handler.
func NewServer(s *app.Service, matches MatchStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := &handlers{svc: s, matches: matches, tpl: loadTemplates()}
	r.Get("/", h.index)
	r.Post("/game", h.create)
	r.Route("/game/{id}", func(r chi.Router) {
		r.Get("/", h.view)
		r.Post("/start", h.start)
		r.Post("/play", h.play)
		r.Post("/again", h.again)
		r.Post("/new", h.newGame)
		r.Get("/events", h.events)
		r.Get("/ws", h.ws)
	})
	r.Get("/history", h.history)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		})
		r.Post("/games", h.apiCreateGame)
		r.Get("/games/{id}", h.apiGetGame)
		r.Post("/games/{id}/moves", h.apiMove)
		r.Get("/games/{id}/hint", h.apiHint)
		r.Post("/matches", h.apiCreateMatch)
		r.Get("/matches/user/{userID}", h.apiListMatches)
		r.Get("/stats/{userID}", h.apiStats)
	})
	return r
}
