package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jaminalder/tictactoe-bot/internal/app"
	"github.com/jaminalder/tictactoe-bot/internal/bot"
	"github.com/jaminalder/tictactoe-bot/internal/domain"
	"github.com/jaminalder/tictactoe-bot/internal/store"
)

// newTestServer returns a server whose bot never gets to move on its own.
func newTestServer(t *testing.T) (*app.Service, *store.Store, http.Handler) {
	t.Helper()
	st := store.NewMemory()
	s := app.NewService(app.WithDelay(time.Hour), app.WithMover(bot.NewSeededPlayer(1)), app.WithRecorder(st))
	t.Cleanup(s.Close)
	return s, st, NewServer(s, st)
}

func postForm(t *testing.T, h http.Handler, path, pid string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if pid != "" {
		req.AddCookie(&http.Cookie{Name: playerCookie, Value: pid})
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// requireLayout checks that a full page carries the shared layout and scripts.
func requireLayout(t *testing.T, body string) {
	t.Helper()
	for _, want := range []string{"<html>", "htmx.org", "ext/sse.js", `href="/history"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("page is missing layout piece %q; got body: %q", want, body)
		}
	}
}

func TestIndexPage(t *testing.T) {
	_, _, h := newTestServer(t)
	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	requireLayout(t, body)
	if !strings.Contains(body, "<form") || !strings.Contains(body, "action=\"/game\"") {
		t.Fatalf("index should contain create form; got body: %q", body)
	}
	if !strings.Contains(body, `name="difficulty"`) || !strings.Contains(body, `value="medium" selected`) {
		t.Fatalf("index should offer difficulty with medium preselected; got body: %q", body)
	}
}

func TestCreateRedirectsToStartedGame(t *testing.T) {
	svc, _, h := newTestServer(t)
	rr := postForm(t, h, "/game", "", url.Values{"difficulty": {"hard"}, "first": {"user"}})
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	loc := rr.Result().Header.Get("Location")
	if !strings.HasPrefix(loc, "/game/") {
		t.Fatalf("expected redirect to /game/{id}, got %q", loc)
	}
	var pid string
	for _, c := range rr.Result().Cookies() {
		if c.Name == playerCookie {
			pid = c.Value
		}
	}
	if pid == "" {
		t.Fatalf("expected player cookie to be set")
	}
	snap, ok := svc.Get(strings.TrimPrefix(loc, "/game/"))
	if !ok {
		t.Fatalf("created game not found")
	}
	if snap.User != pid || snap.Phase != app.Playing || snap.Settings.Difficulty != bot.Hard {
		t.Fatalf("unexpected game: user=%q phase=%v difficulty=%v", snap.User, snap.Phase, snap.Settings.Difficulty)
	}
}

func TestCreateRejectsUnknownDifficulty(t *testing.T) {
	_, _, h := newTestServer(t)
	rr := postForm(t, h, "/game", "p1", url.Values{"difficulty": {"brutal"}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGamePageHasSSEWiring(t *testing.T) {
	svc, _, h := newTestServer(t)
	gs, _ := svc.CreateGame("p1", app.Settings{})
	svc.Start(gs.ID, "p1")

	req := httptest.NewRequest("GET", "/game/"+url.PathEscape(gs.ID), nil)
	req.AddCookie(&http.Cookie{Name: playerCookie, Value: "p1"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	requireLayout(t, body)
	if !strings.Contains(body, "hx-ext=\"sse\"") || !strings.Contains(body, "/game/"+gs.ID+"/events") {
		t.Fatalf("expected SSE wiring in page; got body: %q", body)
	}
	if strings.Count(body, `name="cell"`) != 9 || !strings.Contains(body, "Your turn") {
		t.Fatalf("expected nine playable cells; got body: %q", body)
	}

	req = httptest.NewRequest("GET", "/game/missing", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown game, got %d", rr.Code)
	}
}

func TestPlayEndpointUpdatesStateAndReturnsFragment(t *testing.T) {
	svc, _, h := newTestServer(t)
	gs, _ := svc.CreateGame("p1", app.Settings{Difficulty: bot.Hard})
	svc.Start(gs.ID, "p1")

	rr := postForm(t, h, "/game/"+gs.ID+"/play", "p1", url.Values{"cell": {"4"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "id=\"board\"") || !strings.Contains(body, "Bot is thinking") {
		t.Fatalf("expected board fragment waiting for bot, got %q", body)
	}
	latest, _ := svc.Get(gs.ID)
	if latest.Board[4] != domain.X || latest.Turn != app.Bot {
		t.Fatalf("expected move applied, board=%s turn=%v", latest.Board, latest.Turn)
	}

	rr = postForm(t, h, "/game/"+gs.ID+"/play", "p1", url.Values{"cell": {"0"}})
	if !strings.Contains(rr.Body.String(), "Not your turn") {
		t.Fatalf("expected turn rejection, got %q", rr.Body.String())
	}
	rr = postForm(t, h, "/game/"+gs.ID+"/play", "p2", url.Values{"cell": {"0"}})
	if !strings.Contains(rr.Body.String(), "spectator") {
		t.Fatalf("expected spectator rejection, got %q", rr.Body.String())
	}
	rr = postForm(t, h, "/game/missing/play", "p1", url.Values{"cell": {"0"}})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestNewGameThenStartFromFragment(t *testing.T) {
	svc, _, h := newTestServer(t)
	gs, _ := svc.CreateGame("p1", app.Settings{})
	svc.Start(gs.ID, "p1")

	rr := postForm(t, h, "/game/"+gs.ID+"/again", "p1", nil)
	if !strings.Contains(rr.Body.String(), "still in progress") {
		t.Fatalf("play again mid-game should be rejected, got %q", rr.Body.String())
	}

	rr = postForm(t, h, "/game/"+gs.ID+"/new", "p1", nil)
	if !strings.Contains(rr.Body.String(), "/game/"+gs.ID+"/start") {
		t.Fatalf("expected settings form after new game, got %q", rr.Body.String())
	}

	rr = postForm(t, h, "/game/"+gs.ID+"/start", "p1", url.Values{"difficulty": {"easy"}, "first": {"bot"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	latest, _ := svc.Get(gs.ID)
	if latest.Phase != app.Playing || latest.Settings.Difficulty != bot.Easy || latest.Settings.FirstMover != app.Bot {
		t.Fatalf("unexpected state after start: %+v", latest)
	}
	if !latest.BotPending || !strings.Contains(rr.Body.String(), "Bot is thinking") {
		t.Fatalf("bot should be scheduled to open, got %q", rr.Body.String())
	}
}

func TestEventsEndpointSSEHeaders(t *testing.T) {
	_, _, h := newTestServer(t)
	rrCreate := postForm(t, h, "/game", "p1", url.Values{})
	loc := rrCreate.Result().Header.Get("Location")
	if loc == "" {
		t.Fatalf("missing redirect location")
	}
	req := httptest.NewRequest("GET", loc+"/events", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	ct := rr.Result().Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/event-stream") {
		io.Copy(io.Discard, rr.Result().Body)
		t.Fatalf("expected text/event-stream, got %q", ct)
	}
}

func TestEventsStreamBoardFragments(t *testing.T) {
	svc, _, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()
	gs, _ := svc.CreateGame("p1", app.Settings{})
	svc.Start(gs.ID, "p1")

	req, _ := http.NewRequest("GET", srv.URL+"/game/"+gs.ID+"/events", nil)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("events request failed: %v", err)
	}
	defer resp.Body.Close()

	// The subscription is live once headers arrive.
	if _, err := svc.Play(gs.ID, "p1", 0); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	buf := make([]byte, 4096)
	var got strings.Builder
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(got.String(), "\n\n") && time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			break
		}
	}
	out := got.String()
	if !strings.HasPrefix(out, "event: board\n") || !strings.Contains(out, "data: ") {
		t.Fatalf("expected a board event, got %q", out)
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "event: board" && !strings.HasPrefix(line, "data: ") {
			t.Fatalf("unprefixed line in event: %q", line)
		}
	}
}

func TestHistoryPageShowsStats(t *testing.T) {
	_, st, h := newTestServer(t)
	ctx := context.Background()
	st.RecordOutcome(ctx, "p1", domain.Win)
	st.RecordOutcome(ctx, "p1", domain.Loss)
	st.RecordOutcome(ctx, "p1", domain.Win)
	st.RecordOutcome(ctx, "p2", domain.Loss)

	req := httptest.NewRequest("GET", "/history?result=win", nil)
	req.AddCookie(&http.Cookie{Name: playerCookie, Value: "p1"})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	requireLayout(t, body)
	if !strings.Contains(body, "Played 3: 2 wins, 1 losses, 0 draws.") {
		t.Fatalf("expected totals, got %q", body)
	}
	if !strings.Contains(body, "W/L 2.0") || strings.Count(body, `<tr class="win">`) != 2 || strings.Contains(body, `<tr class="loss">`) {
		t.Fatalf("expected filtered wins only, got %q", body)
	}

	req = httptest.NewRequest("GET", "/history?result=forfeit", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown filter, got %d", rr.Code)
	}
}
