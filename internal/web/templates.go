package web

import (
	"bytes"
	"html/template"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jaminalder/tictactoe-bot/internal/app"
	"github.com/jaminalder/tictactoe-bot/internal/domain"
)

type templates struct {
	index   *template.Template
	game    *template.Template
	board   *template.Template
	history *template.Template
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"cellSymbol": func(c domain.Cell) string {
			switch c {
			case domain.X:
				return "X"
			case domain.O:
				return "O"
			default:
				return ""
			}
		},
		"inLine": func(line []int, i int) bool { return slices.Contains(line, i) },
		"status": statusText,
		"myTurn": func(s app.Snapshot) bool {
			return s.Phase == app.Playing && s.Turn == app.Human && !s.BotPending
		},
		"setup":    func(s app.Snapshot) bool { return s.Phase == app.Setup },
		"finished": func(s app.Snapshot) bool { return s.Phase == app.Finished },
		"signed":   signed,
	}
}

func loadTemplates() *templates {
	base := template.Must(template.New("base").Funcs(funcs()).Parse(baseTemplate))
	template.Must(base.New("board").Parse(boardTemplate))
	template.Must(base.New("settings").Parse(settingsTemplate))

	// Pages execute as "base" with their own "content" block.
	page := func(content string) *template.Template {
		t := template.Must(base.Clone())
		template.Must(t.New("content").Parse(content))
		return t
	}
	board := template.Must(template.New("board_only").Funcs(funcs()).Parse(boardTemplate))
	template.Must(board.New("settings").Parse(settingsTemplate))
	return &templates{
		index:   page(indexTemplate),
		game:    page(gameTemplate),
		history: page(historyTemplate),
		board:   board,
	}
}

func renderTemplate(t *template.Template, name string, data any) []byte {
	var buf bytes.Buffer
	var err error
	if name == "" {
		err = t.Execute(&buf, data)
	} else {
		err = t.ExecuteTemplate(&buf, name, data)
	}
	if err != nil {
		log.Error().Err(err).Str("template", t.Name()).Msg("render failed")
	}
	return buf.Bytes()
}

func statusText(s app.Snapshot) string {
	switch s.Phase {
	case app.Setup:
		return "Choose a difficulty and who moves first."
	case app.Finished:
		switch s.Result {
		case domain.Win:
			return "You win!"
		case domain.Loss:
			return "The bot wins."
		default:
			return "It's a draw."
		}
	}
	if s.Turn == app.Bot {
		return "Bot is thinking…"
	}
	return "Your turn (X)."
}

const baseTemplate = `<!doctype html><html><head>
<meta charset="utf-8"/>
<title>Tic-Tac-Toe</title>
<script src="https://unpkg.com/htmx.org@1.9.12"></script>
<script src="https://unpkg.com/htmx.org/dist/ext/sse.js"></script>
<style>
.row{display:flex}.cell{width:4em;height:4em;font-size:1.5em}.cell.win{background:#fd6}
.alert{color:#b00}
</style>
</head><body>{{template "content" .}}
<p><a href="/">New game</a> · <a href="/history">History</a></p>
</body></html>`

const settingsTemplate = `
<label>Difficulty
  <select name="difficulty">
    <option value="easy"{{if eq .Difficulty "easy"}} selected{{end}}>Easy</option>
    <option value="medium"{{if eq .Difficulty "medium"}} selected{{end}}>Medium</option>
    <option value="hard"{{if eq .Difficulty "hard"}} selected{{end}}>Hard</option>
  </select>
</label>
<label>First move
  <select name="first">
    <option value="user"{{if eq .First "user"}} selected{{end}}>You</option>
    <option value="bot"{{if eq .First "bot"}} selected{{end}}>Bot</option>
  </select>
</label>`

const indexTemplate = `<h1>Tic-Tac-Toe</h1>
<form action="/game" method="post">
{{template "settings" .}}
<button>Start</button>
</form>`

const gameTemplate = `
<h1>Tic-Tac-Toe</h1>
<div hx-ext="sse" sse-connect="/game/{{.ID}}/events" hx-sse="connect:/game/{{.ID}}/events">
  <div id="board" hx-sse="swap:board" sse-swap="board">{{.BoardHTML}}</div>
</div>`

const boardTemplate = `
<div id="board">
  <p class="status">{{status .Snap}}</p>
  {{if .Error}}<div class="alert">{{.Error}}</div>{{end}}
  {{if setup .Snap}}
  <form hx-post="/game/{{.Snap.ID}}/start" hx-target="#board" hx-swap="outerHTML" method="post" action="/game/{{.Snap.ID}}/start">
    {{template "settings" .Form}}
    <button>Start</button>
  </form>
  {{else}}
  {{$s := .Snap}}{{$turn := myTurn .Snap}}
  {{range $r := .Rows}}
  <div class="row">
    {{range $i := $r}}
      <form hx-post="/game/{{$s.ID}}/play" hx-target="#board" hx-swap="outerHTML" method="post" action="/game/{{$s.ID}}/play">
        <input type="hidden" name="cell" value="{{$i}}">
        <button class="cell{{if inLine $s.WinningLine $i}} win{{end}}" type="submit"{{if or (not $turn) (cellSymbol (index $s.Board $i))}} disabled{{end}}>{{cellSymbol (index $s.Board $i)}}</button>
      </form>
    {{end}}
  </div>
  {{end}}
  <p>Difficulty: {{.Snap.Settings.Difficulty}}</p>
  {{if finished .Snap}}
  <form hx-post="/game/{{.Snap.ID}}/again" hx-target="#board" hx-swap="outerHTML" method="post" action="/game/{{.Snap.ID}}/again"><button>Play again</button></form>
  {{end}}
  <form hx-post="/game/{{.Snap.ID}}/new" hx-target="#board" hx-swap="outerHTML" method="post" action="/game/{{.Snap.ID}}/new"><button>Change settings</button></form>
  {{end}}
</div>
`

const historyTemplate = `<h1>History</h1>
<p>Played {{.Stats.Total}}: {{.Stats.Wins}} wins, {{.Stats.Losses}} losses, {{.Stats.Draws}} draws.</p>
<p>Win rate {{.Stats.WinPercent}}%, last 10: {{.Stats.RecentWinPercent}}% ({{signed .Stats.Trend}}). W/L {{.Stats.WinLossRatio}}</p>
<p>
  <a href="/history">All</a> · <a href="/history?result=win">Wins</a> ·
  <a href="/history?result=loss">Losses</a> · <a href="/history?result=draw">Draws</a>
</p>
{{if .Matches}}
<table>
  <tr><th>When</th><th>Result</th></tr>
  {{range .Matches}}<tr class="{{.Result}}"><td>{{.CreatedAt.Format "2006-01-02 15:04"}}</td><td>{{.Result}}</td></tr>{{end}}
</table>
{{else}}
<p>No games yet.</p>
{{end}}`

// boardRows is the grid layout fed to the board template.
var boardRows = [][]int{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}}

// settingsForm holds the selected options of the settings form.
type settingsForm struct {
	Difficulty string
	First      string
}

func formOf(s app.Settings) settingsForm {
	return settingsForm{Difficulty: s.Difficulty.String(), First: s.FirstMover.String()}
}

const playerCookie = "player_id"

// ensurePlayerCookie returns the caller's player ID, issuing one if missing.
func ensurePlayerCookie(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookie); err == nil && c.Value != "" {
		return c.Value
	}
	v := uuid.NewString()
	http.SetCookie(w, &http.Cookie{Name: playerCookie, Value: v, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	// Later lookups in the same request see the new ID.
	r.AddCookie(&http.Cookie{Name: playerCookie, Value: v})
	return v
}

func playerID(r *http.Request) string {
	if c, err := r.Cookie(playerCookie); err == nil {
		return c.Value
	}
	return ""
}
