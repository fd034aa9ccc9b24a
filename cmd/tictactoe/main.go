// Command tictactoe plays against the bot in the terminal.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jaminalder/tictactoe-bot/internal/app"
	"github.com/jaminalder/tictactoe-bot/internal/bot"
	"github.com/jaminalder/tictactoe-bot/internal/domain"
	"github.com/jaminalder/tictactoe-bot/internal/store"
)

const localUser = "local"

func main() {
	difficulty := flag.String("difficulty", "medium", "easy, medium or hard")
	first := flag.String("first", "user", "who moves first: user or bot")
	delay := flag.Duration("delay", 400*time.Millisecond, "bot thinking delay")
	storePath := flag.String("store", "", "gob file for match history; empty keeps it in memory")
	seed := flag.Uint64("seed", 0, "random seed for the bot; 0 uses the clock")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	settings, err := parseSettings(*difficulty, *first)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	matches := store.NewMemory()
	if *storePath != "" {
		if matches, err = store.Open(*storePath); err != nil {
			log.Fatal().Err(err).Msg("open match store")
		}
	}
	player := bot.NewPlayer(nil)
	if *seed != 0 {
		player = bot.NewSeededPlayer(*seed)
	}

	changes := make(chan app.Snapshot, 32)
	ctrl := app.NewController("terminal", localUser, settings,
		app.WithDelay(*delay),
		app.WithMover(player),
		app.WithRecorder(matches),
		app.WithOnChange(func(s app.Snapshot) {
			select {
			case changes <- s:
			default:
			}
		}),
	)

	ui := newTerminal(termenv.NewOutput(os.Stdout))
	if err := ctrl.Start(); err != nil {
		log.Fatal().Err(err).Msg("start game")
	}
	ui.run(ctrl, changes, readLines(os.Stdin))
	ctrl.Close()

	history, err := matches.ListOutcomes(context.Background(), localUser)
	if err != nil {
		log.Error().Err(err).Msg("list outcomes")
		return
	}
	ui.summary(store.Summarize(history))
}

func parseSettings(difficulty, first string) (app.Settings, error) {
	d, err := bot.ParseDifficulty(difficulty)
	if err != nil {
		return app.Settings{}, err
	}
	side, err := app.ParseSide(first)
	if err != nil {
		return app.Settings{}, err
	}
	return app.Settings{Difficulty: d, FirstMover: side}, nil
}

// readLines feeds stdin lines into a channel closed on EOF.
func readLines(f *os.File) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
	}()
	return lines
}

type terminal struct {
	out *termenv.Output
}

func newTerminal(out *termenv.Output) *terminal {
	return &terminal{out: out}
}

// run drives the controller until the player quits or stdin closes.
func (t *terminal) run(ctrl *app.Controller, changes <-chan app.Snapshot, lines <-chan string) {
	drawn, fresh := uint64(0), true
	for {
		snap := ctrl.Snapshot()
		if fresh || snap.Version != drawn {
			t.draw(snap)
			drawn, fresh = snap.Version, false
		}
		if snap.Phase == app.Playing && snap.BotPending {
			<-changes
			continue
		}
		t.prompt(snap)
		line, ok := <-lines
		if !ok || t.handle(ctrl, snap, line) {
			return
		}
	}
}

// handle applies one input line and reports whether the player quit.
func (t *terminal) handle(ctrl *app.Controller, snap app.Snapshot, line string) bool {
	if line == "q" || line == "quit" {
		return true
	}
	switch snap.Phase {
	case app.Playing:
		n, err := strconv.Atoi(line)
		if err != nil {
			t.warn("enter a cell from 1 to 9")
			return false
		}
		_, err = ctrl.HumanMove(n - 1)
		t.check(err)
	case app.Finished:
		switch line {
		case "", "a", "again":
			t.check(ctrl.PlayAgain())
		case "n", "new":
			t.check(ctrl.NewGame())
		default:
			t.warn("press enter to play again, n for new settings, q to quit")
		}
	case app.Setup:
		fields := strings.Fields(line)
		for len(fields) < 2 {
			fields = append(fields, "")
		}
		settings, err := parseSettings(fields[0], fields[1])
		if err != nil {
			t.warn(err.Error())
			return false
		}
		t.check(ctrl.Configure(settings))
		t.check(ctrl.Start())
	}
	return false
}

func (t *terminal) check(err error) {
	if err != nil {
		t.warn(err.Error())
	}
}

func (t *terminal) warn(msg string) {
	fmt.Fprintln(t.out, t.out.String(msg).Foreground(t.out.Color("3")).String())
}

func (t *terminal) cell(s app.Snapshot, i int) string {
	win := false
	for _, w := range s.WinningLine {
		win = win || w == i
	}
	var st termenv.Style
	switch s.Board[i] {
	case domain.X:
		st = t.out.String("X").Foreground(t.out.Color("1")).Bold()
	case domain.O:
		st = t.out.String("O").Foreground(t.out.Color("4")).Bold()
	default:
		return t.out.String(strconv.Itoa(i + 1)).Faint().String()
	}
	if win {
		st = st.Underline().Background(t.out.Color("3"))
	}
	return st.String()
}

func (t *terminal) draw(s app.Snapshot) {
	fmt.Fprintln(t.out)
	if s.Phase == app.Setup {
		fmt.Fprintln(t.out, t.out.String("New game").Bold())
		return
	}
	for r := 0; r < 3; r++ {
		fmt.Fprintf(t.out, " %s | %s | %s\n", t.cell(s, r*3), t.cell(s, r*3+1), t.cell(s, r*3+2))
		if r < 2 {
			fmt.Fprintln(t.out, "---+---+---")
		}
	}
	switch {
	case s.Phase == app.Finished:
		fmt.Fprintln(t.out, t.out.String(resultText(s)).Bold())
	case s.Turn == app.Bot:
		fmt.Fprintln(t.out, t.out.String("bot is thinking…").Italic())
	}
}

func resultText(s app.Snapshot) string {
	switch s.Result {
	case domain.Win:
		return "You win!"
	case domain.Loss:
		return "The bot wins."
	default:
		return "Draw."
	}
}

func (t *terminal) prompt(s app.Snapshot) {
	switch s.Phase {
	case app.Playing:
		fmt.Fprintf(t.out, "[%s] your move (1-9, q quits): ", s.Settings.Difficulty)
	case app.Finished:
		fmt.Fprint(t.out, "enter: play again, n: new settings, q: quit > ")
	case app.Setup:
		fmt.Fprint(t.out, "difficulty (easy|medium|hard) and first mover (user|bot): ")
	}
}

func (t *terminal) summary(st store.Stats) {
	if st.Total == 0 {
		return
	}
	fmt.Fprintf(t.out, "\n%s %d played, %d won, %d lost, %d drawn (%d%% wins, W/L %s)\n",
		t.out.String("History:").Bold(), st.Total, st.Wins, st.Losses, st.Draws, st.WinPercent, st.WinLossRatio)
}
