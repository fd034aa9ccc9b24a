package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/jaminalder/tictactoe-bot/internal/bot"
	"github.com/jaminalder/tictactoe-bot/internal/domain"
)

type manualTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fire runs the callback even after Stop, like a timer that already expired
// while a reset was waiting for the lock.
func (t *manualTimer) fire() { t.f() }

type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{delay: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *manualScheduler) last(t *testing.T) *manualTimer {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.timers, "expected a scheduled bot move")
	return s.timers[len(s.timers)-1]
}

// scriptedMover plays the first empty cell from its list.
type scriptedMover struct{ cells []int }

func (m *scriptedMover) ChooseMove(b domain.Board, _ bot.Difficulty) int {
	for _, c := range m.cells {
		if b[c] == domain.Empty {
			return c
		}
	}
	return b.EmptyCells()[0]
}

type fakeRecorder struct {
	err     error
	results chan domain.Result
	users   chan string
}

func newFakeRecorder(err error) *fakeRecorder {
	return &fakeRecorder{err: err, results: make(chan domain.Result, 4), users: make(chan string, 4)}
}

func (r *fakeRecorder) RecordOutcome(_ context.Context, user string, result domain.Result) error {
	r.users <- user
	r.results <- result
	return r.err
}

func newTestController(t *testing.T, settings Settings, mover Mover, rec Recorder) (*Controller, *manualScheduler) {
	t.Helper()
	sched := &manualScheduler{}
	opts := []Option{WithScheduler(sched), WithMover(mover)}
	if rec != nil {
		opts = append(opts, WithRecorder(rec))
	}
	c := NewController("g1", "u1", settings, opts...)
	t.Cleanup(c.Close)
	return c, sched
}

func TestStartHumanFirstWaitsForHuman(t *testing.T) {
	c, sched := newTestController(t, Settings{Difficulty: bot.Hard, FirstMover: Human}, &scriptedMover{}, nil)
	require.Equal(t, Setup, c.Snapshot().Phase)

	require.NoError(t, c.Start())
	snap := c.Snapshot()
	require.Equal(t, Playing, snap.Phase)
	require.Equal(t, Human, snap.Turn)
	require.Equal(t, domain.InProgress, snap.Outcome)
	require.Zero(t, sched.count(), "bot must not be scheduled on the human's turn")
}

func TestBotMovesAfterDelay(t *testing.T) {
	c, sched := newTestController(t, Settings{Difficulty: bot.Hard}, &scriptedMover{cells: []int{4}}, nil)
	require.NoError(t, c.Start())

	snap, err := c.HumanMove(0)
	require.NoError(t, err)
	require.Equal(t, Bot, snap.Turn)
	require.True(t, snap.BotPending)
	require.Equal(t, domain.Empty, snap.Board[4], "bot move must wait for the timer")

	timer := sched.last(t)
	require.Equal(t, DefaultBotDelay, timer.delay)
	timer.fire()

	snap = c.Snapshot()
	require.Equal(t, domain.O, snap.Board[4])
	require.Equal(t, Human, snap.Turn)
	require.Equal(t, 4, snap.LastMove)
	require.False(t, snap.BotPending)
}

func TestBotFirstSchedulesOnStart(t *testing.T) {
	c, sched := newTestController(t, Settings{Difficulty: bot.Hard, FirstMover: Bot}, &scriptedMover{cells: []int{8}}, nil)
	require.NoError(t, c.Start())
	require.Equal(t, Bot, c.Snapshot().Turn)

	_, err := c.HumanMove(0)
	require.ErrorIs(t, err, ErrNotYourTurn)

	sched.last(t).fire()
	snap := c.Snapshot()
	require.Equal(t, domain.O, snap.Board[8])
	require.Equal(t, Human, snap.Turn)
}

func TestResetDiscardsPendingBotMove(t *testing.T) {
	c, sched := newTestController(t, Settings{Difficulty: bot.Hard}, &scriptedMover{cells: []int{4}}, nil)
	require.NoError(t, c.Start())
	_, err := c.HumanMove(0)
	require.NoError(t, err)
	stale := sched.last(t)

	require.NoError(t, c.NewGame())
	require.True(t, stale.stopped)
	require.NoError(t, c.Start())

	stale.fire()
	snap := c.Snapshot()
	require.Equal(t, domain.Board{}, snap.Board, "stale bot move must not land on the new board")
	require.Equal(t, Playing, snap.Phase)
	require.Equal(t, Human, snap.Turn)
}

func TestRestartWithBotFirstKeepsOnlyFreshTimer(t *testing.T) {
	c, sched := newTestController(t, Settings{Difficulty: bot.Hard, FirstMover: Bot}, &scriptedMover{cells: []int{4}}, nil)
	require.NoError(t, c.Start())
	stale := sched.last(t)

	require.NoError(t, c.NewGame())
	require.NoError(t, c.Start())
	fresh := sched.last(t)
	require.NotSame(t, stale, fresh)

	stale.fire()
	require.Equal(t, domain.Board{}, c.Snapshot().Board)

	fresh.fire()
	snap := c.Snapshot()
	require.Equal(t, 1, snap.Board.Count(domain.O))
	require.Equal(t, 0, snap.Board.Count(domain.X))
}

func TestRejectedMovesLeaveStateUntouched(t *testing.T) {
	c, sched := newTestController(t, Settings{Difficulty: bot.Hard}, &scriptedMover{cells: []int{4}}, nil)

	_, err := c.HumanMove(0)
	require.ErrorIs(t, err, ErrNotPlaying, "no moves during setup")

	require.NoError(t, c.Start())
	_, err = c.HumanMove(0)
	require.NoError(t, err)
	sched.last(t).fire()

	before := c.Snapshot()
	_, err = c.HumanMove(4)
	require.ErrorIs(t, err, domain.ErrOccupied)
	_, err = c.HumanMove(9)
	require.ErrorIs(t, err, domain.ErrOutOfBounds)
	require.Equal(t, before, c.Snapshot())

	_, err = c.HumanMove(1)
	require.NoError(t, err)
	_, err = c.HumanMove(2)
	require.ErrorIs(t, err, ErrNotYourTurn, "human cannot move twice")
}

func TestConfigureOnlyDuringSetup(t *testing.T) {
	c, _ := newTestController(t, Settings{Difficulty: bot.Easy}, &scriptedMover{}, nil)
	require.NoError(t, c.Configure(Settings{Difficulty: bot.Hard, FirstMover: Bot}))
	require.Equal(t, Settings{Difficulty: bot.Hard, FirstMover: Bot}, c.Snapshot().Settings)

	require.NoError(t, c.Start())
	require.ErrorIs(t, c.Configure(Settings{Difficulty: bot.Easy}), ErrNotInSetup)
	require.ErrorIs(t, c.Start(), ErrNotInSetup)
	require.ErrorIs(t, c.PlayAgain(), ErrNotFinished)
}

func playHumanWin(t *testing.T, c *Controller, sched *manualScheduler) {
	t.Helper()
	for _, cell := range []int{0, 1} {
		_, err := c.HumanMove(cell)
		require.NoError(t, err)
		sched.last(t).fire()
	}
	snap, err := c.HumanMove(2)
	require.NoError(t, err)
	require.Equal(t, Finished, snap.Phase)
	require.Equal(t, domain.XWins, snap.Outcome)
	require.Equal(t, domain.Win, snap.Result)
	require.Equal(t, []int{0, 1, 2}, snap.WinningLine)
}

func TestFinishedGameRecordsOnceAndFreezes(t *testing.T) {
	rec := newFakeRecorder(nil)
	c, sched := newTestController(t, Settings{Difficulty: bot.Easy}, &scriptedMover{cells: []int{3, 4, 5}}, rec)
	require.NoError(t, c.Start())
	playHumanWin(t, c, sched)

	select {
	case got := <-rec.results:
		require.Equal(t, domain.Win, got)
		require.Equal(t, "u1", <-rec.users)
	case <-time.After(2 * time.Second):
		t.Fatalf("outcome was not recorded")
	}

	frozen := c.Snapshot()
	_, err := c.HumanMove(8)
	require.ErrorIs(t, err, ErrNotPlaying)
	require.Equal(t, frozen.Board, c.Snapshot().Board)

	require.NoError(t, c.PlayAgain())
	snap := c.Snapshot()
	require.Equal(t, Playing, snap.Phase)
	require.Equal(t, domain.Board{}, snap.Board)
	require.Equal(t, bot.Easy, snap.Settings.Difficulty)

	c.Close()
	require.Empty(t, rec.results, "one record per finished game")

	require.NoError(t, c.NewGame())
	require.Equal(t, Setup, c.Snapshot().Phase)
}

func TestRecordFailureDoesNotBlockPlay(t *testing.T) {
	rec := newFakeRecorder(errors.New("store unavailable"))
	c, sched := newTestController(t, Settings{Difficulty: bot.Medium}, &scriptedMover{cells: []int{3, 4, 5}}, rec)
	require.NoError(t, c.Start())
	playHumanWin(t, c, sched)
	c.Close()
	require.Len(t, rec.results, 1)

	require.NoError(t, c.PlayAgain())
	_, err := c.HumanMove(4)
	require.NoError(t, err)
}

func TestBotWinRecordsLoss(t *testing.T) {
	rec := newFakeRecorder(nil)
	c, sched := newTestController(t, Settings{Difficulty: bot.Hard, FirstMover: Bot}, &scriptedMover{cells: []int{0, 1, 2}}, rec)
	require.NoError(t, c.Start())
	sched.last(t).fire()
	for _, cell := range []int{3, 4} {
		_, err := c.HumanMove(cell)
		require.NoError(t, err)
		sched.last(t).fire()
	}
	snap := c.Snapshot()
	require.Equal(t, domain.OWins, snap.Outcome)
	require.Equal(t, Finished, snap.Phase)
	c.Close()
	require.Equal(t, domain.Loss, <-rec.results)
}

func TestHardBotNeverLosesAgainstRandomHuman(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for game := 0; game < 40; game++ {
		first := Human
		if game%2 == 1 {
			first = Bot
		}
		c, sched := newTestController(t, Settings{Difficulty: bot.Hard, FirstMover: first}, bot.NewSeededPlayer(uint64(game)), nil)
		require.NoError(t, c.Start())
		for c.Snapshot().Phase == Playing {
			snap := c.Snapshot()
			if snap.Turn == Bot {
				sched.last(t).fire()
			} else {
				empty := snap.Board.EmptyCells()
				_, err := c.HumanMove(empty[rng.Intn(len(empty))])
				require.NoError(t, err)
			}
			b := c.Snapshot().Board
			diff := b.Count(domain.X) - b.Count(domain.O)
			require.True(t, diff >= -1 && diff <= 1, "alternation broken: %s", b)
		}
		require.NotEqual(t, domain.XWins, c.Snapshot().Outcome, "game %d", game)
	}
}

func TestClockSchedulerRunsBotMove(t *testing.T) {
	changes := make(chan Snapshot, 8)
	c := NewController("g1", "u1", Settings{Difficulty: bot.Hard},
		WithDelay(5*time.Millisecond),
		WithMover(&scriptedMover{cells: []int{4}}),
		WithOnChange(func(s Snapshot) { changes <- s }),
	)
	defer c.Close()
	require.NoError(t, c.Start())
	_, err := c.HumanMove(0)
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-changes:
			if s.Board[4] == domain.O {
				require.Equal(t, Human, s.Turn)
				return
			}
		case <-deadline:
			t.Fatalf("bot never moved")
		}
	}
}
