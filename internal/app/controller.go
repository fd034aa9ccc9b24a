package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jaminalder/tictactoe-bot/internal/bot"
	"github.com/jaminalder/tictactoe-bot/internal/domain"
)

// Errors returned when an action does not fit the controller's state.
var (
	ErrNotPlaying  = errors.New("game is not in progress")
	ErrNotInSetup  = errors.New("game already started")
	ErrNotFinished = errors.New("game is not finished")
	ErrNotYourTurn = errors.New("not your turn")
)

// Phase is the controller's state machine position.
type Phase uint8

const (
	Setup Phase = iota
	Playing
	Finished
)

func (p Phase) String() string {
	switch p {
	case Playing:
		return "playing"
	case Finished:
		return "finished"
	default:
		return "setup"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Side is a participant. The human always plays X and the bot O.
type Side uint8

const (
	Human Side = iota
	Bot
)

func (s Side) String() string {
	if s == Bot {
		return "bot"
	}
	return "user"
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSide accepts "user"/"human" and "bot"/"ai".
func ParseSide(v string) (Side, error) {
	switch v {
	case "", "user", "human":
		return Human, nil
	case "bot", "ai":
		return Bot, nil
	}
	return Human, fmt.Errorf("unknown side %q", v)
}

// Mark returns the side's symbol.
func (s Side) Mark() domain.Cell {
	if s == Bot {
		return domain.O
	}
	return domain.X
}

func sideOf(c domain.Cell) Side {
	if c == domain.O {
		return Bot
	}
	return Human
}

// Settings is chosen during setup and fixed while a game runs.
type Settings struct {
	Difficulty bot.Difficulty `json:"difficulty"`
	FirstMover Side           `json:"first_mover"`
}

// Mover picks the bot's cell for a board.
type Mover interface {
	ChooseMove(b domain.Board, d bot.Difficulty) int
}

// Recorder persists finished matches.
type Recorder interface {
	RecordOutcome(ctx context.Context, user string, result domain.Result) error
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Snapshot is a copy of the controller state.
type Snapshot struct {
	ID          string         `json:"id"`
	User        string         `json:"user"`
	Phase       Phase          `json:"phase"`
	Settings    Settings       `json:"settings"`
	Board       domain.Board   `json:"board"`
	Turn        Side           `json:"turn"`
	Outcome     domain.Outcome `json:"outcome"`
	Result      domain.Result  `json:"result,omitempty"`
	WinningLine []int          `json:"winning_line,omitempty"`
	LastMove    int            `json:"last_move"`
	BotPending  bool           `json:"bot_pending"`
	Version     uint64         `json:"version"`
}

// Option configures a Controller.
type Option func(c *Controller)

// WithDelay sets the pause before the bot moves.
func WithDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithScheduler replaces the wall-clock timer source.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) {
		if s != nil {
			c.sched = s
		}
	}
}

// WithMover sets the bot's move policy.
func WithMover(m Mover) Option {
	return func(c *Controller) {
		if m != nil {
			c.mover = m
		}
	}
}

// WithRecorder sets where finished games are reported.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithRecordTimeout bounds one RecordOutcome call.
func WithRecordTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.recordTimeout = d
		}
	}
}

// WithOnChange registers a callback run after every state change, outside the lock.
func WithOnChange(f func(Snapshot)) Option {
	return func(c *Controller) {
		c.onChange = f
	}
}

const (
	DefaultBotDelay      = 600 * time.Millisecond
	DefaultRecordTimeout = 5 * time.Second
)

// Controller drives one human-versus-bot game through setup, play and finish.
type Controller struct {
	mu       sync.Mutex
	id       string
	user     string
	settings Settings
	phase    Phase
	game     domain.Game
	lastMove int
	version  uint64

	// generation invalidates scheduled bot moves on every reset.
	generation uint64
	pending    Timer

	delay         time.Duration
	recordTimeout time.Duration
	sched         Scheduler
	mover         Mover
	recorder      Recorder
	onChange      func(Snapshot)
	records       sync.WaitGroup
}

// NewController returns a controller in Setup.
func NewController(id, user string, settings Settings, opts ...Option) *Controller {
	c := &Controller{
		id:            id,
		user:          user,
		settings:      settings,
		lastMove:      -1,
		delay:         DefaultBotDelay,
		recordTimeout: DefaultRecordTimeout,
		sched:         clockScheduler{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mover == nil {
		c.mover = bot.NewPlayer(nil)
	}
	c.game = domain.New(settings.FirstMover.Mark())
	return c
}

// Configure changes difficulty and first mover. Only allowed in Setup.
func (c *Controller) Configure(s Settings) error {
	c.mu.Lock()
	if c.phase != Setup {
		c.mu.Unlock()
		return ErrNotInSetup
	}
	c.settings = s
	c.game = domain.New(s.FirstMover.Mark())
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// Start moves from Setup to Playing.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.phase != Setup {
		c.mu.Unlock()
		return ErrNotInSetup
	}
	c.resetLocked(Playing)
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// PlayAgain clears a finished board and restarts with the same settings.
func (c *Controller) PlayAgain() error {
	c.mu.Lock()
	if c.phase != Finished {
		c.mu.Unlock()
		return ErrNotFinished
	}
	c.resetLocked(Playing)
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// NewGame abandons the current game and returns to Setup.
func (c *Controller) NewGame() error {
	c.mu.Lock()
	if c.phase == Setup {
		c.mu.Unlock()
		return ErrNotPlaying
	}
	c.resetLocked(Setup)
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// HumanMove plays X at cell. Rejected moves leave the state untouched.
func (c *Controller) HumanMove(cell int) (Snapshot, error) {
	c.mu.Lock()
	rec, err := c.applyLocked(Human, cell)
	if err != nil {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	c.record(rec)
	return snap, nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close cancels any pending bot move and waits for in-flight recordings.
func (c *Controller) Close() {
	c.mu.Lock()
	c.cancelPendingLocked()
	c.mu.Unlock()
	c.records.Wait()
}

func (c *Controller) resetLocked(phase Phase) {
	c.cancelPendingLocked()
	c.phase = phase
	c.game = domain.New(c.settings.FirstMover.Mark())
	c.lastMove = -1
	if phase == Playing {
		c.scheduleBotLocked()
	}
}

func (c *Controller) cancelPendingLocked() {
	c.generation++
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

func (c *Controller) scheduleBotLocked() {
	if c.phase != Playing || sideOf(c.game.Turn) != Bot || c.game.Outcome().Terminal() {
		return
	}
	gen := c.generation
	c.pending = c.sched.AfterFunc(c.delay, func() { c.botMove(gen) })
}

func (c *Controller) botMove(gen uint64) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		log.Debug().Str("game", c.id).Msg("discarding stale bot move")
		return
	}
	c.pending = nil
	cell := c.mover.ChooseMove(c.game.Board, c.settings.Difficulty)
	rec, err := c.applyLocked(Bot, cell)
	if err != nil {
		c.mu.Unlock()
		log.Error().Err(err).Str("game", c.id).Int("cell", cell).Msg("bot move rejected")
		return
	}
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
	c.record(rec)
}

type recordJob struct {
	user   string
	result domain.Result
}

func (c *Controller) applyLocked(side Side, cell int) (*recordJob, error) {
	if c.phase != Playing {
		return nil, ErrNotPlaying
	}
	if sideOf(c.game.Turn) != side {
		return nil, ErrNotYourTurn
	}
	if err := c.game.Play(cell); err != nil {
		return nil, err
	}
	c.lastMove = cell

	outcome := c.game.Outcome()
	if !outcome.Terminal() {
		c.scheduleBotLocked()
		return nil, nil
	}
	c.phase = Finished
	result, _ := domain.ResultOf(outcome)
	log.Info().Str("game", c.id).Str("user", c.user).Str("result", string(result)).Msg("game finished")
	if c.recorder == nil {
		return nil, nil
	}
	return &recordJob{user: c.user, result: result}, nil
}

func (c *Controller) changedLocked() Snapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	outcome := c.game.Outcome()
	snap := Snapshot{
		ID:         c.id,
		User:       c.user,
		Phase:      c.phase,
		Settings:   c.settings,
		Board:      c.game.Board,
		Turn:       sideOf(c.game.Turn),
		Outcome:    outcome,
		LastMove:   c.lastMove,
		BotPending: c.pending != nil,
		Version:    c.version,
	}
	if r, ok := domain.ResultOf(outcome); ok {
		snap.Result = r
	}
	if line, ok := c.game.Board.WinningLine(); ok {
		snap.WinningLine = line[:]
	}
	return snap
}

func (c *Controller) notify(s Snapshot) {
	if c.onChange != nil {
		c.onChange(s)
	}
}

// record reports a finished game without blocking play; failures are only logged.
func (c *Controller) record(job *recordJob) {
	if job == nil {
		return
	}
	c.records.Add(1)
	go func() {
		defer c.records.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.recordTimeout)
		defer cancel()
		if err := c.recorder.RecordOutcome(ctx, job.user, job.result); err != nil {
			log.Warn().Err(err).Str("game", c.id).Str("user", job.user).Msg("recording outcome failed")
		}
	}()
}
