package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jaminalder/tictactoe-bot/internal/domain"
	"github.com/jaminalder/tictactoe-bot/internal/engine"
)

// Errors exposed by the service layer.
var (
	ErrNotFound   = errors.New("game not found")
	ErrNotAPlayer = errors.New("not a player")
)

type session struct {
	ctrl *Controller
	user string
	// touched is the last time the game changed or its owner acted on it.
	touched time.Time
}

type subscriber struct {
	ch        chan Snapshot
	closeOnce sync.Once
}

func (s *subscriber) close() { s.closeOnce.Do(func() { close(s.ch) }) }

// Service manages games and subscribers.
type Service struct {
	mu    sync.Mutex
	games map[string]*session
	subs  map[string]map[*subscriber]struct{}
	opts  []Option
	now   func() time.Time
}

// NewService creates a service; opts apply to every game's controller.
func NewService(opts ...Option) *Service {
	return &Service{
		games: make(map[string]*session),
		subs:  make(map[string]map[*subscriber]struct{}),
		opts:  opts,
		now:   time.Now,
	}
}

// CreateGame registers a new game in Setup owned by user.
func (s *Service) CreateGame(user string, settings Settings) (Snapshot, error) {
	if user == "" {
		return Snapshot{}, ErrNotAPlayer
	}
	id := uuid.NewString()
	opts := append(append([]Option(nil), s.opts...), WithOnChange(func(snap Snapshot) { s.broadcast(id, snap) }))
	ctrl := NewController(id, user, settings, opts...)

	s.mu.Lock()
	s.games[id] = &session{ctrl: ctrl, user: user, touched: s.now()}
	s.mu.Unlock()
	return ctrl.Snapshot(), nil
}

// Get returns a copy of the game state if present.
func (s *Service) Get(id string) (Snapshot, bool) {
	s.mu.Lock()
	gs, ok := s.games[id]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return gs.ctrl.Snapshot(), true
}

// Configure changes settings of a game still in Setup.
func (s *Service) Configure(id, user string, settings Settings) (Snapshot, error) {
	return s.do(id, user, func(c *Controller) error { return c.Configure(settings) })
}

// Start begins play.
func (s *Service) Start(id, user string) (Snapshot, error) {
	return s.do(id, user, (*Controller).Start)
}

// Play validates ownership and applies the human's move.
func (s *Service) Play(id, user string, cell int) (Snapshot, error) {
	return s.do(id, user, func(c *Controller) error {
		_, err := c.HumanMove(cell)
		return err
	})
}

// PlayAgain restarts a finished game with the same settings.
func (s *Service) PlayAgain(id, user string) (Snapshot, error) {
	return s.do(id, user, (*Controller).PlayAgain)
}

// NewGame returns the game to Setup.
func (s *Service) NewGame(id, user string) (Snapshot, error) {
	return s.do(id, user, (*Controller).NewGame)
}

// Hint suggests a cell for the human.
func (s *Service) Hint(id string) (int, error) {
	snap, ok := s.Get(id)
	if !ok {
		return -1, ErrNotFound
	}
	if snap.Phase != Playing {
		return -1, ErrNotPlaying
	}
	if snap.Turn != Human {
		return -1, ErrNotYourTurn
	}
	return engine.BestMove(snap.Board, domain.X), nil
}

func (s *Service) do(id, user string, action func(c *Controller) error) (Snapshot, error) {
	s.mu.Lock()
	gs, ok := s.games[id]
	if !ok {
		s.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}
	if gs.user != user {
		s.mu.Unlock()
		return gs.ctrl.Snapshot(), ErrNotAPlayer
	}
	gs.touched = s.now()
	s.mu.Unlock()

	err := action(gs.ctrl)
	return gs.ctrl.Snapshot(), err
}

// Subscribe registers a subscriber for a game. Returns a channel and an unsubscribe func.
func (s *Service) Subscribe(ctx context.Context, id string) (<-chan Snapshot, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[id]; !ok {
		return nil, func() {}, ErrNotFound
	}
	set := s.subs[id]
	if set == nil {
		set = make(map[*subscriber]struct{})
		s.subs[id] = set
	}
	sub := &subscriber{ch: make(chan Snapshot, 8)}
	set[sub] = struct{}{}

	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			s.mu.Lock()
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
			}
			sub.close()
			s.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return sub.ch, unsub, nil
}

// Close stops pending bot moves and waits for outcome recordings.
func (s *Service) Close() {
	s.mu.Lock()
	ctrls := make([]*Controller, 0, len(s.games))
	for _, gs := range s.games {
		ctrls = append(ctrls, gs.ctrl)
	}
	s.mu.Unlock()
	for _, c := range ctrls {
		c.Close()
	}
}

func (s *Service) broadcast(id string, snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gs, ok := s.games[id]; ok {
		gs.touched = s.now()
	}
	// Sends never block; slow subscribers are closed and dropped. Holding the
	// lock keeps unsubscribe from closing a channel mid-send.
	for sub := range s.subs[id] {
		select {
		case sub.ch <- snap:
		default:
			sub.close()
			delete(s.subs[id], sub)
		}
	}
}

// Evict removes games idle for longer than maxIdle, closing their
// subscribers. Games waiting on a bot move are kept.
func (s *Service) Evict(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	var stale []*Controller

	s.mu.Lock()
	for id, gs := range s.games {
		if gs.touched.After(cutoff) || gs.ctrl.Snapshot().BotPending {
			continue
		}
		delete(s.games, id)
		for sub := range s.subs[id] {
			sub.close()
		}
		delete(s.subs, id)
		stale = append(stale, gs.ctrl)
	}
	s.mu.Unlock()

	for _, c := range stale {
		c.Close()
	}
	if len(stale) > 0 {
		log.Info().Int("evicted", len(stale)).Dur("max_idle", maxIdle).Msg("evicted idle games")
	}
	return len(stale)
}

// RunJanitor evicts idle games every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evict(maxIdle)
		}
	}
}
