// Package store keeps the match history behind the game: one record per
// finished game, optionally snapshotted to a gob file.
package store

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jaminalder/tictactoe-bot/internal/domain"
)

var ErrMissingUser = errors.New("user is required")

// Match is one finished game.
type Match struct {
	ID        string        `json:"id"`
	User      string        `json:"user"`
	Result    domain.Result `json:"result"`
	CreatedAt time.Time     `json:"created_at"`
}

type snapshot struct {
	Matches []Match
}

// Store is an in-memory match log. A non-empty path persists every write.
type Store struct {
	mu      sync.RWMutex
	matches []Match
	path    string
	now     func() time.Time
}

// NewMemory returns a store that keeps nothing on disk.
func NewMemory() *Store {
	return &Store{now: time.Now}
}

// Open loads the snapshot at path, if any, and persists later writes there.
func Open(path string) (*Store, error) {
	s := &Store{path: path, now: time.Now}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", path).Msg("starting with empty match history")
			return s, nil
		}
		return nil, fmt.Errorf("open match history: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode match history %s: %w", path, err)
	}
	s.matches = snap.Matches
	log.Info().Str("path", path).Int("matches", len(s.matches)).Msg("restored match history")
	return s, nil
}

// RecordOutcome stores a finished game for user.
func (s *Store) RecordOutcome(ctx context.Context, user string, result domain.Result) error {
	_, err := s.Create(ctx, user, result)
	return err
}

// Create validates and appends a match.
func (s *Store) Create(ctx context.Context, user string, result domain.Result) (Match, error) {
	if err := ctx.Err(); err != nil {
		return Match{}, err
	}
	if user == "" {
		return Match{}, ErrMissingUser
	}
	if _, err := domain.ParseResult(string(result)); err != nil {
		return Match{}, err
	}
	m := Match{ID: uuid.NewString(), User: user, Result: result, CreatedAt: s.now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches = append(s.matches, m)
	if err := s.persistLocked(); err != nil {
		s.matches = s.matches[:len(s.matches)-1]
		return Match{}, err
	}
	return m, nil
}

// ListOutcomes returns user's matches, newest first.
func (s *Store) ListOutcomes(ctx context.Context, user string) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Match, 0)
	for i := len(s.matches) - 1; i >= 0; i-- {
		if s.matches[i].User == user {
			out = append(out, s.matches[i])
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("persist match history: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".matches-*")
	if err != nil {
		return fmt.Errorf("persist match history: %w", err)
	}
	if err := gob.NewEncoder(tmp).Encode(snapshot{Matches: s.matches}); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode match history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist match history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("persist match history: %w", err)
	}
	return nil
}
