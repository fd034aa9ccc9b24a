// Package bot turns the minimax engine into an opponent with difficulty tiers.
package bot

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/rand"

	"github.com/jaminalder/tictactoe-bot/internal/domain"
	"github.com/jaminalder/tictactoe-bot/internal/engine"
)

// Source is the randomness the bot draws from. *rand.Rand satisfies it.
type Source interface {
	Float64() float64
	Intn(n int) int
}

// Player picks moves for O.
type Player struct {
	mu  sync.Mutex
	rng Source
}

// NewPlayer returns a bot drawing from rng; nil seeds a source from the clock.
func NewPlayer(rng Source) *Player {
	if rng == nil {
		rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	}
	return &Player{rng: rng}
}

// NewSeededPlayer returns a bot with a reproducible random sequence.
func NewSeededPlayer(seed uint64) *Player {
	return NewPlayer(rand.New(rand.NewSource(seed)))
}

// ChooseMove draws one value in [0,1); below the difficulty's rate a random
// empty cell is played, otherwise the searched move. Returns -1 when the board
// has no empty cell.
func (p *Player) ChooseMove(b domain.Board, d Difficulty) int {
	empty := b.EmptyCells()
	if len(empty) == 0 {
		return -1
	}

	p.mu.Lock()
	roll := p.rng.Float64()
	random := -1
	if roll < d.RandomRate() {
		random = empty[p.rng.Intn(len(empty))]
	}
	p.mu.Unlock()

	if random >= 0 {
		log.Debug().Str("difficulty", d.String()).Float64("roll", roll).Int("cell", random).Msg("bot plays random move")
		return random
	}
	res := engine.Analyze(b, domain.O)
	log.Debug().
		Str("difficulty", d.String()).
		Int("cell", res.Move).
		Int("score", res.Score).
		Int("nodes", res.Nodes).
		Msg("bot plays searched move")
	return res.Move
}
