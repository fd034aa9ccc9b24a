package domain

import "errors"

// Game holds the current state of a Tic-Tac-Toe match.
type Game struct {
	Board Board
	Turn  Cell
	Moves int
}

// Errors returned by domain operations.
var (
	ErrOutOfBounds = errors.New("out of bounds")
	ErrOccupied    = errors.New("cell occupied")
	ErrGameOver    = errors.New("game over")
)

// New returns an empty game with first to move.
func New(first Cell) Game {
	if first != O {
		first = X
	}
	return Game{Turn: first}
}

// Outcome evaluates the current board.
func (g Game) Outcome() Outcome { return Evaluate(g.Board) }

// Play places the current turn's mark at cell (0..8) and passes the turn
// unless the move ended the game.
func (g *Game) Play(cell int) error {
	if g.Outcome().Terminal() {
		return ErrGameOver
	}
	if cell < 0 || cell >= len(g.Board) {
		return ErrOutOfBounds
	}
	if g.Board[cell] != Empty {
		return ErrOccupied
	}

	g.Board[cell] = g.Turn
	g.Moves++

	if g.Outcome().Terminal() {
		return nil
	}
	g.Turn = g.Turn.Opponent()
	return nil
}
