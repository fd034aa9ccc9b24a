// Package engine implements the bot's exhaustive minimax search.
//
// Scores are always taken from O's point of view: O is the maximizer and X
// the minimizer, whichever side opened the game. A win is worth 10 minus the
// plies played below the root candidate, so faster wins and slower losses
// rank higher. Nothing is cached between calls.
package engine

import (
	"math"

	"github.com/jaminalder/tictactoe-bot/internal/domain"
)

const winScore = 10

// Result describes one root search.
type Result struct {
	Move  int
	Score int
	Nodes int
}

// BestMove returns the best cell for toMove, or -1 when b is terminal or full.
func BestMove(b domain.Board, toMove domain.Cell) int {
	return Analyze(b, toMove).Move
}

// Analyze scans the empty cells in index order and keeps the first one with
// the strictly best score: highest for O, lowest for X.
func Analyze(b domain.Board, toMove domain.Cell) Result {
	res := Result{Move: -1}
	if toMove != domain.X && toMove != domain.O {
		return res
	}
	if domain.Evaluate(b).Terminal() {
		return res
	}
	s := &search{board: b}
	for i := range s.board {
		if s.board[i] != domain.Empty {
			continue
		}
		s.board[i] = toMove
		score := s.minimax(0, toMove.Opponent())
		s.board[i] = domain.Empty
		if res.Move == -1 || better(toMove, score, res.Score) {
			res.Move, res.Score = i, score
		}
	}
	res.Nodes = s.nodes
	return res
}

func better(side domain.Cell, score, best int) bool {
	if side == domain.O {
		return score > best
	}
	return score < best
}

type search struct {
	board domain.Board
	nodes int
}

func (s *search) minimax(depth int, toMove domain.Cell) int {
	s.nodes++
	switch domain.Evaluate(s.board) {
	case domain.OWins:
		return winScore - depth
	case domain.XWins:
		return -winScore + depth
	case domain.Draw:
		return 0
	}

	if toMove == domain.O {
		best := math.MinInt
		for i := range s.board {
			if s.board[i] != domain.Empty {
				continue
			}
			s.board[i] = domain.O
			best = max(best, s.minimax(depth+1, domain.X))
			s.board[i] = domain.Empty
		}
		return best
	}

	best := math.MaxInt
	for i := range s.board {
		if s.board[i] != domain.Empty {
			continue
		}
		s.board[i] = domain.X
		best = min(best, s.minimax(depth+1, domain.O))
		s.board[i] = domain.Empty
	}
	return best
}
