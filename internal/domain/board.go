package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Cell represents a board cell state.
type Cell uint8

const (
	Empty Cell = iota
	X
	O
)

func (c Cell) String() string {
	switch c {
	case X:
		return "X"
	case O:
		return "O"
	default:
		return ""
	}
}

// Opponent returns the other mark. Empty has no opponent and maps to itself.
func (c Cell) Opponent() Cell {
	switch c {
	case X:
		return O
	case O:
		return X
	default:
		return Empty
	}
}

func (c Cell) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Cell) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "X":
		*c = X
	case "O":
		*c = O
	case "", ".", "-":
		*c = Empty
	default:
		return fmt.Errorf("%w: %q", ErrBadCell, b)
	}
	return nil
}

// Board is a fixed 3x3 board stored row-major.
type Board [9]Cell

// WinLines holds the index triples that complete a game.
var WinLines = [8][3]int{
	// rows
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	// cols
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	// diags
	{0, 4, 8}, {2, 4, 6},
}

var ErrBadCell = errors.New("bad cell")

// Outcome is derived from a Board and never stored on its own.
type Outcome uint8

const (
	InProgress Outcome = iota
	XWins
	OWins
	Draw
)

func (o Outcome) String() string {
	switch o {
	case XWins:
		return "x_wins"
	case OWins:
		return "o_wins"
	case Draw:
		return "draw"
	default:
		return "in_progress"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Terminal reports whether no further moves may be played.
func (o Outcome) Terminal() bool { return o != InProgress }

// Winner returns the winning mark, or Empty for draws and unfinished games.
func (o Outcome) Winner() Cell {
	switch o {
	case XWins:
		return X
	case OWins:
		return O
	default:
		return Empty
	}
}

// Evaluate returns the outcome of b. The first complete line decides the
// winner; a full board without one is a draw.
func Evaluate(b Board) Outcome {
	if line, ok := b.WinningLine(); ok {
		if b[line[0]] == X {
			return XWins
		}
		return OWins
	}
	if b.Count(Empty) == 0 {
		return Draw
	}
	return InProgress
}

// WinningLine returns the first line held entirely by one mark.
func (b Board) WinningLine() ([3]int, bool) {
	for _, ln := range WinLines {
		c := b[ln[0]]
		if c != Empty && b[ln[1]] == c && b[ln[2]] == c {
			return ln, true
		}
	}
	return [3]int{}, false
}

// Count returns how many cells hold c.
func (b Board) Count(c Cell) int {
	n := 0
	for _, v := range b {
		if v == c {
			n++
		}
	}
	return n
}

// EmptyCells lists free cell indexes in scan order.
func (b Board) EmptyCells() []int {
	out := make([]int, 0, 9)
	for i, v := range b {
		if v == Empty {
			out = append(out, i)
		}
	}
	return out
}

// String renders the board as nine characters, '.' for empty cells.
func (b Board) String() string {
	var sb strings.Builder
	for _, v := range b {
		if v == Empty {
			sb.WriteByte('.')
			continue
		}
		sb.WriteString(v.String())
	}
	return sb.String()
}

// ParseBoard reads the nine-character notation produced by Board.String.
// Whitespace and '|' separators are ignored.
func ParseBoard(s string) (Board, error) {
	var b Board
	i := 0
	for _, r := range s {
		switch r {
		case ' ', '\n', '\t', '|':
			continue
		}
		if i == len(b) {
			return Board{}, fmt.Errorf("%w: more than 9 cells in %q", ErrBadCell, s)
		}
		if err := b[i].UnmarshalText([]byte(string(r))); err != nil {
			return Board{}, err
		}
		i++
	}
	if i != len(b) {
		return Board{}, fmt.Errorf("%w: %d cells in %q", ErrBadCell, i, s)
	}
	return b, nil
}
