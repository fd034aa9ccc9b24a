package domain

import (
	"errors"
	"fmt"
)

// Result is a finished match seen from the human player, who always plays X.
type Result string

const (
	Win        Result = "win"
	Loss       Result = "loss"
	DrawResult Result = "draw"
)

var ErrUnknownResult = errors.New("unknown result")

// ResultOf maps a terminal outcome to the human's result.
func ResultOf(o Outcome) (Result, bool) {
	switch o {
	case XWins:
		return Win, true
	case OWins:
		return Loss, true
	case Draw:
		return DrawResult, true
	default:
		return "", false
	}
}

// ParseResult validates a wire value.
func ParseResult(s string) (Result, error) {
	switch r := Result(s); r {
	case Win, Loss, DrawResult:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResult, s)
}
