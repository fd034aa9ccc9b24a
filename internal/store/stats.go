package store

import (
	"fmt"
	"math"
	"sort"

	"github.com/jaminalder/tictactoe-bot/internal/domain"
)

// recentWindow is how many of the newest matches feed the trend.
const recentWindow = 10

// Stats summarises a player's history.
type Stats struct {
	Total            int    `json:"total"`
	Wins             int    `json:"wins"`
	Losses           int    `json:"losses"`
	Draws            int    `json:"draws"`
	WinPercent       int    `json:"win_percent"`
	RecentWinPercent int    `json:"recent_win_percent"`
	Trend            int    `json:"trend"`
	WinLossRatio     string `json:"win_loss_ratio"`
}

// Summarize computes totals, rounded win percentages over all and the ten
// newest matches, and the win/loss ratio ("∞" when there are wins but no losses).
func Summarize(matches []Match) Stats {
	var st Stats
	st.Total = len(matches)
	for _, m := range matches {
		switch m.Result {
		case domain.Win:
			st.Wins++
		case domain.Loss:
			st.Losses++
		case domain.DrawResult:
			st.Draws++
		}
	}
	st.WinPercent = percent(st.Wins, st.Total)

	recent := append([]Match(nil), matches...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].CreatedAt.After(recent[j].CreatedAt) })
	if len(recent) > recentWindow {
		recent = recent[:recentWindow]
	}
	recentWins := 0
	for _, m := range recent {
		if m.Result == domain.Win {
			recentWins++
		}
	}
	st.RecentWinPercent = percent(recentWins, len(recent))
	st.Trend = st.RecentWinPercent - st.WinPercent

	switch {
	case st.Losses > 0:
		st.WinLossRatio = fmt.Sprintf("%.1f", float64(st.Wins)/float64(st.Losses))
	case st.Wins > 0:
		st.WinLossRatio = "∞"
	default:
		st.WinLossRatio = "0"
	}
	return st
}

// Filter keeps matches with result r; an empty r keeps everything.
func Filter(matches []Match, r domain.Result) []Match {
	if r == "" {
		return matches
	}
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Result == r {
			out = append(out, m)
		}
	}
	return out
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) * 100 / float64(total)))
}
