package leaderboard

import "time"

type Kind string

const (
	KindWeekly  Kind = "weekly"
	KindOverall Kind = "overall"
)

func (k Kind) Valid() bool {
	return k == KindWeekly || k == KindOverall
}

type LeaderboardEntry struct {
	UserID      int64  `json:"user_id" db:"user_id"`
	Name        string `json:"name" db:"name"`
	TotalXP     int    `json:"total_xp" db:"total_xp"`
	GamesPlayed int    `json:"games_played" db:"games_played"`
	Level       int    `json:"level,omitempty" db:"level"`
	Rank        int    `json:"rank" db:"rank"`
}

type Leaderboard struct {
	Kind       Kind                `json:"type"`
	WeekStart  *time.Time          `json:"week_start,omitempty"`
	Entries    []*LeaderboardEntry `json:"entries"`
	TotalUsers int                 `json:"total_users"`
}
