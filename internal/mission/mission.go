package mission

import "time"

type Type string

const (
	TypeGame             Type = "game"
	TypeHighScore        Type = "high_score"
	TypeScoreInGame      Type = "score_in_game"
	TypePlaySpecificGame Type = "play_specific_game"
	TypeCompleteQuizzes  Type = "complete_quizzes"
	TypeWatchVideos      Type = "watch_videos"
	TypeSolveProblems    Type = "solve_problems"
	TypePlayGame         Type = "play_game"
)

type DailyMission struct {
	ID          int64   `json:"id" db:"id"`
	MissionType Type    `json:"mission_type" db:"mission_type"`
	Title       string  `json:"title" db:"title"`
	Description *string `json:"description" db:"description"`
	TargetCount int     `json:"target_count" db:"target_count"`
	XPReward    int     `json:"xp_reward" db:"xp_reward"`
	Icon        *string `json:"icon" db:"icon"`
	IsActive    bool    `json:"is_active" db:"is_active"`
}

// MissionWithProgress is an active mission joined with one user's progress for a day.
type MissionWithProgress struct {
	DailyMission
	CurrentCount int        `json:"current_count"`
	IsCompleted  bool       `json:"is_completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Suggestion is a proposed mission template. It is never persisted here.
type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	TargetType  Type   `json:"target_type"`
	TargetCount int    `json:"target_count"`
	XPReward    int    `json:"xp_reward"`
}
