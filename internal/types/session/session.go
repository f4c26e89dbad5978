package session

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"mindagrowAPI/internal/types/streak"
)

const (
	XPPerCorrectAnswer = 10
	CompletionBonusXP  = 50
)

var ErrInvalidSubmission = errors.New("correct_answers must be between 0 and questions_answered")

type GameSession struct {
	ID                int64           `json:"id" db:"id"`
	UserID            int64           `json:"user_id" db:"user_id"`
	GameID            int64           `json:"game_id" db:"game_id"`
	SessionEnd        *time.Time      `json:"session_end" db:"session_end"`
	IsCompleted       bool            `json:"is_completed" db:"is_completed"`
	Score             int             `json:"score" db:"score"`
	XPEarned          int             `json:"xp_earned" db:"xp_earned"`
	QuestionsAnswered int             `json:"questions_answered" db:"questions_answered"`
	CorrectAnswers    int             `json:"correct_answers" db:"correct_answers"`
	SessionData       json.RawMessage `json:"session_data,omitempty" db:"session_data"`
}

type Game struct {
	ID           int64   `json:"id" db:"id"`
	GameKey      string  `json:"game_key" db:"game_key"`
	Name         string  `json:"name" db:"name"`
	Type         string  `json:"type" db:"type"`
	Description  *string `json:"description,omitempty" db:"description"`
	Difficulty   string  `json:"difficulty" db:"difficulty"`
	MaxQuestions int     `json:"max_questions" db:"max_questions"`
}

// GameProgress is a learner's cumulative record on one game.
type GameProgress struct {
	Game           Game      `json:"game"`
	TotalQuestions int       `json:"total_questions" db:"total_questions"`
	CorrectAnswers int       `json:"correct_answers" db:"correct_answers"`
	Percentage     float64   `json:"percentage" db:"percentage"`
	IsCompleted    bool      `json:"is_completed" db:"is_completed"`
	LastPlayedAt   time.Time `json:"last_played_at" db:"last_played_at"`
}

// Submission is what a client reports after finishing a round.
type Submission struct {
	QuestionsAnswered int             `json:"questions_answered"`
	CorrectAnswers    int             `json:"correct_answers"`
	SessionData       json.RawMessage `json:"session_data,omitempty"`
}

func (s Submission) Validate() error {
	if s.QuestionsAnswered < 0 || s.CorrectAnswers < 0 || s.CorrectAnswers > s.QuestionsAnswered {
		return ErrInvalidSubmission
	}
	return nil
}

// Score is the round's percentage of correct answers, 0 when nothing was answered.
func (s Submission) Score() int {
	if s.QuestionsAnswered == 0 {
		return 0
	}
	return s.CorrectAnswers * 100 / s.QuestionsAnswered
}

// Recorded is everything a submission changed in one transaction.
type Recorded struct {
	Session  *GameSession       `json:"session"`
	Progress *GameProgress      `json:"progress"`
	Streak   *streak.UserStreak `json:"streak"`
}

// XPEarned rewards each correct answer, adds the bonus once the game is completed,
// then scales by difficulty and rounds down. Unknown difficulties count as easy.
func XPEarned(correct int, completed bool, difficulty string) int {
	xp := correct * XPPerCorrectAnswer
	if completed {
		xp += CompletionBonusXP
	}

	switch strings.ToLower(strings.TrimSpace(difficulty)) {
	case "medium":
		return xp * 12 / 10
	case "hard":
		return xp * 15 / 10
	default:
		return xp
	}
}

// TypeStat aggregates a user's completed sessions for one game type.
type TypeStat struct {
	Type     string  `json:"type"`
	Plays    int     `json:"plays,omitempty"`
	AvgScore float64 `json:"avg_score,omitempty"`
}
