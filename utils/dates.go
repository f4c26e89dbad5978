package utils

import (
	"strings"
	"time"
)

// DateOf returns midnight UTC of t's UTC calendar day.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func Yesterday(t time.Time) time.Time {
	return DateOf(t).AddDate(0, 0, -1)
}

// WeekStart returns the Monday that opens t's ISO week.
func WeekStart(t time.Time) time.Time {
	day := DateOf(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// SecondsUntilNextDay counts down to the next UTC midnight.
func SecondsUntilNextDay(t time.Time) int64 {
	next := DateOf(t).AddDate(0, 0, 1)
	return int64(next.Sub(t.UTC()).Seconds())
}

func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// GameTypeLabel turns a stored game type such as "pattern_puzzle" into display text.
func GameTypeLabel(gameType string) string {
	return strings.ReplaceAll(gameType, "_", " ")
}
