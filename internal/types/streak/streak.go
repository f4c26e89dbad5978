package streak

import "time"

type UserStreak struct {
	UserID           int64      `json:"user_id" db:"user_id"`
	CurrentStreak    int        `json:"current_streak" db:"current_streak"`
	LongestStreak    int        `json:"longest_streak" db:"longest_streak"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	LastActivityDate *time.Time `json:"last_activity_date" db:"last_activity_date"`
	StreakStartDate  *time.Time `json:"streak_start_date" db:"streak_start_date"`
}

type StreakStatus struct {
	*UserStreak
	SecondsUntilReset int64 `json:"seconds_until_reset"`
}

// Advance applies one day of activity on day (UTC midnight) and reports whether anything changed.
func (s *UserStreak) Advance(day time.Time) bool {
	if s.LastActivityDate != nil {
		last := s.LastActivityDate.UTC()
		switch {
		case last.Equal(day):
			changed := !s.IsActive
			s.IsActive = true
			return changed
		case last.Equal(day.AddDate(0, 0, -1)):
			s.CurrentStreak++
		default:
			s.CurrentStreak = 1
			s.StreakStartDate = &day
		}
	} else {
		s.CurrentStreak = 1
		s.StreakStartDate = &day
	}

	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}
	s.IsActive = true
	s.LastActivityDate = &day
	return true
}
