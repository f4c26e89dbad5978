package level

type UserLevel struct {
	UserID        int64 `json:"user_id" db:"user_id"`
	CurrentLevel  int   `json:"current_level" db:"current_level"`
	CurrentXP     int   `json:"current_xp" db:"current_xp"`
	TotalXP       int   `json:"total_xp" db:"total_xp"`
	XPToNextLevel int   `json:"xp_to_next_level" db:"xp_to_next_level"`
}

// Initial is the level row a learner starts with.
func Initial(userID int64) *UserLevel {
	return &UserLevel{
		UserID:        userID,
		CurrentLevel:  1,
		XPToNextLevel: 100,
	}
}
