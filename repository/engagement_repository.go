package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"mindagrowAPI/internal/leaderboard"
	"mindagrowAPI/internal/level"
	"mindagrowAPI/internal/mission"
	"mindagrowAPI/internal/types/session"
	"mindagrowAPI/internal/types/streak"
	"mindagrowAPI/utils"
)

var ErrNotFound = errors.New("not found")

// DBTX is the slice of *pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type EngagementRepository struct {
	db DBTX
}

func NewEngagementRepository(db DBTX) *EngagementRepository {
	return &EngagementRepository{db: db}
}

// ============= MAINTENANCE =============

func (r *EngagementRepository) DeleteProgressBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_daily_progress WHERE date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete daily progress: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *EngagementRepository) GenerateWeeklyLeaderboard(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `SELECT generate_weekly_leaderboard()`); err != nil {
		return fmt.Errorf("failed to generate weekly leaderboard: %w", err)
	}
	return nil
}

// CountCompletedSessions counts the user's sessions completed on day with score >= minScore.
func (r *EngagementRepository) CountCompletedSessions(ctx context.Context, userID int64, day time.Time, minScore int) (int, error) {
	query := `
	SELECT COUNT(*)
	FROM game_sessions
	WHERE user_id = $1
	AND DATE(session_end) = $2
	AND is_completed = true
	AND score >= $3
	`

	var count int64
	if err := r.db.QueryRow(ctx, query, userID, day, minScore).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count game sessions: %w", err)
	}
	return int(count), nil
}

// SetMissionProgress overwrites current_count on the user's progress rows for day
// whose mission is active and of missionType.
func (r *EngagementRepository) SetMissionProgress(ctx context.Context, userID int64, day time.Time, missionType mission.Type, count int) (int64, error) {
	query := `
	UPDATE user_daily_progress
	SET current_count = $3
	WHERE user_id = $1
	AND date = $2
	AND mission_id IN (
		SELECT id FROM daily_missions
		WHERE mission_type = $4 AND is_active = true
	)
	`

	tag, err := r.db.Exec(ctx, query, userID, day, count, string(missionType))
	if err != nil {
		return 0, fmt.Errorf("failed to update %s mission progress: %w", missionType, err)
	}
	return tag.RowsAffected(), nil
}

// CheckMissionCompletion runs the server-side completion routine and returns how many missions it completed.
func (r *EngagementRepository) CheckMissionCompletion(ctx context.Context, userID int64) (int, error) {
	var completed int32
	if err := r.db.QueryRow(ctx, `SELECT check_mission_completion($1)`, userID).Scan(&completed); err != nil {
		return 0, fmt.Errorf("failed to check mission completion: %w", err)
	}
	return int(completed), nil
}

// FavoriteGameType returns the most played type since the given instant, or nil without history.
func (r *EngagementRepository) FavoriteGameType(ctx context.Context, userID int64, since time.Time) (*session.TypeStat, error) {
	query := `
	SELECT g.type, COUNT(*) AS play_count
	FROM game_sessions gs
	JOIN games g ON gs.game_id = g.id
	WHERE gs.user_id = $1 AND gs.is_completed = true
	AND gs.session_end >= $2
	GROUP BY g.type
	ORDER BY play_count DESC, g.type ASC
	LIMIT 1
	`

	stat := &session.TypeStat{}
	var plays int64
	err := r.db.QueryRow(ctx, query, userID, since).Scan(&stat.Type, &plays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find favorite game type: %w", err)
	}
	stat.Plays = int(plays)
	return stat, nil
}

// WeakestGameType returns the all-time type with the lowest average score below threshold, or nil.
func (r *EngagementRepository) WeakestGameType(ctx context.Context, userID int64, threshold float64) (*session.TypeStat, error) {
	query := `
	SELECT g.type, AVG(gs.score)::float8 AS avg_score
	FROM game_sessions gs
	JOIN games g ON gs.game_id = g.id
	WHERE gs.user_id = $1 AND gs.is_completed = true
	GROUP BY g.type
	HAVING AVG(gs.score) < $2
	ORDER BY avg_score ASC, g.type ASC
	LIMIT 1
	`

	stat := &session.TypeStat{}
	err := r.db.QueryRow(ctx, query, userID, threshold).Scan(&stat.Type, &stat.AvgScore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find weakest game type: %w", err)
	}
	return stat, nil
}

func (r *EngagementRepository) ListStudentIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM users WHERE role = 'student' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan student id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return ids, nil
}

func (r *EngagementRepository) HasActivityOn(ctx context.Context, userID int64, day time.Time) (bool, error) {
	query := `
	SELECT COUNT(*)
	FROM user_activity_log
	WHERE user_id = $1 AND activity_date = $2
	`

	var count int64
	if err := r.db.QueryRow(ctx, query, userID, day).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check activity log: %w", err)
	}
	return count > 0, nil
}

// ResetStreak zeroes the streak only if the last activity predates day.
func (r *EngagementRepository) ResetStreak(ctx context.Context, userID int64, day time.Time) (bool, error) {
	query := `
	UPDATE user_streaks
	SET current_streak = 0, is_active = false, updated_at = NOW()
	WHERE user_id = $1
	AND last_activity_date < $2
	`

	tag, err := r.db.Exec(ctx, query, userID, day)
	if err != nil {
		return false, fmt.Errorf("failed to reset streak: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ============= LEARNER-FACING =============

// EnsureDailyProgress creates the day's progress rows for every active mission, leaving existing rows alone.
func (r *EngagementRepository) EnsureDailyProgress(ctx context.Context, userID int64, day time.Time) (int64, error) {
	query := `
	INSERT INTO user_daily_progress (user_id, mission_id, date)
	SELECT $1, id, $2 FROM daily_missions WHERE is_active = true
	ON CONFLICT (user_id, mission_id, date) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query, userID, day)
	if err != nil {
		return 0, fmt.Errorf("failed to create daily progress: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *EngagementRepository) ListDailyMissions(ctx context.Context, userID int64, day time.Time) ([]*mission.MissionWithProgress, error) {
	query := `
	SELECT
		dm.id,
		dm.mission_type,
		dm.title,
		dm.description,
		dm.target_count,
		dm.xp_reward,
		dm.icon,
		dm.is_active,
		COALESCE(p.current_count, 0) AS current_count,
		COALESCE(p.is_completed, false) AS is_completed,
		p.completed_at
	FROM daily_missions dm
	LEFT JOIN user_daily_progress p ON (
		dm.id = p.mission_id
		AND p.user_id = $1
		AND p.date = $2
	)
	WHERE dm.is_active = true
	ORDER BY dm.id
	`

	rows, err := r.db.Query(ctx, query, userID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch daily missions: %w", err)
	}
	defer rows.Close()

	missions := []*mission.MissionWithProgress{}
	for rows.Next() {
		m := &mission.MissionWithProgress{}
		var missionType string
		err := rows.Scan(
			&m.ID,
			&missionType,
			&m.Title,
			&m.Description,
			&m.TargetCount,
			&m.XPReward,
			&m.Icon,
			&m.IsActive,
			&m.CurrentCount,
			&m.IsCompleted,
			&m.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m.MissionType = mission.Type(missionType)
		missions = append(missions, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch daily missions: %w", err)
	}
	return missions, nil
}

const streakColumns = `user_id, current_streak, longest_streak, is_active, last_activity_date, streak_start_date`

func scanStreak(row pgx.Row) (*streak.UserStreak, error) {
	s := &streak.UserStreak{}
	err := row.Scan(
		&s.UserID,
		&s.CurrentStreak,
		&s.LongestStreak,
		&s.IsActive,
		&s.LastActivityDate,
		&s.StreakStartDate,
	)
	return s, err
}

func (r *EngagementRepository) GetStreak(ctx context.Context, userID int64) (*streak.UserStreak, error) {
	s, err := scanStreak(r.db.QueryRow(ctx, `SELECT `+streakColumns+` FROM user_streaks WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	return s, nil
}

func (r *EngagementRepository) CreateStreak(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO user_streaks (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("failed to create streak: %w", err)
	}
	return nil
}

// RecordActivity logs activity for day and advances the streak in one transaction.
func (r *EngagementRepository) RecordActivity(ctx context.Context, userID int64, day time.Time) (s *streak.UserStreak, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	s, err = advanceStreak(ctx, tx, userID, day)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit activity: %w", err)
	}
	return s, nil
}

func advanceStreak(ctx context.Context, tx pgx.Tx, userID int64, day time.Time) (*streak.UserStreak, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO user_activity_log (user_id, activity_date)
		VALUES ($1, $2)
		ON CONFLICT (user_id, activity_date) DO NOTHING
	`, userID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to log activity: %w", err)
	}

	s, err := scanStreak(tx.QueryRow(ctx, `SELECT `+streakColumns+` FROM user_streaks WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to lock streak: %w", err)
		}
		s = &streak.UserStreak{UserID: userID}
	}

	if s.Advance(day) {
		_, err = tx.Exec(ctx, `
			INSERT INTO user_streaks (`+streakColumns+`, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (user_id) DO UPDATE SET
				current_streak = EXCLUDED.current_streak,
				longest_streak = EXCLUDED.longest_streak,
				is_active = EXCLUDED.is_active,
				last_activity_date = EXCLUDED.last_activity_date,
				streak_start_date = EXCLUDED.streak_start_date,
				updated_at = NOW()
		`, s.UserID, s.CurrentStreak, s.LongestStreak, s.IsActive, s.LastActivityDate, s.StreakStartDate)
		if err != nil {
			return nil, fmt.Errorf("failed to save streak: %w", err)
		}
	}
	return s, nil
}

// ============= GAME SESSIONS =============

const gameColumns = `id, game_key, name, type, description, COALESCE(difficulty, 'Medium'), max_questions`

// RecordGameSession stores a finished round: cumulative game progress, the session row,
// its XP and the streak all commit together. ErrNotFound means gameKey is unknown.
func (r *EngagementRepository) RecordGameSession(ctx context.Context, userID int64, gameKey string, sub session.Submission, at time.Time) (rec *session.Recorded, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	game := session.Game{}
	err = tx.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE game_key = $1`, gameKey).Scan(
		&game.ID,
		&game.GameKey,
		&game.Name,
		&game.Type,
		&game.Description,
		&game.Difficulty,
		&game.MaxQuestions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO game_progress AS gp (user_id, game_id, total_questions, correct_answers, last_played_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, game_id) DO UPDATE SET
			total_questions = gp.total_questions + EXCLUDED.total_questions,
			correct_answers = gp.correct_answers + EXCLUDED.correct_answers,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = NOW()
	`, userID, game.ID, sub.QuestionsAnswered, sub.CorrectAnswers, at)
	if err != nil {
		return nil, fmt.Errorf("failed to update game progress: %w", err)
	}

	progress := &session.GameProgress{Game: game}
	err = tx.QueryRow(ctx, `
		UPDATE game_progress
		SET percentage = CASE WHEN total_questions > 0
				THEN LEAST(100, correct_answers * 100.0 / total_questions)
				ELSE 0
			END,
			is_completed = total_questions > 0 AND correct_answers >= total_questions
		WHERE user_id = $1 AND game_id = $2
		RETURNING total_questions, correct_answers, percentage, is_completed, last_played_at
	`, userID, game.ID).Scan(
		&progress.TotalQuestions,
		&progress.CorrectAnswers,
		&progress.Percentage,
		&progress.IsCompleted,
		&progress.LastPlayedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to score game progress: %w", err)
	}

	data := sub.SessionData
	if len(data) == 0 {
		data = []byte("{}")
	}
	gs := &session.GameSession{
		UserID:            userID,
		GameID:            game.ID,
		SessionEnd:        &at,
		IsCompleted:       true,
		Score:             sub.Score(),
		XPEarned:          session.XPEarned(sub.CorrectAnswers, progress.IsCompleted, game.Difficulty),
		QuestionsAnswered: sub.QuestionsAnswered,
		CorrectAnswers:    sub.CorrectAnswers,
		SessionData:       data,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO game_sessions (
			user_id, game_id, session_end, is_completed, score, xp_earned,
			questions_answered, correct_answers, session_data
		) VALUES ($1, $2, $3, true, $4, $5, $6, $7, $8)
		RETURNING id
	`, gs.UserID, gs.GameID, at, gs.Score, gs.XPEarned, gs.QuestionsAnswered, gs.CorrectAnswers, string(data)).Scan(&gs.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create game session: %w", err)
	}

	if gs.XPEarned > 0 {
		if _, err = tx.Exec(ctx, `SELECT award_xp($1, $2)`, userID, gs.XPEarned); err != nil {
			return nil, fmt.Errorf("failed to award xp: %w", err)
		}
	}

	st, err := advanceStreak(ctx, tx, userID, utils.DateOf(at))
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit game session: %w", err)
	}
	return &session.Recorded{Session: gs, Progress: progress, Streak: st}, nil
}

// ListGameProgress returns the learner's progress on every game played, most recent first.
func (r *EngagementRepository) ListGameProgress(ctx context.Context, userID int64) ([]*session.GameProgress, error) {
	query := `
	SELECT
		g.id, g.game_key, g.name, g.type, g.description, COALESCE(g.difficulty, 'Medium'), g.max_questions,
		gp.total_questions,
		gp.correct_answers,
		gp.percentage,
		gp.is_completed,
		gp.last_played_at
	FROM game_progress gp
	JOIN games g ON gp.game_id = g.id
	WHERE gp.user_id = $1
	ORDER BY gp.last_played_at DESC, g.game_key ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch game progress: %w", err)
	}
	defer rows.Close()

	progress := []*session.GameProgress{}
	for rows.Next() {
		p := &session.GameProgress{}
		err := rows.Scan(
			&p.Game.ID,
			&p.Game.GameKey,
			&p.Game.Name,
			&p.Game.Type,
			&p.Game.Description,
			&p.Game.Difficulty,
			&p.Game.MaxQuestions,
			&p.TotalQuestions,
			&p.CorrectAnswers,
			&p.Percentage,
			&p.IsCompleted,
			&p.LastPlayedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		progress = append(progress, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch game progress: %w", err)
	}
	return progress, nil
}

func (r *EngagementRepository) GetLevel(ctx context.Context, userID int64) (*level.UserLevel, error) {
	query := `
	SELECT user_id, current_level, current_xp, total_xp, xp_to_next_level
	FROM user_levels
	WHERE user_id = $1
	`

	l := &level.UserLevel{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&l.UserID,
		&l.CurrentLevel,
		&l.CurrentXP,
		&l.TotalXP,
		&l.XPToNextLevel,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get level: %w", err)
	}
	return l, nil
}

func (r *EngagementRepository) CreateLevel(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO user_levels (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("failed to create level: %w", err)
	}
	return nil
}

func (r *EngagementRepository) WeeklyLeaderboard(ctx context.Context, weekStart time.Time, limit int) ([]*leaderboard.LeaderboardEntry, error) {
	query := `
	SELECT
		wl.user_id,
		u.name,
		wl.weekly_xp AS total_xp,
		wl.games_played,
		COALESCE(ul.current_level, 1) AS level,
		wl.rank_position AS rank
	FROM weekly_leaderboard wl
	JOIN users u ON u.id = wl.user_id
	LEFT JOIN user_levels ul ON ul.user_id = wl.user_id
	WHERE wl.week_start = $1
	ORDER BY wl.rank_position ASC, u.name ASC
	LIMIT $2
	`
	return r.queryLeaderboard(ctx, query, weekStart, limit)
}

func (r *EngagementRepository) OverallLeaderboard(ctx context.Context, limit int) ([]*leaderboard.LeaderboardEntry, error) {
	query := `
	SELECT
		u.id AS user_id,
		u.name,
		COALESCE(ul.total_xp, 0) AS total_xp,
		(
			SELECT COUNT(*)
			FROM game_sessions gs
			WHERE gs.user_id = u.id AND gs.is_completed = true
		) AS games_played,
		COALESCE(ul.current_level, 1) AS level,
		RANK() OVER (ORDER BY COALESCE(ul.total_xp, 0) DESC) AS rank
	FROM users u
	LEFT JOIN user_levels ul ON u.id = ul.user_id
	WHERE u.role = 'student'
	ORDER BY total_xp DESC, u.name ASC
	LIMIT $1
	`
	return r.queryLeaderboard(ctx, query, limit)
}

func (r *EngagementRepository) queryLeaderboard(ctx context.Context, query string, args ...any) ([]*leaderboard.LeaderboardEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []*leaderboard.LeaderboardEntry{}
	for rows.Next() {
		entry := &leaderboard.LeaderboardEntry{}
		var gamesPlayed, rank int64
		err := rows.Scan(
			&entry.UserID,
			&entry.Name,
			&entry.TotalXP,
			&gamesPlayed,
			&entry.Level,
			&rank,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entry.GamesPlayed = int(gamesPlayed)
		entry.Rank = int(rank)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	return entries, nil
}
