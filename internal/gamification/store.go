package gamification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teachme/backend/internal/database"
	"github.com/teachme/backend/internal/models"
)

// Store is the SQL access layer for the ledger. It runs against whatever
// Querier it was built with, so NewStore(tx) joins the caller's transaction.
type Store struct {
	db database.Querier
}

func NewStore(db database.Querier) *Store {
	return &Store{db: db}
}

// ── Provisioning ────────────────────────────────────────

// ProvisionStudent creates the profile and one zeroed streak row per type.
// Safe to call more than once.
func (s *Store) ProvisionStudent(ctx context.Context, studentID string, now time.Time) error {
	_, nextLevelXP := ProgressWithinLevel(0)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO student_profiles (user_id, total_xp, level, current_level_xp, next_level_xp,
		        streak, longest_streak, created_at, updated_at)
		 VALUES (?, 0, 1, 0, ?, 0, 0, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		studentID, nextLevelXP, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	for _, t := range models.StreakTypes {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO streaks (student_id, type, current_count, longest_count, last_activity, is_active, updated_at)
			 VALUES (?, ?, 0, 0, NULL, ?, ?)
			 ON CONFLICT (student_id, type) DO NOTHING`,
			studentID, string(t), false, now,
		)
		if err != nil {
			return fmt.Errorf("insert %s streak: %w", t, err)
		}
	}
	return nil
}

// ── Profiles ────────────────────────────────────────────

const profileColumns = `user_id, total_xp, level, current_level_xp, next_level_xp,
	        streak, longest_streak, created_at, updated_at`

func (s *Store) GetProfile(ctx context.Context, studentID string) (*models.StudentProfile, error) {
	return s.getProfile(ctx, studentID, false)
}

// LockProfile reads the profile and holds its row until the transaction ends.
func (s *Store) LockProfile(ctx context.Context, studentID string) (*models.StudentProfile, error) {
	return s.getProfile(ctx, studentID, true)
}

func (s *Store) getProfile(ctx context.Context, studentID string, lock bool) (*models.StudentProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM student_profiles WHERE user_id = ?`
	if lock {
		query += s.db.GetDialect().LockClause()
	}

	var p models.StudentProfile
	err := s.db.QueryRowContext(ctx, query, studentID).Scan(
		&p.UserID, &p.TotalXP, &p.Level, &p.CurrentLevelXP, &p.NextLevelXP,
		&p.Streak, &p.LongestStreak, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

func (s *Store) UpdateProfileXP(ctx context.Context, p *models.StudentProfile) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE student_profiles SET
		    total_xp = ?, level = ?, current_level_xp = ?, next_level_xp = ?, updated_at = ?
		 WHERE user_id = ?`,
		p.TotalXP, p.Level, p.CurrentLevelXP, p.NextLevelXP, p.UpdatedAt, p.UserID,
	)
	if err != nil {
		return fmt.Errorf("update profile xp: %w", err)
	}
	return nil
}

func (s *Store) UpdateProfileStreak(ctx context.Context, studentID string, current, longest int, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE student_profiles SET streak = ?, longest_streak = ?, updated_at = ? WHERE user_id = ?`,
		current, longest, now, studentID,
	)
	if err != nil {
		return fmt.Errorf("update profile streak: %w", err)
	}
	return nil
}

// ── XP Transactions ─────────────────────────────────────

func (s *Store) InsertTransaction(ctx context.Context, t *models.XPTransaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO xp_transactions (id, student_id, amount, source, source_id, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.StudentID, t.Amount, string(t.Source), t.SourceID, t.Description, t.CreatedAt,
	)
	return err
}

func (s *Store) ListTransactions(ctx context.Context, studentID string, limit int) ([]models.XPTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, amount, source, source_id, description, created_at
		 FROM xp_transactions
		 WHERE student_id = ?
		 ORDER BY created_at DESC, id
		 LIMIT ?`,
		studentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list xp transactions: %w", err)
	}
	defer rows.Close()

	txns := []models.XPTransaction{}
	for rows.Next() {
		var t models.XPTransaction
		var source string
		if err := rows.Scan(&t.ID, &t.StudentID, &t.Amount, &source, &t.SourceID, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan xp transaction: %w", err)
		}
		t.Source = models.XPSource(source)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// SumTransactions returns the ledger total and row count, optionally only
// counting rows created at or after since.
func (s *Store) SumTransactions(ctx context.Context, studentID string, since *time.Time) (int64, int, error) {
	query := `SELECT COALESCE(SUM(amount), 0), COUNT(*) FROM xp_transactions WHERE student_id = ?`
	args := []interface{}{studentID}
	if since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *since)
	}
	var sum int64
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&sum, &count); err != nil {
		return 0, 0, fmt.Errorf("sum xp transactions: %w", err)
	}
	return sum, count, nil
}

// ── Streaks ─────────────────────────────────────────────

// LockStreak returns nil, nil when the row was never provisioned.
func (s *Store) LockStreak(ctx context.Context, studentID string, streakType models.StreakType) (*models.Streak, error) {
	var st models.Streak
	var t string
	err := s.db.QueryRowContext(ctx,
		`SELECT student_id, type, current_count, longest_count, last_activity, is_active, updated_at
		 FROM streaks WHERE student_id = ? AND type = ?`+s.db.GetDialect().LockClause(),
		studentID, string(streakType),
	).Scan(&st.StudentID, &t, &st.Current, &st.Longest, &st.LastActivity, &st.IsActive, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	st.Type = models.StreakType(t)
	return &st, nil
}

func (s *Store) SaveStreak(ctx context.Context, st *models.Streak) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE streaks SET current_count = ?, longest_count = ?, last_activity = ?, is_active = ?, updated_at = ?
		 WHERE student_id = ? AND type = ?`,
		st.Current, st.Longest, st.LastActivity, st.IsActive, st.UpdatedAt, st.StudentID, string(st.Type),
	)
	if err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return nil
}

func (s *Store) ListStreaks(ctx context.Context, studentID string) ([]models.Streak, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id, type, current_count, longest_count, last_activity, is_active, updated_at
		 FROM streaks WHERE student_id = ? ORDER BY type`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list streaks: %w", err)
	}
	defer rows.Close()

	streaks := []models.Streak{}
	for rows.Next() {
		var st models.Streak
		var t string
		if err := rows.Scan(&st.StudentID, &t, &st.Current, &st.Longest, &st.LastActivity, &st.IsActive, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan streak: %w", err)
		}
		st.Type = models.StreakType(t)
		streaks = append(streaks, st)
	}
	return streaks, rows.Err()
}

func (s *Store) MaxCurrentStreak(ctx context.Context, studentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(current_count), 0) FROM streaks WHERE student_id = ?`,
		studentID,
	).Scan(&n)
	return n, err
}

// ── Catalog ─────────────────────────────────────────────

func (s *Store) UpsertBadge(ctx context.Context, b models.Badge) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO badges (id, name, description, icon, rarity) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		    name = excluded.name, description = excluded.description,
		    icon = excluded.icon, rarity = excluded.rarity`,
		b.ID, b.Name, b.Description, b.Icon, b.Rarity,
	)
	if err != nil {
		return fmt.Errorf("upsert badge %s: %w", b.ID, err)
	}
	return nil
}

func (s *Store) UpsertAchievement(ctx context.Context, a models.Achievement) error {
	var badgeID *string
	if a.Reward.BadgeID != "" {
		badgeID = &a.Reward.BadgeID
	}
	timeframe := a.Criteria.Timeframe
	if timeframe == "" {
		timeframe = models.TimeframeAllTime
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO achievements (id, name, description, category, criteria_type, criteria_target,
		        criteria_subject, criteria_timeframe, reward_xp, reward_badge_id, reward_title, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		    name = excluded.name, description = excluded.description, category = excluded.category,
		    criteria_type = excluded.criteria_type, criteria_target = excluded.criteria_target,
		    criteria_subject = excluded.criteria_subject, criteria_timeframe = excluded.criteria_timeframe,
		    reward_xp = excluded.reward_xp, reward_badge_id = excluded.reward_badge_id,
		    reward_title = excluded.reward_title, is_active = excluded.is_active`,
		a.ID, a.Name, a.Description, a.Category, string(a.Criteria.Type), a.Criteria.Target,
		a.Criteria.Subject, string(timeframe), a.Reward.XP, badgeID, a.Reward.Title, a.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert achievement %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) ListAchievements(ctx context.Context, activeOnly bool) ([]models.Achievement, error) {
	query := `SELECT id, name, description, category, criteria_type, criteria_target, criteria_subject,
	        criteria_timeframe, reward_xp, COALESCE(reward_badge_id, ''), reward_title, is_active
	 FROM achievements`
	var args []interface{}
	if activeOnly {
		query += ` WHERE is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY category, criteria_target, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	defer rows.Close()

	achievements := []models.Achievement{}
	for rows.Next() {
		var a models.Achievement
		var criteriaType, timeframe string
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Category, &criteriaType, &a.Criteria.Target,
			&a.Criteria.Subject, &timeframe, &a.Reward.XP, &a.Reward.BadgeID, &a.Reward.Title, &a.IsActive); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		a.Criteria.Type = models.CriteriaType(criteriaType)
		a.Criteria.Timeframe = models.Timeframe(timeframe)
		achievements = append(achievements, a)
	}
	return achievements, rows.Err()
}

// ── User Achievements ───────────────────────────────────

func (s *Store) ListUserAchievements(ctx context.Context, studentID string) (map[string]models.UserAchievement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id, achievement_id, progress_current, progress_target, progress_percentage,
		        earned_at, updated_at
		 FROM user_achievements WHERE student_id = ?`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user achievements: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.UserAchievement)
	for rows.Next() {
		var ua models.UserAchievement
		if err := rows.Scan(&ua.StudentID, &ua.AchievementID, &ua.Progress.Current, &ua.Progress.Target,
			&ua.Progress.Percentage, &ua.EarnedAt, &ua.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user achievement: %w", err)
		}
		out[ua.AchievementID] = ua
	}
	return out, rows.Err()
}

// MarkAchievementEarned sets earned_at for the pair unless it is already
// set. It reports false when another call got there first.
func (s *Store) MarkAchievementEarned(ctx context.Context, studentID string, a models.Achievement, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO user_achievements (student_id, achievement_id, progress_current, progress_target,
		        progress_percentage, earned_at, updated_at)
		 VALUES (?, ?, ?, ?, 100, ?, ?)
		 ON CONFLICT (student_id, achievement_id) DO UPDATE SET
		    progress_current = excluded.progress_current,
		    progress_target = excluded.progress_target,
		    progress_percentage = 100,
		    earned_at = excluded.earned_at,
		    updated_at = excluded.updated_at
		 WHERE user_achievements.earned_at IS NULL`,
		studentID, a.ID, a.Criteria.Target, a.Criteria.Target, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("mark achievement earned: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpsertAchievementProgress records partial progress. Earned rows are left alone.
func (s *Store) UpsertAchievementProgress(ctx context.Context, studentID, achievementID string, p models.Progress, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_achievements (student_id, achievement_id, progress_current, progress_target,
		        progress_percentage, earned_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, NULL, ?)
		 ON CONFLICT (student_id, achievement_id) DO UPDATE SET
		    progress_current = excluded.progress_current,
		    progress_target = excluded.progress_target,
		    progress_percentage = excluded.progress_percentage,
		    updated_at = excluded.updated_at
		 WHERE user_achievements.earned_at IS NULL`,
		studentID, achievementID, p.Current, p.Target, p.Percentage, now,
	)
	if err != nil {
		return fmt.Errorf("upsert achievement progress: %w", err)
	}
	return nil
}

// ── Badges ──────────────────────────────────────────────

func (s *Store) GrantBadge(ctx context.Context, studentID, badgeID string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO user_badges (student_id, badge_id, earned_at) VALUES (?, ?, ?)
		 ON CONFLICT (student_id, badge_id) DO NOTHING`,
		studentID, badgeID, now,
	)
	if err != nil {
		return false, fmt.Errorf("grant badge: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ListUserBadges(ctx context.Context, studentID string) ([]models.UserBadge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT b.id, b.name, b.description, b.icon, b.rarity, ub.earned_at
		 FROM user_badges ub
		 JOIN badges b ON b.id = ub.badge_id
		 WHERE ub.student_id = ?
		 ORDER BY ub.earned_at, b.id`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	badges := []models.UserBadge{}
	for rows.Next() {
		var b models.UserBadge
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Icon, &b.Rarity, &b.EarnedAt); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// ── Activity Records ────────────────────────────────────

// InsertLessonCompletion reports false when the lesson was already completed.
func (s *Store) InsertLessonCompletion(ctx context.Context, studentID, lessonID, subject string, xp int, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO lesson_completions (student_id, lesson_id, subject, xp_awarded, completed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (student_id, lesson_id) DO NOTHING`,
		studentID, lessonID, subject, xp, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert lesson completion: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type QuizAttempt struct {
	ID          string
	StudentID   string
	QuizID      string
	Subject     string
	Score       int
	MaxScore    int
	Percentage  int
	CompletedAt time.Time
}

func (s *Store) InsertQuizAttempt(ctx context.Context, a QuizAttempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quiz_attempts (id, student_id, quiz_id, subject, score, max_score, percentage, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.StudentID, a.QuizID, a.Subject, a.Score, a.MaxScore, a.Percentage, a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert quiz attempt: %w", err)
	}
	return nil
}

// ── Aggregates ──────────────────────────────────────────

// CountLessons counts completed lessons, optionally filtered by subject and window.
func (s *Store) CountLessons(ctx context.Context, studentID, subject string, since *time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM lesson_completions WHERE student_id = ?`
	args := []interface{}{studentID}
	if subject != "" {
		query += ` AND subject = ?`
		args = append(args, subject)
	}
	if since != nil {
		query += ` AND completed_at >= ?`
		args = append(args, *since)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count lessons: %w", err)
	}
	return n, nil
}

// CountQuizzes counts attempts scoring at least minPercentage.
func (s *Store) CountQuizzes(ctx context.Context, studentID, subject string, since *time.Time, minPercentage int) (int, error) {
	query := `SELECT COUNT(*) FROM quiz_attempts WHERE student_id = ? AND percentage >= ?`
	args := []interface{}{studentID, minPercentage}
	if subject != "" {
		query += ` AND subject = ?`
		args = append(args, subject)
	}
	if since != nil {
		query += ` AND completed_at >= ?`
		args = append(args, *since)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count quizzes: %w", err)
	}
	return n, nil
}

func (s *Store) BestQuizPercentage(ctx context.Context, studentID, subject string, since *time.Time) (int, error) {
	query := `SELECT COALESCE(MAX(percentage), 0) FROM quiz_attempts WHERE student_id = ?`
	args := []interface{}{studentID}
	if subject != "" {
		query += ` AND subject = ?`
		args = append(args, subject)
	}
	if since != nil {
		query += ` AND completed_at >= ?`
		args = append(args, *since)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("best quiz percentage: %w", err)
	}
	return n, nil
}

// ── Users ───────────────────────────────────────────────

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, username, role, school_id, grade_level, created_at, updated_at
		 FROM users WHERE id = ?`,
		userID,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Username, &u.Role, &u.SchoolID, &u.GradeLevel, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// ── Leaderboards ────────────────────────────────────────

// ScoredStudent is one row of a ranking before ranks are assigned.
type ScoredStudent struct {
	StudentID string
	Name      string
	Level     int
	Score     float64
}

// RankingFilter narrows a leaderboard query. A nil Candidates slice means
// every active student; Limit <= 0 means no limit.
type RankingFilter struct {
	Type       models.LeaderboardType
	Since      *time.Time
	Candidates []string
	Limit      int
}

// RankScores returns students ordered by score desc, then student id asc.
func (s *Store) RankScores(ctx context.Context, f RankingFilter) ([]ScoredStudent, error) {
	var (
		scoreExpr string
		join      string
		joinArgs  []interface{}
	)
	where := []string{`u.is_active = ?`}
	whereArgs := []interface{}{true}

	activeInWindow := func() {
		if f.Since != nil {
			where = append(where, `EXISTS (SELECT 1 FROM xp_transactions w
			     WHERE w.student_id = p.user_id AND w.created_at >= ?)`)
			whereArgs = append(whereArgs, *f.Since)
		}
	}
	aggregated := func(table, aggregate, timeColumn string) {
		sub := `SELECT student_id, ` + aggregate + ` AS score FROM ` + table
		if f.Since != nil {
			sub += ` WHERE ` + timeColumn + ` >= ?`
			joinArgs = append(joinArgs, *f.Since)
		}
		sub += ` GROUP BY student_id`
		join = `JOIN (` + sub + `) agg ON agg.student_id = p.user_id`
		scoreExpr = `agg.score`
	}

	switch f.Type {
	case models.LeaderboardXP:
		if f.Since == nil {
			scoreExpr = `p.total_xp`
		} else {
			aggregated("xp_transactions", "SUM(amount)", "created_at")
		}
	case models.LeaderboardLevel:
		scoreExpr = `p.level`
		activeInWindow()
	case models.LeaderboardStreak:
		scoreExpr = `p.streak`
		activeInWindow()
	case models.LeaderboardQuizScore:
		aggregated("quiz_attempts", "AVG(percentage)", "completed_at")
	case models.LeaderboardLessonsCompleted:
		aggregated("lesson_completions", "COUNT(*)", "completed_at")
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidLeaderboardQuery, f.Type)
	}

	if f.Candidates != nil {
		if len(f.Candidates) == 0 {
			return []ScoredStudent{}, nil
		}
		where = append(where, `p.user_id IN (`+database.Placeholders(len(f.Candidates))+`)`)
		for _, id := range f.Candidates {
			whereArgs = append(whereArgs, id)
		}
	}

	query := `SELECT p.user_id, u.name, p.level, ` + scoreExpr + ` AS score
	 FROM student_profiles p
	 JOIN users u ON u.id = p.user_id
	 ` + join + `
	 WHERE ` + strings.Join(where, ` AND `)
	args := append(joinArgs, whereArgs...)
	query += ` ORDER BY score DESC, p.user_id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("rank scores: %w", err)
	}
	defer rows.Close()

	out := []ScoredStudent{}
	for rows.Next() {
		var r ScoredStudent
		if err := rows.Scan(&r.StudentID, &r.Name, &r.Level, &r.Score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadSnapshot returns the persisted rank of each student on a board.
func (s *Store) LoadSnapshot(ctx context.Context, boardKey string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id, rank FROM leaderboard_snapshots WHERE board_key = ?`,
		boardKey,
	)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	ranks := make(map[string]int)
	for rows.Next() {
		var id string
		var rank int
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		ranks[id] = rank
	}
	return ranks, rows.Err()
}

// ReplaceSnapshot swaps the stored ranking for a board. Run inside a transaction.
func (s *Store) ReplaceSnapshot(ctx context.Context, boardKey string, entries []models.LeaderboardEntry, now time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leaderboard_snapshots WHERE board_key = ?`, boardKey); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	for _, e := range entries {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO leaderboard_snapshots (board_key, student_id, rank, score, captured_at)
			 VALUES (?, ?, ?, ?, ?)`,
			boardKey, e.StudentID, e.Rank, e.Score, now,
		)
		if err != nil {
			return fmt.Errorf("insert snapshot row: %w", err)
		}
	}
	return nil
}

// ── Friends ─────────────────────────────────────────────

func (s *Store) InsertFriendRequest(ctx context.Context, f models.Friendship) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO friendships (id, user_id, friend_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.FriendID, f.Status, f.CreatedAt,
	)
	return err
}

func (s *Store) GetFriendship(ctx context.Context, friendshipID string) (*models.Friendship, error) {
	var f models.Friendship
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, friend_id, status, created_at, accepted_at
		 FROM friendships WHERE id = ?`,
		friendshipID,
	).Scan(&f.ID, &f.UserID, &f.FriendID, &f.Status, &f.CreatedAt, &f.AcceptedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFriendshipNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// FindFriendship looks for a row between the two users in either direction.
func (s *Store) FindFriendship(ctx context.Context, userID, otherID string) (*models.Friendship, error) {
	var f models.Friendship
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, friend_id, status, created_at, accepted_at
		 FROM friendships
		 WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`,
		userID, otherID, otherID, userID,
	).Scan(&f.ID, &f.UserID, &f.FriendID, &f.Status, &f.CreatedAt, &f.AcceptedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) AcceptFriendship(ctx context.Context, friendshipID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE friendships SET status = 'accepted', accepted_at = ? WHERE id = ?`,
		now, friendshipID,
	)
	return err
}

// DeleteFriendship removes a row the user is part of.
func (s *Store) DeleteFriendship(ctx context.Context, friendshipID, userID string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM friendships WHERE id = ? AND (user_id = ? OR friend_id = ?)`,
		friendshipID, userID, userID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrFriendshipNotFound
	}
	return nil
}

func (s *Store) ListFriends(ctx context.Context, userID string) (*models.FriendsResponse, error) {
	resp := &models.FriendsResponse{
		Friends:         []models.FriendEntry{},
		PendingReceived: []models.PendingFriendEntry{},
		PendingSent:     []models.PendingFriendEntry{},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT fs.id, u.id, u.name, u.username,
		        COALESCE(p.total_xp, 0), COALESCE(p.level, 1), COALESCE(p.streak, 0)
		 FROM friendships fs
		 JOIN users u ON u.id = CASE WHEN fs.user_id = ? THEN fs.friend_id ELSE fs.user_id END
		 LEFT JOIN student_profiles p ON p.user_id = u.id
		 WHERE (fs.user_id = ? OR fs.friend_id = ?) AND fs.status = 'accepted'
		 ORDER BY COALESCE(p.total_xp, 0) DESC, u.id`,
		userID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get friends: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f models.FriendEntry
		var fullName string
		if err := rows.Scan(&f.FriendshipID, &f.UserID, &fullName, &f.Username, &f.TotalXP, &f.Level, &f.Streak); err != nil {
			return nil, err
		}
		f.DisplayName = models.FormatDisplayName(fullName)
		resp.Friends = append(resp.Friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	received, err := s.listPending(ctx,
		`SELECT f.id, f.user_id, u.name, u.username, f.created_at
		 FROM friendships f
		 JOIN users u ON u.id = f.user_id
		 WHERE f.friend_id = ? AND f.status = 'pending'
		 ORDER BY f.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("get pending received: %w", err)
	}
	resp.PendingReceived = append(resp.PendingReceived, received...)

	sent, err := s.listPending(ctx,
		`SELECT f.id, f.friend_id, u.name, u.username, f.created_at
		 FROM friendships f
		 JOIN users u ON u.id = f.friend_id
		 WHERE f.user_id = ? AND f.status = 'pending'
		 ORDER BY f.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("get pending sent: %w", err)
	}
	resp.PendingSent = append(resp.PendingSent, sent...)

	return resp, nil
}

func (s *Store) listPending(ctx context.Context, query, userID string) ([]models.PendingFriendEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PendingFriendEntry
	for rows.Next() {
		var p models.PendingFriendEntry
		var fullName string
		if err := rows.Scan(&p.FriendshipID, &p.UserID, &fullName, &p.Username, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.DisplayName = models.FormatDisplayName(fullName)
		out = append(out, p)
	}
	return out, rows.Err()
}
