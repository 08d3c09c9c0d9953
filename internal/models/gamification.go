package models

import "time"

// ── Enumerations ─────────────────────────────────────────

type XPSource string

const (
	SourceLessonCompleted   XPSource = "LESSON_COMPLETED"
	SourceQuizCompleted     XPSource = "QUIZ_COMPLETED"
	SourcePerfectScore      XPSource = "PERFECT_SCORE"
	SourceStreakBonus       XPSource = "STREAK_BONUS"
	SourceAchievementEarned XPSource = "ACHIEVEMENT_EARNED"
	SourceDailyLogin        XPSource = "DAILY_LOGIN"
	SourceBadgeEarned       XPSource = "BADGE_EARNED"
	SourceManualAdjustment  XPSource = "MANUAL_ADJUSTMENT"
)

func (s XPSource) Valid() bool {
	switch s {
	case SourceLessonCompleted, SourceQuizCompleted, SourcePerfectScore, SourceStreakBonus,
		SourceAchievementEarned, SourceDailyLogin, SourceBadgeEarned, SourceManualAdjustment:
		return true
	}
	return false
}

type StreakType string

const (
	StreakDailyLogin    StreakType = "DAILY_LOGIN"
	StreakDailyLesson   StreakType = "DAILY_LESSON"
	StreakDailyQuiz     StreakType = "DAILY_QUIZ"
	StreakPerfectScores StreakType = "PERFECT_SCORES"
)

// StreakTypes lists every type provisioned for a new student.
var StreakTypes = []StreakType{StreakDailyLogin, StreakDailyLesson, StreakDailyQuiz, StreakPerfectScores}

type CriteriaType string

const (
	CriteriaLessonsCompleted CriteriaType = "LESSONS_COMPLETED"
	CriteriaSubjectLessons   CriteriaType = "SUBJECT_LESSONS"
	CriteriaQuizzesCompleted CriteriaType = "QUIZZES_COMPLETED"
	CriteriaPerfectScores    CriteriaType = "PERFECT_SCORES"
	CriteriaQuizScore        CriteriaType = "QUIZ_SCORE"
	CriteriaStreakDays       CriteriaType = "STREAK_DAYS"
	CriteriaXPEarned         CriteriaType = "XP_EARNED"
	CriteriaLevelReached     CriteriaType = "LEVEL_REACHED"
)

type Timeframe string

const (
	TimeframeDaily   Timeframe = "DAILY"
	TimeframeWeekly  Timeframe = "WEEKLY"
	TimeframeMonthly Timeframe = "MONTHLY"
	TimeframeAllTime Timeframe = "ALL_TIME"
)

// Action names the event that triggered an achievement check.
type Action string

const (
	ActionLessonCompleted Action = "lesson_completed"
	ActionQuizCompleted   Action = "quiz_completed"
	ActionStreakUpdated   Action = "streak_updated"
	ActionXPAwarded       Action = "xp_awarded"
)

type LeaderboardType string

const (
	LeaderboardXP               LeaderboardType = "XP"
	LeaderboardLevel            LeaderboardType = "LEVEL"
	LeaderboardStreak           LeaderboardType = "STREAK"
	LeaderboardQuizScore        LeaderboardType = "QUIZ_SCORE"
	LeaderboardLessonsCompleted LeaderboardType = "LESSONS_COMPLETED"
)

type LeaderboardScope string

const (
	ScopeClass   LeaderboardScope = "CLASS"
	ScopeGrade   LeaderboardScope = "GRADE"
	ScopeSchool  LeaderboardScope = "SCHOOL"
	ScopeGlobal  LeaderboardScope = "GLOBAL"
	ScopeFriends LeaderboardScope = "FRIENDS"
)

const (
	ChangeUp   = "up"
	ChangeDown = "down"
	ChangeSame = "same"
	ChangeNew  = "new"
)

// ── Core Ledger Structs ─────────────────────────────────

type StudentProfile struct {
	UserID         string    `json:"user_id"`
	TotalXP        int64     `json:"total_xp"`
	Level          int       `json:"level"`
	CurrentLevelXP int64     `json:"current_level_xp"`
	NextLevelXP    int64     `json:"next_level_xp"`
	Streak         int       `json:"streak"`
	LongestStreak  int       `json:"longest_streak"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type XPTransaction struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	Amount      int       `json:"amount"`
	Source      XPSource  `json:"source"`
	SourceID    string    `json:"source_id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type Streak struct {
	StudentID    string     `json:"student_id"`
	Type         StreakType `json:"type"`
	Current      int        `json:"current"`
	Longest      int        `json:"longest"`
	LastActivity *time.Time `json:"last_activity"`
	IsActive     bool       `json:"is_active"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type AchievementCriteria struct {
	Type      CriteriaType `json:"type"`
	Target    int          `json:"target"`
	Subject   string       `json:"subject,omitempty"`
	Timeframe Timeframe    `json:"timeframe,omitempty"`
}

type AchievementReward struct {
	XP      int    `json:"xp"`
	BadgeID string `json:"badge_id,omitempty"`
	Title   string `json:"title,omitempty"`
}

type Achievement struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Category    string              `json:"category"`
	Criteria    AchievementCriteria `json:"criteria"`
	Reward      AchievementReward   `json:"reward"`
	IsActive    bool                `json:"is_active"`
}

type Progress struct {
	Current    int `json:"current"`
	Target     int `json:"target"`
	Percentage int `json:"percentage"`
}

type UserAchievement struct {
	StudentID     string     `json:"student_id"`
	AchievementID string     `json:"achievement_id"`
	Progress      Progress   `json:"progress"`
	EarnedAt      *time.Time `json:"earned_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Rarity      string `json:"rarity"`
}

type UserBadge struct {
	Badge
	EarnedAt time.Time `json:"earned_at"`
}

// ActionData carries the facts an action already knows, so the evaluator can
// skip an aggregate query. Zero values mean "not supplied".
type ActionData struct {
	Subject    string `json:"subject,omitempty"`
	Streak     int    `json:"streak,omitempty"`
	Percentage int    `json:"percentage,omitempty"`
}

// ── Results ─────────────────────────────────────────────

type AwardXPResult struct {
	Transaction XPTransaction `json:"transaction"`
	LeveledUp   bool          `json:"leveled_up"`
	NewLevel    int           `json:"new_level"`
	OldLevel    int           `json:"old_level"`
	TotalXP     int64         `json:"total_xp"`
}

type AchievementStatus struct {
	Achievement
	Progress Progress   `json:"progress"`
	EarnedAt *time.Time `json:"earned_at"`
}

type ActivityResult struct {
	XPAwarded       []AwardXPResult `json:"xp_awarded"`
	TotalXP         int64           `json:"total_xp"`
	Level           int             `json:"level"`
	LeveledUp       bool            `json:"leveled_up"`
	Streak          *Streak         `json:"streak,omitempty"`
	NewAchievements []Achievement   `json:"new_achievements"`
	AlreadyRecorded bool            `json:"already_recorded,omitempty"`
}

type LedgerCheck struct {
	StudentID    string `json:"student_id"`
	ProfileTotal int64  `json:"profile_total"`
	LedgerTotal  int64  `json:"ledger_total"`
	Consistent   bool   `json:"consistent"`
	Transactions int    `json:"transactions"`
}

// ── Leaderboard ─────────────────────────────────────────

type RankChange struct {
	Direction string `json:"direction"`
	Positions int    `json:"positions"`
}

type LeaderboardEntry struct {
	Rank          int        `json:"rank"`
	StudentID     string     `json:"student_id"`
	DisplayName   string     `json:"display_name"`
	Score         float64    `json:"score"`
	Level         int        `json:"level"`
	Change        RankChange `json:"change"`
	IsCurrentUser bool       `json:"is_current_user"`
}

type Leaderboard struct {
	Type        LeaderboardType    `json:"type"`
	Scope       LeaderboardScope   `json:"scope"`
	Timeframe   Timeframe          `json:"timeframe"`
	Entries     []LeaderboardEntry `json:"entries"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// ── Friends ─────────────────────────────────────────────

type Friendship struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	FriendID   string     `json:"friend_id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

type FriendEntry struct {
	FriendshipID string `json:"friendship_id"`
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	Username     string `json:"username"`
	TotalXP      int64  `json:"total_xp"`
	Level        int    `json:"level"`
	Streak       int    `json:"streak"`
}

type PendingFriendEntry struct {
	FriendshipID string    `json:"friendship_id"`
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name"`
	Username     string    `json:"username"`
	CreatedAt    time.Time `json:"created_at"`
}

type FriendsResponse struct {
	Friends         []FriendEntry        `json:"friends"`
	PendingReceived []PendingFriendEntry `json:"pending_received"`
	PendingSent     []PendingFriendEntry `json:"pending_sent"`
}

// ── Request Structs ─────────────────────────────────────

type CompleteLessonRequest struct {
	Subject string `json:"subject" validate:"max=64"`
}

type QuizAttemptRequest struct {
	Subject  string `json:"subject" validate:"max=64"`
	Score    int    `json:"score" validate:"gte=0"`
	MaxScore int    `json:"max_score" validate:"required,gt=0,gtefield=Score"`
}

type ManualXPRequest struct {
	StudentID   string `json:"student_id" validate:"required"`
	Amount      int    `json:"amount" validate:"required,gt=0,lte=100000"`
	Description string `json:"description" validate:"max=255"`
}

type SnapshotRequest struct {
	Type      LeaderboardType  `json:"type" validate:"required"`
	Scope     LeaderboardScope `json:"scope" validate:"required"`
	Timeframe Timeframe        `json:"timeframe" validate:"required"`
	ScopeID   string           `json:"scope_id"`
}

type FriendRequestReq struct {
	ToUserID string `json:"to_user_id" validate:"required"`
}

type FriendRespondReq struct {
	FriendshipID string `json:"friendship_id" validate:"required"`
	Action       string `json:"action" validate:"required,oneof=accept reject"`
}
