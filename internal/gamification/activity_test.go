package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teachme/backend/internal/apperror"
	"github.com/teachme/backend/internal/models"
)

func TestCompleteLesson(t *testing.T) {
	f := newFixture(t, "")
	id := f.addStudent("s1", "Ada Lovelace", "", 0)

	res, err := f.svc.CompleteLesson(f.ctx, id, LessonCompletion{LessonID: "fractions-1", Subject: "math"})
	require.NoError(t, err)
	assert.False(t, res.AlreadyRecorded)
	require.Len(t, res.XPAwarded, 1)
	assert.Equal(t, 50, res.XPAwarded[0].Transaction.Amount)
	assert.Equal(t, models.SourceLessonCompleted, res.XPAwarded[0].Transaction.Source)
	assert.Equal(t, "fractions-1", res.XPAwarded[0].Transaction.SourceID)
	assert.EqualValues(t, 50, res.TotalXP)
	assert.Equal(t, 1, res.Level)
	assert.False(t, res.LeveledUp)
	require.NotNil(t, res.Streak)
	assert.Equal(t, models.StreakDailyLesson, res.Streak.Type)
	assert.Equal(t, 1, res.Streak.Current)
	assert.NotNil(t, res.NewAchievements)

	again, err := f.svc.CompleteLesson(f.ctx, id, LessonCompletion{LessonID: "fractions-1", Subject: "math"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyRecorded)
	assert.Empty(t, again.XPAwarded)
	assert.EqualValues(t, 50, again.TotalXP)
	assert.Len(t, f.ledger(id), 1)
}

func TestCompleteLessonLevelsUpFromZero(t *testing.T) {
	f := newFixture(t, "")
	id := f.addStudent("s1", "Ada Lovelace", "", 0)

	res, err := f.svc.CompleteLesson(f.ctx, id, LessonCompletion{LessonID: "big-one", XP: 100})
	require.NoError(t, err)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 2, res.Level)
	assert.EqualValues(t, 100, res.TotalXP)

	p := f.profile(id)
	assert.EqualValues(t, 0, p.CurrentLevelXP)
	assert.EqualValues(t, 300, p.NextLevelXP)
}

func TestCompleteLessonEarnsAchievements(t *testing.T) {
	f := newFixture(t, `
badges:
  - id: trailblazer
    name: Trailblazer
achievements:
  - id: first-steps
    name: First Steps
    criteria: {type: LESSONS_COMPLETED, target: 1}
    reward: {xp: 50, badge_id: trailblazer}
  - id: math-explorer
    name: Math Explorer
    criteria: {type: SUBJECT_LESSONS, target: 2, subject: math}
    reward: {xp: 100}
`)
	id := f.addStudent("s1", "Ada Lovelace", "", 0)

	res, err := f.svc.CompleteLesson(f.ctx, id, LessonCompletion{LessonID: "l1", Subject: "math"})
	require.NoError(t, err)
	assert.Equal(t, []string{"first-steps"}, achievementIDs(res.NewAchievements))
	assert.EqualValues(t, 100, res.TotalXP)
	assert.True(t, res.LeveledUp)

	res, err = f.svc.CompleteLesson(f.ctx, id, LessonCompletion{LessonID: "l2", Subject: "math"})
	require.NoError(t, err)
	assert.Equal(t, []string{"math-explorer"}, achievementIDs(res.NewAchievements))
	assert.EqualValues(t, 250, res.TotalXP)

	check, err := f.svc.VerifyLedger(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
}

func TestCompleteQuiz(t *testing.T) {
	f := newFixture(t, "")
	id := f.addStudent("s1", "Ada Lovelace", "", 0)

	res, err := f.svc.CompleteQuiz(f.ctx, id, QuizSubmission{QuizID: "q1", Subject: "math", Score: 10, MaxScore: 10})
	require.NoError(t, err)
	require.Len(t, res.XPAwarded, 2)
	assert.Equal(t, models.SourceQuizCompleted, res.XPAwarded[0].Transaction.Source)
	assert.Equal(t, QuizCompletionXP(100), res.XPAwarded[0].Transaction.Amount)
	assert.Equal(t, models.SourcePerfectScore, res.XPAwarded[1].Transaction.Source)
	assert.Equal(t, PerfectScoreBonus, res.XPAwarded[1].Transaction.Amount)
	assert.EqualValues(t, QuizCompletionXP(100)+PerfectScoreBonus, res.TotalXP)
	require.NotNil(t, res.Streak)
	assert.Equal(t, models.StreakDailyQuiz, res.Streak.Type)

	streaks, err := f.svc.Streaks(f.ctx, id)
	require.NoError(t, err)
	for _, s := range streaks {
		switch s.Type {
		case models.StreakDailyQuiz, models.StreakPerfectScores:
			assert.Equal(t, 1, s.Current, s.Type)
		default:
			assert.Equal(t, 0, s.Current, s.Type)
		}
	}

	// Quizzes are not deduplicated; each attempt earns XP.
	res, err = f.svc.CompleteQuiz(f.ctx, id, QuizSubmission{QuizID: "q1", Subject: "math", Score: 4, MaxScore: 10})
	require.NoError(t, err)
	require.Len(t, res.XPAwarded, 1)
	assert.Equal(t, QuizCompletionXP(40), res.XPAwarded[0].Transaction.Amount)
}

func TestCompleteQuizRejectsBadScores(t *testing.T) {
	f := newFixture(t, "")
	id := f.addStudent("s1", "Ada Lovelace", "", 0)

	tests := []struct {
		name string
		sub  QuizSubmission
	}{
		{"missing quiz", QuizSubmission{Score: 1, MaxScore: 1}},
		{"zero max", QuizSubmission{QuizID: "q", Score: 0, MaxScore: 0}},
		{"negative", QuizSubmission{QuizID: "q", Score: -1, MaxScore: 10}},
		{"over max", QuizSubmission{QuizID: "q", Score: 11, MaxScore: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CompleteQuiz(f.ctx, id, tt.sub)
			assert.ErrorIs(t, err, apperror.ErrBadRequest)
		})
	}
	assert.Empty(t, f.ledger(id))
}

func TestRecordLoginStreakRewards(t *testing.T) {
	f := newFixture(t, "")
	id := f.addStudent("s1", "Ada Lovelace", "", 0)

	res, err := f.svc.RecordLogin(f.ctx, id)
	require.NoError(t, err)
	assert.False(t, res.AlreadyRecorded)
	require.Len(t, res.XPAwarded, 1)
	assert.Equal(t, 10, res.XPAwarded[0].Transaction.Amount)
	assert.Equal(t, "2026-03-02", res.XPAwarded[0].Transaction.SourceID)

	f.advance(2 * time.Hour)
	res, err = f.svc.RecordLogin(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, res.AlreadyRecorded)
	assert.Empty(t, res.XPAwarded)
	assert.Equal(t, 1, res.Streak.Current)

	f.advance(24 * time.Hour)
	_, err = f.svc.RecordLogin(f.ctx, id)
	require.NoError(t, err)

	f.advance(24 * time.Hour)
	res, err = f.svc.RecordLogin(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Streak.Current)
	require.Len(t, res.XPAwarded, 2)
	assert.Equal(t, ApplyMultiplier(10, StreakMultiplier(3)), res.XPAwarded[0].Transaction.Amount)
	assert.Equal(t, models.SourceStreakBonus, res.XPAwarded[1].Transaction.Source)
	assert.Equal(t, StreakBonusXP(3), res.XPAwarded[1].Transaction.Amount)

	p := f.profile(id)
	assert.Equal(t, 3, p.Streak)
	assert.Equal(t, 3, p.LongestStreak)

	n, _ := countSource(f.ledger(id), models.SourceDailyLogin)
	assert.Equal(t, 3, n)

	// The login streak now scales quiz XP.
	quiz, err := f.svc.CompleteQuiz(f.ctx, id, QuizSubmission{QuizID: "q", Score: 1, MaxScore: 2})
	require.NoError(t, err)
	assert.Equal(t, ApplyMultiplier(QuizCompletionXP(50), StreakMultiplier(3)), quiz.XPAwarded[0].Transaction.Amount)
}

func TestActivitiesRequireProfile(t *testing.T) {
	f := newFixture(t, "")
	f.addUser("t1", "Terry Teacher", models.RoleTeacher, "", 0)

	_, err := f.svc.RecordLogin(f.ctx, "t1")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	_, err = f.svc.CompleteLesson(f.ctx, "t1", LessonCompletion{LessonID: "l1"})
	assert.ErrorIs(t, err, ErrProfileNotFound)
	_, err = f.svc.CompleteQuiz(f.ctx, "t1", QuizSubmission{QuizID: "q", Score: 1, MaxScore: 1})
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestConfiguredXPValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyLoginXP = 5
	cfg.LessonCompletionXP = 20
	f := newFixtureWithConfig(t, "", cfg)
	id := f.addStudent("s1", "Ada Lovelace", "", 0)

	login, err := f.svc.RecordLogin(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, login.XPAwarded[0].Transaction.Amount)

	lesson, err := f.svc.CompleteLesson(f.ctx, id, LessonCompletion{LessonID: "l1"})
	require.NoError(t, err)
	assert.Equal(t, 20, lesson.XPAwarded[0].Transaction.Amount)
}
