package gamification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/teachme/backend/internal/apperror"
	"github.com/teachme/backend/internal/models"
)

type LessonCompletion struct {
	LessonID string
	Subject  string
	XP       int
}

type QuizSubmission struct {
	QuizID   string
	Subject  string
	Score    int
	MaxScore int
}

type achievementCheck struct {
	action models.Action
	data   models.ActionData
}

// CompleteLesson records a lesson once per student, grants its XP and
// extends the daily lesson streak. Repeats are reported as AlreadyRecorded.
func (s *Service) CompleteLesson(ctx context.Context, studentID string, lc LessonCompletion) (*models.ActivityResult, error) {
	if lc.LessonID == "" {
		return nil, s.fail("complete_lesson", studentID, fmt.Errorf("lesson id is required: %w", apperror.ErrBadRequest))
	}
	xp := lc.XP
	if xp <= 0 {
		xp = s.cfg.LessonCompletionXP
	}

	var (
		startLevel int
		awards     []models.AwardXPResult
		streak     *models.Streak
		changed    bool
		repeated   bool
	)
	err := s.inTx(ctx, func(st *Store) error {
		awards, streak, changed, repeated = nil, nil, false, false

		profile, err := st.LockProfile(ctx, studentID)
		if err != nil {
			return err
		}
		startLevel = profile.Level

		inserted, err := st.InsertLessonCompletion(ctx, studentID, lc.LessonID, lc.Subject, xp, s.clock())
		if err != nil {
			return err
		}
		if !inserted {
			repeated = true
			return nil
		}

		award, err := s.awardXPTx(ctx, st, AwardRequest{
			StudentID:   studentID,
			Amount:      xp,
			Source:      models.SourceLessonCompleted,
			SourceID:    lc.LessonID,
			Description: "Lesson completed",
		})
		if err != nil {
			return err
		}
		awards = append(awards, *award)

		streak, changed, err = s.updateStreakTx(ctx, st, studentID, models.StreakDailyLesson)
		return err
	})
	if err != nil {
		return nil, s.fail("complete_lesson", studentID, err)
	}

	checks := []achievementCheck{}
	if !repeated {
		checks = append(checks, achievementCheck{models.ActionLessonCompleted, models.ActionData{Subject: lc.Subject}})
		if changed {
			checks = append(checks, achievementCheck{models.ActionStreakUpdated, models.ActionData{Streak: streak.Current}})
		}
		checks = append(checks, achievementCheck{models.ActionXPAwarded, models.ActionData{}})
	}

	result := s.finishActivity(ctx, studentID, startLevel, awards, checks)
	result.Streak = streak
	result.AlreadyRecorded = repeated
	return result, nil
}

// CompleteQuiz records an attempt and grants completion XP scaled by the
// login streak, plus a bonus for a perfect score.
func (s *Service) CompleteQuiz(ctx context.Context, studentID string, q QuizSubmission) (*models.ActivityResult, error) {
	if q.QuizID == "" {
		return nil, s.fail("complete_quiz", studentID, fmt.Errorf("quiz id is required: %w", apperror.ErrBadRequest))
	}
	if q.MaxScore <= 0 || q.Score < 0 || q.Score > q.MaxScore {
		return nil, s.fail("complete_quiz", studentID, fmt.Errorf("score must be between 0 and max score: %w", apperror.ErrBadRequest))
	}
	pct := Percentage(q.Score, q.MaxScore)
	perfect := pct == 100

	var (
		startLevel int
		awards     []models.AwardXPResult
		quizStreak *models.Streak
		best       int
	)
	err := s.inTx(ctx, func(st *Store) error {
		awards, quizStreak, best = nil, nil, 0

		profile, err := st.LockProfile(ctx, studentID)
		if err != nil {
			return err
		}
		startLevel = profile.Level
		multiplier := StreakMultiplier(profile.Streak)

		attempt := QuizAttempt{
			ID:          uuid.NewString(),
			StudentID:   studentID,
			QuizID:      q.QuizID,
			Subject:     q.Subject,
			Score:       q.Score,
			MaxScore:    q.MaxScore,
			Percentage:  pct,
			CompletedAt: s.clock(),
		}
		if err := st.InsertQuizAttempt(ctx, attempt); err != nil {
			return err
		}

		award, err := s.awardXPTx(ctx, st, AwardRequest{
			StudentID:   studentID,
			Amount:      QuizCompletionXP(pct),
			Source:      models.SourceQuizCompleted,
			SourceID:    attempt.ID,
			Description: fmt.Sprintf("Quiz completed (%d%%)", pct),
			Multiplier:  multiplier,
		})
		if err != nil {
			return err
		}
		awards = append(awards, *award)

		if perfect {
			bonus, err := s.awardXPTx(ctx, st, AwardRequest{
				StudentID:   studentID,
				Amount:      PerfectScoreBonus,
				Source:      models.SourcePerfectScore,
				SourceID:    attempt.ID,
				Description: "Perfect score",
			})
			if err != nil {
				return err
			}
			awards = append(awards, *bonus)
		}

		var changed bool
		quizStreak, changed, err = s.updateStreakTx(ctx, st, studentID, models.StreakDailyQuiz)
		if err != nil {
			return err
		}
		if changed {
			best = quizStreak.Current
		}
		if perfect {
			perfectStreak, changed, err := s.updateStreakTx(ctx, st, studentID, models.StreakPerfectScores)
			if err != nil {
				return err
			}
			if changed && perfectStreak.Current > best {
				best = perfectStreak.Current
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("complete_quiz", studentID, err)
	}

	checks := []achievementCheck{
		{models.ActionQuizCompleted, models.ActionData{Subject: q.Subject, Percentage: pct}},
	}
	if best > 0 {
		checks = append(checks, achievementCheck{models.ActionStreakUpdated, models.ActionData{Streak: best}})
	}
	checks = append(checks, achievementCheck{models.ActionXPAwarded, models.ActionData{}})

	result := s.finishActivity(ctx, studentID, startLevel, awards, checks)
	result.Streak = quizStreak
	return result, nil
}

// RecordLogin extends the daily login streak and grants daily login XP the
// first time it is called on a UTC day. Streak milestones add a bonus.
func (s *Service) RecordLogin(ctx context.Context, studentID string) (*models.ActivityResult, error) {
	var (
		startLevel int
		awards     []models.AwardXPResult
		streak     *models.Streak
		changed    bool
	)
	err := s.inTx(ctx, func(st *Store) error {
		awards, streak, changed = nil, nil, false

		profile, err := st.LockProfile(ctx, studentID)
		if err != nil {
			return err
		}
		startLevel = profile.Level

		streak, changed, err = s.updateStreakTx(ctx, st, studentID, models.StreakDailyLogin)
		if err != nil || !changed {
			return err
		}

		today := s.clock().Format("2006-01-02")
		award, err := s.awardXPTx(ctx, st, AwardRequest{
			StudentID:   studentID,
			Amount:      s.cfg.DailyLoginXP,
			Source:      models.SourceDailyLogin,
			SourceID:    today,
			Description: "Daily login",
			Multiplier:  StreakMultiplier(streak.Current),
		})
		if err != nil {
			return err
		}
		awards = append(awards, *award)

		if bonus := StreakBonusXP(streak.Current); bonus > 0 {
			award, err := s.awardXPTx(ctx, st, AwardRequest{
				StudentID:   studentID,
				Amount:      bonus,
				Source:      models.SourceStreakBonus,
				SourceID:    fmt.Sprintf("%s:%d", models.StreakDailyLogin, streak.Current),
				Description: fmt.Sprintf("%d-day streak", streak.Current),
			})
			if err != nil {
				return err
			}
			awards = append(awards, *award)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("record_login", studentID, err)
	}

	var checks []achievementCheck
	if changed {
		checks = []achievementCheck{
			{models.ActionStreakUpdated, models.ActionData{Streak: streak.Current}},
			{models.ActionXPAwarded, models.ActionData{}},
		}
	}

	result := s.finishActivity(ctx, studentID, startLevel, awards, checks)
	result.Streak = streak
	result.AlreadyRecorded = !changed
	return result, nil
}

// finishActivity reports committed awards, runs achievement checks and
// fills the result from the final profile. Check failures are already
// logged by the evaluator and do not fail the activity.
func (s *Service) finishActivity(ctx context.Context, studentID string, startLevel int, awards []models.AwardXPResult, checks []achievementCheck) *models.ActivityResult {
	s.recordAwards(awards...)

	result := &models.ActivityResult{
		XPAwarded:       awards,
		NewAchievements: []models.Achievement{},
	}
	if result.XPAwarded == nil {
		result.XPAwarded = []models.AwardXPResult{}
	}

	for _, c := range checks {
		earned, _ := s.CheckAndAwardAchievements(ctx, studentID, c.action, c.data)
		result.NewAchievements = append(result.NewAchievements, earned...)
	}

	profile, err := NewStore(s.db).GetProfile(ctx, studentID)
	if err != nil {
		s.log.Error("reload profile", "student_id", studentID, "error", err)
		if n := len(awards); n > 0 {
			result.TotalXP = awards[n-1].TotalXP
			result.Level = awards[n-1].NewLevel
		}
	} else {
		result.TotalXP = profile.TotalXP
		result.Level = profile.Level
	}
	result.LeveledUp = result.Level > startLevel
	return result
}
