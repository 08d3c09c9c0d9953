package gamification

import (
	"context"
	"errors"
	"math"

	"github.com/teachme/backend/internal/models"
)

// actionCriteria limits each action to the criteria it can move.
var actionCriteria = map[models.Action][]models.CriteriaType{
	models.ActionLessonCompleted: {models.CriteriaLessonsCompleted, models.CriteriaSubjectLessons},
	models.ActionQuizCompleted:   {models.CriteriaQuizzesCompleted, models.CriteriaPerfectScores, models.CriteriaQuizScore},
	models.ActionStreakUpdated:   {models.CriteriaStreakDays},
	models.ActionXPAwarded:       {models.CriteriaXPEarned, models.CriteriaLevelReached},
}

// maxCascadeDepth bounds how many times reward XP may trigger another
// xp_awarded pass.
const maxCascadeDepth = 3

// CheckAndAwardAchievements evaluates the achievements relevant to action and
// returns the ones this call earned. Problems with a single achievement are
// logged and skipped.
func (s *Service) CheckAndAwardAchievements(ctx context.Context, studentID string, action models.Action, data models.ActionData) ([]models.Achievement, error) {
	earned := []models.Achievement{}
	if err := s.evaluate(ctx, studentID, action, data, 0, &earned); err != nil {
		return earned, s.fail("check_achievements", studentID, err)
	}
	return earned, nil
}

func (s *Service) evaluate(ctx context.Context, studentID string, action models.Action, data models.ActionData, depth int, earned *[]models.Achievement) error {
	relevant := actionCriteria[action]
	if len(relevant) == 0 {
		return nil
	}

	store := NewStore(s.db)
	profile, err := store.GetProfile(ctx, studentID)
	if err != nil {
		return err
	}
	catalog, err := store.ListAchievements(ctx, true)
	if err != nil {
		return err
	}
	progress, err := store.ListUserAchievements(ctx, studentID)
	if err != nil {
		return err
	}

	log := s.log.With("student_id", studentID, "action", string(action))
	rewarded := false

	for _, a := range catalog {
		if !hasCriteria(relevant, a.Criteria.Type) {
			continue
		}
		if ua, ok := progress[a.ID]; ok && ua.EarnedAt != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		current, err := s.measure(ctx, store, profile, a, data)
		if err != nil {
			var criteriaErr *CriteriaError
			if errors.As(err, &criteriaErr) {
				log.Warn("skipping achievement", "achievement_id", a.ID, "error", err)
			} else {
				log.Error("measure achievement", "achievement_id", a.ID, "error", err)
			}
			continue
		}

		if current < a.Criteria.Target {
			p := progressFor(current, a.Criteria.Target)
			if prev, ok := progress[a.ID]; ok && prev.Progress == p {
				continue
			}
			if err := store.UpsertAchievementProgress(ctx, studentID, a.ID, p, s.clock()); err != nil {
				log.Error("record achievement progress", "achievement_id", a.ID, "error", err)
			}
			continue
		}

		won, award, err := s.earnAchievement(ctx, studentID, a)
		if err != nil {
			log.Error("earn achievement", "achievement_id", a.ID, "error", err)
			continue
		}
		if !won {
			continue
		}

		*earned = append(*earned, a)
		s.metrics.ObserveAchievement(a.ID)
		log.Info("achievement earned", "achievement_id", a.ID, "reward_xp", a.Reward.XP)
		if award != nil {
			s.recordAwards(*award)
			rewarded = true
		}
	}

	if rewarded && depth < maxCascadeDepth {
		return s.evaluate(ctx, studentID, models.ActionXPAwarded, models.ActionData{}, depth+1, earned)
	}
	return nil
}

// earnAchievement marks the achievement earned and grants its rewards in one
// transaction. won is false when the row was already earned.
func (s *Service) earnAchievement(ctx context.Context, studentID string, a models.Achievement) (won bool, award *models.AwardXPResult, err error) {
	err = s.inTx(ctx, func(st *Store) error {
		won, award = false, nil

		if _, err := st.LockProfile(ctx, studentID); err != nil {
			return err
		}
		now := s.clock()
		ok, err := st.MarkAchievementEarned(ctx, studentID, a, now)
		if err != nil || !ok {
			return err
		}

		if a.Reward.XP > 0 {
			award, err = s.awardXPTx(ctx, st, AwardRequest{
				StudentID:   studentID,
				Amount:      a.Reward.XP,
				Source:      models.SourceAchievementEarned,
				SourceID:    a.ID,
				Description: "Achievement: " + a.Name,
			})
			if err != nil {
				return err
			}
		}
		if a.Reward.BadgeID != "" {
			if _, err := st.GrantBadge(ctx, studentID, a.Reward.BadgeID, now); err != nil {
				return err
			}
		}
		won = true
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return won, award, nil
}

// measure returns the student's current value for an achievement's criteria.
func (s *Service) measure(ctx context.Context, st *Store, profile *models.StudentProfile, a models.Achievement, data models.ActionData) (int, error) {
	c := a.Criteria
	if c.Target <= 0 {
		return 0, &CriteriaError{AchievementID: a.ID, Criteria: c.Type, Reason: "target must be positive"}
	}
	since, err := windowStart(c.Timeframe, s.clock())
	if err != nil {
		return 0, &CriteriaError{AchievementID: a.ID, Criteria: c.Type, Reason: err.Error()}
	}
	studentID := profile.UserID

	switch c.Type {
	case models.CriteriaLessonsCompleted:
		return st.CountLessons(ctx, studentID, c.Subject, since)

	case models.CriteriaSubjectLessons:
		if c.Subject == "" {
			return 0, &CriteriaError{AchievementID: a.ID, Criteria: c.Type, Reason: "subject is required"}
		}
		return st.CountLessons(ctx, studentID, c.Subject, since)

	case models.CriteriaQuizzesCompleted:
		return st.CountQuizzes(ctx, studentID, c.Subject, since, 0)

	case models.CriteriaPerfectScores:
		return st.CountQuizzes(ctx, studentID, c.Subject, since, 100)

	case models.CriteriaQuizScore:
		if data.Percentage >= c.Target && (c.Subject == "" || c.Subject == data.Subject) {
			return data.Percentage, nil
		}
		return st.BestQuizPercentage(ctx, studentID, c.Subject, since)

	case models.CriteriaStreakDays:
		if data.Streak > 0 {
			return data.Streak, nil
		}
		return st.MaxCurrentStreak(ctx, studentID)

	case models.CriteriaXPEarned:
		if since == nil {
			return clampInt(profile.TotalXP), nil
		}
		sum, _, err := st.SumTransactions(ctx, studentID, since)
		return clampInt(sum), err

	case models.CriteriaLevelReached:
		return profile.Level, nil
	}

	return 0, &CriteriaError{AchievementID: a.ID, Criteria: c.Type, Reason: "unsupported criteria type"}
}

func progressFor(current, target int) models.Progress {
	if current > target {
		current = target
	}
	pct := 0
	if target > 0 {
		pct = current * 100 / target
	}
	return models.Progress{Current: current, Target: target, Percentage: pct}
}

func hasCriteria(list []models.CriteriaType, t models.CriteriaType) bool {
	for _, c := range list {
		if c == t {
			return true
		}
	}
	return false
}

func clampInt(v int64) int {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

// ── Reads ───────────────────────────────────────────────

// Achievements returns the active catalog with the student's progress on each.
func (s *Service) Achievements(ctx context.Context, studentID string) ([]models.AchievementStatus, error) {
	store := NewStore(s.db)
	if _, err := store.GetProfile(ctx, studentID); err != nil {
		return nil, s.fail("list_achievements", studentID, err)
	}
	catalog, err := store.ListAchievements(ctx, true)
	if err != nil {
		return nil, s.fail("list_achievements", studentID, err)
	}
	progress, err := store.ListUserAchievements(ctx, studentID)
	if err != nil {
		return nil, s.fail("list_achievements", studentID, err)
	}

	out := make([]models.AchievementStatus, 0, len(catalog))
	for _, a := range catalog {
		status := models.AchievementStatus{
			Achievement: a,
			Progress:    models.Progress{Target: a.Criteria.Target},
		}
		if ua, ok := progress[a.ID]; ok {
			status.Progress = ua.Progress
			status.EarnedAt = ua.EarnedAt
		}
		out = append(out, status)
	}
	return out, nil
}

func (s *Service) Badges(ctx context.Context, studentID string) ([]models.UserBadge, error) {
	badges, err := NewStore(s.db).ListUserBadges(ctx, studentID)
	if err != nil {
		return nil, s.fail("list_badges", studentID, err)
	}
	return badges, nil
}
