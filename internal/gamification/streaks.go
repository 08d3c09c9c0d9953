package gamification

import (
	"context"
	"errors"
	"time"

	"github.com/teachme/backend/internal/models"
)

type StreakTransition int

const (
	StreakStarted StreakTransition = iota
	StreakSameDay
	StreakContinued
	StreakBroken
)

func (t StreakTransition) String() string {
	switch t {
	case StreakStarted:
		return "started"
	case StreakSameDay:
		return "same_day"
	case StreakContinued:
		return "continued"
	case StreakBroken:
		return "broken"
	}
	return "unknown"
}

// ClassifyStreakGap compares UTC calendar days. A last activity on or after
// today's date counts as the same day.
func ClassifyStreakGap(lastActivity *time.Time, now time.Time) StreakTransition {
	if lastActivity == nil {
		return StreakStarted
	}
	lastDay := lastActivity.UTC().Truncate(24 * time.Hour)
	today := now.UTC().Truncate(24 * time.Hour)
	days := int(today.Sub(lastDay).Hours() / 24)

	switch {
	case days <= 0:
		return StreakSameDay
	case days == 1:
		return StreakContinued
	default:
		return StreakBroken
	}
}

// UpdateStreak records qualifying activity for one streak type. It returns
// nil, nil when the student has no profile or no row for that type.
func (s *Service) UpdateStreak(ctx context.Context, studentID string, streakType models.StreakType) (*models.Streak, error) {
	var streak *models.Streak
	err := s.inTx(ctx, func(st *Store) error {
		streak = nil
		// Profile before streak, the order every activity locks in.
		if _, err := st.LockProfile(ctx, studentID); err != nil {
			if errors.Is(err, ErrProfileNotFound) {
				return nil
			}
			return err
		}
		updated, _, err := s.updateStreakTx(ctx, st, studentID, streakType)
		streak = updated
		return err
	})
	if err != nil {
		return nil, s.fail("update_streak", studentID, err)
	}
	return streak, nil
}

// updateStreakTx reports whether the row changed. Same-day activity leaves it
// untouched.
func (s *Service) updateStreakTx(ctx context.Context, st *Store, studentID string, streakType models.StreakType) (*models.Streak, bool, error) {
	streak, err := st.LockStreak(ctx, studentID, streakType)
	if err != nil || streak == nil {
		return nil, false, err
	}

	now := s.clock()
	switch ClassifyStreakGap(streak.LastActivity, now) {
	case StreakSameDay:
		return streak, false, nil
	case StreakContinued:
		streak.Current++
	default:
		streak.Current = 1
	}
	if streak.Current > streak.Longest {
		streak.Longest = streak.Current
	}
	streak.LastActivity = &now
	streak.IsActive = true
	streak.UpdatedAt = now

	if err := st.SaveStreak(ctx, streak); err != nil {
		return nil, false, err
	}
	if streakType == models.StreakDailyLogin {
		if err := st.UpdateProfileStreak(ctx, studentID, streak.Current, streak.Longest, now); err != nil {
			return nil, false, err
		}
	}
	return streak, true, nil
}

func (s *Service) Streaks(ctx context.Context, studentID string) ([]models.Streak, error) {
	streaks, err := NewStore(s.db).ListStreaks(ctx, studentID)
	if err != nil {
		return nil, s.fail("list_streaks", studentID, err)
	}
	return streaks, nil
}
