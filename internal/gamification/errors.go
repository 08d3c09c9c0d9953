package gamification

import (
	"errors"
	"fmt"

	"github.com/teachme/backend/internal/apperror"
	"github.com/teachme/backend/internal/models"
)

var (
	ErrProfileNotFound          = fmt.Errorf("student profile not found: %w", apperror.ErrNotFound)
	ErrInvalidAmount            = fmt.Errorf("xp amount must be positive: %w", apperror.ErrBadRequest)
	ErrInvalidSource            = fmt.Errorf("unknown xp source: %w", apperror.ErrBadRequest)
	ErrConcurrentUpdateConflict = fmt.Errorf("concurrent update conflict, retry later: %w", apperror.ErrUnavailable)
	ErrInvalidLeaderboardQuery  = fmt.Errorf("invalid leaderboard query: %w", apperror.ErrBadRequest)
	ErrCriteriaEvaluation       = errors.New("achievement criteria evaluation failed")

	ErrUserNotFound       = fmt.Errorf("user not found: %w", apperror.ErrNotFound)
	ErrFriendshipExists   = fmt.Errorf("friend request already exists: %w", apperror.ErrConflict)
	ErrFriendshipNotFound = fmt.Errorf("friendship not found: %w", apperror.ErrNotFound)
	ErrSelfFriendship     = fmt.Errorf("cannot friend yourself: %w", apperror.ErrBadRequest)

	ErrViewForbidden = fmt.Errorf("not allowed to view this student: %w", apperror.ErrForbidden)
)

// CriteriaError reports an achievement whose criteria cannot be measured.
// The evaluator logs it and moves on to the next achievement.
type CriteriaError struct {
	AchievementID string
	Criteria      models.CriteriaType
	Reason        string
}

func (e *CriteriaError) Error() string {
	return fmt.Sprintf("achievement %s: criteria %s: %s", e.AchievementID, e.Criteria, e.Reason)
}

func (e *CriteriaError) Unwrap() error {
	return ErrCriteriaEvaluation
}
