package gamification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/teachme/backend/internal/database"
	"github.com/teachme/backend/internal/models"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

type LeaderboardQuery struct {
	Type      models.LeaderboardType
	Scope     models.LeaderboardScope
	Timeframe models.Timeframe
	ScopeID   string
	ViewerID  string
	Limit     int
}

// BoardKey identifies a ranking independent of viewer and limit.
func (q LeaderboardQuery) BoardKey() string {
	return strings.Join([]string{string(q.Type), string(q.Scope), q.ScopeID, string(q.Timeframe)}, ":")
}

// ParseBoardSpec reads "TYPE:SCOPE:TIMEFRAME" or "TYPE:SCOPE:SCOPE_ID:TIMEFRAME".
// Type, scope and timeframe never contain ':', so everything between the
// scope and the timeframe is the scope id ("north:5" for a grade board).
// Every BoardKey parses back to its query.
func ParseBoardSpec(spec string) (LeaderboardQuery, error) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	n := len(parts)
	if n < 3 {
		return LeaderboardQuery{}, fmt.Errorf("%w: bad board spec %q", ErrInvalidLeaderboardQuery, spec)
	}
	q := LeaderboardQuery{
		Type:      models.LeaderboardType(parts[0]),
		Scope:     models.LeaderboardScope(parts[1]),
		ScopeID:   strings.Join(parts[2:n-1], ":"),
		Timeframe: models.Timeframe(parts[n-1]),
	}
	if err := validateBoard(q); err != nil {
		return q, err
	}
	return q, nil
}

func validateBoard(q LeaderboardQuery) error {
	switch q.Type {
	case models.LeaderboardXP, models.LeaderboardLevel, models.LeaderboardStreak,
		models.LeaderboardQuizScore, models.LeaderboardLessonsCompleted:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidLeaderboardQuery, q.Type)
	}
	switch q.Scope {
	case models.ScopeClass, models.ScopeGrade, models.ScopeSchool, models.ScopeGlobal, models.ScopeFriends:
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidLeaderboardQuery, q.Scope)
	}
	switch q.Timeframe {
	case models.TimeframeWeekly, models.TimeframeMonthly, models.TimeframeAllTime:
	default:
		return fmt.Errorf("%w: unsupported timeframe %q", ErrInvalidLeaderboardQuery, q.Timeframe)
	}
	return nil
}

// normalize fills defaults, validates enums and resolves the scope id from
// the viewer where the scope allows it.
func (s *Service) normalize(ctx context.Context, q LeaderboardQuery) (LeaderboardQuery, error) {
	if q.Type == "" {
		q.Type = models.LeaderboardXP
	}
	if q.Scope == "" {
		q.Scope = models.ScopeGlobal
	}
	if q.Timeframe == "" {
		q.Timeframe = models.TimeframeAllTime
	}
	if q.Limit <= 0 {
		q.Limit = defaultLeaderboardLimit
	}
	if q.Limit > maxLeaderboardLimit {
		q.Limit = maxLeaderboardLimit
	}
	if err := validateBoard(q); err != nil {
		return q, err
	}

	switch q.Scope {
	case models.ScopeGlobal:
		q.ScopeID = ""
	case models.ScopeFriends:
		if q.ViewerID == "" {
			return q, fmt.Errorf("%w: friends scope needs a viewer", ErrInvalidLeaderboardQuery)
		}
		q.ScopeID = q.ViewerID
	case models.ScopeClass:
		if q.ScopeID == "" {
			return q, fmt.Errorf("%w: class scope needs scope_id", ErrInvalidLeaderboardQuery)
		}
	case models.ScopeSchool, models.ScopeGrade:
		if q.ScopeID == "" && q.ViewerID != "" {
			viewer, err := NewStore(s.db).GetUser(ctx, q.ViewerID)
			if err != nil && !errors.Is(err, ErrUserNotFound) {
				return q, err
			}
			if viewer != nil && viewer.SchoolID != "" {
				if q.Scope == models.ScopeSchool {
					q.ScopeID = viewer.SchoolID
				} else {
					q.ScopeID = GradeScopeID(viewer.SchoolID, viewer.GradeLevel)
				}
			}
		}
		if q.ScopeID == "" {
			return q, fmt.Errorf("%w: %s scope needs scope_id", ErrInvalidLeaderboardQuery, strings.ToLower(string(q.Scope)))
		}
	}
	return q, nil
}

// GetLeaderboard ranks the scope's students by the chosen metric. Boards are
// cached per key and shared between concurrent callers.
func (s *Service) GetLeaderboard(ctx context.Context, q LeaderboardQuery) (*models.Leaderboard, error) {
	q, err := s.normalize(ctx, q)
	if err != nil {
		return nil, s.fail("get_leaderboard", q.ViewerID, err)
	}
	key := q.BoardKey()

	board, hit, err := s.cache.get(ctx, key)
	if err != nil {
		s.log.Warn("leaderboard cache read", "board", key, "error", err)
	}
	s.metrics.ObserveLeaderboard(hit)

	if !hit {
		v, err, _ := s.boards.Do(key, func() (interface{}, error) {
			b, err := s.projectBoard(ctx, q, maxLeaderboardLimit)
			if err != nil {
				return nil, err
			}
			if err := s.cache.set(ctx, key, b); err != nil {
				s.log.Warn("leaderboard cache write", "board", key, "error", err)
			}
			return b, nil
		})
		if err != nil {
			return nil, s.fail("get_leaderboard", q.ViewerID, err)
		}
		board = v.(*models.Leaderboard)
	}

	return personalize(board, q.ViewerID, q.Limit), nil
}

// projectBoard computes a board from the store. limit <= 0 ranks everyone.
func (s *Service) projectBoard(ctx context.Context, q LeaderboardQuery, limit int) (*models.Leaderboard, error) {
	now := s.clock()
	since, err := windowStart(q.Timeframe, now)
	if err != nil {
		return nil, err
	}

	ids, all, err := s.members.Members(ctx, q.Scope, q.ScopeID)
	if err != nil {
		return nil, err
	}
	filter := RankingFilter{Type: q.Type, Since: since, Limit: limit}
	if !all {
		filter.Candidates = ids
		if filter.Candidates == nil {
			filter.Candidates = []string{}
		}
	}

	store := NewStore(s.db)
	scores, err := store.RankScores(ctx, filter)
	if err != nil {
		return nil, err
	}
	previous, err := store.LoadSnapshot(ctx, q.BoardKey())
	if err != nil {
		return nil, err
	}

	entries := make([]models.LeaderboardEntry, 0, len(scores))
	for i, sc := range scores {
		rank := i + 1
		entries = append(entries, models.LeaderboardEntry{
			Rank:        rank,
			StudentID:   sc.StudentID,
			DisplayName: models.FormatDisplayName(sc.Name),
			Score:       sc.Score,
			Level:       sc.Level,
			Change:      rankChange(previous, sc.StudentID, rank),
		})
	}

	return &models.Leaderboard{
		Type:        q.Type,
		Scope:       q.Scope,
		Timeframe:   q.Timeframe,
		Entries:     entries,
		GeneratedAt: now,
	}, nil
}

func rankChange(previous map[string]int, studentID string, rank int) models.RankChange {
	prev, ok := previous[studentID]
	switch {
	case !ok:
		return models.RankChange{Direction: models.ChangeNew}
	case prev > rank:
		return models.RankChange{Direction: models.ChangeUp, Positions: prev - rank}
	case prev < rank:
		return models.RankChange{Direction: models.ChangeDown, Positions: rank - prev}
	}
	return models.RankChange{Direction: models.ChangeSame}
}

// personalize copies the shared board, trims it and flags the viewer's row.
func personalize(board *models.Leaderboard, viewerID string, limit int) *models.Leaderboard {
	out := *board
	n := len(board.Entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out.Entries = make([]models.LeaderboardEntry, n)
	copy(out.Entries, board.Entries[:n])
	for i := range out.Entries {
		out.Entries[i].IsCurrentUser = viewerID != "" && out.Entries[i].StudentID == viewerID
	}
	return &out
}

// CaptureSnapshot persists the full current ranking as the baseline for
// future rank changes and drops the cached board.
func (s *Service) CaptureSnapshot(ctx context.Context, q LeaderboardQuery) (*models.Leaderboard, error) {
	q, err := s.normalize(ctx, q)
	if err != nil {
		return nil, s.fail("capture_snapshot", q.ViewerID, err)
	}
	key := q.BoardKey()

	board, err := s.projectBoard(ctx, q, 0)
	if err != nil {
		return nil, s.fail("capture_snapshot", q.ViewerID, err)
	}
	err = s.db.InTx(ctx, func(tx *database.Tx) error {
		return NewStore(tx).ReplaceSnapshot(ctx, key, board.Entries, board.GeneratedAt)
	})
	if err != nil {
		return nil, s.fail("capture_snapshot", q.ViewerID, err)
	}
	if err := s.cache.invalidate(ctx, key); err != nil {
		s.log.Warn("leaderboard cache invalidate", "board", key, "error", err)
	}

	s.log.Info("leaderboard snapshot captured", "board", key, "entries", len(board.Entries))
	return personalize(board, q.ViewerID, q.Limit), nil
}
