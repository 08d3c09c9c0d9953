package gamification

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/teachme/backend/internal/database"
	"github.com/teachme/backend/internal/models"
)

// MembershipResolver supplies the candidate population for a leaderboard
// scope. all is true when the scope does not restrict candidates.
type MembershipResolver interface {
	Members(ctx context.Context, scope models.LeaderboardScope, scopeID string) (ids []string, all bool, err error)
}

// SQLMembership resolves scopes from class enrollments, the users table and
// accepted friendships.
type SQLMembership struct {
	db database.Querier
}

func NewSQLMembership(db database.Querier) *SQLMembership {
	return &SQLMembership{db: db}
}

func (m *SQLMembership) Members(ctx context.Context, scope models.LeaderboardScope, scopeID string) ([]string, bool, error) {
	switch scope {
	case models.ScopeGlobal:
		return nil, true, nil

	case models.ScopeClass:
		ids, err := m.collect(ctx,
			`SELECT student_id FROM class_enrollments WHERE class_id = ?`, scopeID)
		return ids, false, err

	case models.ScopeSchool:
		ids, err := m.collect(ctx,
			`SELECT id FROM users WHERE school_id = ?`, scopeID)
		return ids, false, err

	case models.ScopeGrade:
		school, grade, err := ParseGradeScope(scopeID)
		if err != nil {
			return nil, false, err
		}
		if school == "" {
			ids, err := m.collect(ctx, `SELECT id FROM users WHERE grade_level = ?`, grade)
			return ids, false, err
		}
		ids, err := m.collect(ctx,
			`SELECT id FROM users WHERE school_id = ? AND grade_level = ?`, school, grade)
		return ids, false, err

	case models.ScopeFriends:
		ids, err := m.collect(ctx,
			`SELECT CASE WHEN user_id = ? THEN friend_id ELSE user_id END
			 FROM friendships
			 WHERE (user_id = ? OR friend_id = ?) AND status = 'accepted'`,
			scopeID, scopeID, scopeID)
		if err != nil {
			return nil, false, err
		}
		return append(ids, scopeID), false, nil
	}
	return nil, false, fmt.Errorf("%w: unknown scope %q", ErrInvalidLeaderboardQuery, scope)
}

func (m *SQLMembership) collect(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve members: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GradeScopeID formats the scope id of a grade board, "school:grade".
func GradeScopeID(schoolID string, grade int) string {
	return schoolID + ":" + strconv.Itoa(grade)
}

// ParseGradeScope accepts "school:grade" or a bare grade for every school.
func ParseGradeScope(scopeID string) (schoolID string, grade int, err error) {
	gradePart := scopeID
	if i := strings.LastIndex(scopeID, ":"); i >= 0 {
		schoolID, gradePart = scopeID[:i], scopeID[i+1:]
	}
	grade, err = strconv.Atoi(gradePart)
	if err != nil || grade < 0 || grade > 12 {
		return "", 0, fmt.Errorf("%w: bad grade scope %q", ErrInvalidLeaderboardQuery, scopeID)
	}
	return schoolID, grade, nil
}

// AuthorizeView reports whether viewerID may read studentID's gamification
// data. Students see only themselves, admins see everyone, and teachers and
// parents see students of their own school.
func (s *Service) AuthorizeView(ctx context.Context, viewerID, role, studentID string) error {
	if viewerID == studentID || role == models.RoleAdmin {
		return nil
	}
	if role != models.RoleTeacher && role != models.RoleParent {
		return ErrViewForbidden
	}

	store := NewStore(s.db)
	viewer, err := store.GetUser(ctx, viewerID)
	if err != nil {
		return s.fail("authorize_view", studentID, err)
	}
	student, err := store.GetUser(ctx, studentID)
	if err != nil {
		return s.fail("authorize_view", studentID, err)
	}
	if viewer.SchoolID == "" || viewer.SchoolID != student.SchoolID {
		return s.fail("authorize_view", studentID, ErrViewForbidden)
	}
	return nil
}
