package gamification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teachme/backend/internal/models"
)

func entryIDs(b *models.Leaderboard) []string {
	ids := make([]string, 0, len(b.Entries))
	for _, e := range b.Entries {
		ids = append(ids, e.StudentID)
	}
	return ids
}

func TestLeaderboardOrderAndTieBreak(t *testing.T) {
	f := newFixture(t, "")
	for id, xp := range map[string]int{"b-stu": 200, "a-stu": 200, "c-stu": 300, "d-stu": 100} {
		f.addStudent(id, "Student "+id, "", 0)
		f.award(id, xp)
	}

	board, err := f.svc.GetLeaderboard(f.ctx, LeaderboardQuery{ViewerID: "a-stu"})
	require.NoError(t, err)
	assert.Equal(t, models.LeaderboardXP, board.Type)
	assert.Equal(t, models.ScopeGlobal, board.Scope)
	assert.Equal(t, models.TimeframeAllTime, board.Timeframe)
	assert.Equal(t, []string{"c-stu", "a-stu", "b-stu", "d-stu"}, entryIDs(board))

	for i, e := range board.Entries {
		assert.Equal(t, i+1, e.Rank)
		assert.Equal(t, e.StudentID == "a-stu", e.IsCurrentUser, e.StudentID)
	}
	assert.Equal(t, 300.0, board.Entries[0].Score)
	assert.Equal(t, "Student c.", board.Entries[0].DisplayName)
	assert.Equal(t, LevelFor(300), board.Entries[0].Level)

	top, err := f.svc.GetLeaderboard(f.ctx, LeaderboardQuery{Limit: 2, ViewerID: "a-stu"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c-stu", "a-stu"}, entryIDs(top))
}

func TestLeaderboardRollingWindow(t *testing.T) {
	f := newFixture(t, "")
	f.addStudent("old", "Old Timer", "", 0)
	f.addStudent("new", "New Comer", "", 0)

	f.award("old", 1000)
	f.advance(8 * 24 * time.Hour)
	f.award("new", 50)
	f.award("old", 10)

	weekly, err := f.svc.GetLeaderboard(f.ctx, LeaderboardQuery{Timeframe: models.TimeframeWeekly})
	require.NoError(t, err)
	require.Equal(t, []string{"new", "old"}, entryIDs(weekly))
	assert.Equal(t, 50.0, weekly.Entries[0].Score)
	assert.Equal(t, 10.0, weekly.Entries[1].Score)

	allTime, err := f.svc.GetLeaderboard(f.ctx, LeaderboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "new"}, entryIDs(allTime))
	assert.Equal(t, 1010.0, allTime.Entries[0].Score)
}

func TestLeaderboardActivityBoards(t *testing.T) {
	f := newFixture(t, "")
	f.addStudent("s1", "Ada Lovelace", "", 0)
	f.addStudent("s2", "Grace Hopper", "", 0)
	f.addStudent("s3", "Alan Turing", "", 0)
	st := NewStore(f.db)

	for _, lesson := range []string{"l1", "l2", "l3"} {
		_, err := st.InsertLessonCompletion(f.ctx, "s2", lesson, "", 0, f.now)
		require.NoError(t, err)
	}
	_, err := st.InsertLessonCompletion(f.ctx, "s1", "l1", "", 0, f.now)
	require.NoError(t, err)

	for i, pct := range []int{100, 50} {
		require.NoError(t, st.InsertQuizAttempt(f.ctx, QuizAttempt{
			ID: "a" + string(rune('0'+i)), StudentID: "s1", QuizID: "q", Score: pct, MaxScore: 100,
			Percentage: pct, CompletedAt: f.now,
		}))
	}
	require.NoError(t, st.InsertQuizAttempt(f.ctx, QuizAttempt{
		ID: "b0", StudentID: "s3", QuizID: "q", Score: 80, MaxScore: 100, Percentage: 80, CompletedAt: f.now,
	}))

	lessons, err := f.svc.GetLeaderboard(f.ctx, LeaderboardQuery{Type: models.LeaderboardLessonsCompleted})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1"}, entryIDs(lessons))
	assert.Equal(t, 3.0, lessons.Entries[0].Score)

	quiz, err := f.svc.GetLeaderboard(f.ctx, LeaderboardQuery{Type: models.LeaderboardQuizScore})
	require.NoError(t, err)
	assert.Equal(t, []string{"s3", "s1"}, entryIDs(quiz))
	assert.Equal(t, 75.0, quiz.Entries[1].Score)
}

func TestLeaderboardStreakBoardRequiresWindowActivity(t *testing.T) {
	f := newFixture(t, "")
	f.addStudent("s1", "Ada Lovelace", "", 0)
	f.addStudent("s2", "Grace Hopper", "", 0)

	for day := 0; day < 3; day++ {
		_, err := f.svc.UpdateStreak(f.ctx, "s1", models.StreakDailyLogin)
		require.NoError(t, err)
		f.advance(24 * time.Hour)
	}
	_, err := f.svc.UpdateStreak(f.ctx, "s2", models.StreakDailyLogin)
	require.NoError(t, err)
	f.award("s2", 5)

	all, err := f.svc.GetLeaderboard(f.ctx, LeaderboardQuery{Type: models.LeaderboardStreak})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, entryIDs(all))
	assert.Equal(t, 3.0, all.Entries[0].Score)

	weekly, err := f.svc.GetLeaderboard(f.ctx, LeaderboardQuery{Type: models.LeaderboardStreak, Timeframe: models.TimeframeWeekly})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, entryIDs(weekly))
}

func TestLeaderboardScopes(t *testing.T) {
	f := newFixture(t, "")
	f.addStudent("s1", "Ada Lovelace", "north", 5)
	f.addStudent("s2", "Grace Hopper", "north", 6)
	f.addStudent("s3", "Alan Turing", "south", 5)
	f.addStudent("s4", "Edsger Dijkstra", "north", 5)
	for i, id := range []string{"s1", "s2", "s3", "s4"} {
		f.award(id, (i+1)*10)
	}

	_, err := f.db.ExecContext(f.ctx, `INSERT INTO class_enrollments (class_id, student_id) VALUES ('c1', 's1'), ('c1', 's3')`)
	require.NoError(t, err)

	friendship, err := f.svc.SendFriendRequest(f.ctx, "s1", "s2")
	require.NoError(t, err)
	require.NoError(t, f.svc.RespondFriendRequest(f.ctx, "s2", friendship.ID, true))

	tests := []struct {
		name  string
		query LeaderboardQuery
		want  []string
	}{
		{"school from viewer", LeaderboardQuery{Scope: models.ScopeSchool, ViewerID: "s1"}, []string{"s4", "s2", "s1"}},
		{"explicit school", LeaderboardQuery{Scope: models.ScopeSchool, ScopeID: "south"}, []string{"s3"}},
		{"grade from viewer", LeaderboardQuery{Scope: models.ScopeGrade, ViewerID: "s1"}, []string{"s4", "s1"}},
		{"grade across schools", LeaderboardQuery{Scope: models.ScopeGrade, ScopeID: "5"}, []string{"s4", "s3", "s1"}},
		{"class", LeaderboardQuery{Scope: models.ScopeClass, ScopeID: "c1"}, []string{"s3", "s1"}},
		{"empty class", LeaderboardQuery{Scope: models.ScopeClass, ScopeID: "nobody"}, []string{}},
		{"friends", LeaderboardQuery{Scope: models.ScopeFriends, ViewerID: "s1"}, []string{"s2", "s1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board, err := f.svc.GetLeaderboard(f.ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, entryIDs(board))
		})
	}
}

func TestLeaderboardExcludesInactiveUsers(t *testing.T) {
	f := newFixture(t, "")
	f.addStudent("s1", "Ada Lovelace", "", 0)
	f.addStudent("s2", "Grace Hopper", "", 0)
	f.award("s1", 10)
	f.award("s2", 20)

	_, err := f.db.ExecContext(f.ctx, `UPDATE users SET is_active = ? WHERE id = ?`, false, "s2")
	require.NoError(t, err)

	board, err := f.svc.GetLeaderboard(f.ctx, LeaderboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, entryIDs(board))
}

func TestLeaderboardRankChange(t *testing.T) {
	f := newFixture(t, "")
	for id, xp := range map[string]int{"s1": 300, "s2": 200, "s3": 100} {
		f.addStudent(id, "Student "+id, "", 0)
		f.award(id, xp)
	}

	snap, err := f.svc.CaptureSnapshot(f.ctx, LeaderboardQuery{})
	require.NoError(t, err)
	for _, e := range snap.Entries {
		assert.Equal(t, models.ChangeNew, e.Change.Direction)
	}

	f.award("s3", 500)
	f.addStudent("s4", "Student s4", "", 0)
	f.award("s4", 1)

	board, err := f.svc.GetLeaderboard(f.ctx, LeaderboardQuery{})
	require.NoError(t, err)
	require.Equal(t, []string{"s3", "s1", "s2", "s4"}, entryIDs(board))

	want := []models.RankChange{
		{Direction: models.ChangeUp, Positions: 2},
		{Direction: models.ChangeDown, Positions: 1},
		{Direction: models.ChangeDown, Positions: 1},
		{Direction: models.ChangeNew},
	}
	for i, e := range board.Entries {
		assert.Equal(t, want[i], e.Change, e.StudentID)
	}

	_, err = f.svc.CaptureSnapshot(f.ctx, LeaderboardQuery{})
	require.NoError(t, err)
	board, err = f.svc.GetLeaderboard(f.ctx, LeaderboardQuery{})
	require.NoError(t, err)
	for _, e := range board.Entries {
		assert.Equal(t, models.ChangeSame, e.Change.Direction, e.StudentID)
	}
}

func TestLeaderboardRejectsBadQueries(t *testing.T) {
	f := newFixture(t, "")
	f.addStudent("s1", "Ada Lovelace", "", 0)

	tests := []struct {
		name  string
		query LeaderboardQuery
	}{
		{"unknown type", LeaderboardQuery{Type: "KARMA"}},
		{"unknown scope", LeaderboardQuery{Scope: "GALAXY"}},
		{"daily timeframe", LeaderboardQuery{Timeframe: models.TimeframeDaily}},
		{"class without id", LeaderboardQuery{Scope: models.ScopeClass}},
		{"school without viewer school", LeaderboardQuery{Scope: models.ScopeSchool, ViewerID: "s1"}},
		{"friends without viewer", LeaderboardQuery{Scope: models.ScopeFriends}},
		{"bad grade", LeaderboardQuery{Scope: models.ScopeGrade, ScopeID: "north:13"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.GetLeaderboard(f.ctx, tt.query)
			assert.ErrorIs(t, err, ErrInvalidLeaderboardQuery)
		})
	}
}

func TestParseBoardSpec(t *testing.T) {
	tests := []struct {
		spec    string
		want    LeaderboardQuery
		wantErr bool
	}{
		{"XP:GLOBAL:WEEKLY", LeaderboardQuery{Type: models.LeaderboardXP, Scope: models.ScopeGlobal, Timeframe: models.TimeframeWeekly}, false},
		{" STREAK:SCHOOL:north:ALL_TIME ", LeaderboardQuery{Type: models.LeaderboardStreak, Scope: models.ScopeSchool, ScopeID: "north", Timeframe: models.TimeframeAllTime}, false},
		{"XP:GRADE:north:5:WEEKLY", LeaderboardQuery{Type: models.LeaderboardXP, Scope: models.ScopeGrade, ScopeID: "north:5", Timeframe: models.TimeframeWeekly}, false},
		{"XP:GLOBAL", LeaderboardQuery{}, true},
		{"XP:GLOBAL:DAILY", LeaderboardQuery{}, true},
		{"HUGS:GLOBAL:WEEKLY", LeaderboardQuery{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseBoardSpec(tt.spec)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLeaderboardQuery)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBoardKeyIgnoresViewerAndLimit(t *testing.T) {
	a := LeaderboardQuery{Type: models.LeaderboardXP, Scope: models.ScopeClass, ScopeID: "c1", Timeframe: models.TimeframeWeekly, ViewerID: "x", Limit: 5}
	b := a
	b.ViewerID, b.Limit = "y", 50
	assert.Equal(t, a.BoardKey(), b.BoardKey())
	assert.Equal(t, "XP:CLASS:c1:WEEKLY", a.BoardKey())
}

func TestBoardKeyRoundTrips(t *testing.T) {
	boards := []LeaderboardQuery{
		{Type: models.LeaderboardXP, Scope: models.ScopeGrade, ScopeID: GradeScopeID("sch1", 5), Timeframe: models.TimeframeWeekly},
		{Type: models.LeaderboardXP, Scope: models.ScopeGrade, ScopeID: GradeScopeID("district:north", 0), Timeframe: models.TimeframeMonthly},
		{Type: models.LeaderboardStreak, Scope: models.ScopeClass, ScopeID: "c1", Timeframe: models.TimeframeAllTime},
		{Type: models.LeaderboardLevel, Scope: models.ScopeGlobal, Timeframe: models.TimeframeAllTime},
	}
	for _, b := range boards {
		got, err := ParseBoardSpec(b.BoardKey())
		require.NoError(t, err, b.BoardKey())
		assert.Equal(t, b, got, b.BoardKey())
	}
}

func TestPersonalizeDoesNotMutateSharedBoard(t *testing.T) {
	shared := &models.Leaderboard{Entries: []models.LeaderboardEntry{
		{Rank: 1, StudentID: "a"}, {Rank: 2, StudentID: "b"}, {Rank: 3, StudentID: "c"},
	}}

	mine := personalize(shared, "b", 2)
	require.Len(t, mine.Entries, 2)
	assert.True(t, mine.Entries[1].IsCurrentUser)
	for _, e := range shared.Entries {
		assert.False(t, e.IsCurrentUser)
	}
	assert.Len(t, shared.Entries, 3)
}

func TestLeaderboardCacheWithoutRedis(t *testing.T) {
	c := newLeaderboardCache(nil, time.Minute)
	board, hit, err := c.get(context.Background(), "XP:GLOBAL::ALL_TIME")
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, board)
	assert.NoError(t, c.set(context.Background(), "XP:GLOBAL::ALL_TIME", &models.Leaderboard{}))
	assert.NoError(t, c.invalidate(context.Background(), "XP:GLOBAL::ALL_TIME"))
	assert.Equal(t, "leaderboard:XP:GLOBAL::ALL_TIME", cacheKey("XP:GLOBAL::ALL_TIME"))
}
