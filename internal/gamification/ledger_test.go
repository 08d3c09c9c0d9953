package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/teachme/backend/internal/models"
)

func TestAwardXPLevelsUp(t *testing.T) {
	f := newFixture(t, "")
	id := f.addStudent("s1", "Ada Lovelace", "", 0)

	r := f.award(id, 100)
	assert.True(t, r.LeveledUp)
	assert.Equal(t, 1, r.OldLevel)
	assert.Equal(t, 2, r.NewLevel)
	assert.EqualValues(t, 100, r.TotalXP)
	assert.Equal(t, models.SourceManualAdjustment, r.Transaction.Source)
	assert.NotEmpty(t, r.Transaction.ID)

	p := f.profile(id)
	assert.EqualValues(t, 100, p.TotalXP)
	assert.Equal(t, 2, p.Level)
	assert.EqualValues(t, 0, p.CurrentLevelXP)
	assert.EqualValues(t, 300, p.NextLevelXP)

	r = f.award(id, 50)
	assert.False(t, r.LeveledUp)
	assert.Equal(t, 2, r.NewLevel)
}

func TestAwardXPAppliesMultiplier(t *testing.T) {
	f := newFixture(t, "")
	id := f.addStudent("s1", "Ada Lovelace", "", 0)

	r, err := f.svc.AwardXP(f.ctx, AwardRequest{
		StudentID:  id,
		Amount:     20,
		Source:     models.SourceDailyLogin,
		Multiplier: 1.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 30, r.Transaction.Amount)
	assert.EqualValues(t, 30, f.profile(id).TotalXP)
}

func TestAwardXPRejects(t *testing.T) {
	f := newFixture(t, "")
	id := f.addStudent("s1", "Ada Lovelace", "", 0)

	tests := []struct {
		name    string
		req     AwardRequest
		wantErr error
	}{
		{"zero amount", AwardRequest{StudentID: id, Amount: 0, Source: models.SourceManualAdjustment}, ErrInvalidAmount},
		{"negative amount", AwardRequest{StudentID: id, Amount: -10, Source: models.SourceManualAdjustment}, ErrInvalidAmount},
		{"unknown source", AwardRequest{StudentID: id, Amount: 10, Source: "BRIBE"}, ErrInvalidSource},
		{"unknown student", AwardRequest{StudentID: "ghost", Amount: 10, Source: models.SourceManualAdjustment}, ErrProfileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AwardXP(f.ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.EqualValues(t, 0, f.profile(id).TotalXP)
	assert.Empty(t, f.ledger(id))
}

func TestLedgerMatchesProfile(t *testing.T) {
	f := newFixture(t, "")
	id := f.addStudent("s1", "Ada Lovelace", "", 0)

	for _, amount := range []int{10, 25, 100, 7, 300} {
		f.award(id, amount)
		f.advance(time.Minute)
	}

	check, err := f.svc.VerifyLedger(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.EqualValues(t, 442, check.LedgerTotal)
	assert.EqualValues(t, 442, check.ProfileTotal)
	assert.Equal(t, 5, check.Transactions)
	assert.Equal(t, LevelFor(442), f.profile(id).Level)
}

func TestVerifyLedgerDetectsDrift(t *testing.T) {
	f := newFixture(t, "")
	id := f.addStudent("s1", "Ada Lovelace", "", 0)
	f.award(id, 40)

	_, err := f.db.ExecContext(f.ctx, `UPDATE student_profiles SET total_xp = 90 WHERE user_id = ?`, id)
	require.NoError(t, err)

	check, err := f.svc.VerifyLedger(f.ctx, id)
	require.NoError(t, err)
	assert.False(t, check.Consistent)
	assert.EqualValues(t, 40, check.LedgerTotal)
	assert.EqualValues(t, 90, check.ProfileTotal)
}

func TestHistoryNewestFirst(t *testing.T) {
	f := newFixture(t, "")
	id := f.addStudent("s1", "Ada Lovelace", "", 0)

	for _, amount := range []int{1, 2, 3} {
		f.award(id, amount)
		f.advance(time.Hour)
	}

	txns, err := f.svc.History(f.ctx, id, 2)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, 3, txns[0].Amount)
	assert.Equal(t, 2, txns[1].Amount)

	_, err = f.svc.History(f.ctx, "ghost", 10)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestAwardXPConcurrent(t *testing.T) {
	f := newFixture(t, "")
	id := f.addStudent("s1", "Ada Lovelace", "", 0)

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := f.svc.AwardXP(f.ctx, AwardRequest{StudentID: id, Amount: 10, Source: models.SourceQuizCompleted})
			return err
		})
	}
	require.NoError(t, g.Wait())

	p := f.profile(id)
	assert.EqualValues(t, 100, p.TotalXP)
	assert.Equal(t, 2, p.Level)
	assert.Len(t, f.ledger(id), 10)
}
