package gamification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/teachme/backend/internal/database"
	"github.com/teachme/backend/internal/models"
)

// AwardRequest describes one XP grant. Multiplier <= 0 means 1.
type AwardRequest struct {
	StudentID   string
	Amount      int
	Source      models.XPSource
	SourceID    string
	Description string
	Multiplier  float64
}

// AwardXP appends a transaction and moves the profile's total, level and
// progress in a single transaction.
func (s *Service) AwardXP(ctx context.Context, req AwardRequest) (*models.AwardXPResult, error) {
	if req.Amount <= 0 {
		return nil, s.fail("award_xp", req.StudentID, ErrInvalidAmount)
	}
	if !req.Source.Valid() {
		return nil, s.fail("award_xp", req.StudentID, ErrInvalidSource)
	}

	var result *models.AwardXPResult
	err := s.inTx(ctx, func(st *Store) error {
		r, err := s.awardXPTx(ctx, st, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, s.fail("award_xp", req.StudentID, err)
	}

	s.recordAwards(*result)
	return result, nil
}

// awardXPTx does the work of AwardXP inside the caller's transaction.
func (s *Service) awardXPTx(ctx context.Context, st *Store, req AwardRequest) (*models.AwardXPResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	profile, err := st.LockProfile(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	txn := models.XPTransaction{
		ID:          uuid.NewString(),
		StudentID:   req.StudentID,
		Amount:      ApplyMultiplier(req.Amount, req.Multiplier),
		Source:      req.Source,
		SourceID:    req.SourceID,
		Description: req.Description,
		CreatedAt:   now,
	}
	if err := st.InsertTransaction(ctx, &txn); err != nil {
		return nil, fmt.Errorf("insert xp transaction: %w", err)
	}

	oldLevel := profile.Level
	profile.TotalXP += int64(txn.Amount)
	profile.Level = LevelFor(profile.TotalXP)
	profile.CurrentLevelXP, profile.NextLevelXP = ProgressWithinLevel(profile.TotalXP)
	profile.UpdatedAt = now
	if err := st.UpdateProfileXP(ctx, profile); err != nil {
		return nil, err
	}

	return &models.AwardXPResult{
		Transaction: txn,
		LeveledUp:   profile.Level > oldLevel,
		OldLevel:    oldLevel,
		NewLevel:    profile.Level,
		TotalXP:     profile.TotalXP,
	}, nil
}

// recordAwards reports committed awards. Call only after the transaction
// that produced them has committed.
func (s *Service) recordAwards(results ...models.AwardXPResult) {
	for _, r := range results {
		s.metrics.ObserveXP(string(r.Transaction.Source), r.Transaction.Amount, r.LeveledUp)
		if r.LeveledUp {
			s.log.Info("level up",
				"student_id", r.Transaction.StudentID,
				"old_level", r.OldLevel,
				"new_level", r.NewLevel,
				"total_xp", r.TotalXP,
			)
		}
	}
}

// ── Reads ───────────────────────────────────────────────

func (s *Service) Profile(ctx context.Context, studentID string) (*models.StudentProfile, error) {
	p, err := NewStore(s.db).GetProfile(ctx, studentID)
	if err != nil {
		return nil, s.fail("get_profile", studentID, err)
	}
	return p, nil
}

// History lists the student's transactions, newest first.
func (s *Service) History(ctx context.Context, studentID string, limit int) ([]models.XPTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	store := NewStore(s.db)
	if _, err := store.GetProfile(ctx, studentID); err != nil {
		return nil, s.fail("xp_history", studentID, err)
	}
	txns, err := store.ListTransactions(ctx, studentID, limit)
	if err != nil {
		return nil, s.fail("xp_history", studentID, err)
	}
	return txns, nil
}

// VerifyLedger recomputes the transaction sum and compares it with the
// profile's running total.
func (s *Service) VerifyLedger(ctx context.Context, studentID string) (*models.LedgerCheck, error) {
	var check *models.LedgerCheck
	err := s.db.InTx(ctx, func(tx *database.Tx) error {
		st := NewStore(tx)
		profile, err := st.GetProfile(ctx, studentID)
		if err != nil {
			return err
		}
		sum, count, err := st.SumTransactions(ctx, studentID, nil)
		if err != nil {
			return err
		}
		check = &models.LedgerCheck{
			StudentID:    studentID,
			ProfileTotal: profile.TotalXP,
			LedgerTotal:  sum,
			Consistent:   sum == profile.TotalXP,
			Transactions: count,
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("verify_ledger", studentID, err)
	}
	if !check.Consistent {
		s.log.Error("ledger drift",
			"student_id", studentID,
			"profile_total", check.ProfileTotal,
			"ledger_total", check.LedgerTotal,
		)
	}
	return check, nil
}
