package gamification

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teachme/backend/internal/database"
	"github.com/teachme/backend/internal/metrics"
	"github.com/teachme/backend/internal/models"
)

var testEpoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	t   *testing.T
	ctx context.Context
	db  *database.DB
	svc *Service
	now time.Time
}

func newFixture(t *testing.T, catalogYAML string) *fixture {
	return newFixtureWithConfig(t, catalogYAML, DefaultConfig())
}

func newFixtureWithConfig(t *testing.T, catalogYAML string, cfg Config) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Options{Type: "sqlite", Path: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	f := &fixture{t: t, ctx: ctx, db: db, now: testEpoch}
	f.svc = NewService(Deps{
		DB:      db,
		Metrics: metrics.New(),
		Now:     func() time.Time { return f.now },
	}, cfg)

	if catalogYAML != "" {
		cat, err := ParseCatalog([]byte(catalogYAML))
		require.NoError(t, err)
		require.NoError(t, SeedCatalog(ctx, db, cat))
	}
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// addUser inserts a user row without provisioning a profile.
func (f *fixture) addUser(id, name, role, schoolID string, grade int) {
	f.t.Helper()
	_, err := f.db.ExecContext(f.ctx,
		`INSERT INTO users (id, email, name, username, password, role, school_id, grade_level, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'x', ?, ?, ?, ?, ?)`,
		id, id+"@example.com", name, id, role, schoolID, grade, f.now, f.now,
	)
	require.NoError(f.t, err)
}

// addStudent inserts a student and provisions their gamification rows.
func (f *fixture) addStudent(id, name, schoolID string, grade int) string {
	f.t.Helper()
	f.addUser(id, name, models.RoleStudent, schoolID, grade)
	require.NoError(f.t, NewStore(f.db).ProvisionStudent(f.ctx, id, f.now))
	return id
}

func (f *fixture) award(studentID string, amount int) *models.AwardXPResult {
	f.t.Helper()
	r, err := f.svc.AwardXP(f.ctx, AwardRequest{
		StudentID: studentID,
		Amount:    amount,
		Source:    models.SourceManualAdjustment,
	})
	require.NoError(f.t, err)
	return r
}

func (f *fixture) profile(studentID string) *models.StudentProfile {
	f.t.Helper()
	p, err := f.svc.Profile(f.ctx, studentID)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) ledger(studentID string) []models.XPTransaction {
	f.t.Helper()
	txns, err := f.svc.History(f.ctx, studentID, 200)
	require.NoError(f.t, err)
	return txns
}

func countSource(txns []models.XPTransaction, source models.XPSource) (n, total int) {
	for _, t := range txns {
		if t.Source == source {
			n++
			total += t.Amount
		}
	}
	return n, total
}

func achievementIDs(list []models.Achievement) []string {
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	return ids
}
