package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teachme/backend/internal/database"
	"github.com/teachme/backend/internal/gamification"
	"github.com/teachme/backend/internal/middleware"
	"github.com/teachme/backend/internal/models"
)

func setup(t *testing.T) (*Handler, *database.DB, *middleware.TokenIssuer) {
	t.Helper()
	db, err := database.Open(context.Background(), database.Options{Type: "sqlite", Path: filepath.Join(t.TempDir(), "auth.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	tokens := middleware.NewTokenIssuer("test-secret", time.Hour)
	return NewHandler(db, tokens, nil), db, tokens
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestRegisterStudentProvisionsProfile(t *testing.T) {
	h, db, tokens := setup(t)

	rec := post(h.Register, `{"email":" Ada@Example.com ","name":"Ada Lovelace","password":"analytical","school_id":"north","grade_level":5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ada@example.com", resp.User.Email)
	assert.Equal(t, models.RoleStudent, resp.User.Role)
	assert.Equal(t, "north", resp.User.SchoolID)
	assert.True(t, strings.HasPrefix(resp.User.Username, "adalovelace"))

	claims, err := tokens.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.Subject)
	assert.Equal(t, models.RoleStudent, claims.Role)

	store := gamification.NewStore(db)
	profile, err := store.GetProfile(context.Background(), resp.User.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, profile.TotalXP)
	assert.Equal(t, 1, profile.Level)

	streaks, err := store.ListStreaks(context.Background(), resp.User.ID)
	require.NoError(t, err)
	assert.Len(t, streaks, len(models.StreakTypes))
}

func TestRegisterTeacherHasNoProfile(t *testing.T) {
	h, db, _ := setup(t)

	rec := post(h.Register, `{"email":"t@example.com","name":"Terry Teacher","password":"blackboard","role":"teacher"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err := gamification.NewStore(db).GetProfile(context.Background(), resp.User.ID)
	assert.ErrorIs(t, err, gamification.ErrProfileNotFound)
}

func TestRegisterRejects(t *testing.T) {
	h, _, _ := setup(t)
	require.Equal(t, http.StatusCreated, post(h.Register, `{"email":"a@example.com","name":"Ada","password":"analytical"}`).Code)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"missing email", `{"name":"Ada","password":"analytical"}`, http.StatusBadRequest},
		{"short password", `{"email":"b@example.com","name":"Bea","password":"short"}`, http.StatusBadRequest},
		{"self-made admin", `{"email":"c@example.com","name":"Cy","password":"analytical","role":"admin"}`, http.StatusBadRequest},
		{"bad grade", `{"email":"d@example.com","name":"Di","password":"analytical","grade_level":14}`, http.StatusBadRequest},
		{"duplicate email", `{"email":"A@example.com","name":"Ada Two","password":"analytical"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(h.Register, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestLogin(t *testing.T) {
	h, db, _ := setup(t)
	require.Equal(t, http.StatusCreated, post(h.Register, `{"email":"ada@example.com","name":"Ada","password":"analytical"}`).Code)
	require.Equal(t, http.StatusCreated, post(h.Register, `{"email":"gone@example.com","name":"Gone","password":"analytical"}`).Code)
	_, err := db.ExecContext(context.Background(), `UPDATE users SET is_active = ? WHERE email = ?`, false, "gone@example.com")
	require.NoError(t, err)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"ok", `{"email":"ADA@example.com","password":"analytical"}`, http.StatusOK},
		{"wrong password", `{"email":"ada@example.com","password":"difference"}`, http.StatusUnauthorized},
		{"unknown email", `{"email":"nobody@example.com","password":"analytical"}`, http.StatusUnauthorized},
		{"deactivated", `{"email":"gone@example.com","password":"analytical"}`, http.StatusUnauthorized},
		{"missing password", `{"email":"ada@example.com"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(h.Login, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestGetCurrentUser(t *testing.T) {
	h, _, tokens := setup(t)
	rec := post(h.Register, `{"email":"ada@example.com","name":"Ada","password":"analytical"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	me := tokens.Authenticate(http.HandlerFunc(h.GetCurrentUser))
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	out := httptest.NewRecorder()
	me.ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(out.Body.Bytes(), &user))
	assert.Equal(t, resp.User.ID, user.ID)

	orphan := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	orphan = orphan.WithContext(middleware.WithUser(orphan.Context(), "ghost", models.RoleStudent))
	out = httptest.NewRecorder()
	h.GetCurrentUser(out, orphan)
	assert.Equal(t, http.StatusNotFound, out.Code)
}
