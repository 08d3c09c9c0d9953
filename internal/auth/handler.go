package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/teachme/backend/internal/apperror"
	"github.com/teachme/backend/internal/database"
	"github.com/teachme/backend/internal/gamification"
	"github.com/teachme/backend/internal/logger"
	"github.com/teachme/backend/internal/middleware"
	"github.com/teachme/backend/internal/models"
	"github.com/teachme/backend/internal/validator"
)

const usernameAttempts = 5

var (
	ErrEmailTaken         = apperror.New(http.StatusConflict, "An account with this email already exists", apperror.ErrConflict)
	ErrInvalidCredentials = apperror.New(http.StatusUnauthorized, "Invalid email or password", apperror.ErrUnauthorized)
)

type Handler struct {
	db     *database.DB
	tokens *middleware.TokenIssuer
	log    *logger.Logger
}

func NewHandler(db *database.DB, tokens *middleware.TokenIssuer, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{db: db, tokens: tokens, log: log.With("component", "auth")}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Role == "" {
		req.Role = models.RoleStudent
	}

	if err := validator.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.log.Error("hash password", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
		return
	}

	user, err := h.createUser(r.Context(), req, string(hashedPassword))
	if err != nil {
		h.writeFailure(w, "register", err)
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		h.writeFailure(w, "issue token", err)
		return
	}

	h.log.Info("user registered", "user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusCreated, models.AuthResponse{Token: token, User: *user})
}

// createUser inserts the account and, for students, the zeroed gamification
// rows in one transaction. A username collision retries with a fresh name.
func (h *Handler) createUser(ctx context.Context, req models.RegisterRequest, hashedPassword string) (*models.User, error) {
	now := time.Now().UTC()
	user := &models.User{
		ID:         uuid.NewString(),
		Email:      req.Email,
		Name:       req.Name,
		Role:       req.Role,
		SchoolID:   req.SchoolID,
		GradeLevel: req.GradeLevel,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var err error
	for attempt := 0; attempt < usernameAttempts; attempt++ {
		user.Username = database.GenerateUsername(req.Name)
		err = h.db.InTx(ctx, func(tx *database.Tx) error {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE email = ?`, user.Email).Scan(&exists)
			if err == nil {
				return ErrEmailTaken
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO users (id, email, name, username, password, role, school_id, grade_level, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				user.ID, user.Email, user.Name, user.Username, hashedPassword,
				user.Role, user.SchoolID, user.GradeLevel, now, now,
			)
			if err != nil {
				return err
			}

			if user.Role == models.RoleStudent {
				return gamification.NewStore(tx).ProvisionStudent(ctx, user.ID, now)
			}
			return nil
		})
		if err == nil || !h.db.Dialect.IsUniqueViolation(err) {
			break
		}
		h.log.Debug("username collision, retrying", "username", user.Username, "attempt", attempt+1)
	}
	if err != nil {
		if h.db.Dialect.IsUniqueViolation(err) {
			return nil, fmt.Errorf("could not allocate username: %w", apperror.ErrConflict)
		}
		return nil, err
	}
	return user, nil
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := validator.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	var user models.User
	var hashedPassword string
	var active bool
	err := h.db.QueryRowContext(r.Context(),
		`SELECT id, email, name, username, password, role, school_id, grade_level, is_active, created_at, updated_at
		 FROM users WHERE email = ?`,
		req.Email,
	).Scan(&user.ID, &user.Email, &user.Name, &user.Username, &hashedPassword, &user.Role,
		&user.SchoolID, &user.GradeLevel, &active, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !active) {
		h.writeFailure(w, "login", ErrInvalidCredentials)
		return
	}
	if err != nil {
		h.writeFailure(w, "login", err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(req.Password)); err != nil {
		h.writeFailure(w, "login", ErrInvalidCredentials)
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		h.writeFailure(w, "issue token", err)
		return
	}

	writeJSON(w, http.StatusOK, models.AuthResponse{Token: token, User: user})
}

func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	user, err := gamification.NewStore(h.db).GetUser(r.Context(), userID)
	if err != nil {
		h.writeFailure(w, "current user", err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) writeFailure(w http.ResponseWriter, action string, err error) {
	status := apperror.MapErrorToStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(action+" failed", "error", err)
	}
	writeJSON(w, status, models.ErrorResponse{Error: apperror.PublicMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
