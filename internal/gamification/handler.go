package gamification

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/teachme/backend/internal/apperror"
	"github.com/teachme/backend/internal/middleware"
	"github.com/teachme/backend/internal/models"
	"github.com/teachme/backend/internal/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the ledger endpoints on an authenticated router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	g := r.PathPrefix("/gamification").Subrouter()
	g.HandleFunc("/profile", h.GetProfile).Methods("GET")
	g.HandleFunc("/xp/history", h.GetXPHistory).Methods("GET")
	g.HandleFunc("/streaks", h.GetStreaks).Methods("GET")
	g.HandleFunc("/achievements", h.GetAchievements).Methods("GET")
	g.HandleFunc("/badges", h.GetBadges).Methods("GET")
	g.HandleFunc("/leaderboard", h.GetLeaderboard).Methods("GET")

	a := r.PathPrefix("/activity").Subrouter()
	a.Use(middleware.RequireRole(models.RoleStudent))
	a.HandleFunc("/login", h.RecordLogin).Methods("POST")
	a.HandleFunc("/lessons/{id}/complete", h.CompleteLesson).Methods("POST")
	a.HandleFunc("/quizzes/{id}/attempts", h.CompleteQuiz).Methods("POST")

	f := r.PathPrefix("/friends").Subrouter()
	f.HandleFunc("", h.ListFriends).Methods("GET")
	f.HandleFunc("/request", h.SendFriendRequest).Methods("POST")
	f.HandleFunc("/respond", h.RespondFriendRequest).Methods("POST")
	f.HandleFunc("/{id}", h.RemoveFriend).Methods("DELETE")

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.HandleFunc("/xp", h.AwardManualXP).Methods("POST")
	admin.HandleFunc("/ledger/{studentId}/verify", h.VerifyLedger).Methods("GET")
	admin.HandleFunc("/leaderboard/snapshot", h.CaptureSnapshot).Methods("POST")
}

// subject resolves whose data a read targets and writes the error response
// when the caller may not read it. Non-students pass ?student_id=.
func (h *Handler) subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return "", false
	}
	role, _ := middleware.Role(r.Context())
	id := r.URL.Query().Get("student_id")
	if id == "" || role == models.RoleStudent {
		return userID, true
	}
	if err := h.service.AuthorizeView(r.Context(), userID, role, id); err != nil {
		writeError(w, err)
		return "", false
	}
	return id, true
}

// ── Profile & Ledger ────────────────────────────────────

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.subject(w, r)
	if !ok {
		return
	}

	profile, err := h.service.Profile(r.Context(), studentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) GetXPHistory(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.subject(w, r)
	if !ok {
		return
	}

	limit := intQueryParam(r.URL.Query(), "limit", 50)
	txns, err := h.service.History(r.Context(), studentID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": txns})
}

func (h *Handler) GetStreaks(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.subject(w, r)
	if !ok {
		return
	}

	streaks, err := h.service.Streaks(r.Context(), studentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"streaks": streaks})
}

func (h *Handler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.subject(w, r)
	if !ok {
		return
	}

	achievements, err := h.service.Achievements(r.Context(), studentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"achievements": achievements})
}

func (h *Handler) GetBadges(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.subject(w, r)
	if !ok {
		return
	}

	badges, err := h.service.Badges(r.Context(), studentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"badges": badges})
}

// ── Leaderboard ─────────────────────────────────────────

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	q := r.URL.Query()
	board, err := h.service.GetLeaderboard(r.Context(), LeaderboardQuery{
		Type:      models.LeaderboardType(q.Get("type")),
		Scope:     models.LeaderboardScope(q.Get("scope")),
		Timeframe: models.Timeframe(q.Get("timeframe")),
		ScopeID:   q.Get("scope_id"),
		ViewerID:  userID,
		Limit:     intQueryParam(q, "limit", defaultLeaderboardLimit),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// ── Activity ────────────────────────────────────────────

func (h *Handler) RecordLogin(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	result, err := h.service.RecordLogin(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CompleteLesson always grants the configured lesson XP; the client only
// names the lesson and its subject.
func (h *Handler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req models.CompleteLessonRequest
	if !decodeOptional(w, r, &req) {
		return
	}
	if err := validator.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.service.CompleteLesson(r.Context(), userID, LessonCompletion{
		LessonID: mux.Vars(r)["id"],
		Subject:  req.Subject,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyRecorded {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func (h *Handler) CompleteQuiz(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req models.QuizAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if err := validator.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	result, err := h.service.CompleteQuiz(r.Context(), userID, QuizSubmission{
		QuizID:   mux.Vars(r)["id"],
		Subject:  req.Subject,
		Score:    req.Score,
		MaxScore: req.MaxScore,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// ── Friends ─────────────────────────────────────────────

func (h *Handler) ListFriends(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	resp, err := h.service.ListFriends(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.FriendRequestReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if err := validator.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	f, err := h.service.SendFriendRequest(r.Context(), userID, req.ToUserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *Handler) RespondFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.FriendRespondReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if err := validator.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	if err := h.service.RespondFriendRequest(r.Context(), userID, req.FriendshipID, req.Action == "accept"); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": req.Action + "ed"})
}

func (h *Handler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	if err := h.service.RemoveFriend(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ── Admin ───────────────────────────────────────────────

func (h *Handler) AwardManualXP(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.UserID(r.Context())

	var req models.ManualXPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if err := validator.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	description := req.Description
	if description == "" {
		description = "Manual adjustment"
	}
	result, err := h.service.AwardXP(r.Context(), AwardRequest{
		StudentID:   req.StudentID,
		Amount:      req.Amount,
		Source:      models.SourceManualAdjustment,
		SourceID:    adminID,
		Description: description,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// Manual grants can complete XP and level achievements.
	earned, _ := h.service.CheckAndAwardAchievements(r.Context(), req.StudentID, models.ActionXPAwarded, models.ActionData{})
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"award":            result,
		"new_achievements": earned,
	})
}

func (h *Handler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	check, err := h.service.VerifyLedger(r.Context(), mux.Vars(r)["studentId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (h *Handler) CaptureSnapshot(w http.ResponseWriter, r *http.Request) {
	var req models.SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if err := validator.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	board, err := h.service.CaptureSnapshot(r.Context(), LeaderboardQuery{
		Type:      req.Type,
		Scope:     req.Scope,
		Timeframe: req.Timeframe,
		ScopeID:   req.ScopeID,
		Limit:     maxLeaderboardLimit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// ── Helpers ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperror.MapErrorToStatus(err), models.ErrorResponse{Error: apperror.PublicMessage(err)})
}

// decodeOptional accepts an empty body as the zero value.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return false
	}
	return true
}

func intQueryParam(query url.Values, key string, defaultVal int) int {
	s := query.Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}
