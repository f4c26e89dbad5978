package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mindagrowAPI/internal/leaderboard"
	"mindagrowAPI/internal/level"
	"mindagrowAPI/internal/mission"
	"mindagrowAPI/internal/types/session"
	"mindagrowAPI/internal/types/streak"
	"mindagrowAPI/middleware"
	"mindagrowAPI/services"
)

const requestTimeout = 5 * time.Second

type MissionOperations interface {
	AutoCompleteMissions(ctx context.Context, userID int64) (*services.AutoCompleteResult, error)
	GeneratePersonalizedMissions(ctx context.Context, userID int64) ([]mission.Suggestion, error)
}

type EngagementReader interface {
	GetDailyMissions(ctx context.Context, userID int64) ([]*mission.MissionWithProgress, error)
	RecordActivity(ctx context.Context, userID int64) (*streak.StreakStatus, error)
	GetStreak(ctx context.Context, userID int64) (*streak.StreakStatus, error)
	GetLeaderboard(ctx context.Context, kind leaderboard.Kind) (*leaderboard.Leaderboard, error)
	GetLevel(ctx context.Context, userID int64) (*level.UserLevel, error)
	RecordGameSession(ctx context.Context, userID int64, gameKey string, sub session.Submission) (*services.GameSessionResult, error)
	GetGameProgress(ctx context.Context, userID int64) ([]*session.GameProgress, error)
}

type EngagementHandler struct {
	missions   MissionOperations
	engagement EngagementReader
	log        *zap.Logger
}

func NewEngagementHandler(missions MissionOperations, engagement EngagementReader, log *zap.Logger) *EngagementHandler {
	return &EngagementHandler{
		missions:   missions,
		engagement: engagement,
		log:        log,
	}
}

func (h *EngagementHandler) GetDailyMissions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	missions, err := h.engagement.GetDailyMissions(ctx, userID)
	if err != nil {
		h.log.Error("Failed to get daily missions", zap.Int64("user_id", userID), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to get daily missions")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"missions": missions})
}

func (h *EngagementHandler) AutoCompleteMissions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	result, err := h.missions.AutoCompleteMissions(ctx, userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to update missions")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *EngagementHandler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	suggestions, err := h.missions.GeneratePersonalizedMissions(ctx, userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to generate suggestions")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (h *EngagementHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	status, err := h.engagement.GetStreak(ctx, userID)
	if err != nil {
		h.log.Error("Failed to get streak", zap.Int64("user_id", userID), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to get streak")
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

func (h *EngagementHandler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	status, err := h.engagement.RecordActivity(ctx, userID)
	if err != nil {
		h.log.Error("Failed to record activity", zap.Int64("user_id", userID), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to record activity")
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

func (h *EngagementHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	kind := leaderboard.Kind(r.URL.Query().Get("type"))
	if kind == "" {
		kind = leaderboard.KindWeekly
	}

	lb, err := h.engagement.GetLeaderboard(ctx, kind)
	if errors.Is(err, services.ErrInvalidLeaderboardKind) {
		respondWithError(w, http.StatusBadRequest, "type must be weekly or overall")
		return
	}
	if err != nil {
		h.log.Error("Failed to get leaderboard", zap.String("type", string(kind)), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to get leaderboard")
		return
	}

	respondWithJSON(w, http.StatusOK, lb)
}

func (h *EngagementHandler) GetLevel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	lvl, err := h.engagement.GetLevel(ctx, userID)
	if err != nil {
		h.log.Error("Failed to get level", zap.Int64("user_id", userID), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to get level")
		return
	}

	respondWithJSON(w, http.StatusOK, lvl)
}

func (h *EngagementHandler) SubmitGameSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	gameKey := mux.Vars(r)["gameKey"]
	var sub session.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.engagement.RecordGameSession(ctx, userID, gameKey, sub)
	switch {
	case errors.Is(err, session.ErrInvalidSubmission):
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrGameNotFound):
		respondWithError(w, http.StatusNotFound, "Game not found")
		return
	case err != nil:
		h.log.Error("Failed to record game session", zap.Int64("user_id", userID), zap.String("game", gameKey), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to record game session")
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

func (h *EngagementHandler) GetGameProgress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	progress, err := h.engagement.GetGameProgress(ctx, userID)
	if err != nil {
		h.log.Error("Failed to get game progress", zap.Int64("user_id", userID), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to get game progress")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"progress": progress})
}
