package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mindagrowAPI/internal/schedule"
)

type JobRunner interface {
	RunNow(ctx context.Context, name string) (*schedule.RunReport, error)
	Jobs() []string
}

type AdminHandler struct {
	jobs     JobRunner
	missions MissionOperations
	log      *zap.Logger
}

func NewAdminHandler(jobs JobRunner, missions MissionOperations, log *zap.Logger) *AdminHandler {
	return &AdminHandler{jobs: jobs, missions: missions, log: log}
}

func (h *AdminHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{"jobs": h.jobs.Jobs()})
}

// RunJob triggers a maintenance job out of schedule. The job's own timeout applies, not the request's.
func (h *AdminHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["job"]

	report, err := h.jobs.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, schedule.ErrUnknownJob):
		respondWithError(w, http.StatusNotFound, "Unknown job: "+name)
	case errors.Is(err, schedule.ErrJobLocked):
		respondWithError(w, http.StatusConflict, "Job is already running")
	case err != nil && report != nil:
		// The report carries partial results such as per-user streak failures.
		respondWithJSON(w, http.StatusInternalServerError, report)
	case err != nil:
		h.log.Error("Manual job run failed", zap.String("job", name), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Job failed")
	default:
		respondWithJSON(w, http.StatusOK, report)
	}
}

func (h *AdminHandler) AutoCompleteForUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	userID, err := strconv.ParseInt(mux.Vars(r)["userID"], 10, 64)
	if err != nil || userID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	result, err := h.missions.AutoCompleteMissions(ctx, userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to update missions")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}
