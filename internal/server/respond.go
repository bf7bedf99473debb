package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maauso/regionblur/internal/job"
	"github.com/maauso/regionblur/internal/job/id"
)

// decode parses and validates a JSON body into dst. On failure it has
// already written the error response and returns false.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	log := h.requestLogger(r)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			log.Warn("request body too large", slog.Int64("limit", maxErr.Limit))
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "BODY_TOO_LARGE")
			return false
		}
		log.Warn("decode request body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		log.Warn("request rejected", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeJobError answers 404 for unknown jobs and 500 with code otherwise.
func (h *Handlers) writeJobError(w http.ResponseWriter, r *http.Request, jobID string, err error, message, code string) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	h.requestLogger(r).Error(message,
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, message, code)
}

// pathJobID reads {id}. IDs that Generate could not have produced are
// answered with 404 without touching the repository.
func pathJobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID := r.PathValue("id")
	switch {
	case jobID == "":
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return "", false
	case !id.Valid(jobID):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return "", false
	}
	return jobID, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode JSON response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}
