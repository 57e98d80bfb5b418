package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/calderml/sweep/internal/store"
)

// StudyHandler handles study inspection API requests.
type StudyHandler struct {
	studyStore store.StudyStore
	logger     *slog.Logger
}

// NewStudyHandler creates a new StudyHandler with the given dependencies.
// A nil logger falls back to the process default.
func NewStudyHandler(studyStore store.StudyStore, logger *slog.Logger) *StudyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StudyHandler{
		studyStore: studyStore,
		logger:     logger.With("component", "study_handler"),
	}
}

// ListStudies handles GET /api/studies. An optional name query parameter
// filters to the study with that exact resolved name.
func (h *StudyHandler) ListStudies(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		st, err := h.studyStore.GetStudyByName(r.Context(), name)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		RespondWithJSON(w, r, http.StatusOK, []StudyResponse{newStudyResponse(st)})
		return
	}

	studies, err := h.studyStore.ListStudies(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	out := make([]StudyResponse, len(studies))
	for i, st := range studies {
		out[i] = newStudyResponse(st)
	}
	RespondWithJSON(w, r, http.StatusOK, out)
}

// GetStudy handles GET /api/studies/{id}.
func (h *StudyHandler) GetStudy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathStudyID(w, r)
	if !ok {
		return
	}

	st, err := h.studyStore.GetStudy(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	RespondWithJSON(w, r, http.StatusOK, newStudyResponse(st))
}

// ListTrials handles GET /api/studies/{id}/trials.
func (h *StudyHandler) ListTrials(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathStudyID(w, r)
	if !ok {
		return
	}

	// Resolve the study first so an unknown ID is a 404, not an empty list.
	if _, err := h.studyStore.GetStudy(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	trials, err := h.studyStore.ListTrials(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	RespondWithJSON(w, r, http.StatusOK, newTrialResponses(trials))
}

// GetBestTrial handles GET /api/studies/{id}/best. It returns the
// completed trial with the best value under the study's direction.
func (h *StudyHandler) GetBestTrial(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathStudyID(w, r)
	if !ok {
		return
	}

	st, err := h.studyStore.GetStudy(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	best, err := h.studyStore.BestTrial(r.Context(), st.ID, st.Direction)
	if err != nil {
		HandleAPIError(w, r, err, "Study has no completed trials")
		return
	}

	RespondWithJSON(w, r, http.StatusOK, newTrialResponse(best))
}

// pathStudyID extracts and parses the study UUID from the URL path.
// It writes the error response itself when the parameter is invalid.
func (h *StudyHandler) pathStudyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("invalid study id in path", "value", raw)
		RespondWithError(w, r, http.StatusBadRequest, "Invalid study ID")
		return uuid.Nil, false
	}
	return id, true
}
