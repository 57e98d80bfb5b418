package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/calderml/sweep/internal/api/middleware"
)

// NewRouter assembles the HTTP routes with the standard middleware chain.
func NewRouter(studyHandler *StudyHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.TraceMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/studies", studyHandler.ListStudies)
		r.Get("/studies/{id}", studyHandler.GetStudy)
		r.Get("/studies/{id}/trials", studyHandler.ListTrials)
		r.Get("/studies/{id}/best", studyHandler.GetBestTrial)
	})

	return r
}
