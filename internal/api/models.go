package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/calderml/sweep/internal/study"
)

// Common response structures

// StudyResponse is the JSON view of a study.
type StudyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Direction string    `json:"direction"`
	CreatedAt time.Time `json:"created_at"`
}

// TrialResponse is the JSON view of a trial.
type TrialResponse struct {
	ID           uuid.UUID    `json:"id"`
	Number       int          `json:"number"`
	Params       study.Params `json:"params"`
	State        string       `json:"state"`
	Value        *float64     `json:"value,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newStudyResponse(s *study.Study) StudyResponse {
	return StudyResponse{
		ID:        s.ID,
		Name:      s.Name,
		Direction: string(s.Direction),
		CreatedAt: s.CreatedAt,
	}
}

func newTrialResponse(t *study.Trial) TrialResponse {
	return TrialResponse{
		ID:           t.ID,
		Number:       t.Number,
		Params:       t.Params,
		State:        string(t.State),
		Value:        t.Value,
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func newTrialResponses(trials []*study.Trial) []TrialResponse {
	out := make([]TrialResponse, len(trials))
	for i, t := range trials {
		out[i] = newTrialResponse(t)
	}
	return out
}
