package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/calderml/sweep/internal/study"
)

// TrialEventType identifies what happened to a trial.
type TrialEventType string

// Trial lifecycle event types
const (
	TrialStarted   TrialEventType = "trial_started"
	TrialCompleted TrialEventType = "trial_completed"
	TrialPruned    TrialEventType = "trial_pruned"
	TrialFailed    TrialEventType = "trial_failed"
)

// TrialEvent describes one trial state change within a study.
type TrialEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates the lifecycle transition
	Type TrialEventType `json:"type"`

	// StudyName is the resolved name of the study the trial belongs to
	StudyName string `json:"study_name"`

	// Trial is a snapshot of the trial at the time of the event
	Trial study.Trial `json:"trial"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewTrialEvent creates a new TrialEvent for the given transition.
func NewTrialEvent(eventType TrialEventType, studyName string, trial study.Trial) *TrialEvent {
	return &TrialEvent{
		ID:        uuid.New(),
		Type:      eventType,
		StudyName: studyName,
		Trial:     trial,
		CreatedAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TrialEvent) error
}

// EventEmitter defines an interface for components that can emit events.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TrialEvent) error
}
