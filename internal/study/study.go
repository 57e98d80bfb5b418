package study

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Study-specific validation errors
var (
	// ErrStudyIDEmpty is returned when a study ID is empty or nil.
	ErrStudyIDEmpty = errors.New("study ID cannot be empty")

	// ErrStudyNameEmpty is returned when a study name is empty.
	ErrStudyNameEmpty = errors.New("study name cannot be empty")

	// ErrInvalidDirection is returned when a direction is neither maximize nor minimize.
	ErrInvalidDirection = errors.New("direction must be maximize or minimize")

	// ErrTrialIDEmpty is returned when a trial ID is empty or nil.
	ErrTrialIDEmpty = errors.New("trial ID cannot be empty")

	// ErrTrialStudyIDEmpty is returned when a trial's study ID is empty or nil.
	ErrTrialStudyIDEmpty = errors.New("trial study ID cannot be empty")

	// ErrTrialParamsEmpty is returned when a trial carries no sampled parameters.
	ErrTrialParamsEmpty = errors.New("trial parameters cannot be empty")
)

// Direction is the optimization direction of a study's objective.
type Direction string

// Possible optimization directions
const (
	DirectionMaximize Direction = "maximize"
	DirectionMinimize Direction = "minimize"
)

// ParseDirection converts a configuration string into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionMaximize, DirectionMinimize:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidDirection, s)
	}
}

// Better reports whether candidate improves on incumbent under the direction.
func (d Direction) Better(candidate, incumbent float64) bool {
	if d == DirectionMinimize {
		return candidate < incumbent
	}
	return candidate > incumbent
}

// TrialState represents the lifecycle state of a trial.
type TrialState string

// Possible trial states
const (
	TrialStateRunning  TrialState = "running"
	TrialStateComplete TrialState = "complete"
	TrialStatePruned   TrialState = "pruned"
	TrialStateFailed   TrialState = "failed"
)

// Terminal reports whether the state is final.
func (s TrialState) Terminal() bool {
	return s == TrialStateComplete || s == TrialStatePruned || s == TrialStateFailed
}

// Study is a named, persisted collection of trials sharing an objective
// and a search space. A study survives process restarts: re-running the
// coordinator with the same resolved name resumes it.
type Study struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	CreatedAt time.Time `json:"created_at"`
}

// NewStudy creates a new Study with the given resolved name and direction.
// Returns an error if validation fails.
func NewStudy(name string, direction Direction) (*Study, error) {
	s := &Study{
		ID:        uuid.New(),
		Name:      name,
		Direction: direction,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks if the Study has valid data.
func (s *Study) Validate() error {
	if s.ID == uuid.Nil {
		return ErrStudyIDEmpty
	}
	if s.Name == "" {
		return ErrStudyNameEmpty
	}
	if _, err := ParseDirection(string(s.Direction)); err != nil {
		return err
	}
	return nil
}

// Params holds one sampled hyperparameter assignment, keyed by the
// dotted configuration path of each parameter. Params persist as a JSON
// object, so values survive storage as JSON scalars (float64, string,
// bool); integer-valued floats are converted back by the accessor that
// reads them.
type Params map[string]any

// Trial is one evaluation of the objective under a sampled assignment.
type Trial struct {
	ID           uuid.UUID  `json:"id"`
	StudyID      uuid.UUID  `json:"study_id"`
	Number       int        `json:"number"`
	Params       Params     `json:"params"`
	State        TrialState `json:"state"`
	Value        *float64   `json:"value,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewTrial creates a running Trial for a study with the sampled params.
// Number is the zero-based position of the trial within the study.
func NewTrial(studyID uuid.UUID, number int, params Params) (*Trial, error) {
	now := time.Now().UTC()
	t := &Trial{
		ID:        uuid.New(),
		StudyID:   studyID,
		Number:    number,
		Params:    params,
		State:     TrialStateRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate checks if the Trial has valid data.
func (t *Trial) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTrialIDEmpty
	}
	if t.StudyID == uuid.Nil {
		return ErrTrialStudyIDEmpty
	}
	if len(t.Params) == 0 {
		return ErrTrialParamsEmpty
	}
	return nil
}

// IntermediateValue is an objective reading reported mid-trial, used by
// pruners to stop unpromising trials early.
type IntermediateValue struct {
	TrialID uuid.UUID `json:"trial_id"`
	Step    int       `json:"step"`
	Value   float64   `json:"value"`
}
