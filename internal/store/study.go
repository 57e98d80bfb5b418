package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/calderml/sweep/internal/study"
)

// StudyStore defines the interface for study and trial persistence.
// Version: 1.0
type StudyStore interface {
	// CreateStudy saves a new study.
	// Returns ErrStudyNameExists if a study with the same name exists.
	// Returns validation errors from the domain if the study is invalid.
	CreateStudy(ctx context.Context, s *study.Study) error

	// GetStudy retrieves a study by its ID.
	// Returns ErrStudyNotFound if the study does not exist.
	GetStudy(ctx context.Context, id uuid.UUID) (*study.Study, error)

	// GetStudyByName retrieves a study by its resolved name.
	// Returns ErrStudyNotFound if the study does not exist.
	GetStudyByName(ctx context.Context, name string) (*study.Study, error)

	// ListStudies retrieves all studies ordered by creation time.
	ListStudies(ctx context.Context) ([]*study.Study, error)

	// CreateTrial saves a new trial, typically in the running state.
	CreateTrial(ctx context.Context, t *study.Trial) error

	// FinishTrial transitions a trial into a terminal state. value is
	// stored for complete trials and may be nil for failed ones;
	// errorMsg records the failure or pruning reason.
	// Returns ErrTrialNotFound if the trial does not exist.
	FinishTrial(ctx context.Context, trialID uuid.UUID, state study.TrialState, value *float64, errorMsg string) error

	// ReportIntermediate records an objective reading mid-trial at the
	// given step, for pruning decisions.
	ReportIntermediate(ctx context.Context, trialID uuid.UUID, step int, value float64) error

	// ListTrials retrieves all trials of a study ordered by trial number.
	ListTrials(ctx context.Context, studyID uuid.UUID) ([]*study.Trial, error)

	// IntermediatesAtStep retrieves the intermediate values every trial
	// of the study reported at the given step.
	IntermediatesAtStep(ctx context.Context, studyID uuid.UUID, step int) ([]study.IntermediateValue, error)

	// FailRunningTrials marks trials left running by an interrupted
	// process as failed, recording the reason. Returns how many trials
	// were reset.
	FailRunningTrials(ctx context.Context, studyID uuid.UUID, reason string) (int64, error)

	// BestTrial returns the completed trial with the best value under
	// the study's direction. Returns ErrTrialNotFound if the study has
	// no completed trials.
	BestTrial(ctx context.Context, studyID uuid.UUID, direction study.Direction) (*study.Trial, error)

	// WithTx returns a new StudyStore instance that uses the provided transaction.
	// This allows for multiple operations to be executed within a single transaction.
	// The transaction should be created and managed by the caller.
	WithTx(tx *sql.Tx) StudyStore
}
