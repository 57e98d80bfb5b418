package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/calderml/sweep/internal/platform/logger"
	"github.com/calderml/sweep/internal/store"
	"github.com/calderml/sweep/internal/study"
)

// StudyStore implements the store.StudyStore interface over SQLite or
// PostgreSQL, selected by dialect.
type StudyStore struct {
	db      store.DBTX
	dialect Dialect
}

// NewStudyStore creates a new StudyStore for the given connection and dialect.
func NewStudyStore(db store.DBTX, dialect Dialect) *StudyStore {
	return &StudyStore{
		db:      db,
		dialect: dialect,
	}
}

// WithTx returns a new StudyStore instance that uses the provided transaction.
func (s *StudyStore) WithTx(tx *sql.Tx) store.StudyStore {
	return &StudyStore{
		db:      tx,
		dialect: s.dialect,
	}
}

// isUniqueViolation reports whether err is a unique-constraint violation
// from either backend.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code() == sqlitelib.SQLITE_CONSTRAINT_UNIQUE ||
			sqErr.Code() == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return false
}

// Timestamps are stored as unix milliseconds so both backends scan into
// the same integer type.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// CreateStudy persists a new study.
func (s *StudyStore) CreateStudy(ctx context.Context, st *study.Study) error {
	log := logger.FromContext(ctx)

	if err := st.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := rebind(s.dialect, `
		INSERT INTO studies (id, name, direction, created_at)
		VALUES (?, ?, ?, ?)
	`)

	_, err := s.db.ExecContext(ctx, query,
		st.ID.String(),
		st.Name,
		string(st.Direction),
		toMillis(st.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrStudyNameExists
		}
		log.Error("failed to create study",
			"study_name", st.Name,
			"error", err)
		return fmt.Errorf("failed to create study: %w", err)
	}

	return nil
}

// GetStudy retrieves a study by its ID.
func (s *StudyStore) GetStudy(ctx context.Context, id uuid.UUID) (*study.Study, error) {
	query := rebind(s.dialect, `
		SELECT id, name, direction, created_at
		FROM studies
		WHERE id = ?
	`)

	st, err := scanStudy(s.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrStudyNotFound
		}
		return nil, fmt.Errorf("failed to get study: %w", err)
	}

	return st, nil
}

// GetStudyByName retrieves a study by its resolved name.
func (s *StudyStore) GetStudyByName(ctx context.Context, name string) (*study.Study, error) {
	query := rebind(s.dialect, `
		SELECT id, name, direction, created_at
		FROM studies
		WHERE name = ?
	`)

	st, err := scanStudy(s.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrStudyNotFound
		}
		return nil, fmt.Errorf("failed to get study by name: %w", err)
	}

	return st, nil
}

// ListStudies retrieves all studies ordered by creation time.
func (s *StudyStore) ListStudies(ctx context.Context) ([]*study.Study, error) {
	query := `
		SELECT id, name, direction, created_at
		FROM studies
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var studies []*study.Study
	for rows.Next() {
		st, err := scanStudy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan study row: %w", err)
		}
		studies = append(studies, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating study rows: %w", err)
	}

	return studies, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStudy(row scanner) (*study.Study, error) {
	var (
		id        string
		name      string
		direction string
		createdAt int64
	)
	if err := row.Scan(&id, &name, &direction, &createdAt); err != nil {
		return nil, err
	}

	studyID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid study ID in storage: %w", err)
	}

	return &study.Study{
		ID:        studyID,
		Name:      name,
		Direction: study.Direction(direction),
		CreatedAt: fromMillis(createdAt),
	}, nil
}

// CreateTrial persists a new trial.
func (s *StudyStore) CreateTrial(ctx context.Context, t *study.Trial) error {
	log := logger.FromContext(ctx)

	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	params, err := json.Marshal(t.Params)
	if err != nil {
		return fmt.Errorf("failed to encode trial params: %w", err)
	}

	query := rebind(s.dialect, `
		INSERT INTO trials (id, study_id, number, params, state, value, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = s.db.ExecContext(ctx, query,
		t.ID.String(),
		t.StudyID.String(),
		t.Number,
		string(params),
		string(t.State),
		t.Value,
		t.ErrorMessage,
		toMillis(t.CreatedAt),
		toMillis(t.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: trial number %d", store.ErrDuplicate, t.Number)
		}
		log.Error("failed to create trial",
			"trial_id", t.ID,
			"trial_number", t.Number,
			"error", err)
		return fmt.Errorf("failed to create trial: %w", err)
	}

	return nil
}

// FinishTrial transitions a trial into a terminal state.
func (s *StudyStore) FinishTrial(
	ctx context.Context,
	trialID uuid.UUID,
	state study.TrialState,
	value *float64,
	errorMsg string,
) error {
	log := logger.FromContext(ctx)

	query := rebind(s.dialect, `
		UPDATE trials
		SET state = ?, value = ?, error_message = ?, updated_at = ?
		WHERE id = ?
	`)

	result, err := s.db.ExecContext(ctx, query,
		string(state),
		value,
		errorMsg,
		toMillis(time.Now()),
		trialID.String(),
	)
	if err != nil {
		log.Error("failed to finish trial",
			"trial_id", trialID,
			"state", state,
			"error", err)
		return fmt.Errorf("failed to finish trial: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrTrialNotFound
	}

	return nil
}

// ReportIntermediate records an intermediate objective value for a trial.
func (s *StudyStore) ReportIntermediate(ctx context.Context, trialID uuid.UUID, step int, value float64) error {
	query := rebind(s.dialect, `
		INSERT INTO trial_values (trial_id, step, value)
		VALUES (?, ?, ?)
	`)

	if _, err := s.db.ExecContext(ctx, query, trialID.String(), step, value); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: step %d already reported", store.ErrDuplicate, step)
		}
		return fmt.Errorf("failed to report intermediate value: %w", err)
	}

	return nil
}

// ListTrials retrieves all trials of a study ordered by trial number.
func (s *StudyStore) ListTrials(ctx context.Context, studyID uuid.UUID) ([]*study.Trial, error) {
	query := rebind(s.dialect, `
		SELECT id, study_id, number, params, state, value, error_message, created_at, updated_at
		FROM trials
		WHERE study_id = ?
		ORDER BY number ASC
	`)

	rows, err := s.db.QueryContext(ctx, query, studyID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var trials []*study.Trial
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trial row: %w", err)
		}
		trials = append(trials, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trial rows: %w", err)
	}

	return trials, nil
}

func scanTrial(row scanner) (*study.Trial, error) {
	var (
		id        string
		studyID   string
		number    int
		params    string
		state     string
		value     sql.NullFloat64
		errorMsg  string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&id, &studyID, &number, &params, &state, &value, &errorMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	trialID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid trial ID in storage: %w", err)
	}
	sid, err := uuid.Parse(studyID)
	if err != nil {
		return nil, fmt.Errorf("invalid study ID in storage: %w", err)
	}

	var p study.Params
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return nil, fmt.Errorf("invalid trial params in storage: %w", err)
	}

	t := &study.Trial{
		ID:           trialID,
		StudyID:      sid,
		Number:       number,
		Params:       p,
		State:        study.TrialState(state),
		ErrorMessage: errorMsg,
		CreatedAt:    fromMillis(createdAt),
		UpdatedAt:    fromMillis(updatedAt),
	}
	if value.Valid {
		t.Value = &value.Float64
	}

	return t, nil
}

// IntermediatesAtStep retrieves the intermediate values every trial of
// the study reported at the given step.
func (s *StudyStore) IntermediatesAtStep(
	ctx context.Context,
	studyID uuid.UUID,
	step int,
) ([]study.IntermediateValue, error) {
	query := rebind(s.dialect, `
		SELECT tv.trial_id, tv.step, tv.value
		FROM trial_values tv
		JOIN trials t ON t.id = tv.trial_id
		WHERE t.study_id = ? AND tv.step = ?
		ORDER BY t.number ASC
	`)

	rows, err := s.db.QueryContext(ctx, query, studyID.String(), step)
	if err != nil {
		return nil, fmt.Errorf("failed to query intermediate values: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var values []study.IntermediateValue
	for rows.Next() {
		var (
			trialID string
			iv      study.IntermediateValue
		)
		if err := rows.Scan(&trialID, &iv.Step, &iv.Value); err != nil {
			return nil, fmt.Errorf("failed to scan intermediate value row: %w", err)
		}
		id, err := uuid.Parse(trialID)
		if err != nil {
			return nil, fmt.Errorf("invalid trial ID in storage: %w", err)
		}
		iv.TrialID = id
		values = append(values, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intermediate value rows: %w", err)
	}

	return values, nil
}

// FailRunningTrials marks trials left running by an interrupted process
// as failed.
func (s *StudyStore) FailRunningTrials(ctx context.Context, studyID uuid.UUID, reason string) (int64, error) {
	log := logger.FromContext(ctx)

	query := rebind(s.dialect, `
		UPDATE trials
		SET state = ?, error_message = ?, updated_at = ?
		WHERE study_id = ? AND state = ?
	`)

	result, err := s.db.ExecContext(ctx, query,
		string(study.TrialStateFailed),
		reason,
		toMillis(time.Now()),
		studyID.String(),
		string(study.TrialStateRunning),
	)
	if err != nil {
		log.Error("failed to reset running trials",
			"study_id", studyID,
			"error", err)
		return 0, fmt.Errorf("failed to reset running trials: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// BestTrial returns the completed trial with the best value under the
// study's direction.
func (s *StudyStore) BestTrial(
	ctx context.Context,
	studyID uuid.UUID,
	direction study.Direction,
) (*study.Trial, error) {
	order := "DESC"
	if direction == study.DirectionMinimize {
		order = "ASC"
	}

	query := rebind(s.dialect, fmt.Sprintf(`
		SELECT id, study_id, number, params, state, value, error_message, created_at, updated_at
		FROM trials
		WHERE study_id = ? AND state = ? AND value IS NOT NULL
		ORDER BY value %s
		LIMIT 1
	`, order))

	t, err := scanTrial(s.db.QueryRowContext(ctx, query,
		studyID.String(),
		string(study.TrialStateComplete),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTrialNotFound
		}
		return nil, fmt.Errorf("failed to get best trial: %w", err)
	}

	return t, nil
}
