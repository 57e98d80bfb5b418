package sqldb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calderml/sweep/internal/store"
	"github.com/calderml/sweep/internal/study"
)

// newTestStore opens a fresh SQLite-backed store in a temp dir and
// applies the embedded migrations.
func newTestStore(t *testing.T) (*StudyStore, *sql.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tuning.db")
	db, dialect, err := Open("sqlite:" + path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(db, dialect))

	return NewStudyStore(db, dialect), db
}

func mustNewStudy(t *testing.T, name string, direction study.Direction) *study.Study {
	t.Helper()
	s, err := study.NewStudy(name, direction)
	require.NoError(t, err)
	return s
}

func mustNewTrial(t *testing.T, studyID uuid.UUID, number int, params study.Params) *study.Trial {
	t.Helper()
	tr, err := study.NewTrial(studyID, number, params)
	require.NoError(t, err)
	return tr
}

func TestCreateAndGetStudy(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created := mustNewStudy(t, "tune/cifar10/2024-01-01_00-00-00", study.DirectionMaximize)
	require.NoError(t, s.CreateStudy(ctx, created))

	got, err := s.GetStudyByName(ctx, created.Name)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Direction, got.Direction)
	assert.Equal(t, created.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())

	byID, err := s.GetStudy(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, byID.Name)

	_, err = s.GetStudyByName(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrStudyNotFound)

	_, err = s.GetStudy(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrStudyNotFound)
}

func TestCreateStudyDuplicateName(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first := mustNewStudy(t, "tune/cifar10/run", study.DirectionMaximize)
	require.NoError(t, s.CreateStudy(ctx, first))

	second := mustNewStudy(t, "tune/cifar10/run", study.DirectionMaximize)
	err := s.CreateStudy(ctx, second)
	assert.ErrorIs(t, err, store.ErrStudyNameExists)
}

func TestCreateStudyRejectsInvalid(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.CreateStudy(context.Background(), &study.Study{ID: uuid.New(), Name: "", Direction: study.DirectionMaximize})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestListStudies(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateStudy(ctx, mustNewStudy(t, "a", study.DirectionMinimize)))
	require.NoError(t, s.CreateStudy(ctx, mustNewStudy(t, "b", study.DirectionMaximize)))

	studies, err := s.ListStudies(ctx)
	require.NoError(t, err)
	require.Len(t, studies, 2)
}

func TestTrialLifecycle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	st := mustNewStudy(t, "tune", study.DirectionMaximize)
	require.NoError(t, s.CreateStudy(ctx, st))

	params := study.Params{"hparams.lr": 0.01, "optimizer.name": "sgd"}
	tr := mustNewTrial(t, st.ID, 0, params)
	require.NoError(t, s.CreateTrial(ctx, tr))

	// Duplicate trial number within the study is rejected.
	dup := mustNewTrial(t, st.ID, 0, params)
	assert.ErrorIs(t, s.CreateTrial(ctx, dup), store.ErrDuplicate)

	value := 0.91
	require.NoError(t, s.FinishTrial(ctx, tr.ID, study.TrialStateComplete, &value, ""))

	trials, err := s.ListTrials(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Equal(t, study.TrialStateComplete, trials[0].State)
	require.NotNil(t, trials[0].Value)
	assert.Equal(t, 0.91, *trials[0].Value)
	assert.Equal(t, "sgd", trials[0].Params["optimizer.name"])
	assert.Equal(t, 0.01, trials[0].Params["hparams.lr"])
}

// Params of every scalar type come back from storage as a decodable
// JSON object, numbers widened to float64.
func TestTrialParamsSurviveStorage(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	st := mustNewStudy(t, "tune", study.DirectionMaximize)
	require.NoError(t, s.CreateStudy(ctx, st))

	tr := mustNewTrial(t, st.ID, 0, study.Params{
		"hparams.lr":     0.05,
		"hparams.epochs": 20,
		"optimizer.name": "sgd",
		"misc.amp":       true,
	})
	require.NoError(t, s.CreateTrial(ctx, tr))

	trials, err := s.ListTrials(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, trials, 1)

	got := trials[0].Params
	assert.Equal(t, 0.05, got["hparams.lr"])
	assert.Equal(t, float64(20), got["hparams.epochs"])
	assert.Equal(t, "sgd", got["optimizer.name"])
	assert.Equal(t, true, got["misc.amp"])
}

func TestFinishTrialNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.FinishTrial(context.Background(), uuid.New(), study.TrialStateFailed, nil, "boom")
	assert.ErrorIs(t, err, store.ErrTrialNotFound)
}

func TestReportIntermediateAndQueryAtStep(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	st := mustNewStudy(t, "tune", study.DirectionMinimize)
	require.NoError(t, s.CreateStudy(ctx, st))

	tr1 := mustNewTrial(t, st.ID, 0, study.Params{"lr": 0.1})
	tr2 := mustNewTrial(t, st.ID, 1, study.Params{"lr": 0.2})
	require.NoError(t, s.CreateTrial(ctx, tr1))
	require.NoError(t, s.CreateTrial(ctx, tr2))

	require.NoError(t, s.ReportIntermediate(ctx, tr1.ID, 1, 0.5))
	require.NoError(t, s.ReportIntermediate(ctx, tr1.ID, 2, 0.4))
	require.NoError(t, s.ReportIntermediate(ctx, tr2.ID, 1, 0.7))

	// Re-reporting the same step is a duplicate.
	assert.ErrorIs(t, s.ReportIntermediate(ctx, tr1.ID, 1, 0.6), store.ErrDuplicate)

	values, err := s.IntermediatesAtStep(ctx, st.ID, 1)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, tr1.ID, values[0].TrialID)
	assert.Equal(t, 0.5, values[0].Value)
	assert.Equal(t, tr2.ID, values[1].TrialID)
	assert.Equal(t, 0.7, values[1].Value)

	empty, err := s.IntermediatesAtStep(ctx, st.ID, 99)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFailRunningTrials(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	st := mustNewStudy(t, "tune", study.DirectionMaximize)
	require.NoError(t, s.CreateStudy(ctx, st))

	running := mustNewTrial(t, st.ID, 0, study.Params{"lr": 0.1})
	require.NoError(t, s.CreateTrial(ctx, running))

	done := mustNewTrial(t, st.ID, 1, study.Params{"lr": 0.2})
	require.NoError(t, s.CreateTrial(ctx, done))
	value := 0.8
	require.NoError(t, s.FinishTrial(ctx, done.ID, study.TrialStateComplete, &value, ""))

	reset, err := s.FailRunningTrials(ctx, st.ID, "process interrupted")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	trials, err := s.ListTrials(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, trials, 2)
	assert.Equal(t, study.TrialStateFailed, trials[0].State)
	assert.Equal(t, "process interrupted", trials[0].ErrorMessage)
	assert.Equal(t, study.TrialStateComplete, trials[1].State)
}

func TestBestTrial(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	st := mustNewStudy(t, "tune", study.DirectionMaximize)
	require.NoError(t, s.CreateStudy(ctx, st))

	_, err := s.BestTrial(ctx, st.ID, st.Direction)
	assert.ErrorIs(t, err, store.ErrTrialNotFound)

	values := []float64{0.71, 0.93, 0.88}
	for i, v := range values {
		tr := mustNewTrial(t, st.ID, i, study.Params{"lr": 0.1 * float64(i+1)})
		require.NoError(t, s.CreateTrial(ctx, tr))
		v := v
		require.NoError(t, s.FinishTrial(ctx, tr.ID, study.TrialStateComplete, &v, ""))
	}

	// A failed trial without a value never wins.
	failed := mustNewTrial(t, st.ID, 3, study.Params{"lr": 0.9})
	require.NoError(t, s.CreateTrial(ctx, failed))
	require.NoError(t, s.FinishTrial(ctx, failed.ID, study.TrialStateFailed, nil, "diverged"))

	best, err := s.BestTrial(ctx, st.ID, study.DirectionMaximize)
	require.NoError(t, err)
	assert.Equal(t, 1, best.Number)
	assert.Equal(t, 0.93, *best.Value)

	worst, err := s.BestTrial(ctx, st.ID, study.DirectionMinimize)
	require.NoError(t, err)
	assert.Equal(t, 0, worst.Number)
}

func TestWithTxCommitsAtomically(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	st := mustNewStudy(t, "tune", study.DirectionMaximize)

	err := store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		txStore := s.WithTx(tx)
		if err := txStore.CreateStudy(ctx, st); err != nil {
			return err
		}
		return txStore.CreateTrial(ctx, mustNewTrial(t, st.ID, 0, study.Params{"lr": 0.1}))
	})
	require.NoError(t, err)

	trials, err := s.ListTrials(ctx, st.ID)
	require.NoError(t, err)
	assert.Len(t, trials, 1)
}
