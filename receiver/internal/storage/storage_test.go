package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
	"github.com/Krimson/ctg-stream/receiver/internal/features"
)

func sample(t float64, bpm float64) ctg.Sample {
	return ctg.Sample{T: t, BPM: ctg.Float(bpm), UC: ctg.Float(10)}
}

func newRedisStore(t *testing.T, retention int) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, retention), mr
}

// Общий контракт для всех реализаций Store
func checkSampleContract(t *testing.T, s Store) {
	ctx := context.Background()

	w, err := s.ReadLastSamples(ctx, "case-1", 10)
	require.NoError(t, err)
	assert.Empty(t, w)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendSample(ctx, "case-1", sample(float64(i), 140+float64(i))))
	}
	require.NoError(t, s.AppendSample(ctx, "case-1", ctg.Sample{T: 5}))
	require.NoError(t, s.AppendSample(ctx, "case-2", sample(0, 120)))

	w, err = s.ReadLastSamples(ctx, "case-1", 3)
	require.NoError(t, err)
	require.Len(t, w, 3)
	assert.Equal(t, []float64{3, 4, 5}, []float64{w[0].T, w[1].T, w[2].T})
	assert.Equal(t, 143.0, *w[0].BPM)
	assert.Nil(t, w[2].BPM)
	assert.Nil(t, w[2].UC)

	w, err = s.ReadLastSamples(ctx, "case-1", 100)
	require.NoError(t, err)
	assert.Len(t, w, 6)
}

func checkPredictionContract(t *testing.T, s Store) {
	ctx := context.Background()
	fv := features.Vector{"baseline": ctg.Float(140), "stv": nil}

	for i := 0; i < 3; i++ {
		p := &Prediction{
			ID:             string(rune('a' + i)),
			CaseID:         "case-1",
			TCenter:        float64(1000 + i),
			Probability:    0.1 * float64(i+1),
			HorizonMinutes: 5,
			Features:       fv,
			CreatedAt:      time.Unix(int64(1000+i), 0).UTC(),
		}
		require.NoError(t, s.SavePrediction(ctx, p))
	}

	preds, err := s.ReadLastPredictions(ctx, "case-1", 2)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, "b", preds[0].ID)
	assert.Equal(t, "c", preds[1].ID)
	assert.InDelta(t, 0.3, preds[1].Probability, 1e-9)
	x, ok := preds[1].Features.Get("baseline")
	require.True(t, ok)
	assert.Equal(t, 140.0, x)
	_, ok = preds[1].Features.Get("stv")
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	t.Run("samples", func(t *testing.T) { checkSampleContract(t, NewMemoryStore(100)) })
	t.Run("predictions", func(t *testing.T) { checkPredictionContract(t, NewMemoryStore(100)) })
}

func TestMemoryStore_Retention(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(4)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.AppendSample(ctx, "case-1", sample(float64(i), 140)))
	}
	w, err := s.ReadLastSamples(ctx, "case-1", 100)
	require.NoError(t, err)
	require.Len(t, w, 4)
	assert.Equal(t, 6.0, w[0].T)
}

func TestRedisStore(t *testing.T) {
	t.Run("samples", func(t *testing.T) {
		s, _ := newRedisStore(t, 100)
		checkSampleContract(t, s)
	})
	t.Run("predictions", func(t *testing.T) {
		s, _ := newRedisStore(t, 100)
		checkPredictionContract(t, s)
	})
}

func TestRedisStore_TrimsWindow(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, 5)

	for i := 0; i < 12; i++ {
		require.NoError(t, s.AppendSample(ctx, "case-1", sample(float64(i), 140)))
	}

	items, err := mr.List("case:case-1:samples")
	require.NoError(t, err)
	assert.Len(t, items, 5)

	w, err := s.ReadLastSamples(ctx, "case-1", 300)
	require.NoError(t, err)
	require.Len(t, w, 5)
	assert.Equal(t, 7.0, w[0].T)
	assert.Equal(t, 11.0, w[4].T)
}

func TestRedisStore_DeleteCaseAndPing(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, 5)

	require.NoError(t, s.AppendSample(ctx, "case-1", sample(0, 140)))
	require.NoError(t, s.SavePrediction(ctx, &Prediction{ID: "p", CaseID: "case-1"}))
	require.NoError(t, s.AppendSample(ctx, "case-2", sample(0, 140)))
	require.NoError(t, s.Ping(ctx))

	require.NoError(t, s.DeleteCase(ctx, "case-1"))
	assert.False(t, mr.Exists("case:case-1:samples"))
	assert.False(t, mr.Exists("case:case-1:predictions"))
	assert.True(t, mr.Exists("case:case-2:samples"))

	mr.Close()
	assert.Error(t, s.Ping(ctx))
}

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestPostgresRepository_EnsureSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS raw_signals")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_AppendSample(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO raw_signals")).
		WithArgs("case-1", 12.0, 141.0, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.AppendSample(context.Background(), "case-1", ctg.Sample{T: 12, BPM: ctg.Float(141)})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_AppendSamplesInTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO raw_signals"))
	prep.ExpectExec().WithArgs("case-1", 1.0, 140.0, nil).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("case-1", 2.0, nil, 15.0).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := repo.AppendSamples(context.Background(), "case-1", []ctg.Sample{
		{T: 1, BPM: ctg.Float(140)},
		{T: 2, UC: ctg.Float(15)},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_AppendSamplesRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO raw_signals"))
	prep.ExpectExec().WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := repo.AppendSamples(context.Background(), "case-1", []ctg.Sample{{T: 1}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ReadLastSamplesChronological(t *testing.T) {
	repo, mock := newMockRepo(t)
	rows := sqlmock.NewRows([]string{"t", "bpm", "uc"}).
		AddRow(3.0, 143.0, 12.0).
		AddRow(2.0, nil, 11.0).
		AddRow(1.0, 141.0, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM raw_signals")).
		WithArgs("case-1", 3).
		WillReturnRows(rows)

	w, err := repo.ReadLastSamples(context.Background(), "case-1", 3)
	require.NoError(t, err)
	require.Len(t, w, 3)
	assert.Equal(t, 1.0, w[0].T)
	assert.Equal(t, 141.0, *w[0].BPM)
	assert.Nil(t, w[0].UC)
	assert.Nil(t, w[1].BPM)
	assert.Equal(t, 3.0, w[2].T)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Predictions(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO predictions")).
		WithArgs("p-1", "case-1", 1700000000.0, 0.8, 1, true, 5, "logistic", sqlmock.AnyArg(), created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SavePrediction(context.Background(), &Prediction{
		ID: "p-1", CaseID: "case-1", TCenter: 1700000000, Probability: 0.8, Label: 1,
		Alert: true, HorizonMinutes: 5, ModelName: "logistic",
		Features:  features.Vector{"baseline": ctg.Float(139)},
		CreatedAt: created,
	})
	require.NoError(t, err)

	cols := []string{"id", "case_id", "t_center", "probability", "label", "alert", "horizon_minutes", "model_name", "features", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM predictions")).
		WithArgs("case-1", 2).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("p-2", "case-1", 1700000060.0, 0.3, 0, false, 5, "logistic", []byte(`{"baseline":null}`), created.Add(time.Minute)).
			AddRow("p-1", "case-1", 1700000000.0, 0.8, 1, true, 5, "logistic", []byte(`{"baseline":139}`), created))

	preds, err := repo.ReadLastPredictions(context.Background(), "case-1", 2)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, "p-1", preds[0].ID)
	assert.True(t, preds[0].Alert)
	x, ok := preds[0].Features.Get("baseline")
	require.True(t, ok)
	assert.Equal(t, 139.0, x)
	_, ok = preds[1].Features.Get("baseline")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM raw_signals")).WillReturnError(errors.New("connection reset"))

	_, err := repo.ReadLastSamples(context.Background(), "case-1", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

type brokenStore struct {
	*MemoryStore
}

func (brokenStore) AppendSample(context.Context, string, ctg.Sample) error {
	return errors.New("disk full")
}

func (brokenStore) Ping(context.Context) error {
	return errors.New("down")
}

func TestTiered(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryStore(10)
	durable := NewMemoryStore(100)
	tiered := NewTiered(cache, durable, zap.NewNop())

	t.Run("contract", func(t *testing.T) {
		checkSampleContract(t, NewTiered(NewMemoryStore(10), NewMemoryStore(100), zap.NewNop()))
		checkPredictionContract(t, NewTiered(NewMemoryStore(10), NewMemoryStore(100), zap.NewNop()))
	})

	t.Run("windows come from cache", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			require.NoError(t, tiered.AppendSample(ctx, "case-1", sample(float64(i), 140)))
		}
		w, err := tiered.ReadLastSamples(ctx, "case-1", 100)
		require.NoError(t, err)
		assert.Len(t, w, 10)

		all, err := durable.ReadLastSamples(ctx, "case-1", 100)
		require.NoError(t, err)
		assert.Len(t, all, 20)
	})

	t.Run("durable failure surfaces after cache write", func(t *testing.T) {
		cache := NewMemoryStore(10)
		broken := NewTiered(cache, brokenStore{NewMemoryStore(10)}, zap.NewNop())

		err := broken.AppendSample(ctx, "case-1", sample(1, 140))
		require.Error(t, err)
		w, _ := cache.ReadLastSamples(ctx, "case-1", 10)
		assert.Len(t, w, 1)
		assert.Error(t, broken.Ping(ctx))
	})
}
