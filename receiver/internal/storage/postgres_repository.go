package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	_ "github.com/lib/pq"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
)

// PostgresRepository хранит сэмплы и предсказания в PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository создает новый экземпляр PostgresRepository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// NewPostgresRepositoryFromDSN создает репозиторий из строки подключения
func NewPostgresRepositoryFromDSN(ctx context.Context, dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Настройки пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS raw_signals (
	id         BIGSERIAL PRIMARY KEY,
	case_id    TEXT NOT NULL,
	t          DOUBLE PRECISION NOT NULL,
	bpm        DOUBLE PRECISION,
	uc         DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_raw_signals_case_id ON raw_signals (case_id, id);

CREATE TABLE IF NOT EXISTS predictions (
	id              TEXT PRIMARY KEY,
	case_id         TEXT NOT NULL,
	t_center        DOUBLE PRECISION NOT NULL,
	probability     DOUBLE PRECISION NOT NULL,
	label           INTEGER NOT NULL,
	alert           BOOLEAN NOT NULL DEFAULT FALSE,
	horizon_minutes INTEGER NOT NULL,
	model_name      TEXT NOT NULL,
	features        JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_predictions_case_id ON predictions (case_id, created_at);
`

// EnsureSchema создает таблицы, если их нет
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Close закрывает соединение с БД
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ===== Сырые сигналы =====

func (r *PostgresRepository) AppendSample(ctx context.Context, caseID string, s ctg.Sample) error {
	query := `
		INSERT INTO raw_signals (case_id, t, bpm, uc)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.ExecContext(ctx, query, caseID, s.T, nullFloat(s.BPM), nullFloat(s.UC))
	if err != nil {
		return fmt.Errorf("failed to insert raw signal: %w", err)
	}
	return nil
}

// AppendSamples пишет пачку сэмплов одной транзакцией
func (r *PostgresRepository) AppendSamples(ctx context.Context, caseID string, samples []ctg.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_signals (case_id, t, bpm, uc)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare raw signal insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, caseID, s.T, nullFloat(s.BPM), nullFloat(s.UC)); err != nil {
			return fmt.Errorf("failed to insert raw signal: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit raw signals: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ReadLastSamples(ctx context.Context, caseID string, n int) (ctg.Window, error) {
	query := `
		SELECT t, bpm, uc
		FROM raw_signals
		WHERE case_id = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, caseID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw signals: %w", err)
	}
	defer rows.Close()

	w := make(ctg.Window, 0, n)
	for rows.Next() {
		var s ctg.Sample
		var bpm, uc sql.NullFloat64
		if err := rows.Scan(&s.T, &bpm, &uc); err != nil {
			return nil, fmt.Errorf("failed to scan raw signal: %w", err)
		}
		s.BPM = floatPtr(bpm)
		s.UC = floatPtr(uc)
		w = append(w, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate raw signals: %w", err)
	}

	// Запрос идет от новых к старым
	slices.Reverse(w)
	return w, nil
}

// ===== Предсказания =====

func (r *PostgresRepository) SavePrediction(ctx context.Context, p *Prediction) error {
	featuresJSON, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	query := `
		INSERT INTO predictions (id, case_id, t_center, probability, label, alert, horizon_minutes, model_name, features, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		p.ID,
		p.CaseID,
		p.TCenter,
		p.Probability,
		p.Label,
		p.Alert,
		p.HorizonMinutes,
		p.ModelName,
		featuresJSON,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ReadLastPredictions(ctx context.Context, caseID string, n int) ([]Prediction, error) {
	query := `
		SELECT id, case_id, t_center, probability, label, alert, horizon_minutes, model_name, features, created_at
		FROM predictions
		WHERE case_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, caseID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	preds := make([]Prediction, 0, n)
	for rows.Next() {
		var p Prediction
		var featuresJSON []byte
		err := rows.Scan(
			&p.ID,
			&p.CaseID,
			&p.TCenter,
			&p.Probability,
			&p.Label,
			&p.Alert,
			&p.HorizonMinutes,
			&p.ModelName,
			&featuresJSON,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		if len(featuresJSON) > 0 {
			if err := json.Unmarshal(featuresJSON, &p.Features); err != nil {
				return nil, fmt.Errorf("failed to unmarshal features: %w", err)
			}
		}
		preds = append(preds, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}

	slices.Reverse(preds)
	return preds, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return ctg.Float(v.Float64)
}
