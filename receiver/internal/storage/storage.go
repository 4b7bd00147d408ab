// Package storage реализует хранилище сырых сэмплов и предсказаний по случаям.
package storage

import (
	"context"
	"time"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
	"github.com/Krimson/ctg-stream/receiver/internal/features"
)

// Prediction - сохраненный результат одной оценки окна
type Prediction struct {
	ID             string          `json:"id"`
	CaseID         string          `json:"case_id"`
	TCenter        float64         `json:"t_center"`
	Probability    float64         `json:"probability"`
	Label          int             `json:"label"`
	Alert          bool            `json:"alert"`
	HorizonMinutes int             `json:"horizon_minutes"`
	ModelName      string          `json:"model_name"`
	Features       features.Vector `json:"features"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SampleStore хранит сырые сэмплы случая
type SampleStore interface {
	AppendSample(ctx context.Context, caseID string, s ctg.Sample) error
	// ReadLastSamples возвращает не более n последних сэмплов в хронологическом порядке
	ReadLastSamples(ctx context.Context, caseID string, n int) (ctg.Window, error)
}

// PredictionStore хранит результаты оценок
type PredictionStore interface {
	SavePrediction(ctx context.Context, p *Prediction) error
	// ReadLastPredictions возвращает не более n последних предсказаний в хронологическом порядке
	ReadLastPredictions(ctx context.Context, caseID string, n int) ([]Prediction, error)
}

// Store объединяет оба хранилища и проверку доступности
type Store interface {
	SampleStore
	PredictionStore
	Ping(ctx context.Context) error
	Close() error
}

// Ограничения хранения по умолчанию на один случай
const (
	DefaultSampleRetention     = 3600
	DefaultPredictionRetention = 1000
)
