package session

import (
	"context"

	"github.com/Krimson/ctg-stream/receiver/internal/storage"
	"github.com/Krimson/ctg-stream/receiver/internal/stream"
)

// Streams управляет потоками случаев
type Streams interface {
	Start(caseID string, opts stream.Options) (stream.Snapshot, error)
	Stop(caseID string) error
	Snapshot(caseID string) (stream.Snapshot, error)
	List() []stream.Snapshot
	Stats() stream.Stats
	Ingest(ctx context.Context, caseID string, in stream.Input) error
}

// Simulator запускает синтетический источник сэмплов для случая
type Simulator interface {
	Start(caseID string, hz float64) (float64, error)
	Stop(caseID string) error
}

// History читает сохраненные сэмплы и предсказания
type History interface {
	storage.SampleStore
	storage.PredictionStore
}
