package batch

import (
	"context"

	"go.uber.org/zap"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
	"github.com/Krimson/ctg-stream/receiver/internal/storage"
)

// BulkWriter пишет пачку сэмплов одного случая
type BulkWriter interface {
	AppendSamples(ctx context.Context, caseID string, samples []ctg.Sample) error
}

// StoreSink отправляет батчи в долговременное хранилище
type StoreSink struct {
	writer BulkWriter
}

func NewStoreSink(writer BulkWriter) *StoreSink {
	return &StoreSink{writer: writer}
}

func (s *StoreSink) Consume(ctx context.Context, b Batch) error {
	return s.writer.AppendSamples(ctx, b.CaseID, b.Samples)
}

// DurableStore - хранилище с пакетной записью сэмплов
type DurableStore interface {
	storage.Store
	BulkWriter
}

// Archive - долговременное хранилище, в которое сэмплы пишутся пачками.
// Предсказания и чтение идут напрямую; только что принятые сэмплы
// видны в ReadLastSamples после сброса батча.
type Archive struct {
	DurableStore
	batcher *Batcher
}

func NewArchive(durable DurableStore, cfg Config, logger *zap.Logger) *Archive {
	return &Archive{
		DurableStore: durable,
		batcher:      NewBatcher(cfg, NewStoreSink(durable), logger),
	}
}

func (a *Archive) AppendSample(ctx context.Context, caseID string, s ctg.Sample) error {
	return a.batcher.Add(caseID, s)
}

func (a *Archive) Stats() Stats {
	return a.batcher.GetStats()
}

// Close сбрасывает накопленные сэмплы и закрывает хранилище
func (a *Archive) Close() error {
	a.batcher.Stop()
	return a.DurableStore.Close()
}
