package batch

import (
	"context"
	"time"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
)

// Batch представляет собранную пачку сэмплов одного случая
type Batch struct {
	CaseID  string       // Идентификатор случая
	T0      float64      // Время первой точки, с
	T1      float64      // Время последней точки, с
	Samples []ctg.Sample // Сэмплы в порядке поступления
}

// Sink интерфейс для обработки готовых батчей
type Sink interface {
	Consume(ctx context.Context, b Batch) error
}

// currentBatch - внутренняя структура для отслеживания текущего состояния батча
type currentBatch struct {
	Batch
	lastAdded time.Time // Когда добавлена последняя точка
}

func newCurrentBatch(caseID string) *currentBatch {
	return &currentBatch{
		Batch: Batch{
			CaseID:  caseID,
			Samples: make([]ctg.Sample, 0),
		},
	}
}

// addSample добавляет точку и обновляет временные границы
func (cb *currentBatch) addSample(s ctg.Sample, now time.Time) {
	if len(cb.Samples) == 0 {
		cb.T0 = s.T
		cb.T1 = s.T
	} else {
		cb.T0 = min(cb.T0, s.T)
		cb.T1 = max(cb.T1, s.T)
	}

	cb.Samples = append(cb.Samples, s)
	cb.lastAdded = now
}

func (cb *currentBatch) shouldFlushBySize(maxSamples int) bool {
	return len(cb.Samples) >= maxSamples
}

// spanWith - диапазон батча после добавления точки t
func (cb *currentBatch) spanWith(t float64) float64 {
	return max(cb.T1, t) - min(cb.T0, t)
}

// clone создает копию батча для отправки в sink
func (cb *currentBatch) clone() Batch {
	samples := make([]ctg.Sample, len(cb.Samples))
	copy(samples, cb.Samples)

	return Batch{
		CaseID:  cb.CaseID,
		T0:      cb.T0,
		T1:      cb.T1,
		Samples: samples,
	}
}

// reset очищает батч для переиспользования
func (cb *currentBatch) reset() {
	cb.T0 = 0
	cb.T1 = 0
	cb.Samples = cb.Samples[:0] // Сохраняем capacity
	cb.lastAdded = time.Time{}
}
