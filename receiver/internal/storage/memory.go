package storage

import (
	"context"
	"sync"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
)

// MemoryStore хранит данные в памяти процесса, по ограниченному буферу на случай
type MemoryStore struct {
	mu          sync.RWMutex
	samples     map[string]ctg.Window
	predictions map[string][]Prediction
	retention   int
}

// NewMemoryStore создает хранилище; retention - максимум сэмплов на случай
func NewMemoryStore(retention int) *MemoryStore {
	if retention <= 0 {
		retention = DefaultSampleRetention
	}
	return &MemoryStore{
		samples:     make(map[string]ctg.Window),
		predictions: make(map[string][]Prediction),
		retention:   retention,
	}
}

func (m *MemoryStore) AppendSample(ctx context.Context, caseID string, s ctg.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := append(m.samples[caseID], s)
	if len(w) > m.retention {
		// Копия, чтобы не удерживать старый массив целиком
		w = append(ctg.Window(nil), w[len(w)-m.retention:]...)
	}
	m.samples[caseID] = w
	return nil
}

func (m *MemoryStore) ReadLastSamples(ctx context.Context, caseID string, n int) (ctg.Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return tail(m.samples[caseID], n), nil
}

func (m *MemoryStore) SavePrediction(ctx context.Context, p *Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	preds := append(m.predictions[p.CaseID], *p)
	if len(preds) > DefaultPredictionRetention {
		preds = append([]Prediction(nil), preds[len(preds)-DefaultPredictionRetention:]...)
	}
	m.predictions[p.CaseID] = preds
	return nil
}

func (m *MemoryStore) ReadLastPredictions(ctx context.Context, caseID string, n int) ([]Prediction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return tail(m.predictions[caseID], n), nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Close() error {
	return nil
}

// tail возвращает копию последних n элементов
func tail[S ~[]E, E any](s S, n int) S {
	if n <= 0 || len(s) == 0 {
		return S{}
	}
	start := max(0, len(s)-n)
	out := make(S, len(s)-start)
	copy(out, s[start:])
	return out
}
