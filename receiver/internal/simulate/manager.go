package simulate

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Krimson/ctg-stream/receiver/internal/stream"
)

var (
	ErrAlreadyRunning = errors.New("simulation already running")
	ErrNotRunning     = errors.New("simulation not running")
)

// Максимальная частота симуляции, Гц
const MaxHz = 50

// Sink принимает сгенерированные сэмплы
type Sink interface {
	Ingest(ctx context.Context, caseID string, in stream.Input) error
}

type run struct {
	hz     float64
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager держит по одному симулятору на случай
type Manager struct {
	sink   Sink
	cfg    Config
	logger *zap.Logger

	mu   sync.Mutex
	runs map[string]*run
}

func NewManager(sink Sink, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		sink:   sink,
		cfg:    cfg,
		logger: logger.Named("sim"),
		runs:   make(map[string]*run),
	}
}

// Start запускает симуляцию случая с частотой hz
func (m *Manager) Start(caseID string, hz float64) (float64, error) {
	if hz <= 0 {
		hz = 1
	}
	hz = min(hz, MaxHz)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[caseID]; ok {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyRunning, caseID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{hz: hz, cancel: cancel, done: make(chan struct{})}
	m.runs[caseID] = r

	gen := NewGenerator(m.cfg, hz, m.seed(caseID))
	go m.loop(ctx, caseID, gen, r)

	m.logger.Info("simulation started", zap.String("case_id", caseID), zap.Float64("hz", hz))
	return hz, nil
}

// Stop останавливает симуляцию и ждет завершения цикла
func (m *Manager) Stop(caseID string) error {
	m.mu.Lock()
	r, ok := m.runs[caseID]
	if ok {
		delete(m.runs, caseID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, caseID)
	}
	r.cancel()
	<-r.done

	m.logger.Info("simulation stopped", zap.String("case_id", caseID))
	return nil
}

// StopAll останавливает все симуляции
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Stop(id)
	}
}

// Running сообщает, идет ли симуляция случая
func (m *Manager) Running(caseID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runs[caseID]
	return ok
}

func (m *Manager) loop(ctx context.Context, caseID string, gen *Generator, r *run) {
	defer close(r.done)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / r.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.sink.Ingest(ctx, caseID, gen.Next()); err != nil && ctx.Err() == nil {
				m.logger.Warn("failed to ingest simulated sample", zap.String("case_id", caseID), zap.Error(err))
			}

		case <-ctx.Done():
			return
		}
	}
}

// seed - Config.Seed, смешанный с case_id, либо текущее время
func (m *Manager) seed(caseID string) int64 {
	if m.cfg.Seed == 0 {
		return time.Now().UnixNano()
	}
	h := fnv.New64a()
	h.Write([]byte(caseID))
	return m.cfg.Seed ^ int64(h.Sum64())
}
