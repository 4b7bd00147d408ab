// Package batch копит сырые сэмплы по случаям и сбрасывает их пачками
// в долговременное хранилище.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
)

var ErrStopped = errors.New("batcher stopped")

// Config - параметры батчинга
type Config struct {
	MaxSamples     int           // размер батча, после которого он сбрасывается
	MaxSpanS       float64       // максимальный диапазон времени сигнала в батче
	FlushInterval  time.Duration // батч без новых точек дольше этого сбрасывается по таймеру
	DropTooOldS    float64       // точка старше конца батча на столько секунд отбрасывается
	QueueSize      int           // очередь готовых батчей к sink
	ConsumeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxSamples:     240,
		MaxSpanS:       120,
		FlushInterval:  2 * time.Second,
		DropTooOldS:    30,
		QueueSize:      100,
		ConsumeTimeout: 5 * time.Second,
	}
}

// Stats - счетчики батчера
type Stats struct {
	Received   int64 `json:"received"`
	Dropped    int64 `json:"dropped"`
	Flushed    int64 `json:"flushed"`
	OutOfOrder int64 `json:"out_of_order"`
	Failed     int64 `json:"failed"`
}

type Batcher struct {
	cfg    Config
	sink   Sink
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	batches map[string]*currentBatch
	stopped bool

	flushChan chan Batch
	stopTimer chan struct{}
	done      chan struct{}

	stats struct {
		mu sync.RWMutex
		s  Stats
	}
}

func NewBatcher(cfg Config, sink Sink, logger *zap.Logger) *Batcher {
	def := DefaultConfig()
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = def.MaxSamples
	}
	if cfg.MaxSpanS <= 0 {
		cfg.MaxSpanS = def.MaxSpanS
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.DropTooOldS <= 0 {
		cfg.DropTooOldS = def.DropTooOldS
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ConsumeTimeout <= 0 {
		cfg.ConsumeTimeout = def.ConsumeTimeout
	}

	b := &Batcher{
		cfg:       cfg,
		sink:      sink,
		logger:    logger.Named("batch"),
		now:       time.Now,
		batches:   make(map[string]*currentBatch),
		flushChan: make(chan Batch, cfg.QueueSize),
		stopTimer: make(chan struct{}),
		done:      make(chan struct{}),
	}

	go b.flushWorker()
	go b.timerFlusher()

	return b
}

// Add добавляет сэмпл в батч случая
func (b *Batcher) Add(caseID string, s ctg.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return ErrStopped
	}

	batch, exists := b.batches[caseID]
	if !exists {
		batch = newCurrentBatch(caseID)
		b.batches[caseID] = batch
	}

	if len(batch.Samples) > 0 {
		timeDiff := batch.T1 - s.T

		if timeDiff > b.cfg.DropTooOldS {
			b.increment(func(s *Stats) { s.Dropped++ })
			b.logger.Warn("sample too old, dropped",
				zap.String("case_id", caseID), zap.Float64("t_diff", timeDiff))
			return nil
		}

		if timeDiff > 0 {
			b.increment(func(s *Stats) { s.OutOfOrder++ })
		}

		if batch.spanWith(s.T) > b.cfg.MaxSpanS {
			b.flushBatch(batch, false)
		}
	}

	batch.addSample(s, b.now())
	b.increment(func(s *Stats) { s.Received++ })

	if batch.shouldFlushBySize(b.cfg.MaxSamples) {
		b.flushBatch(batch, false)
	}

	return nil
}

// flushBatch вызывается под b.mu
func (b *Batcher) flushBatch(batch *currentBatch, wait bool) {
	if len(batch.Samples) == 0 {
		return
	}

	batchCopy := batch.clone()
	batch.reset()

	if wait {
		b.flushChan <- batchCopy
		b.increment(func(s *Stats) { s.Flushed++ })
		return
	}

	select {
	case b.flushChan <- batchCopy:
		b.increment(func(s *Stats) { s.Flushed++ })
	default:
		b.logger.Warn("flush queue full, batch dropped",
			zap.String("case_id", batchCopy.CaseID), zap.Int("samples", len(batchCopy.Samples)))
		b.increment(func(s *Stats) { s.Dropped += int64(len(batchCopy.Samples)) })
	}
}

func (b *Batcher) flushWorker() {
	defer close(b.done)

	for batch := range b.flushChan {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.ConsumeTimeout)
		if err := b.sink.Consume(ctx, batch); err != nil {
			b.increment(func(s *Stats) { s.Failed++ })
			b.logger.Error("failed to consume batch",
				zap.String("case_id", batch.CaseID),
				zap.Int("samples", len(batch.Samples)),
				zap.Error(err))
		}
		cancel()
	}
}

func (b *Batcher) timerFlusher() {
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushIdleBatches()

		case <-b.stopTimer:
			return
		}
	}
}

func (b *Batcher) flushIdleBatches() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}

	now := b.now()
	for _, batch := range b.batches {
		if len(batch.Samples) > 0 && now.Sub(batch.lastAdded) >= b.cfg.FlushInterval {
			b.flushBatch(batch, false)
		}
	}
}

// Stop сбрасывает все батчи и ждет, пока sink их примет
func (b *Batcher) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.logger.Info("stopping batcher")
	b.stopped = true
	for _, batch := range b.batches {
		b.flushBatch(batch, true)
	}
	b.mu.Unlock()

	close(b.stopTimer)
	close(b.flushChan)
	<-b.done

	b.logStats()
}

func (b *Batcher) increment(update func(*Stats)) {
	b.stats.mu.Lock()
	update(&b.stats.s)
	b.stats.mu.Unlock()
}

func (b *Batcher) GetStats() Stats {
	b.stats.mu.RLock()
	defer b.stats.mu.RUnlock()
	return b.stats.s
}

func (b *Batcher) logStats() {
	s := b.GetStats()
	b.logger.Info("batcher stats",
		zap.Int64("received", s.Received),
		zap.Int64("dropped", s.Dropped),
		zap.Int64("flushed", s.Flushed),
		zap.Int64("out_of_order", s.OutOfOrder),
		zap.Int64("failed", s.Failed))
}
