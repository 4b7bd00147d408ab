// Package stream ведет потоки случаев: принимает сэмплы, по шагу stride
// прогоняет окно через конвейер признаков и классификатор, обновляет тревогу
// и рассылает события подписчикам.
package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Krimson/ctg-stream/receiver/internal/classifier"
	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
	"github.com/Krimson/ctg-stream/receiver/internal/fanout"
	"github.com/Krimson/ctg-stream/receiver/internal/features"
	"github.com/Krimson/ctg-stream/receiver/internal/storage"
)

// SkipReason объясняет, почему тик не закончился предсказанием
type SkipReason string

const (
	Evaluated       SkipReason = ""
	SkipShortWindow SkipReason = "short_window"
	SkipStride      SkipReason = "stride"
	SkipReadError   SkipReason = "read_error"
	SkipMLError     SkipReason = "ml_error"
	SkipStopped     SkipReason = "stopped"
)

type Orchestrator struct {
	cfg    Config
	store  Store
	scorer classifier.Scorer
	out    Broadcaster
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session

	stats struct {
		mu sync.RWMutex
		s  Stats
	}
}

// New создает оркестратор. Ошибка конфигурации фатальна: потоки не запускаются.
func New(cfg Config, store Store, scorer classifier.Scorer, out Broadcaster, logger *zap.Logger) (*Orchestrator, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		scorer:   scorer,
		out:      out,
		logger:   logger.Named("stream"),
		now:      time.Now,
		sessions: make(map[string]*session),
	}, nil
}

func validateConfig(cfg Config) error {
	var errs []error
	if err := cfg.Alarm.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Params.FS <= 0 || cfg.Params.WindowSamples() < 2 {
		errs = append(errs, fmt.Errorf("window must hold at least 2 samples (fs=%v, W=%v)", cfg.Params.FS, cfg.Params.WindowS))
	}
	if cfg.StrideS <= 0 {
		errs = append(errs, fmt.Errorf("stride_s must be positive, got %v", cfg.StrideS))
	}
	if cfg.HorizonMinutes < MinHorizonMinutes || cfg.HorizonMinutes > MaxHorizonMinutes {
		errs = append(errs, fmt.Errorf("horizon_minutes must be in [%d, %d], got %d", MinHorizonMinutes, MaxHorizonMinutes, cfg.HorizonMinutes))
	}
	if cfg.MLTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ml timeout must be positive, got %v", cfg.MLTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid stream config: %w", errors.Join(errs...))
	}
	return nil
}

// Start запускает поток случая
func (o *Orchestrator) Start(caseID string, opts Options) (Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.sessions[caseID]; ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrStreamExists, caseID)
	}
	return o.startLocked(caseID, opts).snapshot(), nil
}

func (o *Orchestrator) startLocked(caseID string, opts Options) *session {
	opts = normalizeOptions(opts, o.cfg)
	sess := newSession(caseID, opts, o.cfg.Alarm, o.now())

	ctx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	o.sessions[caseID] = sess
	go o.run(ctx, sess)

	o.logger.Info("stream started",
		zap.String("case_id", caseID),
		zap.Float64("stride_s", opts.StrideS),
		zap.Int("horizon_minutes", opts.HorizonMinutes))
	return sess
}

// Stop останавливает поток и дожидается завершения текущей оценки.
// Подписчики случая не отключаются.
func (o *Orchestrator) Stop(caseID string) error {
	o.mu.Lock()
	sess, ok := o.sessions[caseID]
	if ok {
		delete(o.sessions, caseID)
	}
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, caseID)
	}

	sess.cancel()
	<-sess.done

	snap := sess.snapshot()
	o.logger.Info("stream stopped",
		zap.String("case_id", caseID),
		zap.Int64("received", snap.Received),
		zap.Int64("evaluations", snap.Evaluations),
		zap.Int64("ml_errors", snap.MLErrors))
	return nil
}

// Close останавливает все потоки
func (o *Orchestrator) Close() {
	o.logger.Info("stopping all streams")

	o.mu.RLock()
	ids := make([]string, 0, len(o.sessions))
	for id := range o.sessions {
		ids = append(ids, id)
	}
	o.mu.RUnlock()

	for _, id := range ids {
		// Поток мог быть остановлен параллельно
		_ = o.Stop(id)
	}
	o.logStats()
}

// Snapshot возвращает состояние активного потока
func (o *Orchestrator) Snapshot(caseID string) (Snapshot, error) {
	o.mu.RLock()
	sess, ok := o.sessions[caseID]
	o.mu.RUnlock()

	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrStreamNotFound, caseID)
	}
	return sess.snapshot(), nil
}

// List возвращает активные потоки, упорядоченные по case_id
func (o *Orchestrator) List() []Snapshot {
	o.mu.RLock()
	out := make([]Snapshot, 0, len(o.sessions))
	for _, sess := range o.sessions {
		out = append(out, sess.snapshot())
	}
	o.mu.RUnlock()

	slices.SortFunc(out, func(a, b Snapshot) int { return strings.Compare(a.CaseID, b.CaseID) })
	return out
}

// Ingest принимает одну точку: сохраняет ее, сразу рассылает raw
// и будит воркер случая. Поток без Start запускается с настройками по умолчанию.
func (o *Orchestrator) Ingest(ctx context.Context, caseID string, in Input) error {
	sess := o.ensure(caseID)

	echoT := finite(in.T)
	sample := ctg.Sample{BPM: finite(in.BPM), UC: finite(in.UC)}
	if echoT != nil {
		sample.T = *echoT
	} else {
		sample.T = o.now().Sub(sess.startedAt).Seconds()
	}

	sess.recordReceived()
	o.increment(func(s *Stats) { s.Received++ })

	err := o.store.AppendSample(ctx, caseID, sample)
	if err != nil {
		o.increment(func(s *Stats) { s.StoreErrors++ })
		o.logger.Warn("failed to persist sample", zap.String("case_id", caseID), zap.Error(err))
		err = fmt.Errorf("failed to persist sample: %w", err)
	}

	o.out.Broadcast(caseID, fanout.Raw(echoT, sample.BPM, sample.UC))

	if !sess.notify() {
		o.increment(func(s *Stats) { s.DroppedTicks++ })
	}
	return err
}

func (o *Orchestrator) ensure(caseID string) *session {
	o.mu.RLock()
	sess, ok := o.sessions[caseID]
	o.mu.RUnlock()
	if ok {
		return sess
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if sess, ok := o.sessions[caseID]; ok {
		return sess
	}
	return o.startLocked(caseID, Options{})
}

// run - воркер сессии: оценки одного случая идут строго последовательно
func (o *Orchestrator) run(ctx context.Context, sess *session) {
	defer close(sess.done)

	for {
		select {
		case <-sess.tick:
			reason := o.evaluate(ctx, sess)
			if reason != Evaluated {
				o.logger.Debug("evaluation skipped",
					zap.String("case_id", sess.caseID),
					zap.String("reason", string(reason)))
			}

		case <-ctx.Done():
			return
		}
	}
}

// evaluate выполняет один тик конвейера для случая
func (o *Orchestrator) evaluate(ctx context.Context, sess *session) SkipReason {
	p := o.cfg.Params
	n := p.WindowSamples()

	w, err := o.store.ReadLastSamples(ctx, sess.caseID, n)
	if err != nil {
		if ctx.Err() != nil {
			return SkipStopped
		}
		o.increment(func(s *Stats) { s.StoreErrors++ })
		o.logger.Warn("failed to read window", zap.String("case_id", sess.caseID), zap.Error(err))
		return SkipReadError
	}
	if len(w) < n {
		o.increment(func(s *Stats) { s.SkippedShort++ })
		return SkipShortWindow
	}

	current := w[len(w)-1].T
	if last := sess.lastEvaluation(); last != nil && current-*last < sess.strideS {
		o.increment(func(s *Stats) { s.SkippedStride++ })
		return SkipStride
	}

	series := ctg.Preprocess(w, p)
	baseline := ctg.Baseline(series.BPM, p.Alpha)
	events := ctg.Detect(series, baseline, p)
	fv := features.Compute(series, events, p)

	scoreCtx, cancel := context.WithTimeout(ctx, o.cfg.MLTimeout)
	res, err := o.scorer.Score(scoreCtx, fv, sess.horizon)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return SkipStopped
		}
		sess.recordMLError()
		o.increment(func(s *Stats) { s.MLErrors++ })
		o.logger.Warn("classifier call failed", zap.String("case_id", sess.caseID), zap.Error(err))
		o.out.Broadcast(sess.caseID, fanout.MLError(err.Error()))
		return SkipMLError
	}

	wasOn := sess.alarm.IsOn()
	on := sess.alarm.Update(res.Probability)
	sess.recordEvaluation(current, on)
	o.increment(func(s *Stats) { s.Evaluations++ })

	created := o.now().UTC()
	tCenter := float64(created.UnixNano()) / float64(time.Second)
	if res.Features == nil {
		res.Features = fv
	}

	pred := &storage.Prediction{
		ID:             uuid.NewString(),
		CaseID:         sess.caseID,
		TCenter:        tCenter,
		Probability:    res.Probability,
		Label:          res.Label,
		Alert:          on,
		HorizonMinutes: sess.horizon,
		ModelName:      o.cfg.ModelName,
		Features:       res.Features,
		CreatedAt:      created,
	}
	if err := o.store.SavePrediction(ctx, pred); err != nil {
		o.increment(func(s *Stats) { s.StoreErrors++ })
		o.logger.Warn("failed to persist prediction", zap.String("case_id", sess.caseID), zap.Error(err))
	}

	o.out.Broadcast(sess.caseID, fanout.Prediction(tCenter, res.Probability))
	o.out.Broadcast(sess.caseID, fanout.Alert(tCenter, on))

	if on != wasOn {
		o.logger.Info("alarm state changed",
			zap.String("case_id", sess.caseID),
			zap.Bool("on", on),
			zap.Float64("proba", res.Probability))
	}
	return Evaluated
}

// ===== Статистика =====

func (o *Orchestrator) increment(update func(*Stats)) {
	o.stats.mu.Lock()
	update(&o.stats.s)
	o.stats.mu.Unlock()
}

// Stats возвращает копию счетчиков конвейера
func (o *Orchestrator) Stats() Stats {
	o.stats.mu.RLock()
	defer o.stats.mu.RUnlock()
	return o.stats.s
}

func (o *Orchestrator) logStats() {
	s := o.Stats()
	o.logger.Info("pipeline stats",
		zap.Int64("received", s.Received),
		zap.Int64("evaluations", s.Evaluations),
		zap.Int64("skipped_short", s.SkippedShort),
		zap.Int64("skipped_stride", s.SkippedStride),
		zap.Int64("ml_errors", s.MLErrors),
		zap.Int64("store_errors", s.StoreErrors),
		zap.Int64("dropped_ticks", s.DroppedTicks))
}

// finite заменяет NaN и бесконечности пропуском
func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}
