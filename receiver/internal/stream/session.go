package stream

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/Krimson/ctg-stream/receiver/internal/alarm"
)

// session - состояние одного потока случая.
// alarm меняется только воркером сессии, поля под mu читаются снаружи.
type session struct {
	caseID    string
	strideS   float64
	horizon   int
	startedAt time.Time
	alarm     *alarm.State

	tick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	lastEval    *float64
	alarmOn     bool
	received    int64
	evaluations int64
	mlErrors    int64
}

func newSession(caseID string, opts Options, alarmCfg alarm.Config, startedAt time.Time) *session {
	return &session{
		caseID:    caseID,
		strideS:   opts.StrideS,
		horizon:   opts.HorizonMinutes,
		startedAt: startedAt,
		alarm:     alarm.New(alarmCfg, opts.StrideS),
		tick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// normalizeOptions подставляет значения по умолчанию и приводит к допустимым границам
func normalizeOptions(opts Options, cfg Config) Options {
	if opts.StrideS == 0 || math.IsNaN(opts.StrideS) || math.IsInf(opts.StrideS, 0) {
		opts.StrideS = cfg.StrideS
	}
	opts.StrideS = math.Max(minStrideS, opts.StrideS)

	if opts.HorizonMinutes == 0 {
		opts.HorizonMinutes = cfg.HorizonMinutes
	}
	opts.HorizonMinutes = min(MaxHorizonMinutes, max(MinHorizonMinutes, opts.HorizonMinutes))
	return opts
}

// notify будит воркер; если сигнал уже ожидает, новый не нужен:
// воркер все равно прочитает самое свежее окно.
func (s *session) notify() bool {
	select {
	case s.tick <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *session) lastEvaluation() *float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEval
}

func (s *session) recordReceived() {
	s.mu.Lock()
	s.received++
	s.mu.Unlock()
}

func (s *session) recordEvaluation(t float64, on bool) {
	s.mu.Lock()
	s.lastEval = &t
	s.alarmOn = on
	s.evaluations++
	s.mu.Unlock()
}

func (s *session) recordMLError() {
	s.mu.Lock()
	s.mlErrors++
	s.mu.Unlock()
}

func (s *session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		CaseID:         s.caseID,
		StartedAt:      s.startedAt,
		StrideS:        s.strideS,
		HorizonMinutes: s.horizon,
		AlarmOn:        s.alarmOn,
		Received:       s.received,
		Evaluations:    s.evaluations,
		MLErrors:       s.mlErrors,
	}
	if s.lastEval != nil {
		t := *s.lastEval
		snap.LastEvaluationTime = &t
	}
	return snap
}
