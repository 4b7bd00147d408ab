package stream

import (
	"errors"
	"time"

	"github.com/Krimson/ctg-stream/receiver/internal/alarm"
	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
	"github.com/Krimson/ctg-stream/receiver/internal/fanout"
	"github.com/Krimson/ctg-stream/receiver/internal/storage"
)

var (
	ErrStreamNotFound = errors.New("stream not found")
	ErrStreamExists   = errors.New("stream already active")
)

// Границы горизонта прогноза, минуты
const (
	MinHorizonMinutes = 1
	MaxHorizonMinutes = 60
	minStrideS        = 1.0
)

// Config - общие настройки оркестратора
type Config struct {
	Params         ctg.Params
	Alarm          alarm.Config
	StrideS        float64
	HorizonMinutes int
	MLTimeout      time.Duration
	ModelName      string
}

// DefaultConfig возвращает настройки по умолчанию
func DefaultConfig() Config {
	return Config{
		Params:         ctg.DefaultParams(),
		Alarm:          alarm.DefaultConfig(),
		StrideS:        1,
		HorizonMinutes: 5,
		MLTimeout:      5 * time.Second,
		ModelName:      "model_v1",
	}
}

// Options - параметры отдельного потока; нулевые значения берутся из Config
type Options struct {
	StrideS        float64 `json:"stride_s,omitempty"`
	HorizonMinutes int     `json:"horizon_minutes,omitempty"`
}

// Input - входящая точка; T == nil означает "время не передано"
type Input struct {
	T   *float64 `json:"t"`
	BPM *float64 `json:"bpm"`
	UC  *float64 `json:"uc"`
}

// Store - хранилище, которым пользуется оркестратор
type Store interface {
	storage.SampleStore
	storage.PredictionStore
}

// Broadcaster доставляет события подписчикам случая
type Broadcaster interface {
	Broadcast(caseID string, ev fanout.Event) int
}

// Snapshot - состояние активного потока
type Snapshot struct {
	CaseID             string    `json:"case_id"`
	StartedAt          time.Time `json:"started_at"`
	StrideS            float64   `json:"stride_s"`
	HorizonMinutes     int       `json:"horizon_minutes"`
	LastEvaluationTime *float64  `json:"last_evaluation_time"`
	AlarmOn            bool      `json:"alarm_on"`
	Received           int64     `json:"received"`
	Evaluations        int64     `json:"evaluations"`
	MLErrors           int64     `json:"ml_errors"`
}

// Stats - суммарные счетчики конвейера по всем случаям
type Stats struct {
	Received      int64 `json:"received"`
	Evaluations   int64 `json:"evaluations"`
	SkippedShort  int64 `json:"skipped_short"`
	SkippedStride int64 `json:"skipped_stride"`
	MLErrors      int64 `json:"ml_errors"`
	StoreErrors   int64 `json:"store_errors"`
	DroppedTicks  int64 `json:"dropped_ticks"`
}
