package session

import (
	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
	"github.com/Krimson/ctg-stream/receiver/internal/storage"
	"github.com/Krimson/ctg-stream/receiver/internal/stream"
)

// StartStreamRequest - тело POST /api/cases/{id}/stream
type StartStreamRequest struct {
	StrideS        float64 `json:"stride_s,omitempty" example:"1"`
	HorizonMinutes int     `json:"horizon_minutes,omitempty" example:"5"`
}

// SampleRequest - одна точка сигнала; пропуски передаются как null
type SampleRequest struct {
	T   *float64 `json:"t" example:"12.5"`
	BPM *float64 `json:"bpm" example:"141"`
	UC  *float64 `json:"uc" example:"18"`
}

// StartSimRequest - тело POST /api/cases/{id}/sim
type StartSimRequest struct {
	Hz float64 `json:"hz,omitempty" example:"4"`
}

// StreamListResponse - ответ GET /api/cases
type StreamListResponse struct {
	Streams []stream.Snapshot `json:"streams"`
	Count   int               `json:"count"`
	Stats   stream.Stats      `json:"stats"`
}

// SamplesResponse - последние сэмплы случая, от старых к новым
type SamplesResponse struct {
	CaseID  string       `json:"case_id"`
	Samples []ctg.Sample `json:"samples"`
	Count   int          `json:"count"`
}

// PredictionsResponse - последние предсказания случая
type PredictionsResponse struct {
	CaseID      string               `json:"case_id"`
	Predictions []storage.Prediction `json:"predictions"`
	Count       int                  `json:"count"`
}

// SimResponse - состояние симуляции случая
type SimResponse struct {
	CaseID string  `json:"case_id"`
	Hz     float64 `json:"hz,omitempty"`
	Status string  `json:"status"`
}

// MessageResponse - подтверждение операции
type MessageResponse struct {
	Message string `json:"message"`
	CaseID  string `json:"case_id"`
}

// ErrorResponse - тело ошибки
type ErrorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}
