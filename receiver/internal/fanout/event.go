package fanout

import (
	"encoding/json"
	"fmt"
)

// Kind - тип исходящего события
type Kind string

const (
	KindHello      Kind = "hello"
	KindRaw        Kind = "raw"
	KindPrediction Kind = "prediction"
	KindAlert      Kind = "alert"
	KindMLError    Kind = "ml_error"
)

// Состояния тревоги в событии alert
const (
	AlertOn  = "on"
	AlertOff = "off"
)

// HelloPayload отправляется подписчику сразу после подключения
type HelloPayload struct {
	CaseID string `json:"case_id"`
	H      int    `json:"H"`
}

// RawPayload повторяет принятый сэмпл
type RawPayload struct {
	T   *float64 `json:"t"`
	BPM *float64 `json:"bpm"`
	UC  *float64 `json:"uc"`
}

// PredictionPayload - результат одной оценки окна
type PredictionPayload struct {
	TCenter float64 `json:"t_center"`
	Proba   float64 `json:"proba"`
}

// AlertPayload - текущее состояние тревоги после оценки
type AlertPayload struct {
	T      float64 `json:"t"`
	State  string  `json:"state"`
	Reason *string `json:"reason"`
}

// MLErrorPayload описывает некритичную ошибку классификатора
type MLErrorPayload struct {
	Detail string `json:"detail"`
}

// Event - размеченное объединение исходящих событий: заполнено ровно одно
// поле полезной нагрузки, соответствующее Kind.
type Event struct {
	Kind       Kind
	Hello      *HelloPayload
	Raw        *RawPayload
	Prediction *PredictionPayload
	Alert      *AlertPayload
	MLError    *MLErrorPayload
}

func Hello(caseID string, horizon int) Event {
	return Event{Kind: KindHello, Hello: &HelloPayload{CaseID: caseID, H: horizon}}
}

func Raw(t, bpm, uc *float64) Event {
	return Event{Kind: KindRaw, Raw: &RawPayload{T: t, BPM: bpm, UC: uc}}
}

func Prediction(tCenter, proba float64) Event {
	return Event{Kind: KindPrediction, Prediction: &PredictionPayload{TCenter: tCenter, Proba: proba}}
}

func Alert(t float64, on bool) Event {
	state := AlertOff
	if on {
		state = AlertOn
	}
	return Event{Kind: KindAlert, Alert: &AlertPayload{T: t, State: state}}
}

func MLError(detail string) Event {
	return Event{Kind: KindMLError, MLError: &MLErrorPayload{Detail: detail}}
}

type envelope struct {
	Type    Kind `json:"type"`
	Payload any  `json:"payload"`
}

// MarshalJSON сериализует событие в формат {"type": ..., "payload": {...}}
func (e Event) MarshalJSON() ([]byte, error) {
	var payload any
	switch e.Kind {
	case KindHello:
		payload = e.Hello
	case KindRaw:
		payload = e.Raw
	case KindPrediction:
		payload = e.Prediction
	case KindAlert:
		payload = e.Alert
	case KindMLError:
		payload = e.MLError
	default:
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return json.Marshal(envelope{Type: e.Kind, Payload: payload})
}
