package ctg

import "math"

// Sample представляет одну точку двухканального сигнала КТГ.
// Пропуски канала передаются как nil.
type Sample struct {
	T   float64  `json:"t"`
	BPM *float64 `json:"bpm"`
	UC  *float64 `json:"uc"`
}

// Window - упорядоченный по времени срез последних сэмплов, используется для одной оценки
type Window []Sample

// Series представляет очищенное окно: все три ряда одной длины и без пропусков
type Series struct {
	T   []float64
	BPM []float64
	UC  []float64
}

// Len возвращает длину окна
func (s Series) Len() int {
	return len(s.T)
}

// Contraction представляет схватку, найденную по каналу UC
type Contraction struct {
	Start      float64 `json:"start"`
	Peak       float64 `json:"peak"`
	End        float64 `json:"end"`
	Duration   float64 `json:"duration"`
	Height     float64 `json:"height"`
	Base       float64 `json:"base"`
	Prominence float64 `json:"prominence"`
}

// DecelType - тип децелерации по правилам FIGO
type DecelType string

const (
	DecelEarly     DecelType = "early"
	DecelLate      DecelType = "late"
	DecelVariable  DecelType = "variable"
	DecelProlonged DecelType = "prolonged"
)

// DecelTypes перечисляет все типы в фиксированном порядке
var DecelTypes = []DecelType{DecelEarly, DecelLate, DecelVariable, DecelProlonged}

// Deceleration представляет эпизод снижения ЧСС относительно baseline
type Deceleration struct {
	Start             float64   `json:"start"`
	Nadir             float64   `json:"nadir"`
	End               float64   `json:"end"`
	DropBPM           float64   `json:"drop_bpm"`
	DurationS         float64   `json:"duration_s"`
	Type              DecelType `json:"type"`
	LinkedContraction *int      `json:"linked_contraction"`
	LagToUCPeakS      *float64  `json:"lag_to_uc_peak_s"`
}

// Acceleration представляет эпизод подъема ЧСС относительно baseline
type Acceleration struct {
	Start     float64 `json:"start"`
	Peak      float64 `json:"peak"`
	End       float64 `json:"end"`
	RiseBPM   float64 `json:"rise_bpm"`
	DurationS float64 `json:"duration_s"`
}

// Events объединяет результаты всех детекторов для одного окна
type Events struct {
	Contractions  []Contraction
	Decelerations []Deceleration
	Accelerations []Acceleration
}

// Float возвращает указатель на значение; удобно для заполнения Sample
func Float(v float64) *float64 {
	return &v
}

func isMissing(v *float64) bool {
	return v == nil || math.IsNaN(*v) || math.IsInf(*v, 0)
}
