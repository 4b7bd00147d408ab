package ctg

import "math"

// Params содержит параметры предобработки и детекторов событий
type Params struct {
	// Дискретизация и окно
	FS      float64 // частота дискретизации, Гц
	WindowS float64 // длина окна, сек

	// Предобработка
	MedianKernel  int     // размер медианного фильтра (нечетный)
	InterpMaxGapS float64 // максимальная длина линейно интерполируемого пропуска, сек
	Alpha         float64 // коэффициент экспоненциального сглаживания baseline

	// Схватки (UC)
	UCMinDistanceS     float64
	UCMinWidthS        float64
	UCRelStart         float64
	UCProminenceMin    float64
	UCProminenceKMAD   float64
	UCHeightKMAD       float64
	UCLocalBaseWindowS float64

	// Децелерации / акцелерации
	DecelMinDropBPM    float64
	DecelMinDurationS  float64
	ProlongedDecelMinS float64
	AccelMinRiseBPM    float64
	AccelMinDurationS  float64

	// Вариабельность, тахикардия / брадикардия
	LowVarBPM float64
	TachyBPM  float64
	BradyBPM  float64
}

// DefaultParams возвращает параметры по умолчанию (1 Гц, окно 5 минут)
func DefaultParams() Params {
	return Params{
		FS:                 1,
		WindowS:            300,
		MedianKernel:       5,
		InterpMaxGapS:      8,
		Alpha:              0.002,
		UCMinDistanceS:     60,
		UCMinWidthS:        30,
		UCRelStart:         0.2,
		UCProminenceMin:    10,
		UCProminenceKMAD:   3,
		UCHeightKMAD:       2,
		UCLocalBaseWindowS: 240,
		DecelMinDropBPM:    15,
		DecelMinDurationS:  15,
		ProlongedDecelMinS: 120,
		AccelMinRiseBPM:    15,
		AccelMinDurationS:  15,
		LowVarBPM:          5,
		TachyBPM:           160,
		BradyBPM:           110,
	}
}

// WindowSamples возвращает число сэмплов в окне (W·fs)
func (p Params) WindowSamples() int {
	return p.samples(p.WindowS)
}

// samples переводит секунды в число сэмплов
func (p Params) samples(seconds float64) int {
	return int(math.Round(seconds * p.FS))
}
