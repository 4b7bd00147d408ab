package classifier

import (
	"context"
	"maps"
	"math"
	"slices"

	"github.com/Krimson/ctg-stream/receiver/internal/features"
)

// Logistic - детерминированная локальная модель: логистическая регрессия по
// небольшому набору признаков. Неопределенные признаки пропускаются.
// Не является клинической моделью, служит заглушкой для локального запуска.
type Logistic struct {
	Bias        float64
	Weights     map[string]float64
	HorizonGain float64 // вклад в логит на каждую минуту горизонта сверх 1
	Threshold   float64 // порог метки
}

// DefaultLogistic возвращает модель с весами по умолчанию
func DefaultLogistic() *Logistic {
	return &Logistic{
		Bias: -3.0,
		Weights: map[string]float64{
			"evt_decel_late":      1.2,
			"evt_decel_prolonged": 1.5,
			"evt_decel_variable":  0.4,
			"evt_low_var_ratio":   1.8,
			"evt_brady_ratio":     2.5,
			"evt_tachy_ratio":     1.5,
			"evt_accel_total":     -0.4,
			"stv":                 -0.3,
			"extra_trend_slope":   -2.0,
		},
		HorizonGain: 0.02,
		Threshold:   0.5,
	}
}

// Score реализует Scorer
func (m *Logistic) Score(ctx context.Context, fv features.Vector, horizonMinutes int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	z := m.Bias + m.HorizonGain*float64(max(horizonMinutes, 1)-1)
	// Суммируем в порядке имен признаков
	for _, name := range slices.Sorted(maps.Keys(m.Weights)) {
		if x, ok := fv.Get(name); ok {
			z += m.Weights[name] * x
		}
	}
	p := 1 / (1 + math.Exp(-z))

	label := 0
	if p >= m.Threshold {
		label = 1
	}
	res := Result{Probability: p, Label: label, Features: fv}
	return res, validate(res)
}
