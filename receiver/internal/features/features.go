// Package features собирает вектор признаков окна КТГ для внешнего классификатора.
package features

import (
	"math"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
)

// Vector - отображение имени признака в значение; nil означает неопределенный признак
type Vector map[string]*float64

// Names - полный набор ключей вектора в фиксированном порядке.
// Набор не зависит от числа найденных событий.
var Names = []string{
	// базовые
	"baseline",
	"bpm_sd",
	"bpm_iqr",
	"stv",
	"psd_low",
	"psd_high",
	"psd_lf_hf",
	"xcorr_absmax",

	// сводка событий
	"evt_cons_total",
	"evt_decel_total",
	"evt_decel_early",
	"evt_decel_late",
	"evt_decel_variable",
	"evt_decel_prolonged",
	"evt_accel_total",
	"evt_contractions",
	"evt_low_var_ratio",
	"evt_low_var_mean",
	"evt_sd_overall",
	"evt_tachy_ratio",
	"evt_brady_ratio",
	"evt_decel_mean_drop",
	"evt_accel_mean_rise",

	// робастные, трендовые и нелинейные
	"extra_bpm_mad",
	"extra_bpm_skew",
	"extra_bpm_kurt",
	"extra_outlier_ratio",
	"extra_trend_slope",
	"extra_trend_r2",
	"extra_deriv_zero_cross_rate",
	"extra_rmssd",
	"extra_poincare_sd1",
	"extra_poincare_sd2",
	"extra_sd1_sd2_ratio",
	"extra_perm_entropy",
	"extra_hjorth_activity",
	"extra_hjorth_mobility",
	"extra_hjorth_complexity",
	"extra_ac_peak_lag",
	"extra_ac_decay_time",
}

// Compute считает все семейства признаков для очищенного окна.
// Функция детерминирована и не хранит состояния между вызовами.
func Compute(s ctg.Series, ev ctg.Events, p ctg.Params) Vector {
	v := newVector()
	basic(v, s, p)
	eventSummary(v, s, ev, p)
	extra(v, s.BPM, p)
	return v
}

func newVector() Vector {
	v := make(Vector, len(Names))
	for _, name := range Names {
		v[name] = nil
	}
	return v
}

// set записывает значение; NaN и ±Inf превращаются в nil
func (v Vector) set(name string, x float64) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		v[name] = nil
		return
	}
	v[name] = &x
}

// Get возвращает значение признака и признак его определенности
func (v Vector) Get(name string) (float64, bool) {
	x, ok := v[name]
	if !ok || x == nil {
		return 0, false
	}
	return *x, true
}

// AsMap переводит вектор в map[string]any (nil сохраняется), удобно для JSON и structpb
func (v Vector) AsMap() map[string]any {
	out := make(map[string]any, len(v))
	for k, x := range v {
		if x == nil {
			out[k] = nil
			continue
		}
		out[k] = *x
	}
	return out
}

// FromMap строит вектор из произвольного отображения; нечисловые значения становятся nil
func FromMap(m map[string]any) Vector {
	v := make(Vector, len(m))
	for k, raw := range m {
		switch x := raw.(type) {
		case float64:
			v.set(k, x)
		case float32:
			v.set(k, float64(x))
		case int:
			v.set(k, float64(x))
		case int64:
			v.set(k, float64(x))
		default:
			v[k] = nil
		}
	}
	return v
}
