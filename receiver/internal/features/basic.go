package features

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
)

// Полосы спектра ЧСС, Гц
const (
	lfLow  = 0.04
	lfHigh = 0.15
	hfLow  = 0.15
	hfHigh = 0.4
)

func basic(v Vector, s ctg.Series, p ctg.Params) {
	bpm := s.BPM
	if len(bpm) == 0 {
		return
	}

	sorted := slices.Clone(bpm)
	slices.Sort(sorted)
	med := percentile(sorted, 0.5)

	v.set("baseline", med)
	_, sd := stat.PopMeanStdDev(bpm, nil)
	v.set("bpm_sd", sd)
	v.set("bpm_iqr", percentile(sorted, 0.75)-percentile(sorted, 0.25))
	v.set("stv", shortTermVariability(bpm, p.FS))

	low, high := bandPowers(bpm, med, p.FS)
	v.set("psd_low", low)
	v.set("psd_high", high)
	if high > 0 {
		v.set("psd_lf_hf", low/high)
	}

	v.set("xcorr_absmax", crossCorrAbsMax(bpm, s.UC))
}

// shortTermVariability - среднее абсолютное последовательное изменение
// на ряде, прореженном до 1 Гц
func shortTermVariability(bpm []float64, fs float64) float64 {
	step := 1
	if fs >= 1 {
		step = int(fs)
	}
	var sec []float64
	for i := 0; i < len(bpm); i += step {
		sec = append(sec, bpm[i])
	}
	if len(sec) < 2 {
		return math.NaN()
	}

	var sum float64
	for i := 1; i < len(sec); i++ {
		sum += math.Abs(sec[i] - sec[i-1])
	}
	return sum / float64(len(sec)-1)
}

// bandPowers считает массу спектральной плотности ЧСС (оценка Уэлча) в полосах LF и HF.
// Для окна короче минуты обе величины NaN.
func bandPowers(bpm []float64, center, fs float64) (low, high float64) {
	nperseg := int(fs * 60)
	if nperseg < 2 || len(bpm) < nperseg {
		return math.NaN(), math.NaN()
	}

	detr := make([]float64, len(bpm))
	copy(detr, bpm)
	floats.AddConst(-center, detr)

	freqs, pxx := welch(detr, fs, nperseg)
	for k, f := range freqs {
		switch {
		case f >= lfLow && f < lfHigh:
			low += pxx[k]
		case f >= hfLow && f < hfHigh:
			high += pxx[k]
		}
	}
	return low, high
}

// welch: сегменты длиной nperseg с перекрытием 50%, окно Ханна, вычитание
// среднего сегмента, односторонняя спектральная плотность.
func welch(x []float64, fs float64, nperseg int) (freqs, pxx []float64) {
	window := hann(nperseg)
	scale := 1 / (fs * floats.Dot(window, window))

	step := nperseg - nperseg/2
	nfreq := nperseg/2 + 1
	pxx = make([]float64, nfreq)

	fft := fourier.NewFFT(nperseg)
	seg := make([]float64, nperseg)
	var coeffs []complex128
	segments := 0
	for start := 0; start+nperseg <= len(x); start += step {
		copy(seg, x[start:start+nperseg])
		floats.AddConst(-stat.Mean(seg, nil), seg)
		floats.Mul(seg, window)

		coeffs = fft.Coefficients(coeffs, seg)
		for k, c := range coeffs {
			pxx[k] += (real(c)*real(c) + imag(c)*imag(c)) * scale
		}
		segments++
	}

	freqs = make([]float64, nfreq)
	for k := range pxx {
		pxx[k] /= float64(segments)
		// удвоение всех частот, кроме нулевой и частоты Найквиста
		if k > 0 && !(nperseg%2 == 0 && k == nfreq-1) {
			pxx[k] *= 2
		}
		freqs[k] = fft.Freq(k) * fs
	}
	return freqs, pxx
}

// hann - периодическое окно Ханна
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// crossCorrAbsMax - максимум модуля полной взаимной корреляции нормированных FHR и UC
func crossCorrAbsMax(bpm, uc []float64) float64 {
	n := len(bpm)
	if n == 0 || len(uc) != n {
		return math.NaN()
	}
	b := standardize(bpm)
	u := standardize(uc)

	best := 0.0
	for lag := 0; lag < n; lag++ {
		pos := math.Abs(floats.Dot(b[lag:], u[:n-lag]))
		neg := math.Abs(floats.Dot(b[:n-lag], u[lag:]))
		best = math.Max(best, math.Max(pos, neg))
	}
	return best / float64(n)
}

func standardize(x []float64) []float64 {
	mean, sd := stat.PopMeanStdDev(x, nil)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - mean) / (sd + 1e-6)
	}
	return out
}

// percentile - квантиль отсортированного ряда с линейной интерполяцией между
// соседними порядковыми статистиками
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
