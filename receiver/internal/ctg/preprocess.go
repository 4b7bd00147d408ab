package ctg

import (
	"math"
	"slices"
)

const (
	minPlausibleBPM = 50.0
	maxPlausibleBPM = 210.0

	// Значения для полностью пустого канала
	nominalBPM = 140.0
	nominalUC  = 0.0
)

// Preprocess очищает окно: отбрасывает физиологически невозможные значения ЧСС,
// интерполирует пропуски, заполняет края и сглаживает оба канала медианным фильтром.
// Результат всегда без пропусков, даже для полностью пустого окна.
func Preprocess(w Window, p Params) Series {
	n := len(w)
	t := make([]float64, n)
	bpm := make([]float64, n)
	uc := make([]float64, n)

	for i, s := range w {
		t[i] = s.T

		bpm[i] = math.NaN()
		if !isMissing(s.BPM) && *s.BPM >= minPlausibleBPM && *s.BPM <= maxPlausibleBPM {
			bpm[i] = *s.BPM
		}

		uc[i] = math.NaN()
		if !isMissing(s.UC) {
			uc[i] = *s.UC
		}
	}

	maxGap := p.samples(p.InterpMaxGapS)
	fillGaps(bpm, maxGap, nominalBPM)
	fillGaps(uc, maxGap, nominalUC)

	return Series{
		T:   t,
		BPM: MedianFilter(bpm, p.MedianKernel),
		UC:  MedianFilter(uc, p.MedianKernel),
	}
}

// fillGaps заполняет NaN на месте: внутри пропуска первые maxGap точек
// интерполируются линейно, остаток заполняется следующим валидным значением,
// края заполняются ближайшим валидным значением.
func fillGaps(x []float64, maxGap int, fallback float64) {
	first, last := -1, -1
	for i, v := range x {
		if !math.IsNaN(v) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}

	if first < 0 {
		for i := range x {
			x[i] = fallback
		}
		return
	}

	for i := 0; i < first; i++ {
		x[i] = x[first]
	}
	for i := last + 1; i < len(x); i++ {
		x[i] = x[last]
	}

	prev := first
	for i := first + 1; i <= last; i++ {
		if math.IsNaN(x[i]) {
			continue
		}
		if i-prev > 1 {
			span := float64(i - prev)
			for k := prev + 1; k < i; k++ {
				if k-prev <= maxGap {
					x[k] = x[prev] + (x[i]-x[prev])*float64(k-prev)/span
				} else {
					x[k] = x[i]
				}
			}
		}
		prev = i
	}
}

// MedianFilter применяет скользящую медиану с нечетным окном kernel.
// На краях окно укорачивается до доступных точек.
func MedianFilter(x []float64, kernel int) []float64 {
	out := make([]float64, len(x))
	if kernel <= 1 {
		copy(out, x)
		return out
	}

	half := kernel / 2
	buf := make([]float64, 0, kernel)
	for i := range x {
		lo := max(0, i-half)
		hi := min(len(x), i+half+1)

		buf = append(buf[:0], x[lo:hi]...)
		slices.Sort(buf)

		m := len(buf) / 2
		if len(buf)%2 == 1 {
			out[i] = buf[m]
		} else {
			out[i] = (buf[m-1] + buf[m]) / 2
		}
	}
	return out
}
