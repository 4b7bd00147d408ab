package ctg

import (
	"math"
	"slices"
	"sort"
)

// peak - найденный пик сигнала и его prominence
type peak struct {
	idx        int
	prominence float64
}

// findPeaks ищет локальные максимумы с ограничениями по высоте, минимальному
// расстоянию между пиками (в сэмплах) и prominence. Плато сводится к его середине,
// при конфликте по расстоянию остается более высокий пик.
func findPeaks(x []float64, height, prominence float64, distance int) []peak {
	candidates := localMaxima(x)

	kept := candidates[:0]
	for _, i := range candidates {
		if x[i] >= height {
			kept = append(kept, i)
		}
	}
	candidates = selectByDistance(x, kept, distance)

	peaks := make([]peak, 0, len(candidates))
	for _, i := range candidates {
		prom := peakProminence(x, i)
		if prom >= prominence {
			peaks = append(peaks, peak{idx: i, prominence: prom})
		}
	}
	return peaks
}

func localMaxima(x []float64) []int {
	var maxima []int
	n := len(x)
	i := 1
	for i < n-1 {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < n-1 && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				maxima = append(maxima, (i+ahead-1)/2)
				i = ahead
			}
		}
		i++
	}
	return maxima
}

func selectByDistance(x []float64, peaks []int, distance int) []int {
	if distance <= 1 || len(peaks) < 2 {
		return peaks
	}

	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[peaks[order[a]]] < x[peaks[order[b]]]
	})

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}

	for i := len(order) - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := make([]int, 0, len(peaks))
	for i, p := range peaks {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// peakProminence: высота пика над наибольшим из двух минимумов, найденных
// при движении влево и вправо до первой точки выше пика (или до края).
func peakProminence(x []float64, p int) float64 {
	leftMin := x[p]
	for i := p; i >= 0 && x[i] <= x[p]; i-- {
		leftMin = math.Min(leftMin, x[i])
	}

	rightMin := x[p]
	for i := p; i < len(x) && x[i] <= x[p]; i++ {
		rightMin = math.Min(rightMin, x[i])
	}

	return x[p] - math.Max(leftMin, rightMin)
}

// median возвращает медиану без изменения входного среза
func median(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := slices.Clone(x)
	slices.Sort(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}

// mad - медианное абсолютное отклонение, нормированное к σ (×1.4826)
func mad(x []float64, center float64) float64 {
	dev := make([]float64, len(x))
	for i, v := range x {
		dev[i] = math.Abs(v - center)
	}
	return median(dev) * 1.4826
}
