package features

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
)

const (
	madScale       = 1.4826
	outlierZ       = 3.0
	permOrder      = 3
	autocorrMaxLag = 120.0 // сек
)

func extra(v Vector, bpm []float64, p ctg.Params) {
	n := len(bpm)
	if n == 0 {
		return
	}

	robustStats(v, bpm)
	trend(v, bpm, p.FS)

	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = bpm[i] - bpm[i-1]
	}
	if len(diff) > 0 {
		v.set("extra_rmssd", math.Sqrt(floats.Dot(diff, diff)/float64(len(diff))))

		varDiff := popVariance(diff)
		sd1 := math.Sqrt(varDiff / 2)
		sd2 := math.Sqrt(2*popVariance(bpm) - varDiff/2)
		v.set("extra_poincare_sd1", sd1)
		v.set("extra_poincare_sd2", sd2)
		v.set("extra_sd1_sd2_ratio", sd1/(sd2+1e-9))
	}

	v.set("extra_perm_entropy", permutationEntropy(bpm, permOrder, max(1, int(0.5*p.FS))))

	activity, mobility, complexity := hjorth(bpm, p.FS)
	v.set("extra_hjorth_activity", activity)
	v.set("extra_hjorth_mobility", mobility)
	v.set("extra_hjorth_complexity", complexity)

	peakLag, decay := autocorr(bpm, p.FS, autocorrMaxLag)
	v.set("extra_ac_peak_lag", peakLag)
	v.set("extra_ac_decay_time", decay)
}

func robustStats(v Vector, x []float64) {
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	med := percentile(sorted, 0.5)

	dev := make([]float64, len(x))
	for i, xi := range x {
		dev[i] = math.Abs(xi - med)
	}
	slices.Sort(dev)
	mad := percentile(dev, 0.5) * madScale

	outliers := 0
	for _, xi := range x {
		if math.Abs(xi-med)/(mad+1e-9) > outlierZ {
			outliers++
		}
	}

	v.set("extra_bpm_mad", mad)
	v.set("extra_bpm_skew", stat.Skew(x, nil))
	v.set("extra_bpm_kurt", stat.ExKurtosis(x, nil))
	v.set("extra_outlier_ratio", float64(outliers)/float64(len(x)))
}

// trend: наклон и R² линейной регрессии по прошедшему времени,
// а также доля смен знака производной
func trend(v Vector, x []float64, fs float64) {
	if len(x) < 2 {
		return
	}
	t := make([]float64, len(x))
	for i := range t {
		t[i] = float64(i) / fs
	}
	alpha, beta := stat.LinearRegression(t, x, nil, false)
	v.set("extra_trend_slope", beta)
	v.set("extra_trend_r2", stat.RSquared(t, x, nil, alpha, beta))

	if len(x) < 4 {
		return
	}
	crossings := 0
	for i := 2; i < len(x); i++ {
		if (x[i-1]-x[i-2])*(x[i]-x[i-1]) < 0 {
			crossings++
		}
	}
	v.set("extra_deriv_zero_cross_rate", float64(crossings)/float64(len(x)-2))
}

// permutationEntropy - нормированная к [0,1] энтропия порядковых паттернов длины m с задержкой tau
func permutationEntropy(x []float64, m, tau int) float64 {
	n := len(x) - (m-1)*tau
	if n <= 0 {
		return math.NaN()
	}

	counts := make(map[int]int)
	idx := make([]int, m)
	for i := 0; i < n; i++ {
		for k := range idx {
			idx[k] = k
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return x[i+idx[a]*tau] < x[i+idx[b]*tau]
		})
		key := 0
		for _, k := range idx {
			key = key*m + k
		}
		counts[key]++
	}

	var h float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h / (math.Log2(float64(factorial(m))) + 1e-12)
}

func factorial(m int) int {
	f := 1
	for i := 2; i <= m; i++ {
		f *= i
	}
	return f
}

// hjorth возвращает активность, мобильность и сложность сигнала
func hjorth(x []float64, fs float64) (activity, mobility, complexity float64) {
	dx := derivative(x, fs)
	ddx := derivative(dx, fs)

	varX := popVariance(x)
	varDX := popVariance(dx)
	varDDX := popVariance(ddx)

	activity = varX
	mobility = math.Sqrt(varDX / (varX + 1e-12))
	complexity = math.Sqrt(varDDX/(varDX+1e-12)) / (mobility + 1e-12)
	return activity, mobility, complexity
}

// derivative - первая разность с нулем в начале, в единицах в секунду
func derivative(x []float64, fs float64) []float64 {
	d := make([]float64, len(x))
	for i := 1; i < len(x); i++ {
		d[i] = (x[i] - x[i-1]) * fs
	}
	return d
}

// autocorr возвращает лаг максимума автокорреляции (после нулевого) и время
// спада до 1/e; поиск ограничен maxLagS секундами.
func autocorr(x []float64, fs, maxLagS float64) (peakLag, decay float64) {
	n := len(x)
	mean := stat.Mean(x, nil)
	c := make([]float64, n)
	for i, xi := range x {
		c[i] = xi - mean
	}

	maxLag := min(int(maxLagS*fs), n-1)
	ac := make([]float64, maxLag+1)
	for k := range ac {
		ac[k] = floats.Dot(c[k:], c[:n-k])
	}
	norm := ac[0] + 1e-12
	floats.Scale(1/norm, ac)

	peakLag, decay = math.NaN(), math.NaN()
	if len(ac) > 2 {
		peakLag = float64(1+floats.MaxIdx(ac[1:])) / fs
	}
	for k, a := range ac {
		if a <= 1/math.E {
			decay = float64(k) / fs
			break
		}
	}
	return peakLag, decay
}

func popVariance(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	_, sd := stat.PopMeanStdDev(x, nil)
	return sd * sd
}
