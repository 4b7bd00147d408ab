package ctg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatWindow строит окно длиной n с постоянными значениями каналов
func flatWindow(n int, bpm, uc float64) Window {
	w := make(Window, n)
	for i := range w {
		w[i] = Sample{T: float64(i), BPM: Float(bpm), UC: Float(uc)}
	}
	return w
}

// trapezoidUC: плоский шум вокруг 10 и одна чистая трапеция амплитудой 50
func trapezoidUC(n, start, width, ramp int) []float64 {
	uc := make([]float64, n)
	for i := range uc {
		uc[i] = 10 + 0.5*math.Sin(float64(i)*1.7)
	}
	for k := 0; k < width; k++ {
		var level float64
		switch {
		case k < ramp:
			level = 50 * float64(k) / float64(ramp)
		case k >= width-ramp:
			level = 50 * float64(width-1-k) / float64(ramp)
		default:
			level = 50
		}
		uc[start+k] = 10 + level
	}
	return uc
}

func seriesFrom(bpm, uc []float64) Series {
	t := make([]float64, len(bpm))
	for i := range t {
		t[i] = float64(i)
	}
	return Series{T: t, BPM: bpm, UC: uc}
}

func constant(n int, v float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = v
	}
	return x
}

func TestBaseline_LengthAndStart(t *testing.T) {
	p := DefaultParams()
	w := flatWindow(p.WindowSamples(), 140, 10)
	w[0].BPM = Float(132)
	w[150].BPM = Float(170)

	clean := Preprocess(w, p)
	base := Baseline(clean.BPM, p.Alpha)

	require.Len(t, base, p.WindowSamples())
	assert.Equal(t, clean.BPM[0], base[0])
}

func TestBaseline_Recurrence(t *testing.T) {
	base := Baseline([]float64{100, 200, 200}, 0.5)
	assert.Equal(t, []float64{100, 150, 175}, base)
	assert.Empty(t, Baseline(nil, 0.5))
}

func TestPreprocess_ClipsAndInterpolates(t *testing.T) {
	p := DefaultParams()
	p.MedianKernel = 1

	w := flatWindow(20, 140, 10)
	w[5].BPM = Float(30)  // ниже физиологического диапазона
	w[6].BPM = Float(250) // выше
	w[7].BPM = nil
	w[4].BPM = Float(130)
	w[8].BPM = Float(150)
	w[10].UC = nil

	clean := Preprocess(w, p)

	assert.InDelta(t, 135.0, clean.BPM[5], 1e-9)
	assert.InDelta(t, 140.0, clean.BPM[6], 1e-9)
	assert.InDelta(t, 145.0, clean.BPM[7], 1e-9)
	assert.InDelta(t, 10.0, clean.UC[10], 1e-9)
	for i := range clean.BPM {
		assert.False(t, math.IsNaN(clean.BPM[i]))
		assert.False(t, math.IsNaN(clean.UC[i]))
	}
}

func TestPreprocess_LongGapBackfilled(t *testing.T) {
	x := []float64{100, math.NaN(), math.NaN(), math.NaN(), math.NaN(), 200}
	fillGaps(x, 2, 0)
	assert.Equal(t, []float64{100, 120, 140, 200, 200, 200}, x)
}

func TestPreprocess_EdgesFilled(t *testing.T) {
	p := DefaultParams()
	p.MedianKernel = 1

	w := flatWindow(6, 140, 10)
	w[0].BPM, w[1].BPM = nil, nil
	w[5].UC = nil
	w[2].BPM = Float(120)

	clean := Preprocess(w, p)
	assert.Equal(t, 120.0, clean.BPM[0])
	assert.Equal(t, 120.0, clean.BPM[1])
	assert.Equal(t, 10.0, clean.UC[5])
}

func TestPreprocess_AllNullWindow(t *testing.T) {
	p := DefaultParams()
	w := make(Window, 30)
	for i := range w {
		w[i] = Sample{T: float64(i)}
	}

	clean := Preprocess(w, p)
	require.Equal(t, 30, clean.Len())
	for i := range clean.BPM {
		assert.Equal(t, nominalBPM, clean.BPM[i])
		assert.Equal(t, nominalUC, clean.UC[i])
	}
}

func TestPreprocess_CleanWindowOnlySmoothed(t *testing.T) {
	p := DefaultParams()
	w := make(Window, 60)
	bpm := make([]float64, 60)
	uc := make([]float64, 60)
	for i := range w {
		bpm[i] = 140 + 5*math.Sin(float64(i)/3)
		uc[i] = 20 + float64(i%7)
		w[i] = Sample{T: float64(i), BPM: Float(bpm[i]), UC: Float(uc[i])}
	}

	clean := Preprocess(w, p)
	assert.Equal(t, MedianFilter(bpm, p.MedianKernel), clean.BPM)
	assert.Equal(t, MedianFilter(uc, p.MedianKernel), clean.UC)
}

func TestMedianFilter_RemovesImpulse(t *testing.T) {
	out := MedianFilter([]float64{1, 1, 9, 1, 1}, 3)
	assert.Equal(t, []float64{1, 1, 1, 1, 1}, out)
}

func TestRuns(t *testing.T) {
	mask := []bool{true, true, false, false, true, false, true}
	assert.Equal(t, []run{{0, 1}, {4, 4}, {6, 6}}, runs(mask))
	assert.Empty(t, runs([]bool{false, false}))
}

func TestFindPeaks_PlateauAndDistance(t *testing.T) {
	x := []float64{0, 1, 5, 5, 5, 1, 0, 3, 0, 0}
	peaks := findPeaks(x, 0, 0, 1)
	require.Len(t, peaks, 2)
	assert.Equal(t, 3, peaks[0].idx)
	assert.Equal(t, 5.0, peaks[0].prominence)
	assert.Equal(t, 7, peaks[1].idx)
	assert.Equal(t, 3.0, peaks[1].prominence)

	// Низкий пик в пределах distance от высокого отбрасывается
	peaks = findPeaks(x, 0, 0, 6)
	require.Len(t, peaks, 1)
	assert.Equal(t, 3, peaks[0].idx)
}

func TestDetectContractions_SingleTrapezoid(t *testing.T) {
	p := DefaultParams()
	n := 600
	s := seriesFrom(constant(n, 140), trapezoidUC(n, 200, 200, 5))

	cons := DetectContractions(s, p)

	require.Len(t, cons, 1)
	c := cons[0]
	assert.InDelta(t, 200.0, c.Duration, 5)
	assert.InDelta(t, 50.0, c.Height, 2)
	assert.LessOrEqual(t, c.Start, c.Peak)
	assert.LessOrEqual(t, c.Peak, c.End)
	assert.Equal(t, c.End-c.Start, c.Duration)
}

func TestDetectContractions_FlatSignal(t *testing.T) {
	p := DefaultParams()
	s := seriesFrom(constant(300, 140), constant(300, 12))
	assert.Empty(t, DetectContractions(s, p))
}

func TestDetectContractions_OrderedAndNonOverlapping(t *testing.T) {
	p := DefaultParams()
	p.UCLocalBaseWindowS = 120
	n := 900
	uc := trapezoidUC(n, 100, 90, 15)
	second := trapezoidUC(n, 500, 90, 15)
	for i := 500; i < 590; i++ {
		uc[i] = second[i]
	}
	s := seriesFrom(constant(n, 140), uc)

	cons := DetectContractions(s, p)
	require.Len(t, cons, 2)
	for i, c := range cons {
		assert.LessOrEqual(t, c.Start, c.Peak)
		assert.LessOrEqual(t, c.Peak, c.End)
		assert.Equal(t, c.End-c.Start, c.Duration)
		if i > 0 {
			assert.GreaterOrEqual(t, c.Start, cons[i-1].End)
		}
	}
}

func TestDetectDecelerations_VariableWithoutContraction(t *testing.T) {
	p := DefaultParams()
	n := p.WindowSamples()
	w := flatWindow(n, 140, 10)
	for i := 100; i < 195; i++ {
		w[i].BPM = Float(120)
	}

	clean := Preprocess(w, p)
	base := Baseline(clean.BPM, p.Alpha)
	ev := Detect(clean, base, p)

	assert.Empty(t, ev.Contractions)
	require.Len(t, ev.Decelerations, 1)
	d := ev.Decelerations[0]
	assert.Equal(t, DecelVariable, d.Type)
	assert.InDelta(t, 20.0, d.DropBPM, 1)
	assert.InDelta(t, 94.0, d.DurationS, 2)
	assert.Nil(t, d.LinkedContraction)
	assert.Nil(t, d.LagToUCPeakS)
	assert.Empty(t, ev.Accelerations)
}

func TestDetect_ProlongedDip(t *testing.T) {
	for _, drop := range []float64{20, 30, 40} {
		p := DefaultParams()
		w := flatWindow(p.WindowSamples(), 140, 10)
		for i := 60; i < 240; i++ {
			w[i].BPM = Float(140 - drop)
		}

		clean := Preprocess(w, p)
		base := Baseline(clean.BPM, p.Alpha)
		ev := Detect(clean, base, p)

		require.Len(t, ev.Decelerations, 1, "drop=%v", drop)
		d := ev.Decelerations[0]
		assert.Equal(t, DecelProlonged, d.Type, "drop=%v", drop)
		assert.GreaterOrEqual(t, d.DurationS, p.ProlongedDecelMinS, "drop=%v", drop)
		assert.Equal(t, 60.0, d.Start, "drop=%v", drop)
		// Возврат к исходному уровню не дает акцелерации
		assert.Empty(t, ev.Accelerations, "drop=%v", drop)
	}
}

func TestDetectDecelerations_SortedAndDisjoint(t *testing.T) {
	p := DefaultParams()
	n := 600
	bpm := constant(n, 140)
	for _, start := range []int{80, 300, 450} {
		for i := start; i < start+40; i++ {
			bpm[i] = 115
		}
	}
	s := seriesFrom(bpm, constant(n, 10))

	decels := DetectDecelerations(s, Baseline(bpm, p.Alpha), nil, p)
	require.Len(t, decels, 3)
	for i := 1; i < len(decels); i++ {
		assert.Less(t, decels[i-1].Start, decels[i].Start)
		assert.Less(t, decels[i-1].End, decels[i].Start)
	}
}

func TestDetectDecelerations_ShortDipIgnored(t *testing.T) {
	p := DefaultParams()
	bpm := constant(300, 140)
	for i := 100; i < 110; i++ {
		bpm[i] = 110
	}
	s := seriesFrom(bpm, constant(300, 10))
	assert.Empty(t, DetectDecelerations(s, Baseline(bpm, p.Alpha), nil, p))
}

func TestClassifyDeceleration(t *testing.T) {
	p := DefaultParams()
	uc := Contraction{Start: 100, Peak: 130, End: 160}

	tests := []struct {
		name  string
		decel Deceleration
		cons  []Contraction
		want  DecelType
	}{
		{
			name:  "prolonged wins over overlap",
			decel: Deceleration{Start: 90, Nadir: 130, End: 220, DurationS: 130},
			cons:  []Contraction{uc},
			want:  DecelProlonged,
		},
		{
			name:  "no overlap is variable",
			decel: Deceleration{Start: 200, Nadir: 210, End: 230, DurationS: 30},
			cons:  []Contraction{uc},
			want:  DecelVariable,
		},
		{
			name:  "mirrors contraction is early",
			decel: Deceleration{Start: 110, Nadir: 135, End: 155, DurationS: 45},
			cons:  []Contraction{uc},
			want:  DecelEarly,
		},
		{
			name:  "delayed nadir ending after contraction is late",
			decel: Deceleration{Start: 125, Nadir: 155, End: 175, DurationS: 50},
			cons:  []Contraction{uc},
			want:  DecelLate,
		},
		{
			name:  "starts too early is variable",
			decel: Deceleration{Start: 80, Nadir: 128, End: 150, DurationS: 70},
			cons:  []Contraction{uc},
			want:  DecelVariable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.decel
			d.Type = DecelVariable
			classifyDeceleration(&d, tt.cons, p)
			assert.Equal(t, tt.want, d.Type)
		})
	}
}

func TestClassifyDeceleration_TieKeepsFirstContraction(t *testing.T) {
	p := DefaultParams()
	cons := []Contraction{
		{Start: 0, Peak: 20, End: 50},
		{Start: 70, Peak: 90, End: 120},
	}
	d := Deceleration{Start: 40, Nadir: 60, End: 80, DurationS: 40, Type: DecelVariable}

	classifyDeceleration(&d, cons, p)

	require.NotNil(t, d.LinkedContraction)
	assert.Equal(t, 0, *d.LinkedContraction)
	require.NotNil(t, d.LagToUCPeakS)
	assert.Equal(t, 40.0, *d.LagToUCPeakS)
	assert.Equal(t, DecelLate, d.Type)
}

func TestDetectAccelerations(t *testing.T) {
	p := DefaultParams()
	bpm := constant(300, 140)
	for i := 120; i < 150; i++ {
		bpm[i] = 160
	}
	s := seriesFrom(bpm, constant(300, 10))

	accels := DetectAccelerations(s, Baseline(bpm, p.Alpha), p)
	require.Len(t, accels, 1)
	a := accels[0]
	assert.Equal(t, 120.0, a.Start)
	assert.Equal(t, 120.0, a.Peak)
	assert.InDelta(t, 20.0, a.RiseBPM, 0.5)
	assert.GreaterOrEqual(t, a.DurationS, p.AccelMinDurationS)
}
