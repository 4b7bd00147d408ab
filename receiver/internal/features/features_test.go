package features

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
)

func series(bpm, uc []float64) ctg.Series {
	t := make([]float64, len(bpm))
	for i := range t {
		t[i] = float64(i)
	}
	return ctg.Series{T: t, BPM: bpm, UC: uc}
}

func constant(n int, v float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = v
	}
	return x
}

func sine(n int, center, amp, freq float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = center + amp*math.Sin(2*math.Pi*freq*float64(i))
	}
	return x
}

func keys(v Vector) []string {
	out := make([]string, 0, len(v))
	for k := range v {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestCompute_KeySetInvariant(t *testing.T) {
	p := ctg.DefaultParams()

	quiet := Compute(series(constant(300, 140), constant(300, 10)), ctg.Events{}, p)

	busy := ctg.Events{
		Contractions: []ctg.Contraction{{Start: 10, Peak: 40, End: 80, Duration: 70, Height: 40}},
		Decelerations: []ctg.Deceleration{
			{Start: 30, Nadir: 45, End: 70, DropBPM: 20, DurationS: 40, Type: ctg.DecelLate},
			{Start: 200, Nadir: 210, End: 230, DropBPM: 30, DurationS: 30, Type: ctg.DecelVariable},
		},
		Accelerations: []ctg.Acceleration{{Start: 100, Peak: 110, End: 130, RiseBPM: 18, DurationS: 30}},
	}
	noisy := Compute(series(sine(300, 140, 8, 0.05), sine(300, 20, 10, 0.01)), busy, p)

	require.Len(t, quiet, len(Names))
	assert.Equal(t, keys(quiet), keys(noisy))

	expected := append([]string(nil), Names...)
	sort.Strings(expected)
	assert.Equal(t, expected, keys(quiet))
}

func TestCompute_EventSummary(t *testing.T) {
	p := ctg.DefaultParams()
	ev := ctg.Events{
		Contractions: []ctg.Contraction{{Start: 10, Peak: 40, End: 80}},
		Decelerations: []ctg.Deceleration{
			{DropBPM: 20, Type: ctg.DecelLate},
			{DropBPM: 30, Type: ctg.DecelVariable},
			{DropBPM: 40, Type: ctg.DecelVariable},
		},
	}

	v := Compute(series(constant(300, 140), constant(300, 10)), ev, p)

	get := func(name string) float64 {
		x, ok := v.Get(name)
		require.True(t, ok, name)
		return x
	}
	assert.Equal(t, 1.0, get("evt_cons_total"))
	assert.Equal(t, 1.0, get("evt_contractions"))
	assert.Equal(t, 3.0, get("evt_decel_total"))
	assert.Equal(t, 0.0, get("evt_decel_early"))
	assert.Equal(t, 1.0, get("evt_decel_late"))
	assert.Equal(t, 2.0, get("evt_decel_variable"))
	assert.Equal(t, 0.0, get("evt_decel_prolonged"))
	assert.Equal(t, 0.0, get("evt_accel_total"))
	assert.InDelta(t, 30.0, get("evt_decel_mean_drop"), 1e-9)
	assert.Equal(t, 0.0, get("evt_accel_mean_rise"))
}

func TestCompute_FlatWindow(t *testing.T) {
	p := ctg.DefaultParams()
	v := Compute(series(constant(300, 140), constant(300, 10)), ctg.Events{}, p)

	x, ok := v.Get("baseline")
	require.True(t, ok)
	assert.Equal(t, 140.0, x)

	x, _ = v.Get("evt_low_var_ratio")
	assert.Equal(t, 1.0, x)
	x, _ = v.Get("evt_tachy_ratio")
	assert.Equal(t, 0.0, x)
	x, _ = v.Get("stv")
	assert.Equal(t, 0.0, x)

	// Для постоянного сигнала асимметрия и отношение спектральных полос не определены
	assert.Nil(t, v["extra_bpm_skew"])
	assert.Nil(t, v["psd_lf_hf"])
}

func TestCompute_ShortWindowHasNoSpectrum(t *testing.T) {
	p := ctg.DefaultParams()
	v := Compute(series(sine(40, 140, 5, 0.1), constant(40, 10)), ctg.Events{}, p)

	assert.Nil(t, v["psd_low"])
	assert.Nil(t, v["psd_high"])
	assert.Nil(t, v["psd_lf_hf"])
	assert.Nil(t, v["evt_low_var_ratio"])
	assert.Nil(t, v["evt_low_var_mean"])
	assert.NotNil(t, v["baseline"])
}

func TestBandPowers_LowFrequencyDominates(t *testing.T) {
	bpm := sine(300, 140, 5, 0.1)
	low, high := bandPowers(bpm, 140, 1)

	assert.Greater(t, low, 0.0)
	assert.Greater(t, low, 100*high)
}

func TestAutocorr_Periodic(t *testing.T) {
	x := sine(300, 0, 1, 0.1)
	peakLag, decay := autocorr(x, 1, 120)

	assert.Equal(t, 10.0, peakLag)
	assert.Equal(t, 2.0, decay)
}

func TestPermutationEntropy(t *testing.T) {
	ramp := make([]float64, 50)
	for i := range ramp {
		ramp[i] = float64(i)
	}
	assert.InDelta(t, 0.0, permutationEntropy(ramp, 3, 1), 1e-9)
	assert.True(t, math.IsNaN(permutationEntropy([]float64{1, 2}, 3, 1)))

	noisy := make([]float64, 600)
	for i := range noisy {
		noisy[i] = math.Sin(float64(i)*12.9898) * 43758.5453
		noisy[i] -= math.Floor(noisy[i])
	}
	h := permutationEntropy(noisy, 3, 1)
	assert.Greater(t, h, 0.9)
	assert.LessOrEqual(t, h, 1.0)
}

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.Equal(t, 2.5, percentile(sorted, 0.5))
	assert.Equal(t, 1.75, percentile(sorted, 0.25))
	assert.Equal(t, 4.0, percentile(sorted, 1))
	assert.True(t, math.IsNaN(percentile(nil, 0.5)))
}

func TestVector_MapRoundTrip(t *testing.T) {
	v := newVector()
	v.set("baseline", 141)
	v.set("stv", math.NaN())

	m := v.AsMap()
	assert.Equal(t, 141.0, m["baseline"])
	assert.Nil(t, m["stv"])

	back := FromMap(m)
	x, ok := back.Get("baseline")
	require.True(t, ok)
	assert.Equal(t, 141.0, x)
	_, ok = back.Get("stv")
	assert.False(t, ok)
}
