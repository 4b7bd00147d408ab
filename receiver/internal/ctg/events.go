package ctg

import "math"

const (
	earlyLagS  = 10.0 // |лаг надира к пику схватки| для ранней децелерации
	earlyLeadS = 5.0  // допустимое опережение начала схватки
)

// run - непрерывный участок маски, границы включительно
type run struct {
	start, end int
}

// runs размечает связные участки true за один проход
func runs(mask []bool) []run {
	var out []run
	start := -1
	for i, v := range mask {
		switch {
		case v && start < 0:
			start = i
		case !v && start >= 0:
			out = append(out, run{start: start, end: i - 1})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, run{start: start, end: len(mask) - 1})
	}
	return out
}

// DetectDecelerations ищет участки, где ЧСС не выше baseline - decel_min_drop_bpm,
// и классифицирует их относительно схваток (prolonged, early, late, variable).
func DetectDecelerations(s Series, baseline []float64, cons []Contraction, p Params) []Deceleration {
	mask := make([]bool, s.Len())
	for i := range mask {
		mask[i] = s.BPM[i] <= baseline[i]-p.DecelMinDropBPM
	}

	var out []Deceleration
	for _, r := range runs(mask) {
		start, end := s.T[r.start], s.T[r.end]
		duration := end - start
		if duration < p.DecelMinDurationS {
			continue
		}

		nadir := r.start
		for i := r.start + 1; i <= r.end; i++ {
			if s.BPM[i] < s.BPM[nadir] {
				nadir = i
			}
		}

		drop := baseline[nadir] - s.BPM[nadir]
		if drop < p.DecelMinDropBPM {
			continue
		}

		d := Deceleration{
			Start:     start,
			Nadir:     s.T[nadir],
			End:       end,
			DropBPM:   drop,
			DurationS: duration,
			Type:      DecelVariable,
		}
		classifyDeceleration(&d, cons, p)
		out = append(out, d)
	}
	return out
}

func classifyDeceleration(d *Deceleration, cons []Contraction, p Params) {
	if d.DurationS >= p.ProlongedDecelMinS {
		d.Type = DecelProlonged
		return
	}

	// При равном перекрытии остается первая найденная схватка
	best, bestOverlap := -1, 0.0
	for i, c := range cons {
		overlap := math.Min(d.End, c.End) - math.Max(d.Start, c.Start)
		if overlap > bestOverlap {
			best, bestOverlap = i, overlap
		}
	}
	if best < 0 {
		return
	}

	c := cons[best]
	lag := d.Nadir - c.Peak
	d.LinkedContraction = &best
	d.LagToUCPeakS = &lag

	nearPeak := math.Abs(lag) <= earlyLagS
	startsWithUC := d.Start >= c.Start-earlyLeadS
	endsAfterUC := d.End > c.End

	switch {
	case nearPeak && startsWithUC && !endsAfterUC:
		d.Type = DecelEarly
	case lag > 0 && endsAfterUC:
		d.Type = DecelLate
	}
}

// DetectAccelerations ищет участки, где ЧСС не ниже baseline + accel_min_rise_bpm
func DetectAccelerations(s Series, baseline []float64, p Params) []Acceleration {
	mask := make([]bool, s.Len())
	for i := range mask {
		mask[i] = s.BPM[i] >= baseline[i]+p.AccelMinRiseBPM
	}

	var out []Acceleration
	for _, r := range runs(mask) {
		start, end := s.T[r.start], s.T[r.end]
		duration := end - start
		if duration < p.AccelMinDurationS {
			continue
		}

		top := r.start
		for i := r.start + 1; i <= r.end; i++ {
			if s.BPM[i] > s.BPM[top] {
				top = i
			}
		}

		out = append(out, Acceleration{
			Start:     start,
			Peak:      s.T[top],
			End:       end,
			RiseBPM:   s.BPM[top] - baseline[top],
			DurationS: duration,
		})
	}
	return out
}

// Detect прогоняет все детекторы событий по очищенному окну
func Detect(s Series, baseline []float64, p Params) Events {
	cons := DetectContractions(s, p)
	return Events{
		Contractions:  cons,
		Decelerations: DetectDecelerations(s, baseline, cons, p),
		Accelerations: DetectAccelerations(s, baseline, p),
	}
}
