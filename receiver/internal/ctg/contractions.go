package ctg

import "math"

// Окрестность пика, исключаемая из оценки локальной базы
const peakExclusion = 2

// DetectContractions ищет схватки в канале UC.
//
// Пороги строятся по робастной статистике окна (медиана и MAD), поэтому детектор
// устойчив к нестационарному базовому тонусу. Для каждого пика база оценивается
// как медиана UC вокруг пика без ближайшей окрестности самого пика, границы
// схватки - первые точки слева и справа, опустившиеся до base + rel_start*height.
func DetectContractions(s Series, p Params) []Contraction {
	uc := s.UC
	n := len(uc)
	if n < 3 {
		return nil
	}

	center := median(uc)
	scale := mad(uc, center) + 1e-6

	promMin := math.Max(p.UCProminenceMin, p.UCProminenceKMAD*scale)
	heightMin := center + p.UCHeightKMAD*scale
	distance := max(1, p.samples(p.UCMinDistanceS))
	win := p.samples(p.UCLocalBaseWindowS)

	var out []Contraction
	for _, pk := range findPeaks(uc, heightMin, promMin, distance) {
		i := pk.idx
		base := localBase(uc, i, win, center)

		h := uc[i] - base
		if h <= 0 {
			continue
		}
		level := base + p.UCRelStart*h

		start := i
		for start > 0 && uc[start] > level {
			start--
		}
		end := i
		for end < n-1 && uc[end] > level {
			end++
		}

		duration := s.T[end] - s.T[start]
		if duration < p.UCMinWidthS {
			continue
		}

		c := Contraction{
			Start:      s.T[start],
			Peak:       s.T[i],
			End:        s.T[end],
			Duration:   duration,
			Height:     h,
			Base:       base,
			Prominence: pk.prominence,
		}

		// Пики упорядочены, пересечение возможно только с предыдущей схваткой
		if k := len(out) - 1; k >= 0 && c.Start < out[k].End {
			if c.Height > out[k].Height {
				out[k] = c
			}
			continue
		}
		out = append(out, c)
	}
	return out
}

func localBase(uc []float64, i, win int, fallback float64) float64 {
	left := max(0, i-win)
	right := min(len(uc), i+win)

	var local []float64
	if i-peakExclusion > left && i+peakExclusion < right {
		local = make([]float64, 0, right-left)
		local = append(local, uc[left:i-peakExclusion]...)
		local = append(local, uc[i+peakExclusion+1:right]...)
	} else {
		local = uc[left:right]
	}

	if len(local) == 0 {
		return fallback
	}
	return median(local)
}
