package ctg

// Baseline считает экспоненциально сглаженный тренд ЧСС:
// baseline[0] = bpm[0], baseline[i] = alpha*bpm[i] + (1-alpha)*baseline[i-1].
// Пересчитывается для каждого окна, состояние между окнами не хранится.
func Baseline(bpm []float64, alpha float64) []float64 {
	base := make([]float64, len(bpm))
	if len(bpm) == 0 {
		return base
	}

	base[0] = bpm[0]
	for i := 1; i < len(bpm); i++ {
		base[i] = alpha*bpm[i] + (1-alpha)*base[i-1]
	}
	return base
}
