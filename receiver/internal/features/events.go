package features

import (
	"gonum.org/v1/gonum/stat"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
)

// Окно скользящего SD для оценки низкой вариабельности, сек
const lowVarWindowS = 60.0

func eventSummary(v Vector, s ctg.Series, ev ctg.Events, p ctg.Params) {
	v.set("evt_cons_total", float64(len(ev.Contractions)))
	v.set("evt_contractions", float64(len(ev.Contractions)))
	v.set("evt_decel_total", float64(len(ev.Decelerations)))
	v.set("evt_accel_total", float64(len(ev.Accelerations)))

	byType := make(map[ctg.DecelType]int, len(ctg.DecelTypes))
	var drops, rises float64
	for _, d := range ev.Decelerations {
		byType[d.Type]++
		drops += d.DropBPM
	}
	for _, t := range ctg.DecelTypes {
		v.set("evt_decel_"+string(t), float64(byType[t]))
	}
	for _, a := range ev.Accelerations {
		rises += a.RiseBPM
	}

	v.set("evt_decel_mean_drop", meanOrZero(drops, len(ev.Decelerations)))
	v.set("evt_accel_mean_rise", meanOrZero(rises, len(ev.Accelerations)))

	bpm := s.BPM
	if len(bpm) == 0 {
		return
	}

	_, sd := stat.PopMeanStdDev(bpm, nil)
	v.set("evt_sd_overall", sd)

	// Учитываются только полностью заполненные окна скользящего SD
	win := int(lowVarWindowS * p.FS)
	if win >= 2 && len(bpm) >= win {
		full := len(bpm) - win + 1
		low := 0
		var sum float64
		for i := 0; i < full; i++ {
			rs := stat.StdDev(bpm[i:i+win], nil)
			if rs < p.LowVarBPM {
				low++
			}
			sum += rs
		}
		v.set("evt_low_var_ratio", float64(low)/float64(full))
		v.set("evt_low_var_mean", sum/float64(full))
	}

	tachy, brady := 0, 0
	for _, x := range bpm {
		if x > p.TachyBPM {
			tachy++
		}
		if x < p.BradyBPM {
			brady++
		}
	}
	v.set("evt_tachy_ratio", float64(tachy)/float64(len(bpm)))
	v.set("evt_brady_ratio", float64(brady)/float64(len(bpm)))
}

func meanOrZero(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
