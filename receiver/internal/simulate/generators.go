// Package simulate генерирует синтетический двухканальный сигнал КТГ
// и подает его в потоки случаев.
package simulate

import (
	"math"
	"math/rand"

	"github.com/Krimson/ctg-stream/receiver/internal/stream"
)

// FHRConfig - параметры генератора пульса плода, уд/мин и секунды
type FHRConfig struct {
	BaseValue float64
	MinValue  float64
	MaxValue  float64
	// Variability - максимальное случайное отклонение за один сэмпл
	Variability float64
	// Reversion - доля отклонения от базы, возвращаемая за секунду
	Reversion float64

	// Децелерации: вероятность начала в секунду, глубина и длительность
	DecelRate      float64
	DecelDepth     float64
	DecelDurationS float64
}

// TOCOConfig - параметры генератора маточных сокращений
type TOCOConfig struct {
	RestMax              float64
	MinContractionPeriod float64 // сек между схватками, минимум
	MaxContractionPeriod float64 // сек между схватками, после которого схватка неизбежна
	ContractionDurationS float64
	PeakIntensity        float64
}

// Config - параметры симулятора
type Config struct {
	FHR  FHRConfig
	TOCO TOCOConfig
	// Seed != 0 делает сигнал воспроизводимым
	Seed int64
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		FHR: FHRConfig{
			BaseValue:      140,
			MinValue:       60,
			MaxValue:       200,
			Variability:    2,
			Reversion:      0.05,
			DecelRate:      1.0 / 600,
			DecelDepth:     25,
			DecelDurationS: 40,
		},
		TOCO: TOCOConfig{
			RestMax:              5,
			MinContractionPeriod: 120,
			MaxContractionPeriod: 300,
			ContractionDurationS: 90,
			PeakIntensity:        60,
		},
	}
}

type fhrGenerator struct {
	rand   *rand.Rand
	config FHRConfig
	value  float64

	decelElapsed float64
	inDecel      bool
}

func newFHRGenerator(cfg FHRConfig, r *rand.Rand) *fhrGenerator {
	return &fhrGenerator{rand: r, config: cfg, value: cfg.BaseValue}
}

// next возвращает следующее значение через dt секунд
func (g *fhrGenerator) next(dt float64) float64 {
	// Возврат к базе и ограниченный шум
	g.value += g.config.Reversion * dt * (g.config.BaseValue - g.value)
	g.value += (2*g.rand.Float64() - 1) * g.config.Variability

	if !g.inDecel && g.rand.Float64() < g.config.DecelRate*dt {
		g.inDecel = true
		g.decelElapsed = 0
	}

	value := g.value
	if g.inDecel {
		// Полуволна синуса: плавное падение и восстановление
		progress := g.decelElapsed / g.config.DecelDurationS
		value -= g.config.DecelDepth * math.Sin(math.Pi*progress)
		g.decelElapsed += dt
		if g.decelElapsed >= g.config.DecelDurationS {
			g.inDecel = false
		}
	}

	// Ограничиваем физиологическими пределами
	return math.Min(g.config.MaxValue, math.Max(g.config.MinValue, value))
}

type tocoGenerator struct {
	rand   *rand.Rand
	config TOCOConfig

	sinceLast     float64
	inContraction bool
	elapsed       float64
}

func newTOCOGenerator(cfg TOCOConfig, r *rand.Rand) *tocoGenerator {
	return &tocoGenerator{rand: r, config: cfg}
}

func (g *tocoGenerator) next(dt float64) float64 {
	// Если не в схватке, проверяем не пора ли начать новую
	if !g.inContraction {
		g.sinceLast += dt
		if g.sinceLast > g.config.MinContractionPeriod {
			span := math.Max(g.config.MaxContractionPeriod-g.config.MinContractionPeriod, 1e-9)
			probability := math.Min(1, (g.sinceLast-g.config.MinContractionPeriod)/span)
			// Вероятность начала схватки растет от 0 до 1 в секунду
			if probability >= 1 || g.rand.Float64() < probability*dt {
				g.forceContraction()
			}
		}
		if !g.inContraction {
			return g.rand.Float64() * g.config.RestMax
		}
	}

	value := g.contractionValue()
	g.elapsed += dt
	if g.elapsed >= g.config.ContractionDurationS {
		g.inContraction = false
		g.sinceLast = 0
	}
	return value
}

// contractionValue - подъем, плато и спад, по трети длительности
func (g *tocoGenerator) contractionValue() float64 {
	phase := g.config.ContractionDurationS / 3
	peak := g.config.PeakIntensity
	switch {
	case g.elapsed < phase:
		return peak * g.elapsed / phase
	case g.elapsed < 2*phase:
		return peak
	default:
		return math.Max(0, peak*(1-(g.elapsed-2*phase)/phase))
	}
}

// forceContraction запускает схватку немедленно
func (g *tocoGenerator) forceContraction() {
	g.inContraction = true
	g.elapsed = 0
}

// Generator выдает сэмплы с частотой hz
type Generator struct {
	fhr  *fhrGenerator
	toco *tocoGenerator
	dt   float64
	t    float64
}

// NewGenerator создает генератор; hz <= 0 означает 1 Гц
func NewGenerator(cfg Config, hz float64, seed int64) *Generator {
	if hz <= 0 {
		hz = 1
	}
	r := rand.New(rand.NewSource(seed))
	return &Generator{
		fhr:  newFHRGenerator(cfg.FHR, r),
		toco: newTOCOGenerator(cfg.TOCO, r),
		dt:   1 / hz,
	}
}

// Next возвращает следующий сэмпл; время отсчитывается от нуля
func (g *Generator) Next() stream.Input {
	t := g.t
	bpm := g.fhr.next(g.dt)
	uc := g.toco.next(g.dt)
	g.t += g.dt
	return stream.Input{T: &t, BPM: &bpm, UC: &uc}
}
