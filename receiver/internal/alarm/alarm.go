// Package alarm превращает поток вероятностей в устойчивый флаг тревоги
// с двухпороговым гистерезисом.
package alarm

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig возвращается Validate для некорректных порогов и интервалов
var ErrInvalidConfig = errors.New("invalid alarm config")

// Config задает пороги и длительности включения/выключения тревоги
type Config struct {
	OnThreshold  float64 // вероятность выше порога считается "высокой"
	OffThreshold float64 // вероятность ниже порога считается "низкой"
	OnMinutes    float64 // длина истории для включения
	OffMinutes   float64 // длина истории для выключения
	OnRatio      float64 // доля "высоких" оценок для включения
	OffRatio     float64 // доля "низких" оценок для выключения
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		OnThreshold:  0.80,
		OffThreshold: 0.60,
		OnMinutes:    10,
		OffMinutes:   5,
		OnRatio:      0.80,
		OffRatio:     1.0,
	}
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	var errs []error
	if !(c.OffThreshold >= 0 && c.OffThreshold < c.OnThreshold && c.OnThreshold <= 1) {
		errs = append(errs, fmt.Errorf("%w: need 0 <= off_thr (%v) < on_thr (%v) <= 1", ErrInvalidConfig, c.OffThreshold, c.OnThreshold))
	}
	if c.OnMinutes <= 0 || c.OffMinutes <= 0 {
		errs = append(errs, fmt.Errorf("%w: on_minutes and off_minutes must be positive", ErrInvalidConfig))
	}
	if c.OnRatio <= 0 || c.OnRatio > 1 || c.OffRatio <= 0 || c.OffRatio > 1 {
		errs = append(errs, fmt.Errorf("%w: on_ratio and off_ratio must be in (0, 1]", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// Frames переводит минуты в число оценок при шаге strideS секунд
func Frames(minutes, strideS float64) int {
	return max(1, int(math.Ceil(minutes*60/strideS)))
}

// State - состояние тревоги одного случая. Не потокобезопасно:
// обновления одного случая идут строго последовательно.
type State struct {
	cfg   Config
	on    *ring
	off   *ring
	onK   int
	offK  int
	isOn  bool
	flips int
}

// New создает состояние в положении OFF
func New(cfg Config, strideS float64) *State {
	onN := Frames(cfg.OnMinutes, strideS)
	offN := Frames(cfg.OffMinutes, strideS)
	return &State{
		cfg:  cfg,
		on:   newRing(onN),
		off:  newRing(offN),
		onK:  int(math.Ceil(float64(onN) * cfg.OnRatio)),
		offK: int(math.Ceil(float64(offN) * cfg.OffRatio)),
	}
}

// Update добавляет одну оценку вероятности и возвращает текущее состояние тревоги.
// Переход возможен только при заполненном соответствующем буфере.
func (s *State) Update(proba float64) bool {
	s.on.push(proba > s.cfg.OnThreshold)
	s.off.push(proba < s.cfg.OffThreshold)

	if !s.isOn {
		if s.on.full() && s.on.count >= s.onK {
			s.isOn = true
			s.flips++
		}
	} else if s.off.full() && s.off.count >= s.offK {
		s.isOn = false
		s.flips++
	}
	return s.isOn
}

// IsOn возвращает текущее состояние
func (s *State) IsOn() bool {
	return s.isOn
}

// Transitions возвращает число переключений с момента создания
func (s *State) Transitions() int {
	return s.flips
}

// ring - кольцевой буфер флагов фиксированной емкости со счетчиком true
type ring struct {
	buf   []bool
	next  int
	size  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]bool, capacity)}
}

func (r *ring) push(v bool) {
	if r.size == len(r.buf) {
		if r.buf[r.next] {
			r.count--
		}
	} else {
		r.size++
	}
	r.buf[r.next] = v
	if v {
		r.count++
	}
	r.next = (r.next + 1) % len(r.buf)
}

func (r *ring) full() bool {
	return r.size == len(r.buf)
}
