package websocket

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Krimson/ctg-stream/receiver/internal/stream"
)

// Допустимые имена полей входящего сэмпла
var (
	timeKeys = []string{"t", "time", "t_center"}
	bpmKeys  = []string{"bpm", "hr", "heart_rate"}
	ucKeys   = []string{"uc", "toco", "uterine"}
)

// parseSample разбирает входящий кадр. Принимается плоский сэмпл
// или обертка {"type": "raw", "payload": {...}}; ok == false для служебных кадров.
func parseSample(data []byte) (stream.Input, bool, error) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return stream.Input{}, false, fmt.Errorf("invalid json: %w", err)
	}

	switch msg["type"] {
	case "pong":
		return stream.Input{}, false, nil
	case "raw", "prediction":
		if payload, ok := msg["payload"].(map[string]any); ok {
			msg = payload
		}
	}

	var in stream.Input
	var err error
	if in.T, err = lookup(msg, timeKeys); err != nil {
		return stream.Input{}, false, err
	}
	if in.BPM, err = lookup(msg, bpmKeys); err != nil {
		return stream.Input{}, false, err
	}
	if in.UC, err = lookup(msg, ucKeys); err != nil {
		return stream.Input{}, false, err
	}
	return in, true, nil
}

// lookup возвращает первое непустое значение среди псевдонимов поля
func lookup(msg map[string]any, keys []string) (*float64, error) {
	for _, key := range keys {
		raw, ok := msg[key]
		if !ok || raw == nil {
			continue
		}

		var v float64
		switch x := raw.(type) {
		case float64:
			v = x
		case string:
			if strings.TrimSpace(x) == "" {
				continue
			}
			parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			v = parsed
		default:
			return nil, fmt.Errorf("field %q: unsupported type %T", key, raw)
		}

		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil
		}
		return &v, nil
	}
	return nil, nil
}
