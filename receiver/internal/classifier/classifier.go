// Package classifier содержит клиентов внешнего классификатора риска
// и локальную модель-заглушку.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Krimson/ctg-stream/receiver/internal/features"
)

// ErrMalformedResponse возвращается, если ответ классификатора не проходит проверку
var ErrMalformedResponse = errors.New("malformed classifier response")

// Result - ответ классификатора для одного окна
type Result struct {
	Probability float64
	Label       int
	// Features повторяет (или дополняет) входной вектор для сохранения и аудита
	Features features.Vector
}

// Scorer оценивает вектор признаков на заданном горизонте прогноза (минуты)
type Scorer interface {
	Score(ctx context.Context, fv features.Vector, horizonMinutes int) (Result, error)
}

// validate проверяет диапазоны вероятности и метки
func validate(r Result) error {
	if math.IsNaN(r.Probability) || r.Probability < 0 || r.Probability > 1 {
		return fmt.Errorf("%w: probability %v outside [0, 1]", ErrMalformedResponse, r.Probability)
	}
	if r.Label != 0 && r.Label != 1 {
		return fmt.Errorf("%w: label %d is not 0/1", ErrMalformedResponse, r.Label)
	}
	return nil
}

// decodeResult разбирает обобщенный ответ {"proba", "label", "features"},
// одинаковый для HTTP и gRPC транспорта.
func decodeResult(m map[string]any, input features.Vector) (Result, error) {
	proba, ok := m["proba"].(float64)
	if !ok {
		return Result{}, fmt.Errorf("%w: missing numeric proba", ErrMalformedResponse)
	}
	label, ok := m["label"].(float64)
	if !ok || label != math.Trunc(label) {
		return Result{}, fmt.Errorf("%w: missing integer label", ErrMalformedResponse)
	}

	res := Result{Probability: proba, Label: int(label), Features: input}
	if echo, ok := m["features"].(map[string]any); ok && len(echo) > 0 {
		res.Features = features.FromMap(echo)
	}
	if err := validate(res); err != nil {
		return Result{}, err
	}
	return res, nil
}

// encodeRequest строит тело запроса {"features": {...}, "H": h}
func encodeRequest(fv features.Vector, horizonMinutes int) map[string]any {
	return map[string]any{
		"features": fv.AsMap(),
		"H":        horizonMinutes,
	}
}

// encodeResult - обратное к decodeResult, используется серверными адаптерами
func encodeResult(r Result) map[string]any {
	out := map[string]any{
		"proba": r.Probability,
		"label": r.Label,
	}
	if r.Features != nil {
		out["features"] = r.Features.AsMap()
	}
	return out
}
