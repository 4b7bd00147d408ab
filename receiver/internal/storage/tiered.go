package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
)

// Tiered пишет в кэш (окно для оценки) и в долговременное хранилище,
// окна читает из кэша, историю предсказаний - из долговременного хранилища.
type Tiered struct {
	cache   Store
	durable Store
	logger  *zap.Logger
}

// NewTiered создает двухуровневое хранилище
func NewTiered(cache, durable Store, logger *zap.Logger) *Tiered {
	return &Tiered{
		cache:   cache,
		durable: durable,
		logger:  logger.Named("storage"),
	}
}

func (t *Tiered) AppendSample(ctx context.Context, caseID string, s ctg.Sample) error {
	if err := t.cache.AppendSample(ctx, caseID, s); err != nil {
		return err
	}
	if err := t.durable.AppendSample(ctx, caseID, s); err != nil {
		// Окно в кэше уже обновлено, оценка продолжит работать
		t.logger.Warn("durable sample write failed", zap.String("case_id", caseID), zap.Error(err))
		return err
	}
	return nil
}

func (t *Tiered) ReadLastSamples(ctx context.Context, caseID string, n int) (ctg.Window, error) {
	return t.cache.ReadLastSamples(ctx, caseID, n)
}

func (t *Tiered) SavePrediction(ctx context.Context, p *Prediction) error {
	cacheErr := t.cache.SavePrediction(ctx, p)
	if cacheErr != nil {
		t.logger.Warn("cache prediction write failed", zap.String("case_id", p.CaseID), zap.Error(cacheErr))
	}
	return errors.Join(cacheErr, t.durable.SavePrediction(ctx, p))
}

func (t *Tiered) ReadLastPredictions(ctx context.Context, caseID string, n int) ([]Prediction, error) {
	return t.durable.ReadLastPredictions(ctx, caseID, n)
}

func (t *Tiered) Ping(ctx context.Context) error {
	return errors.Join(t.cache.Ping(ctx), t.durable.Ping(ctx))
}

func (t *Tiered) Close() error {
	return errors.Join(t.cache.Close(), t.durable.Close())
}
