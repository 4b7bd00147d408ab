package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
)

// RedisStore держит скользящее окно сэмплов и журнал предсказаний в списках Redis
type RedisStore struct {
	client    *redis.Client
	retention int
}

// NewRedisStore создает новый экземпляр RedisStore
func NewRedisStore(client *redis.Client, retention int) *RedisStore {
	if retention <= 0 {
		retention = DefaultSampleRetention
	}
	return &RedisStore{
		client:    client,
		retention: retention,
	}
}

// ===== Ключи Redis =====

func samplesKey(caseID string) string {
	return fmt.Sprintf("case:%s:samples", caseID)
}

func predictionsKey(caseID string) string {
	return fmt.Sprintf("case:%s:predictions", caseID)
}

// ===== Сэмплы =====

func (r *RedisStore) AppendSample(ctx context.Context, caseID string, s ctg.Sample) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	key := samplesKey(caseID)
	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-r.retention), -1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append sample: %w", err)
	}
	return nil
}

func (r *RedisStore) ReadLastSamples(ctx context.Context, caseID string, n int) (ctg.Window, error) {
	if n <= 0 {
		return ctg.Window{}, nil
	}
	data, err := r.client.LRange(ctx, samplesKey(caseID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}

	w := make(ctg.Window, 0, len(data))
	for _, item := range data {
		var s ctg.Sample
		if err := json.Unmarshal([]byte(item), &s); err != nil {
			continue // Пропускаем поврежденные записи
		}
		w = append(w, s)
	}
	return w, nil
}

// ===== Предсказания =====

func (r *RedisStore) SavePrediction(ctx context.Context, p *Prediction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}

	key := predictionsKey(p.CaseID)
	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -DefaultPredictionRetention, -1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}
	return nil
}

func (r *RedisStore) ReadLastPredictions(ctx context.Context, caseID string, n int) ([]Prediction, error) {
	if n <= 0 {
		return []Prediction{}, nil
	}
	data, err := r.client.LRange(ctx, predictionsKey(caseID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read predictions: %w", err)
	}

	preds := make([]Prediction, 0, len(data))
	for _, item := range data {
		var p Prediction
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			continue
		}
		preds = append(preds, p)
	}
	return preds, nil
}

// DeleteCase удаляет все ключи случая
func (r *RedisStore) DeleteCase(ctx context.Context, caseID string) error {
	pattern := fmt.Sprintf("case:%s:*", caseID)

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	pipe := r.client.Pipeline()

	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
