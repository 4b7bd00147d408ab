package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Krimson/ctg-stream/receiver/internal/features"
)

// HTTPConfig - параметры HTTP клиента классификатора
type HTTPConfig struct {
	URL         string
	Timeout     time.Duration // таймаут одной попытки
	MaxAttempts int           // общее число попыток, включая первую
	RetryWait   time.Duration // начальная пауза экспоненциальной задержки
}

// HTTPClient вызывает классификатор по HTTP (POST JSON) с ограниченным числом повторов.
// Повторяются только транспортные ошибки и ответы 5xx.
type HTTPClient struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

// NewHTTPClient создает HTTP клиента классификатора
func NewHTTPClient(cfg HTTPConfig, logger *zap.Logger) *HTTPClient {
	attempts := max(1, cfg.MaxAttempts)
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(attempts-1).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryWait*time.Duration(1<<min(attempts, 6))).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPClient{
		client: client,
		url:    cfg.URL,
		logger: logger.Named("classifier"),
	}
}

// Score отправляет вектор признаков и разбирает ответ
func (c *HTTPClient) Score(ctx context.Context, fv features.Vector, horizonMinutes int) (Result, error) {
	var body map[string]any
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(encodeRequest(fv, horizonMinutes)).
		SetResult(&body).
		Post(c.url)
	if err != nil {
		return Result{}, fmt.Errorf("classifier request: %w", err)
	}
	if resp.IsError() {
		c.logger.Warn("classifier returned error status",
			zap.Int("status_code", resp.StatusCode()),
			zap.Int("attempts", resp.Request.Attempt))
		return Result{}, fmt.Errorf("classifier returned status %d", resp.StatusCode())
	}
	if body == nil {
		// Ответ без JSON content-type не разбирается автоматически
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}
	return decodeResult(body, fv)
}

// HTTPHandler обслуживает тот же протокол поверх произвольного Scorer
// (используется заглушкой классификатора)
func HTTPHandler(scorer Scorer, logger *zap.Logger) http.Handler {
	logger = logger.Named("classifier")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Features map[string]any `json:"features"`
			H        int            `json:"H"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		res, err := scorer.Score(r.Context(), features.FromMap(req.Features), req.H)
		if err != nil {
			logger.Error("score failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(encodeResult(res)); err != nil {
			logger.Error("failed to encode response", zap.Error(err))
		}
	})
}
