package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Krimson/ctg-stream/receiver/internal/features"
)

func vector(values map[string]float64) features.Vector {
	v := make(features.Vector)
	for _, name := range features.Names {
		v[name] = nil
	}
	for k, x := range values {
		x := x
		v[k] = &x
	}
	return v
}

func httpConfig(url string) HTTPConfig {
	return HTTPConfig{URL: url, Timeout: 2 * time.Second, MaxAttempts: 3, RetryWait: 5 * time.Millisecond}
}

func TestHTTPClient_Score(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"proba": 0.73, "label": 1, "features": {"baseline": 139}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(httpConfig(srv.URL), zap.NewNop())
	res, err := c.Score(context.Background(), vector(map[string]float64{"baseline": 139}), 15)

	require.NoError(t, err)
	assert.Equal(t, 0.73, res.Probability)
	assert.Equal(t, 1, res.Label)
	x, ok := res.Features.Get("baseline")
	require.True(t, ok)
	assert.Equal(t, 139.0, x)

	assert.Equal(t, 15.0, got["H"])
	fm, ok := got["features"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, fm, len(features.Names))
	assert.Nil(t, fm["stv"])
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"proba": 0.2, "label": 0}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(httpConfig(srv.URL), zap.NewNop())
	res, err := c.Score(context.Background(), vector(nil), 5)

	require.NoError(t, err)
	assert.Equal(t, 0.2, res.Probability)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_RetriesAreBounded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(httpConfig(srv.URL), zap.NewNop())
	_, err := c.Score(context.Background(), vector(nil), 5)

	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewHTTPClient(httpConfig(srv.URL), zap.NewNop())
	_, err := c.Score(context.Background(), vector(nil), 5)

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_MalformedResponse(t *testing.T) {
	bodies := []string{
		`{"proba": 1.7, "label": 1}`,
		`{"proba": 0.5, "label": 2}`,
		`{"label": 1}`,
		`{"proba": "high", "label": 1}`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(body))
			}))
			defer srv.Close()

			c := NewHTTPClient(httpConfig(srv.URL), zap.NewNop())
			_, err := c.Score(context.Background(), vector(nil), 5)
			assert.True(t, errors.Is(err, ErrMalformedResponse), "got %v", err)
		})
	}
}

func TestHTTPClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(httpConfig(srv.URL), zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Score(ctx, vector(nil), 5)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHTTPHandler_ServesLogistic(t *testing.T) {
	srv := httptest.NewServer(HTTPHandler(DefaultLogistic(), zap.NewNop()))
	defer srv.Close()

	c := NewHTTPClient(httpConfig(srv.URL), zap.NewNop())
	fv := vector(map[string]float64{"evt_decel_late": 3, "evt_low_var_ratio": 1})
	res, err := c.Score(context.Background(), fv, 10)
	require.NoError(t, err)

	want, err := DefaultLogistic().Score(context.Background(), fv, 10)
	require.NoError(t, err)
	assert.InDelta(t, want.Probability, res.Probability, 1e-12)
	assert.Equal(t, want.Label, res.Label)
}

func dialBufconn(t *testing.T, srv ClassifierServer) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterClassifierServer(s, srv)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewGRPCClient(conn, zap.NewNop())
}

func TestGRPCClient_ScoreRoundTrip(t *testing.T) {
	c := dialBufconn(t, NewScorerServer(DefaultLogistic(), zap.NewNop()))

	fv := vector(map[string]float64{"evt_decel_prolonged": 2, "evt_brady_ratio": 0.5})
	res, err := c.Score(context.Background(), fv, 30)
	require.NoError(t, err)

	want, err := DefaultLogistic().Score(context.Background(), fv, 30)
	require.NoError(t, err)
	assert.InDelta(t, want.Probability, res.Probability, 1e-12)
	assert.Equal(t, want.Label, res.Label)

	x, ok := res.Features.Get("evt_brady_ratio")
	require.True(t, ok)
	assert.Equal(t, 0.5, x)
	_, ok = res.Features.Get("stv")
	assert.False(t, ok)
}

type failingScorer struct{}

func (failingScorer) Score(context.Context, features.Vector, int) (Result, error) {
	return Result{}, errors.New("model not loaded")
}

func TestGRPCClient_ServerError(t *testing.T) {
	c := dialBufconn(t, NewScorerServer(failingScorer{}, zap.NewNop()))
	_, err := c.Score(context.Background(), vector(nil), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestLogistic(t *testing.T) {
	m := DefaultLogistic()

	calm, err := m.Score(context.Background(), vector(map[string]float64{"evt_accel_total": 3, "stv": 2}), 5)
	require.NoError(t, err)
	assert.Less(t, calm.Probability, 0.1)
	assert.Equal(t, 0, calm.Label)

	risky, err := m.Score(context.Background(), vector(map[string]float64{
		"evt_decel_late":    3,
		"evt_low_var_ratio": 1,
		"evt_brady_ratio":   0.6,
	}), 5)
	require.NoError(t, err)
	assert.Greater(t, risky.Probability, 0.5)
	assert.Equal(t, 1, risky.Label)

	longer, err := m.Score(context.Background(), vector(nil), 60)
	require.NoError(t, err)
	shorter, err := m.Score(context.Background(), vector(nil), 1)
	require.NoError(t, err)
	assert.Greater(t, longer.Probability, shorter.Probability)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Score(ctx, vector(nil), 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLogistic_SumOrderIsStable(t *testing.T) {
	// При сложении в порядке a, b, c единица теряется на 1e16
	m := &Logistic{
		Weights:   map[string]float64{"a": 1e16, "b": 1, "c": -1e16},
		Threshold: 0.5,
	}
	fv := vector(map[string]float64{"a": 1, "b": 1, "c": 1})

	for i := 0; i < 100; i++ {
		res, err := m.Score(context.Background(), fv, 1)
		require.NoError(t, err)
		require.Equal(t, 0.5, res.Probability)
	}
}
