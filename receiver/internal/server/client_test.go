package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Krimson/ctg-stream/receiver/internal/ctg"
	"github.com/Krimson/ctg-stream/receiver/internal/stream"
)

func TestClient_PushSamples(t *testing.T) {
	ingest := &TestIngestor{}
	conn := dialIngest(t, NewDataServer(ingest, 2, zap.NewNop()))
	client := NewClient(conn, zap.NewNop())
	defer client.Close()

	samples := make(chan stream.Input, 5)
	for i := 0; i < 5; i++ {
		in := stream.Input{T: ctg.Float(float64(i)), BPM: ctg.Float(140)}
		if i == 3 {
			in.BPM = nil
		}
		samples <- in
	}
	close(samples)

	acked, err := client.PushSamples(context.Background(), "case-7", samples)
	require.NoError(t, err)
	assert.EqualValues(t, 4, acked)

	got := ingest.all()
	require.Len(t, got, 5)
	assert.Equal(t, "case-7", got[0].caseID)
	assert.Equal(t, 4.0, *got[4].in.T)
	assert.Nil(t, got[3].in.BPM)
	assert.Nil(t, got[3].in.UC)
}

func TestClient_ContextCancelled(t *testing.T) {
	conn := dialIngest(t, NewDataServer(&TestIngestor{}, 1, zap.NewNop()))
	client := NewClient(conn, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.PushSamples(ctx, "case-7", make(chan stream.Input))
	require.Error(t, err)
}

func TestEncodeSampleRoundTrip(t *testing.T) {
	in := stream.Input{T: ctg.Float(1.5), UC: ctg.Float(20)}

	caseID, out, err := decodeSample(encodeSample("c", in))
	require.NoError(t, err)
	assert.Equal(t, "c", caseID)
	assert.Equal(t, 1.5, *out.T)
	assert.Nil(t, out.BPM)
	assert.Equal(t, 20.0, *out.UC)
}
