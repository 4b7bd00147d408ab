package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Krimson/ctg-stream/receiver/internal/stream"
)

// Client отправляет сэмплы в IngestService
type Client struct {
	conn   grpc.ClientConnInterface
	closer func() error
	logger *zap.Logger
}

// Dial подключается к приемнику по адресу
func Dial(addr string, logger *zap.Logger) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server: %w", err)
	}
	c := NewClient(conn, logger)
	c.closer = conn.Close
	return c, nil
}

func NewClient(conn grpc.ClientConnInterface, logger *zap.Logger) *Client {
	return &Client{conn: conn, logger: logger.Named("ingest-client")}
}

// PushSamples отправляет сэмплы случая, пока канал не закроется.
// Возвращает последнее подтвержденное сервером число сэмплов.
func (c *Client) PushSamples(ctx context.Context, caseID string, samples <-chan stream.Input) (int64, error) {
	st, err := OpenPushSamples(ctx, c.conn)
	if err != nil {
		return 0, fmt.Errorf("failed to create stream: %w", err)
	}

	var acked atomic.Int64
	recvDone := make(chan error, 1)
	go func() {
		recvDone <- c.receiveAcks(st, caseID, &acked)
	}()

	sendErr := c.send(ctx, st, caseID, samples)
	if sendErr == nil {
		sendErr = st.CloseSend()
	}
	if sendErr != nil {
		return acked.Load(), sendErr
	}

	// Сервер закрывает поток после последнего ack
	if err := <-recvDone; err != nil {
		return acked.Load(), err
	}
	return acked.Load(), nil
}

func (c *Client) send(ctx context.Context, st PushSamplesClientStream, caseID string, samples <-chan stream.Input) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-samples:
			if !ok {
				return nil
			}
			if err := st.Send(encodeSample(caseID, in)); err != nil {
				return fmt.Errorf("failed to send sample: %w", err)
			}
		}
	}
}

func (c *Client) receiveAcks(st PushSamplesClientStream, caseID string, acked *atomic.Int64) error {
	for {
		ack, err := st.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to receive ack: %w", err)
		}

		fields := ack.GetFields()
		if fields["case_id"].GetStringValue() != caseID {
			continue
		}
		n := int64(fields["received"].GetNumberValue())
		acked.Store(n)
		c.logger.Debug("received ack", zap.String("case_id", caseID), zap.Int64("received", n))
	}
}

func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// encodeSample - обратное к decodeSample; пропуски передаются как null
func encodeSample(caseID string, in stream.Input) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"case_id": structpb.NewStringValue(caseID),
		"t":       numberValue(in.T),
		"bpm":     numberValue(in.BPM),
		"uc":      numberValue(in.UC),
	}}
}

func numberValue(v *float64) *structpb.Value {
	if v == nil {
		return structpb.NewNullValue()
	}
	return structpb.NewNumberValue(*v)
}
