package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Krimson/ctg-stream/receiver/internal/stream"
)

var errInvalidSample = errors.New("invalid sample")

// Ingestor принимает сэмплы случая
type Ingestor interface {
	Ingest(ctx context.Context, caseID string, in stream.Input) error
}

// DataServer реализует IngestServer
type DataServer struct {
	ingest    Ingestor
	ackEveryN int
	logger    *zap.Logger

	stats struct {
		mu       sync.RWMutex
		received int64
		dropped  int64
		acks     int64
	}
}

// NewDataServer создает новый экземпляр DataServer
func NewDataServer(ingest Ingestor, ackEveryN int, logger *zap.Logger) *DataServer {
	if ackEveryN <= 0 {
		ackEveryN = 1
	}
	return &DataServer{
		ingest:    ingest,
		ackEveryN: ackEveryN,
		logger:    logger.Named("grpc"),
	}
}

// PushSamples обрабатывает стрим сэмплов от клиента.
// Каждые ackEveryN принятых сэмплов клиент получает {case_id, received}.
func (s *DataServer) PushSamples(srv PushSamplesServerStream) error {
	s.logger.Info("PushSamples stream started")

	ctx := srv.Context()
	var total int64
	perCase := make(map[string]int64)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("PushSamples stream context cancelled")
			return ctx.Err()

		default:
			msg, err := srv.Recv()
			if err != nil {
				if err == io.EOF {
					s.logger.Info("PushSamples stream finished normally", zap.Int64("received", total))
					return nil
				}
				s.logger.Warn("failed to receive sample", zap.Error(err))
				return err
			}

			caseID, in, err := decodeSample(msg)
			if err != nil {
				s.incrementDropped()
				s.logger.Debug("invalid sample dropped", zap.Error(err))
				// Не возвращаем ошибку, продолжаем обработку
				continue
			}

			if err := s.ingest.Ingest(ctx, caseID, in); err != nil {
				s.logger.Warn("failed to ingest sample", zap.String("case_id", caseID), zap.Error(err))
			}
			s.incrementReceived()
			total++
			perCase[caseID]++

			// Отправляем Ack каждые ackEveryN сэмплов
			if total%int64(s.ackEveryN) == 0 {
				ack, _ := structpb.NewStruct(map[string]any{
					"case_id":  caseID,
					"received": perCase[caseID],
				})
				if err := srv.Send(ack); err != nil {
					s.logger.Warn("failed to send ack", zap.String("case_id", caseID), zap.Error(err))
					return err
				}
				s.incrementAcks()
			}
		}
	}
}

// decodeSample проверяет сообщение {case_id, t, bpm, uc}
func decodeSample(msg *structpb.Struct) (string, stream.Input, error) {
	fields := msg.GetFields()

	var caseID string
	switch v := fields["case_id"].GetKind().(type) {
	case *structpb.Value_StringValue:
		caseID = v.StringValue
	case *structpb.Value_NumberValue:
		if v.NumberValue == math.Trunc(v.NumberValue) && !math.IsInf(v.NumberValue, 0) {
			caseID = strconv.FormatInt(int64(v.NumberValue), 10)
		}
	}
	if caseID == "" {
		return "", stream.Input{}, fmt.Errorf("%w: missing case_id", errInvalidSample)
	}

	var in stream.Input
	var err error
	if in.T, err = numberField(fields, "t"); err != nil {
		return "", stream.Input{}, err
	}
	if in.BPM, err = numberField(fields, "bpm"); err != nil {
		return "", stream.Input{}, err
	}
	if in.UC, err = numberField(fields, "uc"); err != nil {
		return "", stream.Input{}, err
	}
	return caseID, in, nil
}

// numberField возвращает nil для отсутствующего или null поля
func numberField(fields map[string]*structpb.Value, key string) (*float64, error) {
	v, ok := fields[key]
	if !ok {
		return nil, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_NumberValue:
		x := k.NumberValue
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %s is not finite", errInvalidSample, key)
		}
		return &x, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a number", errInvalidSample, key)
	}
}

// Методы для работы со статистикой
func (s *DataServer) incrementReceived() {
	s.stats.mu.Lock()
	s.stats.received++
	s.stats.mu.Unlock()
}

func (s *DataServer) incrementDropped() {
	s.stats.mu.Lock()
	s.stats.dropped++
	s.stats.mu.Unlock()
}

func (s *DataServer) incrementAcks() {
	s.stats.mu.Lock()
	s.stats.acks++
	s.stats.mu.Unlock()
}

// GetStats возвращает счетчики по всем потокам
func (s *DataServer) GetStats() (received, dropped, acks int64) {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()

	return s.stats.received, s.stats.dropped, s.stats.acks
}
