package classifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Krimson/ctg-stream/receiver/internal/features"
)

// ScoreMethod - полное имя unary метода классификатора.
// Запрос и ответ передаются как google.protobuf.Struct.
const ScoreMethod = "/ctg.v1.Classifier/Score"

// ClassifierServer - серверная сторона ctg.v1.Classifier
type ClassifierServer interface {
	Score(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ClassifierServiceDesc описывает сервис для grpc.Server
var ClassifierServiceDesc = grpc.ServiceDesc{
	ServiceName: "ctg.v1.Classifier",
	HandlerType: (*ClassifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Score",
			Handler:    scoreHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ctg/v1/classifier.proto",
}

func scoreHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClassifierServer).Score(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ScoreMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ClassifierServer).Score(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterClassifierServer регистрирует реализацию на сервере
func RegisterClassifierServer(s grpc.ServiceRegistrar, srv ClassifierServer) {
	s.RegisterService(&ClassifierServiceDesc, srv)
}

// GRPCClient вызывает классификатор по gRPC
type GRPCClient struct {
	conn   grpc.ClientConnInterface
	closer func() error
	logger *zap.Logger
}

// DialGRPC открывает соединение с классификатором по адресу addr
func DialGRPC(addr string, logger *zap.Logger) (*GRPCClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial classifier %s: %w", addr, err)
	}
	c := NewGRPCClient(conn, logger)
	c.closer = conn.Close
	return c, nil
}

// NewGRPCClient создает клиента поверх готового соединения
func NewGRPCClient(conn grpc.ClientConnInterface, logger *zap.Logger) *GRPCClient {
	return &GRPCClient{conn: conn, logger: logger.Named("classifier")}
}

// Score выполняет unary вызов ctg.v1.Classifier/Score
func (c *GRPCClient) Score(ctx context.Context, fv features.Vector, horizonMinutes int) (Result, error) {
	req, err := structpb.NewStruct(encodeRequest(fv, horizonMinutes))
	if err != nil {
		return Result{}, fmt.Errorf("encode classifier request: %w", err)
	}

	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ScoreMethod, req, resp); err != nil {
		return Result{}, fmt.Errorf("classifier rpc: %w", err)
	}
	return decodeResult(resp.AsMap(), fv)
}

// Close закрывает соединение, если клиент его открыл
func (c *GRPCClient) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// ScorerServer адаптирует произвольный Scorer к ClassifierServer
type ScorerServer struct {
	scorer Scorer
	logger *zap.Logger
}

// NewScorerServer создает адаптер
func NewScorerServer(scorer Scorer, logger *zap.Logger) *ScorerServer {
	return &ScorerServer{scorer: scorer, logger: logger.Named("classifier")}
}

// Score реализует ClassifierServer
func (s *ScorerServer) Score(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	m := req.AsMap()
	fm, _ := m["features"].(map[string]any)
	h, _ := m["H"].(float64)

	res, err := s.scorer.Score(ctx, features.FromMap(fm), int(h))
	if err != nil {
		s.logger.Error("score failed", zap.Error(err))
		return nil, status.Error(codes.Internal, err.Error())
	}

	out, err := structpb.NewStruct(encodeResult(res))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
