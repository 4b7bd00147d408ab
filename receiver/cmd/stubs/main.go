// Заглушка внешнего классификатора: локальная логистическая модель,
// доступная по HTTP (POST /score) и gRPC (ctg.v1.Classifier/Score).
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/Krimson/ctg-stream/receiver/internal/classifier"
	"github.com/Krimson/ctg-stream/receiver/internal/config"
	"github.com/Krimson/ctg-stream/receiver/internal/logger"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.Environment, "classifier-stub")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	grpcAddr := ":" + envOr("STUB_GRPC_PORT", "50053")
	httpAddr := ":" + envOr("STUB_HTTP_PORT", "8090")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	model := classifier.DefaultLogistic()

	grpcServer := grpc.NewServer()
	classifier.RegisterClassifierServer(grpcServer, classifier.NewScorerServer(model, log))
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatal("failed to listen", zap.String("address", grpcAddr), zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/score", classifier.HTTPHandler(model, log))
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("classifier stub gRPC listening", zap.String("address", grpcAddr))
		return grpcServer.Serve(listener)
	})
	g.Go(func() error {
		log.Info("classifier stub HTTP listening", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		grpcServer.GracefulStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("classifier stub stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("classifier stub stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
