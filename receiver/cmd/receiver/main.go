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

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Krimson/ctg-stream/receiver/internal/batch"
	"github.com/Krimson/ctg-stream/receiver/internal/classifier"
	"github.com/Krimson/ctg-stream/receiver/internal/config"
	"github.com/Krimson/ctg-stream/receiver/internal/fanout"
	"github.com/Krimson/ctg-stream/receiver/internal/health"
	"github.com/Krimson/ctg-stream/receiver/internal/logger"
	"github.com/Krimson/ctg-stream/receiver/internal/server"
	"github.com/Krimson/ctg-stream/receiver/internal/session"
	"github.com/Krimson/ctg-stream/receiver/internal/simulate"
	"github.com/Krimson/ctg-stream/receiver/internal/storage"
	"github.com/Krimson/ctg-stream/receiver/internal/stream"
	"github.com/Krimson/ctg-stream/receiver/internal/websocket"

	_ "github.com/Krimson/ctg-stream/receiver/docs" // Swagger docs
)

const (
	ingestServiceName = "ctg.v1.IngestService"
	shutdownTimeout   = 30 * time.Second
	connectTimeout    = 10 * time.Second
)

// @title CTG Stream Receiver API
// @version 1.0
// @description Потоковая оценка КТГ: прием сэмплов, оценка окна и тревоги по случаям.

// @contact.name API Support
// @contact.email support@fetalmonitory.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.Environment, "receiver")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	log.Info("configuration loaded",
		zap.String("grpc_port", cfg.GRPCPort),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("storage", cfg.StorageBackend),
		zap.String("classifier", cfg.Classifier),
		zap.Float64("window_s", cfg.Params.WindowS),
		zap.Float64("stride_s", cfg.StrideS))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("receiver stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("receiver stopped")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close storage", zap.Error(err))
		}
	}()

	scorer, closeScorer, err := openClassifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeScorer()

	rooms := fanout.NewHub(log)

	orch, err := stream.New(cfg.StreamConfig(), store, scorer, rooms, log)
	if err != nil {
		return err
	}
	defer orch.Close()

	simCfg := simulate.DefaultConfig()
	simCfg.Seed = cfg.SimSeed
	sim := simulate.NewManager(orch, simCfg, log)
	defer sim.StopAll()

	healthServer := health.NewHealthServer(map[string]health.Pinger{"storage": store}, log)

	// HTTP: API управления, websocket, health, swagger
	router := mux.NewRouter()
	session.NewHTTPHandler(orch, store, sim, log).RegisterRoutes(router)
	router.Handle("/ws/case/{id}", websocket.NewHandler(rooms, orch, websocket.Config{
		SendBuffer: cfg.WSSendBuffer,
		Defaults:   stream.Options{StrideS: cfg.StrideS, HorizonMinutes: cfg.HorizonMinutes},
	}, log))
	router.HandleFunc("/healthz", healthServer.Liveness).Methods("GET")
	router.HandleFunc("/readyz", healthServer.Readiness).Methods("GET")
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           enableCORS(router),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// gRPC: прием сэмплов и health
	grpcServer := grpc.NewServer()
	server.RegisterIngestServer(grpcServer, server.NewDataServer(orch, cfg.AckEveryN, log))
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	address := ":" + cfg.GRPCPort
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	healthServer.SetServingStatus("")
	healthServer.SetServingStatus(ingestServiceName)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("gRPC server listening", zap.String("address", address))
		if err := grpcServer.Serve(listener); err != nil {
			return fmt.Errorf("gRPC server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown")

		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			log.Warn("graceful shutdown timeout, forcing stop")
			grpcServer.Stop()
		}

		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore создает хранилище по STORAGE_BACKEND
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.StorageRedis:
		return openRedis(ctx, cfg)

	case config.StoragePostgres:
		return openPostgres(ctx, cfg)

	case config.StorageTiered:
		cache, err := openRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		durable, err := openPostgres(ctx, cfg)
		if err != nil {
			cache.Close()
			return nil, err
		}
		return storage.NewTiered(cache, batch.NewArchive(durable, cfg.ArchiveConfig(), log), log), nil

	default:
		log.Info("using in-memory storage", zap.Int("retention", cfg.SampleRetention))
		return storage.NewMemoryStore(cfg.SampleRetention), nil
	}
}

func openRedis(ctx context.Context, cfg *config.Config) (*storage.RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", cfg.RedisAddr, err)
	}
	return storage.NewRedisStore(client, cfg.SampleRetention), nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*storage.PostgresRepository, error) {
	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	repo, err := storage.NewPostgresRepositoryFromDSN(connCtx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := repo.EnsureSchema(connCtx); err != nil {
		repo.Close()
		return nil, err
	}
	return repo, nil
}

// openClassifier создает клиента классификатора по CLASSIFIER
func openClassifier(cfg *config.Config, log *zap.Logger) (classifier.Scorer, func(), error) {
	switch cfg.Classifier {
	case config.ClassifierHTTP:
		log.Info("using HTTP classifier", zap.String("url", cfg.MLURL))
		return classifier.NewHTTPClient(classifier.HTTPConfig{
			URL:         cfg.MLURL,
			Timeout:     cfg.MLTimeout,
			MaxAttempts: cfg.MLMaxAttempts,
			RetryWait:   cfg.MLRetryWait,
		}, log), func() {}, nil

	case config.ClassifierGRPC:
		client, err := classifier.DialGRPC(cfg.MLGRPCAddr, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using gRPC classifier", zap.String("address", cfg.MLGRPCAddr))
		return client, func() {
			if err := client.Close(); err != nil {
				log.Warn("failed to close classifier connection", zap.Error(err))
			}
		}, nil

	default:
		log.Info("using local logistic classifier")
		return classifier.DefaultLogistic(), func() {}, nil
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			return
		}

		next.ServeHTTP(w, r)
	})
}
