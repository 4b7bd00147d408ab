// Проигрывает запись КТГ из двух CSV (time_sec,value) в приемник по gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Krimson/ctg-stream/receiver/internal/logger"
	"github.com/Krimson/ctg-stream/receiver/internal/replay"
	"github.com/Krimson/ctg-stream/receiver/internal/server"
	"github.com/Krimson/ctg-stream/receiver/internal/stream"
)

func main() {
	var (
		fhrFile    = flag.String("fhr", "fhr.csv", "Файл с данными пульса плода")
		ucFile     = flag.String("uc", "uc.csv", "Файл с данными сокращений матки")
		serverAddr = flag.String("server", "localhost:50051", "Адрес gRPC сервера")
		caseID     = flag.String("case", "case-1", "ID случая")
		speed      = flag.Float64("speed", 1, "Скорость проигрывания; 0 - без пауз")
		logLevel   = flag.String("log-level", "info", "Уровень логирования")
	)
	flag.Parse()

	log, err := logger.New(*logLevel, "dev", "replay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	fhr, err := replay.ReadSeriesFile(*fhrFile)
	if err != nil {
		log.Fatal("failed to read FHR data", zap.Error(err))
	}
	uc, err := replay.ReadSeriesFile(*ucFile)
	if err != nil {
		log.Fatal("failed to read UC data", zap.Error(err))
	}
	samples := replay.Merge(fhr, uc)
	log.Info("records loaded",
		zap.Int("fhr", len(fhr)),
		zap.Int("uc", len(uc)),
		zap.Int("samples", len(samples)))

	client, err := server.Dial(*serverAddr, log)
	if err != nil {
		log.Fatal("failed to create gRPC client", zap.Error(err))
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := make(chan stream.Input, 100)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return replay.Play(gctx, samples, *speed, out)
	})

	var acked int64
	g.Go(func() error {
		var err error
		acked, err = client.PushSamples(gctx, *caseID, out)
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("replay stopped", zap.Error(err), zap.Int64("acked", acked))
		os.Exit(1)
	}
	log.Info("replay finished", zap.String("case_id", *caseID), zap.Int64("acked", acked))
}
