package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shoplane/marketplace-orders/internal/config"
	kafkax "github.com/shoplane/marketplace-orders/internal/kafka"
	"github.com/shoplane/marketplace-orders/internal/notifier"
	"github.com/shoplane/marketplace-orders/internal/orders"
	"github.com/shoplane/marketplace-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	var mailer notifier.Mailer = notifier.LogMailer{}
	if cfg.SMTPAddr != "" {
		mailer = &notifier.SMTPMailer{Addr: cfg.SMTPAddr, From: cfg.SMTPFrom}
	}

	svc := &notifier.Service{
		Redis:       rdb,
		Mailer:      mailer,
		ServiceName: cfg.ServiceName + "-notifier",
	}

	group := getenv("NOTIFIER_GROUP", "notifier-svc")
	workers := mustAtoi(os.Getenv("NOTIFIER_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderEvents, workers)

	go func() {
		log.Info().Str("group", group).Str("topic", orders.TopicOrderEvents).
			Int("workers", workers).Msg("notifier consumer started")
		if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
