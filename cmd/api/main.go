package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shoplane/marketplace-orders/internal/catalog"
	"github.com/shoplane/marketplace-orders/internal/config"
	"github.com/shoplane/marketplace-orders/internal/fulfillment"
	"github.com/shoplane/marketplace-orders/internal/httpx"
	kafkax "github.com/shoplane/marketplace-orders/internal/kafka"
	"github.com/shoplane/marketplace-orders/internal/orders"
	"github.com/shoplane/marketplace-orders/internal/postgres"
	"github.com/shoplane/marketplace-orders/internal/redisx"
	"github.com/shoplane/marketplace-orders/internal/sellers"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for order lifecycle events
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024)
	prod.Start(ctx)

	// Repos, engine & handler
	repo := &orders.Repo{DB: db}
	engine := fulfillment.NewEngine(repo, &catalog.Ledger{DB: db}, &sellers.Repo{DB: db})

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Store:    repo,
		Engine:   engine,
		Producer: prod,
		Redis:    rdb,
		Service:  cfg.ServiceName,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // close inbox -> flush & close writer
	prod.WaitClosed() // drain
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
}
