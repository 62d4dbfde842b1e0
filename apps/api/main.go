package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftroom/driftroom/pkg/auth"
	"github.com/driftroom/driftroom/pkg/config"
	"github.com/driftroom/driftroom/pkg/fanout"
	"github.com/driftroom/driftroom/pkg/store"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	st, err := store.New(ctx, cfg.RedisAddr, cfg.RoomTTL, cfg.NodeID)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer st.Close()
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	publisher := fanout.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()

	h := NewHandler(st, publisher, auth.NewAuthority(cfg.JWTSecret), logger)
	router := NewRouter(logger, h)

	srv := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.APIAddr).
			Dur("room_ttl", cfg.RoomTTL).
			Msg("starting api service")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down api service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
