package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/driftroom/driftroom/pkg/auth"
	"github.com/driftroom/driftroom/pkg/config"
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

	authority := auth.NewAuthority(cfg.JWTSecret)

	hub := NewHub(cfg.KafkaBrokers, cfg.KafkaTopic, st, logger)
	go hub.Run()
	go hub.Consume(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, authority, w, r)
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, "degraded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	logger.Info().Str("addr", cfg.GatewayAddr).Msg("starting gateway service")
	if err := http.ListenAndServe(cfg.GatewayAddr, mux); err != nil {
		logger.Fatal().Err(err).Msg("gateway failed")
	}
}
