package main

import (
	"context"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/tmarchetti/gridpay/internal/api"
	"github.com/tmarchetti/gridpay/internal/assets"
	"github.com/tmarchetti/gridpay/internal/config"
	"github.com/tmarchetti/gridpay/internal/coordinator"
	"github.com/tmarchetti/gridpay/internal/domain"
	"github.com/tmarchetti/gridpay/internal/registry"
	"github.com/tmarchetti/gridpay/internal/store"
	"github.com/tmarchetti/gridpay/pkg/ledgerclient"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "gridpay").Logger()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	if cfg.Environment == "development" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	repo, err := store.NewPostgresRepository(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer repo.Close()

	// Initialize Layers
	reg := registry.New(repo, log)
	processor := coordinator.NewProcessor(reg, repo, log)
	ledger := ledgerclient.NewClient(cfg.LedgerAPIBaseURL, cfg.LedgerAPIKey)
	callbacks := domain.NewCallbackURIs(cfg.CallbackBaseURL)
	handler := api.NewHandler(reg, processor, repo, assets.LogCallback{Log: log}, ledger, callbacks, log)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler).Methods("GET")
	handler.RegisterRoutes(r)

	log.Info().Str("port", cfg.ServerPort).Msg("server starting")
	if err := http.ListenAndServe(":"+cfg.ServerPort, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
