// Package main runs the bounty ledger HTTP facade: it maps REST requests
// onto ledger transactions against the deployed submission, verification,
// and bounty contracts.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zealotjin/blockchain-poc/internal/chain"
	"github.com/zealotjin/blockchain-poc/internal/config"
	"github.com/zealotjin/blockchain-poc/internal/httpapi"
	"github.com/zealotjin/blockchain-poc/internal/logging"
	"github.com/zealotjin/blockchain-poc/internal/middleware"
	"github.com/zealotjin/blockchain-poc/internal/operations"
)

func main() {
	logger := logging.New()
	log := logger.Component("server")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration invalid, refusing to start")
	}

	deployment, err := chain.LoadDeployment(cfg.DeploymentsFile)
	if err != nil {
		log.WithError(err).Fatal("deployment addresses unavailable")
	}
	contracts, err := chain.NewContracts(deployment)
	if err != nil {
		log.WithError(err).Fatal("contract bindings invalid")
	}

	client, err := chain.Dial(cfg.RPCURL, chain.Config{
		PrivateKeyHex: cfg.PrivateKey,
		ChainID:       cfg.ChainID,
		Network:       cfg.Network,
		Contracts:     contracts,
	})
	if err != nil {
		log.WithError(err).Fatal("gateway setup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.VerifyChainID(ctx); err != nil {
		// The endpoint may simply be down right now; health reports it.
		log.WithError(err).Warn("chain id check failed at startup")
	}

	seq := chain.NewSequencer(client, chain.SequencerConfig{
		ConfirmTimeout: cfg.ConfirmTimeout,
		PollInterval:   cfg.PollInterval,
	})
	if err := seq.SyncNonce(ctx); err != nil {
		log.WithError(err).Warn("nonce sync deferred to first transaction")
	}

	ops := operations.New(client, seq, logger.Component("operations"))

	router := httpapi.NewHandler(ops)
	router.Use(
		middleware.Tracing(logger),
		middleware.Metrics(),
		middleware.NewCORS(cfg.AllowedOrigins).Handler(),
		middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst).Handler(),
	)

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.ListenAddr()).
			WithField("network", cfg.Network).
			WithField("account", client.Account().Hex()).
			Info("facade listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown incomplete")
		os.Exit(1)
	}
}
