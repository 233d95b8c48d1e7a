// Package main runs the standalone event watcher: it polls the ledger for
// newly emitted contract events and renders them. Observational only; it
// shares nothing with the facade beyond the RPC endpoint.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/zealotjin/blockchain-poc/internal/chain"
	"github.com/zealotjin/blockchain-poc/internal/config"
	"github.com/zealotjin/blockchain-poc/internal/logging"
)

func main() {
	logger := logging.New()
	log := logger.Component("eventwatcher")

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

	backend, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		log.WithError(err).Fatal("dial failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher := chain.NewWatcher(backend, contracts, cfg.PollInterval, log)
	if err := watcher.Run(ctx); err != nil {
		log.WithError(err).Fatal("watcher failed")
	}
}
