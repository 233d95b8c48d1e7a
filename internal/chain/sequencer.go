package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/zealotjin/blockchain-poc/internal/metrics"
)

// DefaultConfirmTimeout bounds the wait for a broadcast transaction to be
// included in a block.
const DefaultConfirmTimeout = 2 * time.Minute

// DefaultReceiptPollInterval is the interval for polling receipt availability.
const DefaultReceiptPollInterval = 2 * time.Second

// Sequencer owns the signing account's nonce. All state-changing calls go
// through SignAndSend, which serializes nonce allocation through broadcast;
// the confirmation wait happens outside the critical section so queued
// writes can claim the next slot while an earlier one is still pending.
type Sequencer struct {
	client *Client

	mu        sync.Mutex
	nextNonce uint64
	synced    bool

	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// SequencerConfig holds optional sequencer tuning. Zero values take the
// package defaults.
type SequencerConfig struct {
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// NewSequencer creates a sequencer for the gateway's signing account. The
// nonce is synchronized from the ledger on first use rather than trusted
// across restarts.
func NewSequencer(client *Client, cfg SequencerConfig) *Sequencer {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultReceiptPollInterval
	}
	return &Sequencer{
		client:         client,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
	}
}

// SyncNonce re-reads the account's pending nonce from the ledger.
func (s *Sequencer) SyncNonce(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncNonceLocked(ctx)
}

func (s *Sequencer) syncNonceLocked(ctx context.Context) error {
	nonce, err := s.client.backend.PendingNonceAt(ctx, s.client.account)
	if err != nil {
		return classifyRPC("getTransactionCount", err)
	}
	s.nextNonce = nonce
	s.synced = true
	metrics.SetAccountNonce(nonce)
	return nil
}

// SignAndSend builds, signs, broadcasts, and confirms one state-changing
// transaction. The envelope is signed with the held private key; the key is
// never logged or returned. On rejection at broadcast the local nonce is
// discarded and re-read from the ledger on the next call. There is no
// automatic retry: a rejected or timed-out transaction is surfaced to the
// caller.
func (s *Sequencer) SignAndSend(ctx context.Context, contract *Contract, method string, gasLimit uint64, args ...interface{}) (*types.Receipt, error) {
	signed, err := s.broadcast(ctx, contract, method, gasLimit, args...)
	if err != nil {
		metrics.RecordTransaction(contract.Name, method, "broadcast_failed")
		return nil, err
	}

	receipt, err := s.waitConfirmed(ctx, signed)
	if err != nil {
		var te *TimeoutError
		if errors.As(err, &te) {
			metrics.RecordTransaction(contract.Name, method, "timeout")
		} else {
			metrics.RecordTransaction(contract.Name, method, "rejected")
		}
		return nil, err
	}

	metrics.RecordTransaction(contract.Name, method, "confirmed")
	return receipt, nil
}

// broadcast holds the nonce lock from allocation through the send call, so
// concurrent writes can never claim the same sequence slot.
func (s *Sequencer) broadcast(ctx context.Context, contract *Contract, method string, gasLimit uint64, args ...interface{}) (*types.Transaction, error) {
	data, err := contract.ABI.Pack(method, args...)
	if err != nil {
		return nil, &DecodeError{What: fmt.Sprintf("%s.%s arguments", contract.Name, method), Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.synced {
		if err := s.syncNonceLocked(ctx); err != nil {
			return nil, err
		}
	}

	gasPrice, err := s.client.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classifyRPC("gasPrice", err)
	}

	nonce := s.nextNonce
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract.Address,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.client.chainID), s.client.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	if err := s.client.backend.SendTransaction(ctx, signed); err != nil {
		// The slot may or may not have been consumed; resync before the
		// next write rather than trusting local state.
		s.synced = false
		return nil, classifyRPC(fmt.Sprintf("send %s.%s", contract.Name, method), err)
	}

	s.nextNonce = nonce + 1
	metrics.SetAccountNonce(s.nextNonce)
	return signed, nil
}

// waitConfirmed polls for the receipt until it is available or the bounded
// wait expires. Runs outside the nonce lock. A timeout does not mean the
// transaction failed: it was broadcast and may still land, so callers must
// re-check ledger state before reissuing the intent.
func (s *Sequencer) waitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveConfirmWait(time.Since(start))
	}()

	wctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.backend.TransactionReceipt(wctx, tx.Hash())
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return nil, &RejectedError{
					Reason: "execution reverted",
					TxHash: tx.Hash().Hex(),
				}
			}
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			// Not yet included; keep polling.
		case errors.Is(wctx.Err(), context.DeadlineExceeded):
			return nil, &TimeoutError{TxHash: tx.Hash().Hex(), Wait: s.confirmTimeout}
		default:
			return nil, classifyRPC("getTransactionReceipt", err)
		}

		select {
		case <-wctx.Done():
			if errors.Is(wctx.Err(), context.DeadlineExceeded) {
				return nil, &TimeoutError{TxHash: tx.Hash().Hex(), Wait: s.confirmTimeout}
			}
			return nil, wctx.Err()
		case <-ticker.C:
		}
	}
}
