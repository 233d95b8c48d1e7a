package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// SubmissionRegisteredEvent represents a SubmissionRegistered event.
// Event: SubmissionRegistered(uint256 indexed id, address indexed submitter, string contentHash, string uri, string mime)
type SubmissionRegisteredEvent struct {
	ID          uint64
	Submitter   string
	ContentHash string
	URI         string
	Mime        string
	Block       uint64
}

// SubmissionVerifiedEvent represents a SubmissionVerified event.
// Event: SubmissionVerified(uint256 indexed submissionId, bool accepted, address indexed verifier, uint256 reasonCode)
type SubmissionVerifiedEvent struct {
	SubmissionID uint64
	Accepted     bool
	Verifier     string
	ReasonCode   uint64
	Block        uint64
}

// BountyFundedEvent represents a BountyFunded event.
// Event: BountyFunded(uint256 indexed bountyId, uint256 amount, address indexed funder)
type BountyFundedEvent struct {
	BountyID uint64
	Amount   *big.Int
	Funder   string
	Block    uint64
}

// ClaimableSetEvent represents a ClaimableSet event.
// Event: ClaimableSet(uint256 indexed submissionId, address indexed recipient, uint256 amount)
type ClaimableSetEvent struct {
	SubmissionID uint64
	Recipient    string
	Amount       *big.Int
	Block        uint64
}

// PayoutClaimedEvent represents a PayoutClaimed event.
// Event: PayoutClaimed(uint256 indexed submissionId, address indexed recipient, uint256 amount)
type PayoutClaimedEvent struct {
	SubmissionID uint64
	Recipient    string
	Amount       *big.Int
	Block        uint64
}

// ParseSubmissionRegisteredEvent parses a SubmissionRegistered log.
func ParseSubmissionRegisteredEvent(contracts *Contracts, log types.Log) (*SubmissionRegisteredEvent, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("invalid SubmissionRegistered topics: expected 3, got %d", len(log.Topics))
	}
	vals, err := contracts.Registry.ABI.Unpack("SubmissionRegistered", log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack SubmissionRegistered: %w", err)
	}
	if len(vals) < 3 {
		return nil, fmt.Errorf("invalid SubmissionRegistered data: expected 3 values, got %d", len(vals))
	}

	contentHash, ok := vals[0].(string)
	if !ok {
		return nil, fmt.Errorf("parse contentHash: unexpected type %T", vals[0])
	}
	uri, ok := vals[1].(string)
	if !ok {
		return nil, fmt.Errorf("parse uri: unexpected type %T", vals[1])
	}
	mime, ok := vals[2].(string)
	if !ok {
		return nil, fmt.Errorf("parse mime: unexpected type %T", vals[2])
	}

	return &SubmissionRegisteredEvent{
		ID:          topicUint64(log.Topics[1]),
		Submitter:   topicAddress(log.Topics[2]),
		ContentHash: contentHash,
		URI:         uri,
		Mime:        mime,
		Block:       log.BlockNumber,
	}, nil
}

// ParseSubmissionVerifiedEvent parses a SubmissionVerified log.
func ParseSubmissionVerifiedEvent(contracts *Contracts, log types.Log) (*SubmissionVerifiedEvent, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("invalid SubmissionVerified topics: expected 3, got %d", len(log.Topics))
	}
	vals, err := contracts.Manager.ABI.Unpack("SubmissionVerified", log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack SubmissionVerified: %w", err)
	}
	if len(vals) < 2 {
		return nil, fmt.Errorf("invalid SubmissionVerified data: expected 2 values, got %d", len(vals))
	}

	accepted, ok := vals[0].(bool)
	if !ok {
		return nil, fmt.Errorf("parse accepted: unexpected type %T", vals[0])
	}
	reasonCode, ok := vals[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("parse reasonCode: unexpected type %T", vals[1])
	}

	return &SubmissionVerifiedEvent{
		SubmissionID: topicUint64(log.Topics[1]),
		Accepted:     accepted,
		Verifier:     topicAddress(log.Topics[2]),
		ReasonCode:   reasonCode.Uint64(),
		Block:        log.BlockNumber,
	}, nil
}

// ParseBountyFundedEvent parses a BountyFunded log.
func ParseBountyFundedEvent(contracts *Contracts, log types.Log) (*BountyFundedEvent, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("invalid BountyFunded topics: expected 3, got %d", len(log.Topics))
	}
	amount, err := unpackSingleAmount(contracts.Pool, "BountyFunded", log.Data)
	if err != nil {
		return nil, err
	}
	return &BountyFundedEvent{
		BountyID: topicUint64(log.Topics[1]),
		Amount:   amount,
		Funder:   topicAddress(log.Topics[2]),
		Block:    log.BlockNumber,
	}, nil
}

// ParseClaimableSetEvent parses a ClaimableSet log.
func ParseClaimableSetEvent(contracts *Contracts, log types.Log) (*ClaimableSetEvent, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("invalid ClaimableSet topics: expected 3, got %d", len(log.Topics))
	}
	amount, err := unpackSingleAmount(contracts.Pool, "ClaimableSet", log.Data)
	if err != nil {
		return nil, err
	}
	return &ClaimableSetEvent{
		SubmissionID: topicUint64(log.Topics[1]),
		Recipient:    topicAddress(log.Topics[2]),
		Amount:       amount,
		Block:        log.BlockNumber,
	}, nil
}

// ParsePayoutClaimedEvent parses a PayoutClaimed log.
func ParsePayoutClaimedEvent(contracts *Contracts, log types.Log) (*PayoutClaimedEvent, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("invalid PayoutClaimed topics: expected 3, got %d", len(log.Topics))
	}
	amount, err := unpackSingleAmount(contracts.Pool, "PayoutClaimed", log.Data)
	if err != nil {
		return nil, err
	}
	return &PayoutClaimedEvent{
		SubmissionID: topicUint64(log.Topics[1]),
		Recipient:    topicAddress(log.Topics[2]),
		Amount:       amount,
		Block:        log.BlockNumber,
	}, nil
}

func unpackSingleAmount(contract *Contract, event string, data []byte) (*big.Int, error) {
	vals, err := contract.ABI.Unpack(event, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event, err)
	}
	if len(vals) < 1 {
		return nil, fmt.Errorf("invalid %s data: expected 1 value, got %d", event, len(vals))
	}
	amount, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("parse amount: unexpected type %T", vals[0])
	}
	return amount, nil
}

func topicUint64(topic common.Hash) uint64 {
	return new(big.Int).SetBytes(topic.Bytes()).Uint64()
}

func topicAddress(topic common.Hash) string {
	return common.BytesToAddress(topic.Bytes()).Hex()
}

// Watcher polls the ledger for newly emitted contract events and renders
// them through the logger. It is observational: missed polls and filter
// errors are tolerated, never fatal, and it shares nothing with the write
// path beyond the RPC backend.
type Watcher struct {
	backend   Backend
	contracts *Contracts
	interval  time.Duration
	log       *logrus.Entry
}

// NewWatcher creates an event watcher. interval <= 0 defaults to 2s.
func NewWatcher(backend Backend, contracts *Contracts, interval time.Duration, log *logrus.Entry) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		backend:   backend,
		contracts: contracts,
		interval:  interval,
		log:       log,
	}
}

// Run polls until the context is cancelled. It starts at the current head
// and only reports events emitted afterwards.
func (w *Watcher) Run(ctx context.Context) error {
	from, err := w.backend.BlockNumber(ctx)
	if err != nil {
		return classifyRPC("blockNumber", err)
	}
	from++

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.WithField("from_block", from).Info("event watcher started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info("event watcher stopped")
			return nil
		case <-ticker.C:
			from = w.poll(ctx, from)
		}
	}
}

// poll scans [from, head] and returns the next unscanned block. On error
// the range is left unscanned and retried next tick.
func (w *Watcher) poll(ctx context.Context, from uint64) uint64 {
	head, err := w.backend.BlockNumber(ctx)
	if err != nil {
		w.log.WithError(err).Warn("head poll failed")
		return from
	}
	if head < from {
		return from
	}

	logs, err := w.backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{
			w.contracts.Registry.Address,
			w.contracts.Manager.Address,
			w.contracts.Pool.Address,
		},
	})
	if err != nil {
		w.log.WithError(err).Warn("log filter failed")
		return from
	}

	for _, entry := range logs {
		w.render(entry)
	}
	return head + 1
}

func (w *Watcher) render(entry types.Log) {
	if len(entry.Topics) == 0 {
		return
	}

	switch entry.Topics[0] {
	case w.contracts.Registry.ABI.Events["SubmissionRegistered"].ID:
		ev, err := ParseSubmissionRegisteredEvent(w.contracts, entry)
		if err != nil {
			w.log.WithError(err).Warn("bad SubmissionRegistered log")
			return
		}
		w.log.WithFields(logrus.Fields{
			"id":           ev.ID,
			"submitter":    ev.Submitter,
			"content_hash": ev.ContentHash,
			"uri":          ev.URI,
			"mime":         ev.Mime,
			"block":        ev.Block,
		}).Info("submission registered")

	case w.contracts.Manager.ABI.Events["SubmissionVerified"].ID:
		ev, err := ParseSubmissionVerifiedEvent(w.contracts, entry)
		if err != nil {
			w.log.WithError(err).Warn("bad SubmissionVerified log")
			return
		}
		w.log.WithFields(logrus.Fields{
			"submission_id": ev.SubmissionID,
			"accepted":      ev.Accepted,
			"verifier":      ev.Verifier,
			"reason_code":   ev.ReasonCode,
			"block":         ev.Block,
		}).Info("submission verified")

	case w.contracts.Pool.ABI.Events["BountyFunded"].ID:
		ev, err := ParseBountyFundedEvent(w.contracts, entry)
		if err != nil {
			w.log.WithError(err).Warn("bad BountyFunded log")
			return
		}
		w.log.WithFields(logrus.Fields{
			"bounty_id":   ev.BountyID,
			"amount":      ev.Amount.String(),
			"amount_usdt": BaseUnitsToUSDT(ev.Amount),
			"funder":      ev.Funder,
			"block":       ev.Block,
		}).Info("bounty funded")

	case w.contracts.Pool.ABI.Events["ClaimableSet"].ID:
		ev, err := ParseClaimableSetEvent(w.contracts, entry)
		if err != nil {
			w.log.WithError(err).Warn("bad ClaimableSet log")
			return
		}
		w.log.WithFields(logrus.Fields{
			"submission_id": ev.SubmissionID,
			"recipient":     ev.Recipient,
			"amount":        ev.Amount.String(),
			"amount_usdt":   BaseUnitsToUSDT(ev.Amount),
			"block":         ev.Block,
		}).Info("claimable set")

	case w.contracts.Pool.ABI.Events["PayoutClaimed"].ID:
		ev, err := ParsePayoutClaimedEvent(w.contracts, entry)
		if err != nil {
			w.log.WithError(err).Warn("bad PayoutClaimed log")
			return
		}
		w.log.WithFields(logrus.Fields{
			"submission_id": ev.SubmissionID,
			"recipient":     ev.Recipient,
			"amount":        ev.Amount.String(),
			"amount_usdt":   BaseUnitsToUSDT(ev.Amount),
			"block":         ev.Block,
		}).Info("payout claimed")
	}
}
