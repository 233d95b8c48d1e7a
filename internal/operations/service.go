package operations

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/zealotjin/blockchain-poc/internal/chain"
)

// Gas limits per operation kind. Fixed configuration, not negotiated.
const (
	GasApprove  uint64 = 100_000
	GasRegister uint64 = 200_000
	GasVerify   uint64 = 200_000
	GasFund     uint64 = 200_000
	GasMark     uint64 = 200_000
	GasClaim    uint64 = 200_000
)

// Submitter issues state-changing transactions. *chain.Sequencer satisfies
// it; tests substitute a fake.
type Submitter interface {
	SignAndSend(ctx context.Context, contract *chain.Contract, method string, gasLimit uint64, args ...interface{}) (*types.Receipt, error)
}

// Caller issues read-only contract calls. *chain.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, contract *chain.Contract, method string, args ...interface{}) ([]interface{}, error)
}

// Pinger probes gateway reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) (uint64, error)
}

// Service is the fixed catalog of domain operations. Each operation is one
// or two sequencer calls plus a deterministic decoding of the resulting
// receipt or ledger state.
type Service struct {
	submitter Submitter
	caller    Caller
	pinger    Pinger
	contracts *chain.Contracts
	account   common.Address
	network   string
	log       *logrus.Entry
}

// New creates the operation catalog over a gateway and sequencer.
func New(client *chain.Client, seq *chain.Sequencer, log *logrus.Entry) *Service {
	return &Service{
		submitter: seq,
		caller:    client,
		pinger:    client,
		contracts: client.Contracts(),
		account:   client.Account(),
		network:   client.Network(),
		log:       log,
	}
}

// NewWithBackends wires explicit collaborators. Used by tests.
func NewWithBackends(submitter Submitter, caller Caller, pinger Pinger, contracts *chain.Contracts, account common.Address, network string, log *logrus.Entry) *Service {
	return &Service{
		submitter: submitter,
		caller:    caller,
		pinger:    pinger,
		contracts: contracts,
		account:   account,
		network:   network,
		log:       log,
	}
}

// RegisterSubmission records a new submission and returns the full record.
// The ledger assigns the id; it is extracted from the first emitted log's
// first indexed topic.
func (s *Service) RegisterSubmission(ctx context.Context, contentHash, uri, mimeType string) (*RegisterResult, error) {
	receipt, err := s.submitter.SignAndSend(ctx, s.contracts.Registry, "registerSubmission", GasRegister, contentHash, uri, mimeType)
	if err != nil {
		return nil, fmt.Errorf("register submission: %w", err)
	}

	id, err := submissionIDFromReceipt(receipt)
	if err != nil {
		return nil, err
	}

	sub, err := s.GetSubmission(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read back submission %d: %w", id, err)
	}

	s.log.WithFields(logrus.Fields{
		"submission_id": id,
		"tx":            receipt.TxHash.Hex(),
	}).Info("submission registered")

	return &RegisterResult{Submission: *sub, TxHash: receipt.TxHash.Hex()}, nil
}

// SetVerification writes the verification record for a submission,
// overwriting any previous one, and returns the record re-read from the
// ledger.
func (s *Service) SetVerification(ctx context.Context, submissionID uint64, accepted bool, reasonCode uint64) (*VerifyResult, error) {
	receipt, err := s.submitter.SignAndSend(ctx, s.contracts.Manager, "setVerification", GasVerify,
		new(big.Int).SetUint64(submissionID), accepted, new(big.Int).SetUint64(reasonCode))
	if err != nil {
		return nil, fmt.Errorf("set verification: %w", err)
	}

	ver, err := s.GetVerification(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("read back verification %d: %w", submissionID, err)
	}

	s.log.WithFields(logrus.Fields{
		"submission_id": submissionID,
		"accepted":      accepted,
		"tx":            receipt.TxHash.Hex(),
	}).Info("verification set")

	return &VerifyResult{Verification: *ver, TxHash: receipt.TxHash.Hex()}, nil
}

// FundBounty transfers stablecoin into the bounty pool: an approval on the
// token followed by the pool's fundBounty, strictly in that order. The
// second step is not attempted until the approval is confirmed, since the
// pool's transferFrom depends on the allowance being visible on-ledger.
// If the second step fails the approval stays effected; there is no
// compensating action, and only the fund step should be retried.
func (s *Service) FundBounty(ctx context.Context, bountyID uint64, amount *big.Int) (*FundResult, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("fund bounty: amount must be a non-negative integer in base units")
	}

	approveReceipt, err := s.submitter.SignAndSend(ctx, s.contracts.Token, "approve", GasApprove,
		s.contracts.Pool.Address, amount)
	if err != nil {
		return nil, fmt.Errorf("approve %s base units: %w", amount, err)
	}

	fundReceipt, err := s.submitter.SignAndSend(ctx, s.contracts.Pool, "fundBounty", GasFund,
		new(big.Int).SetUint64(bountyID), amount)
	if err != nil {
		// Accepted inconsistency window: allowance set, pool unchanged.
		s.log.WithFields(logrus.Fields{
			"bounty_id":  bountyID,
			"amount":     amount.String(),
			"approve_tx": approveReceipt.TxHash.Hex(),
		}).Warn("fund step failed after confirmed approval")
		return nil, fmt.Errorf("fund bounty %d (approval %s already confirmed): %w",
			bountyID, approveReceipt.TxHash.Hex(), err)
	}

	s.log.WithFields(logrus.Fields{
		"bounty_id":   bountyID,
		"amount":      amount.String(),
		"amount_usdt": chain.BaseUnitsToUSDT(amount),
		"tx":          fundReceipt.TxHash.Hex(),
	}).Info("bounty funded")

	return &FundResult{BountyID: bountyID, Amount: amount, TxHash: fundReceipt.TxHash.Hex()}, nil
}

// MarkClaimable records a payout entitlement for a submission.
func (s *Service) MarkClaimable(ctx context.Context, submissionID uint64, recipient string, amount *big.Int) (*MarkResult, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("mark claimable: amount must be a non-negative integer in base units")
	}

	receipt, err := s.submitter.SignAndSend(ctx, s.contracts.Pool, "markClaimable", GasMark,
		new(big.Int).SetUint64(submissionID), common.HexToAddress(recipient), amount)
	if err != nil {
		return nil, fmt.Errorf("mark claimable: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"submission_id": submissionID,
		"recipient":     recipient,
		"amount":        amount.String(),
		"tx":            receipt.TxHash.Hex(),
	}).Info("payout marked claimable")

	return &MarkResult{
		SubmissionID: submissionID,
		Recipient:    recipient,
		Amount:       amount,
		TxHash:       receipt.TxHash.Hex(),
	}, nil
}

// ClaimPayout claims a marked payout. The paid amount is read back from the
// claimable record after confirmation. A second claim for the same
// entitlement is rejected by the ledger.
func (s *Service) ClaimPayout(ctx context.Context, submissionID uint64, recipient string) (*ClaimResult, error) {
	receipt, err := s.submitter.SignAndSend(ctx, s.contracts.Pool, "claim", GasClaim,
		new(big.Int).SetUint64(submissionID), common.HexToAddress(recipient))
	if err != nil {
		return nil, fmt.Errorf("claim payout: %w", err)
	}

	claimable, err := s.GetClaimable(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("read back claimable %d: %w", submissionID, err)
	}

	s.log.WithFields(logrus.Fields{
		"submission_id": submissionID,
		"recipient":     recipient,
		"amount":        claimable.Amount.String(),
		"tx":            receipt.TxHash.Hex(),
	}).Info("payout claimed")

	return &ClaimResult{
		SubmissionID: submissionID,
		Recipient:    recipient,
		Amount:       claimable.Amount,
		TxHash:       receipt.TxHash.Hex(),
	}, nil
}

// Health probes the gateway and reports connectivity.
func (s *Service) Health(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{
		Network: s.network,
		Account: s.account.Hex(),
	}

	if _, err := s.pinger.Ping(ctx); err != nil {
		status.Status = "unhealthy"
		return status, err
	}

	status.Status = "healthy"
	status.Connected = true
	return status, nil
}

// submissionIDFromReceipt extracts the ledger-assigned submission id from
// the registration receipt. The registry emits SubmissionRegistered as the
// transaction's first log with the id as the first indexed topic; a receipt
// that does not have that shape is a decode error, not an index fault.
func submissionIDFromReceipt(receipt *types.Receipt) (uint64, error) {
	if len(receipt.Logs) == 0 {
		return 0, &chain.DecodeError{What: "registration receipt: no logs emitted"}
	}
	first := receipt.Logs[0]
	if len(first.Topics) < 2 {
		return 0, &chain.DecodeError{What: fmt.Sprintf("registration receipt: expected 2 topics, got %d", len(first.Topics))}
	}
	return new(big.Int).SetBytes(first.Topics[1].Bytes()).Uint64(), nil
}
