package operations

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zealotjin/blockchain-poc/internal/chain"
)

// State reader: read-only projections over contract accessors. Each is a
// single call; no sequence number is consumed. The contracts signal absence
// with zero-valued structs, which these map to chain.ErrNotFound so callers
// can tell "record absent" apart from transport failure.

// GetSubmission reads a submission record from ledger state.
func (s *Service) GetSubmission(ctx context.Context, id uint64) (*Submission, error) {
	vals, err := s.caller.Call(ctx, s.contracts.Registry, "getSubmission", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	if len(vals) != 5 {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getSubmission: expected 5 values, got %d", len(vals))}
	}

	submitter, ok := vals[0].(common.Address)
	if !ok {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getSubmission submitter: unexpected type %T", vals[0])}
	}
	contentHash, ok := vals[1].(string)
	if !ok {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getSubmission contentHash: unexpected type %T", vals[1])}
	}
	uri, ok := vals[2].(string)
	if !ok {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getSubmission uri: unexpected type %T", vals[2])}
	}
	mimeType, ok := vals[3].(string)
	if !ok {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getSubmission mimeType: unexpected type %T", vals[3])}
	}
	timestamp, ok := vals[4].(*big.Int)
	if !ok {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getSubmission timestamp: unexpected type %T", vals[4])}
	}

	// Unregistered ids come back as the zero struct.
	if timestamp.Sign() == 0 && submitter == (common.Address{}) {
		return nil, fmt.Errorf("submission %d: %w", id, chain.ErrNotFound)
	}

	return &Submission{
		ID:          id,
		Submitter:   submitter.Hex(),
		ContentHash: contentHash,
		URI:         uri,
		MimeType:    mimeType,
		Timestamp:   timestamp.Uint64(),
	}, nil
}

// GetVerification reads the verification record for a submission.
func (s *Service) GetVerification(ctx context.Context, submissionID uint64) (*Verification, error) {
	vals, err := s.caller.Call(ctx, s.contracts.Manager, "getVerification", new(big.Int).SetUint64(submissionID))
	if err != nil {
		return nil, err
	}
	if len(vals) != 4 {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getVerification: expected 4 values, got %d", len(vals))}
	}

	verifier, ok := vals[0].(common.Address)
	if !ok {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getVerification verifier: unexpected type %T", vals[0])}
	}
	accepted, ok := vals[1].(bool)
	if !ok {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getVerification accepted: unexpected type %T", vals[1])}
	}
	reasonCode, ok := vals[2].(*big.Int)
	if !ok {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getVerification reasonCode: unexpected type %T", vals[2])}
	}
	timestamp, ok := vals[3].(*big.Int)
	if !ok {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getVerification timestamp: unexpected type %T", vals[3])}
	}

	if timestamp.Sign() == 0 && verifier == (common.Address{}) {
		return nil, fmt.Errorf("verification %d: %w", submissionID, chain.ErrNotFound)
	}

	return &Verification{
		SubmissionID: submissionID,
		Verifier:     verifier.Hex(),
		Accepted:     accepted,
		ReasonCode:   reasonCode.Uint64(),
		Timestamp:    timestamp.Uint64(),
	}, nil
}

// GetClaimable reads the payout entitlement for a submission.
func (s *Service) GetClaimable(ctx context.Context, submissionID uint64) (*Claimable, error) {
	vals, err := s.caller.Call(ctx, s.contracts.Pool, "getClaimable", new(big.Int).SetUint64(submissionID))
	if err != nil {
		return nil, err
	}
	if len(vals) != 3 {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getClaimable: expected 3 values, got %d", len(vals))}
	}

	recipient, ok := vals[0].(common.Address)
	if !ok {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getClaimable recipient: unexpected type %T", vals[0])}
	}
	amount, ok := vals[1].(*big.Int)
	if !ok {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getClaimable amount: unexpected type %T", vals[1])}
	}
	claimed, ok := vals[2].(bool)
	if !ok {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getClaimable claimed: unexpected type %T", vals[2])}
	}

	if recipient == (common.Address{}) {
		return nil, fmt.Errorf("claimable %d: %w", submissionID, chain.ErrNotFound)
	}

	return &Claimable{
		SubmissionID: submissionID,
		Recipient:    recipient.Hex(),
		Amount:       amount,
		Claimed:      claimed,
	}, nil
}

// GetBountyBalance reads the accumulated balance for a bounty id.
func (s *Service) GetBountyBalance(ctx context.Context, bountyID uint64) (*big.Int, error) {
	vals, err := s.caller.Call(ctx, s.contracts.Pool, "getBountyBalance", new(big.Int).SetUint64(bountyID))
	if err != nil {
		return nil, err
	}
	if len(vals) != 1 {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getBountyBalance: expected 1 value, got %d", len(vals))}
	}
	balance, ok := vals[0].(*big.Int)
	if !ok {
		return nil, &chain.DecodeError{What: fmt.Sprintf("getBountyBalance: unexpected type %T", vals[0])}
	}
	return balance, nil
}
