// Package operations implements the domain recipes over the transaction
// sequencer and the read-only state projections that reconstruct domain
// records from ledger state.
package operations

import "math/big"

// Submission is an immutable content-submission record. The id is assigned
// by the ledger and is only discoverable from the registration receipt.
type Submission struct {
	ID          uint64 `json:"submission_id"`
	Submitter   string `json:"submitter"`
	ContentHash string `json:"content_hash"`
	URI         string `json:"uri"`
	MimeType    string `json:"mime_type"`
	Timestamp   uint64 `json:"timestamp"`
}

// Verification is the single verification record tied to a submission.
type Verification struct {
	SubmissionID uint64 `json:"submission_id"`
	Verifier     string `json:"verifier"`
	Accepted     bool   `json:"accepted"`
	ReasonCode   uint64 `json:"reason_code"`
	Timestamp    uint64 `json:"timestamp"`
}

// Claimable is a payout entitlement. It transitions once from unclaimed to
// claimed; the amount is fixed at marking time, in token base units.
type Claimable struct {
	SubmissionID uint64   `json:"submission_id"`
	Recipient    string   `json:"recipient"`
	Amount       *big.Int `json:"amount"`
	Claimed      bool     `json:"claimed"`
}

// RegisterResult is the outcome of a confirmed submission registration.
type RegisterResult struct {
	Submission
	TxHash string `json:"transaction_hash"`
}

// VerifyResult is the outcome of a confirmed verification write.
type VerifyResult struct {
	Verification
	TxHash string `json:"transaction_hash"`
}

// FundResult is the outcome of a confirmed bounty funding.
type FundResult struct {
	BountyID uint64   `json:"bounty_id"`
	Amount   *big.Int `json:"amount"`
	TxHash   string   `json:"transaction_hash"`
}

// MarkResult is the outcome of a confirmed mark-claimable write.
type MarkResult struct {
	SubmissionID uint64   `json:"submission_id"`
	Recipient    string   `json:"recipient"`
	Amount       *big.Int `json:"amount"`
	TxHash       string   `json:"transaction_hash"`
}

// ClaimResult is the outcome of a confirmed payout claim. Amount is read
// back from ledger state after the claim confirms.
type ClaimResult struct {
	SubmissionID uint64   `json:"submission_id"`
	Recipient    string   `json:"recipient"`
	Amount       *big.Int `json:"amount"`
	TxHash       string   `json:"transaction_hash"`
}

// HealthStatus reports gateway reachability for the health endpoint.
type HealthStatus struct {
	Status    string `json:"status"`
	Connected bool   `json:"blockchain_connected"`
	Network   string `json:"network"`
	Account   string `json:"account"`
}
