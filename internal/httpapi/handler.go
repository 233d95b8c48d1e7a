// Package httpapi exposes the domain operations over a small REST facade.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/zealotjin/blockchain-poc/internal/chain"
	"github.com/zealotjin/blockchain-poc/internal/metrics"
	"github.com/zealotjin/blockchain-poc/internal/operations"
)

// Operations is the domain surface the facade exposes.
// *operations.Service satisfies it.
type Operations interface {
	RegisterSubmission(ctx context.Context, contentHash, uri, mimeType string) (*operations.RegisterResult, error)
	SetVerification(ctx context.Context, submissionID uint64, accepted bool, reasonCode uint64) (*operations.VerifyResult, error)
	FundBounty(ctx context.Context, bountyID uint64, amount *big.Int) (*operations.FundResult, error)
	MarkClaimable(ctx context.Context, submissionID uint64, recipient string, amount *big.Int) (*operations.MarkResult, error)
	ClaimPayout(ctx context.Context, submissionID uint64, recipient string) (*operations.ClaimResult, error)
	GetSubmission(ctx context.Context, id uint64) (*operations.Submission, error)
	GetVerification(ctx context.Context, submissionID uint64) (*operations.Verification, error)
	GetClaimable(ctx context.Context, submissionID uint64) (*operations.Claimable, error)
	GetBountyBalance(ctx context.Context, bountyID uint64) (*big.Int, error)
	Health(ctx context.Context) (*operations.HealthStatus, error)
}

// handler bundles the HTTP endpoints over the operation catalog.
type handler struct {
	ops Operations
}

// NewHandler returns a router exposing the REST API.
func NewHandler(ops Operations) *mux.Router {
	h := &handler{ops: ops}

	r := mux.NewRouter()
	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/submissions", h.createSubmission).Methods(http.MethodPost)
	r.HandleFunc("/submissions/{id:[0-9]+}", h.getSubmission).Methods(http.MethodGet)
	r.HandleFunc("/verifications", h.createVerification).Methods(http.MethodPost)
	r.HandleFunc("/verifications/{id:[0-9]+}", h.getVerification).Methods(http.MethodGet)
	r.HandleFunc("/bounties/fund", h.fundBounty).Methods(http.MethodPost)
	r.HandleFunc("/bounties/{id:[0-9]+}", h.getBountyBalance).Methods(http.MethodGet)
	r.HandleFunc("/payouts/mark-claimable", h.markClaimable).Methods(http.MethodPost)
	r.HandleFunc("/payouts/claim", h.claimPayout).Methods(http.MethodPost)
	r.HandleFunc("/payouts/{id:[0-9]+}", h.getClaimable).Methods(http.MethodGet)

	return r
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	connected := false
	if status, _ := h.ops.Health(r.Context()); status != nil {
		connected = status.Connected
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":              "Bounty Ledger Service API",
		"status":               "running",
		"blockchain_connected": connected,
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	status, err := h.ops.Health(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("blockchain connection error: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handler) createSubmission(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ContentHash string `json:"content_hash"`
		URI         string `json:"uri"`
		MimeType    string `json:"mime_type"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.ContentHash == "" || payload.URI == "" || payload.MimeType == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("content_hash, uri and mime_type are required"))
		return
	}

	result, err := h.ops.RegisterSubmission(r.Context(), payload.ContentHash, payload.URI, payload.MimeType)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) getSubmission(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sub, err := h.ops.GetSubmission(r.Context(), id)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *handler) createVerification(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SubmissionID uint64 `json:"submission_id"`
		Accepted     bool   `json:"accepted"`
		ReasonCode   uint64 `json:"reason_code"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.ops.SetVerification(r.Context(), payload.SubmissionID, payload.Accepted, payload.ReasonCode)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) getVerification(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ver, err := h.ops.GetVerification(r.Context(), id)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ver)
}

func (h *handler) fundBounty(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BountyID uint64 `json:"bounty_id"`
		Amount   uint64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	amount := new(big.Int).SetUint64(payload.Amount)
	result, err := h.ops.FundBounty(r.Context(), payload.BountyID, amount)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bounty_id":        result.BountyID,
		"amount":           result.Amount,
		"amount_usdt":      chain.BaseUnitsToUSDT(result.Amount),
		"transaction_hash": result.TxHash,
		"status":           "funded",
	})
}

func (h *handler) getBountyBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	balance, err := h.ops.GetBountyBalance(r.Context(), id)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bounty_id":    id,
		"balance":      balance,
		"balance_usdt": chain.BaseUnitsToUSDT(balance),
	})
}

func (h *handler) markClaimable(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SubmissionID uint64 `json:"submission_id"`
		Recipient    string `json:"recipient"`
		Amount       uint64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !common.IsHexAddress(payload.Recipient) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("recipient is not a valid address"))
		return
	}

	amount := new(big.Int).SetUint64(payload.Amount)
	result, err := h.ops.MarkClaimable(r.Context(), payload.SubmissionID, payload.Recipient, amount)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"submission_id":    result.SubmissionID,
		"recipient":        result.Recipient,
		"amount":           result.Amount,
		"amount_usdt":      chain.BaseUnitsToUSDT(result.Amount),
		"transaction_hash": result.TxHash,
		"status":           "claimable",
	})
}

func (h *handler) claimPayout(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SubmissionID uint64 `json:"submission_id"`
		Recipient    string `json:"recipient"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !common.IsHexAddress(payload.Recipient) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("recipient is not a valid address"))
		return
	}

	result, err := h.ops.ClaimPayout(r.Context(), payload.SubmissionID, payload.Recipient)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"submission_id":    result.SubmissionID,
		"recipient":        result.Recipient,
		"amount":           result.Amount,
		"amount_usdt":      chain.BaseUnitsToUSDT(result.Amount),
		"transaction_hash": result.TxHash,
		"status":           "claimed",
	})
}

func (h *handler) getClaimable(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	claimable, err := h.ops.GetClaimable(r.Context(), id)
	if err != nil {
		writeOperationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"submission_id": claimable.SubmissionID,
		"recipient":     claimable.Recipient,
		"amount":        claimable.Amount,
		"amount_usdt":   chain.BaseUnitsToUSDT(claimable.Amount),
		"claimed":       claimable.Claimed,
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid id: %w", err))
		return 0, false
	}
	return id, true
}

// writeOperationError maps the error taxonomy onto status codes: gateway
// unreachable → 503, record absent → 404, everything else → 500 with the
// underlying reason in the detail string.
func writeOperationError(w http.ResponseWriter, err error) {
	var connErr *chain.ConnectivityError
	switch {
	case errors.As(err, &connErr):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, chain.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": err.Error()})
}
