package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zealotjin/blockchain-poc/internal/chain"
	"github.com/zealotjin/blockchain-poc/internal/httpapi"
	"github.com/zealotjin/blockchain-poc/internal/operations"
)

// stubOps lets each test plug in just the operations it exercises.
type stubOps struct {
	register   func(ctx context.Context, contentHash, uri, mimeType string) (*operations.RegisterResult, error)
	verify     func(ctx context.Context, id uint64, accepted bool, reason uint64) (*operations.VerifyResult, error)
	fund       func(ctx context.Context, id uint64, amount *big.Int) (*operations.FundResult, error)
	mark       func(ctx context.Context, id uint64, recipient string, amount *big.Int) (*operations.MarkResult, error)
	claim      func(ctx context.Context, id uint64, recipient string) (*operations.ClaimResult, error)
	submission func(ctx context.Context, id uint64) (*operations.Submission, error)
	verif      func(ctx context.Context, id uint64) (*operations.Verification, error)
	claimable  func(ctx context.Context, id uint64) (*operations.Claimable, error)
	balance    func(ctx context.Context, id uint64) (*big.Int, error)
	health     func(ctx context.Context) (*operations.HealthStatus, error)
}

func (s *stubOps) RegisterSubmission(ctx context.Context, contentHash, uri, mimeType string) (*operations.RegisterResult, error) {
	return s.register(ctx, contentHash, uri, mimeType)
}

func (s *stubOps) SetVerification(ctx context.Context, id uint64, accepted bool, reason uint64) (*operations.VerifyResult, error) {
	return s.verify(ctx, id, accepted, reason)
}

func (s *stubOps) FundBounty(ctx context.Context, id uint64, amount *big.Int) (*operations.FundResult, error) {
	return s.fund(ctx, id, amount)
}

func (s *stubOps) MarkClaimable(ctx context.Context, id uint64, recipient string, amount *big.Int) (*operations.MarkResult, error) {
	return s.mark(ctx, id, recipient, amount)
}

func (s *stubOps) ClaimPayout(ctx context.Context, id uint64, recipient string) (*operations.ClaimResult, error) {
	return s.claim(ctx, id, recipient)
}

func (s *stubOps) GetSubmission(ctx context.Context, id uint64) (*operations.Submission, error) {
	return s.submission(ctx, id)
}

func (s *stubOps) GetVerification(ctx context.Context, id uint64) (*operations.Verification, error) {
	return s.verif(ctx, id)
}

func (s *stubOps) GetClaimable(ctx context.Context, id uint64) (*operations.Claimable, error) {
	return s.claimable(ctx, id)
}

func (s *stubOps) GetBountyBalance(ctx context.Context, id uint64) (*big.Int, error) {
	return s.balance(ctx, id)
}

func (s *stubOps) Health(ctx context.Context) (*operations.HealthStatus, error) {
	if s.health != nil {
		return s.health(ctx)
	}
	return &operations.HealthStatus{Status: "healthy", Connected: true}, nil
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestCreateSubmission(t *testing.T) {
	ops := &stubOps{
		register: func(ctx context.Context, contentHash, uri, mimeType string) (*operations.RegisterResult, error) {
			assert.Equal(t, "0xabc", contentHash)
			return &operations.RegisterResult{
				Submission: operations.Submission{
					ID:          12,
					Submitter:   "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa",
					ContentHash: contentHash,
					URI:         uri,
					MimeType:    mimeType,
					Timestamp:   1700000001,
				},
				TxHash: "0xdeadbeef",
			}, nil
		},
	}
	router := httpapi.NewHandler(ops)

	rec := doJSON(t, router, http.MethodPost, "/submissions", map[string]interface{}{
		"content_hash": "0xabc",
		"uri":          "ipfs://QmX",
		"mime_type":    "image/png",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, float64(12), body["submission_id"])
	assert.Equal(t, "0xdeadbeef", body["transaction_hash"])
}

func TestCreateSubmissionRequiresAllFields(t *testing.T) {
	router := httpapi.NewHandler(&stubOps{})

	rec := doJSON(t, router, http.MethodPost, "/submissions", map[string]interface{}{
		"content_hash": "0xabc",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "required")
}

func TestCreateSubmissionRejectsUnknownFields(t *testing.T) {
	router := httpapi.NewHandler(&stubOps{})

	rec := doJSON(t, router, http.MethodPost, "/submissions", map[string]interface{}{
		"content_hash": "0xabc",
		"uri":          "u",
		"mime_type":    "m",
		"surprise":     true,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSubmissionStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"absent record", fmt.Errorf("submission 5: %w", chain.ErrNotFound), http.StatusNotFound},
		{"gateway unreachable", &chain.ConnectivityError{Op: "call", Err: errors.New("connection refused")}, http.StatusServiceUnavailable},
		{"ledger rejection", &chain.RejectedError{Reason: "execution reverted"}, http.StatusInternalServerError},
		{"confirmation timeout", &chain.TimeoutError{TxHash: "0x1"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := &stubOps{
				submission: func(ctx context.Context, id uint64) (*operations.Submission, error) {
					return nil, tt.err
				},
			}
			rec := doJSON(t, httpapi.NewHandler(ops), http.MethodGet, "/submissions/5", nil)

			require.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decodeBody(t, rec)["detail"])
		})
	}
}

func TestGetSubmissionRejectsNonNumericID(t *testing.T) {
	router := httpapi.NewHandler(&stubOps{})

	rec := doJSON(t, router, http.MethodGet, "/submissions/abc", nil)

	// The route pattern only matches numeric ids.
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFundBountyResponse(t *testing.T) {
	ops := &stubOps{
		fund: func(ctx context.Context, id uint64, amount *big.Int) (*operations.FundResult, error) {
			require.Equal(t, uint64(7), id)
			require.Equal(t, int64(100_000_000), amount.Int64())
			return &operations.FundResult{BountyID: id, Amount: amount, TxHash: "0xf00d"}, nil
		},
	}
	router := httpapi.NewHandler(ops)

	rec := doJSON(t, router, http.MethodPost, "/bounties/fund", map[string]interface{}{
		"bounty_id": 7,
		"amount":    100_000_000,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, 100.0, body["amount_usdt"])
	assert.Equal(t, "funded", body["status"])
	assert.Equal(t, "0xf00d", body["transaction_hash"])
}

func TestMarkClaimableValidatesRecipient(t *testing.T) {
	router := httpapi.NewHandler(&stubOps{})

	rec := doJSON(t, router, http.MethodPost, "/payouts/mark-claimable", map[string]interface{}{
		"submission_id": 1,
		"recipient":     "not-an-address",
		"amount":        1000,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "address")
}

func TestClaimPayoutResponse(t *testing.T) {
	recipient := "0x5555555555555555555555555555555555555555"
	ops := &stubOps{
		claim: func(ctx context.Context, id uint64, rcpt string) (*operations.ClaimResult, error) {
			return &operations.ClaimResult{
				SubmissionID: id,
				Recipient:    rcpt,
				Amount:       big.NewInt(50_000_000),
				TxHash:       "0xc1a1",
			}, nil
		},
	}
	router := httpapi.NewHandler(ops)

	rec := doJSON(t, router, http.MethodPost, "/payouts/claim", map[string]interface{}{
		"submission_id": 4,
		"recipient":     recipient,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, 50.0, body["amount_usdt"])
	assert.Equal(t, "claimed", body["status"])
	assert.Equal(t, recipient, body["recipient"])
}

func TestGetClaimable(t *testing.T) {
	ops := &stubOps{
		claimable: func(ctx context.Context, id uint64) (*operations.Claimable, error) {
			return &operations.Claimable{
				SubmissionID: id,
				Recipient:    "0x5555555555555555555555555555555555555555",
				Amount:       big.NewInt(50_000_000),
				Claimed:      true,
			}, nil
		},
	}
	rec := doJSON(t, httpapi.NewHandler(ops), http.MethodGet, "/payouts/4", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["claimed"])
	assert.Equal(t, 50.0, body["amount_usdt"])
}

func TestGetBountyBalance(t *testing.T) {
	ops := &stubOps{
		balance: func(ctx context.Context, id uint64) (*big.Int, error) {
			return big.NewInt(250_000_000), nil
		},
	}
	rec := doJSON(t, httpapi.NewHandler(ops), http.MethodGet, "/bounties/9", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(9), body["bounty_id"])
	assert.Equal(t, 250.0, body["balance_usdt"])
}

func TestHealthUnavailable(t *testing.T) {
	ops := &stubOps{
		health: func(ctx context.Context) (*operations.HealthStatus, error) {
			return &operations.HealthStatus{Status: "unhealthy"},
				&chain.ConnectivityError{Op: "blockNumber", Err: errors.New("connection refused")}
		},
	}
	rec := doJSON(t, httpapi.NewHandler(ops), http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "blockchain connection error")
}

func TestRootReportsConnectivity(t *testing.T) {
	rec := doJSON(t, httpapi.NewHandler(&stubOps{}), http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, true, body["blockchain_connected"])
}

func TestVerificationRoundTrip(t *testing.T) {
	ops := &stubOps{
		verify: func(ctx context.Context, id uint64, accepted bool, reason uint64) (*operations.VerifyResult, error) {
			return &operations.VerifyResult{
				Verification: operations.Verification{
					SubmissionID: id,
					Verifier:     "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa",
					Accepted:     accepted,
					ReasonCode:   reason,
					Timestamp:    1700000002,
				},
				TxHash: "0xv",
			}, nil
		},
		verif: func(ctx context.Context, id uint64) (*operations.Verification, error) {
			return nil, fmt.Errorf("verification %d: %w", id, chain.ErrNotFound)
		},
	}
	router := httpapi.NewHandler(ops)

	rec := doJSON(t, router, http.MethodPost, "/verifications", map[string]interface{}{
		"submission_id": 3,
		"accepted":      false,
		"reason_code":   2,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["accepted"])
	assert.Equal(t, float64(2), body["reason_code"])

	rec = doJSON(t, router, http.MethodGet, "/verifications/99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
