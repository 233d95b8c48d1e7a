package chain_test

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/zealotjin/blockchain-poc/internal/chain"
)

func testSequencer(t *testing.T, backend *fakeBackend) (*chain.Sequencer, *chain.Client) {
	t.Helper()
	client := testClient(t, backend)
	seq := chain.NewSequencer(client, chain.SequencerConfig{
		ConfirmTimeout: 2 * time.Second,
		PollInterval:   5 * time.Millisecond,
	})
	return seq, client
}

func TestSignAndSendConfirms(t *testing.T) {
	backend := newFakeBackend()
	backend.pendingNonce = 42
	seq, client := testSequencer(t, backend)

	receipt, err := seq.SignAndSend(context.Background(), client.Contracts().Registry,
		"registerSubmission", 200_000, "hash", "uri", "mime")
	if err != nil {
		t.Fatalf("SignAndSend() error = %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Errorf("receipt status = %d, want success", receipt.Status)
	}
	if nonces := backend.sentNonces(); len(nonces) != 1 || nonces[0] != 42 {
		t.Errorf("sent nonces = %v, want [42]", nonces)
	}
}

func TestConcurrentWritesGetDistinctIncreasingNonces(t *testing.T) {
	backend := newFakeBackend()
	backend.pendingNonce = 10
	seq, client := testSequencer(t, backend)

	const writers = 20
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = seq.SignAndSend(context.Background(), client.Contracts().Manager,
				"setVerification", 200_000, big.NewInt(int64(i)), true, big.NewInt(0))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("writer %d: %v", i, err)
		}
	}

	nonces := backend.sentNonces()
	if len(nonces) != writers {
		t.Fatalf("sent %d transactions, want %d", len(nonces), writers)
	}
	seen := make(map[uint64]bool)
	for _, n := range nonces {
		if seen[n] {
			t.Fatalf("nonce %d used twice", n)
		}
		seen[n] = true
	}
	sorted := append([]uint64(nil), nonces...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if sorted[0] != 10 || sorted[len(sorted)-1] != 10+writers-1 {
		t.Errorf("nonce range = [%d, %d], want [10, %d]", sorted[0], sorted[len(sorted)-1], 10+writers-1)
	}
}

func TestBroadcastRejectionResyncsNonce(t *testing.T) {
	backend := newFakeBackend()
	backend.pendingNonce = 5
	failNext := true
	backend.sendErr = func(tx *types.Transaction) error {
		if failNext {
			failNext = false
			return errors.New("nonce too low")
		}
		return nil
	}
	seq, client := testSequencer(t, backend)

	_, err := seq.SignAndSend(context.Background(), client.Contracts().Pool,
		"claim", 200_000, big.NewInt(1), common.HexToAddress("0x5555555555555555555555555555555555555555"))
	var rejErr *chain.RejectedError
	if !errors.As(err, &rejErr) {
		t.Fatalf("SignAndSend() error = %v, want RejectedError", err)
	}

	backend.mu.Lock()
	backend.pendingNonce = 9 // the ledger moved on
	callsBefore := backend.nonceCalls
	backend.mu.Unlock()

	_, err = seq.SignAndSend(context.Background(), client.Contracts().Pool,
		"claim", 200_000, big.NewInt(1), common.HexToAddress("0x5555555555555555555555555555555555555555"))
	if err != nil {
		t.Fatalf("SignAndSend() after rejection error = %v", err)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.nonceCalls <= callsBefore {
		t.Error("expected nonce resync from ledger after rejection")
	}
	if got := backend.sent[len(backend.sent)-1].Nonce(); got != 9 {
		t.Errorf("resynced nonce = %d, want 9", got)
	}
}

func TestConfirmationTimeout(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptHook = func(h common.Hash) (*types.Receipt, error) {
		return nil, ethereum.NotFound
	}
	client := testClient(t, backend)
	seq := chain.NewSequencer(client, chain.SequencerConfig{
		ConfirmTimeout: 50 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	})

	_, err := seq.SignAndSend(context.Background(), client.Contracts().Registry,
		"registerSubmission", 200_000, "h", "u", "m")
	var toErr *chain.TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("SignAndSend() error = %v, want TimeoutError", err)
	}
	if toErr.TxHash == "" {
		t.Error("TimeoutError should carry the transaction hash for manual re-check")
	}
}

func TestRevertedExecutionIsRejected(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptHook = func(h common.Hash) (*types.Receipt, error) {
		return &types.Receipt{Status: types.ReceiptStatusFailed, TxHash: h}, nil
	}
	seq, client := testSequencer(t, backend)

	_, err := seq.SignAndSend(context.Background(), client.Contracts().Pool,
		"fundBounty", 200_000, big.NewInt(1), big.NewInt(100))
	var rejErr *chain.RejectedError
	if !errors.As(err, &rejErr) {
		t.Fatalf("SignAndSend() error = %v, want RejectedError", err)
	}
}

// A pending confirmation must not block the next write from broadcasting.
func TestConfirmationWaitDoesNotHoldNonceLock(t *testing.T) {
	backend := newFakeBackend()
	release := make(chan struct{})
	backend.receiptHook = func(h common.Hash) (*types.Receipt, error) {
		backend.mu.Lock()
		var firstHash common.Hash
		if len(backend.sent) > 0 {
			firstHash = backend.sent[0].Hash()
		}
		backend.mu.Unlock()
		if h == firstHash {
			select {
			case <-release:
				return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: h}, nil
			default:
				return nil, ethereum.NotFound
			}
		}
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: h}, nil
	}
	seq, client := testSequencer(t, backend)

	firstDone := make(chan error, 1)
	go func() {
		_, err := seq.SignAndSend(context.Background(), client.Contracts().Registry,
			"registerSubmission", 200_000, "first", "u", "m")
		firstDone <- err
	}()

	// Wait until the first transaction is broadcast and waiting.
	deadline := time.After(time.Second)
	for {
		backend.mu.Lock()
		sent := len(backend.sent)
		backend.mu.Unlock()
		if sent == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first transaction never broadcast")
		case <-time.After(time.Millisecond):
		}
	}

	// The second write must complete while the first is still pending.
	if _, err := seq.SignAndSend(context.Background(), client.Contracts().Registry,
		"registerSubmission", 200_000, "second", "u", "m"); err != nil {
		t.Fatalf("second SignAndSend() error = %v", err)
	}

	select {
	case err := <-firstDone:
		t.Fatalf("first transaction finished early: %v", err)
	default:
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first SignAndSend() error = %v", err)
	}
}
