package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrNotFound reports that a ledger record does not exist. Readers return it
// wrapped with the record kind and id so callers can match with errors.Is.
var ErrNotFound = errors.New("record not found")

// ConnectivityError reports that the RPC endpoint could not be reached.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("ledger unreachable during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// RejectedError reports that the ledger refused a transaction: reverted
// execution, insufficient balance, or a nonce conflict.
type RejectedError struct {
	Reason string
	TxHash string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("transaction %s rejected: %s", e.TxHash, e.Reason)
	}
	return fmt.Sprintf("transaction rejected: %s", e.Reason)
}

func (e *RejectedError) Unwrap() error { return e.Err }

// TimeoutError reports that a broadcast transaction was not confirmed within
// the bounded wait. The transaction may still land; callers must re-check
// ledger state before resubmitting.
type TimeoutError struct {
	TxHash string
	Wait   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed within %s", e.TxHash, e.Wait)
}

// DecodeError reports that a call result or receipt did not have the
// expected shape.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %v", e.What, e.Err)
	}
	return fmt.Sprintf("decode %s", e.What)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// rejectionReasons are substrings of node error messages that indicate the
// ledger refused the transaction rather than the transport failing.
var rejectionReasons = []string{
	"nonce too low",
	"nonce too high",
	"replacement transaction underpriced",
	"already known",
	"insufficient funds",
	"execution reverted",
	"gas required exceeds allowance",
	"intrinsic gas too low",
	"transaction underpriced",
}

// classifyRPC maps a raw RPC error onto the error taxonomy.
func classifyRPC(op string, err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	for _, reason := range rejectionReasons {
		if strings.Contains(msg, reason) {
			return &RejectedError{Reason: err.Error(), Err: err}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "eof") {
		return &ConnectivityError{Op: op, Err: err}
	}

	// Unclassified node errors are treated as rejections: the endpoint
	// answered, it just refused the request.
	return &RejectedError{Reason: err.Error(), Err: err}
}
