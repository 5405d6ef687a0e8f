package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrMissingSigner is returned before any attempt when a call needs to sign
// and the aggregator was built without a signer.
var ErrMissingSigner = errors.New("signer required but not configured")

// FaultKind classifies errors that blame the endpoint rather than the request.
type FaultKind int

const (
	FaultServerError FaultKind = iota
	FaultRPCError
	FaultStallTimeout
)

func (k FaultKind) String() string {
	switch k {
	case FaultServerError:
		return "server_error"
	case FaultRPCError:
		return "rpc_error"
	case FaultStallTimeout:
		return "stall_timeout"
	default:
		return "unknown"
	}
}

// ProviderFault is a provider-level failure. The execute engine moves on to
// the next provider when it sees one; every other error is returned as is.
type ProviderFault struct {
	Kind     FaultKind
	Provider string
	Method   string
	Err      error
}

func (e *ProviderFault) Error() string {
	return fmt.Sprintf("%s %s via %s: %v", e.Kind, e.Method, e.Provider, e.Err)
}

func (e *ProviderFault) Unwrap() error { return e.Err }

// IsProviderFault reports whether err is, or wraps, a *ProviderFault.
func IsProviderFault(err error) bool {
	var pf *ProviderFault
	return errors.As(err, &pf)
}

// RPCError aggregates the faults of every provider tried in single-provider mode.
type RPCError struct {
	Method string
	Errors []error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s failed on all %d providers: %s", e.Method, len(e.Errors), joinErrors(e.Errors))
}

func (e *RPCError) Unwrap() []error { return e.Errors }

// QuorumNotMetError means no group of identical results reached the quorum.
type QuorumNotMetError struct {
	Method       string
	Quorum       int
	Providers    int
	Responses    int
	LargestGroup int
	Errors       []error
}

func (e *QuorumNotMetError) Error() string {
	return fmt.Sprintf("%s quorum not met: need %d, largest group %d (%d responses from %d providers, %d errors)",
		e.Method, e.Quorum, e.LargestGroup, e.Responses, e.Providers, len(e.Errors))
}

func (e *QuorumNotMetError) Unwrap() []error { return e.Errors }

// TransactionRevertedError carries every broadcast hash whose receipt reported
// status 0 while no sibling broadcast succeeded.
type TransactionRevertedError struct {
	Hashes []common.Hash
}

func (e *TransactionRevertedError) Error() string {
	hs := make([]string, len(e.Hashes))
	for i, h := range e.Hashes {
		hs[i] = h.Hex()
	}
	return fmt.Sprintf("transaction reverted: %s", strings.Join(hs, ", "))
}

// OperationTimeoutError is returned when confirmation polling outlives its
// deadline. It carries what was last observed so the caller can decide on
// resubmission.
type OperationTimeoutError struct {
	Confirmations int
	Remaining     int
	Reverted      []common.Hash
	Errors        []error
	TimedOut      bool
	Mined         bool
	Elapsed       time.Duration
	Timeout       time.Duration
}

func (e *OperationTimeoutError) Error() string {
	return fmt.Sprintf("confirmation timed out after %s (timeout %s): mined=%t remaining=%d/%d reverted=%d errors=%d",
		e.Elapsed.Round(time.Millisecond), e.Timeout, e.Mined, e.Remaining, e.Confirmations, len(e.Reverted), len(e.Errors))
}

func (e *OperationTimeoutError) Unwrap() []error { return e.Errors }

func joinErrors(errs []error) string {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		parts = append(parts, err.Error())
	}
	return strings.Join(parts, "; ")
}
