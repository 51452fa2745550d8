package adapter

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	apperrors "github.com/address-analyzer/internal/errors"
	"github.com/address-analyzer/internal/types"
)

// TransferSource supplies recent transfers used as prompt evidence.
// Implementations never fail; a network that cannot be read contributes an empty list.
type TransferSource interface {
	RecentTransfers(ctx context.Context, address string) types.TransactionContext
}

// AnalysisReader reads the on-chain analysis record of an address
type AnalysisReader interface {
	CheckAddress(ctx context.Context, address string) (*types.ChainAnalysis, error)
}

var (
	_ TransferSource = (*AlchemyClient)(nil)
	_ AnalysisReader = (*PowersReader)(nil)
)

// Common error types for chain adapters

var (
	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = fmt.Errorf("invalid address format")

	// ErrProviderUnavailable indicates the data provider is unavailable
	ErrProviderUnavailable = fmt.Errorf("data provider unavailable")

	// ErrLawInactive indicates the configured claim law is not active
	ErrLawInactive = fmt.Errorf("claim law is not active")

	// ErrUnexpectedOutput indicates a contract call returned data of the wrong shape
	ErrUnexpectedOutput = fmt.Errorf("unexpected contract output")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Chain   types.ChainID
	Op      string // Operation that failed (e.g., "getAssetTransfers", "getAddressAnalysis")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("chain adapter error [%s:%s]: %v (details: %+v)", e.Chain, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("chain adapter error [%s:%s]: %v", e.Chain, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(chain types.ChainID, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Chain:   chain,
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// categorize lifts an adapter failure into the service error taxonomy
func categorize(upstream string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, ErrLawInactive) || stderrors.Is(err, ErrUnexpectedOutput) {
		return apperrors.NewUpstreamMalformedError(upstream, err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewUpstreamTimeoutError(upstream, err)
	}
	return apperrors.NewUpstreamUnavailableError(upstream, err)
}

// shouldFailover determines if an error warrants failing over to another provider
func shouldFailover(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// Check for rate limit errors
	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return true
	}

	// Check for timeout errors
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}

	// Check for connection and gateway errors
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "status code: 5")
}
