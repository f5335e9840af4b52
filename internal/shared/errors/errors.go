package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Input errors (terminal)
	ErrInvalidAddress   = errors.New("invalid address")
	ErrUnsupportedChain = errors.New("unsupported chain")

	// Chain read errors
	ErrNotASafe  = errors.New("address is not a Safe multisig")
	ErrNetwork   = errors.New("network error")
	ErrMalformed = errors.New("malformed contract response")

	// Auxiliary data errors (never terminal)
	ErrMissingAuxiliaryData = errors.New("auxiliary data unavailable")
	ErrExplorerDisabled     = errors.New("block explorer not configured")

	// Storage errors
	ErrReportNotFound = errors.New("no stored report")

	// Registry errors
	ErrEmptyRegistry  = errors.New("chain registry is empty")
	ErrDuplicateChain = errors.New("duplicate chain in registry")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
)

// ChainError ties a read failure to the chain and operation that produced it.
type ChainError struct {
	ChainID uint64
	Op      string
	Err     error
}

func (e *ChainError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("chain %d: %v", e.ChainID, e.Err)
	}
	return fmt.Sprintf("chain %d: %s: %v", e.ChainID, e.Op, e.Err)
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

// Wrap attaches chain context to err. Nil stays nil.
func Wrap(chainID uint64, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ChainError{ChainID: chainID, Op: op, Err: err}
}

// Category returns the short category name of err for user-facing output.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAddress):
		return "InvalidAddress"
	case errors.Is(err, ErrUnsupportedChain):
		return "UnsupportedChain"
	case errors.Is(err, ErrNotASafe), errors.Is(err, ErrMalformed):
		return "NotASafe"
	case errors.Is(err, ErrNetwork):
		return "NetworkError"
	case errors.Is(err, ErrMissingAuxiliaryData), errors.Is(err, ErrExplorerDisabled):
		return "MissingAuxiliaryData"
	default:
		return "Error"
	}
}
