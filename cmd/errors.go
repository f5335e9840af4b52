package cmd

import (
	"errors"
	"fmt"

	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

// Process exit codes.
const (
	exitOK            = 0
	exitFailure       = 1
	exitInvalidInput  = 2
	exitNotASafe      = 3
	exitNetwork       = 4
	exitPartialFailed = 5
)

// UnsupportedChainError indicates a --chain value missing from the registry.
type UnsupportedChainError struct {
	Chain string
	Known []string
}

func (e *UnsupportedChainError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("unsupported chain %q", e.Chain)
	}
	return fmt.Sprintf("unsupported chain %q (known: %v)", e.Chain, e.Known)
}

func (e *UnsupportedChainError) Unwrap() error {
	return domainerrors.ErrUnsupportedChain
}

// AnalysisFailedError reports a terminal failure for one Safe.
type AnalysisFailedError struct {
	Address  string
	ChainID  uint64
	Category string
	Err      error
}

func (e *AnalysisFailedError) Error() string {
	return fmt.Sprintf("analysis of %s on chain %d failed (%s): %v", e.Address, e.ChainID, e.Category, e.Err)
}

func (e *AnalysisFailedError) Unwrap() error {
	return e.Err
}

// BatchFailedError signals that at least one target of a batch failed.
type BatchFailedError struct {
	Failed int
	Total  int
}

func (e *BatchFailedError) Error() string {
	return fmt.Sprintf("%d of %d analyses failed", e.Failed, e.Total)
}

// OutputFormatError rejects an unknown --output value.
type OutputFormatError struct {
	Format string
}

func (e *OutputFormatError) Error() string {
	return fmt.Sprintf("unknown output format %q (want human, json, csv or markdown)", e.Format)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var batch *BatchFailedError
	if errors.As(err, &batch) {
		return exitPartialFailed
	}
	var format *OutputFormatError
	if errors.As(err, &format) {
		return exitInvalidInput
	}
	var failed *AnalysisFailedError
	if errors.As(err, &failed) && failed.Category != "" {
		return categoryExitCode(failed.Category)
	}
	return categoryExitCode(domainerrors.Category(err))
}

func categoryExitCode(category string) int {
	switch category {
	case "InvalidAddress", "UnsupportedChain":
		return exitInvalidInput
	case "NotASafe":
		return exitNotASafe
	case "NetworkError":
		return exitNetwork
	}
	return exitFailure
}
