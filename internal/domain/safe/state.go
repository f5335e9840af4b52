package safe

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

// State is a snapshot of a Safe's on-chain configuration at one block.
// It is built once per analysis and must not be modified afterwards.
type State struct {
	Address         common.Address   `json:"address"`
	ChainID         uint64           `json:"chain_id"`
	BlockNumber     uint64           `json:"block_number"`
	Version         string           `json:"version"`
	Threshold       uint64           `json:"threshold"`
	Owners          []common.Address `json:"owners"`
	Nonce           uint64           `json:"nonce"`
	Modules         []common.Address `json:"modules"`
	Guard           *common.Address  `json:"guard,omitempty"`
	FallbackHandler *common.Address  `json:"fallback_handler,omitempty"`
	CreatedAt       *time.Time       `json:"created_at,omitempty"`
	LastTxAt        *time.Time       `json:"last_tx_at,omitempty"`
}

// Validate enforces the structural invariants every Safe satisfies.
func (s *State) Validate() error {
	if s.Threshold < 1 {
		return fmt.Errorf("%w: threshold %d", domainerrors.ErrMalformed, s.Threshold)
	}
	if uint64(len(s.Owners)) < s.Threshold {
		return fmt.Errorf("%w: %d owner(s) for threshold %d", domainerrors.ErrMalformed, len(s.Owners), s.Threshold)
	}
	seen := make(map[common.Address]struct{}, len(s.Owners))
	for _, owner := range s.Owners {
		if _, dup := seen[owner]; dup {
			return fmt.Errorf("%w: duplicate owner %s", domainerrors.ErrMalformed, owner.Hex())
		}
		seen[owner] = struct{}{}
	}
	return nil
}

// OwnerSet returns the owners as a set.
func (s *State) OwnerSet() map[common.Address]struct{} {
	set := make(map[common.Address]struct{}, len(s.Owners))
	for _, owner := range s.Owners {
		set[owner] = struct{}{}
	}
	return set
}

// OwnerCount is the number of owners.
func (s *State) OwnerCount() int {
	return len(s.Owners)
}

// HasGuard reports whether a transaction guard is set.
func (s *State) HasGuard() bool {
	return s.Guard != nil && *s.Guard != (common.Address{})
}

// HasFallbackHandler reports whether a fallback handler is set.
func (s *State) HasFallbackHandler() bool {
	return s.FallbackHandler != nil && *s.FallbackHandler != (common.Address{})
}

// NonZero returns a pointer to addr, or nil for the zero address.
func NonZero(addr common.Address) *common.Address {
	if addr == (common.Address{}) {
		return nil
	}
	return &addr
}
