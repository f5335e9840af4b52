package check

import "github.com/ethereum/go-ethereum/common"

// officialFallbackHandlers lists fallback handlers published by Safe.
var officialFallbackHandlers = map[common.Address]string{
	common.HexToAddress("0xd5D82B6aDDc9027B22dCA772Aa68D5d74cdBdF44"): "DefaultCallbackHandler 1.1.1",
	common.HexToAddress("0xf48f2B2d2a534e402487b3ee7C18c33Aec0Fe5e4"): "CompatibilityFallbackHandler 1.3.0",
	common.HexToAddress("0x017062a1dE2FE6b99BE3d9d37841FeD19F573804"): "CompatibilityFallbackHandler 1.3.0 (eip155)",
	common.HexToAddress("0xfd0732Dc9E303f09fCEf3a7388Ad10A83459Ec99"): "CompatibilityFallbackHandler 1.4.1",
	common.HexToAddress("0x2f55e8b20D0B9FEFA187AA7d00B6Cbe563605bF5"): "ExtensibleFallbackHandler",
}

// FallbackRegistry maps known-official fallback handler addresses to names.
type FallbackRegistry map[common.Address]string

// DefaultFallbackRegistry returns a copy of the built-in registry merged with
// extra entries (address hex -> name). Invalid addresses are skipped.
func DefaultFallbackRegistry(extra map[string]string) FallbackRegistry {
	out := make(FallbackRegistry, len(officialFallbackHandlers)+len(extra))
	for addr, name := range officialFallbackHandlers {
		out[addr] = name
	}
	for hex, name := range extra {
		if !common.IsHexAddress(hex) {
			continue
		}
		out[common.HexToAddress(hex)] = name
	}
	return out
}

// Lookup returns the handler name for addr.
func (r FallbackRegistry) Lookup(addr common.Address) (string, bool) {
	name, ok := r[addr]
	return name, ok
}
