// Package chain holds the immutable table of supported networks.
//
// A Registry is built once at startup (from the embedded chains.yaml or an
// operator-supplied override file) and passed by pointer to every component.
// Nothing mutates a Registry after construction; WithEndpoints returns a copy.
package chain

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	domainerrors "github.com/khanhnv2901/safe-audit/internal/shared/errors"
)

//go:embed chains.yaml
var defaultRegistryYAML []byte

// TokenDescriptor is an ERC-20 token used when valuing a Safe's holdings.
type TokenDescriptor struct {
	Symbol   string `yaml:"symbol" json:"symbol"`
	Address  string `yaml:"address" json:"address"`
	Decimals uint8  `yaml:"decimals" json:"decimals"`
}

// Descriptor describes one supported network.
type Descriptor struct {
	ID                   uint64            `yaml:"id" json:"id"`
	Slug                 string            `yaml:"slug" json:"slug"`
	Name                 string            `yaml:"name" json:"name"`
	RPCEndpoint          string            `yaml:"rpc_url" json:"rpc_url"`
	ExplorerAPI          string            `yaml:"explorer_api" json:"explorer_api,omitempty"`
	ExplorerURL          string            `yaml:"explorer_url" json:"explorer_url,omitempty"`
	FactoryAddress       string            `yaml:"factory_address" json:"factory_address"`
	NativeCurrencySymbol string            `yaml:"native_symbol" json:"native_symbol"`
	StartBlock           uint64            `yaml:"start_block" json:"start_block"`
	LogChunkSize         uint64            `yaml:"log_chunk_size" json:"log_chunk_size"`
	Tokens               []TokenDescriptor `yaml:"tokens" json:"tokens,omitempty"`
}

// Factory returns the Safe proxy factory address.
func (d Descriptor) Factory() common.Address {
	return common.HexToAddress(d.FactoryAddress)
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%d)", d.Name, d.ID)
}

type registryFile struct {
	Chains []Descriptor `yaml:"chains"`
}

// Registry is an ordered, read-only set of chain descriptors.
type Registry struct {
	chains []Descriptor
	byID   map[uint64]int
	bySlug map[string]int
}

// Default parses the embedded registry.
func Default() (*Registry, error) {
	return Parse(defaultRegistryYAML)
}

// Load reads a registry override file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain registry: %w", err)
	}
	return Parse(data)
}

// Parse builds a Registry from YAML, validating every entry.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode chain registry: %w", err)
	}
	return New(file.Chains)
}

// New builds a Registry from descriptors, preserving their order.
func New(chains []Descriptor) (*Registry, error) {
	if len(chains) == 0 {
		return nil, domainerrors.ErrEmptyRegistry
	}

	r := &Registry{
		chains: make([]Descriptor, 0, len(chains)),
		byID:   make(map[uint64]int, len(chains)),
		bySlug: make(map[string]int, len(chains)),
	}
	for _, c := range chains {
		if err := validateDescriptor(c); err != nil {
			return nil, err
		}
		slug := strings.ToLower(c.Slug)
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("%w: id %d", domainerrors.ErrDuplicateChain, c.ID)
		}
		if _, dup := r.bySlug[slug]; dup {
			return nil, fmt.Errorf("%w: slug %s", domainerrors.ErrDuplicateChain, slug)
		}
		c.Slug = slug
		c.Tokens = append([]TokenDescriptor(nil), c.Tokens...)
		r.byID[c.ID] = len(r.chains)
		r.bySlug[slug] = len(r.chains)
		r.chains = append(r.chains, c)
	}
	return r, nil
}

func validateDescriptor(c Descriptor) error {
	switch {
	case c.ID == 0:
		return fmt.Errorf("%w: chain id is required", domainerrors.ErrMissingRequired)
	case c.Slug == "":
		return fmt.Errorf("%w: slug for chain %d", domainerrors.ErrMissingRequired, c.ID)
	case c.RPCEndpoint == "":
		return fmt.Errorf("%w: rpc_url for chain %d", domainerrors.ErrMissingRequired, c.ID)
	case c.FactoryAddress != "" && !common.IsHexAddress(c.FactoryAddress):
		return fmt.Errorf("%w: factory address %q for chain %d", domainerrors.ErrInvalidInput, c.FactoryAddress, c.ID)
	}
	for _, tok := range c.Tokens {
		if !common.IsHexAddress(tok.Address) {
			return fmt.Errorf("%w: token %s address %q for chain %d", domainerrors.ErrInvalidInput, tok.Symbol, tok.Address, c.ID)
		}
	}
	return nil
}

// Lookup finds a chain by numeric id.
func (r *Registry) Lookup(id uint64) (Descriptor, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return r.chains[idx], true
}

// Resolve accepts either a numeric chain id or a slug such as "arbitrum".
func (r *Registry) Resolve(key string) (Descriptor, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if id, err := strconv.ParseUint(key, 10, 64); err == nil {
		return r.Lookup(id)
	}
	idx, ok := r.bySlug[key]
	if !ok {
		return Descriptor{}, false
	}
	return r.chains[idx], true
}

// All returns a copy of every descriptor in registry order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.chains))
	copy(out, r.chains)
	return out
}

// Len reports the number of registered chains.
func (r *Registry) Len() int {
	return len(r.chains)
}

// Slugs returns the sorted list of chain slugs.
func (r *Registry) Slugs() []string {
	out := make([]string, 0, len(r.bySlug))
	for slug := range r.bySlug {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// WithEndpoints returns a new Registry with RPC endpoints replaced for the
// given slugs (or numeric ids). Unknown keys are ignored.
func (r *Registry) WithEndpoints(overrides map[string]string) *Registry {
	chains := r.All()
	for key, endpoint := range overrides {
		if endpoint == "" {
			continue
		}
		desc, ok := r.Resolve(key)
		if !ok {
			continue
		}
		chains[r.byID[desc.ID]].RPCEndpoint = endpoint
	}
	out, err := New(chains)
	if err != nil {
		return r
	}
	return out
}
