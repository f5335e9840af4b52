package safe

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/khanhnv2901/safe-audit/internal/domain/chain"
)

// Deployment is the probe outcome for one chain. State is nil when no Safe
// was found there (or the chain could not be read); Reason says why.
type Deployment struct {
	ChainID   uint64 `json:"chain_id"`
	ChainSlug string `json:"chain"`
	ChainName string `json:"chain_name"`
	State     *State `json:"state,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Present reports whether a Safe was found on this chain.
func (d Deployment) Present() bool {
	return d.State != nil
}

// SignerReuse lists owners that control the Safe on more than one chain.
type SignerReuse struct {
	Reused []common.Address            `json:"reused"`
	Chains map[common.Address][]uint64 `json:"chains,omitempty"`
}

// Detected reports whether any owner is shared across chains.
func (r SignerReuse) Detected() bool {
	return len(r.Reused) > 0
}

// DeploymentMap holds exactly one Deployment per registry chain, in registry
// order, together with the derived multi-chain facts.
type DeploymentMap struct {
	Deployments      []Deployment `json:"deployments"`
	TotalDeployments int          `json:"total_deployments"`
	MultiChain       bool         `json:"is_multi_chain"`
	Reuse            SignerReuse  `json:"signer_reuse"`
}

// NewDeploymentMap assembles a map from per-chain slots. slots must be indexed
// like reg.All(); a nil entry is recorded as absent with the given reason.
func NewDeploymentMap(chains []chain.Descriptor, states []*State, reasons []string) DeploymentMap {
	deployments := make([]Deployment, len(chains))
	for i, desc := range chains {
		d := Deployment{
			ChainID:   desc.ID,
			ChainSlug: desc.Slug,
			ChainName: desc.Name,
		}
		if i < len(states) {
			d.State = states[i]
		}
		if d.State == nil {
			d.Reason = "not deployed"
			if i < len(reasons) && reasons[i] != "" {
				d.Reason = reasons[i]
			}
		}
		deployments[i] = d
	}

	present := 0
	for _, d := range deployments {
		if d.Present() {
			present++
		}
	}

	return DeploymentMap{
		Deployments:      deployments,
		TotalDeployments: present,
		MultiChain:       present > 1,
		Reuse:            computeSignerReuse(deployments),
	}
}

// Present returns the deployments where a Safe was found.
func (m DeploymentMap) Present() []Deployment {
	out := make([]Deployment, 0, m.TotalDeployments)
	for _, d := range m.Deployments {
		if d.Present() {
			out = append(out, d)
		}
	}
	return out
}

// Lookup returns the deployment for chainID.
func (m DeploymentMap) Lookup(chainID uint64) (Deployment, bool) {
	for _, d := range m.Deployments {
		if d.ChainID == chainID {
			return d, true
		}
	}
	return Deployment{}, false
}

// computeSignerReuse unions the pairwise owner-set intersections of every
// present deployment. Output is sorted so iteration order never leaks.
func computeSignerReuse(deployments []Deployment) SignerReuse {
	present := make([]Deployment, 0, len(deployments))
	for _, d := range deployments {
		if d.Present() {
			present = append(present, d)
		}
	}

	chainsByOwner := make(map[common.Address]map[uint64]struct{})
	for i := 0; i < len(present); i++ {
		left := present[i].State.OwnerSet()
		for j := i + 1; j < len(present); j++ {
			right := present[j].State.OwnerSet()
			for owner := range intersect(left, right) {
				if chainsByOwner[owner] == nil {
					chainsByOwner[owner] = make(map[uint64]struct{})
				}
				chainsByOwner[owner][present[i].ChainID] = struct{}{}
				chainsByOwner[owner][present[j].ChainID] = struct{}{}
			}
		}
	}

	reuse := SignerReuse{Reused: []common.Address{}}
	if len(chainsByOwner) == 0 {
		return reuse
	}

	reuse.Chains = make(map[common.Address][]uint64, len(chainsByOwner))
	for owner, chainSet := range chainsByOwner {
		reuse.Reused = append(reuse.Reused, owner)
		ids := make([]uint64, 0, len(chainSet))
		for id := range chainSet {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		reuse.Chains[owner] = ids
	}
	sort.Slice(reuse.Reused, func(a, b int) bool {
		return bytes.Compare(reuse.Reused[a][:], reuse.Reused[b][:]) < 0
	})
	return reuse
}

func intersect(a, b map[common.Address]struct{}) map[common.Address]struct{} {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(map[common.Address]struct{})
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}
