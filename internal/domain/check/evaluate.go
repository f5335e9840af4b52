package check

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/mod/semver"

	"github.com/khanhnv2901/safe-audit/internal/domain/safe"
	"github.com/khanhnv2901/safe-audit/internal/shared/constants"
)

// Aux carries the auxiliary facts gathered around a Safe. A nil map or
// slice means the fact could not be obtained; an empty one means it was
// obtained and is empty.
type Aux struct {
	// Releases known for the Safe contracts, any order.
	Releases []safe.Release
	// Deployments is nil when cross-chain probing was disabled.
	Deployments *safe.DeploymentMap
	// OwnerActivity maps owner -> number of transactions sent outside this Safe.
	OwnerActivity map[common.Address]int
	// OwnerKinds maps owner -> true when the owner address holds code.
	OwnerKinds map[common.Address]bool
	// RecoveryThresholds maps module -> threshold for modules that expose one.
	RecoveryThresholds map[common.Address]uint64
}

// Input bundles everything the evaluator needs.
type Input struct {
	State    *safe.State
	Aux      Aux
	Handlers FallbackRegistry
	Now      time.Time
}

type ruleFunc func(Input) Result

var evaluators = map[RuleID]ruleFunc{
	RuleSignerThreshold:     evalSignerThreshold,
	RuleThresholdPercentage: evalThresholdPercentage,
	RuleSafeVersion:         evalSafeVersion,
	RuleContractAge:         evalContractAge,
	RuleNonce:               evalNonce,
	RuleLastTransaction:     evalLastTransaction,
	RuleOptionalModules:     evalOptionalModules,
	RuleTransactionGuard:    evalTransactionGuard,
	RuleFallbackHandler:     evalFallbackHandler,
	RuleChainConfiguration:  evalChainConfiguration,
	RuleOwnerActivity:       evalOwnerActivity,
	RuleEmergencyRecovery:   evalEmergencyRecovery,
	RuleContractSigners:     evalContractSigners,
	RuleSignerReuse:         evalSignerReuse,
}

// Evaluate runs every rule of the catalogue against in and returns one
// result per rule in catalogue order. It performs no I/O.
func Evaluate(in Input) []Result {
	if in.Handlers == nil {
		in.Handlers = DefaultFallbackRegistry(nil)
	}
	results := make([]Result, 0, len(ruleOrder))
	for _, id := range ruleOrder {
		results = append(results, evaluators[id](in))
	}
	return results
}

func evalSignerThreshold(in Input) Result {
	t := in.State.Threshold
	switch {
	case t <= 1:
		return fail(RuleSignerThreshold, "Threshold is %d; a single key can move funds", t)
	case t <= 3:
		return warn(RuleSignerThreshold, "Threshold is %d; 4 or more signers is recommended", t)
	default:
		return pass(RuleSignerThreshold, "Threshold is %d signers", t)
	}
}

func evalThresholdPercentage(in Input) Result {
	t := in.State.Threshold
	n := uint64(in.State.OwnerCount())
	if n == 0 {
		return unknown(RuleThresholdPercentage, "Safe reports no owners")
	}
	pct := float64(t) * 100 / float64(n)
	switch {
	case t*100 >= 51*n:
		return pass(RuleThresholdPercentage, "%.1f%% of owners must sign (%d of %d)", pct, t, n)
	case t*100 >= 34*n:
		return warn(RuleThresholdPercentage, "%.1f%% of owners must sign (%d of %d); a majority is recommended", pct, t, n)
	default:
		return fail(RuleThresholdPercentage, "Only %.1f%% of owners must sign (%d of %d)", pct, t, n)
	}
}

func evalSafeVersion(in Input) Result {
	releases := safe.SortReleases(in.Aux.Releases)
	if len(releases) == 0 {
		return unknown(RuleSafeVersion, "Version %s; latest releases unavailable", displayVersion(in.State.Version))
	}
	current := safe.CanonicalVersion(in.State.Version)
	if current == "" {
		return unknown(RuleSafeVersion, "Unrecognized version string %q", in.State.Version)
	}

	latest := releases[0]
	if semver.Compare(current, latest.Version) > 0 {
		return warn(RuleSafeVersion, "Version %s is newer than the latest known release %s", current, latest.Version)
	}

	behind := 0
	for _, r := range releases {
		if semver.Compare(r.Version, current) > 0 {
			behind++
		}
	}

	switch {
	case behind == 0:
		return pass(RuleSafeVersion, "Version %s is the latest release", current)
	case behind == 1 && withinGrace(latest, in.Now):
		return pass(RuleSafeVersion, "Version %s; %s was released recently", current, latest.Version)
	case behind <= 2:
		return warn(RuleSafeVersion, "Version %s is %d release(s) behind %s", current, behind, latest.Version)
	default:
		return fail(RuleSafeVersion, "Version %s is %d releases behind %s", current, behind, latest.Version)
	}
}

// withinGrace is true when the latest release is young enough that running
// the previous one is still acceptable. Undated releases get the grace.
func withinGrace(latest safe.Release, now time.Time) bool {
	if latest.PublishedAt.IsZero() {
		return true
	}
	return now.Sub(latest.PublishedAt) <= constants.VersionGraceWindow
}

func displayVersion(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func evalContractAge(in Input) Result {
	if in.State.CreatedAt == nil {
		return unknown(RuleContractAge, "Creation date unavailable")
	}
	days := daysSince(*in.State.CreatedAt, in.Now)
	created := in.State.CreatedAt.UTC().Format("2006-01-02")
	switch {
	case days < 7:
		return fail(RuleContractAge, "Created %s (%d days ago)", created, days)
	case days <= 60:
		return warn(RuleContractAge, "Created %s (%d days ago)", created, days)
	default:
		return pass(RuleContractAge, "Created %s (%d days ago)", created, days)
	}
}

func evalNonce(in Input) Result {
	n := in.State.Nonce
	switch {
	case n > 10:
		return pass(RuleNonce, "%d transactions executed", n)
	case n >= 4:
		return warn(RuleNonce, "%d transactions executed; limited history", n)
	default:
		return fail(RuleNonce, "%d transactions executed; little or no history", n)
	}
}

func evalLastTransaction(in Input) Result {
	if in.State.Nonce == 0 {
		return warn(RuleLastTransaction, "Safe has never executed a transaction")
	}
	if in.State.LastTxAt == nil {
		return unknown(RuleLastTransaction, "Last transaction date unavailable")
	}
	days := daysSince(*in.State.LastTxAt, in.Now)
	last := in.State.LastTxAt.UTC().Format("2006-01-02")
	switch {
	case days <= 30:
		return pass(RuleLastTransaction, "Last transaction %s (%d days ago)", last, days)
	case days <= 90:
		return warn(RuleLastTransaction, "Last transaction %s (%d days ago)", last, days)
	default:
		return fail(RuleLastTransaction, "Last transaction %s (%d days ago); Safe looks inactive", last, days)
	}
}

func evalOptionalModules(in Input) Result {
	modules := in.State.Modules
	if len(modules) == 0 {
		return pass(RuleOptionalModules, "No modules enabled")
	}
	return warn(RuleOptionalModules, "%d module(s) enabled: %s", len(modules), shortList(modules, 3))
}

func evalTransactionGuard(in Input) Result {
	if !in.State.HasGuard() {
		return pass(RuleTransactionGuard, "No transaction guard set")
	}
	return warn(RuleTransactionGuard, "Transaction guard %s is set; review it before relying on the Safe", in.State.Guard.Hex())
}

func evalFallbackHandler(in Input) Result {
	if !in.State.HasFallbackHandler() {
		return pass(RuleFallbackHandler, "No fallback handler set")
	}
	handler := *in.State.FallbackHandler
	if name, ok := in.Handlers.Lookup(handler); ok {
		return pass(RuleFallbackHandler, "Official handler %s (%s)", name, handler.Hex())
	}
	return warn(RuleFallbackHandler, "Custom fallback handler %s", handler.Hex())
}

func evalChainConfiguration(in Input) Result {
	m := in.Aux.Deployments
	if m == nil {
		return unknown(RuleChainConfiguration, "Cross-chain probing disabled")
	}
	if !m.MultiChain {
		return pass(RuleChainConfiguration, "Deployed on a single chain")
	}
	names := make([]string, 0, m.TotalDeployments)
	for _, d := range m.Present() {
		names = append(names, d.ChainName)
	}
	return warn(RuleChainConfiguration, "Deployed on %d chains: %s", m.TotalDeployments, strings.Join(names, ", "))
}

func evalOwnerActivity(in Input) Result {
	activity := in.Aux.OwnerActivity
	if activity == nil {
		return unknown(RuleOwnerActivity, "Owner activity unavailable")
	}
	var active []common.Address
	for _, owner := range in.State.Owners {
		if activity[owner] > 0 {
			active = append(active, owner)
		}
	}
	if len(active) == 0 {
		return pass(RuleOwnerActivity, "No owner transacts outside the Safe")
	}
	return warn(RuleOwnerActivity, "%d of %d owner(s) transact outside the Safe: %s",
		len(active), in.State.OwnerCount(), shortList(active, 3))
}

func evalEmergencyRecovery(in Input) Result {
	if len(in.State.Modules) == 0 {
		return pass(RuleEmergencyRecovery, "No recovery module enabled")
	}
	thresholds := in.Aux.RecoveryThresholds
	if thresholds == nil {
		return unknown(RuleEmergencyRecovery, "Could not inspect %d enabled module(s)", len(in.State.Modules))
	}

	var weak []string
	recovery := 0
	for _, module := range in.State.Modules {
		t, ok := thresholds[module]
		if !ok {
			continue
		}
		recovery++
		if t < in.State.Threshold {
			weak = append(weak, fmt.Sprintf("%s (threshold %d)", module.Hex(), t))
		}
	}
	switch {
	case recovery == 0:
		return pass(RuleEmergencyRecovery, "No recovery module among %d enabled module(s)", len(in.State.Modules))
	case len(weak) > 0:
		return fail(RuleEmergencyRecovery, "Recovery module below Safe threshold %d: %s",
			in.State.Threshold, strings.Join(weak, ", "))
	default:
		return pass(RuleEmergencyRecovery, "%d recovery module(s) require at least the Safe threshold", recovery)
	}
}

func evalContractSigners(in Input) Result {
	kinds := in.Aux.OwnerKinds
	if kinds == nil {
		return unknown(RuleContractSigners, "Owner code lookup unavailable")
	}
	var contracts []common.Address
	for _, owner := range in.State.Owners {
		isContract, ok := kinds[owner]
		if !ok {
			return unknown(RuleContractSigners, "Code lookup missing for owner %s", owner.Hex())
		}
		if isContract {
			contracts = append(contracts, owner)
		}
	}
	if len(contracts) == 0 {
		return pass(RuleContractSigners, "All %d owner(s) are externally owned accounts", in.State.OwnerCount())
	}
	return warn(RuleContractSigners, "%d owner(s) are contracts: %s", len(contracts), shortList(contracts, 3))
}

func evalSignerReuse(in Input) Result {
	m := in.Aux.Deployments
	if m == nil {
		return unknown(RuleSignerReuse, "Cross-chain probing disabled")
	}
	if !m.MultiChain {
		return pass(RuleSignerReuse, "Not applicable; Safe is deployed on a single chain")
	}
	if !m.Reuse.Detected() {
		return pass(RuleSignerReuse, "Owner sets are distinct across %d chains", m.TotalDeployments)
	}
	return warn(RuleSignerReuse, "%d owner(s) sign on multiple chains: %s", len(m.Reuse.Reused), shortList(m.Reuse.Reused, 3))
}

func daysSince(t, now time.Time) int {
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

func shortList(addrs []common.Address, limit int) string {
	parts := make([]string, 0, limit+1)
	for i, a := range addrs {
		if i == limit {
			parts = append(parts, fmt.Sprintf("and %d more", len(addrs)-limit))
			break
		}
		parts = append(parts, a.Hex())
	}
	return strings.Join(parts, ", ")
}
