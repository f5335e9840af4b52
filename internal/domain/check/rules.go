package check

// RuleID identifies one rule of the fixed security catalogue.
type RuleID string

const (
	RuleSignerThreshold     RuleID = "signer_threshold"
	RuleThresholdPercentage RuleID = "threshold_percentage"
	RuleSafeVersion         RuleID = "safe_version"
	RuleContractAge         RuleID = "contract_age"
	RuleNonce               RuleID = "multisig_nonce"
	RuleLastTransaction     RuleID = "last_transaction"
	RuleOptionalModules     RuleID = "optional_modules"
	RuleTransactionGuard    RuleID = "transaction_guard"
	RuleFallbackHandler     RuleID = "fallback_handler"
	RuleChainConfiguration  RuleID = "chain_configuration"
	RuleOwnerActivity       RuleID = "owner_activity"
	RuleEmergencyRecovery   RuleID = "emergency_recovery"
	RuleContractSigners     RuleID = "contract_signers"
	RuleSignerReuse         RuleID = "multi_chain_signer_reuse"
)

// RuleMeta is the static metadata attached to a rule.
type RuleMeta struct {
	ID          RuleID `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

// ruleOrder is the catalogue order used in every report.
var ruleOrder = []RuleID{
	RuleSignerThreshold,
	RuleThresholdPercentage,
	RuleSafeVersion,
	RuleContractAge,
	RuleNonce,
	RuleLastTransaction,
	RuleOptionalModules,
	RuleTransactionGuard,
	RuleFallbackHandler,
	RuleChainConfiguration,
	RuleOwnerActivity,
	RuleEmergencyRecovery,
	RuleContractSigners,
	RuleSignerReuse,
}

// ruleCatalogue weights sum to 100; score_test.go enforces it.
var ruleCatalogue = map[RuleID]RuleMeta{
	RuleSignerThreshold: {
		Title:       "Signer Threshold",
		Category:    "Signing Policy",
		Description: "Number of signatures required to execute a transaction. Four or more is recommended; a single signer is a single point of failure.",
		Weight:      12,
	},
	RuleThresholdPercentage: {
		Title:       "Signer Threshold Percentage",
		Category:    "Signing Policy",
		Description: "Share of owners that must sign. A majority (51% or more) prevents a minority of compromised keys from moving funds.",
		Weight:      12,
	},
	RuleSafeVersion: {
		Title:       "Safe Version",
		Category:    "Contract",
		Description: "Deployed Safe contract version compared with the latest audited releases.",
		Weight:      8,
	},
	RuleContractAge: {
		Title:       "Contract Creation Date",
		Category:    "Contract",
		Description: "Age of the Safe contract. Recently deployed Safes have had little time to establish trust.",
		Weight:      6,
	},
	RuleNonce: {
		Title:       "Multisig Nonce",
		Category:    "Usage",
		Description: "Number of executed transactions, used as a proxy for operational maturity.",
		Weight:      5,
	},
	RuleLastTransaction: {
		Title:       "Last Transaction Date",
		Category:    "Usage",
		Description: "Time since the Safe last executed a transaction. Long inactivity suggests stale signer key management.",
		Weight:      5,
	},
	RuleOptionalModules: {
		Title:       "Optional Modules",
		Category:    "Extensions",
		Description: "Modules can execute transactions without owner signatures and widen the attack surface.",
		Weight:      8,
	},
	RuleTransactionGuard: {
		Title:       "Transaction Guard",
		Category:    "Extensions",
		Description: "Guards can veto transactions; a faulty guard can lock the Safe.",
		Weight:      5,
	},
	RuleFallbackHandler: {
		Title:       "Fallback Handler",
		Category:    "Extensions",
		Description: "The fallback handler receives calls matching no Safe function. Only official handlers are considered safe.",
		Weight:      6,
	},
	RuleChainConfiguration: {
		Title:       "Chain Configuration",
		Category:    "Cross-Chain",
		Description: "Whether the same Safe address is deployed on more than one supported chain.",
		Weight:      5,
	},
	RuleOwnerActivity: {
		Title:       "Owner Activity Analysis",
		Category:    "Signers",
		Description: "Owner keys that also transact outside the Safe are more exposed than keys dedicated to signing.",
		Weight:      6,
	},
	RuleEmergencyRecovery: {
		Title:       "Emergency Recovery Mechanisms",
		Category:    "Signers",
		Description: "Recovery modules must not be able to take over the Safe with fewer approvals than the Safe threshold.",
		Weight:      8,
	},
	RuleContractSigners: {
		Title:       "Contract Signers",
		Category:    "Signers",
		Description: "Owners that are themselves contracts inherit that contract's security model.",
		Weight:      6,
	},
	RuleSignerReuse: {
		Title:       "Multi-Chain Signer Analysis",
		Category:    "Cross-Chain",
		Description: "Owners reused across chains expose every deployment to a replay of the same compromised key.",
		Weight:      8,
	},
}

// Rules returns the full catalogue in report order.
func Rules() []RuleMeta {
	out := make([]RuleMeta, 0, len(ruleOrder))
	for _, id := range ruleOrder {
		meta := ruleCatalogue[id]
		meta.ID = id
		out = append(out, meta)
	}
	return out
}

// Meta returns the metadata for id.
func Meta(id RuleID) (RuleMeta, bool) {
	meta, ok := ruleCatalogue[id]
	if ok {
		meta.ID = id
	}
	return meta, ok
}

// Title returns the display title for id, or the raw id if unknown.
func (id RuleID) Title() string {
	if meta, ok := ruleCatalogue[id]; ok {
		return meta.Title
	}
	return string(id)
}
