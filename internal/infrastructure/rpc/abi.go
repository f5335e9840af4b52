package rpc

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// safeABIJSON is the subset of the Safe singleton ABI read by the fetcher.
const safeABIJSON = `[
 {"type":"function","name":"VERSION","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
 {"type":"function","name":"getThreshold","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getOwners","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
 {"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getModulesPaginated","stateMutability":"view",
  "inputs":[{"name":"start","type":"address"},{"name":"pageSize","type":"uint256"}],
  "outputs":[{"name":"array","type":"address[]"},{"name":"next","type":"address"}]}
]`

// recoveryABIJSON covers recovery modules that expose their own threshold.
const recoveryABIJSON = `[
 {"type":"function","name":"threshold","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const erc20ABIJSON = `[
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// factoryABIJSON declares ProxyCreation without indexed fields; 1.4.x
// factories index the proxy, which parseProxyCreation handles via topics.
const factoryABIJSON = `[
 {"type":"event","name":"ProxyCreation","anonymous":false,
  "inputs":[{"name":"proxy","type":"address","indexed":false},{"name":"singleton","type":"address","indexed":false}]}
]`

var (
	SafeABI     = mustABI(safeABIJSON)
	RecoveryABI = mustABI(recoveryABIJSON)
	ERC20ABI    = mustABI(erc20ABIJSON)
	FactoryABI  = mustABI(factoryABIJSON)
)

var (
	// GuardStorageSlot holds the transaction guard address.
	GuardStorageSlot = crypto.Keccak256Hash([]byte("guard_manager.guard.address"))
	// FallbackHandlerStorageSlot holds the fallback handler address.
	FallbackHandlerStorageSlot = crypto.Keccak256Hash([]byte("fallback_manager.handler.address"))
	// ProxyCreationTopic is the topic0 of the factory ProxyCreation event.
	ProxyCreationTopic = FactoryABI.Events["ProxyCreation"].ID
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// addressFromWord reads the low 20 bytes of a storage word.
func addressFromWord(word []byte) common.Address {
	return common.BytesToAddress(word)
}
