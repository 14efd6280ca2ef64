package client

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/params"
)

// Chain IDs this executor recognizes out of the box (spec §6).
const (
	ChainIDMainnet   = 1
	ChainIDOPMainnet = 10
	ChainIDLinea     = 59144
	ChainIDSepolia   = 11155111
)

// ChainSpec carries the canonical genesis + hard-fork schedule for the
// chain a ClientInput claims to belong to. Custom carries an arbitrary
// genesis for chains outside the four recognized IDs.
type ChainSpec struct {
	ChainID uint64
	Config  *params.ChainConfig
	Genesis *core.Genesis // nil unless this is a Custom chain spec
}

// IsLineaFamily reports whether this chain is one of the Linea networks,
// which have the consensus-error whitelist applied during post-execution
// validation (spec §4.4).
func (c ChainSpec) IsLineaFamily() bool {
	switch c.ChainID {
	case ChainIDLinea, chainIDLineaSepolia, chainIDLineaGoerli:
		return true
	default:
		return false
	}
}

const (
	chainIDLineaSepolia = 59141
	chainIDLineaGoerli  = 59140
)

// ChainSpecFor resolves chainID to its canonical ChainSpec, or an error if
// the ID is not one of the recognized chains and no custom genesis is
// supplied. Mainnet and Sepolia use go-ethereum's own chain configs. OP
// Mainnet uses a copy of the Ethereum mainnet config with only the chain ID
// changed; no OP-specific hard-fork schedule is applied. Linea activates
// forks through London only, with no block-reward step.
func ChainSpecFor(chainID uint64, customGenesis json.RawMessage) (ChainSpec, error) {
	switch chainID {
	case ChainIDMainnet:
		return ChainSpec{ChainID: chainID, Config: params.MainnetChainConfig}, nil
	case ChainIDSepolia:
		return ChainSpec{ChainID: chainID, Config: params.SepoliaChainConfig}, nil
	case ChainIDOPMainnet:
		return ChainSpec{ChainID: chainID, Config: opMainnetConfig()}, nil
	case ChainIDLinea, chainIDLineaSepolia, chainIDLineaGoerli:
		return ChainSpec{ChainID: chainID, Config: lineaConfig(chainID)}, nil
	default:
		if len(customGenesis) == 0 {
			return ChainSpec{}, fmt.Errorf("client: unrecognized chain id %d and no custom genesis supplied", chainID)
		}
		var genesis core.Genesis
		if err := json.Unmarshal(customGenesis, &genesis); err != nil {
			return ChainSpec{}, fmt.Errorf("client: decode custom genesis: %w", err)
		}
		return ChainSpec{ChainID: chainID, Config: genesis.Config, Genesis: &genesis}, nil
	}
}

// opMainnetConfig mirrors mainnet's Ethereum-side fork schedule; OP Stack
// execution-layer semantics otherwise follow go-ethereum's own EVM exactly,
// with the chain ID distinguishing it for signature replay protection.
func opMainnetConfig() *params.ChainConfig {
	cfg := *params.MainnetChainConfig
	cfg.ChainID = new(big.Int).SetUint64(ChainIDOPMainnet)
	return &cfg
}

// lineaConfig activates forks through London only: Linea is a Clique-style
// chain with a custom beneficiary replacing the block-reward step and does
// not implement the Merge or later upgrades.
func lineaConfig(chainID uint64) *params.ChainConfig {
	cfg := *params.MainnetChainConfig
	cfg.ChainID = new(big.Int).SetUint64(chainID)
	cfg.MergeNetsplitBlock = nil
	cfg.TerminalTotalDifficulty = nil
	cfg.ShanghaiTime = nil
	cfg.CancunTime = nil
	cfg.PragueTime = nil
	return &cfg
}
