package witnessdb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/succinctlabs/rsp/state"
)

// BuildInput is everything Build needs: the resolved pre-block state, the
// block header's claimed parent state root, every address touched this
// block together with whichever of its slots were read, the bytecode table
// keyed by code hash, and the ancestor header chain (newest first: index 0
// is the immediate parent of the block being executed, contiguous and
// reverse-chronological).
type BuildInput struct {
	State          *state.EthereumState
	ClaimedPreRoot common.Hash
	TouchedSlots   map[common.Address][]common.Hash
	Bytecodes      map[common.Hash][]byte
	Ancestors      []*types.Header
}

// Build validates and constructs a WitnessDB, in the three steps described
// in the witness DB's construction contract: state-root match, per-account
// bytecode/storage attachment, and ancestor-chain consistency.
func Build(in BuildInput) (*WitnessDB, error) {
	got, err := in.State.StateRoot()
	if err != nil {
		return nil, err
	}
	if got != in.ClaimedPreRoot {
		return nil, &MismatchedStateRootError{Got: got, Want: in.ClaimedPreRoot}
	}

	w := &WitnessDB{
		accounts:    make(map[common.Address]AccountInfo, len(in.TouchedSlots)),
		storage:     make(map[common.Address]map[common.Hash]common.Hash),
		blockHashes: make(map[uint64]common.Hash, len(in.Ancestors)),
	}

	for addr, slots := range in.TouchedSlots {
		acct, ok, err := in.State.Account(addr)
		if err != nil {
			return nil, err
		}
		if ok {
			info := AccountInfo{
				Nonce:    acct.Nonce,
				Balance:  acct.Balance,
				CodeHash: common.BytesToHash(acct.CodeHash),
			}
			if info.CodeHash != types.EmptyCodeHash {
				code, ok := in.Bytecodes[info.CodeHash]
				if !ok {
					return nil, &MissingBytecodeError{Address: addr, CodeHash: info.CodeHash}
				}
				info.Code = code
			}
			w.accounts[addr] = info
		}

		if len(slots) == 0 {
			continue
		}
		if _, ok := in.State.StorageTries[addr]; !ok {
			return nil, &MissingTrieError{Address: addr}
		}
		m := make(map[common.Hash]common.Hash, len(slots))
		for _, slot := range slots {
			v, err := in.State.StorageValue(addr, slot)
			if err != nil {
				return nil, err
			}
			m[slot] = v
		}
		w.storage[addr] = m
	}

	for i, h := range in.Ancestors {
		w.blockHashes[h.Number.Uint64()] = h.Hash()
		if i+1 >= len(in.Ancestors) {
			continue
		}
		parent := in.Ancestors[i+1]
		if h.Number.Uint64() != parent.Number.Uint64()+1 {
			return nil, &InvalidHeaderBlockNumberError{Expected: parent.Number.Uint64() + 1, Got: h.Number.Uint64()}
		}
		if h.ParentHash != parent.Hash() {
			return nil, &InvalidHeaderParentHashError{Expected: parent.Hash(), Got: h.ParentHash}
		}
	}

	return w, nil
}
