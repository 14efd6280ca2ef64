package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// AccountUpdate is one account-level change from a block's execution. A nil
// Account means the address was destroyed (SELFDESTRUCT or EIP-161 empty
// account pruning); its storage trie is dropped along with it.
type AccountUpdate struct {
	Address common.Address
	Account *types.StateAccount
}

// StorageUpdate is one storage-slot change. An empty Value deletes the slot.
type StorageUpdate struct {
	Address common.Address
	Slot    common.Hash
	Value   []byte
}

// HashedPostState is the diff produced by executing a block: every account
// upsert/destroy and every storage write, already keyed by the account
// address (the trie keys are the Keccak hash of that address/slot, computed
// by Update).
type HashedPostState struct {
	Accounts []AccountUpdate
	Storage  []StorageUpdate
}
