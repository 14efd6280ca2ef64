// Package state reconstructs and updates a partial Ethereum world state from
// the account/storage proofs carried in a client input: a state trie of
// hashed-address -> RLP account, paired with one storage trie per touched
// account. It never holds more of the trie than was proven, and mutation
// keeps that invariant: an update only ever touches paths a write actually
// names.
package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/succinctlabs/rsp/mpt"
)

// EthereumState pairs a state trie (keyed by Keccak(address)) with a storage
// trie per account that has one, keyed by the same hashed-address.
type EthereumState struct {
	StateTrie    mpt.Node
	StorageTries map[common.Address]mpt.Node
}

// HashedAddress returns the state-trie key for addr: the Keccak-256 hash of
// its 20 bytes, expanded to nibbles.
func HashedAddress(addr common.Address) mpt.Nibbles {
	h := crypto.Keccak256Hash(addr.Bytes())
	return mpt.KeyToNibbles(h.Bytes())
}

// HashedSlot returns the storage-trie key for a storage slot.
func HashedSlot(slot common.Hash) mpt.Nibbles {
	h := crypto.Keccak256Hash(slot.Bytes())
	return mpt.KeyToNibbles(h.Bytes())
}

// Account looks up addr's account in the state trie. ok is false if the
// address has no leaf (the account does not exist in this state).
func (s *EthereumState) Account(addr common.Address) (acct types.StateAccount, ok bool, err error) {
	found, err := mpt.GetRLP(s.StateTrie, HashedAddress(addr), &acct)
	if err != nil {
		return types.StateAccount{}, false, fmt.Errorf("state: decode account %s: %w", addr, err)
	}
	return acct, found, nil
}

// StorageValue looks up a single storage slot for addr, returning the zero
// hash if either the account has no storage trie or the slot is unset.
func (s *EthereumState) StorageValue(addr common.Address, slot common.Hash) (common.Hash, error) {
	trie, ok := s.StorageTries[addr]
	if !ok {
		return common.Hash{}, nil
	}
	var raw []byte
	found, err := mpt.GetRLP(trie, HashedSlot(slot), &raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("state: decode storage %s/%s: %w", addr, slot, err)
	}
	if !found {
		return common.Hash{}, nil
	}
	var out common.Hash
	copy(out[32-len(raw):], raw)
	return out, nil
}

// StateRoot returns the Keccak hash of the state trie's canonical encoding.
func (s *EthereumState) StateRoot() (common.Hash, error) {
	h, err := mpt.Hash(s.StateTrie)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(h), nil
}

// encodeAccount RLP-encodes acct the way go-ethereum's secure state trie
// does: {nonce, balance, storageRoot, codeHash}.
func encodeAccount(acct types.StateAccount) ([]byte, error) {
	return rlp.EncodeToBytes(&acct)
}
