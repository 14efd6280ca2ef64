// Package witnessdb exposes a verified EthereumState plus an ancestor
// header chain as a read-only EVM database: basic account info, storage
// slots, and historical block hashes. Every lookup after construction is a
// map hit; a touched-but-unpopulated key is a witness-closure bug in the
// caller (the client input did not actually name everything execution
// needed), not a recoverable runtime condition.
package witnessdb

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// AccountInfo is the account data exposed to the EVM: everything but the
// account's storage, which is served separately by Storage.
type AccountInfo struct {
	Nonce    uint64
	Balance  *uint256.Int
	CodeHash common.Hash
	Code     []byte // nil iff CodeHash is the empty-keccak hash
}

// WitnessDB is the read-only database the in-zkVM EVM executes against. It
// is built once per block by Build and never mutated; the executor layers
// its own read-write overlay on top of it (see package client).
type WitnessDB struct {
	accounts    map[common.Address]AccountInfo
	storage     map[common.Address]map[common.Hash]common.Hash
	blockHashes map[uint64]common.Hash
}

// Basic returns the account info for addr, and whether the address has any
// account at all. A touched address with no account leaf is not stored by
// Build, so it reads back as the zero AccountInfo with ok=false.
func (w *WitnessDB) Basic(addr common.Address) (AccountInfo, bool) {
	info, ok := w.accounts[addr]
	return info, ok
}

// CodeByHash returns the bytecode for hash, if it was attached to any
// touched account during Build. Not used by the in-zkVM path itself (code
// travels attached to AccountInfo), but kept for parity with the external
// EVM database contract and for tooling that wants a hash-keyed lookup.
func (w *WitnessDB) CodeByHash(hash common.Hash) ([]byte, bool) {
	for _, info := range w.accounts {
		if info.CodeHash == hash {
			return info.Code, info.Code != nil
		}
	}
	return nil, false
}

// Storage returns the value at (addr, slot). Both the zero value and "not
// present" read as the zero hash, matching the EVM's SLOAD semantics for an
// unset slot.
func (w *WitnessDB) Storage(addr common.Address, slot common.Hash) common.Hash {
	if m, ok := w.storage[addr]; ok {
		return m[slot]
	}
	return common.Hash{}
}

// BlockHash returns the hash of the ancestor block at number. Only numbers
// within the input's ancestor window are populated; a lookup outside that
// window panics, since it means the block executed an opcode the input's
// witness did not actually cover.
func (w *WitnessDB) BlockHash(number uint64) common.Hash {
	h, ok := w.blockHashes[number]
	if !ok {
		panic("witnessdb: block_hash_ref outside ancestor window (witness closure violation)")
	}
	return h
}
