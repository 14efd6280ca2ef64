package state

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/succinctlabs/rsp/mpt"
)

// Update applies post as a batch: every storage write lands in its account's
// storage trie first (so each account's new storage_root is known), then
// every account upsert/destroy lands in the state trie. oracle backs the
// rare branch-collapse case in the underlying hash builder (see
// mpt.HashBuilder); it may be nil if the caller is confident no collapse in
// this update needs an out-of-band preimage.
func (s *EthereumState) Update(post HashedPostState, oracle mpt.Oracle) error {
	hb := &mpt.HashBuilder{Oracle: oracle}

	byAddr := make(map[common.Address][]mpt.Write)
	for _, w := range post.Storage {
		var enc []byte
		if trimmed := bytes.TrimLeft(w.Value, "\x00"); len(trimmed) > 0 {
			var err error
			enc, err = rlp.EncodeToBytes(trimmed)
			if err != nil {
				return fmt.Errorf("state: encode storage value for %s/%s: %w", w.Address, w.Slot, err)
			}
		}
		byAddr[w.Address] = append(byAddr[w.Address], mpt.Write{Key: HashedSlot(w.Slot), Value: enc})
	}

	for addr, writes := range byAddr {
		trie, ok := s.StorageTries[addr]
		if !ok {
			trie = mpt.Null{}
		}
		newTrie, err := hb.Update(trie, writes)
		if err != nil {
			return fmt.Errorf("state: update storage trie for %s: %w", addr, err)
		}
		s.StorageTries[addr] = newTrie
	}

	stateWrites := make([]mpt.Write, 0, len(post.Accounts))
	for _, au := range post.Accounts {
		key := HashedAddress(au.Address)
		if au.Account == nil {
			delete(s.StorageTries, au.Address)
			stateWrites = append(stateWrites, mpt.Write{Key: key, Value: nil})
			continue
		}
		acct := *au.Account
		if trie, ok := s.StorageTries[au.Address]; ok {
			h, err := mpt.Hash(trie)
			if err != nil {
				return fmt.Errorf("state: hash storage trie for %s: %w", au.Address, err)
			}
			acct.Root = common.Hash(h)
		}
		enc, err := encodeAccount(acct)
		if err != nil {
			return fmt.Errorf("state: encode account %s: %w", au.Address, err)
		}
		stateWrites = append(stateWrites, mpt.Write{Key: key, Value: enc})
	}

	newRoot, err := hb.Update(s.StateTrie, stateWrites)
	if err != nil {
		return fmt.Errorf("state: update state trie: %w", err)
	}
	s.StateTrie = newRoot
	return nil
}
