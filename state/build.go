package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/succinctlabs/rsp/mpt"
)

// StorageSlotProof is one slot's Merkle proof within an AccountProof.
type StorageSlotProof struct {
	Key   common.Hash
	Proof [][]byte // RLP-encoded storage-trie nodes, root to leaf
}

// AccountProof is a single eth_getProof response: the account's own Merkle
// proof plus the proofs for whichever storage slots were requested with it.
type AccountProof struct {
	Address       common.Address
	AccountProof  [][]byte // RLP-encoded state-trie nodes, root to leaf
	StorageProofs []StorageSlotProof
}

// ExecutionWitness is the bulk, unkeyed alternative to a list of
// eth_getProof responses: every trie node touched this block, with no
// account/slot structure, plus the set of addresses the caller cares about
// (so storage tries can be resolved and indexed by address).
type ExecutionWitness struct {
	Nodes     [][]byte
	Addresses []common.Address
}

func nodeTable(groups ...[][]byte) map[[32]byte][]byte {
	table := map[[32]byte][]byte{}
	for _, nodes := range groups {
		for _, raw := range nodes {
			table[crypto.Keccak256Hash(raw)] = raw
		}
	}
	return table
}

// FromTransitionProofs builds the pre-block EthereumState from account
// proofs taken before and after the block's execution. The "before" proofs
// must resolve the state trie to preRoot; "after" proofs contribute
// additional trie nodes (e.g. freshly created accounts' storage tries) that
// the post-execution update step may need to read back out through the
// trie-node oracle, so their nodes are folded into the same resolution
// table. An address present only in "after" (a brand-new account) is simply
// absent from the resolved pre-state, per spec: an empty before-proof on
// account creation is not an error.
func FromTransitionProofs(preRoot common.Hash, before, after []AccountProof) (*EthereumState, error) {
	var allNodes [][]byte
	addrs := make(map[common.Address]bool)
	for _, p := range append(append([]AccountProof{}, before...), after...) {
		addrs[p.Address] = true
		allNodes = append(allNodes, p.AccountProof...)
		for _, sp := range p.StorageProofs {
			allNodes = append(allNodes, sp.Proof...)
		}
	}
	table := nodeTable(allNodes)

	root, err := mpt.Resolve(mpt.Digest{Hash: preRoot}, table)
	if err != nil {
		return nil, fmt.Errorf("state: resolve state trie: %w", err)
	}
	st := &EthereumState{StateTrie: root, StorageTries: map[common.Address]mpt.Node{}}

	got, err := st.StateRoot()
	if err != nil {
		return nil, err
	}
	if got != preRoot {
		return nil, fmt.Errorf("state: state trie root %s does not match claimed pre-root %s", got, preRoot)
	}

	for addr := range addrs {
		acct, ok, err := st.Account(addr)
		if err != nil {
			return nil, err
		}
		if !ok || emptyStorageRoot(acct.Root) {
			continue
		}
		strie, err := mpt.Resolve(mpt.Digest{Hash: acct.Root}, table)
		if err != nil {
			return nil, fmt.Errorf("state: resolve storage trie for %s: %w", addr, err)
		}
		st.StorageTries[addr] = strie
	}
	return st, nil
}

// FromExecutionWitness builds the pre-block EthereumState from a bulk
// witness: every RLP-encoded node is indexed by hash, the state trie is
// located by matching preRoot, and then the storage trie for each named
// address is resolved if its account has a non-empty storage root. A
// storage trie that does not rehash to its account's storage root (for
// example because the witness lacks its root node) is left out of
// StorageTries; witnessdb construction is what turns that into a hard
// failure, and only for accounts whose storage was actually touched.
func FromExecutionWitness(witness ExecutionWitness, preRoot common.Hash) (*EthereumState, error) {
	table := nodeTable(witness.Nodes)

	root, err := mpt.Resolve(mpt.Digest{Hash: preRoot}, table)
	if err != nil {
		return nil, fmt.Errorf("state: resolve state trie: %w", err)
	}
	st := &EthereumState{StateTrie: root, StorageTries: map[common.Address]mpt.Node{}}

	got, err := st.StateRoot()
	if err != nil {
		return nil, err
	}
	if got != preRoot {
		return nil, fmt.Errorf("state: state trie root %s does not match claimed pre-root %s", got, preRoot)
	}

	for _, addr := range witness.Addresses {
		acct, ok, err := st.Account(addr)
		if err != nil {
			return nil, err
		}
		if !ok || emptyStorageRoot(acct.Root) {
			continue
		}
		strie, err := mpt.Resolve(mpt.Digest{Hash: acct.Root}, table)
		if err != nil {
			return nil, fmt.Errorf("state: resolve storage trie for %s: %w", addr, err)
		}
		shash, err := mpt.Hash(strie)
		if err != nil {
			return nil, err
		}
		if common.Hash(shash) != acct.Root {
			// The resolved trie does not rehash to the account's storage
			// root; leave it out rather than record an unverifiable trie.
			// (A trie whose root node is present but some deeper nodes are
			// not still rehashes correctly, and is kept.)
			continue
		}
		st.StorageTries[addr] = strie
	}
	return st, nil
}

func emptyStorageRoot(root common.Hash) bool {
	return root == (common.Hash{}) || root == types.EmptyRootHash
}
