package state

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/succinctlabs/rsp/mpt"
)

func testAccount(balance int64, nonce uint64) types.StateAccount {
	return types.StateAccount{
		Nonce:    nonce,
		Balance:  uint256.NewInt(uint64(balance)),
		Root:     types.EmptyRootHash,
		CodeHash: types.EmptyCodeHash.Bytes(),
	}
}

// buildState constructs a state trie directly (bypassing proofs) containing
// the given accounts, for use as the "known good" reference state s in the
// round-trip test.
func buildState(t *testing.T, accts map[common.Address]types.StateAccount) *EthereumState {
	t.Helper()
	hb := &mpt.HashBuilder{}
	var root mpt.Node = mpt.Null{}
	for addr, acct := range accts {
		enc, err := encodeAccount(acct)
		if err != nil {
			t.Fatal(err)
		}
		var err2 error
		root, err2 = hb.Update(root, []mpt.Write{{Key: HashedAddress(addr), Value: enc}})
		if err2 != nil {
			t.Fatal(err2)
		}
	}
	return &EthereumState{StateTrie: root, StorageTries: map[common.Address]mpt.Node{}}
}

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func TestStateTrieRoundTrip(t *testing.T) {
	accts := map[common.Address]types.StateAccount{
		addr(1): testAccount(100, 0),
		addr(2): testAccount(200, 5),
		addr(3): testAccount(0, 1),
	}
	s := buildState(t, accts)
	root, err := s.StateRoot()
	if err != nil {
		t.Fatal(err)
	}

	var before []AccountProof
	for a := range accts {
		proof, err := mpt.Prove(s.StateTrie, HashedAddress(a))
		if err != nil {
			t.Fatalf("prove %s: %v", a, err)
		}
		before = append(before, AccountProof{Address: a, AccountProof: proof})
	}

	rebuilt, err := FromTransitionProofs(root, before, nil)
	if err != nil {
		t.Fatalf("FromTransitionProofs: %v", err)
	}

	if err := rebuilt.Update(HashedPostState{}, nil); err != nil {
		t.Fatalf("empty update: %v", err)
	}

	got, err := rebuilt.StateRoot()
	if err != nil {
		t.Fatal(err)
	}
	if got != root {
		t.Fatalf("state root after empty update = %s, want %s", got, root)
	}

	for a, want := range accts {
		gotAcct, ok, err := rebuilt.Account(a)
		if err != nil || !ok {
			t.Fatalf("account(%s): found=%v err=%v", a, ok, err)
		}
		if gotAcct.Nonce != want.Nonce || gotAcct.Balance.Cmp(want.Balance) != 0 {
			t.Fatalf("account(%s) = %+v, want %+v", a, gotAcct, want)
		}
	}
}

func TestUpdateAccountBalance(t *testing.T) {
	a := addr(7)
	s := buildState(t, map[common.Address]types.StateAccount{a: testAccount(10, 0)})

	newAcct := testAccount(999, 1)
	err := s.Update(HashedPostState{
		Accounts: []AccountUpdate{{Address: a, Account: &newAcct}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Account(a)
	if err != nil || !ok {
		t.Fatalf("account: found=%v err=%v", ok, err)
	}
	if got.Nonce != 1 || got.Balance.Cmp(uint256.NewInt(999)) != 0 {
		t.Fatalf("account after update = %+v", got)
	}
}

func TestUpdateStorageAffectsAccountRoot(t *testing.T) {
	a := addr(9)
	acct := testAccount(0, 0)
	s := buildState(t, map[common.Address]types.StateAccount{a: acct})

	slot := crypto.Keccak256Hash([]byte("slot"))
	val := common.BigToHash(big.NewInt(42)).Bytes()

	newAcct := acct
	err := s.Update(HashedPostState{
		Storage:  []StorageUpdate{{Address: a, Slot: slot, Value: val}},
		Accounts: []AccountUpdate{{Address: a, Account: &newAcct}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Account(a)
	if err != nil || !ok {
		t.Fatalf("account: found=%v err=%v", ok, err)
	}
	if got.Root == types.EmptyRootHash {
		t.Fatal("expected non-empty storage root after write")
	}

	v, err := s.StorageValue(a, slot)
	if err != nil {
		t.Fatal(err)
	}
	if v != common.BigToHash(big.NewInt(42)) {
		t.Fatalf("storage value = %s, want 42", v.Hex())
	}
}

func TestAccountDestroyRemovesLeafAndStorage(t *testing.T) {
	a := addr(4)
	s := buildState(t, map[common.Address]types.StateAccount{a: testAccount(1, 0)})
	s.StorageTries[a] = mpt.Null{}

	err := s.Update(HashedPostState{
		Accounts: []AccountUpdate{{Address: a, Account: nil}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, ok, err := s.Account(a)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("account should be gone after destroy")
	}
	if _, ok := s.StorageTries[a]; ok {
		t.Fatal("storage trie should be removed after destroy")
	}
}
