package mpt

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// crypto256 returns the Keccak-256 hash of raw as a plain [32]byte, the form
// used to key the resolution table.
func crypto256(raw []byte) ([32]byte, error) {
	return crypto.Keccak256Hash(raw), nil
}

// Get descends n along key's nibbles and returns the value stored at the
// terminal leaf, or (nil, false) if the path diverges into Null before the
// key is exhausted. It returns ErrUnresolved if the descent needs to pass
// through a Digest that has not been Resolved.
func Get(n Node, key Nibbles) ([]byte, bool, error) {
	for {
		switch v := n.(type) {
		case Null:
			return nil, false, nil
		case Digest:
			return nil, false, ErrUnresolved
		case *Leaf:
			if Nibbles(v.Key).equal(key) {
				return v.Value, true, nil
			}
			return nil, false, nil
		case *Extension:
			if !key.HasPrefix(v.Key) {
				return nil, false, nil
			}
			key = key[len(v.Key):]
			n = v.Child
		case *Branch:
			if len(key) == 0 {
				if v.Value == nil {
					return nil, false, nil
				}
				return v.Value, true, nil
			}
			n = v.Children[key[0]]
			key = key[1:]
		default:
			return nil, false, ErrMalformedNode
		}
	}
}

func (a Nibbles) equal(b Nibbles) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// GetRLP is Get followed by an RLP-decode of the stored value into out. It
// returns (found=false) without touching out when the key is absent, and
// ErrDecodeValue if the stored bytes do not decode into the shape of out.
func GetRLP(n Node, key Nibbles, out interface{}) (bool, error) {
	val, found, err := Get(n, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := rlp.DecodeBytes(val, out); err != nil {
		return false, ErrDecodeValue
	}
	return true, nil
}

// emptyNodeHash is the Keccak-256 hash of the canonical empty trie (the RLP
// encoding of Null, a single empty string). A Digest referencing it resolves
// to Null without needing a table entry: an empty subtree has no preimage to
// ship in any witness.
var emptyNodeHash = [32]byte(crypto.Keccak256Hash([]byte{0x80}))

// Resolve returns a copy of n in which every Digest whose hash is present in
// table has been replaced, recursively, by the decoded node it references.
// Digests with no entry in table are left unresolved; a later Get/ForEachLeaves
// reaching one of those fails with ErrUnresolved.
func Resolve(n Node, table map[[32]byte][]byte) (Node, error) {
	switch v := n.(type) {
	case Digest:
		if v.Hash == emptyNodeHash {
			return Null{}, nil
		}
		raw, ok := table[v.Hash]
		if !ok {
			return n, nil
		}
		decoded, err := Decode(raw)
		if err != nil {
			return nil, err
		}
		return Resolve(decoded, table)
	case *Branch:
		cp := *v
		for i := 0; i < 16; i++ {
			if v.Children[i] == nil {
				continue
			}
			child, err := Resolve(v.Children[i], table)
			if err != nil {
				return nil, err
			}
			cp.Children[i] = child
		}
		return &cp, nil
	case *Extension:
		child, err := Resolve(v.Child, table)
		if err != nil {
			return nil, err
		}
		cp := *v
		cp.Child = child
		return &cp, nil
	default:
		return n, nil
	}
}

// ResolveAll is a convenience over Resolve building the hash table from a
// flat list of raw node encodings (e.g. the nodes handed over in an
// execution witness).
func ResolveAll(root Node, rawNodes [][]byte) (Node, error) {
	table := make(map[[32]byte][]byte, len(rawNodes))
	for _, raw := range rawNodes {
		h, err := crypto256(raw)
		if err != nil {
			return nil, err
		}
		table[h] = raw
	}
	return Resolve(root, table)
}

// LeafVisitor is called by ForEachLeaves for every resolved leaf reached, in
// nibble-sorted (depth-first) order, with the leaf's full key (the
// concatenation of every Extension/Branch nibble consumed above it).
type LeafVisitor func(key Nibbles, value []byte) error

// ForEachLeaves walks n depth-first in nibble order, calling visit at every
// Leaf and at every Branch carrying a terminal Value. It returns
// ErrUnresolved if the walk reaches an unresolved Digest.
func ForEachLeaves(n Node, prefix Nibbles, visit LeafVisitor) error {
	switch v := n.(type) {
	case Null:
		return nil
	case Digest:
		return ErrUnresolved
	case *Leaf:
		return visit(append(append(Nibbles{}, prefix...), v.Key...), v.Value)
	case *Extension:
		return ForEachLeaves(v.Child, append(append(Nibbles{}, prefix...), v.Key...), visit)
	case *Branch:
		if v.Value != nil {
			if err := visit(append(Nibbles{}, prefix...), v.Value); err != nil {
				return err
			}
		}
		for i := 0; i < 16; i++ {
			if v.Children[i] == nil {
				continue
			}
			if err := ForEachLeaves(v.Children[i], append(append(Nibbles{}, prefix...), byte(i)), visit); err != nil {
				return err
			}
		}
		return nil
	default:
		return ErrMalformedNode
	}
}
