package mpt

// Write is one change to apply during Update. Value == nil means delete.
type Write struct {
	Key   Nibbles
	Value []byte
}

// Oracle resolves the preimage of a node reference hash. It backs the rare
// branch-collapse case where the surviving child's key must be read back out
// of its encoding to be merged with the branch's nibble and any enclosing
// extension. On the host this is an archive-node lookup; inside the zkVM it
// is served from the client input's own witness table.
type Oracle func(hash [32]byte) ([]byte, bool)

// HashBuilder applies a batch of writes to a (partially resolved) trie and
// returns the new root. A write only ever touches nodes on its own key path;
// every untouched subtree is left exactly as given (typically a Digest) and
// contributes to its parent's hash unchanged. This is the Go counterpart of
// the reference implementation's streaming root-from-proofs builder: rather
// than consuming proof nodes as a separate ordered stream, it walks the
// already-partially-resolved trie directly, since Digest placeholders let
// untouched subtrees remain unexpanded either way.
type HashBuilder struct {
	Oracle Oracle
}

// Update applies every write in order and returns the resulting root.
func (hb *HashBuilder) Update(root Node, writes []Write) (Node, error) {
	var err error
	for _, w := range writes {
		if w.Value == nil {
			root, err = hb.delete(root, w.Key)
		} else {
			root, err = hb.insert(root, w.Key, w.Value)
		}
		if err != nil {
			return nil, err
		}
	}
	return root, nil
}

func (hb *HashBuilder) insert(n Node, key Nibbles, value []byte) (Node, error) {
	switch v := n.(type) {
	case nil, Null:
		return &Leaf{Key: cloneNibbles(key), Value: value}, nil
	case Digest:
		return nil, ErrUnresolved
	case *Leaf:
		if v.Key.equal(key) {
			return &Leaf{Key: v.Key, Value: value}, nil
		}
		return forkLeaves(v.Key, v.Value, key, value), nil
	case *Extension:
		common := CommonPrefixLen(v.Key, key)
		if common == len(v.Key) {
			child, err := hb.insert(v.Child, key[common:], value)
			if err != nil {
				return nil, err
			}
			return &Extension{Key: v.Key, Child: child}, nil
		}
		return hb.forkExtension(v, common, key, value)
	case *Branch:
		cp := *v
		if len(key) == 0 {
			cp.Value = value
			return &cp, nil
		}
		child, err := hb.insert(v.Children[key[0]], key[1:], value)
		if err != nil {
			return nil, err
		}
		cp.Children[key[0]] = child
		return &cp, nil
	default:
		return nil, ErrMalformedNode
	}
}

// forkLeaves builds the subtree for two distinct leaves that diverge at
// some point along their keys: a Branch at the divergence point, optionally
// wrapped in an Extension over their shared prefix.
func forkLeaves(aKey Nibbles, aVal []byte, bKey Nibbles, bVal []byte) Node {
	common := CommonPrefixLen(aKey, bKey)
	branch := &Branch{}
	attachRemainder(branch, aKey[common:], aVal)
	attachRemainder(branch, bKey[common:], bVal)
	if common == 0 {
		return branch
	}
	return &Extension{Key: cloneNibbles(aKey[:common]), Child: branch}
}

func attachRemainder(b *Branch, rem Nibbles, val []byte) {
	if len(rem) == 0 {
		b.Value = val
		return
	}
	b.Children[rem[0]] = &Leaf{Key: cloneNibbles(rem[1:]), Value: val}
}

// forkExtension splits an Extension whose key diverges from the inserted
// key before being fully consumed.
func (hb *HashBuilder) forkExtension(e *Extension, common int, key Nibbles, value []byte) (Node, error) {
	remOld := e.Key[common:] // non-empty: common < len(e.Key)
	remNew := key[common:]
	branch := &Branch{}
	if len(remOld) == 1 {
		branch.Children[remOld[0]] = e.Child
	} else {
		branch.Children[remOld[0]] = &Extension{Key: cloneNibbles(remOld[1:]), Child: e.Child}
	}
	attachRemainder(branch, remNew, value)
	if common == 0 {
		return branch, nil
	}
	return &Extension{Key: cloneNibbles(e.Key[:common]), Child: branch}, nil
}

func (hb *HashBuilder) delete(n Node, key Nibbles) (Node, error) {
	switch v := n.(type) {
	case nil, Null:
		return Null{}, nil
	case Digest:
		return nil, ErrUnresolved
	case *Leaf:
		if v.Key.equal(key) {
			return Null{}, nil
		}
		return v, nil
	case *Extension:
		if !key.HasPrefix(v.Key) {
			return v, nil
		}
		newChild, err := hb.delete(v.Child, key[len(v.Key):])
		if err != nil {
			return nil, err
		}
		return hb.collapseExtension(v.Key, newChild)
	case *Branch:
		cp := *v
		if len(key) == 0 {
			cp.Value = nil
		} else {
			newChild, err := hb.delete(v.Children[key[0]], key[1:])
			if err != nil {
				return nil, err
			}
			cp.Children[key[0]] = newChild
		}
		return hb.collapseBranch(&cp)
	default:
		return nil, ErrMalformedNode
	}
}

// collapseExtension merges an Extension's own prefix with whatever its
// (possibly just-collapsed) child turned out to be: a vanished child
// vanishes the extension too, a Leaf/Extension child absorbs the prefix into
// its own key, and anything else (a Branch) keeps the Extension as-is. A
// Digest child is resolved via the oracle first, since only the decoded node
// reveals which of these cases applies.
func (hb *HashBuilder) collapseExtension(prefix Nibbles, child Node) (Node, error) {
	if d, ok := child.(Digest); ok {
		if hb.Oracle == nil {
			return nil, ErrMissingPreimage
		}
		raw, found := hb.Oracle(d.Hash)
		if !found {
			return nil, ErrMissingPreimage
		}
		decoded, err := Decode(raw)
		if err != nil {
			return nil, err
		}
		// A preimage under 32 bytes would have been embedded in its parent
		// rather than hash-referenced; reaching one here through the oracle
		// at all means two sibling keys share a 60+ nibble prefix, which is
		// the documented, computationally-infeasible-against-Keccak case.
		if len(raw) < 32 {
			switch decoded.(type) {
			case *Branch, *Extension:
				return nil, ErrUnimplementedInPlaceNode
			}
		}
		return hb.collapseExtension(prefix, decoded)
	}
	switch c := child.(type) {
	case Null:
		return Null{}, nil
	case *Leaf:
		return &Leaf{Key: concatNibbles(prefix, c.Key), Value: c.Value}, nil
	case *Extension:
		return &Extension{Key: concatNibbles(prefix, c.Key), Child: c.Child}, nil
	case *Branch:
		return &Extension{Key: cloneNibbles(prefix), Child: c}, nil
	default:
		return nil, ErrMalformedNode
	}
}

// collapseBranch normalizes b after a child deletion: a branch with no
// remaining children and no value vanishes; one with no children but a
// value becomes a bare Leaf; one with exactly one remaining child and no
// value merges that child's key with its own index nibble via
// collapseExtension; otherwise it is left as a Branch.
func (hb *HashBuilder) collapseBranch(b *Branch) (Node, error) {
	count, onlyIdx := 0, -1
	for i := 0; i < 16; i++ {
		if b.Children[i] == nil {
			continue
		}
		if _, isNull := b.Children[i].(Null); isNull {
			continue
		}
		count++
		onlyIdx = i
	}
	switch {
	case count == 0 && b.Value == nil:
		return Null{}, nil
	case count == 0:
		return &Leaf{Value: b.Value}, nil
	case count == 1 && b.Value == nil:
		return hb.collapseExtension(Nibbles{byte(onlyIdx)}, b.Children[onlyIdx])
	default:
		return b, nil
	}
}

func cloneNibbles(n Nibbles) Nibbles {
	if n == nil {
		return nil
	}
	cp := make(Nibbles, len(n))
	copy(cp, n)
	return cp
}

func concatNibbles(a, b Nibbles) Nibbles {
	out := make(Nibbles, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
