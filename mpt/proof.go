package mpt

// Prove walks root along key and returns the canonical RLP encoding of every
// node visited, root first, suitable for shipping to a verifier that only
// knows the root hash (an eth_getProof-style Merkle proof). It returns
// ErrUnresolved if the walk needs to pass through a Digest.
func Prove(root Node, key Nibbles) ([][]byte, error) {
	var proof [][]byte
	n := root
	for {
		switch v := n.(type) {
		case Null:
			return proof, nil
		case Digest:
			return nil, ErrUnresolved
		case *Leaf:
			enc, err := EncodeNode(v)
			if err != nil {
				return nil, err
			}
			return append(proof, enc), nil
		case *Extension:
			enc, err := EncodeNode(v)
			if err != nil {
				return nil, err
			}
			proof = append(proof, enc)
			if !key.HasPrefix(v.Key) {
				return proof, nil
			}
			key = key[len(v.Key):]
			n = v.Child
		case *Branch:
			enc, err := EncodeNode(v)
			if err != nil {
				return nil, err
			}
			proof = append(proof, enc)
			if len(key) == 0 {
				return proof, nil
			}
			n = v.Children[key[0]]
			key = key[1:]
		default:
			return nil, ErrMalformedNode
		}
	}
}
