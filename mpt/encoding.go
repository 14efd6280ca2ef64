package mpt

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// compactEncode applies the hex-prefix (HP) encoding from Yellow Paper
// Appendix C: a nibble sequence plus a terminator flag packed two nibbles
// per byte, with a flag nibble folded into the first byte.
func compactEncode(n Nibbles, terminator bool) []byte {
	flag := byte(0)
	if terminator {
		flag = 2
	}
	odd := len(n)%2 == 1
	if odd {
		flag |= 1
	}
	out := make([]byte, 0, len(n)/2+1)
	if odd {
		out = append(out, flag<<4|n[0])
		n = n[1:]
	} else {
		out = append(out, flag<<4)
	}
	for i := 0; i < len(n); i += 2 {
		out = append(out, n[i]<<4|n[i+1])
	}
	return out
}

// compactDecode is the inverse of compactEncode.
func compactDecode(b []byte) (Nibbles, bool) {
	if len(b) == 0 {
		return nil, false
	}
	flag := b[0] >> 4
	terminator := flag&2 != 0
	odd := flag&1 != 0
	var n Nibbles
	if odd {
		n = append(n, b[0]&0x0f)
	}
	for _, by := range b[1:] {
		n = append(n, by>>4, by&0x0f)
	}
	return n, terminator
}

// EncodeNode returns the canonical RLP encoding of n, the bytes that are
// Keccak-hashed (or embedded, if short) to produce n's node reference.
func EncodeNode(n Node) ([]byte, error) {
	switch v := n.(type) {
	case Null:
		return []byte{0x80}, nil
	case *Branch:
		return encodeBranch(v)
	case *Extension:
		return encodeExtension(v)
	case *Leaf:
		return encodeLeaf(v)
	case Digest:
		return rlp.EncodeToBytes(v.Hash[:])
	default:
		return nil, ErrMalformedNode
	}
}

func encodeBranch(b *Branch) ([]byte, error) {
	var payload []byte
	for i := 0; i < 16; i++ {
		ref, err := encodeRef(b.Children[i])
		if err != nil {
			return nil, err
		}
		payload = append(payload, ref...)
	}
	valEnc, err := rlp.EncodeToBytes(b.Value)
	if err != nil {
		return nil, err
	}
	payload = append(payload, valEnc...)
	return wrapList(payload), nil
}

func encodeExtension(e *Extension) ([]byte, error) {
	keyEnc, err := rlp.EncodeToBytes(compactEncode(e.Key, false))
	if err != nil {
		return nil, err
	}
	childRef, err := encodeRef(e.Child)
	if err != nil {
		return nil, err
	}
	return wrapList(append(keyEnc, childRef...)), nil
}

func encodeLeaf(l *Leaf) ([]byte, error) {
	keyEnc, err := rlp.EncodeToBytes(compactEncode(l.Key, true))
	if err != nil {
		return nil, err
	}
	valEnc, err := rlp.EncodeToBytes(l.Value)
	if err != nil {
		return nil, err
	}
	return wrapList(append(keyEnc, valEnc...)), nil
}

// encodeRef encodes a child node as it appears embedded inside its parent:
// Null/nil becomes the empty RLP string, a Digest becomes its 32-byte hash
// as an RLP string, and a concrete node is either embedded raw (if its own
// encoding is under 32 bytes) or replaced by the Keccak hash of its
// encoding, exactly as for Keccak referencing at the top level.
func encodeRef(n Node) ([]byte, error) {
	if n == nil {
		return []byte{0x80}, nil
	}
	switch v := n.(type) {
	case Null:
		return []byte{0x80}, nil
	case Digest:
		return rlp.EncodeToBytes(v.Hash[:])
	default:
		enc, err := EncodeNode(n)
		if err != nil {
			return nil, err
		}
		if len(enc) < 32 {
			return enc, nil
		}
		h := crypto.Keccak256(enc)
		return rlp.EncodeToBytes(h)
	}
}

// wrapList wraps an already RLP-encoded payload (the concatenation of each
// list element's own encoding) in an RLP list header.
func wrapList(payload []byte) []byte {
	n := len(payload)
	if n <= 55 {
		buf := make([]byte, 1+n)
		buf[0] = 0xc0 + byte(n)
		copy(buf[1:], payload)
		return buf
	}
	lenBytes := bigEndianMinimal(uint64(n))
	buf := make([]byte, 1+len(lenBytes)+n)
	buf[0] = 0xf7 + byte(len(lenBytes))
	copy(buf[1:], lenBytes)
	copy(buf[1+len(lenBytes):], payload)
	return buf
}

func bigEndianMinimal(u uint64) []byte {
	switch {
	case u < 1<<8:
		return []byte{byte(u)}
	case u < 1<<16:
		return []byte{byte(u >> 8), byte(u)}
	case u < 1<<24:
		return []byte{byte(u >> 16), byte(u >> 8), byte(u)}
	case u < 1<<32:
		return []byte{byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
	default:
		return []byte{byte(u >> 56), byte(u >> 48), byte(u >> 40), byte(u >> 32),
			byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
	}
}

// Decode parses the canonical RLP encoding of a single node. Children are
// never recursively decoded: a hash-length child becomes a Digest, an empty
// child becomes Null, and a short (embedded) child is decoded one level
// only, matching the shape go-ethereum itself produces on disk.
func Decode(enc []byte) (Node, error) {
	if len(enc) == 0 {
		return nil, ErrMalformedNode
	}
	kind, content, _, err := rlp.Split(enc)
	if err != nil {
		return nil, ErrMalformedNode
	}
	switch kind {
	case rlp.String, rlp.Byte:
		if len(content) == 0 {
			return Null{}, nil
		}
		return nil, ErrMalformedNode
	case rlp.List:
		items, err := splitListItems(content)
		if err != nil {
			return nil, ErrMalformedNode
		}
		switch len(items) {
		case 17:
			return decodeBranch(items)
		case 2:
			return decodeShort(items)
		default:
			return nil, ErrMalformedNode
		}
	default:
		return nil, ErrMalformedNode
	}
}

// splitListItems returns the raw (still RLP-encoded) bytes of each element
// of an RLP list whose payload is content.
func splitListItems(content []byte) ([][]byte, error) {
	var items [][]byte
	rest := content
	for len(rest) > 0 {
		_, item, tail, err := rlp.Split(rest)
		if err != nil {
			return nil, err
		}
		// rlp.Split returns the content only; recompute the full encoded
		// item length so we can keep the raw bytes for recursive decode.
		itemLen := len(rest) - len(tail)
		items = append(items, rest[:itemLen])
		_ = item
		rest = tail
	}
	return items, nil
}

func decodeBranch(items [][]byte) (Node, error) {
	b := &Branch{}
	for i := 0; i < 16; i++ {
		child, err := decodeRef(items[i])
		if err != nil {
			return nil, err
		}
		b.Children[i] = child
	}
	kind, content, _, err := rlp.Split(items[16])
	if err != nil {
		return nil, ErrMalformedNode
	}
	if kind == rlp.List {
		return nil, ErrMalformedNode
	}
	if len(content) > 0 {
		b.Value = append([]byte(nil), content...)
	}
	return b, nil
}

func decodeShort(items [][]byte) (Node, error) {
	kind, content, _, err := rlp.Split(items[0])
	if err != nil || kind == rlp.List {
		return nil, ErrMalformedNode
	}
	nib, terminator := compactDecode(content)
	if terminator {
		_, val, _, err := rlp.Split(items[1])
		if err != nil {
			return nil, ErrMalformedNode
		}
		return &Leaf{Key: nib, Value: append([]byte(nil), val...)}, nil
	}
	child, err := decodeRef(items[1])
	if err != nil {
		return nil, err
	}
	return &Extension{Key: nib, Child: child}, nil
}

// decodeRef decodes a child reference: empty string => Null, 32-byte string
// => Digest, embedded list => the node itself (one level, recursively).
func decodeRef(item []byte) (Node, error) {
	kind, content, _, err := rlp.Split(item)
	if err != nil {
		return nil, ErrMalformedNode
	}
	switch kind {
	case rlp.List:
		return Decode(item)
	case rlp.String, rlp.Byte:
		if len(content) == 0 {
			return Null{}, nil
		}
		if len(content) == 32 {
			var h [32]byte
			copy(h[:], content)
			return Digest{Hash: h}, nil
		}
		return nil, ErrMalformedNode
	default:
		return nil, ErrMalformedNode
	}
}

// Hash returns the Keccak-256 hash of n's canonical RLP encoding — the
// node's reference when it is too large to embed inline in its parent.
func Hash(n Node) ([32]byte, error) {
	enc, err := EncodeNode(n)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}
