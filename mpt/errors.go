package mpt

import "errors"

var (
	// ErrMalformedNode is returned by Decode when the RLP structure does not
	// match any of the accepted node shapes (2 or 17 element lists, or a
	// top-level empty string).
	ErrMalformedNode = errors.New("mpt: malformed node encoding")

	// ErrUnresolved is returned by Get/ForEachLeaves when a lookup reaches a
	// Digest that has not been resolved against a preimage table: the caller
	// did not supply a complete witness for the path it needed.
	ErrUnresolved = errors.New("mpt: reached an unresolved digest node")

	// ErrDecodeValue is returned by GetRLP when the stored value fails to
	// RLP-decode into the requested type.
	ErrDecodeValue = errors.New("mpt: stored value does not decode to requested type")

	// ErrUnimplementedInPlaceNode is returned by the hash builder when a
	// branch collapse would need to inline-encode a child that is itself an
	// Extension or Branch (rather than reference it by hash). This requires
	// two storage keys sharing a 60+ nibble prefix, which is computationally
	// infeasible to produce against Keccak; rather than silently diverge
	// from the canonical algorithm, the builder aborts.
	ErrUnimplementedInPlaceNode = errors.New("mpt: unimplemented rare case: in-place encoded extension/branch child")

	// ErrMissingPreimage is returned by the trie-node oracle path of the
	// hash builder when a branch collapse needs a child's preimage and the
	// oracle does not have it.
	ErrMissingPreimage = errors.New("mpt: missing preimage for collapsed child")
)
