package client

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

// TouchedAccount names one address read or written during the block,
// together with whichever of its storage slots were read. An address with
// a nil/empty Slots still means "touched" (its account info was read, but
// no slot was).
type TouchedAccount struct {
	Address common.Address
	Slots   []common.Hash
}

// BytecodeEntry is one (code hash -> bytecode) pair. RLP has no native map
// type, so bytecodes travel as a flat list of pairs instead of a hashmap.
type BytecodeEntry struct {
	CodeHash common.Hash
	Code     []byte
}

// ClientInput is the self-contained record that crosses the host/zkVM
// boundary: everything the client executor needs to re-execute one block
// and verify the result, with no further I/O. It is RLP-encoded rather than
// bincode (see DESIGN.md, Open Question OQ-1); RLP's own list-of-fields
// encoding gives the same "schema versioned by field order, append only"
// stability bincode would have provided.
type ClientInput struct {
	CurrentBlock    *types.Block
	AncestorHeaders []*types.Header // newest first: index 0 is the parent of CurrentBlock

	WitnessNodes    [][]byte // every RLP-encoded trie node needed to resolve ParentStateRoot
	ParentStateRoot common.Hash

	TouchedAccounts []TouchedAccount
	Bytecodes       []BytecodeEntry

	ChainID           uint64
	CustomGenesisJSON []byte // non-empty iff ChainID is not one of the recognized chains

	HasCustomBeneficiary bool
	CustomBeneficiary    common.Address // honored only if HasCustomBeneficiary

	OpcodeTracking bool
}

// EncodeRLP and DecodeRLP are left to reflection-based struct encoding
// (every field type here is one rlp already knows how to handle); Encode
// and Decode are thin convenience wrappers used by the host cache and the
// zkVM's stdin deserialization step.

// Encode returns the RLP encoding of in.
func Encode(in *ClientInput) ([]byte, error) {
	return rlp.EncodeToBytes(in)
}

// Decode parses the RLP encoding produced by Encode.
func Decode(data []byte) (*ClientInput, error) {
	var in ClientInput
	if err := rlp.DecodeBytes(data, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

// TouchedSlotsMap converts the flat TouchedAccounts list into the
// address->slots map witnessdb.Build expects.
func (in *ClientInput) TouchedSlotsMap() map[common.Address][]common.Hash {
	m := make(map[common.Address][]common.Hash, len(in.TouchedAccounts))
	for _, ta := range in.TouchedAccounts {
		m[ta.Address] = ta.Slots
	}
	return m
}

// BytecodeMap converts the flat Bytecodes list into the code-hash->bytes map
// witnessdb.Build expects.
func (in *ClientInput) BytecodeMap() map[common.Hash][]byte {
	m := make(map[common.Hash][]byte, len(in.Bytecodes))
	for _, b := range in.Bytecodes {
		m[b.CodeHash] = b.Code
	}
	return m
}
