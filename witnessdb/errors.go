package witnessdb

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MismatchedStateRootError means the resolved state snapshot's root does not
// equal the block's claimed parent state root.
type MismatchedStateRootError struct {
	Got, Want common.Hash
}

func (e *MismatchedStateRootError) Error() string {
	return fmt.Sprintf("witnessdb: state root %s does not match claimed parent root %s", e.Got, e.Want)
}

// MissingBytecodeError means a touched account's code hash has no matching
// entry in the input's bytecode table.
type MissingBytecodeError struct {
	Address  common.Address
	CodeHash common.Hash
}

func (e *MissingBytecodeError) Error() string {
	return fmt.Sprintf("witnessdb: missing bytecode for %s (code hash %s)", e.Address, e.CodeHash)
}

// MissingTrieError means a storage slot was touched on an account whose
// storage trie was not supplied.
type MissingTrieError struct {
	Address common.Address
}

func (e *MissingTrieError) Error() string {
	return fmt.Sprintf("witnessdb: missing storage trie for %s", e.Address)
}

// InvalidHeaderBlockNumberError means two adjacent ancestor headers are not
// consecutive block numbers.
type InvalidHeaderBlockNumberError struct {
	Expected, Got uint64
}

func (e *InvalidHeaderBlockNumberError) Error() string {
	return fmt.Sprintf("witnessdb: invalid ancestor header block number: expected %d, got %d", e.Expected, e.Got)
}

// InvalidHeaderParentHashError means a child header's ParentHash does not
// match the recomputed hash of its claimed parent.
type InvalidHeaderParentHashError struct {
	Expected, Got common.Hash
}

func (e *InvalidHeaderParentHashError) Error() string {
	return fmt.Sprintf("witnessdb: invalid ancestor header parent hash: expected %s, got %s", e.Expected, e.Got)
}
