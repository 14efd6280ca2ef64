// Package client is the in-zkVM half of the pipeline: it deserializes a
// ClientInput, reconstructs the witness database, re-executes the block
// against an annotated EVM, and asserts the resulting state root matches
// the block's claim. Every failure here is fatal: there is no retry inside
// the prover, and the zkVM simply does not produce a proof.
package client

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Error is the client's closed error taxonomy. Each Kind is a distinct
// reportable class; callers that need to branch on the kind should use
// errors.As against the concrete *Error, or compare Kind after that.
type Error struct {
	Kind    ErrorKind
	Address common.Address
	Hash    common.Hash
	Want    common.Hash
	Got     common.Hash
	Wrapped error
}

// ErrorKind enumerates the client's failure classes (spec §7).
type ErrorKind int

const (
	_ ErrorKind = iota
	SignatureRecoveryFailed
	MismatchedStateRoot
	MissingBytecode
	MissingTrie
	InvalidHeaderBlockNumber
	InvalidHeaderParentHash
	PostExecutionValidation
	BlockExecution
	MPT
	PectraRequestsUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case SignatureRecoveryFailed:
		return "signature recovery failed"
	case MismatchedStateRoot:
		return "mismatched state root"
	case MissingBytecode:
		return "missing bytecode"
	case MissingTrie:
		return "missing trie"
	case InvalidHeaderBlockNumber:
		return "invalid header block number"
	case InvalidHeaderParentHash:
		return "invalid header parent hash"
	case PostExecutionValidation:
		return "post-execution validation"
	case BlockExecution:
		return "block execution"
	case MPT:
		return "mpt"
	case PectraRequestsUnsupported:
		return "pectra requests unsupported"
	default:
		return "unknown"
	}
}

func (e *Error) Error() string {
	switch e.Kind {
	case MissingBytecode:
		return fmt.Sprintf("client: missing bytecode for %s (code hash %s)", e.Address, e.Hash)
	case MissingTrie:
		return fmt.Sprintf("client: missing trie for %s", e.Address)
	case InvalidHeaderBlockNumber:
		return fmt.Sprintf("client: invalid header block number: expected %s, got %s", e.Want, e.Got)
	case MismatchedStateRoot:
		return fmt.Sprintf("client: mismatched state root: computed %s, want %s", e.Got, e.Want)
	case InvalidHeaderParentHash:
		return fmt.Sprintf("client: invalid header parent hash: expected %s, got %s", e.Want, e.Got)
	default:
		if e.Wrapped != nil {
			return fmt.Sprintf("client: %s: %v", e.Kind, e.Wrapped)
		}
		return fmt.Sprintf("client: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is supports errors.Is(err, ErrSignatureRecoveryFailed)-style sentinel
// comparisons keyed only on Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel instances usable with errors.Is when callers only care about the
// kind, not the offending address/hash.
var (
	ErrSignatureRecoveryFailed   = &Error{Kind: SignatureRecoveryFailed}
	ErrMismatchedStateRoot       = &Error{Kind: MismatchedStateRoot}
	ErrPectraRequestsUnsupported = &Error{Kind: PectraRequestsUnsupported}
)

func wrapMPT(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: MPT, Wrapped: err}
}

func wrapBlockExecution(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: BlockExecution, Wrapped: err}
}

func wrapPostExecution(err error) error {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*Error); ok {
		return ce
	}
	return &Error{Kind: PostExecutionValidation, Wrapped: err}
}

// As is a convenience for tests and callers that want the Kind of an
// arbitrary error produced by this package. It returns (nil, false) for any
// error whose chain holds no *Error.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
