package client

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestErrorIsMatchesOnKindOnly(t *testing.T) {
	err := &Error{Kind: MismatchedStateRoot, Want: common.Hash{1}, Got: common.Hash{2}}
	if !errors.Is(err, ErrMismatchedStateRoot) {
		t.Fatal("expected errors.Is to match on Kind alone")
	}
	if errors.Is(err, ErrSignatureRecoveryFailed) {
		t.Fatal("did not expect a match across different Kinds")
	}
}

func TestErrorAsUnwrapsWrappedCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := wrapBlockExecution(cause)
	ce, ok := As(err)
	if !ok {
		t.Fatal("expected As to recognize the wrapped error")
	}
	if ce.Kind != BlockExecution {
		t.Fatalf("Kind = %v, want BlockExecution", ce.Kind)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to see through to the wrapped cause")
	}
}

func TestWrapHelpersPassThroughNil(t *testing.T) {
	if wrapMPT(nil) != nil || wrapBlockExecution(nil) != nil || wrapPostExecution(nil) != nil {
		t.Fatal("wrap helpers must return nil for a nil error")
	}
}
