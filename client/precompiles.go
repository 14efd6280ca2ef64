package client

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Addresses of the five precompiles this executor annotates with
// cycle-tracker markers (spec §4.4). go-ethereum's EVM does not expose a
// way to substitute a precompiled contract's implementation, so these are
// tracked the way any other call frame is: through the tracing.Hooks
// OnEnter/OnExit pair, which fire for precompile invocations exactly as
// they do for ordinary CALLs.
var precompileLabels = map[common.Address]string{
	common.BytesToAddress([]byte{0x01}): "precompile-ecrecover",
	common.BytesToAddress([]byte{0x06}): "precompile-bn-add",
	common.BytesToAddress([]byte{0x07}): "precompile-bn-mul",
	common.BytesToAddress([]byte{0x08}): "precompile-bn-pair",
	common.BytesToAddress([]byte{0x0a}): "precompile-kzg-point-evaluation",
}

// precompileTracker reports a cycle-tracker-report scope around every call
// frame whose destination is one of precompileLabels. Frames nest (a
// contract call can itself trigger a precompile call), so a stack of open
// labels is kept per depth rather than a single "currently open" field.
type precompileTracker struct {
	openByDepth map[int]string
}

func newPrecompileTracker() *precompileTracker {
	return &precompileTracker{openByDepth: make(map[int]string)}
}

func (t *precompileTracker) onEnter(depth int, typ byte, from, to common.Address, input []byte, gas uint64, value *big.Int) {
	label, ok := precompileLabels[to]
	if !ok {
		return
	}
	fmt.Printf("cycle-tracker-report-start: %s\n", label)
	t.openByDepth[depth] = label
}

func (t *precompileTracker) onExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	label, ok := t.openByDepth[depth]
	if !ok {
		return
	}
	fmt.Printf("cycle-tracker-report-end: %s\n", label)
	delete(t.openByDepth, depth)
}
