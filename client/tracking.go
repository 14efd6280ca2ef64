package client

import "github.com/ethereum/go-ethereum/core/tracing"

// newTracingHooks builds the *tracing.Hooks the executor attaches to its
// vm.Config for one block: precompile cycle tracking is always on, opcode
// cycle tracking only when trackOpcodes is set (ClientInput.OpcodeTracking).
// The returned close func must run after the block finishes executing, to
// flush the opcode tracker's final pending scope.
func newTracingHooks(trackOpcodes bool) (*tracing.Hooks, func()) {
	pt := newPrecompileTracker()
	hooks := &tracing.Hooks{
		OnEnter: pt.onEnter,
		OnExit:  pt.onExit,
	}
	closeFn := func() {}
	if trackOpcodes {
		ot := &opcodeTracker{}
		hooks.OnOpcode = ot.onOpcode
		closeFn = ot.close
	}
	return hooks, closeFn
}
