package client

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/vm"
)

// opcodeTracker brackets every opcode dispatch in its own
// "cycle-tracker-report-start/end: opcode-<NAME>" scope. It is off by
// default (ClientInput.OpcodeTracking must be set) since per-opcode
// granularity multiplies the number of stdout lines the prover has to
// parse; most callers only want the coarser per-stage and per-precompile
// scopes. Wired into a *tracing.Hooks by newTracingHooks.
type opcodeTracker struct {
	open string // label of the currently open scope, "" if none
}

// onOpcode is called once per executed instruction. Each call closes the
// previous instruction's scope (if any) before opening the new one.
func (t *opcodeTracker) onOpcode(pc uint64, op byte, gas, cost uint64, scope tracing.OpContext, rData []byte, depth int, err error) {
	t.close()
	label := fmt.Sprintf("opcode-%s", vm.OpCode(op).String())
	fmt.Printf("cycle-tracker-report-start: %s\n", label)
	t.open = label
}

func (t *opcodeTracker) close() {
	if t.open == "" {
		return
	}
	fmt.Printf("cycle-tracker-report-end: %s\n", t.open)
	t.open = ""
}
