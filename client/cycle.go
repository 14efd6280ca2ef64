package client

import "fmt"

// Stage labels for the executor pipeline's own cycle-tracker scopes (spec
// §4.4), distinct from the narrower per-precompile labels in precompiles.go.
const (
	stageDeserializeInputs = "deserialize inputs"
	stageInitWitnessDB     = "initialize witness db"
	stageRecoverSenders    = "recover senders"
	stageValidateHeader    = "validate header"
	stageExecuteBlock      = "block execution"
	stageValidatePostExec  = "validate block post-execution"
	stageComputeStateRoot  = "compute state root"
)

// cycleScope prints the start marker immediately and returns a func that
// prints the matching end marker; callers defer the returned func so the
// scope closes even on early return. report is optional (nil outside of a
// host regression run) and, when set, also records the stage's completion
// so a test fixture can assert stage order without parsing stdout.
func cycleScope(label string, report *CycleReport) func() {
	fmt.Printf("cycle-tracker-start: %s\n", label)
	return func() {
		fmt.Printf("cycle-tracker-end: %s\n", label)
		if report != nil {
			report.Record(label)
		}
	}
}

// CycleReport is the structured record a host-side regression test parses
// back out of a run of Executor.Execute: one entry per completed
// cycle-tracker scope, in the order scopes closed. It exists purely so a
// test fixture can assert "these stages ran, in this order" (testable
// property 7, determinism) without depending on raw string matching against
// the stdout marker format itself.
type CycleReport struct {
	Stages []string
}

// Record appends label to the report.
func (r *CycleReport) Record(label string) {
	r.Stages = append(r.Stages, label)
}
