package vm

import (
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"

	"github.com/kristofer/cloxvm/internal/value"
)

// tracer, when non-nil, dumps the current instruction and stack before
// every dispatch. Enabled by setting CLOXVM_TRACE=1 in the environment
// before the VM is constructed.
type tracer struct {
	out func(string)
	cfg spew.ConfigState
}

func newTracerFromEnv() *tracer {
	if os.Getenv("CLOXVM_TRACE") == "" {
		return nil
	}
	return &tracer{
		out: func(s string) { fmt.Fprint(os.Stderr, s) },
		cfg: spew.ConfigState{Indent: "  ", DisableMethods: true, DisablePointerAddresses: true},
	}
}

// traceStep renders the current opcode and the live value stack: each
// slot is formatted with value.Format and go-spew dumps the resulting
// slice of strings.
func (t *tracer) traceStep(f *frame, op value.OpCode, stack []value.Value) {
	if t == nil {
		return
	}
	rendered := make([]string, len(stack))
	for i, v := range stack {
		rendered[i] = value.Format(v)
	}
	t.out(fmt.Sprintf("%04d %-20s %s\n", f.ip-1, op, t.cfg.Sdump(rendered)))
}
