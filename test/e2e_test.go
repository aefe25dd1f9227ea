// Package test runs whole-program fixtures through the VM end to end,
// each standing for one of the canonical interpreter behaviors: arithmetic
// precedence, closures, inheritance, exception handling, and per-iteration
// loop-variable capture.
package test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/cloxvm/internal/vm"
)

func runProgram(t *testing.T, src string) string {
	t.Helper()
	var out strings.Builder
	v := vm.New()
	v.SetStdout(func(s string) { out.WriteString(s) })
	err := v.Interpret(src)
	require.NoError(t, err)
	return out.String()
}

func TestScenarioArithmeticPrecedence(t *testing.T) {
	assert.Equal(t, "7\n", runProgram(t, `print 1 + 2 * 3;`))
}

func TestScenarioClosureCounter(t *testing.T) {
	out := runProgram(t, `
		fun make() {
			var i = 0;
			fun next() {
				i = i + 1;
				return i;
			}
			return next;
		}
		var c = make();
		print c();
		print c();
		print c();
	`)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestScenarioClassAndSuper(t *testing.T) {
	out := runProgram(t, `
		class A { greet() { print "A"; } }
		class B < A { greet() { super.greet(); print "B"; } }
		B().greet();
	`)
	assert.Equal(t, "A\nB\n", out)
}

func TestScenarioExceptionAndFinally(t *testing.T) {
	out := runProgram(t, `
		try {
			throw Exception("boom");
		} catch (Exception as e) {
			print e.message;
		} finally {
			print "done";
		}
	`)
	assert.Equal(t, "boom\ndone\n", out)
}

func TestScenarioForLoopCapturesDistinctBinding(t *testing.T) {
	out := runProgram(t, `
		var fs = [nil, nil, nil];
		for (var i = 0; i < 3; i = i + 1) {
			fun capture() { return i; }
			fs[i] = capture;
		}
		for (var k = 0; k < 3; k = k + 1) print fs[k]();
	`)
	assert.Equal(t, "0\n1\n2\n", out)
}

func TestScenarioExitProtocol(t *testing.T) {
	v := vm.New()
	v.SetStdout(func(string) {})
	err := v.Interpret(`exit(42);`)

	var exit *vm.Exit
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 42, exit.Code)
	assert.Equal(t, 42, v.ExitCode())
}
