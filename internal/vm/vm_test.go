package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, src string) string {
	t.Helper()
	var out strings.Builder
	v := New()
	v.SetStdout(func(s string) { out.WriteString(s) })
	err := v.Interpret(src)
	require.NoError(t, err)
	return out.String()
}

func TestArithmeticPrecedence(t *testing.T) {
	assert.Equal(t, "7\n", run(t, `print 1 + 2 * 3;`))
	assert.Equal(t, "9\n", run(t, `print (1 + 2) * 3;`))
	assert.Equal(t, "8\n", run(t, `print 2 ** 3;`))
}

func TestClosureCounter(t *testing.T) {
	out := run(t, `
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var counter = makeCounter();
		print counter();
		print counter();
		print counter();
	`)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestForLoopCapturesDistinctBinding(t *testing.T) {
	out := run(t, `
		var closures = [nil, nil, nil];
		for (var i = 0; i < 3; i = i + 1) {
			fun capture() { return i; }
			closures[i] = capture;
		}
		print closures[0]();
		print closures[1]();
		print closures[2]();
	`)
	assert.Equal(t, "0\n1\n2\n", out, "each loop iteration must close over its own binding of i, not a shared one")
}

func TestClassInheritanceAndSuperDispatch(t *testing.T) {
	out := run(t, `
		class Animal {
			speak() { return "..."; }
			describe() { return "a " + this.name() + " says " + this.speak(); }
			name() { return "animal"; }
		}
		class Dog < Animal {
			speak() { return "woof"; }
			name() { return "dog"; }
			describe() { return super.describe() + "!"; }
		}
		print Dog().describe();
	`)
	assert.Equal(t, "a dog says woof!\n", out)
}

func TestTryCatchFinally(t *testing.T) {
	out := run(t, `
		fun risky() {
			try {
				throw Exception("boom");
			} catch (e) {
				print "caught: " + e.message;
			} finally {
				print "cleanup";
			}
		}
		risky();
	`)
	assert.Equal(t, "caught: boom\ncleanup\n", out)
}

func TestFinallyRunsOnUncaughtRethrow(t *testing.T) {
	var out strings.Builder
	v := New()
	v.SetStdout(func(s string) { out.WriteString(s) })
	err := v.Interpret(`
		try {
			try {
				throw Exception("deep");
			} finally {
				print "inner cleanup";
			}
		} catch (e) {
			print "outer caught: " + e.message;
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, "inner cleanup\nouter caught: deep\n", out.String())
}

func TestExitProducesDistinctResult(t *testing.T) {
	v := New()
	v.SetStdout(func(string) {})
	err := v.Interpret(`exit(42);`)
	var exit *Exit
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 42, exit.Code)
	assert.Equal(t, 42, v.ExitCode())
}

func TestThrowRequiresExceptionInstance(t *testing.T) {
	v := New()
	v.SetStdout(func(string) {})
	err := v.Interpret(`throw "boom";`)
	require.Error(t, err)
	var rerr *RuntimeError
	assert.ErrorAs(t, err, &rerr)
}

func TestCatchByExceptionSubclass(t *testing.T) {
	out := run(t, `
		class NotFoundError < Exception {}
		try {
			throw NotFoundError("missing");
		} catch (Exception as e) {
			print e.message;
		}
	`)
	assert.Equal(t, "missing\n", out)
}

func TestUncaughtRuntimeErrorReturnsError(t *testing.T) {
	v := New()
	v.SetStdout(func(string) {})
	err := v.Interpret(`print 1 - "x";`)
	assert.Error(t, err)
	var rerr *RuntimeError
	assert.ErrorAs(t, err, &rerr)
}

func TestTypeOfReportsPrimitiveType(t *testing.T) {
	out := run(t, `print typeOf(3);`)
	assert.Equal(t, "number\n", out)
}
