package bytecodefile

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/kristofer/cloxvm/internal/compiler"
	"github.com/kristofer/cloxvm/internal/gc"
	"github.com/kristofer/cloxvm/internal/value"
)

func compileScript(t *testing.T, src string) (*value.ObjFunction, *gc.Collector) {
	t.Helper()
	in := value.NewInterner()
	gcol := gc.New(in)
	fn, errs := compiler.Compile(src, gcol)
	require.Empty(t, errs)
	require.NotNil(t, fn)
	return fn, gcol
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	fn, _ := compileScript(t, `
		fun add(a, b) { return a + b; }
		print add(1, 2);
		print "hello";
	`)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, fn, "roundtrip.clox"))

	decodeGcol := gc.New(value.NewInterner())
	decoded, err := Decode(&buf, decodeGcol)
	require.NoError(t, err)
	require.NotNil(t, decoded)

	assert.Equal(t, len(fn.Chunk.Code), len(decoded.Chunk.Code))
	assert.Equal(t, fn.Chunk.Code, decoded.Chunk.Code)
	assert.Equal(t, len(fn.Chunk.Constants), len(decoded.Chunk.Constants))
}

func TestDecodeRejectsTruncatedFile(t *testing.T) {
	fn, _ := compileScript(t, `print 1;`)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, fn, "x.clox"))

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()/2])
	_, err := Decode(truncated, gc.New(value.NewInterner()))
	assert.Error(t, err)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode(strings.NewReader("not a bytecode file"), gc.New(value.NewInterner()))
	assert.Error(t, err)
}

// TestConcurrentRoundTrips compiles and round-trips a batch of fixture
// programs concurrently, each through its own Collector, exercising
// the codec the way a batch verifier would.
func TestConcurrentRoundTrips(t *testing.T) {
	sources := []string{
		`print 1 + 1;`,
		`fun f(x) { return x * x; } print f(4);`,
		`class C { greet() { return "hi"; } } print C().greet();`,
		`var a = [1, 2, 3]; print a[1];`,
	}

	var g errgroup.Group
	for _, src := range sources {
		src := src
		g.Go(func() error {
			in := value.NewInterner()
			gcol := gc.New(in)
			fn, errs := compiler.Compile(src, gcol)
			if len(errs) > 0 {
				return errs[0]
			}
			var buf bytes.Buffer
			if err := Encode(&buf, fn, "batch.clox"); err != nil {
				return err
			}
			_, err := Decode(&buf, gc.New(value.NewInterner()))
			return err
		})
	}
	require.NoError(t, g.Wait())
}
