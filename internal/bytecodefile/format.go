// Package bytecodefile serializes a compiled script (the tree of
// reachable ObjFunctions) to and from the binary .cbc file format
// described below: a three-word magic header, a source-path
// string, a SEG_FUNCTIONS segment (one framed SEG_FUNCTION block per
// reachable function, in breadth-first order starting at the script),
// a trailing SEG_STRINGS pool that every function/constant name is
// interned against, and a single trailer magic.
//
// Constant-pool entries that reference a string or another function
// are written as integer ids into the string pool / function list
// rather than inline, since both pools are only fully known once the
// whole function graph has been walked; Decode resolves those ids
// into real *value.ObjString / *value.ObjFunction pointers in a final
// patch pass once every segment has been read.
package bytecodefile

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kristofer/cloxvm/internal/gc"
	"github.com/kristofer/cloxvm/internal/value"
)

// Segment markers, mirroring the reference format's SegmentSequence
// enum: three fixed header words, then a contiguous run for the
// function-framing tags, then the strings bracket, then the trailer.
const (
	segFileStart int32 = 0x0000020B
	segLoxID     int32 = 0x0E170000
	segLoxName   int32 = 0x636C6F78
)

const (
	segFunctions int32 = 0xBEEF + iota
	segFunction
	segFunctionHeader
	segFunctionName
	segFunctionCode
	segFunctionConstants
	segFunctionScript
	segFunctionEnd
	segEndFunctions
	segStrings
	segEndStrings
)

const segFileEnd int32 = 0x7CADBEEF

// Constant value tags within a function's constant pool.
const (
	tagNumber byte = iota
	tagString
	tagFunction
)

// Encode writes script (and every function reachable from its
// constant pools, transitively) to w in file-format order, recording
// sourcePath in the header for diagnostic purposes only - it is never
// consulted on load.
func Encode(w io.Writer, script *value.ObjFunction, sourcePath string) error {
	functions, funcIndex := discoverFunctions(script)
	strings, stringIndex := discoverStrings(functions)

	if err := writeInt(w, segFileStart); err != nil {
		return err
	}
	if err := writeInt(w, segLoxID); err != nil {
		return err
	}
	if err := writeInt(w, segLoxName); err != nil {
		return err
	}
	if err := writeString(w, sourcePath); err != nil {
		return err
	}

	if err := writeInt(w, segFunctions); err != nil {
		return err
	}
	for _, fn := range functions {
		if err := writeFunction(w, fn, funcIndex, stringIndex); err != nil {
			return err
		}
	}
	if err := writeInt(w, segEndFunctions); err != nil {
		return err
	}

	if err := writeInt(w, segStrings); err != nil {
		return err
	}
	if err := writeInt(w, int32(len(strings))); err != nil {
		return err
	}
	for _, s := range strings {
		if err := writeString(w, string(s.Bytes)); err != nil {
			return err
		}
	}
	if err := writeInt(w, segEndStrings); err != nil {
		return err
	}

	return writeInt(w, segFileEnd)
}

// discoverFunctions walks the function graph breadth-first starting
// at script, assigning each reachable function the id equal to its
// position in the returned slice - the order functions are written in
// SEG_FUNCTIONS, and the order Decode reconstructs them in.
func discoverFunctions(script *value.ObjFunction) ([]*value.ObjFunction, map[*value.ObjFunction]int) {
	index := map[*value.ObjFunction]int{script: 0}
	functions := []*value.ObjFunction{script}
	for i := 0; i < len(functions); i++ {
		for _, c := range functions[i].Chunk.Constants {
			if !c.IsFunction() {
				continue
			}
			f := c.AsFunction()
			if _, seen := index[f]; seen {
				continue
			}
			index[f] = len(functions)
			functions = append(functions, f)
		}
	}
	return functions, index
}

// discoverStrings collects every distinct interned string a function
// name or a STRING-tagged constant refers to, across the whole
// function graph, preserving first-use order.
func discoverStrings(functions []*value.ObjFunction) ([]*value.ObjString, map[*value.ObjString]int) {
	index := map[*value.ObjString]int{}
	var strings []*value.ObjString
	intern := func(s *value.ObjString) {
		if _, ok := index[s]; ok {
			return
		}
		index[s] = len(strings)
		strings = append(strings, s)
	}
	for _, fn := range functions {
		if fn.Name != nil {
			intern(fn.Name)
		}
		for _, c := range fn.Chunk.Constants {
			if c.IsString() {
				intern(c.AsString())
			}
		}
	}
	return strings, index
}

func writeFunction(w io.Writer, fn *value.ObjFunction, funcIndex map[*value.ObjFunction]int, stringIndex map[*value.ObjString]int) error {
	if err := writeInt(w, segFunction); err != nil {
		return err
	}

	if err := writeInt(w, segFunctionHeader); err != nil {
		return err
	}
	if fn.Name != nil {
		if err := writeInt(w, segFunctionName); err != nil {
			return err
		}
		if err := writeInt(w, int32(stringIndex[fn.Name])); err != nil {
			return err
		}
	} else {
		if err := writeInt(w, segFunctionScript); err != nil {
			return err
		}
	}
	if err := writeInt(w, int32(fn.Arity)); err != nil {
		return err
	}
	if err := writeInt(w, int32(fn.UpvalueCount)); err != nil {
		return err
	}

	if err := writeInt(w, segFunctionCode); err != nil {
		return err
	}
	code := fn.Chunk.Code
	if err := writeInt(w, int32(len(code))); err != nil {
		return err
	}
	if err := writeInt(w, int32(len(code))); err != nil { // capacity == count; Go slices don't expose a separate cap to preserve
		return err
	}
	if _, err := w.Write(code); err != nil {
		return err
	}
	lines := fn.Chunk.LineRuns()
	if err := writeInt(w, int32(len(lines))); err != nil {
		return err
	}
	if err := writeInt(w, int32(len(lines))); err != nil {
		return err
	}
	for _, r := range lines {
		if err := writeInt(w, int32(r.Offset)); err != nil {
			return err
		}
		if err := writeInt(w, int32(r.Line)); err != nil {
			return err
		}
	}

	if err := writeInt(w, segFunctionConstants); err != nil {
		return err
	}
	if err := writeInt(w, int32(len(fn.Chunk.Constants))); err != nil {
		return err
	}
	for _, c := range fn.Chunk.Constants {
		switch {
		case c.IsNumber():
			if err := writeByte(w, tagNumber); err != nil {
				return err
			}
			if err := writeDouble(w, c.AsNumber()); err != nil {
				return err
			}
		case c.IsString():
			if err := writeByte(w, tagString); err != nil {
				return err
			}
			if err := writeInt(w, int32(stringIndex[c.AsString()])); err != nil {
				return err
			}
		case c.IsFunction():
			if err := writeByte(w, tagFunction); err != nil {
				return err
			}
			if err := writeInt(w, int32(funcIndex[c.AsFunction()])); err != nil {
				return err
			}
		default:
			return fmt.Errorf("bytecodefile: unsupported constant type in function %q", functionLabel(fn))
		}
	}

	return writeInt(w, segFunctionEnd)
}

func functionLabel(fn *value.ObjFunction) string {
	if fn.Name == nil {
		return "<script>"
	}
	return string(fn.Name.Bytes)
}

// constantPatch records a placeholder written into fn.Chunk.Constants
// at index that must be resolved once the string/function pools are
// fully loaded.
type constantPatch struct {
	fn    *value.ObjFunction
	index int
	kind  byte
	id    int32
}

// namePatch records a function whose Name field is a placeholder
// string id, resolved in the same final pass as constantPatch.
type namePatch struct {
	fn *value.ObjFunction
	id int32
}

// Decode reads a file written by Encode and reconstructs the function
// graph, interning every pooled string through gcol. It returns the
// script function (always function id 0).
func Decode(r io.Reader, gcol *gc.Collector) (*value.ObjFunction, error) {
	if err := expectInt(r, segFileStart); err != nil {
		return nil, err
	}
	if err := expectInt(r, segLoxID); err != nil {
		return nil, err
	}
	if err := expectInt(r, segLoxName); err != nil {
		return nil, err
	}
	if _, err := readString(r); err != nil { // source path, informational only
		return nil, err
	}

	if err := expectInt(r, segFunctions); err != nil {
		return nil, err
	}

	var functions []*value.ObjFunction
	var constantPatches []constantPatch
	var namePatches []namePatch

	for {
		tag, err := readInt(r)
		if err != nil {
			return nil, err
		}
		if tag == segEndFunctions {
			break
		}
		if tag != segFunction {
			return nil, fmt.Errorf("bytecodefile: expected SEG_FUNCTION, got 0x%08X", uint32(tag))
		}
		fn, cpatches, npatch, err := readFunction(r)
		if err != nil {
			return nil, err
		}
		for i := range cpatches {
			cpatches[i].fn = fn
		}
		constantPatches = append(constantPatches, cpatches...)
		if npatch != nil {
			npatch.fn = fn
			namePatches = append(namePatches, *npatch)
		}
		functions = append(functions, fn)
	}

	if err := expectInt(r, segStrings); err != nil {
		return nil, err
	}
	count, err := readInt(r)
	if err != nil {
		return nil, err
	}
	strings := make([]*value.ObjString, count)
	for i := range strings {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		strings[i] = gcol.NewString([]byte(s))
	}
	if err := expectInt(r, segEndStrings); err != nil {
		return nil, err
	}
	if err := expectInt(r, segFileEnd); err != nil {
		return nil, err
	}

	if len(functions) == 0 {
		return nil, fmt.Errorf("bytecodefile: file contains no functions")
	}

	for _, p := range namePatches {
		if int(p.id) < 0 || int(p.id) >= len(strings) {
			return nil, fmt.Errorf("bytecodefile: function name id %d out of range", p.id)
		}
		p.fn.Name = strings[p.id]
	}
	for _, p := range constantPatches {
		switch p.kind {
		case tagString:
			if int(p.id) < 0 || int(p.id) >= len(strings) {
				return nil, fmt.Errorf("bytecodefile: string id %d out of range", p.id)
			}
			p.fn.Chunk.Constants[p.index] = value.Obj(strings[p.id])
		case tagFunction:
			if int(p.id) < 0 || int(p.id) >= len(functions) {
				return nil, fmt.Errorf("bytecodefile: function id %d out of range", p.id)
			}
			p.fn.Chunk.Constants[p.index] = value.Obj(functions[p.id])
		}
	}

	for _, fn := range functions {
		gcol.Allocate(fn)
	}

	return functions[0], nil
}

func readFunction(r io.Reader) (*value.ObjFunction, []constantPatch, *namePatch, error) {
	if err := expectInt(r, segFunctionHeader); err != nil {
		return nil, nil, nil, err
	}

	tag, err := readInt(r)
	if err != nil {
		return nil, nil, nil, err
	}
	var pendingName *namePatch
	switch tag {
	case segFunctionScript:
		// anonymous script function: Name stays nil
	case segFunctionName:
		id, err := readInt(r)
		if err != nil {
			return nil, nil, nil, err
		}
		pendingName = &namePatch{id: id}
	default:
		return nil, nil, nil, fmt.Errorf("bytecodefile: expected function name tag, got 0x%08X", uint32(tag))
	}

	arity, err := readInt(r)
	if err != nil {
		return nil, nil, nil, err
	}
	upvalueCount, err := readInt(r)
	if err != nil {
		return nil, nil, nil, err
	}

	fn := &value.ObjFunction{Arity: int(arity), UpvalueCount: int(upvalueCount), Chunk: value.NewChunk()}

	if err := expectInt(r, segFunctionCode); err != nil {
		return nil, nil, nil, err
	}
	codeCount, err := readInt(r)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := readInt(r); err != nil { // capacity, unused
		return nil, nil, nil, err
	}
	code := make([]byte, codeCount)
	if _, err := io.ReadFull(r, code); err != nil {
		return nil, nil, nil, err
	}
	fn.Chunk.Code = code

	lineCount, err := readInt(r)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, err := readInt(r); err != nil { // capacity, unused
		return nil, nil, nil, err
	}
	runs := make([]value.LineRun, lineCount)
	for i := range runs {
		offset, err := readInt(r)
		if err != nil {
			return nil, nil, nil, err
		}
		line, err := readInt(r)
		if err != nil {
			return nil, nil, nil, err
		}
		runs[i] = value.LineRun{Offset: int(offset), Line: int(line)}
	}
	fn.Chunk.SetLineRuns(runs)

	if err := expectInt(r, segFunctionConstants); err != nil {
		return nil, nil, nil, err
	}
	constCount, err := readInt(r)
	if err != nil {
		return nil, nil, nil, err
	}
	var patches []constantPatch
	constants := make([]value.Value, constCount)
	for i := range constants {
		tag, err := readByte(r)
		if err != nil {
			return nil, nil, nil, err
		}
		switch tag {
		case tagNumber:
			d, err := readDouble(r)
			if err != nil {
				return nil, nil, nil, err
			}
			constants[i] = value.Number(d)
		case tagString, tagFunction:
			id, err := readInt(r)
			if err != nil {
				return nil, nil, nil, err
			}
			constants[i] = value.Nil
			patches = append(patches, constantPatch{index: i, kind: tag, id: id})
		default:
			return nil, nil, nil, fmt.Errorf("bytecodefile: unknown constant tag 0x%02X", tag)
		}
	}
	fn.Chunk.Constants = constants

	if err := expectInt(r, segFunctionEnd); err != nil {
		return nil, nil, nil, err
	}

	return fn, patches, pendingName, nil
}

func writeInt(w io.Writer, v int32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writeDouble(w io.Writer, v float64) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func writeString(w io.Writer, s string) error {
	if err := writeInt(w, int32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readInt(r io.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func expectInt(r io.Reader, want int32) error {
	got, err := readInt(r)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("bytecodefile: malformed file: expected segment 0x%08X, got 0x%08X", uint32(want), uint32(got))
	}
	return nil
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func readDouble(r io.Reader) (float64, error) {
	var v float64
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readString(r io.Reader) (string, error) {
	length, err := readInt(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
