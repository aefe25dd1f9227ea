// Command cloxvm is the CLI collaborator around the interpreter core:
// it turns a source/.cbc file or stdin session into calls against
// internal/compiler, internal/vm, and internal/bytecodefile, and maps
// the result onto the embedder's documented exit-code contract.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kristofer/cloxvm/internal/bytecodefile"
	"github.com/kristofer/cloxvm/internal/compiler"
	"github.com/kristofer/cloxvm/internal/value"
	"github.com/kristofer/cloxvm/internal/vm"
)

const version = "0.1.0"

// These are the exit codes this CLI ever exits with explicitly; 0
// (success) is Go's implicit default when main returns normally.
const (
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
)

func main() {
	if len(os.Args) < 2 {
		runREPL()
		return
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("cloxvm version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		runREPL()
	case "run":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			printUsage()
			os.Exit(exitIOError)
		}
		runFile(os.Args[2])
	case "compile":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			fmt.Fprintln(os.Stderr, "\nUsage: cloxvm compile <input.clox> [output.cbc]")
			os.Exit(exitIOError)
		}
		output := ""
		if len(os.Args) >= 4 {
			output = os.Args[3]
		}
		compileFile(os.Args[2], output)
	case "disassemble", "disasm":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			fmt.Fprintln(os.Stderr, "\nUsage: cloxvm disassemble <file>")
			os.Exit(exitIOError)
		}
		disassembleFile(os.Args[2])
	default:
		runFile(os.Args[1])
	}
}

func printUsage() {
	fmt.Println("cloxvm - a bytecode interpreter for a small class-based scripting language")
	fmt.Println("\nUsage:")
	fmt.Println("  cloxvm                          Start interactive REPL")
	fmt.Println("  cloxvm [file]                   Run a .clox source file or .cbc bytecode file")
	fmt.Println("  cloxvm run [file]                Run a .clox source file or .cbc bytecode file")
	fmt.Println("  cloxvm compile <in> [out.cbc]   Compile .clox source to .cbc bytecode")
	fmt.Println("  cloxvm disassemble <file>        Disassemble a .clox or .cbc file")
	fmt.Println("  cloxvm repl                      Start interactive REPL")
	fmt.Println("  cloxvm version                   Show version")
	fmt.Println("  cloxvm help                       Show this help")
	fmt.Println("\nFile extensions:")
	fmt.Println("  .clox   source files (text)")
	fmt.Println("  .cbc    compiled bytecode files (binary)")
}

// runFile dispatches on file extension: .cbc files are loaded directly
// as bytecode, anything else is treated as source and compiled first.
func runFile(filename string) {
	if filepath.Ext(filename) == ".cbc" {
		runBytecodeFile(filename)
		return
	}
	runSourceFile(filename)
}

func runSourceFile(filename string) {
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(exitIOError)
	}

	v := vm.New()
	if err := v.Interpret(string(data)); err != nil {
		reportInterpretError(err)
	}
}

func runBytecodeFile(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(exitIOError)
	}
	defer file.Close()

	v := vm.New()
	fn, err := bytecodefile.Decode(file, v.Collector())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
		os.Exit(exitIOError)
	}

	if err := v.InterpretCompiled(fn); err != nil {
		reportInterpretError(err)
	}
}

func reportInterpretError(err error) {
	switch e := err.(type) {
	case *vm.Exit:
		os.Exit(e.Code)
	case *vm.CompileError:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCompileError)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitRuntimeError)
	}
}

// compileFile compiles a .clox source file to a .cbc bytecode file,
// so it can be loaded directly with runBytecodeFile later without
// paying compile cost again.
func compileFile(inputFile, outputFile string) {
	if outputFile == "" {
		if filepath.Ext(inputFile) == ".clox" {
			outputFile = strings.TrimSuffix(inputFile, ".clox") + ".cbc"
		} else {
			outputFile = inputFile + ".cbc"
		}
	}

	data, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(exitIOError)
	}

	v := vm.New()
	fn, errs := v.CompileOnly(string(data))
	if fn == nil {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e.Error())
		}
		os.Exit(exitCompileError)
	}

	outFile, err := os.Create(outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(exitIOError)
	}
	defer outFile.Close()

	if err := bytecodefile.Encode(outFile, fn, inputFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing bytecode: %v\n", err)
		os.Exit(exitIOError)
	}

	fmt.Printf("Compiled %s -> %s\n", inputFile, outputFile)
}

// disassembleFile prints the instruction trace for every function
// reachable from the file's script function (source or .cbc alike).
func disassembleFile(filename string) {
	var fn *value.ObjFunction
	v := vm.New()

	if filepath.Ext(filename) == ".cbc" {
		file, err := os.Open(filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(exitIOError)
		}
		defer file.Close()
		fn, err = bytecodefile.Decode(file, v.Collector())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading bytecode: %v\n", err)
			os.Exit(exitIOError)
		}
	} else {
		data, err := os.ReadFile(filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(exitIOError)
		}
		var errs []compiler.CompileError
		fn, errs = v.CompileOnly(string(data))
		if fn == nil {
			for _, e := range errs {
				fmt.Fprintln(os.Stderr, e.Error())
			}
			os.Exit(exitCompileError)
		}
	}

	fmt.Printf("=== Disassembly: %s ===\n\n", filename)
	seen := map[*value.ObjFunction]bool{}
	queue := []*value.ObjFunction{fn}
	for i := 0; i < len(queue); i++ {
		f := queue[i]
		if seen[f] {
			continue
		}
		seen[f] = true
		name := "<script>"
		if f.Name != nil {
			name = string(f.Name.Bytes)
		}
		f.Chunk.Disassemble(os.Stdout, name)
		fmt.Println()
		for _, c := range f.Chunk.Constants {
			if c.IsFunction() {
				queue = append(queue, c.AsFunction())
			}
		}
	}
}

// runREPL starts an interactive read-compile-run loop. Each line is
// compiled and executed against the same persistent VM, so globals
// declared in one line remain visible to the next.
func runREPL() {
	fmt.Printf("cloxvm REPL v%s\n", version)
	fmt.Println("Type ':quit' or ':exit' to leave")
	fmt.Println()

	v := vm.New()
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("cloxvm> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case ":quit", ":exit":
			fmt.Println("Goodbye!")
			return
		case "":
			continue
		}

		if err := v.Interpret(line); err != nil {
			if exit, ok := err.(*vm.Exit); ok {
				os.Exit(exit.Code)
			}
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
