// Command rvm assembles and runs programs for the register-based virtual
// machine implemented in package vm. Subcommand structure and semantics are
// grounded on original_source/src/main.rs (clap's Commands::Run/Build) and
// src/compile.rs (the build/run functions themselves); cobra wiring style is
// borrowed from oisee-z80-optimizer/cmd/z80opt/main.go.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"rvm/vm"
	"rvm/window"
)

const defaultMemory = vm.Word(1024)
const libraryExtension = ".dat"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rvm:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rvm",
		Short: "assemble and run programs for the register VM",
	}
	root.AddCommand(newBuildCmd(), newRunCmd())
	return root
}

// newBuildCmd implements §6.1's `build <path> [-o <out>]`: parse the source
// file and emit the §6.2 library format, exposing its named functions for
// other programs to link against via "lib::func".
func newBuildCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "build <path>",
		Short: "assemble a source file into a .dat library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = trimExt(args[0]) + libraryExtension
			}
			return buildLibrary(args[0], out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default: <input base name>.dat)")
	return cmd
}

// newRunCmd implements §6.1's `run <path> [-m <memory>=1024] [-d]`: a .dat
// path is loaded via the binary loader, anything else is parsed as source.
func newRunCmd() *cobra.Command {
	var memory uint16
	var debug bool
	var depDir string

	cmd := &cobra.Command{
		Use:   "run <path>",
		Short: "assemble (or load) and execute a program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(args[0], vm.Word(memory), debug, depDir)
		},
	}
	cmd.Flags().Uint16VarP(&memory, "memory", "m", uint16(defaultMemory), "RAM size in bytes")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable the breakpoint REPL and verbose error reporting")
	cmd.Flags().StringVar(&depDir, "dep-dir", ".", "directory to search for lib::func dependency .dat files")
	return cmd
}

func trimExt(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)]
}

func buildLibrary(path, out string) error {
	src, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer src.Close()

	program, err := vm.AssembleProgram(src)
	if err != nil {
		return err
	}
	dst, err := os.Create(out)
	if err != nil {
		return errors.Wrapf(err, "creating %s", out)
	}
	defer dst.Close()

	if err := program.WriteLibrary(dst); err != nil {
		return err
	}
	fmt.Println("wrote library to", out)
	return nil
}

func runProgram(path string, memory vm.Word, debug bool, depDir string) error {
	machine := vm.NewMachine(memory)
	machine.SetWindowDriver(window.NewDriver())

	var base, length, entry vm.Word
	var lineOf func(vm.Word) int
	var sourcePath string

	if filepath.Ext(path) == libraryExtension {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "reading %s", path)
		}
		allocated, err := vm.LoadBinary(machine.RAM(), data)
		if err != nil {
			return err
		}
		base, length, entry = allocated.Start(), allocated.Size(), 0
	} else {
		sourcePath = path
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "opening %s", path)
		}
		program, err := vm.AssembleProgram(f)
		f.Close()
		if err != nil {
			return err
		}
		entry, err = program.EntryPoint()
		if err != nil {
			return err
		}
		allocated, err := program.Allocate(machine.RAM(), depDir)
		if err != nil {
			return err
		}
		base, length = allocated.Start(), allocated.Size()
		lineOf = func(pc vm.Word) int { return program.LineAt(pc) }
	}

	if debug {
		repl := vm.NewBreakpointREPL(os.Stdin, os.Stdout, os.Stdin.Fd())
		machine.SetBreakpoints(map[int]bool{}, lineOf, repl.Run)
	}

	if err := machine.StartProgram(base, length, entry); err != nil {
		if debug && sourcePath != "" && lineOf != nil {
			fmt.Fprintf(os.Stderr, "at source line %d\n", lineOf(machine.CPU().ProgramCounter()))
		}
		return err
	}
	return nil
}
