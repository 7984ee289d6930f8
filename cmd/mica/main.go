// Package main is the mica CLI: run a script file, or drop into a REPL
// when invoked with no arguments.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mica-lang/mica"
	"github.com/mica-lang/mica/internal/conf"
	"github.com/mica-lang/mica/natives"
)

func main() {
	verbose := flag.Bool("v", false, "print the version banner and natives-registration time")
	flag.Parse()
	args := flag.Args()
	if len(args) > 1 {
		fmt.Fprintln(os.Stderr, "usage: mica [-v] [script]")
		os.Exit(1)
	}

	in := mica.New()
	defer in.Free()
	dropped := in.RegisterStandardNatives()
	if len(dropped) > 0 {
		fmt.Fprintf(os.Stderr, "warning: could not register natives: %v\n", dropped)
	}
	if *verbose {
		fmt.Fprintf(os.Stderr, "%s (natives registered at %s)\n", conf.FullVersion(), natives.Banner())
	}

	if len(args) == 1 {
		runFile(in, args[0])
		return
	}
	runREPL(in, *verbose)
}

func runFile(in *mica.Instance, path string) {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if !compileAndRun(in, path, src) {
		os.Exit(1)
	}
}

// compileAndRun reports every diagnostic from a failed compile or the
// error from a failed run, and reports whether the source ran cleanly.
func compileAndRun(in *mica.Instance, filename string, src []byte) bool {
	ok, diags := in.Compile(filename, src)
	for _, d := range diags {
		fmt.Fprintln(os.Stderr, d)
	}
	if !ok {
		return false
	}
	ranOK, runErr := in.Run()
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
	}
	return ranOK
}

// runREPL reads one line at a time, compiling and running it immediately;
// each line is its own top-level frame, so a binding declared on one line
// is visible (as a global) on the next. Typing "exit" ends the session.
// The banner is skipped here when verbose already printed it in main.
func runREPL(in *mica.Instance, verboseAlreadyPrinted bool) {
	if !verboseAlreadyPrinted {
		fmt.Fprintln(os.Stderr, conf.FullVersion())
	}
	rl, err := newLineReader()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if isInterrupt(err) {
				continue
			}
			return
		}
		if line == "exit" {
			return
		}
		if line == "" {
			continue
		}
		compileAndRun(in, "<repl>", []byte(line))
	}
}
