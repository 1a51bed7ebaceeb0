// Package vmcmd implements the vm command: read a bytecode image and run it.
// Grounded on the teacher's internal/maincmd, trimmed from a multi-command
// reflection dispatcher (parse/resolve/tokenize) down to spsl's single
// invocation shape (spec.md §6.3), keeping the mainer.Stdio/Parser/flag:"..."
// idiom.
package vmcmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/Hell0XD/spsl/lang/image"
	"github.com/Hell0XD/spsl/lang/machine"
)

const binName = "vm"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <image-path>
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <image-path>
       %[1]s -h|--help
       %[1]s -v|--version

Runs a compiled spsl bytecode image: deserializes <image-path> and executes
its entry function to completion.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --jit                     Enable the x86-64 tracing JIT for hot
                                 monomorphic functions (interpreted-only by
                                 default).
       --debug-jit               With --jit, print the reason the most
                                 recent hot-function compile was rejected
                                 (the bytecode is not printed).

More information on the %[1]s repository:
       https://github.com/Hell0XD/spsl
`, binName)
)

// Cmd is the vm command's flag set and entry point.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help     bool `flag:"h,help"`
	Version  bool `flag:"v,version"`
	JIT      bool `flag:"jit"`
	DebugJIT bool `flag:"debug-jit"`

	args []string
}

func (c *Cmd) SetArgs(args []string) { c.args = args }
func (c *Cmd) SetFlags(map[string]bool) {}

// Validate checks that an image path was given, unless --help/--version was
// requested (mirrors the teacher's Cmd.Validate).
func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) == 0 {
		return errors.New("no image path specified")
	}
	if len(c.args) > 1 {
		return fmt.Errorf("unexpected extra arguments: %v", c.args[1:])
	}
	return nil
}

// Main parses args, dispatches --help/--version, and otherwise runs the
// named image to completion, printing "VM ERROR: <msg>" to stderr and
// returning mainer.Failure on any runtime error (spec.md §6.3/§7).
func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	_ = mainer.CancelOnSignal(context.Background(), os.Interrupt) // no cancellation carried into Thread, see DESIGN.md

	if err := c.run(stdio); err != nil {
		fmt.Fprintf(stdio.Stderr, "VM ERROR: %s\n", err)
		return mainer.Failure
	}
	return mainer.Success
}

func (c *Cmd) run(stdio mainer.Stdio) error {
	path := c.args[0]
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image %q: %w", path, err)
	}
	prog, err := image.Deserialize(b)
	if err != nil {
		return fmt.Errorf("deserializing image %q: %w", path, err)
	}

	th := &machine.Thread{
		Name:     path,
		Stdout:   stdio.Stdout,
		Stderr:   stdio.Stderr,
		JIT:      c.JIT,
		DebugJIT: c.DebugJIT,
	}
	defer th.Close()

	_, err = th.RunProgram(prog)
	if c.DebugJIT {
		if fail := th.LastJITFailure(); fail != nil {
			fmt.Fprintf(stdio.Stderr, "debug-jit: a hot function was not compiled: %s\n", fail)
		}
	}
	return err
}
