// Package commands holds the parts of shell builtins that don't depend on
// shell state: flag parsing, help output and the simple builtins built on
// them.
package commands

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	getopt "github.com/pborman/getopt/v2"
)

// Invocation is a single run of a builtin.
type Invocation interface {
	// Args holds the command name followed by its arguments.
	Args() []string
	Stdin() io.Reader
	Stdout() io.Writer
	Stderr() io.Writer
	Getenv(key string) string
	// IsTerminal reports whether stdout is a terminal.
	IsTerminal() bool
	// LogInvalidInvocation records a usage error.
	LogInvalidInvocation(err error)
}

// CommandFunc is a builtin that needs nothing but its invocation.
type CommandFunc func(inv Invocation) int

// AllCommands holds every command registered by this package.
var AllCommands = make(map[string]CommandFunc)

func addCmd(name string, cmd CommandFunc) {
	AllCommands[name] = cmd
}

// Names lists the registered commands in sorted order.
func Names() []string {
	var out []string
	for name := range AllCommands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type SimpleCommand struct {
	// Use holds a one line usage string
	Use string
	// Short holds a sone line description of the command.
	Short string
	// ShowHelp sets whether help is displayed or not.
	// If this is non-nil when Run() is called, then the default help flag isn't
	// added.
	ShowHelp *bool
	// NeverBail skips interacting with stdout/stderr on failure and
	// always runs the callback.
	NeverBail bool

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (s *SimpleCommand) Flags() *getopt.Set {
	if s.flags == nil {
		s.flags = getopt.New()
	}

	return s.flags
}

// PrintHelp writes help for the command to the given writer.
func (s *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, s.Use)
	fmt.Fprintln(w, s.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	s.Flags().PrintOptions(w)
}

// Run the command, if flag parsing was succcessful call the callback.
func (s *SimpleCommand) Run(inv Invocation, callback func() int) int {
	opts := s.Flags()

	// Add help flag if not overridden.
	if s.ShowHelp == nil {
		s.ShowHelp = opts.BoolLong("help", 'h', "show this help and exit")
	}

	args := inv.Args()
	err := opts.Getopt(args, nil)
	if err != nil {
		inv.LogInvalidInvocation(err)
	}

	if err != nil && !s.NeverBail {
		fmt.Fprintf(inv.Stderr(), "%s: %s\n", args[0], err)
		fmt.Fprintf(inv.Stderr(), "usage: %s\n", s.Use)
		return 2
	}

	if *s.ShowHelp {
		s.PrintHelp(inv.Stdout())
		return 0
	}

	return callback()
}

const (
	colorAlways = "always"
	colorAuto   = "auto"
	colorNever  = "never"
)

var (
	ColorBoldBlue  = color.New(color.FgBlue, color.Bold)
	ColorBoldGreen = color.New(color.FgGreen, color.Bold)
	ColorBoldCyan  = color.New(color.FgCyan, color.Bold)
	ColorBoldRed   = color.New(color.FgRed, color.Bold)
)

type ColorPrinter struct {
	value *string
	inv   Invocation
}

// Init sets up the flag and invocation to determine the color output.
func (c *ColorPrinter) Init(flags *getopt.Set, inv Invocation) {
	c.inv = inv
	c.value = flags.EnumLong(
		"color",
		rune(0), // No short flag.
		[]string{colorAlways, colorAuto, colorNever},
		colorAuto,
		"colorize the output (always|auto|never)")
}

func (c *ColorPrinter) ShouldColor() bool {
	switch {
	case *c.value == colorNever:
		return false
	case *c.value == colorAlways:
		return true
	default:
		return c.inv.IsTerminal()
	}
}

func (c *ColorPrinter) Sprintf(clr *color.Color, format string, a ...interface{}) string {
	if c.ShouldColor() {
		forced := *clr
		forced.EnableColor()
		return forced.Sprintf(format, a...)
	}
	return fmt.Sprintf(format, a...)
}
