package core

import (
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/jswans33/james-shell-sub001/commands"
	"github.com/jswans33/james-shell-sub001/core/shell"
	"github.com/jswans33/james-shell-sub001/core/vos"
	"github.com/spf13/afero"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

// builtinUsage is shown by help for builtins defined in this package.
var builtinUsage = map[string]string{
	"cd":      "cd [dir | -]\nChange the working directory.",
	"exit":    "exit [n]\nExit the shell with status n.",
	"export":  "export [-p] [name[=value]...]\nMark variables for export to commands.",
	"unset":   "unset [-v] name...\nRemove variables.",
	"set":     "set [-eufx] [-o option] [--] [arg...]\nSet shell options and positional parameters.",
	"type":    "type name...\nDescribe how each name would be run.",
	"help":    "help [name]\nShow help for builtins.",
	"history": "history [-c] [n]\nDisplay or clear the history list.",
	"source":  "source file [arg...]\nRun commands from file in the current shell.",
	".":       ". file [arg...]\nRun commands from file in the current shell.",
	"jobs":    "jobs [-l | -p]\nList jobs.",
	"fg":      "fg [job]\nMove a job to the foreground.",
	"bg":      "bg [job]\nResume a stopped job in the background.",
	"wait":    "wait [job | pid...]\nWait for jobs to finish.",
	"kill":    "kill [-s sig | -sig] job | pid...\nSend a signal to jobs or processes.",
}

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// commandBuiltin runs a shell-independent command from the commands package.
type commandBuiltin commands.CommandFunc

func (c commandBuiltin) Main(s *Shell, args []string) int {
	return c(s.invocation(args))
}

// builtin looks up name in the registry, nil if it isn't a builtin.
func (s *Shell) builtin(name string) ShellBuiltin {
	if b, ok := AllBuiltins[name]; ok {
		return b
	}
	if cmd, ok := commands.AllCommands[name]; ok {
		return commandBuiltin(cmd)
	}
	return nil
}

// BuiltinNames lists every builtin in sorted order.
func BuiltinNames() []string {
	names := commands.Names()
	for name := range AllBuiltins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// builtinInvocation exposes the shell to a commands.CommandFunc.
type builtinInvocation struct {
	s    *Shell
	args []string
}

var _ commands.Invocation = (*builtinInvocation)(nil)

func (s *Shell) invocation(args []string) *builtinInvocation {
	return &builtinInvocation{s: s, args: args}
}

func (b *builtinInvocation) Args() []string           { return b.args }
func (b *builtinInvocation) Stdin() io.Reader         { return b.s.Stdin() }
func (b *builtinInvocation) Stdout() io.Writer        { return b.s.Stdout() }
func (b *builtinInvocation) Stderr() io.Writer        { return b.s.Stderr() }
func (b *builtinInvocation) Getenv(key string) string { return b.s.env.Getenv(key) }
func (b *builtinInvocation) IsTerminal() bool         { return isTerminal(b.s.Stdout()) }

func (b *builtinInvocation) LogInvalidInvocation(err error) {
	b.s.debug.Printf("invalid invocation %q: %v", b.args, err)
}

// Cd is the cd shell builtin
func Cd(s *Shell, args []string) int {
	var dir string
	switch len(args) {
	case 1:
		dir = s.env.Getenv(EnvHome)
		if dir == "" {
			fmt.Fprintf(s.Stderr(), "%s: HOME not set\n", args[0])
			return 1
		}
	case 2:
		dir = args[1]
	default:
		fmt.Fprintf(s.Stderr(), "%s: too many arguments\n", args[0])
		return 1
	}

	printDir := false
	if dir == "-" {
		dir = s.env.Getenv(EnvOldPWD)
		if dir == "" {
			fmt.Fprintf(s.Stderr(), "%s: OLDPWD not set\n", args[0])
			return 1
		}
		printDir = true
	}

	if err := s.Chdir(dir); err != nil {
		fmt.Fprintf(s.Stderr(), "%s: %s: %v\n", args[0], dir, cause(err))
		return 1
	}
	if printDir {
		fmt.Fprintln(s.Stdout(), s.dir)
	}
	return 0
}

// Chdir changes the working directory, keeping PWD and OLDPWD current.
func (s *Shell) Chdir(dir string) error {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.dir, dir)
	}
	dir = filepath.Clean(dir)

	info, err := s.fs.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "chdir", Path: dir, Err: syscall.ENOTDIR}
	}

	_ = s.env.Setenv(EnvOldPWD, s.dir)
	_ = s.env.Setenv(EnvPWD, dir)
	s.dir = dir
	return nil
}

// Exit quits the shell
func Exit(s *Shell, args []string) int {
	status := s.status
	switch len(args) {
	case 1:
	case 2:
		n, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(s.Stderr(), "%s: %s: numeric argument required\n", args[0], args[1])
			status = 2
		} else {
			status = n & 0xff
		}
	default:
		fmt.Fprintf(s.Stderr(), "%s: too many arguments\n", args[0])
		return 1
	}

	if s.interactive {
		fmt.Fprintln(s.Stderr(), "exit")
	}
	s.Exit(status)
	return status
}

// Export marks variables for export, optionally setting them.
func Export(s *Shell, args []string) int {
	names := args[1:]
	if len(names) > 0 && names[0] == "-p" {
		names = names[1:]
	}
	if len(names) == 0 {
		for _, name := range s.env.Exported() {
			if v, ok := s.env.LookupEnv(name); ok {
				fmt.Fprintf(s.Stdout(), "export %s=%s\n", name, quote(v))
			} else {
				fmt.Fprintf(s.Stdout(), "export %s\n", name)
			}
		}
		return 0
	}

	status := 0
	for _, arg := range names {
		name, value, hasValue := strings.Cut(arg, "=")
		if !shell.IsName(name) {
			fmt.Fprintf(s.Stderr(), "%s: `%s': not a valid identifier\n", args[0], arg)
			status = 1
			continue
		}
		if hasValue {
			_ = s.env.Setenv(name, value)
		}
		s.env.Export(name)
	}
	return status
}

// Unset removes variables.
func Unset(s *Shell, args []string) int {
	cmd := &commands.SimpleCommand{
		Use:   "unset [-v] NAME...",
		Short: "Unset shell variables.",
	}
	cmd.Flags().Bool('f', "treat NAME as a function")
	cmd.Flags().Bool('v', "treat NAME as a variable")

	return cmd.Run(s.invocation(args), func() int {
		status := 0
		for _, name := range cmd.Flags().Args() {
			if !shell.IsName(name) {
				fmt.Fprintf(s.Stderr(), "%s: `%s': not a valid identifier\n", args[0], name)
				status = 1
				continue
			}
			_ = s.env.Unsetenv(name)
		}
		return status
	})
}

type shellOption struct {
	flag  byte
	name  string
	field func(*Options) *bool
}

// shortOptions are the options with a single letter form, in $- order.
var shortOptions = []shellOption{
	{'e', "errexit", func(o *Options) *bool { return &o.Errexit }},
	{'f', "noglob", func(o *Options) *bool { return &o.Noglob }},
	{'u', "nounset", func(o *Options) *bool { return &o.Nounset }},
	{'x', "xtrace", func(o *Options) *bool { return &o.Xtrace }},
}

var longOptions = append([]shellOption{
	{0, "pipefail", func(o *Options) *bool { return &o.Pipefail }},
}, shortOptions...)

func findOption(name string) (shellOption, bool) {
	for _, o := range longOptions {
		if o.name == name {
			return o, true
		}
	}
	return shellOption{}, false
}

// Set toggles options or replaces the positional parameters.
func Set(s *Shell, args []string) int {
	if len(args) == 1 {
		for _, kv := range s.env.Variables() {
			name, value, _ := strings.Cut(kv, "=")
			fmt.Fprintf(s.Stdout(), "%s=%s\n", name, quote(value))
		}
		return 0
	}

	rest := args[1:]
	for len(rest) > 0 {
		arg := rest[0]
		if arg == "--" {
			s.SetPositional(rest[1:])
			return 0
		}
		if len(arg) < 2 || (arg[0] != '-' && arg[0] != '+') {
			break
		}
		rest = rest[1:]
		on := arg[0] == '-'

		if arg[1:] == "o" {
			if len(rest) == 0 {
				s.printOptions(on)
				return 0
			}
			o, ok := findOption(rest[0])
			if !ok {
				fmt.Fprintf(s.Stderr(), "%s: %s: invalid option name\n", args[0], rest[0])
				return 2
			}
			*o.field(&s.opts) = on
			rest = rest[1:]
			continue
		}

		for i := 1; i < len(arg); i++ {
			o, ok := shortOption(arg[i])
			if !ok {
				fmt.Fprintf(s.Stderr(), "%s: %c%c: invalid option\n", args[0], arg[0], arg[i])
				return 2
			}
			*o.field(&s.opts) = on
		}
	}

	if len(rest) > 0 {
		s.SetPositional(rest)
	}
	return 0
}

func shortOption(flag byte) (shellOption, bool) {
	for _, o := range shortOptions {
		if o.flag == flag {
			return o, true
		}
	}
	return shellOption{}, false
}

func (s *Shell) printOptions(human bool) {
	names := make([]string, 0, len(longOptions))
	state := make(map[string]bool)
	for _, o := range longOptions {
		names = append(names, o.name)
		state[o.name] = *o.field(&s.opts)
	}
	sort.Strings(names)

	for _, name := range names {
		switch {
		case human && state[name]:
			fmt.Fprintf(s.Stdout(), "%-15s on\n", name)
		case human:
			fmt.Fprintf(s.Stdout(), "%-15s off\n", name)
		case state[name]:
			fmt.Fprintf(s.Stdout(), "set -o %s\n", name)
		default:
			fmt.Fprintf(s.Stdout(), "set +o %s\n", name)
		}
	}
}

// quote renders v so the shell would read it back as one word.
func quote(v string) string {
	if v != "" && strings.IndexFunc(v, needsQuote) < 0 {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		return false
	}
	return !strings.ContainsRune("_-./:,+@%=", r)
}

// Type describes how each name would be run.
func Type(s *Shell, args []string) int {
	status := 0
	for _, name := range args[1:] {
		if s.builtin(name) != nil {
			fmt.Fprintf(s.Stdout(), "%s is a shell builtin\n", name)
			continue
		}
		path, err := vos.LookPath(s.fs, s.dir, s.env.Getenv(EnvPath), name)
		if err != nil {
			fmt.Fprintf(s.Stderr(), "%s: %s: not found\n", args[0], name)
			status = 1
			continue
		}
		fmt.Fprintf(s.Stdout(), "%s is %s\n", name, path)
	}
	return status
}

func History(s *Shell, args []string) int {
	cmd := &commands.SimpleCommand{
		Use:   "history [-c] [n]",
		Short: "Display or manipulate the history list.",
	}
	clear := cmd.Flags().Bool('c', "clear the history by deleting all entries")

	return cmd.Run(s.invocation(args), func() int {
		if *clear {
			s.history = nil
			if s.clearHistory != nil {
				s.clearHistory()
			}
			return 0
		}

		start := 0
		if rest := cmd.Flags().Args(); len(rest) > 0 {
			n, err := strconv.Atoi(rest[0])
			if err != nil || n < 0 {
				fmt.Fprintf(s.Stderr(), "%s: %s: numeric argument required\n", args[0], rest[0])
				return 2
			}
			if n < len(s.history) {
				start = len(s.history) - n
			}
		}

		for i := start; i < len(s.history); i++ {
			fmt.Fprintf(s.Stdout(), "% 5d  %s\n", i+1, s.history[i])
		}
		return 0
	})
}

func Help(s *Shell, args []string) int {
	var printer commands.ColorPrinter
	cmd := &commands.SimpleCommand{
		Use:   "help [name]",
		Short: "Show help for builtins.",
	}
	printer.Init(cmd.Flags(), s.invocation(args))

	return cmd.Run(s.invocation(args), func() int {
		w := s.Stdout()
		if topics := cmd.Flags().Args(); len(topics) > 0 {
			status := 0
			for _, name := range topics {
				usage, ok := builtinUsage[name]
				switch {
				case ok:
					fmt.Fprintln(w, usage)
				case s.builtin(name) != nil:
					fmt.Fprintf(w, "%s: run `%s --help' for usage\n", name, name)
				default:
					fmt.Fprintf(s.Stderr(), "%s: no help topics match `%s'\n", args[0], name)
					status = 1
				}
			}
			return status
		}

		fmt.Fprintln(w, "jsh, an interactive command shell")
		fmt.Fprintln(w, "These shell commands are defined internally.  Type `help' to see this list.")
		fmt.Fprintln(w, "Type `help name' to find out more about the function `name'.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Builtins:")
		fmt.Fprintln(w)
		for _, name := range BuiltinNames() {
			fmt.Fprintln(w, printer.Sprintf(commands.ColorBoldCyan, "%s", name))
		}
		return 0
	})
}

// Source runs a file in the current shell.
func Source(s *Shell, args []string) int {
	if len(args) < 2 {
		fmt.Fprintf(s.Stderr(), "%s: filename argument required\n", args[0])
		return 2
	}

	path := args[1]
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	f, err := s.fs.Open(path)
	if err != nil {
		fmt.Fprintf(s.Stderr(), "%s: %s: %v\n", args[0], args[1], cause(err))
		return 1
	}
	defer f.Close()

	if len(args) > 2 {
		saved := s.args
		s.SetPositional(args[2:])
		defer func() { s.args = saved }()
	}
	return s.RunScript(s.context(), f)
}

// RunFile runs the script at path on the shell's filesystem.
func (s *Shell) RunFile(path string) (int, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return 1, err
	}
	return s.RunScript(s.context(), strings.NewReader(string(data))), nil
}

func init() {
	AllBuiltins["cd"] = ShellBuiltinFunc(Cd)
	AllBuiltins["exit"] = ShellBuiltinFunc(Exit)
	AllBuiltins["export"] = ShellBuiltinFunc(Export)
	AllBuiltins["unset"] = ShellBuiltinFunc(Unset)
	AllBuiltins["set"] = ShellBuiltinFunc(Set)
	AllBuiltins["type"] = ShellBuiltinFunc(Type)
	AllBuiltins["history"] = ShellBuiltinFunc(History)
	AllBuiltins["help"] = ShellBuiltinFunc(Help)
	AllBuiltins["source"] = ShellBuiltinFunc(Source)
	AllBuiltins["."] = ShellBuiltinFunc(Source)
}
