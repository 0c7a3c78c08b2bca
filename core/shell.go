package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jswans33/james-shell-sub001/core/expand"
	"github.com/jswans33/james-shell-sub001/core/jobs"
	"github.com/jswans33/james-shell-sub001/core/logger"
	"github.com/jswans33/james-shell-sub001/core/shell"
	"github.com/jswans33/james-shell-sub001/core/vos"
	"github.com/spf13/afero"
	"golang.org/x/term"
)

const (
	EnvHome     = "HOME"
	EnvPWD      = "PWD"
	EnvOldPWD   = "OLDPWD"
	EnvPath     = "PATH"
	EnvPrompt   = "PS1"
	EnvPrompt2  = "PS2"
	EnvHostname = "HOSTNAME"
	EnvUser     = "USER"
	EnvIFS      = "IFS"

	DefaultPrompt  = `\u@\h:\w\$ `
	DefaultPrompt2 = "> "
	DefaultPath    = "/usr/local/bin:/usr/bin:/bin"
)

// Options are the shell options toggled by set.
type Options struct {
	Errexit  bool
	Xtrace   bool
	Nounset  bool
	Pipefail bool
	Noglob   bool
	Glob     expand.GlobPolicy
}

// Config sets up a Shell.
type Config struct {
	// Name is $0.
	Name string
	// Args are the positional parameters.
	Args []string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Env is the initial environment, every entry is exported.
	Env []string
	// Dir is the working directory, the process's if empty.
	Dir string
	// Path is used as PATH when Env doesn't set one.
	Path string

	Options     Options
	Interactive bool

	// JobControl puts every pipeline into its own process group.
	JobControl bool
	// Terminal is handed to foreground jobs. Nil means no terminal.
	Terminal jobs.Terminal
	// Router reaps children, the process-wide router if nil.
	Router *jobs.Router

	// Fs is used for globbing, redirections and command lookup.
	Fs     afero.Fs
	Events *logger.SessionLogger
	Debug  *log.Logger
}

// Shell executes parsed command lists.
type Shell struct {
	Name string
	args []string

	env   *vos.MapEnv
	files *vos.Files
	dir   string
	opts  Options
	fs    afero.Fs

	status int
	lastBg int

	// substStatus is the status of the last command substitution, which an
	// assignment-only command returns.
	substStatus int
	substRan    bool

	interactive bool
	jobControl  bool

	table  *jobs.Table
	ctl    *jobs.Controller
	router *jobs.Router

	events *logger.SessionLogger
	debug  *log.Logger

	history      []string
	clearHistory func()

	exited     bool
	exitStatus int
	// abandon is set by an expansion error and stops the rest of the line.
	abandon bool

	// ctx is the context of the command being executed, for builtins.
	ctx context.Context
}

// New creates a shell from cfg.
func New(cfg Config) (*Shell, error) {
	s := &Shell{
		Name:        cfg.Name,
		args:        append([]string(nil), cfg.Args...),
		env:         vos.NewMapEnvFromEnvList(cfg.Env),
		files:       vos.NewFiles(cfg.Stdin, cfg.Stdout, cfg.Stderr),
		opts:        cfg.Options,
		fs:          cfg.Fs,
		interactive: cfg.Interactive,
		jobControl:  cfg.JobControl,
		router:      cfg.Router,
		events:      cfg.Events,
		debug:       cfg.Debug,
	}
	if s.Name == "" {
		s.Name = "jsh"
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.debug == nil {
		s.debug = log.New(io.Discard, "", 0)
	}
	if s.router == nil {
		s.router = jobs.DefaultRouter()
	}

	dir := cfg.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	s.dir = abs
	s.env.Setenv(EnvPWD, s.dir)
	s.env.Export(EnvPWD)

	if _, ok := s.env.LookupEnv(EnvPath); !ok {
		path := cfg.Path
		if path == "" {
			path = DefaultPath
		}
		s.env.Setenv(EnvPath, path)
		s.env.Export(EnvPath)
	}

	s.initJobs(cfg.Terminal)
	return s, nil
}

func (s *Shell) initJobs(terminal jobs.Terminal) {
	if terminal == nil || !s.jobControl {
		terminal = jobs.NoTerminal{}
	}
	s.table = jobs.NewTable()
	s.table.OnChange = func(sum jobs.Summary) {
		s.events.JobState(sum.ID, sum.State.String(), sum.Text)
		s.debug.Printf("job %d (pgid %d) is %s: %s", sum.ID, sum.Pgid, sum.State, sum.Text)
	}
	s.ctl = jobs.NewController(s.table, terminal)
	s.ctl.Pipefail = func() bool { return s.opts.Pipefail }
	s.ctl.Out = func() io.Writer { return s.files.Stderr() }
}

// Clone creates a subshell: a copy of the variables, descriptors and
// options with its own job table. It never owns the terminal.
func (s *Shell) Clone() *Shell {
	c := &Shell{
		Name:        s.Name,
		args:        append([]string(nil), s.args...),
		env:         s.env.Clone(),
		files:       s.files.Clone(),
		dir:         s.dir,
		opts:        s.opts,
		fs:          s.fs,
		status:      s.status,
		lastBg:      s.lastBg,
		interactive: false,
		jobControl:  false,
		router:      s.router,
		events:      s.events,
		debug:       s.debug,
		history:     s.history,
	}
	c.initJobs(nil)
	return c
}

// Env returns the shell's variables.
func (s *Shell) Env() *vos.MapEnv { return s.env }

// Files returns the shell's descriptor table.
func (s *Shell) Files() *vos.Files { return s.files }

// Dir returns the working directory.
func (s *Shell) Dir() string { return s.dir }

// Options returns the current shell options.
func (s *Shell) Options() Options { return s.opts }

// Status is the status of the last pipeline, $?.
func (s *Shell) Status() int { return s.status }

// Jobs returns the job controller.
func (s *Shell) Jobs() *jobs.Controller { return s.ctl }

// Interactive reports whether the shell reads commands from a user.
func (s *Shell) Interactive() bool { return s.interactive }

// Exited reports whether exit was run, and with which status.
func (s *Shell) Exited() (bool, int) { return s.exited, s.exitStatus }

// Exit stops the shell after the current command.
func (s *Shell) Exit(status int) {
	s.exited = true
	s.exitStatus = status
}

func (s *Shell) Stdin() io.Reader  { return s.files.Stdin() }
func (s *Shell) Stdout() io.Writer { return s.files.Stdout() }
func (s *Shell) Stderr() io.Writer { return s.files.Stderr() }

// SetHistory replaces the history list; clear is called by history -c.
func (s *Shell) SetHistory(lines []string, clear func()) {
	s.history = lines
	s.clearHistory = clear
}

// AddHistory appends a line to the history list.
func (s *Shell) AddHistory(line string) {
	s.history = append(s.history, line)
}

// History returns the history list.
func (s *Shell) History() []string { return s.history }

// errorf prints a diagnostic prefixed with the shell's name.
func (s *Shell) errorf(format string, args ...interface{}) {
	fmt.Fprintf(s.files.Stderr(), "%s: %s\n", s.Name, fmt.Sprintf(format, args...))
}

func (s *Shell) setStatus(status int) int {
	s.status = status
	return status
}

// Run parses line and executes it. Syntax errors are reported with status 2.
func (s *Shell) Run(ctx context.Context, line string) int {
	list, err := shell.ParseString(line)
	if err != nil {
		s.syntaxError(line, err)
		return s.setStatus(StatusSyntax)
	}
	return s.Execute(ctx, list)
}

// Eval parses and executes src, returning the parse error rather than
// reporting it.
func (s *Shell) Eval(ctx context.Context, src string) (int, error) {
	list, err := shell.ParseString(src)
	if err != nil {
		return StatusSyntax, err
	}
	return s.Execute(ctx, list), nil
}

func (s *Shell) syntaxError(src string, err error) {
	offset := -1
	switch e := err.(type) {
	case *shell.ParseError:
		offset = e.Offset
	case *shell.LexError:
		offset = e.Offset
	}
	s.events.SyntaxError(src, offset, err.Error())
	s.errorf("%v", err)
}

// RunScript reads commands from r until end of input or exit. Lines are
// gathered until they form complete commands.
func (s *Shell) RunScript(ctx context.Context, r io.Reader) int {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var acc Accumulator
	run := func(src string) bool {
		if strings.TrimSpace(src) != "" {
			s.Run(ctx, src)
		}
		if s.exited || ctx.Err() != nil {
			return false
		}
		if s.interactive {
			s.ctl.Notify()
		}
		return true
	}

	for scanner.Scan() {
		src, ok := acc.Add(scanner.Text())
		if ok && !run(src) {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		s.errorf("%v", err)
		s.setStatus(1)
	} else if acc.Pending() && !s.exited {
		run(acc.Flush())
	}

	if s.exited {
		return s.exitStatus
	}
	return s.status
}

// Execute runs a parsed tree and returns its status.
func (s *Shell) Execute(ctx context.Context, n shell.Node) int {
	saved := s.ctx
	s.ctx = ctx
	s.abandon = false
	defer func() {
		s.ctx = saved
		s.abandon = false
	}()
	return s.exec(ctx, n)
}

func (s *Shell) context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// Prompt expands PS1 (or PS2 when continued is set).
func (s *Shell) Prompt(continued bool) string {
	if continued {
		if ps2, ok := s.env.LookupEnv(EnvPrompt2); ok {
			return ps2
		}
		return DefaultPrompt2
	}

	prompt, ok := s.env.LookupEnv(EnvPrompt)
	if !ok {
		prompt = DefaultPrompt
	}
	prompt = strings.ReplaceAll(prompt, `\u`, s.env.Getenv(EnvUser))

	host := s.env.Getenv(EnvHostname)
	if host == "" {
		host, _ = os.Hostname()
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	prompt = strings.ReplaceAll(prompt, `\h`, host)

	pwd := s.dir
	if home := s.env.Getenv(EnvHome); home != "" && (pwd == home || strings.HasPrefix(pwd, home+"/")) {
		pwd = "~" + strings.TrimPrefix(pwd, home)
	}
	prompt = strings.ReplaceAll(prompt, `\w`, pwd)

	if os.Geteuid() == 0 {
		prompt = strings.ReplaceAll(prompt, `\$`, "#")
	} else {
		prompt = strings.ReplaceAll(prompt, `\$`, "$")
	}

	return prompt
}

// SetPositional replaces $1...
func (s *Shell) SetPositional(args []string) {
	s.args = append([]string(nil), args...)
}

// expandConfig describes the shell's state to the expander.
func (s *Shell) expandConfig() *expand.Config {
	return &expand.Config{
		Env:     shellEnv{s},
		Args:    s.args,
		NoUnset: s.opts.Nounset,
		NoGlob:  s.opts.Noglob,
		Glob:    s.opts.Glob,
		Fs:      s.fs,
		Dir:     s.dir,
		Subst:   s.substitute,
	}
}

// shellEnv adds the special parameters to the shell's variables.
type shellEnv struct {
	s *Shell
}

func (e shellEnv) LookupEnv(name string) (string, bool) {
	switch name {
	case "?":
		return strconv.Itoa(e.s.status), true
	case "$":
		return strconv.Itoa(os.Getpid()), true
	case "!":
		if e.s.lastBg == 0 {
			return "", false
		}
		return strconv.Itoa(e.s.lastBg), true
	case "0":
		return e.s.Name, true
	case "-":
		return e.s.optionFlags(), true
	}
	return e.s.env.LookupEnv(name)
}

func (e shellEnv) Setenv(name, value string) error {
	return e.s.setVar(name, value)
}

func (s *Shell) setVar(name, value string) error {
	if !shell.IsName(name) {
		return fmt.Errorf("%s: not a valid identifier", name)
	}
	return s.env.Setenv(name, value)
}

func (s *Shell) optionFlags() string {
	var sb strings.Builder
	for _, o := range shortOptions {
		if *o.field(&s.opts) {
			sb.WriteByte(o.flag)
		}
	}
	if s.interactive {
		sb.WriteByte('i')
	}
	return sb.String()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
