package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/jswans33/james-shell-sub001/core/expand"
	"github.com/jswans33/james-shell-sub001/core/jobs"
	"github.com/jswans33/james-shell-sub001/core/shell"
	"github.com/jswans33/james-shell-sub001/core/vos"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

func (s *Shell) exec(ctx context.Context, n shell.Node) int {
	switch n := n.(type) {
	case *shell.List:
		return s.list(ctx, n)
	case *shell.Pipeline:
		return s.pipeline(ctx, n)
	case *shell.Simple, *shell.Subshell:
		return s.pipeline(ctx, &shell.Pipeline{Stages: []shell.Node{n}, Text: shell.Print(n)})
	}
	return s.status
}

// list runs the entries of l in order. && and || entries are skipped based
// on the status so far, which is left unchanged by a skipped entry.
func (s *Shell) list(ctx context.Context, l *shell.List) int {
	for i, e := range l.Entries {
		if s.exited || ctx.Err() != nil {
			break
		}
		switch e.Op {
		case shell.AndThen:
			if s.status != 0 {
				continue
			}
		case shell.OrElse:
			if s.status == 0 {
				continue
			}
		}

		status := s.pipeline(ctx, e.Node)
		if s.opts.Errexit && status != 0 && !e.Node.Background && !s.exited {
			// A failure on the left of && or || is tested, not fatal.
			if s.abandon || i == len(l.Entries)-1 || l.Entries[i+1].Op == shell.Sequence {
				s.Exit(status)
			}
		}
		if s.abandon {
			if s.status == 0 {
				s.setStatus(1)
			}
			break
		}
	}
	return s.status
}

func (s *Shell) pipeline(ctx context.Context, pl *shell.Pipeline) int {
	if len(pl.Stages) == 1 && !pl.Background {
		switch st := pl.Stages[0].(type) {
		case *shell.Subshell:
			return s.setStatus(s.subshell(ctx, st, s.files))
		case *shell.Simple:
			argv, err := s.expandArgs(ctx, st)
			if err != nil {
				return s.setStatus(s.expandFailed(commandName(st), err))
			}
			if len(argv) == 0 || s.builtin(argv[0]) != nil {
				return s.setStatus(s.inProcess(ctx, st, argv))
			}
			return s.setStatus(s.runJob(ctx, pl, argv))
		}
	}
	return s.setStatus(s.runJob(ctx, pl, nil))
}

// expandArgs expands the words of a simple command. xtrace output is left to
// the caller, which knows the final environment.
func (s *Shell) expandArgs(ctx context.Context, c *shell.Simple) ([]string, error) {
	s.substRan = false
	return expand.Fields(ctx, s.expandConfig(), c.Args...)
}

type assignment struct {
	name, value string
}

func (s *Shell) expandAssigns(ctx context.Context, c *shell.Simple) ([]assignment, error) {
	var out []assignment
	for _, a := range c.Assigns {
		v, err := expand.Literal(ctx, s.expandConfig(), a.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, assignment{name: a.Name, value: v})
	}
	return out, nil
}

// expandFailed reports an expansion error in the command called name and
// abandons the rest of the line. name is empty when the command name itself
// didn't expand.
func (s *Shell) expandFailed(name string, err error) int {
	s.abandon = true
	if name == "" {
		s.errorf("%v", err)
	} else {
		s.errorf("%s: %v", name, err)
	}
	return 1
}

// commandName returns the name of c when it's known before expansion.
func commandName(c *shell.Simple) string {
	if len(c.Args) == 0 {
		return ""
	}
	for _, p := range c.Args[0].Parts {
		if p.Quote != shell.Single && p.Quote != shell.Escaped && strings.ContainsAny(p.Value, "$`") {
			return ""
		}
	}
	return c.Args[0].Literal()
}

func (s *Shell) trace(assigns []assignment, argv []string) {
	if !s.opts.Xtrace {
		return
	}
	var words []string
	for _, a := range assigns {
		words = append(words, a.name+"="+a.value)
	}
	words = append(words, argv...)
	if len(words) > 0 {
		fmt.Fprintf(s.files.Stderr(), "+ %s\n", strings.Join(words, " "))
	}
}

// inProcess runs a builtin, an assignment-only or a redirect-only command
// directly on s. Redirections and prefix assignments last for the command
// only; bare assignments persist.
func (s *Shell) inProcess(ctx context.Context, c *shell.Simple, argv []string) int {
	name := ""
	if len(argv) > 0 {
		name = argv[0]
	}
	assigns, err := s.expandAssigns(ctx, c)
	if err != nil {
		return s.expandFailed(name, err)
	}
	s.trace(assigns, argv)

	saved := s.files
	s.files = saved.Clone()
	defer func() { s.files = saved }()

	closers, err := s.redirect(ctx, s.files, c.Redirects)
	defer closeAll(closers)
	if err != nil {
		s.files = saved
		return s.redirectFailed(name, err)
	}

	if len(argv) == 0 {
		for _, a := range assigns {
			if err := s.setVar(a.name, a.value); err != nil {
				s.errorf("%v", err)
				return 1
			}
		}
		if s.substRan {
			return s.substStatus
		}
		return 0
	}

	restore := s.withAssigns(assigns)
	defer restore()
	return s.builtin(argv[0]).Main(s, argv)
}

// withAssigns sets prefix assignments for the duration of a builtin.
func (s *Shell) withAssigns(assigns []assignment) func() {
	type prior struct {
		name, value string
		set         bool
	}
	var saved []prior
	for _, a := range assigns {
		v, ok := s.env.LookupEnv(a.name)
		saved = append(saved, prior{a.name, v, ok})
		_ = s.env.Setenv(a.name, a.value)
	}
	return func() {
		for i := len(saved) - 1; i >= 0; i-- {
			p := saved[i]
			if p.set {
				_ = s.env.Setenv(p.name, p.value)
			} else {
				_ = s.env.Unsetenv(p.name)
			}
		}
	}
}

// redirectFailed reports a redirection of the command called name that
// couldn't be performed. A target that failed to expand is an expansion
// error.
func (s *Shell) redirectFailed(name string, err error) int {
	var expErr *expand.Error
	if errors.As(err, &expErr) {
		return s.expandFailed(name, err)
	}
	s.errorf("%v", err)
	return 1
}

// subshell runs a ( list ) on a copy of the shell using files.
func (s *Shell) subshell(ctx context.Context, st *shell.Subshell, files *vos.Files) int {
	sub := s.Clone()
	sub.files = files.Clone()
	return sub.runSubshell(ctx, st)
}

// runSubshell runs the body of st on s, which is already a copy.
func (s *Shell) runSubshell(ctx context.Context, st *shell.Subshell) int {
	closers, err := s.redirect(ctx, s.files, st.Redirects)
	defer closeAll(closers)
	if err != nil {
		return s.redirectFailed("", err)
	}
	status := s.Execute(ctx, st.Body)
	s.ctl.WaitAll()
	if exited, code := s.Exited(); exited {
		return code
	}
	return status
}

// stage is one pipeline member being launched.
type stage struct {
	j    *jobs.Job
	last bool
	fg   bool

	// files is the stage's descriptor table, including its pipe ends.
	files *vos.Files
	// owned are the pipe ends the stage is responsible for closing.
	owned []*os.File
}

func (st *stage) close() {
	for _, f := range st.owned {
		f.Close()
	}
	st.owned = nil
}

// spawned is an external stage waiting for the reaper to watch it.
type spawned struct {
	pid  int
	proc *jobs.Process
}

// runner is an in-process stage. The sync runner is the last stage of a
// foreground pipeline and runs on the shell's own goroutine.
type runner struct {
	run  func()
	sync bool
}

// RunAsJob launches pl in a new job and returns its id. A foreground job
// is waited for and $? set from it; a background job is left running. The
// error is the first stage that could not be started.
func (s *Shell) RunAsJob(ctx context.Context, pl *shell.Pipeline, background bool) (int, error) {
	launch := *pl
	launch.Background = background
	l := s.launch(ctx, &launch, nil)
	s.setStatus(s.await(l))
	return l.j.ID, l.err
}

// runJob launches the pipeline as a job and waits for it if it's in the
// foreground. pre holds the already expanded arguments of a single-command
// pipeline.
func (s *Shell) runJob(ctx context.Context, pl *shell.Pipeline, pre []string) int {
	return s.await(s.launch(ctx, pl, pre))
}

// launched is a job whose stages have all been started.
type launched struct {
	j       *jobs.Job
	fg      bool
	bridges *errgroup.Group
	lastPid int
	err     error
}

func (s *Shell) launch(ctx context.Context, pl *shell.Pipeline, pre []string) *launched {
	fg := !pl.Background
	j := s.table.Add(pl.Text, fg)
	l := &launched{j: j, fg: fg, bridges: &errgroup.Group{}}
	fail := func(err error) {
		if l.err == nil {
			l.err = err
		}
	}

	var children []spawned
	var runners []runner
	handedOff := false

	// Every stage is on the job before any can finish, so one that fails to
	// start can't complete the job while later stages still run.
	n := len(pl.Stages)
	procs := make([]*jobs.Process, n)
	for i := range procs {
		procs[i] = s.table.AddProcess(j, 0)
	}

	var prevRead *os.File
	for i, node := range pl.Stages {
		st := &stage{j: j, last: i == n-1, fg: fg, files: s.files.Clone()}
		if prevRead != nil {
			st.files.Set(0, vos.FileStream(prevRead))
			st.owned = append(st.owned, prevRead)
			prevRead = nil
		}
		if !st.last {
			r, w, err := os.Pipe()
			if err != nil {
				s.errorf("pipe: %v", err)
				fail(err)
				st.close()
				for _, p := range procs[i:] {
					s.table.Finish(j, p, 1)
				}
				break
			}
			st.files.Set(1, vos.FileStream(w))
			st.owned = append(st.owned, w)
			prevRead = r
		}

		// The last stage of a foreground pipeline runs in the shell itself,
		// every other stage on a copy.
		inShell := st.last && fg
		sh := s
		if !inShell {
			sh = s.Clone()
			sh.files = st.files
		}

		switch node := node.(type) {
		case *shell.Subshell:
			sub := sh
			if inShell {
				sub = s.Clone()
				sub.files = st.files
			}
			runners = append(runners, runner{
				run: s.stageRunner(st, procs[i], func() int {
					return sub.runSubshell(ctx, node)
				}),
				sync: inShell,
			})

		case *shell.Simple:
			argv := pre
			if argv == nil {
				var err error
				if argv, err = sh.expandArgs(ctx, node); err != nil {
					st.close()
					fail(err)
					s.table.Finish(j, procs[i], s.expandFailed(commandName(node), err))
					continue
				}
			}
			if len(argv) == 0 || sh.builtin(argv[0]) != nil {
				runners = append(runners, runner{
					run: s.stageRunner(st, procs[i], func() int {
						if !inShell {
							return sh.inProcess(ctx, node, argv)
						}
						saved := s.files
						s.files = st.files
						defer func() { s.files = saved }()
						return s.inProcess(ctx, node, argv)
					}),
					sync: inShell,
				})
				continue
			}

			first := j.Pgid == 0 && len(children) == 0
			pid, handed, err := s.spawn(ctx, sh, st, node, argv, first, l.bridges)
			st.close()
			if err != nil {
				fail(err)
				s.table.Finish(j, procs[i], s.spawnFailed(argv[0], err))
				continue
			}
			if first && s.jobControl {
				s.table.SetGroup(j, pid)
			}
			handedOff = handedOff || handed
			s.table.SetPid(procs[i], pid)
			children = append(children, spawned{pid: pid, proc: procs[i]})
			l.lastPid = pid
		}
	}
	if prevRead != nil {
		prevRead.Close()
	}

	// Children are watched once every stage has joined the group; the
	// leader stays a zombie until then.
	for _, c := range children {
		c := c
		s.router.Watch(c.pid, func(ws unix.WaitStatus) {
			s.table.Apply(j, c.proc, ws)
		})
	}
	s.ctl.Launched(j, handedOff)

	for _, r := range runners {
		if r.sync {
			r.run()
			continue
		}
		go r.run()
	}

	return l
}

// await waits for a foreground job, or records a background one as $!.
func (s *Shell) await(l *launched) int {
	if !l.fg {
		s.lastBg = l.lastPid
		if s.lastBg == 0 {
			s.lastBg = l.j.Pgid
		}
		if s.interactive {
			fmt.Fprintf(s.files.Stderr(), "[%d] %d\n", l.j.ID, s.lastBg)
		}
		go func() { _ = l.bridges.Wait() }()
		return 0
	}

	status := s.ctl.WaitForeground(l.j)
	if s.table.Summary(l.j).State == jobs.Done {
		_ = l.bridges.Wait()
	}
	return status
}

// stageRunner wraps an in-process stage so it reports to the job table and
// releases its pipe ends when it returns.
func (s *Shell) stageRunner(st *stage, proc *jobs.Process, run func() int) func() {
	return func() {
		status := run()
		st.close()
		s.table.Finish(st.j, proc, status)
	}
}

func (s *Shell) spawnFailed(name string, err error) int {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		s.errorf("%v", err)
		s.events.UnknownCommand([]string{execErr.Name}, execErr.Status(), execErr.Err)
		return execErr.Status()
	}
	return s.redirectFailed(name, err)
}

// spawn starts an external command for st. It reports whether the child was
// given the terminal.
func (s *Shell) spawn(ctx context.Context, sh *Shell, st *stage, c *shell.Simple, argv []string, first bool, bridges *errgroup.Group) (int, bool, error) {
	path, err := vos.LookPath(sh.fs, sh.dir, sh.env.Getenv(EnvPath), argv[0])
	if err != nil {
		return 0, false, &ExecError{Name: argv[0], Err: err}
	}

	assigns, err := sh.expandAssigns(ctx, c)
	if err != nil {
		return 0, false, err
	}
	sh.trace(assigns, argv)

	env := sh.env.Clone()
	for _, a := range assigns {
		_ = env.Setenv(a.name, a.value)
		env.Export(a.name)
	}

	closers, err := sh.redirect(ctx, st.files, c.Redirects)
	defer closeAll(closers)
	if err != nil {
		return 0, false, err
	}

	childFiles, parentEnds, err := s.childFiles(st.files, bridges)
	defer closeAll(parentEnds)
	if err != nil {
		return 0, false, err
	}

	foreground := first && st.fg && s.ctl.JobControl()
	attr := &os.ProcAttr{
		Dir:   sh.dir,
		Env:   env.Environ(),
		Files: childFiles,
		Sys: &syscall.SysProcAttr{
			Setpgid:    s.jobControl,
			Pgid:       st.j.Pgid,
			Foreground: foreground,
			Ctty:       s.ctl.Term.Fd(),
		},
	}

	s.ctl.BeforeLaunch(foreground)
	proc, err := os.StartProcess(path, argv, attr)
	if err != nil {
		return 0, false, &ExecError{Name: argv[0], Err: err}
	}
	pid := proc.Pid
	proc.Release()

	pgid := st.j.Pgid
	if pgid == 0 && s.jobControl {
		pgid = pid
	}
	s.events.RunCommand(argv, path, pgid)
	s.debug.Printf("started %q as pid %d in group %d", argv, pid, pgid)
	return pid, foreground, nil
}

// childFiles converts a descriptor table to the files handed to a child.
// Streams that aren't files are bridged through pipes; output bridges are
// added to bridges so the shell can wait for them. The returned closers are
// the child's ends, which the parent closes after the spawn.
func (s *Shell) childFiles(files *vos.Files, bridges *errgroup.Group) ([]*os.File, []io.Closer, error) {
	fds := files.Fds()
	if len(fds) == 0 {
		return nil, nil, nil
	}

	out := make([]*os.File, fds[len(fds)-1]+1)
	var childEnds []io.Closer
	for _, fd := range fds {
		stream, _ := files.Get(fd)
		if f, ok := stream.File(); ok {
			out[fd] = f
			continue
		}

		r, w, err := os.Pipe()
		if err != nil {
			closeAll(childEnds)
			return nil, nil, err
		}
		if stream.Writer != nil && (fd != 0 || stream.Reader == nil) {
			dst := stream.Writer
			out[fd] = w
			childEnds = append(childEnds, w)
			bridges.Go(func() error {
				defer r.Close()
				_, err := io.Copy(dst, r)
				return err
			})
			continue
		}

		src := stream.Reader
		out[fd] = r
		childEnds = append(childEnds, r)
		go func() {
			defer w.Close()
			_, _ = io.Copy(w, src)
		}()
	}
	return out, childEnds, nil
}

// substitute runs src in a subshell and returns what it wrote to stdout.
func (s *Shell) substitute(ctx context.Context, src string) (string, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	sub := s.Clone()
	sub.files.Set(1, vos.FileStream(w))

	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer r.Close()
		_, _ = io.Copy(&out, r)
	}()

	status, err := sub.Eval(ctx, src)
	w.Close()
	<-done
	if err != nil {
		return "", err
	}
	if exited, code := sub.Exited(); exited {
		status = code
	}

	s.substRan = true
	s.substStatus = status
	return out.String(), nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		c.Close()
	}
}
