package cmd

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/abiosoft/readline"
	"github.com/jswans33/james-shell-sub001/core"
	"github.com/jswans33/james-shell-sub001/core/config"
)

// repl reads commands from the terminal until end of input or exit.
func repl(ctx context.Context, sh *core.Shell, cfg *config.Configuration, debugLog *log.Logger) (int, error) {
	limit := cfg.HistoryLimit
	if limit == 0 {
		limit = -1
	}

	gate := newStdinGate(os.Stdin)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          sh.Prompt(false),
		HistoryFile:     cfg.HistoryPath(),
		HistoryLimit:    limit,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdin:           gate,
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
	})
	if err != nil {
		return 1, err
	}
	defer func() {
		gate.Close()
		rl.Close()
	}()

	sh.SetHistory(readHistory(cfg.HistoryPath(), limit), rl.Operation.ResetHistory)

	var acc core.Accumulator
	for {
		sh.Jobs().Notify()
		rl.SetPrompt(sh.Prompt(acc.Pending()))

		gate.Open()
		line, err := rl.Readline()
		gate.Shut()

		switch {
		case err == readline.ErrInterrupt:
			acc.Reset()
			continue

		case err == io.EOF:
			return sh.Status(), nil

		case err != nil:
			debugLog.Printf("Error readline: %v", err)
			return 1, err
		}

		src, ok := acc.Add(line)
		if !ok || strings.TrimSpace(src) == "" {
			continue
		}

		sh.AddHistory(src)
		sh.Run(ctx, src)
		if exited, status := sh.Exited(); exited {
			return status, nil
		}
	}
}

// readHistory loads the most recent limit lines of the history file.
func readHistory(path string, limit int) []string {
	if path == "" || limit < 0 {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines
}

// stdinGate passes reads through to the terminal only while a line is being
// edited. The line editor reads ahead on its own goroutine, which would
// otherwise take input meant for a foreground job.
type stdinGate struct {
	f *os.File

	mu     sync.Mutex
	cond   *sync.Cond
	open   bool
	closed bool
}

var _ io.ReadCloser = (*stdinGate)(nil)

func newStdinGate(f *os.File) *stdinGate {
	g := &stdinGate{f: f}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Open lets reads through.
func (g *stdinGate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
	g.cond.Broadcast()
}

// Shut blocks reads until the next Open.
func (g *stdinGate) Shut() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = false
}

func (g *stdinGate) Read(p []byte) (int, error) {
	g.mu.Lock()
	for !g.open && !g.closed {
		g.cond.Wait()
	}
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return 0, io.EOF
	}

	n, err := g.f.Read(p)
	// Enter, ^C and ^D each finish the line being edited.
	if bytes.ContainsAny(p[:n], "\r\n\x03\x04") {
		g.Shut()
	}
	return n, err
}

func (g *stdinGate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.cond.Broadcast()
	return nil
}
