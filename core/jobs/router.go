package jobs

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const (
	bitChild uint32 = 1 << iota
	bitInterrupt
	bitQuit
	bitStop
	bitTerminate
)

var signalBits = map[os.Signal]uint32{
	syscall.SIGCHLD: bitChild,
	syscall.SIGINT:  bitInterrupt,
	syscall.SIGQUIT: bitQuit,
	syscall.SIGTSTP: bitStop,
	syscall.SIGTERM: bitTerminate,
}

// SignalDeliveryError is reported when a watched child can't be waited on
// or a forwarded signal can't be delivered.
type SignalDeliveryError struct {
	Pid    int
	Signal syscall.Signal
	Err    error
}

func (e *SignalDeliveryError) Error() string {
	if e.Signal != 0 {
		return fmt.Sprintf("deliver %v to %d: %v", e.Signal, e.Pid, e.Err)
	}
	return fmt.Sprintf("wait %d: %v", e.Pid, e.Err)
}

func (e *SignalDeliveryError) Unwrap() error { return e.Err }

// WatchFunc receives every wait status reported for a watched pid.
type WatchFunc func(ws unix.WaitStatus)

// Router owns the process's signal disposition. Signals are captured by one
// goroutine that only sets pending bits; a second goroutine reaps children
// and forwards signals outside of signal context.
type Router struct {
	sigs    chan os.Signal
	wake    chan struct{}
	pending atomic.Uint32
	tick    time.Duration

	mu      sync.Mutex
	watched map[int]WatchFunc
	forward func() (pgid int, pids []int)
	onError func(error)
}

var (
	routerOnce    sync.Once
	defaultRouter *Router
)

// DefaultRouter returns the process-wide router, starting it on first use.
// SIGCHLD is always captured.
func DefaultRouter() *Router {
	routerOnce.Do(func() {
		defaultRouter = newRouter(50 * time.Millisecond)
		defaultRouter.start()
	})
	return defaultRouter
}

func newRouter(tick time.Duration) *Router {
	return &Router{
		sigs:    make(chan os.Signal, 16),
		wake:    make(chan struct{}, 1),
		tick:    tick,
		watched: make(map[int]WatchFunc),
	}
}

func (r *Router) start() {
	signal.Notify(r.sigs, syscall.SIGCHLD)
	go r.capture()
	go r.reap()
}

// Intercept routes additional signals through the router so they no longer
// act on the shell itself. Children still get default dispositions on exec.
func (r *Router) Intercept(sigs ...os.Signal) {
	signal.Notify(r.sigs, sigs...)
}

// ForwardTo sets the function that names the foreground job. Captured
// SIGINT, SIGQUIT and SIGTERM are forwarded to it. A positive pgid is
// signalled as a group, otherwise each pid is signalled.
func (r *Router) ForwardTo(fn func() (pgid int, pids []int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forward = fn
}

// OnError sets the function reporting delivery failures.
func (r *Router) OnError(fn func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = fn
}

// Watch registers fn for state changes of pid. The pid is dropped once it
// exits or is killed.
func (r *Router) Watch(pid int, fn WatchFunc) {
	r.mu.Lock()
	r.watched[pid] = fn
	r.mu.Unlock()
	r.kick()
}

// Pending reports whether pid is still watched.
func (r *Router) Pending(pid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.watched[pid]
	return ok
}

func (r *Router) kick() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Router) capture() {
	for sig := range r.sigs {
		bit := signalBits[sig]
		for {
			old := r.pending.Load()
			if r.pending.CompareAndSwap(old, old|bit) {
				break
			}
		}
		r.kick()
	}
}

func (r *Router) reap() {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-r.wake:
		case <-ticker.C:
		}
		r.dispatch(r.pending.Swap(0))
	}
}

func (r *Router) dispatch(bits uint32) {
	for bit, sig := range map[uint32]syscall.Signal{
		bitInterrupt: syscall.SIGINT,
		bitQuit:      syscall.SIGQUIT,
		bitTerminate: syscall.SIGTERM,
	} {
		if bits&bit != 0 {
			r.deliver(sig)
		}
	}
	r.poll()
}

func (r *Router) deliver(sig syscall.Signal) {
	r.mu.Lock()
	fn := r.forward
	r.mu.Unlock()
	if fn == nil {
		return
	}
	pgid, pids := fn()
	if pgid > 0 {
		if err := unix.Kill(-pgid, sig); err != nil && err != unix.ESRCH {
			r.report(&SignalDeliveryError{Pid: -pgid, Signal: sig, Err: err})
		}
		return
	}
	for _, pid := range pids {
		if err := unix.Kill(pid, sig); err != nil && err != unix.ESRCH {
			r.report(&SignalDeliveryError{Pid: pid, Signal: sig, Err: err})
		}
	}
}

func (r *Router) poll() {
	r.mu.Lock()
	pids := make([]int, 0, len(r.watched))
	for pid := range r.watched {
		pids = append(pids, pid)
	}
	r.mu.Unlock()

	for _, pid := range pids {
		r.collect(pid)
	}
}

// collect drains every status change pending for pid.
func (r *Router) collect(pid int) {
	for {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG|unix.WUNTRACED|unix.WCONTINUED, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			r.unwatch(pid)
			r.report(&SignalDeliveryError{Pid: pid, Err: err})
			return
		}
		if wpid == 0 {
			return
		}

		r.mu.Lock()
		fn := r.watched[pid]
		r.mu.Unlock()

		exited := ws.Exited() || ws.Signaled()
		if exited {
			r.unwatch(pid)
		}
		if fn != nil {
			fn(ws)
		}
		if exited {
			return
		}
	}
}

func (r *Router) unwatch(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watched, pid)
}

func (r *Router) report(err error) {
	r.mu.Lock()
	fn := r.onError
	r.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
