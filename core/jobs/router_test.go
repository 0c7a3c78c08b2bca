package jobs

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func startSleep(t *testing.T) int {
	t.Helper()
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	proc, err := os.StartProcess(path, []string{"sleep", "30"}, &os.ProcAttr{
		Files: []*os.File{nil, nil, nil},
		Sys:   &syscall.SysProcAttr{Setpgid: true},
	})
	require.NoError(t, err)
	pid := proc.Pid
	require.NoError(t, proc.Release())
	t.Cleanup(func() { _ = unix.Kill(pid, syscall.SIGKILL) })
	return pid
}

func nextStatus(t *testing.T, ch <-chan unix.WaitStatus) unix.WaitStatus {
	t.Helper()
	select {
	case ws := <-ch:
		return ws
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for child status")
	}
	return 0
}

func TestRouter_reapsStateChanges(t *testing.T) {
	r := newRouter(10 * time.Millisecond)
	r.start()

	pid := startSleep(t)
	statuses := make(chan unix.WaitStatus, 8)
	r.Watch(pid, func(ws unix.WaitStatus) { statuses <- ws })

	require.NoError(t, unix.Kill(pid, syscall.SIGSTOP))
	ws := nextStatus(t, statuses)
	require.True(t, ws.Stopped())
	assert.Equal(t, syscall.SIGSTOP, ws.StopSignal())

	require.NoError(t, unix.Kill(pid, syscall.SIGCONT))
	assert.True(t, nextStatus(t, statuses).Continued())

	require.NoError(t, unix.Kill(pid, syscall.SIGTERM))
	ws = nextStatus(t, statuses)
	require.True(t, ws.Signaled())
	assert.Equal(t, syscall.SIGTERM, ws.Signal())

	assert.Eventually(t, func() bool { return !r.Pending(pid) }, time.Second, 10*time.Millisecond)
}

func TestRouter_forwardsToForegroundGroup(t *testing.T) {
	r := newRouter(10 * time.Millisecond)
	r.start()

	pid := startSleep(t)
	statuses := make(chan unix.WaitStatus, 8)
	r.Watch(pid, func(ws unix.WaitStatus) { statuses <- ws })
	r.ForwardTo(func() (int, []int) { return pid, []int{pid} })

	r.dispatch(bitTerminate)
	ws := nextStatus(t, statuses)
	require.True(t, ws.Signaled())
	assert.Equal(t, syscall.SIGTERM, ws.Signal())
}

func TestRouter_reportsUnwaitablePid(t *testing.T) {
	r := newRouter(10 * time.Millisecond)
	errs := make(chan error, 1)
	r.OnError(func(err error) { errs <- err })

	// Not a child of this process.
	r.watched[1] = func(unix.WaitStatus) {}
	r.poll()

	select {
	case err := <-errs:
		var sde *SignalDeliveryError
		require.True(t, errors.As(err, &sde))
		assert.Equal(t, 1, sde.Pid)
		assert.True(t, errors.Is(err, unix.ECHILD))
	default:
		t.Fatal("expected an error")
	}
	assert.False(t, r.Pending(1))
}
