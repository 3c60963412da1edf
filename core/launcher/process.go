package launcher

import (
	"os/exec"
	"sync"
	"sync/atomic"
)

// stderrLimit bounds how much worker stderr is kept for failure
// messages.
const stderrLimit = 64 * 1024

// ProcessHandle wraps one live worker process
type ProcessHandle struct {
	jobID  string
	cmd    *exec.Cmd
	stderr *tailBuffer

	waitOnce  sync.Once
	done      chan struct{}
	exitCode  int
	cancelled atomic.Bool
}

func newProcessHandle(jobID string, cmd *exec.Cmd) *ProcessHandle {
	h := &ProcessHandle{
		jobID:  jobID,
		cmd:    cmd,
		stderr: &tailBuffer{limit: stderrLimit},
		done:   make(chan struct{}),
	}
	cmd.Stderr = h.stderr
	return h
}

func (h *ProcessHandle) start() error {
	return h.cmd.Start()
}

// Pid returns the worker's process id
func (h *ProcessHandle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Wait blocks until the worker exits and returns its exit code along
// with the tail of its stderr. Safe to call from multiple goroutines.
func (h *ProcessHandle) Wait() (int, string) {
	h.waitOnce.Do(func() {
		err := h.cmd.Wait()
		if err == nil {
			h.exitCode = 0
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			h.exitCode = exitErr.ExitCode()
		} else {
			h.exitCode = -1
			h.stderr.WriteString(err.Error())
		}
		close(h.done)
	})
	<-h.done
	return h.exitCode, h.stderr.String()
}

// Kill terminates the worker process
func (h *ProcessHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// MarkCancelled flags the process as intentionally killed, so the
// completion watcher reports cancellation instead of a crash.
func (h *ProcessHandle) MarkCancelled() {
	h.cancelled.Store(true)
}

// Cancelled reports whether the process was intentionally killed
func (h *ProcessHandle) Cancelled() bool {
	return h.cancelled.Load()
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) WriteString(s string) {
	b.Write([]byte(s))
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
