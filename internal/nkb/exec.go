package nkb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Runner is the capability for executing external commands. Callers
// decide whether a failure is surfaced or swallowed.
type Runner interface {
	Run(cmd *exec.Cmd) error
}

// Executor runs commands under the application context, killing the
// whole process group on cancellation.
type Executor struct {
	Context context.Context
}

// Run executes cmd synchronously. Stdio left nil by the caller is wired
// to the current process.
func (e *Executor) Run(cmd *exec.Cmd) error {
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	ctx := e.Context
	if ctx == nil {
		ctx = context.Background()
	}

	finalCmd := exec.CommandContext(ctx, cmd.Path, cmd.Args[1:]...)
	if len(cmd.Env) > 0 {
		finalCmd.Env = cmd.Env
	} else {
		finalCmd.Env = os.Environ()
	}
	finalCmd.Dir = cmd.Dir
	finalCmd.Stdin = cmd.Stdin
	finalCmd.Stdout = cmd.Stdout
	finalCmd.Stderr = cmd.Stderr

	// Isolate the process group so cancellation reaps children too.
	finalCmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := finalCmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}
	pgid := finalCmd.Process.Pid

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			syscall.Kill(-pgid, syscall.SIGKILL)
		case <-done:
		}
	}()

	if waitErr := finalCmd.Wait(); waitErr != nil {
		if ctx.Err() != nil {
			time.Sleep(100 * time.Millisecond)
			return fmt.Errorf("command aborted: %v", ctx.Err())
		}
		return waitErr
	}
	return nil
}

// runQuiet runs name with args, discarding all output. The exit status
// is still returned so the caller can choose to ignore it.
func runQuiet(r Runner, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return r.Run(cmd)
}

// runCapture runs name with args and returns its trimmed stdout.
func runCapture(r Runner, name string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = &out
	cmd.Stderr = io.Discard
	if err := r.Run(cmd); err != nil {
		return "", err
	}
	return string(bytes.TrimSpace(out.Bytes())), nil
}
