package gaze

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// execProcess adapts an exec.Cmd to the Process interface.
type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	done   chan struct{}
}

// ExecLauncher returns a Launcher that runs the given tracker command
// with its stdout as the sample stream. This mirrors how the vendor
// tool is used by hand: a console binary printing one record per line.
func ExecLauncher(command string, args ...string) Launcher {
	return func(ctx context.Context) (Process, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("tracker stdout pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("tracker start: %w", err)
		}

		p := &execProcess{cmd: cmd, stdout: stdout, done: make(chan struct{})}
		go func() {
			_ = cmd.Wait()
			close(p.done)
		}()
		return p, nil
	}
}

func (p *execProcess) Output() io.Reader { return p.stdout }

func (p *execProcess) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(terminateSignal)
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *execProcess) Done() <-chan struct{} { return p.done }
