package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"finetune-launcher/core/models"
)

// ProcessHandle is one running training process. Output is a single
// combined stream; exactly one goroutine may read it.
type ProcessHandle interface {
	Output() io.Reader
	// Wait blocks until the process exits and returns its exit code.
	Wait() (int, error)
	// Terminate asks the process to stop, escalating to a kill if it does
	// not exit within the grace period.
	Terminate()
}

// TrainingProcess launches a training attempt from a plan. Modeled as a
// capability so tests can substitute a stub for the real executable.
type TrainingProcess interface {
	Invoke(ctx context.Context, plan models.LaunchPlan) (ProcessHandle, error)
}

// ExecTrainingProcess launches the training library as a child process.
type ExecTrainingProcess struct {
	WorkDir     string
	GracePeriod time.Duration
}

// Invoke implements TrainingProcess.
func (p *ExecTrainingProcess) Invoke(ctx context.Context, plan models.LaunchPlan) (ProcessHandle, error) {
	if len(plan.Argv) == 0 {
		return nil, fmt.Errorf("empty launch plan argv")
	}

	cmd := exec.Command(plan.Argv[0], plan.Argv[1:]...)
	cmd.Dir = p.WorkDir
	cmd.Env = overlayEnv(os.Environ(), plan.Env)
	// Own process group so a terminate reaches torchrun's workers too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("failed to start %s: %w", plan.Argv[0], err)
	}
	// The child holds the write end; closing ours makes the read end see
	// EOF when the child exits.
	pw.Close()

	grace := p.GracePeriod
	if grace == 0 {
		grace = 15 * time.Second
	}
	return &execHandle{cmd: cmd, out: pr, grace: grace}, nil
}

type execHandle struct {
	cmd   *exec.Cmd
	out   *os.File
	grace time.Duration

	mu   sync.Mutex
	kill *time.Timer
}

func (h *execHandle) Output() io.Reader { return h.out }

func (h *execHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	h.out.Close()
	// The group is gone; a pending escalation must not fire at a reused pgid.
	h.mu.Lock()
	if h.kill != nil {
		h.kill.Stop()
	}
	h.mu.Unlock()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), err
	}
	return -1, err
}

func (h *execHandle) Terminate() {
	pgid := -h.cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		h.cmd.Process.Kill()
		return
	}
	// Escalate if the group ignores SIGTERM.
	h.mu.Lock()
	h.kill = time.AfterFunc(h.grace, func() {
		syscall.Kill(pgid, syscall.SIGKILL)
	})
	h.mu.Unlock()
}

// overlayEnv applies the plan's environment overlay on top of the inherited
// environment, overriding duplicates.
func overlayEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		override := false
		for key := range overlay {
			if len(kv) > len(key) && kv[:len(key)] == key && kv[len(key)] == '=' {
				override = true
				break
			}
		}
		if !override {
			out = append(out, kv)
		}
	}
	for key, value := range overlay {
		out = append(out, key+"="+value)
	}
	return out
}
