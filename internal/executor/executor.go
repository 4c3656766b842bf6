// Package executor runs a job's command through the host shell and records
// the result on the job row.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/joshu-sajeev/queuectl/internal/config"
	"github.com/joshu-sajeev/queuectl/internal/models"
	"github.com/sirupsen/logrus"
)

// Recorder is the part of the job store the executor writes results through.
type Recorder interface {
	UpdateState(ctx context.Context, id string, state config.JobState) error
	UpdateOutput(ctx context.Context, id string, output string) error
	UpdateLastError(ctx context.Context, id string, msg string) error
}

type Executor struct {
	store Recorder
	shell string
	log   logrus.FieldLogger
}

func New(store Recorder, shell string, log logrus.FieldLogger) *Executor {
	if shell == "" {
		shell = "/bin/sh"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Executor{store: store, shell: shell, log: log}
}

// Execute runs job.Command with "<shell> -c" and blocks until it exits or ctx
// is canceled, in which case the whole process group is killed. The combined
// output and the terminal state (COMPLETED or FAILED) are persisted before
// Execute returns; the returned state mirrors what was written. The error is
// non-nil only when persisting failed.
func (e *Executor) Execute(ctx context.Context, job *models.Job) (config.JobState, error) {
	var out syncBuffer

	cmd := exec.CommandContext(ctx, e.shell, "-c", job.Command)
	cmd.Stdout = &out
	cmd.Stderr = &out
	configureProcessGroup(cmd)

	runErr := cmd.Run()

	state := config.JobStateCompleted
	output := out.String()
	var lastError string

	if runErr != nil {
		state = config.JobStateFailed

		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			lastError = fmt.Sprintf("interrupted: %v", ctx.Err())
			output = appendLine(output, lastError)
		case errors.As(runErr, &exitErr):
			lastError = exitErr.Error()
		default:
			lastError = runErr.Error()
			output = appendLine(output, lastError)
		}
	}

	// The run context may already be canceled; results must still land.
	persistCtx := context.WithoutCancel(ctx)

	if err := e.store.UpdateOutput(persistCtx, job.ID, output); err != nil {
		return state, fmt.Errorf("record output: %w", err)
	}
	if lastError != "" {
		if err := e.store.UpdateLastError(persistCtx, job.ID, lastError); err != nil {
			return state, fmt.Errorf("record last error: %w", err)
		}
	}
	if err := e.store.UpdateState(persistCtx, job.ID, state); err != nil {
		return state, fmt.Errorf("record state: %w", err)
	}

	entry := e.log.WithField("job_id", job.ID)
	if state == config.JobStateCompleted {
		entry.Debug("command completed")
	} else {
		entry.WithField("error", lastError).Debug("command failed")
	}
	return state, nil
}

func appendLine(output, line string) string {
	if output == "" {
		return line
	}
	if output[len(output)-1] != '\n' {
		output += "\n"
	}
	return output + line
}

// syncBuffer serialises writes from the stdout and stderr copiers. When both
// point at the same writer exec shares one pipe, but a custom writer still
// gets two goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
