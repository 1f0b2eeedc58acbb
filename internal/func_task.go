package internal

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"
)

type FuncTask struct {
	*BaseTask

	f func(ctx context.Context) error
}

func NewFuncTask(f func(ctx context.Context) error) *FuncTask {
	return &FuncTask{
		BaseTask: NewBaseTask(),

		f: f,
	}
}

func (t *FuncTask) Run(ctx context.Context) (err error) {
	if err := t.Start(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = t.Fail(fmt.Errorf("error: task panicked: %v", r))
		}
		t.Done()
	}()

	if err := t.f(ctx); err != nil {
		return t.Fail(err)
	}

	return nil
}

// maxOutputSize caps the command output kept in the task data
const maxOutputSize = 16 * 1024

// ShellTask runs a command line through a shell and keeps its combined
// output in the task data under "output".
type ShellTask struct {
	*BaseTask

	shell   string
	command string
}

func NewShellTask(shell, command string) *ShellTask {
	if shell == "" {
		shell = DefaultShell
	}

	t := &ShellTask{
		BaseTask: NewBaseTask(),

		shell:   shell,
		command: command,
	}
	t.SetData("command", command)

	return t
}

func (t *ShellTask) Command() string { return t.command }

func (t *ShellTask) Run(ctx context.Context) error {
	if err := t.Start(); err != nil {
		return err
	}
	defer t.Done()

	cmd := exec.CommandContext(ctx, t.shell, "-c", t.command)
	out, err := cmd.CombinedOutput()
	if len(out) > maxOutputSize {
		out = out[len(out)-maxOutputSize:]
	}
	t.SetData("output", strings.TrimSpace(string(out)))

	if err != nil {
		log.WithError(err).WithField("task", t.ID()).Debugf("error running %q", t.command)
		return t.Fail(fmt.Errorf("error running %q: %w", t.command, err))
	}

	return nil
}
