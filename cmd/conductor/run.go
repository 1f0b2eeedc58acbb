package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jointwt/conductor/internal"
	"github.com/jointwt/conductor/task"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command>...",
	Short: "Run each argument as a shell command task and wait for all of them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runCommands(ctx, conf, os.Stdout, args)
	},
}

func init() {
	RootCmd.AddCommand(runCmd)
}

func runCommands(ctx context.Context, conf *internal.Config, out io.Writer, commands []string) error {
	archive, err := internal.NewArchiver(conf)
	if err != nil {
		return err
	}
	defer archive.Close()

	d := internal.NewDispatcher(conf, archive)
	d.Start()
	defer d.Stop()

	var mu sync.Mutex
	printf := func(format string, args ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	ids := make([]string, 0, len(commands))
	for _, command := range commands {
		t := internal.NewShellTask(conf.Shell, command)
		t.Observe(func(old, new task.State) {
			printf("%s %s -> %s\n", t.ID(), old, new)
		})

		id, err := d.Dispatch(t)
		if err != nil {
			return fmt.Errorf("error dispatching %q: %w", command, err)
		}
		printf("%s dispatched: %s\n", id, command)
		ids = append(ids, id)
	}

	failed := 0
	for _, id := range ids {
		res, err := d.Wait(ctx, id)
		if err != nil {
			log.WithError(err).WithField("task", id).Error("error waiting for task")
			return err
		}

		if output := res.Data["output"]; output != "" {
			printf("%s output:\n%s\n", id, output)
		}
		if res.Failed() {
			failed++
			printf("%s failed: %s\n", id, res.Error)
		}
	}

	if failed > 0 {
		return fmt.Errorf("error: %d of %d tasks failed", failed, len(ids))
	}

	return nil
}
