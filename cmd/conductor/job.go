package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jointwt/conductor/internal"
)

var jobCmd = &cobra.Command{
	Use:   "job <name>",
	Short: "Run a configured job once and print its result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}

		var job *internal.JobConfig
		for i := range conf.Jobs {
			if conf.Jobs[i].Name == args[0] {
				job = &conf.Jobs[i]
				break
			}
		}
		if job == nil {
			return fmt.Errorf("error: no job named %q", args[0])
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		archive, err := internal.NewArchiver(conf)
		if err != nil {
			return err
		}
		defer archive.Close()

		d := internal.NewDispatcher(conf, archive)
		d.Start()
		defer d.Stop()

		failures := internal.NewTTLCache(time.Hour)
		defer failures.Stop()

		res, err := internal.NewCommandJob(conf, d, failures, *job).Wait(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%s %s (%s)\n", res.ID, res.State, res.Finished.Sub(res.Started))
		if output := res.Data["output"]; output != "" {
			fmt.Println(output)
		}
		if res.Failed() {
			return fmt.Errorf("error: job %s failed: %s", job.Name, res.Error)
		}

		return nil
	},
}

func init() {
	RootCmd.AddCommand(jobCmd)
}
