package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jointwt/conductor/internal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher, configured jobs and the task status API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, conf)
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.StringP("bind", "b", "", "[int]:<port> to bind to (overrides config)")
	bindFlags(flags, "bind")

	RootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, conf *internal.Config) error {
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

	c, err := internal.StartJobs(conf, d, failures)
	if err != nil {
		return err
	}
	defer c.Stop()

	server := internal.NewServer(conf, d)

	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if err != nil {
			log.WithError(err).Error("error running server")
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
