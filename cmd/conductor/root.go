package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jointwt/conductor"
	"github.com/jointwt/conductor/internal"
)

const defaultConfigName = ".conductor.yaml"

var configFile string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "conductor",
	Version: conductor.FullVersion(),
	Short:   "Run shell commands as observable tasks",
	Long: `conductor runs shell commands as tasks on a small pool of workers.

Every task moves from ready to executing to finished; each transition is
reported as it happens and finished results can be looked up by task id.`,
	SilenceUsage: true,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("debug") {
			log.SetLevel(log.DebugLevel)
		} else {
			log.SetLevel(log.InfoLevel)
		}
	},
}

// Execute adds all child commands to the root command
// and sets flags appropriately.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := RootCmd.PersistentFlags()
	flags.StringVarP(
		&configFile, "config", "c", "",
		fmt.Sprintf("config file (default is $HOME/%s)", defaultConfigName),
	)
	flags.BoolP("debug", "d", false, "Enable debug logging")
	flags.IntP("workers", "w", 0, "Number of workers (overrides config)")

	bindFlags(flags, "debug", "workers")
}

// bindFlags binds each named flag to the viper key of the same name
func bindFlags(flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			log.WithError(err).Fatalf("error binding flag %s", name)
		}
	}
}

// initConfig works out which config file to use and reads ENV variables
func initConfig() {
	if configFile == "" {
		home, err := homedir.Dir()
		if err != nil {
			log.WithError(err).Warn("error finding home directory")
		} else {
			configFile = filepath.Join(home, defaultConfigName)
		}
	}

	viper.SetEnvPrefix("conductor")
	viper.AutomaticEnv()
}

// loadConfig loads the config file if there is one and applies flag and
// environment overrides on top of it
func loadConfig() (*internal.Config, error) {
	conf := internal.NewConfig()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			conf, err = internal.Load(configFile)
			if err != nil {
				return nil, err
			}
			log.Debugf("using config file %s", configFile)
		} else if RootCmd.PersistentFlags().Changed("config") {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	if viper.IsSet("workers") && viper.GetInt("workers") > 0 {
		conf.Workers = viper.GetInt("workers")
	}
	if viper.IsSet("bind") && viper.GetString("bind") != "" {
		conf.Bind = viper.GetString("bind")
	}
	if viper.GetBool("debug") {
		conf.Debug = true
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return conf, nil
}
