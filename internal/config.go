package internal

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultShell = "/bin/sh"
)

var (
	ErrConfigPathMissing = errors.New("error: config file missing")
	ErrInvalidConfig     = errors.New("error: invalid config")
)

// JobConfig describes a command dispatched on a cron schedule
type JobConfig struct {
	Name    string `yaml:"name"`
	Spec    string `yaml:"spec"`
	Command string `yaml:"command"`
}

// Config contains the dispatcher and server configuration parameters
type Config struct {
	Debug bool   `yaml:"debug"`
	Bind  string `yaml:"bind" default:"0.0.0.0:8000"`
	Data  string `yaml:"data" default:"./data"`
	Shell string `yaml:"shell" default:"/bin/sh"`

	Workers   int           `yaml:"workers" default:"4"`
	QueueSize int           `yaml:"queue_size" default:"100"`
	ResultTTL time.Duration `yaml:"result_ttl" default:"1h"`

	// Archive is one of "null", "disk" or "bitcask"
	Archive string `yaml:"archive" default:"null"`

	StatsInterval  time.Duration `yaml:"stats_interval" default:"5m"`
	MaxJobFailures int           `yaml:"max_job_failures" default:"3"`
	Jobs           []JobConfig   `yaml:"jobs"`

	path string
}

// NewConfig returns a Config populated with default values
func NewConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		log.WithError(err).Fatal("error setting config defaults")
	}
	return cfg
}

// Validate checks the configuration for values the dispatcher cannot work with
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1 (got %d)", ErrInvalidConfig, c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("%w: queue_size must not be negative (got %d)", ErrInvalidConfig, c.QueueSize)
	}
	switch c.Archive {
	case "", "null", "disk", "bitcask":
	default:
		return fmt.Errorf("%w: unknown archive %q", ErrInvalidConfig, c.Archive)
	}
	for _, job := range c.Jobs {
		if job.Name == "" || job.Spec == "" || job.Command == "" {
			return fmt.Errorf("%w: job %q needs a name, spec and command", ErrInvalidConfig, job.Name)
		}
	}
	return nil
}

// ConfigFromReader reads an io.Reader `r` and pares it into a *Config object
func ConfigFromReader(r io.Reader) (*Config, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// only fills in fields left at their zero value
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load loads a configuration from the given path
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := ConfigFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("error loading config %s: %w", path, err)
	}

	cfg.path = path

	return cfg, nil
}

func (c *Config) String() string {
	data, err := yaml.MarshalWithOptions(c, yaml.Indent(4))
	if err != nil {
		log.WithError(err).Warn("error marshalling config")
		return ""
	}
	return string(data)
}

// Save saves the configuration to the provided path
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.path
	}
	if path == "" {
		return ErrConfigPathMissing
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	data, err := yaml.MarshalWithOptions(c, yaml.Indent(4))
	if err != nil {
		f.Close()
		return err
	}

	if _, err = f.Write(data); err != nil {
		f.Close()
		return err
	}

	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
