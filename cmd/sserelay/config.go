//go:build linux

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/advbet/sserelay"
)

// config is the YAML configuration file layout. Relay options live at the
// top level, everything specific to this command is in its own section.
type config struct {
	sserelay.Config `yaml:",inline"`

	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Queue    string        `yaml:"queue"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"redis"`

	// Admin is the listen address for status and metrics, empty disables
	// it.
	Admin string `yaml:"admin"`

	LogLevel string `yaml:"log_level"`
}

func defaultConfig() config {
	cfg := config{Config: sserelay.DefaultConfig}
	cfg.Redis.Addr = "127.0.0.1:6379"
	cfg.Redis.Queue = sserelay.DefaultQueueName
	cfg.Redis.Timeout = time.Second
	cfg.LogLevel = "info"
	return cfg
}

// loadConfig reads the YAML file at path on top of the defaults. Keys missing
// from the file keep their default values.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// flags holds command line overrides. Only flags set explicitly replace
// configuration file values.
type flags struct {
	set *pflag.FlagSet

	config   string
	address  string
	port     int
	policy   string
	redis    string
	queue    string
	admin    string
	logLevel string
}

func newFlags(name string) *flags {
	f := &flags{set: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	f.set.StringVarP(&f.config, "config", "c", "", "path to a YAML configuration file")
	f.set.StringVarP(&f.address, "address", "a", "", "address to listen on for event-stream clients")
	f.set.IntVarP(&f.port, "port", "p", 0, "port to listen on for event-stream clients")
	f.set.StringVar(&f.policy, "policy", "", `delivery policy, "latest" or "queue"`)
	f.set.StringVar(&f.redis, "redis", "", "redis server address")
	f.set.StringVarP(&f.queue, "queue", "q", "", "redis list to pop broadcasts from")
	f.set.StringVar(&f.admin, "admin", "", "listen address for /status and /metrics")
	f.set.StringVar(&f.logLevel, "log-level", "", "log level")
	return f
}

// resolve parses args and returns the effective configuration.
func (f *flags) resolve(args []string) (config, error) {
	if err := f.set.Parse(args); err != nil {
		return config{}, err
	}
	cfg, err := loadConfig(f.config)
	if err != nil {
		return cfg, err
	}
	if f.set.Changed("address") {
		cfg.Address = f.address
	}
	if f.set.Changed("port") {
		cfg.Port = f.port
	}
	if f.set.Changed("policy") {
		cfg.Policy = sserelay.Policy(f.policy)
	}
	if f.set.Changed("redis") {
		cfg.Redis.Addr = f.redis
	}
	if f.set.Changed("queue") {
		cfg.Redis.Queue = f.queue
	}
	if f.set.Changed("admin") {
		cfg.Admin = f.admin
	}
	if f.set.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
