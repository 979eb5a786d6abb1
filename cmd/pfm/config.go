package main

import (
	"fmt"
	"os"
	"time"

	"github.com/0xef53/phoenix-fm/core/console/secure"
	"github.com/0xef53/phoenix-fm/core/console/shell"
	"github.com/0xef53/phoenix-fm/internal/container"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Shell        string   `yaml:"shell"`
	SuCommand    []string `yaml:"su_command"`
	Privileged   bool     `yaml:"privileged"`
	AutoEscalate bool     `yaml:"auto_escalate"`
	Directory    string   `yaml:"directory"`
	Env          []string `yaml:"env"`

	BufferSize    int           `yaml:"buffer_size"`
	CancelTimeout time.Duration `yaml:"cancel_timeout"`
	StartTimeout  time.Duration `yaml:"start_timeout"`

	Secure SecureConfig `yaml:"secure"`
}

type SecureConfig struct {
	Container  string `yaml:"container"`
	MountPoint string `yaml:"mount_point"`
	StagingDir string `yaml:"staging_dir"`

	// Scrypt parameters of newly created containers
	ScryptLogN uint8 `yaml:"scrypt_log_n"`
	ScryptR    uint8 `yaml:"scrypt_r"`
	ScryptP    uint8 `yaml:"scrypt_p"`
}

// loadConfig reads the optional configuration file and applies
// the global flags on top of it.
func loadConfig(c *cli.Command) (*Config, error) {
	cfg := Config{}

	if fname := c.String("config"); len(fname) > 0 {
		b, err := os.ReadFile(fname)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", fname, err)
		}
	}

	if c.IsSet("privileged") {
		cfg.Privileged = c.Bool("privileged")
	}
	if c.IsSet("auto-escalate") {
		cfg.AutoEscalate = c.Bool("auto-escalate")
	}
	if v := c.String("cwd"); len(v) > 0 {
		cfg.Directory = v
	}
	if v := c.String("secure-container"); len(v) > 0 {
		cfg.Secure.Container = v
	}
	if v := c.String("mount-point"); len(v) > 0 {
		cfg.Secure.MountPoint = v
	}

	if len(cfg.Directory) == 0 {
		if wd, err := os.Getwd(); err == nil {
			cfg.Directory = wd
		}
	}

	return &cfg, nil
}

func (c *Config) shell(verbose bool) *shell.Config {
	return &shell.Config{
		Shell:            c.Shell,
		SuCommand:        c.SuCommand,
		Privileged:       c.Privileged,
		InitialDirectory: c.Directory,
		Env:              c.Env,
		BufferSize:       c.BufferSize,
		CancelTimeout:    c.CancelTimeout,
		StartTimeout:     c.StartTimeout,
		Trace:            verbose,
	}
}

func (c *Config) containerOptions() *container.Options {
	return &container.Options{
		LogN:       c.Secure.ScryptLogN,
		R:          c.Secure.ScryptR,
		P:          c.Secure.ScryptP,
		StagingDir: c.Secure.StagingDir,
	}
}

func (c *Config) secure(password secure.PasswordFunc, verbose bool) *secure.Config {
	return &secure.Config{
		Container:     c.Secure.Container,
		MountPoint:    c.Secure.MountPoint,
		Password:      password,
		Options:       c.containerOptions(),
		BufferSize:    c.BufferSize,
		CancelTimeout: c.CancelTimeout,
		Trace:         verbose,
	}
}
