package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/doveaia/forkguard/forklimit"
	"github.com/doveaia/forkguard/procenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	ConfigDir      = ".forkguard"
	ConfigFileName = "config.yaml"
)

// Config holds the forkguard configuration.
type Config struct {
	Version int        `yaml:"version"`
	Fork    ForkConfig `yaml:"fork"`
	Log     LogConfig  `yaml:"log"`
}

type ForkConfig struct {
	EnvVar  string `yaml:"env_var"`  // variable overriding the worker limit
	InitPID int    `yaml:"init_pid"` // pid that orphaned processes are re-parented to
}

type LogConfig struct {
	Level string `yaml:"level"` // logrus level name
}

func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Fork: ForkConfig{
			EnvVar:  forklimit.EnvMaxForkWorkers,
			InitPID: procenv.DefaultInitPID,
		},
		Log: LogConfig{
			Level: logrus.WarnLevel.String(),
		},
	}
}

func GetConfigDir(projectRoot string) string {
	return filepath.Join(projectRoot, ConfigDir)
}

func GetConfigPath(projectRoot string) string {
	return filepath.Join(GetConfigDir(projectRoot), ConfigFileName)
}

func Load(projectRoot string) (*Config, error) {
	return LoadFile(GetConfigPath(projectRoot))
}

func LoadFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return &cfg, nil
}

// applyDefaults fills in missing configuration values.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if c.Fork.EnvVar == "" {
		c.Fork.EnvVar = defaults.Fork.EnvVar
	}
	if c.Fork.InitPID == 0 {
		c.Fork.InitPID = defaults.Fork.InitPID
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.Fork.InitPID < 0 {
		errs = append(errs, fmt.Errorf("fork.init_pid must be positive, got %d", c.Fork.InitPID))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// LogLevel returns the configured level, falling back to warn.
func (c *Config) LogLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return logrus.WarnLevel
	}
	return level
}

func (c *Config) Save(projectRoot string) error {
	return c.SaveFile(GetConfigPath(projectRoot))
}

func (c *Config) SaveFile(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func Exists(projectRoot string) bool {
	_, err := os.Stat(GetConfigPath(projectRoot))
	return err == nil
}

// FindProjectRoot walks up from the working directory to the first
// directory holding a forkguard config.
func FindProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	dir := cwd
	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", ErrNotFound
}

// ErrNotFound is returned by FindProjectRoot when no config exists.
var ErrNotFound = errors.New("no forkguard config found (run 'forkguard config init' first)")
