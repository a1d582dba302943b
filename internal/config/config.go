// Package config loads engine configuration from a file and
// environment variables via Viper, the way the rest of the pack wires
// its CLI configuration; command-line flags are applied by the CLI.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EngineConfig is the full set of knobs the repository intelligence
// engine needs at startup. It carries no secrets and no auth
// material — those are out of scope for this core.
type EngineConfig struct {
	Root              string        `mapstructure:"root"`
	CacheDir          string        `mapstructure:"cache_dir"`
	IgnorePatterns    []string      `mapstructure:"ignore_patterns"`
	WorkerConcurrency int           `mapstructure:"worker_concurrency"`
	DebounceWindow    time.Duration `mapstructure:"debounce_window"`
	DefaultModel      string        `mapstructure:"default_model"`
	DefaultTokenBudget int          `mapstructure:"default_token_budget"`
	LogLevel          string        `mapstructure:"log_level"`
}

// Default returns the engine's baked-in defaults, mirroring
// spec.md's §4.2/§4.3 default constants (500ms debounce, 8000-token
// default budget).
func Default(root string) EngineConfig {
	return EngineConfig{
		Root:              root,
		CacheDir:          ".vibe_cache",
		IgnorePatterns:    DefaultIgnorePatterns(),
		WorkerConcurrency: 8,
		DebounceWindow:    500 * time.Millisecond,
		DefaultModel:      "gpt-4",
		DefaultTokenBudget: 8000,
		LogLevel:          "info",
	}
}

// DefaultIgnorePatterns lists the directory/file basename globs the
// mapper skips by default: VCS dirs, the primary language's bytecode
// caches, virtualenv conventions, build output, and common IDE dirs.
func DefaultIgnorePatterns() []string {
	return []string{
		".git", ".hg", ".svn",
		"__pycache__", "*.pyc", "*.pyo",
		".venv", "venv", "env",
		"node_modules",
		"build", "dist", "target", "out",
		".idea", ".vscode",
		".vibe_cache",
	}
}

// Load reads configuration from the named file (if it exists),
// environment variables prefixed REPOMAP_, and returns the merged
// result layered over Default(root).
func Load(configPath, root string) (EngineConfig, error) {
	v := viper.New()
	def := Default(root)

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("repomap-engine")
		v.AddConfigPath(root)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("REPOMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("root", def.Root)
	v.SetDefault("cache_dir", def.CacheDir)
	v.SetDefault("ignore_patterns", def.IgnorePatterns)
	v.SetDefault("worker_concurrency", def.WorkerConcurrency)
	v.SetDefault("debounce_window", def.DebounceWindow)
	v.SetDefault("default_model", def.DefaultModel)
	v.SetDefault("default_token_budget", def.DefaultTokenBudget)
	v.SetDefault("log_level", def.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return EngineConfig{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg EngineConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if cfg.Root == "" {
		cfg.Root = root
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = def.WorkerConcurrency
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = def.DebounceWindow
	}
	return cfg, nil
}
