package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fixed paths used when no configuration file is given
const (
	DefaultTargetDir = "/srv/my-game-community/app/games/[gameId]"
	DefaultTrashDir  = "/srv/my-game-community/app/games/_trash_gameId"

	trashPrefix = "_trash_"
)

type LoggingCfg struct {
	File         string `yaml:"file" json:"file"`                   // Optional log file, stderr only when empty
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type MetricsCfg struct {
	TextfilePath string `yaml:"textfile_path" json:"textfile_path"` // node_exporter textfile collector output
}

type Config struct {
	TargetDir      string     `yaml:"target_dir" json:"target_dir"`
	TrashDir       string     `yaml:"trash_dir" json:"trash_dir"`
	ProtectedPaths []string   `yaml:"protected_paths" json:"protected_paths"`
	DatabasePath   string     `yaml:"database_path" json:"database_path"` // SQLite run history, disabled when empty
	Logging        LoggingCfg `yaml:"logging" json:"logging"`
	Metrics        MetricsCfg `yaml:"metrics" json:"metrics"`
}

var (
	errInvalidPath = errors.New("path must be absolute")
	errNotSibling  = errors.New("trash_dir must share the parent directory of target_dir")
	errSamePath    = errors.New("trash_dir must differ from target_dir")
)

// Default returns the built-in configuration. It reads nothing from disk.
func Default() *Config {
	cfg := &Config{
		TargetDir: DefaultTargetDir,
		TrashDir:  DefaultTrashDir,
	}
	if err := cfg.validateAndDefault(); err != nil {
		panic(fmt.Sprintf("invalid built-in config: %v", err))
	}
	return cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) validateAndDefault() error {
	if c.TargetDir == "" {
		c.TargetDir = DefaultTargetDir
	}

	target, err := cleanAbsolute(c.TargetDir)
	if err != nil {
		return fmt.Errorf("target_dir: %w", err)
	}
	c.TargetDir = target

	// Trash defaults to a sibling derived from the target name
	if c.TrashDir == "" {
		c.TrashDir = TrashPathFor(c.TargetDir)
	}
	trash, err := cleanAbsolute(c.TrashDir)
	if err != nil {
		return fmt.Errorf("trash_dir: %w", err)
	}
	c.TrashDir = trash

	if c.TrashDir == c.TargetDir {
		return errSamePath
	}
	if filepath.Dir(c.TrashDir) != filepath.Dir(c.TargetDir) {
		return fmt.Errorf("%w: %s", errNotSibling, c.TrashDir)
	}

	for i, p := range c.ProtectedPaths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return fmt.Errorf("protected_paths: %w", err)
		}
		c.ProtectedPaths[i] = cp
	}

	if c.DatabasePath != "" {
		if c.DatabasePath, err = cleanAbsolute(c.DatabasePath); err != nil {
			return fmt.Errorf("database_path: %w", err)
		}
	}
	if c.Logging.File != "" {
		if c.Logging.File, err = cleanAbsolute(c.Logging.File); err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
	}
	if c.Metrics.TextfilePath != "" {
		if c.Metrics.TextfilePath, err = cleanAbsolute(c.Metrics.TextfilePath); err != nil {
			return fmt.Errorf("metrics.textfile_path: %w", err)
		}
	}

	if c.Logging.RotationDays <= 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}

	return nil
}

// TrashPathFor returns the sibling trash path for target:
// "/a/b/[id]" becomes "/a/b/_trash_id"
func TrashPathFor(target string) string {
	name := strings.Map(func(r rune) rune {
		if r == '[' || r == ']' {
			return -1
		}
		return r
	}, filepath.Base(target))
	return filepath.Join(filepath.Dir(target), trashPrefix+name)
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}
