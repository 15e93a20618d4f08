// Package config manages obligo configuration.
//
// Precedence, highest first: command-line flags, OBLIGO_* environment
// variables, .obligo/config.yaml, built-in defaults. The viper singleton
// is initialized once in the root command's PersistentPreRun.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Keys used throughout the CLI.
const (
	KeyDB        = "db"
	KeyActor     = "actor"
	KeyStaleDays = "stale-days"
	KeyNoColor   = "no-color"
	KeyJSON      = "json"
)

// DirName is the per-project configuration directory.
const DirName = ".obligo"

// Initialize sets up the viper singleton: defaults, environment binding,
// and the project config file when one exists. Missing config files are
// fine; unreadable ones are not.
func Initialize() error {
	v = viper.New()

	v.SetDefault(KeyDB, filepath.Join(DirName, "obligo.db"))
	v.SetDefault(KeyActor, defaultActor())
	v.SetDefault(KeyStaleDays, 5)
	v.SetDefault(KeyNoColor, false)
	v.SetDefault(KeyJSON, false)

	v.SetEnvPrefix("OBLIGO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	dir, err := FindProjectDir()
	if err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return fmt.Errorf("read config: %w", err)
			}
		}
	}
	return nil
}

// FindProjectDir walks up from the working directory looking for a
// .obligo directory.
func FindProjectDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		if dir == filepath.Dir(dir) {
			return "", fmt.Errorf("no %s directory found (run 'obl init')", DirName)
		}
	}
}

// DBPath resolves the database path: absolute values pass through,
// relative ones resolve against the project directory's parent.
func DBPath() string {
	path := GetString(KeyDB)
	if filepath.IsAbs(path) || path == ":memory:" {
		return path
	}
	if dir, err := FindProjectDir(); err == nil {
		return filepath.Join(filepath.Dir(dir), path)
	}
	return path
}

// Actor returns the audit trail actor identity.
func Actor() string {
	return GetString(KeyActor)
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u := os.Getenv("USERNAME"); u != "" {
		return u
	}
	return "unknown"
}

// GetString returns a string setting; "" when viper is uninitialized.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool returns a bool setting; false when viper is uninitialized.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt returns an int setting; 0 when viper is uninitialized.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration returns a duration setting; 0 when viper is uninitialized.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a setting for the current process (flag binding).
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}
