package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/obligolabs/obligo/internal/config"
	"github.com/obligolabs/obligo/internal/storage/sqlite"
	"github.com/obligolabs/obligo/internal/stuck"
)

type projectConfig struct {
	DB        string `yaml:"db"`
	Actor     string `yaml:"actor,omitempty"`
	StaleDays int    `yaml:"stale-days"`
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an obligo project in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := config.DirName
		if _, err := os.Stat(dir); err == nil {
			return fmt.Errorf("%s already exists", dir)
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}

		defaults, err := yaml.Marshal(projectConfig{
			DB:        filepath.Join(dir, "obligo.db"),
			StaleDays: stuck.DefaultStaleDays,
		})
		if err != nil {
			return fmt.Errorf("render default config: %w", err)
		}
		configPath := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(configPath, defaults, 0o600); err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		dbPath := filepath.Join(dir, "obligo.db")
		s, err := sqlite.New(cmd.Context(), dbPath)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		if err := s.SetConfig(cmd.Context(), "schema_initialized", "true"); err != nil {
			return err
		}
		if err := s.Close(); err != nil {
			return err
		}

		fmt.Printf("Initialized obligo project in %s\n", dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
