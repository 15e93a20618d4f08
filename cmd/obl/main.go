// Command obl tracks administrative obligations and enforces the
// dependency rules between them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/obligolabs/obligo/internal/config"
	"github.com/obligolabs/obligo/internal/debug"
	"github.com/obligolabs/obligo/internal/engine"
	"github.com/obligolabs/obligo/internal/storage/sqlite"
	"github.com/obligolabs/obligo/internal/telemetry"
	"github.com/obligolabs/obligo/internal/ui"
)

// Version and Build are set at link time.
var (
	Version = "dev"
	Build   = "unknown"
)

var (
	store *sqlite.Store
	eng   *engine.Engine

	rootCtx    context.Context
	rootCancel context.CancelFunc

	userFlag    string
	actorFlag   string
	dbFlag      string
	jsonOutput  bool
	noColorFlag bool
	verboseFlag bool
	quietFlag   bool
)

// noDBCommands run without opening the database.
var noDBCommands = map[string]bool{
	"init":       true,
	"version":    true,
	"help":       true,
	"completion": true,
}

var rootCmd = &cobra.Command{
	Use:   "obl",
	Short: "obl - Obligation lifecycle tracker",
	Long: `Tracks administrative obligations (FAFSA, deposits, applications) and
enforces the dependency rules between them: transitions are gated on
verified prerequisites and attached proof, every override is recorded,
and stuck obligations are detected and explained.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("obl version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()
		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)

		if err := config.Initialize(); err != nil {
			fatal(err)
		}
		applyFlagOverrides(cmd)

		if noColorFlag || config.GetBool(config.KeyNoColor) || os.Getenv("NO_COLOR") != "" {
			ui.DisableColor()
		}

		if err := telemetry.Init(rootCtx, "obl", Version); err != nil {
			fmt.Fprintf(os.Stderr, "warning: telemetry init failed: %v\n", err)
		}

		if noDBCommands[cmd.Name()] {
			return
		}
		openStore()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
			store = nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		telemetry.Shutdown(shutdownCtx)
		cancel()
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "user the obligations belong to (env: OBLIGO_USER)")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "actor identity for the audit trail")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "database path override")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON instead of styled text")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "suppress non-essential output")
	rootCmd.Flags().Bool("version", false, "print version and exit")
}

// applyFlagOverrides pushes explicitly-set flags into config so the rest
// of the process sees one consistent view.
func applyFlagOverrides(cmd *cobra.Command) {
	if cmd.Flags().Changed("db") {
		config.Set(config.KeyDB, dbFlag)
	}
	if cmd.Flags().Changed("actor") {
		config.Set(config.KeyActor, actorFlag)
	}
	if cmd.Flags().Changed("json") {
		config.Set(config.KeyJSON, jsonOutput)
	}
	jsonOutput = jsonOutput || config.GetBool(config.KeyJSON)
}

func setupSignalContext() {
	rootCtx, rootCancel = context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		rootCancel()
	}()
}

func openStore() {
	var err error
	store, err = sqlite.New(rootCtx, config.DBPath())
	if err != nil {
		fatal(fmt.Errorf("open database: %w", err))
	}
	eng, err = engine.New(store)
	if err != nil {
		fatal(err)
	}
	if days := config.GetInt(config.KeyStaleDays); days > 0 {
		eng.Detector().SetStaleDays(days)
	}
}

// currentUser resolves the user scope: --user flag, then OBLIGO_USER.
func currentUser() string {
	if userFlag != "" {
		return userFlag
	}
	if u := os.Getenv("OBLIGO_USER"); u != "" {
		return u
	}
	fatal(fmt.Errorf("no user specified (use --user or set OBLIGO_USER)"))
	return ""
}

func actor() string {
	return config.Actor()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
