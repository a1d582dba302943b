// Command repomap-engine is the CLI entrypoint for the repository
// intelligence engine: scan a repository, watch it for changes, and
// request token-budgeted context excerpts for a given operation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/standardbeagle/repomap-engine/internal/config"
	"github.com/standardbeagle/repomap-engine/internal/engine"
	"github.com/standardbeagle/repomap-engine/internal/maptypes"
)

var (
	cfgFile     string
	rootPath    string
	useCache    bool
	modelName   string
	tokenBudget int
	targetFile  string
	operation   string
)

var rootCmd = &cobra.Command{
	Use:     "repomap-engine",
	Short:   "Repository intelligence engine for token-budgeted coding context",
	Version: "0.1.0",
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (repomap-engine.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootPath, "root", ".", "repository root to operate on")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "gpt-4", "model family to size context for")

	viper.BindPFlag("root", rootCmd.PersistentFlags().Lookup("root"))
	viper.BindPFlag("default_model", rootCmd.PersistentFlags().Lookup("model"))

	scanCmd.Flags().BoolVar(&useCache, "cache", true, "use the on-disk cache when available")

	contextCmd.Flags().StringVar(&targetFile, "target", "", "file the operation targets")
	contextCmd.Flags().StringVar(&operation, "op", "generate", "operation: generate|fix|refactor|explain|test|document")
	contextCmd.Flags().IntVar(&tokenBudget, "budget", 8000, "token budget for the assembled excerpt")

	rootCmd.AddCommand(scanCmd, watchCmd, contextCmd, invalidateCmd)
}

func initViper() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
	}
}

func loadEngine() (*engine.Engine, error) {
	cfg, err := config.Load(cfgFile, rootPath)
	if err != nil {
		return nil, err
	}
	if modelName != "" {
		cfg.DefaultModel = modelName
	}
	return engine.New(cfg)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Build (or load) the repository map and print summary statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEngine()
		if err != nil {
			return err
		}

		snap, err := e.Scan(cmd.Context(), useCache)
		if err != nil {
			return err
		}

		fmt.Printf("root: %s\n", snap.Root)
		fmt.Printf("files: %d\n", snap.TotalFiles)
		fmt.Printf("lines: %d\n", snap.TotalLines)
		for lang, count := range snap.Languages {
			fmt.Printf("  %s: %d\n", lang, count)
		}
		fmt.Printf("entry points: %d\n", len(snap.EntryPoints))
		fmt.Printf("test files: %d\n", len(snap.TestFiles))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Scan once, then watch the repository for changes until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEngine()
		if err != nil {
			return err
		}
		if _, err := e.Scan(cmd.Context(), true); err != nil {
			return err
		}

		e.Subscribe(func(ctx context.Context, ev maptypes.FileEvent) error {
			fmt.Printf("[%s] %s %s\n", ev.Timestamp.Format(time.RFC3339), ev.Kind, ev.Path)
			return nil
		})

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if err := e.StartWatching(ctx); err != nil {
			return err
		}
		fmt.Printf("watching %s (ctrl-c to stop)\n", e.Root())

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		return e.StopWatching()
	},
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Assemble a token-budgeted context excerpt for an editing operation",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEngine()
		if err != nil {
			return err
		}
		if _, err := e.Scan(cmd.Context(), true); err != nil {
			return err
		}

		op := maptypes.Operation(operation)
		if !op.Valid() {
			return fmt.Errorf("unknown operation %q", operation)
		}

		req := maptypes.ContextRequest{
			Operation:   op,
			TargetFile:  targetFile,
			TokenBudget: tokenBudget,
			ModelName:   modelName,
		}

		result, err := e.GetContextWithBudgeting(cmd.Context(), req, 0)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Discard the on-disk repository map cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEngine()
		if err != nil {
			return err
		}
		return e.Invalidate()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
