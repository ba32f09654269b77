// Package cli implements the unpack command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/unpack"
	"github.com/meigma/unpack/cmd/unpack/cli/config"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "unpack",
	Short: "Safely extract files from untrusted archives",
	Long: `Unpack extracts ZIP and tar archives without trusting their contents.

Every entry name is sanitized before it touches the filesystem, so hostile
archives cannot write outside the destination directory no matter what
their entries claim. Extraction runs concurrently and a corrupt entry
never aborts the rest of the archive.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().Int("concurrency", 0, "Number of entries extracted in parallel (0 = number of CPUs)")
	//nolint:errcheck // the flag was registered on the line above
	viper.BindPFlag("concurrency", rootCmd.PersistentFlags().Lookup("concurrency"))
	rootCmd.Version = version

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
}

// initConfig loads configuration from the config file and environment.
// Precedence: flags > environment > config file > defaults.
func initConfig() {
	viper.SetDefault("progress", "auto")
	viper.SetDefault("concurrency", 0)
	viper.SetDefault("limits.max-files", 0)
	viper.SetDefault("limits.max-file-size", "")
	viper.SetDefault("limits.max-total-size", "")

	if configDir, err := config.Dir(); err == nil {
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		//nolint:errcheck // a missing config file is not an error
		viper.ReadInConfig()
	}

	viper.SetEnvPrefix("UNPACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

// newExtractor creates an extractor with configured options.
func newExtractor() (*unpack.Extractor, error) {
	var opts []unpack.Option
	if n := viper.GetInt("concurrency"); n > 0 {
		opts = append(opts, unpack.WithConcurrency(n))
	}
	if verbose {
		opts = append(opts, unpack.WithLogger(
			slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})),
		))
	}
	return unpack.New(opts...)
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// formatError converts unpack errors to user-friendly messages.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, unpack.ErrNotFound):
		return fmt.Sprintf("Error: not found: %v", err)
	case errors.Is(err, unpack.ErrInvalidArchive):
		return fmt.Sprintf("Error: invalid or corrupt archive: %v", err)
	case errors.Is(err, unpack.ErrExtractLimits):
		return fmt.Sprintf("Error: extraction limits exceeded: %v", err)
	case errors.Is(err, unpack.ErrPathEscape):
		return "Error: entry path escapes destination (security violation)"
	case errors.Is(err, context.Canceled):
		return "Error: operation canceled"
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
