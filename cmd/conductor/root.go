package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/conductor"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "conductor",
		Short:         "Conductor job orchestration engine",
		Long:          "Conductor runs per-type worker pools over a shared job store and reports queue health.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().String("config", os.Getenv("CONDUCTOR_CONFIG"), "Path to a YAML config file")
	root.PersistentFlags().String("log-level", envDefault("CONDUCTOR_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")
	root.PersistentFlags().String("log-format", envDefault("CONDUCTOR_LOG_FORMAT", "text"), "Log format: text|json")

	root.AddCommand(newServeCommand())
	root.AddCommand(newTypesCommand())
	root.AddCommand(newHealthCommand())
	return root
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadConfig reads --config over the defaults and CONDUCTOR_* variables.
func loadConfig(cmd *cobra.Command) (conductor.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return conductor.LoadConfig(path)
}

// newLogger builds the process logger from --log-level and --log-format.
func newLogger(cmd *cobra.Command, w io.Writer) (*slog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", levelName, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q; use text|json", format)
	}
}
