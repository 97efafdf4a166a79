package main

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"pawnval/internal/platform/config"
	"pawnval/internal/platform/logger"
)

type globals struct {
	logLevel string
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "pawnctl",
		Short:         "Estimate resale and pawn values from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(newEstimateCmd(g), newHistoryCmd(g))
	return root
}

// load reads configuration the same way the server does and logs to stderr so
// stdout carries only results.
func (g *globals) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.NewWithWriter(cmd.ErrOrStderr(), g.logLevel, "text"), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
