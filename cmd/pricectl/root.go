package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kjannette/stationprice/internal/config"
	"github.com/kjannette/stationprice/internal/logging"
)

type globals struct {
	format   string
	logLevel string

	cfg *config.Config
	log zerolog.Logger
}

func newRootCommand() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           "pricectl",
		Short:         "Inspect and edit station prices",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := parseFormat(g.format); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if g.logLevel != "" {
				cfg.LogLevel = g.logLevel
			}
			g.cfg = cfg
			g.log = logging.New(logging.Config{
				Level:  cfg.LogLevel,
				Format: "console",
				Output: cmd.ErrOrStderr(),
			})
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&g.format, "format", "o", "", "output format: table, json or yaml (default: table on a terminal, json otherwise)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override LOG_LEVEL")

	cmd.AddCommand(
		newMigrateCommand(g),
		newViewportCommand(g),
		newSubmitCommand(g),
		newExploreCommand(g),
	)
	return cmd
}
