package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"slidecast/internal/config"
	"slidecast/internal/daemonrun"
)

const configEnv = "SLIDECAST_CONFIG"

func newDaemonCommand() *cobra.Command {
	var configPath string
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:           "slidecastd",
		Short:         "Run the slidecast render daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path (or $"+configEnv+")")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Include source locations in log output")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		path = os.Getenv(configEnv)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
