package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/praxima-health/praxis/cmd/praxisctl/config"
	"github.com/praxima-health/praxis/log"
)

var (
	appLogger      log.Logger
	serverOverride string
)

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "praxisctl is a CLI tool to interact with the praxis API",
	Long:  `A command-line interface for managing delegate accounts, sessions, and other aspects of a praxis deployment.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		appLogger = log.NewZerologAdapter(zerolog.WarnLevel, true)
		if err := config.InitConfig(); err != nil {
			appLogger.Error(cmd.Context(), "Failed to initialize configuration", err)
			return err
		}
		if serverOverride != "" {
			config.Current.ServerEndpoint = serverOverride
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&config.CfgFile, "config", "",
		fmt.Sprintf("config file (default is $HOME/.%s/config.yaml)", config.AppName))
	rootCmd.PersistentFlags().StringVar(&serverOverride, "server", "",
		"server endpoint (overrides the configured endpoint)")
}
