package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rulesetPath string
)

var rootCmd = &cobra.Command{
	Use:   "sentry-cli",
	Short: "sentry-cli is the command-line interface for CodeSentry.",
	Long:  `A CLI for inspecting pull request patches with the CodeSentry analysis engine, useful for trying out rulesets locally before installing the service.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&rulesetPath, "ruleset", "r", "", "Path to a .codesentry.yml ruleset")

	if err := viper.BindPFlag("RULESET_PATH", rootCmd.PersistentFlags().Lookup("ruleset")); err != nil {
		slog.Error("Error binding flag", "error", err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetEnvPrefix("CS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
