package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"anime-streamer/internal/config"
)

type rootFlags struct {
	configFile string
	envFile    string
	json       bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "animestream",
		Short:         "Resolve, download and stream seasonal anime episodes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load(flags.envFile)
			if p := strings.TrimSpace(flags.configFile); p != "" {
				_ = os.Setenv("CONFIG_FILE", p)
			}
			config.Load()
			config.SetupLogging()
		},
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "TOML config file (overrides CONFIG_FILE)")
	root.PersistentFlags().StringVar(&flags.envFile, "env", ".env", "dotenv file loaded before the environment")
	root.PersistentFlags().BoolVar(&flags.json, "json", false, "print JSON even on a terminal")

	root.AddCommand(
		newServeCommand(),
		newResolveCommand(flags),
		newCatalogCommand(flags),
		newFeedCommand(flags),
		newContentCommand(flags),
	)
	return root
}
