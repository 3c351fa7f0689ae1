package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "chat-relay",
	Short: "Chat relay - validated, retried forwarding to a chat completion API",
	Long: `chat-relay accepts a single chat message over HTTP, validates it,
forwards it to an OpenAI-compatible completion endpoint with per-attempt
timeouts and retries, and answers with either a reply or a normalized error.

Configuration comes from the environment (and an optional .env file);
--config overlays a YAML file on top.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "optional YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}
