package main

import (
	"net"

	"github.com/spf13/cobra"

	"chat-relay/internal/server"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay as a long-lived HTTP server",
	Long: `Run the relay on PORT (default 3001) until SIGINT or SIGTERM.

In-flight requests get SHUTDOWN_GRACE to finish before connections are closed.

Examples:
  chat-relay serve
  chat-relay serve --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "override PORT")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, h, err := setup(ctx)
	if err != nil {
		return err
	}
	port := cfg.Port
	if servePort != "" {
		port = servePort
	}
	return server.New(net.JoinHostPort("", port), h, cfg.ShutdownGrace).Start(ctx)
}
