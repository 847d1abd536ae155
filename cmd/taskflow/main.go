package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/taskflow/internal/client"
	"github.com/alfredjeanlab/taskflow/internal/ui"
)

var (
	serverURL  string
	authToken  string
	jsonOutput bool

	api *client.Client
)

func defaultServerURL() string {
	if s := os.Getenv("TASKFLOW_HTTP_URL"); s != "" {
		return s
	}
	if u := activeRemoteURL(); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultAuthToken() string {
	if s := os.Getenv("TASKFLOW_AUTH_TOKEN"); s != "" {
		return s
	}
	return activeRemoteToken()
}

var rootCmd = &cobra.Command{
	Use:   "taskflow <command>",
	Short: "Turn conversation into platform tasks",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		api = client.New(serverURL, authToken)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", defaultServerURL(), "server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultAuthToken(), "bearer token for the server")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(platformTasksCmd)
	rootCmd.AddCommand(dlqCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError(err.Error()))
		os.Exit(1)
	}
}
