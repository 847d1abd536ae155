package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/taskflow/internal/server"
	"github.com/alfredjeanlab/taskflow/internal/ui"
)

var (
	submitAuthor       string
	submitConversation string
	submitSource       string
)

var submitCmd = &cobra.Command{
	Use:   "submit <text>...",
	Short: "Submit message text for task extraction",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &server.SubmitMessageRequest{
			Source:         submitSource,
			Text:           strings.Join(args, " "),
			Author:         submitAuthor,
			ConversationID: submitConversation,
		}
		id, err := api.SubmitMessage(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]string{"message_id": id})
			return nil
		}
		fmt.Printf("message accepted: %s\n", ui.RenderAccent(id))
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitAuthor, "author", "", "message author")
	submitCmd.Flags().StringVar(&submitConversation, "conversation", "", "conversation ID to group messages under")
	submitCmd.Flags().StringVar(&submitSource, "source", "cli", "message source (cli, web, slack)")
}
