package main

import (
	"github.com/spf13/cobra"
)

var messagesLimit int

var messagesCmd = &cobra.Command{
	Use:   "messages [id]",
	Short: "List accepted messages, or show one by ID",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			msg, err := api.GetMessage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(msg)
				return nil
			}
			printMessageTable(msg)
			return nil
		}

		msgs, err := api.ListMessages(cmd.Context(), messagesLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(msgs)
			return nil
		}
		printMessageListTable(msgs)
		return nil
	},
}

func init() {
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 0, "maximum messages to list (0 = all)")
}
