package main

import (
	"github.com/spf13/cobra"
)

var (
	tasksLimit         int
	platformTasksLimit int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks extracted from messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := api.ListTasks(cmd.Context(), tasksLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(tasks)
			return nil
		}
		printTaskListTable(tasks)
		return nil
	},
}

var platformTasksCmd = &cobra.Command{
	Use:   "platform-tasks",
	Short: "List recorded platform task outcomes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tasks, err := api.ListPlatformTasks(cmd.Context(), platformTasksLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(tasks)
			return nil
		}
		printPlatformTaskListTable(tasks)
		return nil
	},
}

func init() {
	tasksCmd.Flags().IntVar(&tasksLimit, "limit", 0, "maximum tasks to list (0 = all)")
	platformTasksCmd.Flags().IntVar(&platformTasksLimit, "limit", 0, "maximum platform tasks to list (0 = all)")
}
