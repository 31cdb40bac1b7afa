package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fluxa/db"
)

var (
	taskPriority    int
	taskDescription string
	taskStatus      string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks, highest priority first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		tasks, err := a.repo.ListTasks(ctx, db.TaskStatus(taskStatus))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(tasks) == 0 {
			fmt.Fprintln(out, "No tasks")
			return nil
		}
		for _, t := range tasks {
			fmt.Fprintf(out, "  %-6d  p%-2d  %-11s  %s\n", t.ID, t.Priority, t.Status, t.Title)
		}
		return nil
	},
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a pending task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		task, err := a.repo.CreateTask(ctx, args[0], taskDescription, taskPriority, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created task %d\n", task.ID)
		return nil
	},
}

var tasksSetCmd = &cobra.Command{
	Use:       "set <task-id> <pending|in_progress|completed|failed>",
	Short:     "Change the status of a task",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(db.TaskPending), string(db.TaskInProgress), string(db.TaskCompleted), string(db.TaskFailed)},
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.repo.UpdateTaskStatus(ctx, id, db.TaskStatus(args[1])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %d is now %s\n", id, args[1])
		return nil
	},
}

func init() {
	tasksCmd.Flags().StringVarP(&taskStatus, "status", "s", "", "Only list tasks in this status")

	tasksAddCmd.Flags().IntVarP(&taskPriority, "priority", "p", 0, "Priority from 0 to 10")
	tasksAddCmd.Flags().StringVarP(&taskDescription, "description", "d", "", "Longer description")

	tasksCmd.AddCommand(tasksAddCmd)
	tasksCmd.AddCommand(tasksSetCmd)
}
