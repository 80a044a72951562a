package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"collab/internal/access"
	"collab/internal/app"
	"collab/internal/domain"
	"collab/internal/validate"
	"collab/internal/workflow"
)

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage tasks"}
	t.AddCommand(taskListCmd())
	t.AddCommand(taskShowCmd())
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskEditCmd())
	t.AddCommand(taskStatusCmd())
	for _, sc := range []workflow.Shortcut{workflow.Start, workflow.Complete, workflow.Cancel, workflow.Restart} {
		t.AddCommand(taskShortcutCmd(sc))
	}
	t.AddCommand(taskDeleteCmd())
	return t
}

func taskListCmd() *cobra.Command {
	var projectID int64
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your tasks, or the tasks of one project",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter []domain.TaskStatus
			if status != "" {
				st, err := workflow.ParseStatus(status)
				if err != nil {
					return err
				}
				filter = append(filter, st)
			}
			return withClient(cmd.Context(), "task list", func(ctx context.Context, c *app.Client) error {
				if _, err := c.Viewer(); err != nil {
					return err
				}
				board := c.MyTasks()
				if projectID != 0 {
					board = c.ProjectBoard(projectID)
				}
				if err := board.Load(ctx); err != nil {
					return err
				}
				tasks := board.Tasks(filter...)
				if jsonOutput() {
					return printJSON(tasks)
				}
				tw := newTable(table.Row{"ID", "Title", "Project", "Assignee", "Deadline", "Status", "Actions"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.ProjectName, t.AssignedTo.FullName(), dateCell(t.Deadline), t.Status, shortcutNames(board.Actions(t))})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&projectID, "project", 0, "project id")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), "task show", func(ctx context.Context, c *app.Client) error {
				t, err := c.API.Tasks.Get(ctx, id)
				if err != nil {
					return err
				}
				board := c.ProjectBoard(t.ProjectID)
				if err := board.Load(ctx); err != nil {
					return err
				}
				if loaded, ok := board.Task(id); ok {
					t = loaded
				}
				if jsonOutput() {
					return printJSON(t)
				}
				fmt.Printf("%s (#%d)\nProject: %s\nAssignee: %s\nDeadline: %s\nStatus: %s\n",
					t.Title, t.ID, t.ProjectName, t.AssignedTo.FullName(), dateCell(t.Deadline), t.Status)
				if t.Description != "" {
					fmt.Printf("\n%s\n", t.Description)
				}
				fmt.Printf("\nActions: %s\n", shortcutNames(board.Actions(t)))
				if p, ok := board.Project(); ok {
					viewer, _ := c.Viewer()
					if access.CanDeleteTask(p, viewer) {
						fmt.Println("Admins may also edit or delete this task.")
					}
				}
				return nil
			})
		},
	}
}

func taskCreateCmd() *cobra.Command {
	var form validate.TaskForm
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task in a project (admins only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), "task create", func(ctx context.Context, c *app.Client) error {
				if form.AssignedToID == 0 {
					viewer, err := c.Viewer()
					if err != nil {
						return err
					}
					form.AssignedToID = viewer.ID
				}
				t, err := c.CreateTask(ctx, form)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(t)
				}
				fmt.Printf("Created task %q (#%d) for %s\n", t.Title, t.ID, t.AssignedTo.FullName())
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&form.ProjectID, "project", 0, "project id")
	cmd.Flags().StringVar(&form.Title, "title", "", "task title")
	cmd.Flags().StringVar(&form.Description, "description", "", "task description")
	cmd.Flags().StringVar(&form.Deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&form.AssignedToID, "assignee", 0, "assignee user id (defaults to you)")
	return cmd
}

func taskEditCmd() *cobra.Command {
	var title, description, deadline string
	var assignee int64
	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Change title, description, deadline or assignee (admins only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), "task edit", func(ctx context.Context, c *app.Client) error {
				cur, err := c.API.Tasks.Get(ctx, id)
				if err != nil {
					return err
				}
				form := validate.TaskForm{
					Title:        cur.Title,
					Description:  cur.Description,
					AssignedToID: cur.AssignedTo.ID,
				}
				if cur.Deadline != nil {
					form.Deadline = cur.Deadline.String()
				}
				flags := cmd.Flags()
				if flags.Changed("title") {
					form.Title = title
				}
				if flags.Changed("description") {
					form.Description = description
				}
				if flags.Changed("deadline") {
					form.Deadline = deadline
				}
				if flags.Changed("assignee") {
					form.AssignedToID = assignee
				}
				t, err := c.UpdateTask(ctx, id, form)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(t)
				}
				fmt.Printf("Updated task #%d\n", t.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&deadline, "deadline", "", "new deadline (YYYY-MM-DD, empty clears)")
	cmd.Flags().Int64Var(&assignee, "assignee", 0, "new assignee user id")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Set a task's status (PENDING, IN_PROGRESS, COMPLETED, CANCELED)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			status, err := workflow.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), "task status", func(ctx context.Context, c *app.Client) error {
				t, err := c.SetTaskStatus(ctx, id, status)
				if err != nil {
					return err
				}
				return printTaskStatus(t)
			})
		},
	}
}

func taskShortcutCmd(sc workflow.Shortcut) *cobra.Command {
	return &cobra.Command{
		Use:   sc.Name + " <task-id>",
		Short: fmt.Sprintf("Move a task to %s", sc.Target),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), "task "+sc.Name, func(ctx context.Context, c *app.Client) error {
				t, err := c.ApplyShortcut(ctx, id, sc.Name)
				if err != nil {
					return err
				}
				return printTaskStatus(t)
			})
		},
	}
}

func printTaskStatus(t domain.Task) error {
	if jsonOutput() {
		return printJSON(t)
	}
	fmt.Printf("Task #%d %q is now %s\n", t.ID, t.Title, t.Status)
	return nil
}

func taskDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task (admins only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "task")
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), "task delete", func(ctx context.Context, c *app.Client) error {
				if err := c.DeleteTask(ctx, id); err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(map[string]any{"deleted": id})
				}
				fmt.Printf("Deleted task #%d\n", id)
				return nil
			})
		},
	}
}

func invitationCmd() *cobra.Command {
	inv := &cobra.Command{Use: "invitation", Aliases: []string{"invitations"}, Short: "Answer project invitations"}
	inv.AddCommand(invitationListCmd())
	inv.AddCommand(invitationRespondCmd("accept", true))
	inv.AddCommand(invitationRespondCmd("reject", false))
	return inv
}

func invitationListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invitations addressed to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), "invitation list", func(ctx context.Context, c *app.Client) error {
				d, err := c.Dashboard(ctx)
				if err != nil {
					return err
				}
				invs := d.PendingInvitations()
				if all {
					invs = d.Invitations
				}
				if jsonOutput() {
					return printJSON(invs)
				}
				tw := newTable(table.Row{"ID", "Project", "Subject", "From", "Sent", "Status"})
				for _, inv := range invs {
					tw.AppendRow(table.Row{inv.ID, inv.ProjectName, inv.ProjectSubject, inv.InviterName, inv.CreatedAt.Local().Format("2006-01-02 15:04"), inv.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include answered invitations")
	return cmd
}

func invitationRespondCmd(use string, accept bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <invitation-id>",
		Short: use + " an invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "invitation")
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), "invitation "+use, func(ctx context.Context, c *app.Client) error {
				inv, err := c.RespondInvitation(ctx, id, accept)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(inv)
				}
				fmt.Printf("Invitation to %s is now %s\n", inv.ProjectName, inv.Status)
				return nil
			})
		},
	}
}
