package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"collab/internal/access"
	"collab/internal/app"
	"collab/internal/domain"
	"collab/internal/validate"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectMembersCmd())
	prj.AddCommand(projectAdminCmd("grant-admin", "Make a member an admin (creator only)", true))
	prj.AddCommand(projectAdminCmd("revoke-admin", "Remove an admin (creator only)", false))
	prj.AddCommand(projectActivityCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), "project list", func(ctx context.Context, c *app.Client) error {
				d, err := c.Dashboard(ctx)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(d.Projects)
				}
				viewer, _ := c.Viewer()
				tw := newTable(table.Row{"ID", "Name", "Subject", "Deadline", "Creator", "Role"})
				for _, p := range d.Projects {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Subject, dateCell(p.Deadline), p.Creator.FullName(), access.Role(p, viewer.ID)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), "project show", func(ctx context.Context, c *app.Client) error {
				board := c.ProjectBoard(id)
				if err := board.Load(ctx); err != nil {
					return err
				}
				p, _ := board.Project()
				if jsonOutput() {
					return printJSON(map[string]any{"project": p, "tasks": board.Tasks()})
				}
				viewer, _ := c.Viewer()
				fmt.Printf("%s (#%d)\n%s\nDeadline: %s\nCreator: %s\nYour role: %s\n\n",
					p.Name, p.ID, p.Subject, dateCell(p.Deadline), p.Creator.FullName(), access.Role(p, viewer.ID))
				renderBoardTasks(board)
				if access.CanCreateTask(p, viewer) {
					fmt.Printf("Add a task with `collab task create --project %d`.\n", p.ID)
				}
				return nil
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var form validate.ProjectForm
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project and invite members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), "project create", func(ctx context.Context, c *app.Client) error {
				p, err := c.CreateProject(ctx, form)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(p)
				}
				fmt.Printf("Created project %q (#%d)\n", p.Name, p.ID)
				if emails := validate.ParseMemberEmails(form.MemberEmails); len(emails) > 0 {
					fmt.Println("Invited:", strings.Join(emails, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&form.Name, "name", "", "project name")
	cmd.Flags().StringVar(&form.Subject, "subject", "", "project subject")
	cmd.Flags().StringVar(&form.Deadline, "deadline", "", "deadline (YYYY-MM-DD)")
	cmd.Flags().StringVar(&form.MemberEmails, "members", "", "comma-separated e-mails to invite")
	return cmd
}

func projectMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members <project-id>",
		Short: "List members and their roles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), "project members", func(ctx context.Context, c *app.Client) error {
				board := c.ProjectBoard(id)
				if err := board.Load(ctx); err != nil {
					return err
				}
				p, _ := board.Project()
				if jsonOutput() {
					return printJSON(memberRows(p))
				}
				viewer, _ := c.Viewer()
				tw := newTable(table.Row{"User", "Name", "E-mail", "Role", "Actions"})
				for _, m := range p.Members {
					var actions []string
					if access.CanGrantAdmin(p, viewer, m.ID) {
						actions = append(actions, "grant-admin")
					}
					if access.CanRevokeAdmin(p, viewer, m.ID) {
						actions = append(actions, "revoke-admin")
					}
					tw.AppendRow(table.Row{m.ID, m.FullName(), m.Email, access.Role(p, m.ID), strings.Join(actions, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

type memberRow struct {
	domain.UserRef
	Role string `json:"role"`
}

func memberRows(p domain.Project) []memberRow {
	out := make([]memberRow, 0, len(p.Members))
	for _, m := range p.Members {
		out = append(out, memberRow{UserRef: m, Role: access.Role(p, m.ID)})
	}
	return out
}

func projectAdminCmd(use, short string, grant bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <project-id> <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			userID, err := parseID(args[1], "user")
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), "project "+use, func(ctx context.Context, c *app.Client) error {
				var p domain.Project
				if grant {
					p, err = c.GrantAdmin(ctx, projectID, userID)
				} else {
					p, err = c.RevokeAdmin(ctx, projectID, userID)
				}
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(p)
				}
				names := make([]string, 0, len(p.Admins))
				for _, a := range p.Admins {
					names = append(names, a.FullName())
				}
				fmt.Printf("Admins of %s: %s\n", p.Name, strings.Join(names, ", "))
				return nil
			})
		},
	}
}

func projectActivityCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activity <project-id>",
		Short: "Show recent changes in a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), "project activity", func(ctx context.Context, c *app.Client) error {
				events, err := c.ProjectActivity(ctx, id, limit)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(events)
				}
				tw := newTable(table.Row{"#", "When", "Event", "Entity", "Actor", "Details"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, fmt.Sprintf("%s %d", e.EntityKind, e.EntityID), e.ActorID, string(e.Payload)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events")
	return cmd
}

// renderBoardTasks prints the loaded tasks with the shortcuts the viewer may apply.
func renderBoardTasks(board *app.Board) {
	tw := newTable(table.Row{"ID", "Title", "Assignee", "Deadline", "Status", "Actions"})
	for _, t := range board.Tasks() {
		tw.AppendRow(table.Row{t.ID, t.Title, t.AssignedTo.FullName(), dateCell(t.Deadline), t.Status, shortcutNames(board.Actions(t))})
	}
	tw.Render()
}
