package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"collab/internal/access"
	"collab/internal/app"
	"collab/internal/validate"
)

func loginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if email == "" {
				if email, err = promptLine("E-mail: "); err != nil {
					return err
				}
			}
			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), "login", func(ctx context.Context, c *app.Client) error {
				sess, err := c.Login(ctx, validate.LoginForm{Email: email, Password: password})
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(sess.User())
				}
				fmt.Printf("Logged in as %s <%s>\n", sess.User().FullName(), sess.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account e-mail")
	return cmd
}

func registerCmd() *cobra.Command {
	var form validate.RegisterForm
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if form.Password, err = promptPassword("Password: "); err != nil {
				return err
			}
			if form.ConfirmPassword, err = promptPassword("Confirm password: "); err != nil {
				return err
			}
			return withClient(cmd.Context(), "register", func(ctx context.Context, c *app.Client) error {
				sess, err := c.Register(ctx, form)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(sess.User())
				}
				fmt.Printf("Welcome, %s. You are logged in.\n", sess.User().FullName())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&form.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&form.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&form.Email, "email", "", "account e-mail")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), "logout", func(ctx context.Context, c *app.Client) error {
				if err := c.Logout(); err != nil {
					return err
				}
				fmt.Println("Logged out")
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the session user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), "whoami", func(ctx context.Context, c *app.Client) error {
				u, err := c.Viewer()
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(u)
				}
				fmt.Printf("%s <%s> (user %d)\n", u.FullName(), u.Email, u.ID)
				return nil
			})
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the API answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), "health", func(ctx context.Context, c *app.Client) error {
				if err := c.Health(ctx); err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(map[string]any{"ok": true, "url": c.API.BaseURL})
				}
				fmt.Println("API is reachable at", c.API.BaseURL)
				return nil
			})
		},
	}
}

func dashboardCmd() *cobra.Command {
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show your projects, tasks and pending invitations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), "dashboard", func(ctx context.Context, c *app.Client) error {
				if watch <= 0 {
					return showDashboard(ctx, c)
				}
				ticker := time.NewTicker(watch)
				defer ticker.Stop()
				for {
					if err := showDashboard(ctx, c); err != nil {
						return err
					}
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
				}
			})
		},
	}
	cmd.Flags().DurationVar(&watch, "watch", 0, "refresh every interval until interrupted")
	return cmd
}

func showDashboard(ctx context.Context, c *app.Client) error {
	d, err := c.Dashboard(ctx)
	if err != nil {
		return err
	}
	if jsonOutput() {
		return printJSON(map[string]any{
			"projects":    d.Projects,
			"tasks":       d.Tasks,
			"invitations": d.PendingInvitations(),
		})
	}
	viewer, err := c.Viewer()
	if err != nil {
		return err
	}
	fmt.Printf("Dashboard for %s (%s)\n\n", viewer.FullName(), time.Now().Format(time.Kitchen))

	pt := newTable(table.Row{"ID", "Project", "Subject", "Deadline", "Role", "Members"})
	for _, p := range d.Projects {
		pt.AppendRow(table.Row{p.ID, p.Name, p.Subject, dateCell(p.Deadline), access.Role(p, viewer.ID), len(p.Members)})
	}
	pt.SetTitle("Projects")
	pt.Render()

	board := c.MyTasks()
	tt := newTable(table.Row{"ID", "Task", "Project", "Deadline", "Status", "Actions"})
	for _, t := range d.Tasks {
		tt.AppendRow(table.Row{t.ID, t.Title, t.ProjectName, dateCell(t.Deadline), t.Status, shortcutNames(board.Actions(t))})
	}
	tt.SetTitle("My tasks")
	tt.Render()

	pending := d.PendingInvitations()
	if len(pending) > 0 {
		it := newTable(table.Row{"ID", "Project", "Subject", "From", "Sent"})
		for _, inv := range pending {
			it.AppendRow(table.Row{inv.ID, inv.ProjectName, inv.ProjectSubject, inv.InviterName, inv.CreatedAt.Local().Format("2006-01-02 15:04")})
		}
		it.SetTitle("Pending invitations")
		it.Render()
		fmt.Println("Answer with `collab invitation accept|reject <id>`.")
	}
	return nil
}
