package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"collab/internal/app"
	"collab/internal/config"
	"collab/internal/domain"
	"collab/internal/logging"
	"collab/internal/session"
	"collab/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "collab",
	Short: "Collab CLI",
	Long: `Collab is a client for a shared project and task board.
- Project: a named piece of work with a creator, admins and members.
- Invitation: listing someone's e-mail when creating a project invites them; they accept or reject.
- Task: assigned to one member; moves between PENDING, IN_PROGRESS, COMPLETED and CANCELED.
- Roles: the creator manages admins; admins create and delete tasks; admins and the assignee change status.
Settings come from collab.yml, COLLAB_* environment variables (a .env file is read too) and flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}
	viper.SetEnvPrefix("COLLAB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config-dir", "c", ".", "directory holding collab.yml")
	flags.Bool("json", false, "output JSON")
	flags.String("api-url", "", "API base URL (overrides api.base_url)")
	flags.Duration("timeout", 0, "request timeout (overrides api.timeout)")
	flags.String("session-file", "", "session file (overrides session.path)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("strict-transitions", false, "only allow the standard status transitions")
	for _, name := range []string{"config-dir", "json", "api-url", "timeout", "session-file", "log-level", "strict-transitions"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(invitationCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
}

// loadConfig reads collab.yml and applies environment and flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("config-dir"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("api-url"); v != "" {
		cfg.API.BaseURL = v
	}
	if d := viper.GetDuration("timeout"); d > 0 {
		cfg.API.Timeout = d
	}
	if v := viper.GetString("session-file"); v != "" {
		cfg.Session.Path = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if viper.GetBool("strict-transitions") {
		cfg.Workflow.StrictTransitions = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *zap.Logger {
	return logging.New(logging.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding})
}

// withClient builds the app client for the configured API and session file
// and turns the error of fn into the message the user sees.
func withClient(ctx context.Context, op string, fn func(context.Context, *app.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer log.Sync()
	c := app.New(app.Options{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Store:   session.Open(session.FilePersister{Path: cfg.Session.Path}, log),
		Policy:  workflow.FromConfig(cfg.Workflow.StrictTransitions),
		Logger:  log,
	})
	err = fn(ctx, c)
	if c.Signal.Consume() {
		fmt.Fprintln(os.Stderr, "You have been logged out. Run `collab login` to continue.")
	}
	if err == nil {
		return nil
	}
	msg := c.Report(op, err)
	if msg == "" {
		return nil
	}
	return errors.New(msg)
}

func jsonOutput() bool {
	return viper.GetBool("json")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}

func dateCell(d *domain.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

func shortcutNames(list []workflow.Shortcut) string {
	names := make([]string, 0, len(list))
	for _, sc := range list {
		names = append(names, sc.Name)
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

// promptPassword reads a password without echo when stdin is a terminal.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return readLine(os.Stdin)
}

func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	return readLine(os.Stdin)
}

var stdinReader *bufio.Reader

func readLine(r io.Reader) (string, error) {
	if stdinReader == nil {
		stdinReader = bufio.NewReader(r)
	}
	line, err := stdinReader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
