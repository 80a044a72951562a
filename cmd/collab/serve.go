package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"collab/internal/db"
	"collab/internal/engine"
	"collab/internal/engine/auth"
	"collab/internal/migrate"
	"collab/internal/server"
	"collab/internal/workflow"
)

func serveCmd() *cobra.Command {
	var addr, basePath, workspace string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the reference HTTP API server",
		Long:  "Serves the collab REST API on a SQLite database in the workspace directory. COLLAB_JWT_SECRET signs session tokens and is required.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Server.Addr = addr
			}
			if flags.Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if flags.Changed("workspace") {
				cfg.Server.Workspace = workspace
			}
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("COLLAB_JWT_SECRET is required for bearer auth")
			}
			log := newLogger(cfg)
			defer log.Sync()

			if _, err := db.EnsureWorkspace(cfg.Server.Workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: cfg.Server.Workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			ctx := cmd.Context()
			version, err := migrate.Migrate(ctx, conn)
			if err != nil {
				return err
			}
			log.Info("database ready", zap.Int("schema_version", version))

			e := engine.New(conn, workflow.FromConfig(cfg.Workflow.StrictTransitions))
			handler, err := server.New(server.Config{
				Engine:   e,
				Tokens:   auth.Tokens{Secret: secret, TTL: cfg.Server.TokenTTL},
				BasePath: cfg.Server.BasePath,
				Logger:   log,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

			g, gCtx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if len(cfg.Server.Webhooks) > 0 {
				dispatcher := server.NewWebhookDispatcher(e.Repo, cfg.Server.Webhooks, log)
				g.Go(func() error {
					dispatcher.Run(gCtx)
					return nil
				})
			}
			fmt.Printf("Serving collab API on http://%s%s (OpenAPI at /openapi, docs at /docs)\n", cfg.Server.Addr, cfg.Server.BasePath)
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (overrides server.base_path)")
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "directory holding the database (overrides server.workspace)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
		Long:  "Configuration is read from collab.yml in --config-dir, then COLLAB_* environment variables and flags override it.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			for i := range cfg.Server.Webhooks {
				if cfg.Server.Webhooks[i].Secret != "" {
					cfg.Server.Webhooks[i].Secret = "***"
				}
			}
			if jsonOutput() {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := loadConfig()
			if jsonOutput() {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}
