package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wgoossens/trackside/api"
	"github.com/wgoossens/trackside/auth"
	"github.com/wgoossens/trackside/config"
	"github.com/wgoossens/trackside/db"
	"github.com/wgoossens/trackside/service"
	"github.com/wgoossens/trackside/web"

	// Import sqlite driver for database/sql - registers itself via init()
	_ "modernc.org/sqlite"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:     "trackside",
		Short:   "Self-hosted athletics competition companion",
		Version: version,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "trackside.yaml", "Path to config file")

	cmd.AddCommand(serveCmd(&configPath))
	cmd.AddCommand(syncCmd(&configPath))
	cmd.AddCommand(loginCmd(&configPath))
	cmd.AddCommand(logoutCmd(&configPath))
	cmd.AddCommand(hashPasswordCmd(&configPath))

	return cmd
}

// application bundles the wired services for the commands.
type application struct {
	cfg     *config.Config
	repo    db.Repo
	session *auth.Session
	gateway *api.Client
	catalog *service.CatalogService
	store   *service.SubscriptionStore
}

func newApplication(configPath string) (*application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	repo, err := db.NewRepo(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	session := auth.NewSession(cfg.IdentityURL, cfg.ClientId, cfg.TokenFile)
	gateway := api.NewClient(cfg.GatewayURL, session)

	catalog, err := service.NewCatalogService(repo, gateway)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}
	store, err := service.NewSubscriptionStore(repo, gateway)
	if err != nil {
		return nil, fmt.Errorf("init subscription store: %w", err)
	}

	return &application{
		cfg:     cfg,
		repo:    repo,
		session: session,
		gateway: gateway,
		catalog: catalog,
		store:   store,
	}, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI and the periodic catalog sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(*configPath)
			if err != nil {
				return err
			}
			defer app.repo.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// The subscribed list follows the session: login and logout both
			// replace it wholesale.
			app.session.OnChange(func() {
				if err := app.store.Refresh(ctx); err != nil {
					log.Printf("Subscription refresh on session change failed: %v", err)
				}
			})

			flow := service.NewSubscribeFlow(app.gateway, app.store, app.catalog)
			profiles := service.NewProfileService(app.repo, app.gateway)
			feed := service.NewFeedService(app.store)
			webApp := web.NewWebApp(app.catalog, app.store, flow, profiles, feed, app.session)

			creds, err := web.LoadCredentials(app.cfg.AuthFile)
			if err != nil {
				return err
			}
			if creds == nil && app.cfg.AuthFile != "" {
				log.Printf("Auth file %s not found, web UI is unprotected", app.cfg.AuthFile)
			}

			if err := app.catalog.Sync(ctx); err != nil {
				log.Printf("Initial catalog sync failed: %v", err)
			}
			if err := app.store.Refresh(ctx); err != nil {
				log.Printf("Initial subscription refresh failed: %v", err)
			}

			scheduler := cron.New()
			if _, err := scheduler.AddFunc(app.cfg.SyncCron, func() {
				if err := app.catalog.Sync(ctx); err != nil {
					log.Printf("Scheduled catalog sync failed: %v", err)
				}
			}); err != nil {
				return fmt.Errorf("invalid sync_cron %q: %w", app.cfg.SyncCron, err)
			}
			scheduler.Start()
			defer scheduler.Stop()

			handler := web.BasicAuthMiddleware(creds, web.LanguageMiddleware(web.LoggingMiddleware(webApp.Routes())))
			server := &http.Server{Addr: app.cfg.Listen, Handler: handler}

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				sig := <-sigCh
				log.Printf("Signal %s received, shutting down", sig)
				cancel()
				server.Shutdown(context.Background())
			}()

			log.Printf("Listening on %s", app.cfg.Listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
}

func syncCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one catalog sync and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(*configPath)
			if err != nil {
				return err
			}
			defer app.repo.Close()
			if err := app.catalog.Sync(cmd.Context()); err != nil {
				return err
			}
			return app.store.Refresh(cmd.Context())
		},
	}
}

func loginCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in against the identity provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(*configPath)
			if err != nil {
				return err
			}
			defer app.repo.Close()

			fmt.Print("Username: ")
			reader := bufio.NewReader(os.Stdin)
			username, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			username = strings.TrimSpace(username)

			fmt.Print("Password: ")
			password, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				return err
			}

			if err := app.session.Login(cmd.Context(), username, string(password)); err != nil {
				return err
			}
			log.Printf("Logged in as %s", username)
			return app.store.Refresh(cmd.Context())
		},
	}
}

func logoutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the local session and revoke the refresh token",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(*configPath)
			if err != nil {
				return err
			}
			defer app.repo.Close()
			return app.session.Logout(cmd.Context())
		},
	}
}

func hashPasswordCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Create the auth file protecting the web UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.AuthFile == "" {
				return fmt.Errorf("auth_file is not set in the config")
			}

			fmt.Print("Username: ")
			reader := bufio.NewReader(os.Stdin)
			username, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			username = strings.TrimSpace(username)
			if username == "" {
				return fmt.Errorf("username cannot be empty")
			}

			fmt.Print("Password: ")
			password, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				return err
			}
			fmt.Print("Confirm password: ")
			confirm, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				return err
			}
			if string(password) != string(confirm) {
				return fmt.Errorf("passwords do not match")
			}
			if len(password) == 0 {
				return fmt.Errorf("password cannot be empty")
			}

			hash, err := web.HashPassword(string(password))
			if err != nil {
				return err
			}
			if err := os.WriteFile(cfg.AuthFile, []byte(username+":"+hash+"\n"), 0o600); err != nil {
				return err
			}
			log.Printf("Wrote %s", cfg.AuthFile)
			return nil
		},
	}
}
