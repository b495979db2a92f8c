package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/alphabot-ai/blogapi/internal/auth"
	"github.com/alphabot-ai/blogapi/internal/config"
	httpapp "github.com/alphabot-ai/blogapi/internal/http"
	"github.com/alphabot-ai/blogapi/internal/logging"
	"github.com/alphabot-ai/blogapi/internal/model"
	"github.com/alphabot-ai/blogapi/internal/store"
	"github.com/alphabot-ai/blogapi/internal/store/backend"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:          "blogapi",
		Short:        "REST backend for a multi-author blog",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())
	root.AddCommand(serve, newMigrateCmd(), newSetRoleCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log := logging.Stderr(cfg.LogLevel, cfg.LogFormat)
			return runServer(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().Int("port", 5000, "port to listen on (env PORT)")
	cmd.Flags().String("store", "sqlite://blog.db", "store URI: sqlite://path, postgres://..., memory:// (env STORE_URI)")
	return cmd
}

func runServer(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	st, err := backend.Open(ctx, cfg.StoreURI)
	if err != nil {
		log.Error().Err(err).Str("store", backend.Kind(cfg.StoreURI)).Msg("failed to open store")
		return err
	}
	defer st.Close()

	authSvc := auth.NewService(st, cfg.JWTSecret, cfg.TokenTTL, cfg.BcryptCost)
	server := httpapp.NewServer(st, authSvc, cfg, log)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("store", backend.Kind(cfg.StoreURI)).Msg("blogapi listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err, ok := <-errCh:
		if ok {
			log.Error().Err(err).Msg("server error")
			return err
		}
		return nil
	case <-stop:
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations to the configured store and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st store.Store, log zerolog.Logger) error {
				log.Info().Msg("store is up to date")
				return nil
			})
		},
	}
}

func newSetRoleCmd() *cobra.Command {
	var username, role string
	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change the role of an existing user",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := model.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q (want admin, author or reader)", role)
			}
			return withStore(cmd, func(ctx context.Context, st store.Store, log zerolog.Logger) error {
				if err := st.SetUserRole(ctx, username, r); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("no user named %q", username)
					}
					return err
				}
				log.Info().Str("username", username).Str("role", role).Msg("role updated")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "user to update (required)")
	cmd.Flags().StringVar(&role, "role", "", "admin, author or reader (required)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

// withStore opens the configured store for one-shot commands. The token
// secret is not needed here.
func withStore(cmd *cobra.Command, fn func(context.Context, store.Store, zerolog.Logger) error) error {
	cfg, err := config.Load(nil)
	if err != nil {
		return err
	}
	log := logging.Stderr(cfg.LogLevel, cfg.LogFormat)
	ctx := cmd.Context()
	st, err := backend.Open(ctx, cfg.StoreURI)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st, log)
}
