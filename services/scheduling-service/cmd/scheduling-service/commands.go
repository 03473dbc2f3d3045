package main

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/storage"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "scheduling-service",
		Short:         "Clinic appointment scheduling and booking engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "optional config file; environment variables override it")

	load := func() (*config.Config, error) {
		return config.Load(cfgFile)
	}

	root.AddCommand(
		newServeCommand(load),
		newMigrateCommand(load),
		newSweepCommand(load),
		newReconcileCommand(load),
		newTokenCommand(load),
	)
	return root
}

type configLoader func() (*config.Config, error)

func newServeCommand(load configLoader) *cobra.Command {
	var shutdownTimeout time.Duration
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, gRPC health server and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()
			return serve(ctx, cfg, serveOptions{shutdownTimeout: shutdownTimeout, migrate: migrate})
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "maximum time to wait for graceful shutdown")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func newMigrateCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return storage.Migrate(ctx, a.pool, a.logger)
		},
	}
}

// newSweepCommand runs a single lifecycle sweep, for cron-driven deployments
// that do not run the in-process ticker.
func newSweepCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire past appointments and queue due reminders once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			res, err := a.sweeper.SweepOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "missed=%d overdue=%d reminders=%d skipped=%t\n", res.Missed, res.Overdue, res.Reminders, res.Skipped)
			return nil
		},
	}
}

func newReconcileCommand(load configLoader) *cobra.Command {
	var doctorID, date string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair schedule slots that disagree with appointments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if doctorID != "" || date != "" {
				return reconcileOne(ctx, cmd, a, doctorID, date)
			}
			rep, err := a.reconciler.ReconcileRecent(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "claimed=%d released=%d\n", rep.Claimed, rep.Released)
			return nil
		},
	}
	cmd.Flags().StringVar(&doctorID, "doctor", "", "reconcile only this doctor (requires --date)")
	cmd.Flags().StringVar(&date, "date", "", "reconcile only this date, YYYY-MM-DD (requires --doctor)")
	return cmd
}

func reconcileOne(ctx context.Context, cmd *cobra.Command, a *app, doctorID, raw string) error {
	if doctorID == "" || raw == "" {
		return fmt.Errorf("--doctor and --date must be given together")
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return fmt.Errorf("--date: %w", err)
	}
	rep, err := a.reconciler.ReconcileDay(ctx, doctorID, d)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "claimed=%d released=%d\n", rep.Claimed, rep.Released)
	return nil
}

// newTokenCommand mints a bearer token for local testing against JWT_SECRET.
func newTokenCommand(load configLoader) *cobra.Command {
	var userID, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}
			switch model.Role(role) {
			case model.RolePatient, model.RoleDoctor, model.RoleReceptionist, model.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			token, err := auth.Sign(auth.Principal{UserID: userID, Role: role}, cfg.JWTSecret, cfg.JWTIssuer, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id placed in the sub claim")
	cmd.Flags().StringVar(&role, "role", string(model.RolePatient), "patient, doctor, receptionist or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
