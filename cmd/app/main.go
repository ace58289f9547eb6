package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atvirokodosprendimai/beanval/internal/adapters/remote"
	"github.com/atvirokodosprendimai/beanval/internal/app"
	"github.com/atvirokodosprendimai/beanval/internal/core/rules"
	"github.com/atvirokodosprendimai/beanval/internal/core/usecase"
	"github.com/atvirokodosprendimai/beanval/migrations"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "beanval",
		Usage: "Declarative form field validation service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Sources: cli.EnvVars("BEANVAL_LOG_FORMAT"),
				Usage:   "Log output format: json or text",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("BEANVAL_LOG_LEVEL"),
				Usage:   "Minimum log level",
			},
			&cli.StringFlag{
				Name:    "signing-secret",
				Sources: cli.EnvVars("BEANVAL_SIGNING_SECRET"),
				Usage:   "HMAC-SHA256 secret for signing served documents and verifying fetched ones",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			checkCommand(),
			migrateCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("beanval failed", "error", err)
		os.Exit(1)
	}
}

func loggerFrom(c *cli.Command) (*slog.Logger, error) {
	return app.NewLogger(c.String("log-format"), c.String("log-level"), os.Stderr)
}

func dbPathFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "db-path",
		Value:   "./beanval.sqlite",
		Sources: cli.EnvVars("BEANVAL_DB_PATH"),
		Usage:   "SQLite file path",
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("BEANVAL_ADDR"),
				Usage:   "HTTP listen address",
			},
			dbPathFlag(),
			&cli.StringFlag{
				Name:    "bootstrap-api-key",
				Sources: cli.EnvVars("BEANVAL_BOOTSTRAP_API_KEY"),
				Usage:   "Optional API key to upsert at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-key-name",
				Value:   "bootstrap",
				Sources: cli.EnvVars("BEANVAL_BOOTSTRAP_KEY_NAME"),
				Usage:   "Name for bootstrap API key",
			},
			&cli.StringSliceFlag{
				Name:    "bootstrap-key-documents",
				Sources: cli.EnvVars("BEANVAL_BOOTSTRAP_KEY_DOCUMENTS"),
				Usage:   "Document names the bootstrap key may change (trailing * matches a prefix); empty allows all",
			},
			&cli.StringFlag{
				Name:    "constraints-url",
				Sources: cli.EnvVars("BEANVAL_CONSTRAINTS_URL"),
				Usage:   "Constraint document used by forms created without a document name",
			},
			&cli.DurationFlag{
				Name:    "fetch-timeout",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("BEANVAL_FETCH_TIMEOUT"),
				Usage:   "Timeout for fetching the constraint document",
			},
			&cli.DurationFlag{
				Name:    "session-ttl",
				Value:   usecase.DefaultSessionTTL,
				Sources: cli.EnvVars("BEANVAL_SESSION_TTL"),
				Usage:   "Idle lifetime of form sessions",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger, err := loggerFrom(c)
			if err != nil {
				return err
			}
			cfg := app.Config{
				Addr:                  c.String("addr"),
				DBPath:                c.String("db-path"),
				BootstrapAPIKey:       c.String("bootstrap-api-key"),
				BootstrapKeyName:      c.String("bootstrap-key-name"),
				BootstrapKeyDocuments: c.StringSlice("bootstrap-key-documents"),
				ConstraintsURL:        c.String("constraints-url"),
				SigningSecret:         c.String("signing-secret"),
				FetchTimeout:          c.Duration("fetch-timeout"),
				SessionTTL:            c.Duration("session-ttl"),
			}

			server, closer, err := app.NewServer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					logger.Error("close resources", "error", closeErr)
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", cfg.Addr)
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case sig := <-sigCh:
				logger.Info("received signal", "signal", sig.String())
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Validate a values file against a constraint document",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "constraints",
				Required: true,
				Usage:    "Constraint document location (http(s) URL or file path)",
			},
			&cli.StringFlag{
				Name:     "values",
				Required: true,
				Usage:    "JSON or YAML file holding field values",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Second,
				Usage: "Timeout for loading the constraint document",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger, err := loggerFrom(c)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(c.String("values"))
			if err != nil {
				return fmt.Errorf("read values: %w", err)
			}
			// YAML is a superset of JSON so one decoder covers both.
			var values map[string]any
			if err := yaml.Unmarshal(raw, &values); err != nil {
				return fmt.Errorf("decode values: %w", err)
			}

			fetcher := remote.NewFetcher(c.String("signing-secret"), c.Duration("timeout"))
			store := usecase.NewConstraintStore(fetcher, c.String("constraints"), logger)
			store.Load()

			ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
			defer cancel()
			report, err := usecase.CheckValues(ctx, store, rules.New(), values)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			if !report.Valid {
				return cli.Exit("values are invalid", 2)
			}
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Flags: []cli.Flag{dbPathFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger, err := loggerFrom(c)
			if err != nil {
				return err
			}
			db, err := app.OpenDB(ctx, c.String("db-path"), logger)
			if err != nil {
				return err
			}
			defer db.Close()

			sqlDB, err := db.WriteSQLDB()
			if err != nil {
				return err
			}
			version, err := migrations.Version(ctx, sqlDB)
			if err != nil {
				return err
			}
			logger.Info("database migrated", "path", c.String("db-path"), "version", version)
			return nil
		},
	}
}
