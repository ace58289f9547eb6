package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/atvirokodosprendimai/beanval/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/beanval/internal/adapters/remote"
	sqliteadapter "github.com/atvirokodosprendimai/beanval/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/beanval/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/beanval/internal/core/rules"
	"github.com/atvirokodosprendimai/beanval/internal/core/usecase"
	"github.com/atvirokodosprendimai/beanval/migrations"
)

type Config struct {
	Addr             string
	DBPath           string
	BootstrapAPIKey  string
	BootstrapKeyName string
	// BootstrapKeyDocuments scopes the bootstrap key; empty allows all.
	BootstrapKeyDocuments []string
	// ConstraintsURL pins an external constraint document served to
	// documentless form sessions. Empty disables them.
	ConstraintsURL string
	SigningSecret  string
	FetchTimeout   time.Duration
	SessionTTL     time.Duration
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenDB opens the sqlite file and applies pending migrations.
func OpenDB(ctx context.Context, path string, logger *slog.Logger) (*gormsqlite.DB, error) {
	db, err := gormsqlite.Open(path, logger)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(ctx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func NewServer(ctx context.Context, cfg Config, logger *slog.Logger) (*http.Server, io.Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := OpenDB(ctx, cfg.DBPath, logger)
	if err != nil {
		return nil, nil, err
	}

	documentRepo := sqliteadapter.NewDocumentRepository(db)
	apiKeyRepo := sqliteadapter.NewAPIKeyRepository(db)
	auditRepo := sqliteadapter.NewAuditRepository(db)

	ruleSet := rules.New()
	documents := usecase.NewDocumentService(documentRepo, auditRepo, logger)
	authService := usecase.NewAuthService(apiKeyRepo)
	auditService := usecase.NewAuditService(auditRepo)

	formOpts := []usecase.FormServiceOption{usecase.WithSessionTTL(cfg.SessionTTL)}
	if cfg.ConstraintsURL != "" {
		fetcher := remote.NewFetcher(cfg.SigningSecret, cfg.FetchTimeout)
		store := usecase.NewConstraintStore(fetcher, cfg.ConstraintsURL, logger)
		store.Load()
		formOpts = append(formOpts, usecase.WithRemoteStore(store))
	}
	forms := usecase.NewFormService(documents, ruleSet, logger, formOpts...)

	if cfg.BootstrapAPIKey != "" {
		bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := authService.Register(bootstrapCtx, cfg.BootstrapKeyName, cfg.BootstrapAPIKey, cfg.BootstrapKeyDocuments...)
		bootstrapCancel()
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("bootstrap api key: %w", err)
		}
		logger.Info("bootstrap api key registered", "name", cfg.BootstrapKeyName, "documents", cfg.BootstrapKeyDocuments)
	}

	handlerOpts := []httpapi.Option{httpapi.WithLogger(logger)}
	if cfg.SigningSecret != "" {
		handlerOpts = append(handlerOpts, httpapi.WithSigningSecret(cfg.SigningSecret))
	}
	handler := httpapi.NewHandler(documents, forms, authService, auditService, handlerOpts...)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return server, resourceCloser{closers: []io.Closer{db}}, nil
}
