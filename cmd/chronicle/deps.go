package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ersonp/chronicle/internal/application/handlers"
	"github.com/ersonp/chronicle/internal/domain/ports"
	"github.com/ersonp/chronicle/internal/domain/services"
	"github.com/ersonp/chronicle/internal/infrastructure/config"
	"github.com/ersonp/chronicle/internal/infrastructure/executor/postgres"
	"github.com/ersonp/chronicle/internal/infrastructure/executor/sqlite"
	"github.com/ersonp/chronicle/internal/infrastructure/metadata/schemafile"
)

// Deps holds high-level dependencies for commands.
// Only handlers are exposed - services and executors are internal.
type Deps struct {
	Config       *config.Config
	AuditHandler *handlers.AuditHandler
}

// withDeps loads config and builds dependencies, then calls the provided
// function. It handles cleanup automatically.
func withDeps(fn func(*Deps) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	provider, err := schemafile.Load(cfg.SchemaPath(cwd))
	if err != nil {
		return fmt.Errorf("loading audit schema: %w", err)
	}

	exec, closeExec, err := buildExecutor(cwd, cfg)
	if err != nil {
		return err
	}
	defer closeExec()

	reader := services.NewAuditReader(provider, exec, services.ReaderConfig{
		Naming: cfg.Audit.Naming(),
		Policy: cfg.Audit.LoadPolicy(),
		Logger: newLogger(),
	})

	deps := &Deps{
		Config:       cfg,
		AuditHandler: handlers.NewAuditHandler(reader),
	}

	return fn(deps)
}

func buildExecutor(cwd string, cfg *config.Config) (ports.QueryExecutor, func() error, error) {
	switch cfg.Database.Driver {
	case "", "sqlite":
		exec, err := sqlite.NewExecutor(config.SQLiteConfig{Path: cfg.SQLitePath(cwd)})
		if err != nil {
			return nil, nil, fmt.Errorf("creating sqlite executor: %w", err)
		}
		return exec, exec.Close, nil
	case "postgres":
		exec, err := postgres.NewExecutor(cfg.Database.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("creating postgres executor: %w", err)
		}
		return exec, exec.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if globalVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
