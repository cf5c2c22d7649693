// Package main is the entry point of the roll return generator.
//
// Usage:
//
//	rollreturn generate [-input request.json]
//	rollreturn versions -school 123 -month M -year 2015 [-draft] [-complete]
//
// Configuration comes from the environment (see config.Load).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/moe-roll/rollreturn/config"
	"github.com/moe-roll/rollreturn/internal/application/command"
	"github.com/moe-roll/rollreturn/internal/application/query"
	"github.com/moe-roll/rollreturn/internal/domain/registry"
	"github.com/moe-roll/rollreturn/internal/domain/shared"
	"github.com/moe-roll/rollreturn/internal/infrastructure/audit"
	"github.com/moe-roll/rollreturn/internal/infrastructure/moefile"
	"github.com/moe-roll/rollreturn/internal/infrastructure/persistence/postgres"
	"github.com/moe-roll/rollreturn/internal/infrastructure/persistence/redis"
	"github.com/moe-roll/rollreturn/internal/infrastructure/persistence/sqlite"
	"github.com/moe-roll/rollreturn/internal/interface/cli"
	"github.com/moe-roll/rollreturn/pkg/logger"
	"github.com/moe-roll/rollreturn/pkg/retry"
)

// Exit codes per error kind so wrapping scripts can decide whether to retry.
const (
	exitOK = iota
	exitInternal
	exitConfiguration
	exitValidation
	exitConcurrency
	exitIO
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "rollreturn: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case shared.IsConfiguration(err):
		return exitConfiguration
	case shared.IsValidation(err):
		return exitValidation
	case shared.IsConcurrency(err):
		return exitConcurrency
	case shared.IsIO(err):
		return exitIO
	default:
		return exitInternal
	}
}

// backend is a version registry that also stores audit entries.
type backend interface {
	registry.Registry
	audit.Sink
}

// app holds the wired dependencies for one process.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	backend  backend
	closers  []func() error
	generate *command.GenerateRollReturnHandler
	versions *query.ListVersionsHandler
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return shared.Configuration("cli", "run", "expected a subcommand: generate or versions")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return shared.WrapError("cli", "run", shared.ErrConfiguration, "load config", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. WIRING
	// ─────────────────────────────────────────────────────────────────────────
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. DISPATCH
	// ─────────────────────────────────────────────────────────────────────────
	switch args[0] {
	case "generate":
		return a.runGenerate(ctx, args[1:], stdout)
	case "versions":
		return a.runVersions(ctx, args[1:], stdout)
	default:
		return shared.Configuration("cli", "run", "unknown subcommand %q", args[0])
	}
}

func setupLogger(cfg *config.Config) *logger.Logger {
	json := !cfg.IsDevelopment()
	switch cfg.Observability.LogFormat {
	case "json":
		json = true
	case "console":
		json = false
	}
	return logger.New(logger.Options{
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		JSON:      json,
		AddCaller: true,
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	rules, err := config.LoadRules(cfg.Rules)
	if err != nil {
		return nil, shared.WrapError("cli", "newApp", shared.ErrConfiguration, "load rules", err)
	}

	if err := a.openBackend(ctx); err != nil {
		a.close()
		return nil, err
	}

	writer, err := moefile.NewWriter(cfg.Output.BaseDir, a.backend, moefile.WithLogger(log))
	if err != nil {
		a.close()
		return nil, err
	}

	sink := audit.Multi{
		audit.NewLogSink(log),
		audit.NewBounded(a.backend, cfg.Audit.Timeout),
	}

	a.generate = command.NewGenerateRollReturnHandler(command.GenerateRollReturnHandlerConfig{
		Rules:    rules,
		Files:    writer,
		Versions: a.backend,
		Audit:    sink,
		Logger:   log,
	})
	a.versions = query.NewListVersionsHandler(a.backend)
	return a, nil
}

func (a *app) openBackend(ctx context.Context) error {
	cfg := a.cfg
	retrier := retry.LockRetrier(cfg.Lock.MaxAttempts, cfg.Lock.RetryDelay)
	log := a.log.With(logger.Component("registry"), logger.String("backend", cfg.Registry.Backend))

	switch cfg.Registry.Backend {
	case config.BackendPostgres:
		conn, err := postgres.Connect(ctx, cfg.Database.URL, postgres.PoolSettings{
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return shared.IO("cli", "openBackend", "connect postgres", err)
		}
		a.closers = append(a.closers, func() error { conn.Close(); return nil })

		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			return shared.IO("cli", "openBackend", "migrate postgres", err)
		}
		a.backend = struct {
			*postgres.RegistryRepository
			*postgres.AuditRepository
		}{postgres.NewRegistryRepository(conn, retrier, log), postgres.NewAuditRepository(conn)}

	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path, sqlite.Options{
			BusyTimeout: cfg.SQLite.BusyTimeout,
			Retrier:     retrier,
			Logger:      log,
		})
		if err != nil {
			return shared.IO("cli", "openBackend", "open sqlite", err)
		}
		a.closers = append(a.closers, store.Close)
		a.backend = store

	case config.BackendRedis:
		client, err := redis.NewClient(ctx, redis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			Namespace:    cfg.Redis.Namespace,
			LockTTL:      cfg.Lock.TTL,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return shared.IO("cli", "openBackend", "connect redis", err)
		}
		a.closers = append(a.closers, client.Close)
		a.backend = redis.NewRegistry(client, retrier, log)

	default:
		return shared.Configuration("cli", "openBackend", "unknown registry backend %q", cfg.Registry.Backend)
	}

	log.Info("registry ready")
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", logger.Err(err))
		}
	}
	a.closers = nil
}

func (a *app) runGenerate(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	input := fs.String("input", "-", "request JSON file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return shared.WrapError("cli", "generate", shared.ErrConfiguration, "parse flags", err)
	}

	var r io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			return shared.IO("cli", "generate", "open input", err)
		}
		defer f.Close()
		r = f
	}

	req, err := cli.DecodeRequest(r)
	if err != nil {
		return err
	}
	cmd, err := cli.CommandFromDTO(req)
	if err != nil {
		return err
	}

	res, err := a.generate.Handle(logger.WithContext(ctx, a.log), cmd)
	if err != nil {
		return err
	}
	return cli.WriteJSON(stdout, cli.OutputFromResult(registry.FileTag(res.Scope), res))
}

func (a *app) runVersions(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("versions", flag.ContinueOnError)
	school := fs.String("school", "", "school number")
	month := fs.String("month", "", "collection month code (M, E, J, S)")
	year := fs.Int("year", 0, "collection year")
	draft := fs.Bool("draft", false, "list the DRAFT sequence")
	complete := fs.Bool("complete", false, "hide versions that never finished")
	if err := fs.Parse(args); err != nil {
		return shared.WrapError("cli", "versions", shared.ErrConfiguration, "parse flags", err)
	}

	res, err := a.versions.Handle(ctx, query.ListVersionsQuery{
		SchoolNumber: *school,
		MonthCode:    *month,
		Year:         *year,
		Draft:        *draft,
		CompleteOnly: *complete,
	})
	if err != nil {
		return err
	}
	return cli.WriteJSON(stdout, res)
}
