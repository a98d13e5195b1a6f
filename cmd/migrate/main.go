package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ledgerflow/backend/internal/infrastructure/config"
	"github.com/ledgerflow/backend/internal/infrastructure/logger"
	"github.com/ledgerflow/backend/internal/infrastructure/migration"
)

var errUsage = errors.New("usage")

// schemaMigrator is the part of migration.Migrator the commands drive.
type schemaMigrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
}

func main() {
	var (
		migrationsPath string
		logLevel       string
		connectTimeout time.Duration
	)
	flag.StringVar(&migrationsPath, "path", "", "Read migrations from this directory instead of the embedded set")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.DurationVar(&connectTimeout, "timeout", 10*time.Second, "Database connect timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync(log) }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := openDatabase(cfg.Database.DSN(), connectTimeout)
	if err != nil {
		log.Fatal("Database unavailable",
			zap.String("host", cfg.Database.Host),
			zap.String("dbname", cfg.Database.DBName),
			zap.Error(err),
		)
	}
	defer db.Close()

	var m *migration.Migrator
	if migrationsPath != "" {
		m, err = migration.NewWithSource(db, os.DirFS(migrationsPath), log)
	} else {
		m, err = migration.New(db, log)
	}
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer m.Close()

	log.Info("Running migration command",
		zap.Strings("args", args),
		zap.Bool("embedded", migrationsPath == ""),
	)
	if err := runCommand(m, args, log); err != nil {
		if errors.Is(err, errUsage) {
			log.Error(err.Error())
			printUsage()
			os.Exit(2)
		}
		log.Fatal("Migration command failed", zap.String("command", args[0]), zap.Error(err))
	}
}

func openDatabase(dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// runCommand dispatches one CLI command against m.
func runCommand(m schemaMigrator, args []string, log *zap.Logger) error {
	switch args[0] {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "step":
		n, err := intArg(args, "step <n>")
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: step count must not be zero", errUsage)
		}
		return m.Steps(n)
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if version == 0 {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	case "force":
		version, err := intArg(args, "force <version>")
		if err != nil {
			return err
		}
		return m.Force(version)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func intArg(args []string, form string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%w: migrate %s", errUsage, form)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", errUsage, args[1])
	}
	return n, nil
}

func printUsage() {
	fmt.Println(`LedgerFlow schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                 apply pending migrations
  down               roll back every migration
  step <n>           move n migrations (negative rolls back)
  version            print the applied version
  force <version>    mark a version as applied after repairing a dirty schema

Flags:
  -path string       read *.sql from a directory instead of the embedded set
  -log-level string  debug, info, warn or error (default info)
  -timeout duration  database connect timeout (default 10s)

The connection comes from LEDGERFLOW_DATABASE_HOST, _PORT, _USER, _PASSWORD,
_DBNAME and _SSLMODE.`)
}
