package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/pflag"
)

const (
	dsnFlag        = "dsn"
	migrationsFlag = "migrations-path"
	downFlag       = "down"

	dsnEnv = "STOREFRONT_SQL_DB"
)

type flags struct {
	dsn        string
	migrations string
	down       int
}

func main() {
	f := parseFlags()
	if err := f.validate(); err != nil {
		slog.Error("invalid arguments", "err", err)
		fallDown()
	}
	if err := migrateDB(f); err != nil {
		slog.Error("failed to migrate", "err", err)
		fallDown()
	}
}

// migrationLogger adapts slog to [migrate.Logger].
type migrationLogger struct {
	logger *slog.Logger
}

func (l migrationLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (migrationLogger) Verbose() bool {
	return true
}

func parseFlags() flags {
	var f flags
	pflag.StringVarP(&f.dsn, dsnFlag, "s", os.Getenv(dsnEnv),
		"postgres connection string, "+dsnEnv+" by default")
	pflag.StringVarP(&f.migrations, migrationsFlag, "m", "migrations", "migrations directory")
	pflag.IntVar(&f.down, downFlag, 0, "roll back this many migrations instead of applying")
	pflag.Parse()
	return f
}

func (f flags) validate() error {
	var errs []error
	if f.dsn == "" {
		errs = append(errs, fmt.Errorf("--%s flag or %s: required", dsnFlag, dsnEnv))
	}
	if f.migrations == "" {
		errs = append(errs, fmt.Errorf("--%s flag: required", migrationsFlag))
	}
	if f.down < 0 {
		errs = append(errs, fmt.Errorf("--%s flag: must not be negative", downFlag))
	}
	return errors.Join(errs...)
}

func migrateDB(f flags) error {
	m, err := migrate.New("file://"+f.migrations, "pgx5://"+trimScheme(f.dsn))
	if err != nil {
		return err
	}
	defer m.Close()
	m.Log = migrationLogger{logger: slog.Default()}

	if f.down > 0 {
		err = m.Steps(-f.down)
	} else {
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		m.Log.Printf("no migrations to apply")
		return nil
	}
	if err != nil {
		return err
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	m.Log.Printf("schema at version %d (dirty=%t)", v, dirty)
	return nil
}

// trimScheme lets the same DSN serve the server and the migrator.
func trimScheme(dsn string) string {
	for _, p := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(dsn, p); ok {
			return rest
		}
	}
	return dsn
}

func fallDown() {
	os.Exit(2)
}
