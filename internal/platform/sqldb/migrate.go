package sqldb

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// migrationTableName is the table goose uses to track applied migrations.
const migrationTableName = "sweep_schema_migrations"

// slogGooseLogger adapts the goose logger interface to slog.
type slogGooseLogger struct{}

// Printf implements the goose.Logger Printf method by forwarding messages to slog.Info.
func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	slog.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrations")
}

// Fatalf implements the goose.Logger Fatalf method by forwarding error messages to slog.Error.
// It does not exit the process; the error propagates through goose's return value.
func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	slog.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrations")
}

// Migrate brings the study-storage schema up to date by applying the
// embedded migrations with goose. The goose dialect is chosen from the
// storage dialect.
func Migrate(db *sql.DB, dialect Dialect) error {
	goose.SetLogger(&slogGooseLogger{})
	goose.SetBaseFS(embedMigrations)
	goose.SetTableName(migrationTableName)

	gooseDialect := "postgres"
	if dialect == DialectSQLite {
		gooseDialect = "sqlite3"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply study storage migrations: %w", err)
	}

	return nil
}
