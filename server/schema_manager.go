package server

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

//go:embed sql/*.sql
var schemaFiles embed.FS

// dialect describes how a supported driver stores and lists its tables.
type dialect struct {
	schemaFile string
	tableQuery string
}

var dialects = map[string]dialect{
	"sqlite": {
		schemaFile: "sql/sqlite.sql",
		tableQuery: `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`,
	},
	"postgres": {
		schemaFile: "sql/postgres.sql",
		tableQuery: `SELECT table_name FROM information_schema.tables
		             WHERE table_schema = current_schema() AND table_name = $1`,
	},
}

// authTables lists what the user, session and audit stores read and write.
var authTables = []string{"users", "sessions", "security_events"}

// SchemaManager applies the embedded auth schema to a database.
type SchemaManager struct {
	db      *sql.DB
	name    string
	dialect dialect
}

// NewSchemaManager binds db to the dialect named by dbType ("sqlite" or
// "postgres"). An unknown dialect surfaces on the first call.
func NewSchemaManager(db *sql.DB, dbType string) *SchemaManager {
	return &SchemaManager{db: db, name: dbType, dialect: dialects[dbType]}
}

func (sm *SchemaManager) supported() error {
	if sm.dialect.schemaFile == "" {
		return fmt.Errorf("unsupported database type: %s", sm.name)
	}
	return nil
}

// EnsureSchema runs the idempotent schema script and then ValidateSchema.
func (sm *SchemaManager) EnsureSchema() error {
	if err := sm.supported(); err != nil {
		return err
	}

	script, err := schemaFiles.ReadFile(sm.dialect.schemaFile)
	if err != nil {
		return fmt.Errorf("failed to read schema file %s: %w", sm.dialect.schemaFile, err)
	}
	if _, err := sm.db.Exec(string(script)); err != nil {
		return fmt.Errorf("failed to apply %s schema: %w", sm.name, err)
	}
	return sm.ValidateSchema()
}

// ValidateSchema fails listing every auth table the database lacks.
func (sm *SchemaManager) ValidateSchema() error {
	if err := sm.supported(); err != nil {
		return err
	}

	var missing []string
	for _, table := range authTables {
		var found string
		err := sm.db.QueryRow(sm.dialect.tableQuery, table).Scan(&found)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			missing = append(missing, table)
		case err != nil:
			return fmt.Errorf("failed to look up table %s: %w", table, err)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("auth schema incomplete, missing: %s", strings.Join(missing, ", "))
	}

	slog.Debug("Auth schema present", "database_type", sm.name)
	return nil
}
