package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/marketloop/shopdb/internal/models"
	"go.opentelemetry.io/otel/attribute"
)

// txTimeout bounds transaction acquisition plus execution so a wedged
// store surfaces as ErrConnection instead of a hang.
const txTimeout = 15 * time.Second

// DB wraps the shared connection pool. All core operations go through
// parameterized statements; no statement text is ever built from caller
// input.
type DB struct {
	*sql.DB
}

// NewDB opens an instrumented MySQL connection pool and verifies it is
// reachable.
func NewDB(dsn, serviceName string) (*DB, error) {
	driverName, err := otelsql.Register("mysql",
		otelsql.WithAttributes(
			attribute.String("db.system", "mysql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: ping: %v", models.ErrConnection, err)
	}

	if err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(
		attribute.String("db.system", "mysql"),
		attribute.String("service.name", serviceName),
	)); err != nil {
		log.Printf("Warning: failed to register otelsql stats metrics: %v", err)
	}

	return &DB{DB: db}, nil
}

// NewFromConn wraps an already-open connection. Used by tests.
func NewFromConn(conn *sql.DB) *DB {
	return &DB{DB: conn}
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.DB.Close()
}

// InTx runs fn inside a single transaction. Any error from fn rolls the
// whole transaction back, so partial writes are never visible; the
// commit happens only when fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", models.ErrConnection, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return Translate(err)
	}
	return nil
}

// VerifySchema checks that every required table exists, failing with
// ErrSchema on the first one missing. The core assumes an external
// collaborator created the schema before it runs.
func (db *DB) VerifySchema(ctx context.Context, tables ...string) error {
	const query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`
	for _, table := range tables {
		var n int
		if err := db.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
			return Translate(err)
		}
		if n == 0 {
			return fmt.Errorf("%w: missing table %s", models.ErrSchema, table)
		}
	}
	return nil
}

// InitSchema executes the bootstrap DDL statement by statement. It is a
// convenience for local runs; production deployments create the schema
// out of band.
func (db *DB) InitSchema(ctx context.Context, schemaSQL string) error {
	statements := splitSQLStatements(schemaSQL)

	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute statement %d: %w", i+1, err)
		}
	}

	log.Println("Database schema initialized successfully")
	return nil
}

// splitSQLStatements strips comment lines and splits the DDL on
// semicolons.
func splitSQLStatements(schemaSQL string) []string {
	lines := strings.Split(schemaSQL, "\n")
	var cleaned []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
			cleaned = append(cleaned, line)
		}
	}

	var result []string
	for _, stmt := range strings.Split(strings.Join(cleaned, "\n"), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}
