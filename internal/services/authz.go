package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/marketloop/shopdb/internal/db"
	"github.com/marketloop/shopdb/internal/models"
)

// authorizeDestructiveStmt reads the actor's admin flag with a locking
// read so the decision and the statement it gates observe one snapshot.
// A concurrent privilege change blocks until this transaction finishes.
const authorizeDestructiveStmt = `SELECT is_admin FROM users WHERE email = ? FOR UPDATE`

// authorizeDestructive is the precondition for every destructive
// mutation. It runs on the caller's transaction, strictly before the
// gated statement; on ErrNotFound or ErrPermissionDenied the caller
// returns without executing it.
func authorizeDestructive(ctx context.Context, tx *sql.Tx, actorEmail string) error {
	var isAdmin bool
	err := tx.QueryRowContext(ctx, authorizeDestructiveStmt, actorEmail).Scan(&isAdmin)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: user %s", models.ErrNotFound, actorEmail)
	}
	if err != nil {
		return db.Translate(err)
	}
	if !isAdmin {
		return fmt.Errorf("%w: user %s is not an admin", models.ErrPermissionDenied, actorEmail)
	}
	return nil
}
