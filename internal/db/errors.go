package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/marketloop/shopdb/internal/models"
)

// MySQL server error numbers the core distinguishes.
const (
	mysqlErrDupEntry      = 1062
	mysqlErrRowIsRef      = 1451
	mysqlErrNoRefRow      = 1452
	mysqlErrBadFieldError = 1054
	mysqlErrNoSuchTable   = 1146
	mysqlErrCheckViolated = 3819
)

// Translate maps driver-level failures onto the error taxonomy. Errors
// it does not recognize pass through unchanged so callers can still add
// context.
func Translate(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return fmt.Errorf("%w: %v", models.ErrConnection, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", models.ErrConnection, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDupEntry, mysqlErrRowIsRef, mysqlErrNoRefRow, mysqlErrCheckViolated:
			return fmt.Errorf("%w: %v", models.ErrConstraint, err)
		case mysqlErrBadFieldError, mysqlErrNoSuchTable:
			return fmt.Errorf("%w: %v", models.ErrSchema, err)
		}
	}

	return err
}
