package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/marketloop/shopdb/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{
			name: "nil passes through",
			in:   nil,
			want: nil,
		},
		{
			name: "no rows",
			in:   sql.ErrNoRows,
			want: models.ErrNotFound,
		},
		{
			name: "bad connection",
			in:   driver.ErrBadConn,
			want: models.ErrConnection,
		},
		{
			name: "deadline exceeded",
			in:   context.DeadlineExceeded,
			want: models.ErrConnection,
		},
		{
			name: "invalid mysql connection",
			in:   mysql.ErrInvalidConn,
			want: models.ErrConnection,
		},
		{
			name: "network error",
			in:   &net.OpError{Op: "dial", Err: errors.New("connection refused")},
			want: models.ErrConnection,
		},
		{
			name: "duplicate entry",
			in:   &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"},
			want: models.ErrConstraint,
		},
		{
			name: "row is referenced",
			in:   &mysql.MySQLError{Number: 1451, Message: "Cannot delete or update a parent row"},
			want: models.ErrConstraint,
		},
		{
			name: "missing referenced row",
			in:   &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"},
			want: models.ErrConstraint,
		},
		{
			name: "check constraint violated",
			in:   &mysql.MySQLError{Number: 3819, Message: "Check constraint is violated"},
			want: models.ErrConstraint,
		},
		{
			name: "unknown column",
			in:   &mysql.MySQLError{Number: 1054, Message: "Unknown column"},
			want: models.ErrSchema,
		},
		{
			name: "missing table",
			in:   &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"},
			want: models.ErrSchema,
		},
		{
			name: "wrapped no rows",
			in:   fmt.Errorf("query cart: %w", sql.ErrNoRows),
			want: models.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Translate(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestTranslateUnknownErrorPassesThrough(t *testing.T) {
	err := errors.New("something else")
	assert.Equal(t, err, Translate(err))
}
