package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/marketloop/shopdb/internal/db"
	"github.com/marketloop/shopdb/internal/metrics"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

// newMockDeps wires a sqlmock-backed pool and a noop instrument set so
// service tests can script exact statement sequences.
func newMockDeps(t *testing.T) (*db.DB, sqlmock.Sqlmock, *metrics.AppMetrics) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	m, err := metrics.New(noop.NewMeterProvider().Meter("test"), "test")
	require.NoError(t, err)

	return db.NewFromConn(conn), mock, m
}
