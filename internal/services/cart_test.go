package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/marketloop/shopdb/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const countCartItemsStmt = `SELECT COUNT(*) FROM cart_items WHERE cart_id = ?`

func TestCreateCart(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewCartService(database, m)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO carts (user_email, total_cost) VALUES (?, 0)`)).
		WithArgs("alice@example.com").
		WillReturnResult(sqlmock.NewResult(7, 1))

	cart, err := svc.CreateCart(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(7), cart.ID)
	assert.Equal(t, "alice@example.com", cart.UserEmail)
	assert.Equal(t, 0.0, cart.TotalCost)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCartMissingEmail(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewCartService(database, m)

	_, err := svc.CreateCart(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItemInvalidQuantity(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewCartService(database, m)

	for _, qty := range []int{0, -3} {
		err := svc.AddItem(context.Background(), 7, 1, qty)
		assert.ErrorIs(t, err, models.ErrValidation)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItemNewLine(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewCartService(database, m)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockOpenCartStmt)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"purchased"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta(productExistsQuery)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(findCartItemQuery)).
		WithArgs(int64(7), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quantity"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO cart_items (cart_id, product_id, quantity) VALUES (?, ?, ?)`)).
		WithArgs(int64(7), int64(1), 2).
		WillReturnResult(sqlmock.NewResult(10, 1))
	expectRecompute(mock, 7, 200.0)
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(countCartItemsStmt)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := svc.AddItem(context.Background(), 7, 1, 2)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItemMergesExistingLine(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewCartService(database, m)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockOpenCartStmt)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"purchased"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta(productExistsQuery)).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta(findCartItemQuery)).
		WithArgs(int64(7), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quantity"}).AddRow(10, 2))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE cart_items SET quantity = quantity + ? WHERE id = ?`)).
		WithArgs(3, int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRecompute(mock, 7, 500.0)
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(countCartItemsStmt)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := svc.AddItem(context.Background(), 7, 1, 3)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItemUnknownProduct(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewCartService(database, m)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockOpenCartStmt)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"purchased"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta(productExistsQuery)).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := svc.AddItem(context.Background(), 7, 99, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddItemToPurchasedCart(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewCartService(database, m)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockOpenCartStmt)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"purchased"}).AddRow(true))
	mock.ExpectRollback()

	err := svc.AddItem(context.Background(), 7, 1, 1)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveItem(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewCartService(database, m)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockOpenCartStmt)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"purchased"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?`)).
		WithArgs(int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectRecompute(mock, 7, 0)
	mock.ExpectCommit()
	mock.ExpectQuery(regexp.QuoteMeta(countCartItemsStmt)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	err := svc.RemoveItem(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveItemNotInCart(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewCartService(database, m)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockOpenCartStmt)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"purchased"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?`)).
		WithArgs(int64(7), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := svc.RemoveItem(context.Background(), 7, 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartDetails(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewCartService(database, m)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(cartQuery)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_email", "total_cost", "created_at", "updated_at"}).
			AddRow(7, "alice@example.com", 240.0, now, now))
	mock.ExpectQuery(regexp.QuoteMeta(cartLinesQuery)).
		WithArgs(sqlmock.AnyArg(), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "name", "quantity", "price", "paid_price"}).
			AddRow(1, "Desk Lamp", 2, 100.0, 100.0).
			AddRow(2, "Mouse Pad", 1, 50.0, 40.0))

	details, err := svc.CartDetails(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 240.0, details.Cart.TotalCost)
	require.Len(t, details.Lines, 2)
	assert.Equal(t, 100.0, details.Lines[0].PaidPrice)
	assert.Equal(t, 40.0, details.Lines[1].PaidPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCartDetailsUnknownCart(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewCartService(database, m)

	mock.ExpectQuery(regexp.QuoteMeta(cartQuery)).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_email", "total_cost", "created_at", "updated_at"}))

	_, err := svc.CartDetails(context.Background(), 99)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
