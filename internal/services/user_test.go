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
	"golang.org/x/crypto/bcrypt"
)

func TestCreateUser(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewUserService(database, m)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (email, full_name, password_hash, phone_number, is_admin) VALUES (?, ?, ?, ?, ?)`)).
		WithArgs("alice@example.com", "Alice Smith", sqlmock.AnyArg(), "555-0100", false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user, err := svc.CreateUser(context.Background(), NewUser{
		Email:       "alice@example.com",
		FullName:    "Alice Smith",
		Password:    "s3cret",
		PhoneNumber: "555-0100",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.False(t, user.IsAdmin)
	assert.Empty(t, user.PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserMissingFields(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewUserService(database, m)

	tests := []NewUser{
		{FullName: "Alice", Password: "pw"},
		{Email: "a@b.com", Password: "pw"},
		{Email: "a@b.com", FullName: "Alice"},
	}
	for _, nu := range tests {
		_, err := svc.CreateUser(context.Background(), nu)
		assert.ErrorIs(t, err, models.ErrValidation)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUser(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewUserService(database, m)

	name := "Alice Jones"
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET full_name = ?, updated_at = ? WHERE email = ?`)).
		WithArgs(name, sqlmock.AnyArg(), "alice@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := svc.UpdateUser(context.Background(), "alice@example.com", UserUpdate{FullName: &name})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUserNoFields(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewUserService(database, m)

	err := svc.UpdateUser(context.Background(), "alice@example.com", UserUpdate{})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUserEmptyValues(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewUserService(database, m)

	empty := ""
	err := svc.UpdateUser(context.Background(), "alice@example.com", UserUpdate{FullName: &empty})
	assert.ErrorIs(t, err, models.ErrValidation)

	err = svc.UpdateUser(context.Background(), "alice@example.com", UserUpdate{Password: &empty})
	assert.ErrorIs(t, err, models.ErrValidation)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUserUnknown(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewUserService(database, m)

	phone := "555-0199"
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET phone_number = ?, updated_at = ? WHERE email = ?`)).
		WithArgs(phone, sqlmock.AnyArg(), "ghost@example.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := svc.UpdateUser(context.Background(), "ghost@example.com", UserUpdate{PhoneNumber: &phone})
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmail(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewUserService(database, m)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(userByEmailQuery)).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "password_hash", "phone_number", "is_admin", "created_at", "updated_at"}).
			AddRow(1, "alice@example.com", "Alice Smith", string(hash), "555-0100", true, now, now))

	user, err := svc.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByEmailUnknown(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewUserService(database, m)

	mock.ExpectQuery(regexp.QuoteMeta(userByEmailQuery)).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "full_name", "password_hash", "phone_number", "is_admin", "created_at", "updated_at"}))

	_, err := svc.GetUserByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddAddress(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewUserService(database, m)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO addresses (user_id, post_code, street, num, city) VALUES (?, ?, ?, ?, ?)`)).
		WithArgs(int64(1), "10115", "Invalidenstr.", "44", "Berlin").
		WillReturnResult(sqlmock.NewResult(3, 1))

	addr, err := svc.AddAddress(context.Background(), NewAddress{
		UserID:   1,
		PostCode: "10115",
		Street:   "Invalidenstr.",
		Num:      "44",
		City:     "Berlin",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), addr.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddAddressMissingFields(t *testing.T) {
	database, mock, m := newMockDeps(t)
	svc := NewUserService(database, m)

	_, err := svc.AddAddress(context.Background(), NewAddress{UserID: 1, City: "Berlin"})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}
