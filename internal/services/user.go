package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/marketloop/shopdb/internal/db"
	"github.com/marketloop/shopdb/internal/metrics"
	"github.com/marketloop/shopdb/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// UserService handles user accounts and their addresses.
type UserService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewUserService creates a new user service.
func NewUserService(db *db.DB, metrics *metrics.AppMetrics) *UserService {
	return &UserService{
		db:      db,
		metrics: metrics,
	}
}

// NewUser is the input for CreateUser. Password is hashed before it is
// stored.
type NewUser struct {
	Email       string
	FullName    string
	Password    string
	PhoneNumber string
	IsAdmin     bool
}

// CreateUser registers a user. A duplicate email surfaces as
// ErrConstraint.
func (s *UserService) CreateUser(ctx context.Context, nu NewUser) (*models.User, error) {
	if nu.Email == "" || nu.FullName == "" || nu.Password == "" {
		return nil, fmt.Errorf("%w: email, full name and password are required", models.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	start := time.Now()
	query := `INSERT INTO users (email, full_name, password_hash, phone_number, is_admin) VALUES (?, ?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, nu.Email, nu.FullName, string(hash), nu.PhoneNumber, nu.IsAdmin)
	s.metrics.RecordDBQuery(ctx, "INSERT", "users", query, start, err == nil)
	if err != nil {
		return nil, db.Translate(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user ID: %w", err)
	}

	now := time.Now()
	return &models.User{
		ID:          id,
		Email:       nu.Email,
		FullName:    nu.FullName,
		PhoneNumber: nu.PhoneNumber,
		IsAdmin:     nu.IsAdmin,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// UserUpdate carries the updatable user columns. Nil fields are left
// untouched; the admin flag is deliberately not updatable here.
type UserUpdate struct {
	FullName    *string
	PhoneNumber *string
	Password    *string
}

// UpdateUser applies the given changes and stamps updated_at in the same
// atomic write. The column set is fixed; callers cannot extend it.
func (s *UserService) UpdateUser(ctx context.Context, email string, upd UserUpdate) error {
	assignments := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)

	if upd.FullName != nil {
		if *upd.FullName == "" {
			return fmt.Errorf("%w: full name cannot be empty", models.ErrValidation)
		}
		assignments = append(assignments, "full_name = ?")
		args = append(args, *upd.FullName)
	}
	if upd.PhoneNumber != nil {
		assignments = append(assignments, "phone_number = ?")
		args = append(args, *upd.PhoneNumber)
	}
	if upd.Password != nil {
		if *upd.Password == "" {
			return fmt.Errorf("%w: password cannot be empty", models.ErrValidation)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*upd.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		assignments = append(assignments, "password_hash = ?")
		args = append(args, string(hash))
	}
	if len(assignments) == 0 {
		return fmt.Errorf("%w: no fields to update", models.ErrValidation)
	}

	args = append(args, time.Now().UTC(), email)
	query := `UPDATE users SET ` + strings.Join(assignments, ", ") + `, updated_at = ? WHERE email = ?`

	start := time.Now()
	result, err := s.db.ExecContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "users", query, start, err == nil)
	if err != nil {
		return db.Translate(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: user %s", models.ErrNotFound, email)
	}
	return nil
}

const userByEmailQuery = `SELECT id, email, full_name, password_hash, phone_number, is_admin, created_at, updated_at FROM users WHERE email = ?`

// GetUserByEmail returns a user by email.
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	start := time.Now()
	err := s.db.QueryRowContext(ctx, userByEmailQuery, email).Scan(
		&user.ID, &user.Email, &user.FullName, &user.PasswordHash,
		&user.PhoneNumber, &user.IsAdmin, &user.CreatedAt, &user.UpdatedAt,
	)
	s.metrics.RecordDBQuery(ctx, "SELECT", "users", userByEmailQuery, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, email)
	}
	if err != nil {
		return nil, db.Translate(err)
	}
	return &user, nil
}

// NewAddress is the input for AddAddress.
type NewAddress struct {
	UserID   int64
	PostCode string
	Street   string
	Num      string
	City     string
}

// AddAddress attaches a delivery address to a user. An unknown user
// surfaces as ErrConstraint through the foreign key.
func (s *UserService) AddAddress(ctx context.Context, na NewAddress) (*models.Address, error) {
	if na.UserID == 0 || na.City == "" || na.Street == "" {
		return nil, fmt.Errorf("%w: user ID, street and city are required", models.ErrValidation)
	}

	start := time.Now()
	query := `INSERT INTO addresses (user_id, post_code, street, num, city) VALUES (?, ?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, na.UserID, na.PostCode, na.Street, na.Num, na.City)
	s.metrics.RecordDBQuery(ctx, "INSERT", "addresses", query, start, err == nil)
	if err != nil {
		return nil, db.Translate(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get address ID: %w", err)
	}

	now := time.Now()
	return &models.Address{
		ID:        id,
		UserID:    na.UserID,
		PostCode:  na.PostCode,
		Street:    na.Street,
		Num:       na.Num,
		City:      na.City,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
