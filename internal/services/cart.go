package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marketloop/shopdb/internal/db"
	"github.com/marketloop/shopdb/internal/metrics"
	"github.com/marketloop/shopdb/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CartService handles cart and cart-item operations. Every item mutation
// re-runs the full total recomputation inside the same transaction.
type CartService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewCartService creates a new cart service.
func NewCartService(db *db.DB, metrics *metrics.AppMetrics) *CartService {
	return &CartService{
		db:      db,
		metrics: metrics,
	}
}

// CreateCart opens an empty cart for the given user.
func (s *CartService) CreateCart(ctx context.Context, userEmail string) (*models.Cart, error) {
	if userEmail == "" {
		return nil, fmt.Errorf("%w: user email is required", models.ErrValidation)
	}

	start := time.Now()
	query := `INSERT INTO carts (user_email, total_cost) VALUES (?, 0)`
	result, err := s.db.ExecContext(ctx, query, userEmail)
	s.metrics.RecordDBQuery(ctx, "INSERT", "carts", query, start, err == nil)
	if err != nil {
		return nil, db.Translate(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get cart ID: %w", err)
	}

	now := time.Now()
	return &models.Cart{
		ID:        id,
		UserEmail: userEmail,
		TotalCost: 0,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

const productExistsQuery = `SELECT EXISTS(SELECT 1 FROM products WHERE id = ?)`

const findCartItemQuery = `SELECT id, quantity FROM cart_items WHERE cart_id = ? AND product_id = ?`

// AddItem adds quantity of a product to an open cart, merging with an
// existing line for the same product, and recomputes the cart total in
// the same transaction.
func (s *CartService) AddItem(ctx context.Context, cartID, productID int64, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1, got %d", models.ErrValidation, quantity)
	}

	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := lockOpenCart(ctx, tx, cartID); err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, productExistsQuery, productID).Scan(&exists); err != nil {
			return db.Translate(err)
		}
		if !exists {
			return fmt.Errorf("%w: product %d", models.ErrNotFound, productID)
		}

		var itemID int64
		var existingQty int
		start := time.Now()
		err := tx.QueryRowContext(ctx, findCartItemQuery, cartID, productID).Scan(&itemID, &existingQty)
		switch {
		case err == sql.ErrNoRows:
			insert := `INSERT INTO cart_items (cart_id, product_id, quantity) VALUES (?, ?, ?)`
			_, err = tx.ExecContext(ctx, insert, cartID, productID, quantity)
			s.metrics.RecordDBQuery(ctx, "INSERT", "cart_items", insert, start, err == nil)
			if err != nil {
				return db.Translate(err)
			}
		case err != nil:
			return db.Translate(err)
		default:
			update := `UPDATE cart_items SET quantity = quantity + ? WHERE id = ?`
			_, err = tx.ExecContext(ctx, update, quantity, itemID)
			s.metrics.RecordDBQuery(ctx, "UPDATE", "cart_items", update, start, err == nil)
			if err != nil {
				return db.Translate(err)
			}
		}

		_, err = recomputeCartTotalTx(ctx, tx, cartID, time.Now().UTC())
		return err
	})
	if err != nil {
		return err
	}

	s.recordCartItemsCount(ctx, cartID)
	return nil
}

// RemoveItem deletes a product line from an open cart and recomputes the
// total in the same transaction.
func (s *CartService) RemoveItem(ctx context.Context, cartID, productID int64) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := lockOpenCart(ctx, tx, cartID); err != nil {
			return err
		}

		start := time.Now()
		query := `DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?`
		res, err := tx.ExecContext(ctx, query, cartID, productID)
		s.metrics.RecordDBQuery(ctx, "DELETE", "cart_items", query, start, err == nil)
		if err != nil {
			return db.Translate(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: product %d in cart %d", models.ErrNotFound, productID, cartID)
		}

		_, err = recomputeCartTotalTx(ctx, tx, cartID, time.Now().UTC())
		return err
	})
	if err != nil {
		return err
	}

	s.recordCartItemsCount(ctx, cartID)
	return nil
}

const cartQuery = `SELECT id, user_email, total_cost, created_at, updated_at FROM carts WHERE id = ?`

const cartLinesQuery = `
	SELECT ci.product_id, p.name, ci.quantity, p.price,
	       CASE
	           WHEN p.discount_id IS NOT NULL AND d.end_date >= ? THEN
	               p.price * (1 - d.percent / 100)
	           ELSE
	               p.price
	       END AS paid_price
	FROM cart_items ci
	JOIN products p ON ci.product_id = p.id
	LEFT JOIN discounts d ON p.discount_id = d.id
	WHERE ci.cart_id = ?
`

// CartDetails returns the cart with its priced lines. An unknown cart ID
// is ErrNotFound; an existing cart with no lines is an empty result.
func (s *CartService) CartDetails(ctx context.Context, cartID int64) (*models.CartDetails, error) {
	var cart models.Cart
	start := time.Now()
	err := s.db.QueryRowContext(ctx, cartQuery, cartID).Scan(
		&cart.ID, &cart.UserEmail, &cart.TotalCost, &cart.CreatedAt, &cart.UpdatedAt,
	)
	s.metrics.RecordDBQuery(ctx, "SELECT", "carts", cartQuery, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: cart %d", models.ErrNotFound, cartID)
	}
	if err != nil {
		return nil, db.Translate(err)
	}

	start = time.Now()
	rows, err := s.db.QueryContext(ctx, cartLinesQuery, time.Now().UTC(), cartID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", cartLinesQuery, start, err == nil)
	if err != nil {
		return nil, db.Translate(err)
	}
	defer rows.Close()

	var lines []models.CartLine
	for rows.Next() {
		var line models.CartLine
		if err := rows.Scan(&line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice, &line.PaidPrice); err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Translate(err)
	}

	return &models.CartDetails{Cart: &cart, Lines: lines}, nil
}

// recordCartItemsCount updates the cart items gauge after a committed
// item mutation.
func (s *CartService) recordCartItemsCount(ctx context.Context, cartID int64) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cart_items WHERE cart_id = ?`, cartID).Scan(&count); err != nil {
		return
	}
	s.metrics.CartItemsCount.Record(ctx, count, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("cart_id", cartID),
	})...))
}
