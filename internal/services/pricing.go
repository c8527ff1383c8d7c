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

// PricingService computes discounted line totals and maintains the
// cached cart total.
type PricingService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewPricingService creates a new pricing service.
func NewPricingService(db *db.DB, metrics *metrics.AppMetrics) *PricingService {
	return &PricingService{
		db:      db,
		metrics: metrics,
	}
}

// LineTotal returns the effective unit price of a product at the given
// instant. A nil or expired discount falls back to the plain price; the
// computation itself never fails.
func LineTotal(price float64, discount *models.Discount, now time.Time) float64 {
	if discount == nil || discount.EndDate.Before(now) {
		return price
	}
	return price * (1 - discount.Percent/100)
}

// lockOpenCart locks the cart row for the duration of the transaction
// and reports whether mutation is still permitted. A cart referenced by
// a purchase is immutable history.
const lockOpenCartStmt = `SELECT EXISTS(SELECT 1 FROM purchases p WHERE p.cart_id = c.id) FROM carts c WHERE c.id = ? FOR UPDATE`

func lockOpenCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	var purchased bool
	err := tx.QueryRowContext(ctx, lockOpenCartStmt, cartID).Scan(&purchased)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: cart %d", models.ErrNotFound, cartID)
	}
	if err != nil {
		return db.Translate(err)
	}
	if purchased {
		return fmt.Errorf("%w: cart %d is already purchased", models.ErrInvalidState, cartID)
	}
	return nil
}

// cartTotalQuery sums discounted line totals for a cart. The comparison
// instant is bound as a parameter so every line in one recomputation
// sees the same clock, never a per-row CURRENT_TIMESTAMP.
const cartTotalQuery = `
	SELECT COALESCE(SUM(
		CASE
			WHEN p.discount_id IS NOT NULL AND d.end_date >= ? THEN
				p.price * (1 - d.percent / 100) * ci.quantity
			ELSE
				p.price * ci.quantity
		END
	), 0)
	FROM cart_items ci
	JOIN products p ON ci.product_id = p.id
	LEFT JOIN discounts d ON p.discount_id = d.id
	WHERE ci.cart_id = ?
`

const writeCartTotalStmt = `UPDATE carts SET total_cost = ?, updated_at = ? WHERE id = ?`

// recomputeCartTotalTx recomputes the full cart total from its line
// items and writes it back, all on the caller's transaction. An empty
// cart totals 0.
func recomputeCartTotalTx(ctx context.Context, tx *sql.Tx, cartID int64, now time.Time) (float64, error) {
	if err := lockOpenCart(ctx, tx, cartID); err != nil {
		return 0, err
	}

	var total float64
	if err := tx.QueryRowContext(ctx, cartTotalQuery, now, cartID).Scan(&total); err != nil {
		return 0, db.Translate(err)
	}

	if _, err := tx.ExecContext(ctx, writeCartTotalStmt, total, now, cartID); err != nil {
		return 0, db.Translate(err)
	}
	return total, nil
}

// RecomputeCartTotal recomputes and persists the cart's total in one
// transaction, so no concurrent item mutation can interleave between the
// sum and the write. It returns the new total.
func (s *PricingService) RecomputeCartTotal(ctx context.Context, cartID int64) (float64, error) {
	var total float64
	start := time.Now()
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		t, err := recomputeCartTotalTx(ctx, tx, cartID, time.Now().UTC())
		if err != nil {
			return err
		}
		total = t
		return nil
	})
	s.metrics.RecordDBQuery(ctx, "UPDATE", "carts", writeCartTotalStmt, start, err == nil)
	if err != nil {
		return 0, err
	}

	s.metrics.CartRecomputes.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("cart_id", cartID),
	})...))
	return total, nil
}
