package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/marketloop/shopdb/internal/db"
	"github.com/marketloop/shopdb/internal/metrics"
	"github.com/marketloop/shopdb/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OrderService drives the cart checkout and fulfillment lifecycle and
// answers the read-side tracking queries.
type OrderService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewOrderService creates a new order service.
func NewOrderService(db *db.DB, metrics *metrics.AppMetrics) *OrderService {
	return &OrderService{
		db:      db,
		metrics: metrics,
	}
}

const cartItemCountQuery = `SELECT COUNT(*) FROM cart_items WHERE cart_id = ?`

const insertPurchaseStmt = `INSERT INTO purchases (cart_id, purchased_at) VALUES (?, ?)`

// Checkout converts an open cart into a purchase. In one transaction it
// locks the cart, rejects empty or already-purchased carts, freezes the
// total at the checkout instant and inserts the purchase row. The cart
// is immutable from then on.
func (s *OrderService) Checkout(ctx context.Context, cartID int64) (*models.Purchase, error) {
	var purchase models.Purchase
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := lockOpenCart(ctx, tx, cartID); err != nil {
			return err
		}

		var items int
		if err := tx.QueryRowContext(ctx, cartItemCountQuery, cartID).Scan(&items); err != nil {
			return db.Translate(err)
		}
		if items == 0 {
			return fmt.Errorf("%w: cart %d is empty, nothing to check out", models.ErrValidation, cartID)
		}

		now := time.Now().UTC()
		total, err := recomputeCartTotalTx(ctx, tx, cartID, now)
		if err != nil {
			return err
		}

		start := time.Now()
		result, err := tx.ExecContext(ctx, insertPurchaseStmt, cartID, now)
		s.metrics.RecordDBQuery(ctx, "INSERT", "purchases", insertPurchaseStmt, start, err == nil)
		if err != nil {
			return db.Translate(err)
		}

		paymentID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get payment ID: %w", err)
		}

		purchase = models.Purchase{
			PaymentID:   paymentID,
			CartID:      cartID,
			TotalCost:   total,
			PurchasedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	attrs := s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("cart_id", cartID),
	})
	s.metrics.PurchasesCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
	s.metrics.RevenueTotal.Add(ctx, purchase.TotalCost, metric.WithAttributes(attrs...))
	log.Printf("[ORDER] checkout complete: payment_id=%d cart_id=%d total=%.2f", purchase.PaymentID, cartID, purchase.TotalCost)

	return &purchase, nil
}

const lockPurchaseQuery = `SELECT payment_id FROM purchases WHERE payment_id = ? FOR UPDATE`

const transportExistsQuery = `SELECT EXISTS(SELECT 1 FROM transport_status WHERE payment_id = ?)`

const insertTransportStmt = `INSERT INTO transport_status (payment_id, driver, vehicle, send_date) VALUES (?, ?, ?, ?)`

// DispatchPurchase creates the transport record for a purchase, moving
// it from PURCHASED to IN_TRANSIT. Dispatching twice is ErrInvalidState.
func (s *OrderService) DispatchPurchase(ctx context.Context, paymentID int64, driver, vehicle string, sendAt time.Time) (*models.TransportStatus, error) {
	if driver == "" || vehicle == "" {
		return nil, fmt.Errorf("%w: driver and vehicle are required", models.ErrValidation)
	}

	var transport models.TransportStatus
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, lockPurchaseQuery, paymentID).Scan(&id)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: purchase %d", models.ErrNotFound, paymentID)
		}
		if err != nil {
			return db.Translate(err)
		}

		var dispatched bool
		if err := tx.QueryRowContext(ctx, transportExistsQuery, paymentID).Scan(&dispatched); err != nil {
			return db.Translate(err)
		}
		if dispatched {
			return fmt.Errorf("%w: purchase %d is already dispatched", models.ErrInvalidState, paymentID)
		}

		start := time.Now()
		result, err := tx.ExecContext(ctx, insertTransportStmt, paymentID, driver, vehicle, sendAt)
		s.metrics.RecordDBQuery(ctx, "INSERT", "transport_status", insertTransportStmt, start, err == nil)
		if err != nil {
			return db.Translate(err)
		}

		transportID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get transport ID: %w", err)
		}

		transport = models.TransportStatus{
			ID:        transportID,
			PaymentID: paymentID,
			Driver:    driver,
			Vehicle:   vehicle,
			SendDate:  sendAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &transport, nil
}

const lockTransportQuery = `SELECT id, driver, vehicle, send_date, rec_date FROM transport_status WHERE payment_id = ? FOR UPDATE`

const setRecDateStmt = `UPDATE transport_status SET rec_date = ? WHERE id = ?`

// ConfirmDelivery records the receive timestamp, completing the
// lifecycle. A receive instant not strictly after the send instant is
// rejected with ErrValidation and the row stays unmodified.
func (s *OrderService) ConfirmDelivery(ctx context.Context, paymentID int64, recAt time.Time) (*models.TransportStatus, error) {
	var transport models.TransportStatus
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		transport.PaymentID = paymentID
		err := tx.QueryRowContext(ctx, lockTransportQuery, paymentID).Scan(
			&transport.ID, &transport.Driver, &transport.Vehicle, &transport.SendDate, &transport.RecDate,
		)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: no transport record for purchase %d", models.ErrNotFound, paymentID)
		}
		if err != nil {
			return db.Translate(err)
		}

		if transport.RecDate != nil {
			return fmt.Errorf("%w: purchase %d is already delivered", models.ErrInvalidState, paymentID)
		}
		if !recAt.After(transport.SendDate) {
			return fmt.Errorf("%w: receive date %s is not after send date %s",
				models.ErrValidation, recAt.Format(time.RFC3339), transport.SendDate.Format(time.RFC3339))
		}

		start := time.Now()
		_, err = tx.ExecContext(ctx, setRecDateStmt, recAt, transport.ID)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "transport_status", setRecDateStmt, start, err == nil)
		if err != nil {
			return db.Translate(err)
		}

		transport.RecDate = &recAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DeliveriesConfirmed.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int64("payment_id", paymentID),
	})...))
	return &transport, nil
}

const cartExistsQuery = `SELECT EXISTS(SELECT 1 FROM carts WHERE id = ?)`

const purchaseByCartQuery = `SELECT payment_id FROM purchases WHERE cart_id = ?`

const transportByPaymentQuery = `SELECT id, payment_id, driver, vehicle, send_date, rec_date, created_at FROM transport_status WHERE payment_id = ?`

// OrderState reports where the cart sits in the lifecycle.
func (s *OrderService) OrderState(ctx context.Context, cartID int64) (models.OrderState, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, cartExistsQuery, cartID).Scan(&exists); err != nil {
		return "", db.Translate(err)
	}
	if !exists {
		return "", fmt.Errorf("%w: cart %d", models.ErrNotFound, cartID)
	}

	var paymentID int64
	err := s.db.QueryRowContext(ctx, purchaseByCartQuery, cartID).Scan(&paymentID)
	if err == sql.ErrNoRows {
		return models.DeriveOrderState(false, nil), nil
	}
	if err != nil {
		return "", db.Translate(err)
	}

	transport, err := s.scanTransport(ctx, paymentID)
	if err != nil {
		return "", err
	}
	return models.DeriveOrderState(true, transport), nil
}

// scanTransport fetches the transport row for a purchase, nil when it
// has not been dispatched yet.
func (s *OrderService) scanTransport(ctx context.Context, paymentID int64) (*models.TransportStatus, error) {
	var t models.TransportStatus
	err := s.db.QueryRowContext(ctx, transportByPaymentQuery, paymentID).Scan(
		&t.ID, &t.PaymentID, &t.Driver, &t.Vehicle, &t.SendDate, &t.RecDate, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, db.Translate(err)
	}
	return &t, nil
}

const orderTrackingQuery = `
	SELECT p.payment_id, p.purchased_at, ts.driver, ts.vehicle, ts.send_date, ts.rec_date
	FROM purchases p
	JOIN transport_status ts ON p.payment_id = ts.payment_id
	WHERE p.payment_id = ?
`

// TrackOrderStatus returns the purchase joined with its transport
// record. A purchase that has not been dispatched has no tracking row
// yet and reports ErrNotFound.
func (s *OrderService) TrackOrderStatus(ctx context.Context, paymentID int64) (*models.OrderTracking, error) {
	var t models.OrderTracking
	start := time.Now()
	err := s.db.QueryRowContext(ctx, orderTrackingQuery, paymentID).Scan(
		&t.PaymentID, &t.PurchasedAt, &t.Driver, &t.Vehicle, &t.SendDate, &t.RecDate,
	)
	s.metrics.RecordDBQuery(ctx, "SELECT", "purchases", orderTrackingQuery, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: order %d", models.ErrNotFound, paymentID)
	}
	if err != nil {
		return nil, db.Translate(err)
	}
	return &t, nil
}

// TrackTransportStatus returns the transport record for a purchase.
// ErrNotFound, never an empty success, when there is no such record.
func (s *OrderService) TrackTransportStatus(ctx context.Context, paymentID int64) (*models.TransportStatus, error) {
	transport, err := s.scanTransport(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, fmt.Errorf("%w: no transport record for purchase %d", models.ErrNotFound, paymentID)
	}
	return transport, nil
}

const userExistsQuery = `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`

const purchaseHistoryQuery = `
	SELECT p.payment_id, p.purchased_at, c.total_cost
	FROM purchases p
	JOIN carts c ON p.cart_id = c.id
	WHERE c.user_email = ?
	ORDER BY p.purchased_at DESC
`

// PurchaseHistory lists a user's purchases, newest first. An unknown
// user is ErrNotFound; a user without purchases is an empty result.
func (s *OrderService) PurchaseHistory(ctx context.Context, userEmail string) ([]models.PurchaseRecord, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, userExistsQuery, userEmail).Scan(&exists); err != nil {
		return nil, db.Translate(err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, userEmail)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, purchaseHistoryQuery, userEmail)
	s.metrics.RecordDBQuery(ctx, "SELECT", "purchases", purchaseHistoryQuery, start, err == nil)
	if err != nil {
		return nil, db.Translate(err)
	}
	defer rows.Close()

	var history []models.PurchaseRecord
	for rows.Next() {
		var rec models.PurchaseRecord
		if err := rows.Scan(&rec.PaymentID, &rec.PurchasedAt, &rec.TotalCost); err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}
