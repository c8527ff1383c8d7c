package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marketloop/shopdb/internal/db"
	"github.com/marketloop/shopdb/internal/metrics"
	"github.com/marketloop/shopdb/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Entity enumerates the record kinds a destructive operation may target.
type Entity string

const (
	EntityUser     Entity = "user"
	EntityAddress  Entity = "address"
	EntityCategory Entity = "category"
	EntityBrand    Entity = "brand"
	EntityDiscount Entity = "discount"
	EntityProduct  Entity = "product"
	EntityReview   Entity = "review"
	EntityCart     Entity = "cart"
)

// DeleteTarget identifies exactly one row of a whitelisted entity kind.
// Callers cannot supply predicate text; the statement for each kind is
// fixed and fully parameterized.
type DeleteTarget struct {
	Entity Entity
	ID     int64
}

var deleteStatements = map[Entity]string{
	EntityUser:     `DELETE FROM users WHERE id = ?`,
	EntityAddress:  `DELETE FROM addresses WHERE id = ?`,
	EntityCategory: `DELETE FROM categories WHERE id = ?`,
	EntityBrand:    `DELETE FROM brands WHERE id = ?`,
	EntityDiscount: `DELETE FROM discounts WHERE id = ?`,
	EntityProduct:  `DELETE FROM products WHERE id = ?`,
	EntityReview:   `DELETE FROM reviews WHERE id = ?`,
	EntityCart:     `DELETE FROM carts WHERE id = ?`,
}

// MutationService sequences destructive mutations behind the
// authorization gate.
type MutationService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewMutationService creates a new mutation service.
func NewMutationService(db *db.DB, metrics *metrics.AppMetrics) *MutationService {
	return &MutationService{
		db:      db,
		metrics: metrics,
	}
}

// Delete removes the targeted row on behalf of actorEmail. The admin
// check and the DELETE run in one transaction: ErrNotFound when the
// actor is unknown or nothing matched, ErrPermissionDenied when the
// actor is not an admin; in both cases the DELETE never executes. On
// success it returns the number of affected rows.
func (s *MutationService) Delete(ctx context.Context, target DeleteTarget, actorEmail string) (int64, error) {
	stmt, ok := deleteStatements[target.Entity]
	if !ok {
		return 0, fmt.Errorf("%w: unknown entity kind %q", models.ErrValidation, target.Entity)
	}

	var affected int64
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := authorizeDestructive(ctx, tx, actorEmail); err != nil {
			if errors.Is(err, models.ErrPermissionDenied) {
				s.metrics.DeletesDenied.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
					attribute.String("entity", string(target.Entity)),
				})...))
			}
			return err
		}

		start := time.Now()
		res, err := tx.ExecContext(ctx, stmt, target.ID)
		s.metrics.RecordDBQuery(ctx, "DELETE", string(target.Entity), stmt, start, err == nil)
		if err != nil {
			return db.Translate(err)
		}

		affected, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s %d", models.ErrNotFound, target.Entity, target.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
