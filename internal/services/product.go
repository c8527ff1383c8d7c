package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marketloop/shopdb/internal/db"
	"github.com/marketloop/shopdb/internal/metrics"
	"github.com/marketloop/shopdb/internal/models"
)

// ProductService handles the catalog: products, discounts, categories,
// brands and product reviews.
type ProductService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewProductService creates a new product service.
func NewProductService(db *db.DB, metrics *metrics.AppMetrics) *ProductService {
	return &ProductService{
		db:      db,
		metrics: metrics,
	}
}

// NewProduct is the input for CreateProduct. Category, brand and
// discount references are optional.
type NewProduct struct {
	Name          string
	Price         float64
	StockQuantity int
	CategoryID    *int64
	BrandID       *int64
	DiscountID    *int64
}

// CreateProduct adds a catalog item. Price must be positive; dangling
// references surface as ErrConstraint.
func (s *ProductService) CreateProduct(ctx context.Context, np NewProduct) (*models.Product, error) {
	if np.Name == "" {
		return nil, fmt.Errorf("%w: product name is required", models.ErrValidation)
	}
	if np.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive, got %v", models.ErrValidation, np.Price)
	}
	if np.StockQuantity < 0 {
		return nil, fmt.Errorf("%w: stock quantity cannot be negative", models.ErrValidation)
	}

	start := time.Now()
	query := `INSERT INTO products (name, price, stock_quantity, category_id, brand_id, discount_id) VALUES (?, ?, ?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, np.Name, np.Price, np.StockQuantity, np.CategoryID, np.BrandID, np.DiscountID)
	s.metrics.RecordDBQuery(ctx, "INSERT", "products", query, start, err == nil)
	if err != nil {
		return nil, db.Translate(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get product ID: %w", err)
	}

	now := time.Now()
	return &models.Product{
		ID:            id,
		Name:          np.Name,
		Price:         np.Price,
		StockQuantity: np.StockQuantity,
		CategoryID:    np.CategoryID,
		BrandID:       np.BrandID,
		DiscountID:    np.DiscountID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

const productQuery = `SELECT id, name, price, stock_quantity, category_id, brand_id, discount_id, created_at, updated_at FROM products WHERE id = ?`

// GetProduct returns a product by ID.
func (s *ProductService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	start := time.Now()
	err := s.db.QueryRowContext(ctx, productQuery, id).Scan(
		&p.ID, &p.Name, &p.Price, &p.StockQuantity,
		&p.CategoryID, &p.BrandID, &p.DiscountID, &p.CreatedAt, &p.UpdatedAt,
	)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", productQuery, start, err == nil || err == sql.ErrNoRows)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: product %d", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, db.Translate(err)
	}
	return &p, nil
}

// ListProducts returns a paginated slice of the catalog.
func (s *ProductService) ListProducts(ctx context.Context, limit, offset int) ([]models.Product, error) {
	start := time.Now()
	query := `SELECT id, name, price, stock_quantity, category_id, brand_id, discount_id, created_at, updated_at FROM products ORDER BY id LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil)
	if err != nil {
		return nil, db.Translate(err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity, &p.CategoryID, &p.BrandID, &p.DiscountID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CreateDiscount adds a time-bounded percentage discount.
func (s *ProductService) CreateDiscount(ctx context.Context, percent float64, endDate time.Time) (*models.Discount, error) {
	if percent < 0 || percent > 100 {
		return nil, fmt.Errorf("%w: percent must be between 0 and 100, got %v", models.ErrValidation, percent)
	}

	start := time.Now()
	query := `INSERT INTO discounts (percent, end_date) VALUES (?, ?)`
	result, err := s.db.ExecContext(ctx, query, percent, endDate)
	s.metrics.RecordDBQuery(ctx, "INSERT", "discounts", query, start, err == nil)
	if err != nil {
		return nil, db.Translate(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get discount ID: %w", err)
	}

	now := time.Now()
	return &models.Discount{
		ID:        id,
		Percent:   percent,
		EndDate:   endDate,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CreateCategory adds a product category. Duplicate names surface as
// ErrConstraint.
func (s *ProductService) CreateCategory(ctx context.Context, name string) (*models.Category, error) {
	return s.createNamed(ctx, "categories", name)
}

// CreateBrand adds a brand. Duplicate names surface as ErrConstraint.
func (s *ProductService) CreateBrand(ctx context.Context, name string) (*models.Brand, error) {
	cat, err := s.createNamed(ctx, "brands", name)
	if err != nil {
		return nil, err
	}
	return &models.Brand{ID: cat.ID, Name: cat.Name, CreatedAt: cat.CreatedAt, UpdatedAt: cat.UpdatedAt}, nil
}

// createNamed inserts into one of the two fixed name-only tables.
func (s *ProductService) createNamed(ctx context.Context, table, name string) (*models.Category, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrValidation)
	}

	var query string
	switch table {
	case "categories":
		query = `INSERT INTO categories (name) VALUES (?)`
	case "brands":
		query = `INSERT INTO brands (name) VALUES (?)`
	default:
		return nil, fmt.Errorf("%w: unknown table %q", models.ErrValidation, table)
	}

	start := time.Now()
	result, err := s.db.ExecContext(ctx, query, name)
	s.metrics.RecordDBQuery(ctx, "INSERT", table, query, start, err == nil)
	if err != nil {
		return nil, db.Translate(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get ID: %w", err)
	}

	now := time.Now()
	return &models.Category{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

// AddReview posts a review for a product. Unknown product or author
// surfaces as ErrConstraint through the foreign keys.
func (s *ProductService) AddReview(ctx context.Context, productID int64, userEmail, body string) (*models.Review, error) {
	if userEmail == "" || body == "" {
		return nil, fmt.Errorf("%w: user email and body are required", models.ErrValidation)
	}

	start := time.Now()
	query := `INSERT INTO reviews (product_id, user_email, body) VALUES (?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, productID, userEmail, body)
	s.metrics.RecordDBQuery(ctx, "INSERT", "reviews", query, start, err == nil)
	if err != nil {
		return nil, db.Translate(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get review ID: %w", err)
	}

	now := time.Now()
	return &models.Review{
		ID:        id,
		ProductID: productID,
		UserEmail: userEmail,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

const productReviewsQuery = `
	SELECT r.id, r.user_email, u.full_name, r.body, r.created_at
	FROM reviews r
	JOIN users u ON r.user_email = u.email
	WHERE r.product_id = ?
	ORDER BY r.created_at DESC
`

// ProductReviews lists reviews for a product, newest first. An unknown
// product ID is ErrNotFound; a product without reviews is an empty
// result.
func (s *ProductService) ProductReviews(ctx context.Context, productID int64) ([]models.ReviewRecord, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, productExistsQuery, productID).Scan(&exists); err != nil {
		return nil, db.Translate(err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: product %d", models.ErrNotFound, productID)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, productReviewsQuery, productID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "reviews", productReviewsQuery, start, err == nil)
	if err != nil {
		return nil, db.Translate(err)
	}
	defer rows.Close()

	var reviews []models.ReviewRecord
	for rows.Next() {
		var r models.ReviewRecord
		if err := rows.Scan(&r.ID, &r.UserEmail, &r.FullName, &r.Body, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}
