package models

import "time"

// User represents a registered shop account. Email is the identity key
// used by carts, reviews and the authorization gate.
type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	FullName     string    `json:"full_name" db:"full_name"`
	PasswordHash string    `json:"-" db:"password_hash"`
	PhoneNumber  string    `json:"phone_number,omitempty" db:"phone_number"`
	IsAdmin      bool      `json:"is_admin" db:"is_admin"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Address is a delivery address attached to a user.
type Address struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	PostCode  string    `json:"post_code" db:"post_code"`
	Street    string    `json:"street" db:"street"`
	Num       string    `json:"num" db:"num"`
	City      string    `json:"city" db:"city"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Category groups products for browsing.
type Category struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Brand is a product manufacturer.
type Brand struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Discount is a time-bounded percentage price reduction. It applies to a
// product only while EndDate has not passed.
type Discount struct {
	ID        int64     `json:"id" db:"id"`
	Percent   float64   `json:"percent" db:"percent"`
	EndDate   time.Time `json:"end_date" db:"end_date"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Product represents a catalog item. Category, brand and discount
// references are optional.
type Product struct {
	ID            int64     `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Price         float64   `json:"price" db:"price"`
	StockQuantity int       `json:"stock_quantity" db:"stock_quantity"`
	CategoryID    *int64    `json:"category_id,omitempty" db:"category_id"`
	BrandID       *int64    `json:"brand_id,omitempty" db:"brand_id"`
	DiscountID    *int64    `json:"discount_id,omitempty" db:"discount_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Review is a user-authored product review.
type Review struct {
	ID        int64     `json:"id" db:"id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	UserEmail string    `json:"user_email" db:"user_email"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ReviewRecord is the read model for product review listings, joined
// with the author's name.
type ReviewRecord struct {
	ID        int64     `json:"id"`
	UserEmail string    `json:"user_email"`
	FullName  string    `json:"full_name"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Cart is a user's pre-purchase basket. TotalCost is a derived cache of
// the discounted line totals, never a source of truth; it is rewritten
// in full whenever the cart's items change.
type Cart struct {
	ID        int64     `json:"id" db:"id"`
	UserEmail string    `json:"user_email" db:"user_email"`
	TotalCost float64   `json:"total_cost" db:"total_cost"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CartItem is a (cart, product, quantity) line. Quantity is at least 1.
type CartItem struct {
	ID        int64 `json:"id" db:"id"`
	CartID    int64 `json:"cart_id" db:"cart_id"`
	ProductID int64 `json:"product_id" db:"product_id"`
	Quantity  int   `json:"quantity" db:"quantity"`
}

// CartLine is the read model for a cart line with pricing applied.
type CartLine struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	PaidPrice   float64 `json:"paid_price"`
}

// CartDetails is a cart with its priced lines.
type CartDetails struct {
	Cart  *Cart      `json:"cart"`
	Lines []CartLine `json:"lines"`
}

// Purchase is the checkout record for a cart. A cart is consumed by at
// most one purchase; the cart row survives as the historical record of
// what was bought.
type Purchase struct {
	PaymentID   int64     `json:"payment_id" db:"payment_id"`
	CartID      int64     `json:"cart_id" db:"cart_id"`
	TotalCost   float64   `json:"total_cost"`
	PurchasedAt time.Time `json:"purchased_at" db:"purchased_at"`
}

// TransportStatus is the fulfillment record for a purchase. RecDate, once
// set, is strictly after SendDate.
type TransportStatus struct {
	ID        int64      `json:"id" db:"id"`
	PaymentID int64      `json:"payment_id" db:"payment_id"`
	Driver    string     `json:"driver" db:"driver"`
	Vehicle   string     `json:"vehicle" db:"vehicle"`
	SendDate  time.Time  `json:"send_date" db:"send_date"`
	RecDate   *time.Time `json:"rec_date,omitempty" db:"rec_date"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// OrderTracking is the read model joining a purchase with its transport
// record.
type OrderTracking struct {
	PaymentID   int64      `json:"payment_id"`
	PurchasedAt time.Time  `json:"purchased_at"`
	Driver      string     `json:"driver"`
	Vehicle     string     `json:"vehicle"`
	SendDate    time.Time  `json:"send_date"`
	RecDate     *time.Time `json:"rec_date,omitempty"`
}

// PurchaseRecord is one entry of a user's purchase history.
type PurchaseRecord struct {
	PaymentID   int64     `json:"payment_id"`
	PurchasedAt time.Time `json:"purchased_at"`
	TotalCost   float64   `json:"total_cost"`
}

// AddCartItemRequest is the body for adding an item to a cart.
type AddCartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// CreateUserRequest is the body for registering a user.
type CreateUserRequest struct {
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number"`
	IsAdmin     bool   `json:"is_admin"`
}

// CreateReviewRequest is the body for posting a product review.
type CreateReviewRequest struct {
	UserEmail string `json:"user_email"`
	Body      string `json:"body"`
}
