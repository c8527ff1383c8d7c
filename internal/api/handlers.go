package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/marketloop/shopdb/internal/db"
	"github.com/marketloop/shopdb/internal/metrics"
	"github.com/marketloop/shopdb/internal/middleware"
	"github.com/marketloop/shopdb/internal/models"
	"github.com/marketloop/shopdb/internal/services"
	"github.com/marketloop/shopdb/pkg/config"
)

// App holds application dependencies.
type App struct {
	config   *config.Config
	db       *db.DB
	metrics  *metrics.AppMetrics
	users    *services.UserService
	products *services.ProductService
	carts    *services.CartService
	pricing  *services.PricingService
	orders   *services.OrderService
	mutation *services.MutationService
}

// NewApp creates a new application instance.
func NewApp(
	cfg *config.Config,
	database *db.DB,
	m *metrics.AppMetrics,
	us *services.UserService,
	ps *services.ProductService,
	cs *services.CartService,
	prs *services.PricingService,
	ors *services.OrderService,
	ms *services.MutationService,
) *App {
	return &App{
		config:   cfg,
		db:       database,
		metrics:  m,
		users:    us,
		products: ps,
		carts:    cs,
		pricing:  prs,
		orders:   ors,
		mutation: ms,
	}
}

// SetupRoutes configures the HTTP routes.
func (a *App) SetupRoutes(r *mux.Router) {
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.RecoveryMiddleware)
	r.Use(middleware.MetricsMiddleware(a.metrics))

	api := r.PathPrefix("/api/v1").Subrouter()

	// Users
	api.HandleFunc("/users", a.CreateUserHandler).Methods("POST")
	api.HandleFunc("/users/{email}", a.GetUserHandler).Methods("GET")
	api.HandleFunc("/users/{email}", a.UpdateUserHandler).Methods("PATCH")
	api.HandleFunc("/users/{email}/purchases", a.PurchaseHistoryHandler).Methods("GET")
	api.HandleFunc("/addresses", a.AddAddressHandler).Methods("POST")

	// Catalog
	api.HandleFunc("/products", a.CreateProductHandler).Methods("POST")
	api.HandleFunc("/products", a.ListProductsHandler).Methods("GET")
	api.HandleFunc("/products/{id}", a.GetProductHandler).Methods("GET")
	api.HandleFunc("/products/{id}/reviews", a.CreateReviewHandler).Methods("POST")
	api.HandleFunc("/products/{id}/reviews", a.ListReviewsHandler).Methods("GET")
	api.HandleFunc("/discounts", a.CreateDiscountHandler).Methods("POST")
	api.HandleFunc("/categories", a.CreateCategoryHandler).Methods("POST")
	api.HandleFunc("/brands", a.CreateBrandHandler).Methods("POST")

	// Carts
	api.HandleFunc("/carts", a.CreateCartHandler).Methods("POST")
	api.HandleFunc("/carts/{id}", a.CartDetailsHandler).Methods("GET")
	api.HandleFunc("/carts/{id}/items", a.AddCartItemHandler).Methods("POST")
	api.HandleFunc("/carts/{id}/items/{productID}", a.RemoveCartItemHandler).Methods("DELETE")
	api.HandleFunc("/carts/{id}/total", a.RecomputeTotalHandler).Methods("POST")
	api.HandleFunc("/carts/{id}/state", a.OrderStateHandler).Methods("GET")
	api.HandleFunc("/carts/{id}/checkout", a.CheckoutHandler).Methods("POST")

	// Fulfillment
	api.HandleFunc("/purchases/{paymentID}/status", a.TrackOrderHandler).Methods("GET")
	api.HandleFunc("/purchases/{paymentID}/transport", a.TrackTransportHandler).Methods("GET")
	api.HandleFunc("/purchases/{paymentID}/dispatch", a.DispatchHandler).Methods("POST")
	api.HandleFunc("/purchases/{paymentID}/delivery", a.ConfirmDeliveryHandler).Methods("POST")

	// Destructive mutations, gated by the admin check
	api.HandleFunc("/admin/{entity}/{id}", a.DeleteHandler).Methods("DELETE")

	// Health
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
}

// HealthHandler handles health check requests.
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// CreateUserHandler handles POST /api/v1/users.
func (a *App) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := a.users.CreateUser(r.Context(), services.NewUser{
		Email:       req.Email,
		FullName:    req.FullName,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
		IsAdmin:     req.IsAdmin,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// GetUserHandler handles GET /api/v1/users/{email}.
func (a *App) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := a.users.GetUserByEmail(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateUserHandler handles PATCH /api/v1/users/{email}.
func (a *App) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName    *string `json:"full_name"`
		PhoneNumber *string `json:"phone_number"`
		Password    *string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := a.users.UpdateUser(r.Context(), mux.Vars(r)["email"], services.UserUpdate{
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// PurchaseHistoryHandler handles GET /api/v1/users/{email}/purchases.
func (a *App) PurchaseHistoryHandler(w http.ResponseWriter, r *http.Request) {
	history, err := a.orders.PurchaseHistory(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// AddAddressHandler handles POST /api/v1/addresses.
func (a *App) AddAddressHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   int64  `json:"user_id"`
		PostCode string `json:"post_code"`
		Street   string `json:"street"`
		Num      string `json:"num"`
		City     string `json:"city"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	address, err := a.users.AddAddress(r.Context(), services.NewAddress{
		UserID:   req.UserID,
		PostCode: req.PostCode,
		Street:   req.Street,
		Num:      req.Num,
		City:     req.City,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, address)
}

// CreateProductHandler handles POST /api/v1/products.
func (a *App) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string  `json:"name"`
		Price         float64 `json:"price"`
		StockQuantity int     `json:"stock_quantity"`
		CategoryID    *int64  `json:"category_id"`
		BrandID       *int64  `json:"brand_id"`
		DiscountID    *int64  `json:"discount_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	product, err := a.products.CreateProduct(r.Context(), services.NewProduct{
		Name:          req.Name,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
		CategoryID:    req.CategoryID,
		BrandID:       req.BrandID,
		DiscountID:    req.DiscountID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

// ListProductsHandler handles GET /api/v1/products.
func (a *App) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil {
			offset = parsed
		}
	}

	products, err := a.products.ListProducts(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GetProductHandler handles GET /api/v1/products/{id}.
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	product, err := a.products.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// CreateReviewHandler handles POST /api/v1/products/{id}/reviews.
func (a *App) CreateReviewHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.CreateReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	review, err := a.products.AddReview(r.Context(), id, req.UserEmail, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

// ListReviewsHandler handles GET /api/v1/products/{id}/reviews.
func (a *App) ListReviewsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reviews, err := a.products.ProductReviews(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// CreateDiscountHandler handles POST /api/v1/discounts.
func (a *App) CreateDiscountHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Percent float64   `json:"percent"`
		EndDate time.Time `json:"end_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	discount, err := a.products.CreateDiscount(r.Context(), req.Percent, req.EndDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, discount)
}

// CreateCategoryHandler handles POST /api/v1/categories.
func (a *App) CreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	category, err := a.products.CreateCategory(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

// CreateBrandHandler handles POST /api/v1/brands.
func (a *App) CreateBrandHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	brand, err := a.products.CreateBrand(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, brand)
}

// CreateCartHandler handles POST /api/v1/carts.
func (a *App) CreateCartHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserEmail string `json:"user_email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cart, err := a.carts.CreateCart(r.Context(), req.UserEmail)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cart)
}

// CartDetailsHandler handles GET /api/v1/carts/{id}.
func (a *App) CartDetailsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	details, err := a.carts.CartDetails(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// AddCartItemHandler handles POST /api/v1/carts/{id}/items.
func (a *App) AddCartItemHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.AddCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := a.carts.AddItem(r.Context(), id, req.ProductID, req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

// RemoveCartItemHandler handles DELETE /api/v1/carts/{id}/items/{productID}.
func (a *App) RemoveCartItemHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	productID, ok := pathID(w, r, "productID")
	if !ok {
		return
	}

	if err := a.carts.RemoveItem(r.Context(), id, productID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// RecomputeTotalHandler handles POST /api/v1/carts/{id}/total.
func (a *App) RecomputeTotalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	total, err := a.pricing.RecomputeCartTotal(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"total_cost": total})
}

// OrderStateHandler handles GET /api/v1/carts/{id}/state.
func (a *App) OrderStateHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	state, err := a.orders.OrderState(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.OrderState{"state": state})
}

// CheckoutHandler handles POST /api/v1/carts/{id}/checkout.
func (a *App) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	purchase, err := a.orders.Checkout(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchase)
}

// TrackOrderHandler handles GET /api/v1/purchases/{paymentID}/status.
func (a *App) TrackOrderHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r, "paymentID")
	if !ok {
		return
	}
	tracking, err := a.orders.TrackOrderStatus(r.Context(), paymentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tracking)
}

// TrackTransportHandler handles GET /api/v1/purchases/{paymentID}/transport.
func (a *App) TrackTransportHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r, "paymentID")
	if !ok {
		return
	}
	transport, err := a.orders.TrackTransportStatus(r.Context(), paymentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transport)
}

// DispatchHandler handles POST /api/v1/purchases/{paymentID}/dispatch.
func (a *App) DispatchHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r, "paymentID")
	if !ok {
		return
	}
	var req struct {
		Driver   string     `json:"driver"`
		Vehicle  string     `json:"vehicle"`
		SendDate *time.Time `json:"send_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sendAt := time.Now().UTC()
	if req.SendDate != nil {
		sendAt = *req.SendDate
	}

	transport, err := a.orders.DispatchPurchase(r.Context(), paymentID, req.Driver, req.Vehicle, sendAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, transport)
}

// ConfirmDeliveryHandler handles POST /api/v1/purchases/{paymentID}/delivery.
func (a *App) ConfirmDeliveryHandler(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r, "paymentID")
	if !ok {
		return
	}
	var req struct {
		RecDate *time.Time `json:"rec_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	recAt := time.Now().UTC()
	if req.RecDate != nil {
		recAt = *req.RecDate
	}

	transport, err := a.orders.ConfirmDelivery(r.Context(), paymentID, recAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transport)
}

// deletableEntities maps URL path segments onto the delete whitelist.
var deletableEntities = map[string]services.Entity{
	"users":      services.EntityUser,
	"addresses":  services.EntityAddress,
	"categories": services.EntityCategory,
	"brands":     services.EntityBrand,
	"discounts":  services.EntityDiscount,
	"products":   services.EntityProduct,
	"reviews":    services.EntityReview,
	"carts":      services.EntityCart,
}

// DeleteHandler handles DELETE /api/v1/admin/{entity}/{id}. The acting
// user is taken from the X-Actor-Email header and must be an admin.
func (a *App) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	entity, ok := deletableEntities[vars["entity"]]
	if !ok {
		http.Error(w, "Unknown entity", http.StatusBadRequest)
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	actorEmail := r.Header.Get("X-Actor-Email")
	if actorEmail == "" {
		http.Error(w, "X-Actor-Email header is required", http.StatusBadRequest)
		return
	}

	affected, err := a.mutation.Delete(r.Context(), services.DeleteTarget{Entity: entity, ID: id}, actorEmail)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": affected})
}

// pathID parses a numeric path variable, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
