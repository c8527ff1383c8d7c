package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/marketloop/shopdb/internal/api"
	"github.com/marketloop/shopdb/internal/db"
	"github.com/marketloop/shopdb/internal/metrics"
	"github.com/marketloop/shopdb/internal/services"
	"github.com/marketloop/shopdb/pkg/config"
)

// requiredTables is the schema surface the core depends on. Bootstrap is
// an external concern; startup fails fast when any table is absent.
var requiredTables = []string{
	"users", "addresses", "categories", "brands", "discounts",
	"products", "reviews", "carts", "cart_items", "purchases",
	"transport_status",
}

func main() {
	cfg := config.LoadConfig()

	ctx := context.Background()
	appMetrics, meterProvider, err := metrics.Init(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down meter provider: %v", err)
		}
	}()

	database, err := db.NewDB(cfg.GetDSN(), cfg.OTELServiceName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run the bootstrap DDL when schema.sql is present; otherwise
	// assume an external collaborator created the schema already.
	if schemaSQL, err := os.ReadFile("schema.sql"); err == nil {
		if err := database.InitSchema(ctx, string(schemaSQL)); err != nil {
			log.Printf("Warning: Could not initialize schema: %v", err)
		}
	}

	if err := database.VerifySchema(ctx, requiredTables...); err != nil {
		log.Fatalf("Schema verification failed: %v", err)
	}

	userService := services.NewUserService(database, appMetrics)
	productService := services.NewProductService(database, appMetrics)
	cartService := services.NewCartService(database, appMetrics)
	pricingService := services.NewPricingService(database, appMetrics)
	orderService := services.NewOrderService(database, appMetrics)
	mutationService := services.NewMutationService(database, appMetrics)

	app := api.NewApp(cfg, database, appMetrics,
		userService, productService, cartService,
		pricingService, orderService, mutationService)

	router := mux.NewRouter()
	app.SetupRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.AppPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
