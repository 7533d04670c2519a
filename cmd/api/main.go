package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/go-shop-settlement/internal/cache"
	"github.com/safar/go-shop-settlement/internal/config"
	"github.com/safar/go-shop-settlement/internal/database"
	"github.com/safar/go-shop-settlement/internal/gateway"
	"github.com/safar/go-shop-settlement/internal/httpapi"
	"github.com/safar/go-shop-settlement/internal/models"
	"github.com/safar/go-shop-settlement/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("Connected to database successfully")

	if err := database.Migrate(db, cfg.Database.MigrationsPath, "up"); err != nil {
		log.Fatalf("Migrate database: %v", err)
	}

	var cartCache cache.CartCache
	if cfg.Cache.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := cache.Connect(ctx, cfg.Cache.RedisURL)
		cancel()
		if err != nil {
			log.Fatalf("Connect to redis: %v", err)
		}
		defer client.Close()
		cartCache = cache.NewRedisCache(client, cfg.Cache.TTL)
		log.Printf("Cart cache enabled")
	}

	pricing := models.Pricing{
		ShippingFee: cfg.Order.ShippingFee,
		TaxRate:     cfg.Order.TaxRate,
	}
	payments := service.NewPaymentService(db, gateway.NewClient(gateway.Stub{}, cfg.Gateway))

	router := httpapi.NewRouter(httpapi.Services{
		Carts:    service.NewCartService(db, cartCache),
		Orders:   service.NewOrderService(db, payments, cartCache, pricing),
		Payments: payments,
		Ledgers:  service.NewLedgerService(db),
	}, cfg.Server.WriteTimeout)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
