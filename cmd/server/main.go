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

	"carelink/config"
	"carelink/internal/database"
	"carelink/internal/jobs"
	"carelink/internal/relay"
	"carelink/internal/router"
	"carelink/internal/service"
	"carelink/pkg/cloudinary"
	"carelink/pkg/payment"
)

func main() {
	cfg := config.Load()
	for _, w := range cfg.Warnings() {
		log.Printf("[CONFIG] WARNING: %s", w)
	}
	db, err := database.NewDB(&cfg.Database, !cfg.IsProduction())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var cloud cloudinary.Client
	if cfg.Cloudinary.CloudName != "" {
		cloud, err = cloudinary.NewClientFromParams(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
		if err != nil {
			log.Fatalf("cloudinary: %v", err)
		}
	} else {
		log.Printf("[UPLOAD] chat uploads disabled: set CLOUDINARY_CLOUD_NAME to enable")
	}

	var push service.PushSender
	if fcm := service.NewFCMService(cfg.Firebase.ServiceAccountPath); fcm != nil {
		push = fcm
		log.Printf("[FCM] Push notifications enabled")
	} else if cfg.Firebase.ServiceAccountPath != "" {
		log.Printf("[FCM] Push notifications disabled: failed to init (check service account file)")
	} else {
		log.Printf("[FCM] Push notifications disabled: set FIREBASE_SERVICE_ACCOUNT_PATH to enable")
	}

	provider := paymentProvider(cfg.Payment)
	hub := relay.NewHub(64)
	svc := router.NewServices(cfg, db, hub, provider, push, cloud)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	reconciler := jobs.NewPaymentReconcileJob(svc.Payments, cfg.Payment.ReconcileInterval)
	reconciler.Start(ctx)

	svc.Done = ctx.Done()
	engine := router.Setup(cfg, db, svc)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Printf("server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")
	reconciler.Stop()
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server shutdown:", err)
	}
	fmt.Println("server stopped")
}

func paymentProvider(cfg config.PaymentConfig) payment.Provider {
	switch cfg.Provider {
	case "checkout":
		log.Printf("[PAYMENT] using checkout provider at %s", cfg.BaseURL)
		return payment.NewCheckoutProvider(payment.CheckoutConfig{
			BaseURL:      cfg.BaseURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Currency:     cfg.Currency,
		})
	default:
		log.Printf("[PAYMENT] using stub provider; every link is treated as paid")
		return &payment.StubProvider{BaseURL: cfg.BaseURL}
	}
}
