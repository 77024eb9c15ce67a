package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shehryarbajwa/pagestitch/internal/app"
	"github.com/shehryarbajwa/pagestitch/internal/config"
)

func main() {
	log.Println("Starting pagestitch...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.Println("✓ Configuration loaded")

	// Chrome outlives any single request, so it gets the process context
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	log.Printf("⏳ Starting Chrome (%s mode)...", cfg.ChromeMode)
	pipeline, err := app.Start(rootCtx, cfg)
	if err != nil {
		log.Fatalf("Failed to start capture pipeline: %v", err)
	}
	log.Println("✓ Capture pipeline ready")

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      pipeline.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: pipeline.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on %s", cfg.ListenAddr)
		log.Printf("📍 API endpoints available at %s/v1", cfg.ListenAddr)
		log.Printf("📸 Captures: visible-area and full-page, %s deadline", cfg.CaptureTimeout)
		log.Printf("🗂️  History: %s", cfg.HistoryDir)
		log.Printf("⏱️  Rate Limit: %d captures/hour per category", cfg.RateLimitPerHour)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("\n⏳ Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}
	if err := pipeline.Close(ctx); err != nil {
		log.Printf("⚠️  Failed to release Chrome: %v", err)
	}

	log.Println("✅ Server stopped cleanly")
}
