package main

import (
	"fmt"
	"log"
	"os"

	"github.com/marketlens/client/config"
	httpDelivery "github.com/marketlens/client/internal/delivery/http"
	"github.com/marketlens/client/internal/infrastructure/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting MarketLens media server v1.0.0")
	log.Printf("Environment: %s", cfg.Media.Environment)
	log.Printf("Port: %s", cfg.Media.Port)
	log.Printf("Dataset: %s", cfg.Media.DatasetDir)

	if _, err := os.Stat(cfg.Media.DatasetDir); err != nil {
		log.Printf("WARNING: dataset directory not readable (%v) - image requests will return 404", err)
	}

	var observer httpDelivery.ImageObserver
	if cfg.Metrics.Enabled {
		promObserver, err := metrics.NewObserver("", nil)
		if err != nil {
			log.Fatalf("Failed to register metrics: %v", err)
		}
		observer = promObserver
		log.Printf("Metrics exposed on /metrics")
	}

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(cfg.Media.DatasetDir, observer)

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Media.Port)
	log.Printf("Server listening on %s", addr)

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}
