package main

import (
	"log"
	"time"

	"stayspot/internal/engine/webhooks"
	"stayspot/internal/pkg/logger"
	"stayspot/internal/platform/config"
	"stayspot/internal/platform/database"
	"stayspot/internal/platform/repositories"
	"stayspot/internal/workers"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	client := webhooks.NewClient(cfg.Webhooks.DeliveryTimeout, cfg.Webhooks.UserAgent)
	retrier := webhooks.NewRetrier(webhookRepo, deliveryRepo, client, cfg.Webhooks.RetryBatchSize)

	log.Printf("Starting webhook retry worker (interval %s)", cfg.Webhooks.RetryInterval)

	ticker := time.NewTicker(cfg.Webhooks.RetryInterval)
	defer ticker.Stop()

	for range ticker.C {
		workers.RetryFailedDeliveries(retrier)
	}
}
