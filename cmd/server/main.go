package main

import (
	"fmt"
	"log"
	"net/http"

	"stayspot/internal/api"
	"stayspot/internal/api/handlers"
	"stayspot/internal/api/middleware"
	"stayspot/internal/engine/webhooks"
	"stayspot/internal/pkg/logger"
	"stayspot/internal/platform/audit"
	"stayspot/internal/platform/auth"
	"stayspot/internal/platform/config"
	"stayspot/internal/platform/database"
	"stayspot/internal/platform/repositories"
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

	// Repositories
	companyRepo := repositories.NewCompanyRepository(db)
	userRepo := repositories.NewUserRepository(db)
	integrationRepo := repositories.NewIntegrationRepository(db)
	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	auditLogger := audit.NewLogger(db)
	client := webhooks.NewClient(cfg.Webhooks.DeliveryTimeout, cfg.Webhooks.UserAgent)
	dispatcher := webhooks.NewDispatcher(webhookRepo, integrationRepo, deliveryRepo, client, auditLogger)

	// Handlers
	authHandler := handlers.NewAuthHandler(companyRepo, userRepo, tokenSvc)
	integrationHandler := handlers.NewIntegrationHandler(integrationRepo)
	webhookHandler := handlers.NewWebhookHandler(webhookRepo, integrationRepo, deliveryRepo, dispatcher, client)
	incomingHandler := handlers.NewIncomingHandler(dispatcher)
	healthHandler := handlers.NewHealthHandler(db)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)

	// Router
	deps := &api.Dependencies{
		AuthHandler:        authHandler,
		IntegrationHandler: integrationHandler,
		WebhookHandler:     webhookHandler,
		IncomingHandler:    incomingHandler,
		HealthHandler:      healthHandler,
		AuthMiddleware:     authMiddleware,
	}
	router := api.NewRouter(deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
