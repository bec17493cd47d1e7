package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "stayspot/internal/api/context"
	"stayspot/internal/api/handlers"
	"stayspot/internal/api/middleware"
	"stayspot/internal/pkg/errors"
	"stayspot/internal/platform/auth"
)

type Dependencies struct {
	AuthHandler        *handlers.AuthHandler
	IntegrationHandler *handlers.IntegrationHandler
	WebhookHandler     *handlers.WebhookHandler
	IncomingHandler    *handlers.IncomingHandler
	HealthHandler      *handlers.HealthHandler
	AuthMiddleware     *middleware.AuthMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/api/v1/health", wrap(deps.HealthHandler.Check))

	// Authentication routes
	router.POST("/api/v1/auth/signup", wrap(deps.AuthHandler.Signup))
	router.POST("/api/v1/auth/login", wrap(deps.AuthHandler.Login))

	authMid := deps.AuthMiddleware
	read := middleware.RateLimit("api_read")
	write := middleware.RateLimit("api_write")

	// Integration management
	router.GET("/api/v1/integrations",
		chain(deps.IntegrationHandler.List, authMid.Handle, read))
	router.POST("/api/v1/integrations",
		chain(deps.IntegrationHandler.Create, authMid.Handle, write))
	router.GET("/api/v1/integrations/:id",
		chain(deps.IntegrationHandler.Get, authMid.Handle, read))
	router.PUT("/api/v1/integrations/:id",
		chain(deps.IntegrationHandler.Update, authMid.Handle, write))
	router.DELETE("/api/v1/integrations/:id",
		chain(deps.IntegrationHandler.Delete, authMid.Handle, write, requireRole("admin", "system_admin")))

	// Inbound relay: authenticated by HMAC signature, not JWT
	router.POST("/api/v1/integrations/:id/webhooks/incoming",
		chain(deps.IncomingHandler.Receive, middleware.RateLimit("incoming")))

	// Webhook management. httprouter cannot register /webhooks/statistics
	// next to /webhooks/:id, so the :id route dispatches statistics itself.
	router.GET("/api/v1/webhooks",
		chain(deps.WebhookHandler.List, authMid.Handle, read))
	router.POST("/api/v1/webhooks",
		chain(deps.WebhookHandler.Create, authMid.Handle, write))
	router.GET("/api/v1/webhooks/:id",
		chain(statsOrGet(deps.WebhookHandler), authMid.Handle, read))
	router.PUT("/api/v1/webhooks/:id",
		chain(deps.WebhookHandler.Update, authMid.Handle, write))
	router.DELETE("/api/v1/webhooks/:id",
		chain(deps.WebhookHandler.Delete, authMid.Handle, write, requireRole("admin", "system_admin")))
	router.POST("/api/v1/webhooks/:id/test",
		chain(deps.WebhookHandler.Test, authMid.Handle, write))
	router.GET("/api/v1/webhooks/:id/deliveries",
		chain(deps.WebhookHandler.Deliveries, authMid.Handle, read))
	router.POST("/api/v1/webhooks/:id/deliveries/:delivery_id/retry",
		chain(deps.WebhookHandler.RetryDelivery, authMid.Handle, write))

	return router
}

func statsOrGet(h *handlers.WebhookHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
		if params.ByName("id") == "statistics" {
			h.Statistics(w, r)
			return
		}
		h.Get(w, r)
	}
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, _ := r.Context().Value(apiContext.Claims).(*auth.Claims)

			allowed := false
			if claims != nil {
				for _, role := range roles {
					if claims.Role == role {
						allowed = true
						break
					}
				}
			}

			if !allowed {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}
