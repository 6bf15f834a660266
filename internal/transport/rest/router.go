package rest

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/payapp/api"
	"github.com/frahmantamala/payapp/internal/account"
	"github.com/frahmantamala/payapp/internal/analytics"
	"github.com/frahmantamala/payapp/internal/auth"
	"github.com/frahmantamala/payapp/internal/conversion"
	"github.com/frahmantamala/payapp/internal/metrics"
	"github.com/frahmantamala/payapp/internal/paymentrequest"
	"github.com/frahmantamala/payapp/internal/settlement"
	"github.com/frahmantamala/payapp/internal/transfer"
	"github.com/frahmantamala/payapp/internal/transport/middleware"
	"github.com/frahmantamala/payapp/internal/transport/swagger"
	"github.com/frahmantamala/payapp/internal/user"
)

const APIPrefix = "/api/v1"

// Handlers groups the HTTP handlers mounted under /api/v1. A nil handler
// leaves its routes unmounted.
type Handlers struct {
	Auth           *auth.Handler
	User           *user.Handler
	Account        *account.Handler
	Conversion     *conversion.Handler
	Transfer       *transfer.Handler
	PaymentRequest *paymentrequest.Handler
	Settlement     *settlement.Handler
	Analytics      *analytics.Handler
}

type Options struct {
	DB             *sql.DB
	Idempotency    middleware.IdempotencyStore
	IdempotencyTTL time.Duration
	Validator      *middleware.OpenAPIValidator
	Logger         *slog.Logger
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	healthHandler := NewHealthHandler(opts.DB)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(metrics.Middleware)

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.Spec)
	})
	router.Handle("/swagger/*", swagger.Handler())
	router.Handle("/metrics", metrics.Handler())

	router.Route(APIPrefix, func(r chi.Router) {
		if opts.Validator != nil {
			r.Use(opts.Validator.Middleware)
		}

		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if h.Auth != nil {
			r.Route("/auth", func(sr chi.Router) {
				sr.Post("/login", h.Auth.Login)
				sr.Post("/refresh", h.Auth.RefreshToken)
				sr.Post("/logout", h.Auth.Logout)
				if h.User != nil {
					sr.Post("/register", h.User.Register)
				}
			})
		}

		if h.Conversion != nil {
			r.Get("/conversion/{from}/{to}/{amount}", h.Conversion.Convert)
		}

		// Public payer pages and gateway callbacks
		if h.PaymentRequest != nil {
			r.Get("/pay/{code}", h.PaymentRequest.View)
			r.Post("/pay/{code}", h.PaymentRequest.Pay)
		}
		if h.Settlement != nil {
			r.Get("/pay/{code}/success", h.Settlement.Success)
			r.Post("/webhooks/gateway", h.Settlement.Webhook)
		}

		if h.Auth == nil {
			return
		}

		// Protected routes that require authentication
		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)
			pr.Use(middleware.UserContext)
			pr.Use(middleware.Idempotency(opts.Idempotency, opts.IdempotencyTTL, logger))

			if h.User != nil {
				pr.Get("/users/me", h.User.GetCurrentUser)
			}
			if h.Account != nil {
				pr.Get("/accounts/me", h.Account.GetMyAccount)
			}
			if h.Analytics != nil {
				pr.Get("/dashboard", h.Analytics.Dashboard)
			}

			if h.Transfer != nil {
				pr.Route("/transfers", func(tr chi.Router) {
					tr.Post("/", h.Transfer.Send)
					tr.Get("/", h.Transfer.List)
					tr.Post("/requests", h.Transfer.RequestFunds)
					tr.Post("/requests/{id}/accept", h.Transfer.AcceptRequest)
					tr.Post("/requests/{id}/decline", h.Transfer.DeclineRequest)
					tr.Get("/{id}", h.Transfer.Get)
					tr.Post("/{id}/refund", h.Transfer.Refund)
				})
			}

			if h.PaymentRequest != nil {
				pr.Route("/payment-requests", func(pq chi.Router) {
					pq.Post("/", h.PaymentRequest.Create)
					pq.Get("/", h.PaymentRequest.List)
					if h.Analytics != nil {
						pq.Get("/funnel", h.Analytics.Funnel)
					}
					pq.Get("/{code}", h.PaymentRequest.Get)
					pq.Post("/{code}/cancel", h.PaymentRequest.Cancel)
				})
			}

			if h.Settlement != nil {
				pr.Get("/settlements/{id}/receipt", h.Settlement.Receipt)
			}
		})
	})
}
