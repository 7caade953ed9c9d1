package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/orderlane/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	orders        []RouteRegistrar
	cancellations RouteRegistrar
	refunds       RouteRegistrar
	shipments     RouteRegistrar
	inventory     RouteRegistrar
	webhooks      RouteRegistrar

	identityMiddleware func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and route groups.
// Webhook routes bypass the identity middleware; their authenticity comes
// from payload signatures instead of gateway headers.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers(nil)
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrars []RouteRegistrar, withIdentity bool) {
			api.Route(path, func(group chi.Router) {
				if withIdentity && cfg.identityMiddleware != nil {
					group.Use(cfg.identityMiddleware)
				}
				for _, registrar := range registrars {
					if registrar != nil {
						registrar(group)
					}
				}
			})
		}

		mount("/orders", cfg.orders, true)
		mount("/cancellations", []RouteRegistrar{cfg.cancellations}, true)
		mount("/refunds", []RouteRegistrar{cfg.refunds}, true)
		mount("/shipments", []RouteRegistrar{cfg.shipments}, true)
		mount("/inventory", []RouteRegistrar{cfg.inventory}, true)
		mount("/webhooks", []RouteRegistrar{cfg.webhooks}, false)
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithBasePath overrides the API prefix.
func WithBasePath(path string) Option {
	return func(cfg *routerConfig) {
		if path != "" {
			cfg.basePath = path
		}
	}
}

// WithIdentityMiddleware sets the gateway identity middleware applied to
// every group except webhooks.
func WithIdentityMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.identityMiddleware = mw
	}
}

// WithHealthHandlers sets the health endpoints implementation.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithOrderRoutes mounts registrars under /orders. Order-scoped sub-resources
// (cancellations, refunds, shipments, audit) register here alongside the
// order endpoints themselves.
func WithOrderRoutes(registrars ...RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = append(cfg.orders, registrars...)
	}
}

// WithCancellationRoutes mounts the registrar under /cancellations.
func WithCancellationRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.cancellations = registrar
	}
}

// WithRefundRoutes mounts the registrar under /refunds.
func WithRefundRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.refunds = registrar
	}
}

// WithShipmentRoutes mounts the registrar under /shipments.
func WithShipmentRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.shipments = registrar
	}
}

// WithInventoryRoutes mounts the registrar under /inventory.
func WithInventoryRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.inventory = registrar
	}
}

// WithWebhookRoutes mounts the registrar under /webhooks.
func WithWebhookRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.webhooks = registrar
	}
}
