package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/pos-agent/api/controllers"
	"github.com/angelmondragon/pos-agent/api/middleware"
	"github.com/angelmondragon/pos-agent/pkg/config"
	"github.com/angelmondragon/pos-agent/pkg/logger"
	pkgredis "github.com/angelmondragon/pos-agent/pkg/redis"
)

// Cart is the active cart: readable by checkout, editable by the cart routes.
type Cart interface {
	controllers.CartService
	controllers.CartReader
}

// Checkout is the orchestrator, which also guards cart edits.
type Checkout interface {
	controllers.CheckoutService
	controllers.EditGuard
}

type Sessions interface {
	controllers.SessionService
	middleware.SessionSource
}

type Catalog interface {
	controllers.CatalogService
	controllers.ProductLookup
}

// Deps are the terminal components exposed over the local API.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	Metrics     prometheus.Gatherer
	Readiness   map[string]controllers.Pinger
	Idempotency pkgredis.IdempotencyStore

	Sessions   Sessions
	Cart       Cart
	Catalog    Catalog
	Held       controllers.HeldService
	Checkout   Checkout
	Queue      controllers.QueueReader
	Sync       controllers.Syncer
	StaleAfter time.Duration
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg, cfg.Terminal.ID),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Readiness))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Post("/", controllers.SessionStart(deps.Sessions, logg))
			r.Get("/", controllers.SessionCurrent(deps.Sessions, logg))
			r.Delete("/", controllers.SessionEnd(deps.Sessions))
		})

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.RequireSession(deps.Sessions, logg),
				middleware.Idempotency(deps.Idempotency, logg),
			)
			r.Route("/catalog", func(r chi.Router) {
				r.Get("/", controllers.CatalogList(deps.Catalog))
				r.Post("/refresh", controllers.CatalogRefresh(deps.Catalog, logg))
			})

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.CartGet(deps.Cart))
				r.Put("/details", controllers.CartSetDetails(deps.Cart, deps.Checkout, logg))
				r.Post("/items", controllers.CartAddItem(deps.Cart, deps.Catalog, deps.Checkout, logg))
				r.Put("/items/{productID}", controllers.CartSetQuantity(deps.Cart, deps.Checkout, logg))
				r.Delete("/items/{productID}", controllers.CartRemoveItem(deps.Cart, deps.Checkout, logg))
				r.Put("/items/{productID}/discount", controllers.CartApplyDiscount(deps.Cart, deps.Checkout, logg))
			})

			r.Route("/held", func(r chi.Router) {
				r.Get("/", controllers.HeldList(deps.Held, logg))
				r.Post("/", controllers.HeldHold(deps.Held, deps.Checkout, logg))
				r.Post("/{heldID}/resume", controllers.HeldResume(deps.Held, deps.Checkout, logg))
				r.Delete("/{heldID}", controllers.HeldDelete(deps.Held, logg))
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/status", controllers.CheckoutStatus(deps.Checkout))
				r.Get("/preview", controllers.CheckoutPreview(deps.Checkout, deps.Cart))
				r.Get("/history", controllers.CheckoutHistory(deps.Checkout, logg))
				r.Post("/begin", controllers.CheckoutBegin(deps.Checkout, logg))
				r.Post("/method", controllers.CheckoutSelectMethod(deps.Checkout, logg))
				r.Post("/confirm", controllers.CheckoutConfirm(deps.Checkout, logg))
				r.Post("/cancel", controllers.CheckoutCancel(deps.Checkout, logg))
				r.Post("/capture/release", controllers.CheckoutReleaseCapture(deps.Checkout, logg))
				r.Post("/acknowledge", controllers.CheckoutAcknowledge(deps.Checkout, logg))
			})

			r.Route("/queue", func(r chi.Router) {
				r.Get("/", controllers.QueueList(deps.Queue, deps.Sync, deps.StaleAfter, logg))
				r.Post("/sync", controllers.QueueSync(deps.Sync, logg))
				r.Delete("/{localID}", controllers.QueueCancel(deps.Sync, logg))
			})
		})
	})

	return r
}
