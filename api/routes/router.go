package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketcore-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/marketcore-backend/api/controllers/orders"
	"github.com/angelmondragon/marketcore-backend/api/middleware"
	"github.com/angelmondragon/marketcore-backend/internal/checkout"
	"github.com/angelmondragon/marketcore-backend/internal/commission"
	"github.com/angelmondragon/marketcore-backend/internal/flashsale"
	"github.com/angelmondragon/marketcore-backend/internal/ledger"
	"github.com/angelmondragon/marketcore-backend/internal/notifications"
	"github.com/angelmondragon/marketcore-backend/internal/orders"
	"github.com/angelmondragon/marketcore-backend/internal/payouts"
	"github.com/angelmondragon/marketcore-backend/internal/reports"
	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/enums"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/marketcore-backend/pkg/redis"
)

// rateCounter is the shared-window half of the reserve throttle.
type rateCounter interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Services groups the domain services exposed over HTTP.
type Services struct {
	Checkout      checkout.Service
	Orders        orders.Service
	Commission    commission.Service
	Ledger        ledger.Service
	Payouts       payouts.Service
	FlashSales    flashsale.Service
	Reports       reports.Service
	Notifications notifications.Service
}

// Infra carries the clients the router needs beyond the services.
type Infra struct {
	DB      controllers.Pinger
	Redis   rateCounter
	Metrics prometheus.Gatherer
	// HTTP is optional; nil disables request metrics.
	HTTP *metrics.HTTPMetrics
}

func NewRouter(cfg *config.Config, logg *logger.Logger, infra Infra, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, infra.HTTP),
		middleware.CORS(cfg.App),
	)

	deps := map[string]controllers.Pinger{"db": infra.DB}
	if infra.Redis != nil {
		if p, ok := infra.Redis.(controllers.Pinger); ok {
			deps["redis"] = p
		}
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})
	if infra.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(infra.Metrics, promhttp.HandlerOpts{}))
	}

	var idempotencyStore pkgredis.IdempotencyStore
	var windowCounter rateCounter
	if infra.Redis != nil {
		idempotencyStore = infra.Redis
		windowCounter = infra.Redis
	}
	standard := middleware.Idempotent(idempotencyStore, middleware.StandardIdempotencyTTL, logg)
	money := middleware.Idempotent(idempotencyStore, middleware.MoneyIdempotencyTTL, logg)
	reservePolicy := middleware.RateLimitPolicy{
		Name:      "flash-sale-reserve",
		RPS:       cfg.RateLimit.ReserveRPS,
		Burst:     cfg.RateLimit.ReserveBurst,
		Window:    cfg.RateLimit.ReserveWindow,
		UserLimit: cfg.RateLimit.ReserveUserLimit,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer), money).Post("/", ordercontrollers.Create(svc.Checkout, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer)).Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleAdmin), money).
				Post("/{orderId}/payment", ordercontrollers.ConfirmPayment(svc.Orders, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleVendor, enums.ActorRoleAdmin), standard).
				Post("/{orderId}/status", ordercontrollers.AdvanceStatus(svc.Orders, logg))
		})

		r.Route("/flash-sales", func(r chi.Router) {
			r.Get("/active", controllers.ActiveFlashSales(svc.FlashSales, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.ActorRoleBuyer))
				r.Use(middleware.RateLimit(reservePolicy, windowCounter, logg))
				r.Post("/reserve", controllers.ReserveFlashSale(svc.FlashSales, logg))
				r.Post("/release", controllers.ReleaseFlashSale(svc.FlashSales, logg))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleVendor))
			r.Use(middleware.RequireVendor(logg))

			r.Route("/vendor", func(r chi.Router) {
				r.Get("/earnings/summary", controllers.EarningsSummary(svc.Ledger, logg))
				r.Get("/earnings", controllers.ListEarnings(svc.Ledger, logg))
				r.With(money).Post("/payouts", controllers.RequestPayout(svc.Payouts, logg))
				r.Get("/payouts", controllers.ListVendorPayouts(svc.Payouts, logg))
				r.Get("/orders", ordercontrollers.ListVendor(svc.Orders, logg))
				r.Get("/reports", controllers.VendorSalesReport(svc.Reports, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(svc.Notifications, logg))
				r.With(standard).Post("/read-all", controllers.MarkAllNotificationsRead(svc.Notifications, logg))
				r.With(standard).Post("/{notificationId}/read", controllers.MarkNotificationRead(svc.Notifications, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))

			r.Route("/commission-rates", func(r chi.Router) {
				r.With(standard).Post("/", controllers.CreateCommissionRate(svc.Commission, logg))
				r.Get("/", controllers.ListCommissionRates(svc.Commission, logg))
				r.With(standard).Post("/{rateId}/default", controllers.SetDefaultCommissionRate(svc.Commission, logg))
				r.With(standard).Post("/{rateId}/deactivate", controllers.DeactivateCommissionRate(svc.Commission, logg))
			})

			r.Route("/payouts", func(r chi.Router) {
				r.Get("/pending", controllers.ListPendingPayouts(svc.Payouts, logg))
				r.With(standard).Post("/{payoutId}/start", controllers.StartPayout(svc.Payouts, logg))
				r.With(money).Post("/{payoutId}/process", controllers.ProcessPayout(svc.Payouts, logg))
			})

			r.With(money).Post("/orders/{orderId}/cancel", ordercontrollers.Cancel(svc.Orders, logg))
			r.With(standard).Post("/flash-sales", controllers.CreateFlashSaleAllocation(svc.FlashSales, logg))
		})
	})

	return r
}
