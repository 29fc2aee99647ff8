package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kwabenaosei/agritrade-backend/api/controllers"
	webhookcontrollers "github.com/kwabenaosei/agritrade-backend/api/controllers/webhooks"
	"github.com/kwabenaosei/agritrade-backend/api/middleware"
	cartsvc "github.com/kwabenaosei/agritrade-backend/internal/cart"
	checkoutsvc "github.com/kwabenaosei/agritrade-backend/internal/checkout"
	disputesvc "github.com/kwabenaosei/agritrade-backend/internal/disputes"
	escrowsvc "github.com/kwabenaosei/agritrade-backend/internal/escrow"
	ordersvc "github.com/kwabenaosei/agritrade-backend/internal/orders"
	"github.com/kwabenaosei/agritrade-backend/pkg/config"
	"github.com/kwabenaosei/agritrade-backend/pkg/enums"
	"github.com/kwabenaosei/agritrade-backend/pkg/logger"
	pkgredis "github.com/kwabenaosei/agritrade-backend/pkg/redis"
)

// Dependencies carries everything the HTTP surface needs.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Redis    *pkgredis.Client
	Pingers  map[string]controllers.Pinger
	Cart     cartsvc.Service
	Checkout checkoutsvc.Service
	Orders   ordersvc.Service
	Escrow   escrowsvc.Service
	Disputes disputesvc.Service
	Webhook  webhookcontrollers.PaystackWebhookService
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paystack", webhookcontrollers.PaystackWebhook(deps.Webhook, cfg.Paystack.SecretKey, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(deps.Cart, logg))
			r.Post("/items", controllers.CartAddItem(deps.Cart, logg))
			r.Put("/items/{productID}", controllers.CartUpdateItem(deps.Cart, logg))
			r.Delete("/items/{productID}", controllers.CartRemoveItem(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
		})

		r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrdersList(deps.Orders, logg))
			r.Get("/{orderID}", controllers.OrderGet(deps.Orders, logg))
			r.Post("/{orderID}/pay", controllers.PaymentInitialize(deps.Escrow, logg))
			r.Post("/{orderID}/ship", controllers.OrderShip(deps.Orders, logg))
			r.Post("/{orderID}/confirm-delivery", controllers.OrderConfirmDelivery(deps.Orders, logg))
			r.Post("/{orderID}/confirm-pickup", controllers.OrderConfirmPickup(deps.Orders, logg))
			r.Post("/{orderID}/cancel", controllers.OrderCancel(deps.Orders, logg))
		})

		r.Get("/payments/verify", controllers.PaymentVerify(deps.Escrow, logg))

		r.Route("/disputes", func(r chi.Router) {
			r.Post("/", controllers.DisputeRaise(deps.Disputes, logg))
			r.Get("/{disputeID}", controllers.DisputeGet(deps.Disputes, logg))
			r.Post("/{disputeID}/respond", controllers.DisputeRespond(deps.Disputes, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))
				r.Get("/", controllers.DisputesList(deps.Disputes, logg))
				r.Post("/{disputeID}/resolve", controllers.DisputeResolve(deps.Disputes, logg))
			})
		})

		r.Route("/admin/escrows", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))
			r.Post("/{escrowID}/release", controllers.AdminEscrowRelease(deps.Escrow, logg))
			r.Post("/{escrowID}/refund", controllers.AdminEscrowRefund(deps.Escrow, logg))
		})
	})

	return r
}
