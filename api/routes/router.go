package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tradeyard/tradeyard-backend/api/controllers"
	"github.com/tradeyard/tradeyard-backend/api/middleware"
	cartsvc "github.com/tradeyard/tradeyard-backend/internal/cart"
	checkoutsvc "github.com/tradeyard/tradeyard-backend/internal/checkout"
	ordersvc "github.com/tradeyard/tradeyard-backend/internal/orders"
	"github.com/tradeyard/tradeyard-backend/pkg/config"
	"github.com/tradeyard/tradeyard-backend/pkg/logger"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pingers  map[string]controllers.Pinger
	Cart     cartsvc.Service
	Verifier cartsvc.Validator
	Checkout checkoutsvc.Service
	Orders   ordersvc.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartList(deps.Cart, logg))
			r.Post("/", controllers.CartAdd(deps.Cart, logg))
			r.Post("/verify", controllers.CartVerify(deps.Verifier, logg))
			r.Post("/{productID}/increment", controllers.CartIncrement(deps.Cart, logg))
			r.Post("/{productID}/decrement", controllers.CartDecrement(deps.Cart, logg))
			r.Delete("/{productID}", controllers.CartRemove(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/reserve", controllers.CheckoutReserve(deps.Checkout, logg))
			r.Get("/current", controllers.CheckoutCurrent(deps.Checkout, logg))
			r.Post("/settle", controllers.CheckoutSettle(deps.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrderHistory(deps.Orders, logg))
			r.Get("/received", controllers.OrderReceived(deps.Orders, logg))
			r.Get("/{orderID}", controllers.OrderGet(deps.Orders, logg))
		})
	})

	return r
}
