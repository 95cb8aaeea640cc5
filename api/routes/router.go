package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cartpay-io/cartpay-backend/api/controllers"
	webhookcontrollers "github.com/cartpay-io/cartpay-backend/api/controllers/webhooks"
	"github.com/cartpay-io/cartpay-backend/api/middleware"
	"github.com/cartpay-io/cartpay-backend/internal/cartpayment"
	"github.com/cartpay-io/cartpay-backend/internal/disputes"
	"github.com/cartpay-io/cartpay-backend/internal/payers"
	"github.com/cartpay-io/cartpay-backend/internal/paymentmethods"
	"github.com/cartpay-io/cartpay-backend/pkg/config"
	"github.com/cartpay-io/cartpay-backend/pkg/gateway"
	"github.com/cartpay-io/cartpay-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	stripeClient *gateway.StripeGateway,
	payerService payers.Service,
	methodService paymentmethods.Service,
	paymentService cartpayment.Service,
	disputeService disputes.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(disputeService, stripeClient, logg))
	})

	r.Route("/api/v1/payers", func(r chi.Router) {
		r.Post("/", controllers.PayerCreate(payerService, logg))
		r.Get("/{payerID}", controllers.PayerGet(payerService, logg))
	})

	r.Route("/api/v1/payment-methods", func(r chi.Router) {
		r.Post("/", controllers.PaymentMethodVault(methodService, logg))
		r.Get("/", controllers.PaymentMethodList(methodService, logg))
		r.Get("/{paymentMethodID}", controllers.PaymentMethodGet(methodService, logg))
		r.Delete("/{paymentMethodID}", controllers.PaymentMethodRemove(methodService, logg))
	})

	r.Route("/api/v1/cart-payments", func(r chi.Router) {
		r.Post("/", controllers.CartPaymentCreate(paymentService, logg))
		r.Get("/", controllers.CartPaymentList(paymentService, logg))
		r.Get("/{cartPaymentID}", controllers.CartPaymentGet(paymentService, logg))
		r.Patch("/{cartPaymentID}/amount", controllers.CartPaymentUpdateAmount(paymentService, logg))
		r.Post("/{cartPaymentID}/cancel", controllers.CartPaymentCancel(paymentService, logg))
	})

	return r
}
