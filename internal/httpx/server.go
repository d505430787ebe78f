package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/authx"
	"github.com/daluzconsciente/tienda-api/internal/checkout"
	"github.com/daluzconsciente/tienda-api/internal/orders"
	"github.com/daluzconsciente/tienda-api/internal/webhook"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

type CheckoutService interface {
	Create(ctx context.Context, userID string, req checkout.Request) (checkout.Result, error)
	Status(ctx context.Context, orderID string, caller *authx.Identity) (checkout.StatusView, error)
}

type WebhookService interface {
	Handle(ctx context.Context, n webhook.Notification, sig webhook.Signature) (webhook.Outcome, error)
}

type OrderLister interface {
	ListByUser(ctx context.Context, userID string) ([]orders.Order, error)
}

// Server holds the API handlers. Production hides error details.
type Server struct {
	Checkout     CheckoutService
	Webhook      WebhookService
	Orders       OrderLister
	Admin        AdminService
	Authenticate func(http.Handler) http.Handler
	Production   bool
}

func (s *Server) Register(r chi.Router) {
	// The gateway calls the webhook without a session.
	r.Post("/api/webhooks/mercadopago", s.webhook)

	r.Group(func(r chi.Router) {
		if s.Authenticate != nil {
			r.Use(s.Authenticate)
		}
		r.Get("/api/checkout", s.checkoutStatus)
		r.With(authx.RequireUser).Post("/api/checkout", s.createCheckout)
		r.With(authx.RequireUser).Get("/api/orders", s.listOrders)

		r.Route("/api/admin/orders", func(r chi.Router) {
			r.Use(authx.RequireUser)
			r.With(authx.RequireCapability(authx.CapOrdersRead)).Get("/", s.adminList)
			r.With(authx.RequireCapability(authx.CapOrdersRead)).Get("/{id}", s.adminGet)
			r.With(authx.RequireCapability(authx.CapOrdersWrite)).Patch("/{id}", s.adminPatch)
			r.With(authx.RequireCapability(authx.CapOrdersWrite)).Delete("/{id}", s.adminCancel)
			r.With(authx.RequireCapability(authx.CapOrdersNotify)).Post("/{id}/notify", s.adminNotify)
		})
	})
}
