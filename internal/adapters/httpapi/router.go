package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// DefaultMaxWebhookBytes bounds webhook bodies when RouterOptions leaves it unset.
const DefaultMaxWebhookBytes int64 = 1 << 20

type RouterOptions struct {
	Logger          *zap.Logger
	MaxWebhookBytes int64
	// AdminAuth guards /admin/*. When nil the admin routes are not mounted.
	AdminAuth func(http.Handler) http.Handler
}

// NewRouter wires the webhook, admin and health routes onto a chi mux.
func NewRouter(svc RechargeService, opts RouterOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxWebhookBytes <= 0 {
		opts.MaxWebhookBytes = DefaultMaxWebhookBytes
	}
	s := &Server{svc: svc, log: opts.Logger, maxBody: opts.MaxWebhookBytes}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(opts.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/webhooks/orders-paid", s.HandleOrderPaid)

	if opts.AdminAuth != nil {
		r.Route("/admin/recharges", func(r chi.Router) {
			r.Use(opts.AdminAuth)
			r.Get("/", s.ListRecharges)
			r.Get("/{key}", s.GetRecharge)
			r.Post("/{key}/confirm", s.ConfirmRecharge)
			r.Post("/{key}/reject", s.RejectRecharge)
		})
	}
	return r
}
