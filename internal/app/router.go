package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saheli-shg/saheli/internal/platform/httpx"
)

// Mounter registers a handler's routes on a router.
type Mounter interface {
	MountRoutes(r chi.Router)
}

// RouterParams collects the handlers composing the HTTP surface.
type RouterParams struct {
	Middleware     MiddlewareConfig
	GroupHandler   Mounter
	LoanHandler    Mounter
	LedgerHandler  Mounter
	ReportHandler  Mounter
	HealthCheckers []func() error
}

// NewRouter assembles the chi router with the full middleware stack.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		for _, check := range p.HealthCheckers {
			if err := check(); err != nil {
				httpx.Problem(w, http.StatusServiceUnavailable, "Unhealthy", err.Error())
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(p.Middleware) {
			r.Use(mw)
		}
		for _, h := range []Mounter{p.GroupHandler, p.LoanHandler, p.LedgerHandler, p.ReportHandler} {
			if h != nil {
				h.MountRoutes(r)
			}
		}
	})

	return r
}
