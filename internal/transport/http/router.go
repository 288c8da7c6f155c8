package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"boostnet/internal/boost"
	"boostnet/internal/claimhook"
	"boostnet/internal/claimlink"
	"boostnet/internal/inbox"
	"boostnet/internal/platform/middleware"
	"boostnet/internal/revoke"
	"boostnet/internal/signingauthority"
	"boostnet/internal/vcapi"
)

// Deps collects everything the router wires. Handlers delegate to domain
// services; no business logic lives in this package.
type Deps struct {
	Logger    *slog.Logger
	Validator middleware.TokenValidator

	Boosts             *boost.Handler
	ClaimLinks         *claimlink.Handler
	ClaimHooks         *claimhook.Handler
	Inbox              *inbox.Handler
	Revoke             *revoke.Handler
	SigningAuthorities *signingauthority.Handler
	VCAPI              *vcapi.Handler

	Health func() error
}

// NewRouter assembles the public HTTP surface. The VC-API exchange endpoint
// is unauthenticated per protocol (the presentation is the credential);
// everything else requires a bearer token.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", healthz(d.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// VC-API: wallets authenticate with their presentation, not a token.
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		d.VCAPI.Register(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(d.Validator, d.Logger))
		d.Boosts.Register(r)
		d.ClaimLinks.Register(r)
		d.ClaimHooks.Register(r)
		d.Inbox.Register(r)
		d.Revoke.Register(r)
		d.SigningAuthorities.Register(r)
	})

	return r
}

func healthz(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
