// Package httpapi wires the edge filter chain and the HTTP routes.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zipbob/edge"
	"github.com/zipbob/edge/middleware"
)

// Options are the dependencies of the router.
type Options struct {
	Logger   *slog.Logger
	Config   edge.Config
	Sessions Sessions
	Members  Members
	// Limiter throttles every request. Nil disables rate limiting.
	Limiter middleware.Allower
	Metrics *edge.Metrics
	// Recipes serves the recipe event stream. Nil leaves the route unregistered.
	Recipes http.Handler
	Checks  []HealthCheck
}

// NewRouter builds the edge handler. Filters run outer to inner: recover,
// request id, logging, rate limit, authentication, identity propagation.
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	auth := opts.Config.Auth

	filters := []middleware.Middleware{
		middleware.Recover(),
		middleware.RequestID(),
		middleware.Logging(opts.Logger),
	}
	if opts.Limiter != nil {
		filters = append(filters, middleware.RateLimit(opts.Limiter, middleware.RateLimitOptions{
			FailOpen: opts.Config.RateLimit.FailOpen,
			Metrics:  opts.Metrics,
		}))
	}
	filters = append(filters,
		middleware.Authenticate(opts.Sessions, middleware.NewPathSet(auth.PublicPaths...)),
		middleware.PropagateIdentity(auth.IdentityHeader, middleware.NewPathSet(auth.PropagationSkips...)),
	)

	root := chi.NewRouter()

	h := &Handlers{
		sessions: opts.Sessions,
		members:  opts.Members,
		auth:     auth,
		jwt:      opts.Config.JWT,
		checks:   opts.Checks,
	}

	// The recipe stream is long-lived and stays outside the request timeout.
	if opts.Recipes != nil {
		root.Method(http.MethodGet, "/recipes/stream", opts.Recipes)
	}

	root.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(opts.Config.HTTP.RequestTimeout))
		registerRoutes(r, h)
	})

	root.Get("/actuator/health", h.Health)
	if opts.Metrics != nil {
		root.Handle("/metrics", opts.Metrics.Handler())
	}

	return middleware.Chain(root, filters...)
}

func registerRoutes(r chi.Router, h *Handlers) {
	member := middleware.RequireRole(edge.RoleUser, edge.RoleAdmin)
	guest := middleware.RequireRole(edge.RoleGuest)

	// auth
	r.Patch("/auth/reissue", h.Reissue)
	r.Patch("/auth/logout", h.Logout)

	// members
	r.With(member).Patch("/members/update", h.UpdateMember)
	r.With(guest).Patch("/members/oauth2/join", h.OAuth2Join)
	r.With(member).Delete("/members/withdraw", h.Withdraw)
	r.With(member).Get("/members/myInfo", h.MyInfo)
	r.Get("/members/nickname-check/{nickname}", h.CheckNickname)
	r.Post("/members/test/join", h.TestJoin)
}
