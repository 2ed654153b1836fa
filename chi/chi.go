// Package chi integrates solvent with the Chi router.
//
// ScopeMiddleware gives every request its own scope, closed when the
// request completes, so request-scoped resources (transactions, per-user
// caches) release automatically. Handle adapts an injection site into a
// chi handler.
//
// Example usage:
//
//	engine := solvent.New()
//	engine.Use(providers...)
//
//	r := chi.NewRouter()
//	r.Use(solventchi.ScopeMiddleware(engine))
//	r.Get("/users/{id}", solventchi.Handle(getUserSite))
package chi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/solventdi/solvent"
)

// Config holds the configuration for the scope middleware.
type Config struct {
	// CloseErrorHandler is called when closing a request scope fails.
	// If nil, errors are logged using slog.
	CloseErrorHandler func(error)

	// Seeds are computed per request and placed into the request scope
	// before any handler runs.
	Seeds []func(*http.Request) solvent.Seed
}

// Option configures the scope middleware.
type Option func(*Config)

// WithCloseErrorHandler sets the handler for scope close failures.
func WithCloseErrorHandler(h func(error)) Option {
	return func(c *Config) {
		c.CloseErrorHandler = h
	}
}

// WithSeed registers a per-request seed, typically extracting something
// from the request (auth token, tenant id) into a dependency key.
func WithSeed(seed func(*http.Request) solvent.Seed) Option {
	return func(c *Config) {
		c.Seeds = append(c.Seeds, seed)
	}
}

func defaultConfig() *Config {
	return &Config{
		CloseErrorHandler: func(err error) {
			slog.Error("failed to close request scope", "error", err)
		},
	}
}

// ScopeMiddleware creates a Chi middleware that opens a scope for each
// request, attaches it to the request context, and closes it when the
// request completes. Retrieve the scope with solvent.FromContext.
func ScopeMiddleware(engine *solvent.Engine, opts ...Option) func(http.Handler) http.Handler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seeds := make([]solvent.Seed, 0, len(cfg.Seeds))
			for _, seed := range cfg.Seeds {
				seeds = append(seeds, seed(r))
			}

			scope := engine.NewScope(seeds...)
			defer func() {
				if err := scope.CloseContext(r.Context()); err != nil {
					cfg.CloseErrorHandler(err)
				}
			}()

			ctx := solvent.NewContext(r.Context(), scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Handler is the shape of a route handler resolved through a scope.
type Handler func(scope *solvent.Scope, w http.ResponseWriter, r *http.Request)

// Handle adapts a scope-aware handler to http.HandlerFunc. The request
// scope must have been installed by ScopeMiddleware.
func Handle(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope, ok := solvent.FromContext(r.Context())
		if !ok {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		h(scope, w, r)
	}
}

// URLParam is a provider factory binding a chi URL parameter to a key.
// requestKey must resolve to the *http.Request, typically seeded per
// request via WithSeed.
func URLParam(key *solvent.Key, requestKey *solvent.Key, name string) *solvent.Provider {
	return solvent.Value(key, func(d solvent.Deps) (string, error) {
		r := solvent.Get[*http.Request](d, requestKey)
		return chi.URLParam(r, name), nil
	}, requestKey)
}
