// Package controlapi implements the administration REST API for feature flags.
package controlapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/gatekeeper/internal/auth"
	"github.com/rafaeljc/gatekeeper/internal/evaluation"
	"github.com/rafaeljc/gatekeeper/internal/registry"
	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
	"github.com/rafaeljc/gatekeeper/internal/store"
)

// FlagRegistry is the subset of registry.Service the handlers need.
type FlagRegistry interface {
	List(ctx context.Context) ([]registry.FlagView, error)
	GetWithEstimate(ctx context.Context, key string) (registry.FlagView, error)
	Create(ctx context.Context, actor auth.Actor, in registry.CreateInput) (*store.Flag, error)
	Update(ctx context.Context, actor auth.Actor, key string, patch registry.Patch) (*store.Flag, error)
	SetOverride(ctx context.Context, actor auth.Actor, key string, in registry.OverrideInput) (*store.Flag, error)
	RemoveOverride(ctx context.Context, actor auth.Actor, key, merchantID string) (string, error)
	Delete(ctx context.Context, actor auth.Actor, key string) error
}

// Evaluator answers evaluation queries. evaluation.Service implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, flagKey, merchantID string) (ruleengine.Result, error)
	EvaluateAll(ctx context.Context, merchantID string) (evaluation.MerchantEvaluations, error)
}

// TokenVerifier turns a bearer token into an actor. auth.Authenticator implements it.
type TokenVerifier interface {
	Parse(token string) (auth.Actor, error)
}

// API holds the router and the services behind it.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	logger       *slog.Logger
	flags        FlagRegistry
	evaluations  Evaluator
	tokens       TokenVerifier
	maxBodyBytes int64
}

// NewAPI wires the control API. maxBodyBytes caps request bodies; values below 1
// disable the cap.
//
// Panics if any service is nil.
func NewAPI(log *slog.Logger, flags FlagRegistry, evaluations Evaluator, tokens TokenVerifier, maxBodyBytes int64) *API {
	// An interface is only nil if it has no underlying type and no value.
	if flags == nil {
		panic("controlapi: flag registry cannot be nil")
	}
	if evaluations == nil {
		panic("controlapi: evaluator cannot be nil")
	}
	if tokens == nil {
		panic("controlapi: token verifier cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	api := &API{
		Router:       chi.NewRouter(),
		logger:       log,
		flags:        flags,
		evaluations:  evaluations,
		tokens:       tokens,
		maxBodyBytes: maxBodyBytes,
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(a.requestLogger)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticate)
		r.Use(a.limitBody)

		r.Route("/feature-flags", func(r chi.Router) {
			r.With(requirePermission(auth.PermConfigRead)).Get("/", a.handleListFlags)
			r.With(requirePermission(auth.PermConfigWrite)).Post("/", a.handleCreateFlag)

			r.Route("/{flagKey}", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(requirePermission(auth.PermConfigRead))
					r.Get("/", a.handleGetFlag)
					r.Get("/evaluate/{merchantId}", a.handleEvaluate)
				})

				r.Group(func(r chi.Router) {
					r.Use(requirePermission(auth.PermConfigWrite))
					r.Patch("/", a.handleUpdateFlag)
					r.Delete("/", a.handleDeleteFlag)
					r.Post("/override", a.handleSetOverride)
					r.Delete("/override/{merchantId}", a.handleRemoveOverride)
				})
			})
		})

		r.With(requirePermission(auth.PermConfigRead)).
			Get("/merchants/{merchantId}/feature-flags", a.handleEvaluateMerchant)
	})
}

// handleHealthCheck only proves the HTTP server is serving. Dependency checks
// live on the observability server.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}
