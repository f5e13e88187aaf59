package controlapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rafaeljc/gatekeeper/internal/auth"
	"github.com/rafaeljc/gatekeeper/internal/logger"
	"github.com/rafaeljc/gatekeeper/internal/observability"
)

// unmatchedRoute labels requests that hit no route, keeping metric cardinality bounded.
const unmatchedRoute = "unmatched"

// requestLogger injects a request-scoped logger, then logs and measures the request
// once it completes. Metrics use the route pattern, never the raw path.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqLogger := a.logger.With(slog.String("request_id", middleware.GetReqID(r.Context())))
		r = r.WithContext(logger.WithContext(r.Context(), reqLogger))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		observability.HTTPReqDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
		observability.HTTPReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()

		// Info for success, Warn for 4xx, Error for 5xx.
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}

		logger.FromContext(r.Context()).Log(r.Context(), level, "HTTP request completed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", duration),
			slog.String("remote_ip", r.RemoteAddr),
		)
	})
}

// authenticate requires a valid bearer token and stores the caller in the context.
func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "Missing bearer token")
			return
		}

		actor, err := a.tokens.Parse(token)
		if err != nil {
			logger.FromContext(r.Context()).Warn("rejected access token", slog.String("error", err.Error()))
			writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "Invalid or expired access token")
			return
		}

		ctx := auth.WithActor(r.Context(), actor)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With(
			slog.String("actor_id", actor.ID),
			slog.String("actor_role", string(actor.Role)),
		))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission rejects callers whose role and grants do not include p.
func requirePermission(p auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := auth.ActorFrom(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "Authentication required")
				return
			}
			if !actor.Can(p) {
				writeError(w, r, http.StatusForbidden, codeForbidden, "Missing permission "+string(p))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limitBody caps the request body; decoding a larger body fails as invalid JSON.
func (a *API) limitBody(next http.Handler) http.Handler {
	if a.maxBodyBytes < 1 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, a.maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
