package controlapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/gatekeeper/internal/auth"
	"github.com/rafaeljc/gatekeeper/internal/logger"
	"github.com/rafaeljc/gatekeeper/internal/registry"
)

// handleListFlags processes GET /api/v1/feature-flags.
func (a *API) handleListFlags(w http.ResponseWriter, r *http.Request) {
	views, err := a.flags.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "list flags")
		return
	}

	data := make([]Flag, len(views))
	for i, v := range views {
		data[i] = toFlagView(v)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ListResponse{Data: data, Total: len(data)})
}

// handleGetFlag processes GET /api/v1/feature-flags/{flagKey}.
func (a *API) handleGetFlag(w http.ResponseWriter, r *http.Request) {
	view, err := a.flags.GetWithEstimate(r.Context(), chi.URLParam(r, "flagKey"))
	if err != nil {
		writeServiceError(w, r, err, "get flag")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, toFlagView(view))
}

// handleCreateFlag processes POST /api/v1/feature-flags.
// Validation happens in the registry so every entry point shares the same rules.
func (a *API) handleCreateFlag(w http.ResponseWriter, r *http.Request) {
	var req registry.CreateInput
	if !decode(w, r, &req) {
		return
	}

	flag, err := a.flags.Create(r.Context(), actorFrom(r), req)
	if err != nil {
		writeServiceError(w, r, err, "create flag")
		return
	}

	logger.FromContext(r.Context()).Info("flag created", slog.String("flag_key", flag.Key))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toFlag(flag))
}

// handleUpdateFlag processes PATCH /api/v1/feature-flags/{flagKey}.
// Absent fields keep their stored value.
func (a *API) handleUpdateFlag(w http.ResponseWriter, r *http.Request) {
	var req registry.Patch
	if !decode(w, r, &req) {
		return
	}

	flag, err := a.flags.Update(r.Context(), actorFrom(r), chi.URLParam(r, "flagKey"), req)
	if err != nil {
		writeServiceError(w, r, err, "update flag")
		return
	}

	logger.FromContext(r.Context()).Info("flag updated",
		slog.String("flag_key", flag.Key),
		slog.Int64("version", flag.Version),
	)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, toFlag(flag))
}

// handleDeleteFlag processes DELETE /api/v1/feature-flags/{flagKey} (soft delete).
func (a *API) handleDeleteFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "flagKey")
	if err := a.flags.Delete(r.Context(), actorFrom(r), key); err != nil {
		writeServiceError(w, r, err, "delete flag")
		return
	}

	logger.FromContext(r.Context()).Info("flag deleted", slog.String("flag_key", key))
	w.WriteHeader(http.StatusNoContent)
}

// handleSetOverride processes POST /api/v1/feature-flags/{flagKey}/override.
func (a *API) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	var req registry.OverrideInput
	if !decode(w, r, &req) {
		return
	}

	flag, err := a.flags.SetOverride(r.Context(), actorFrom(r), chi.URLParam(r, "flagKey"), req)
	if err != nil {
		writeServiceError(w, r, err, "set override")
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toFlag(flag))
}

// handleRemoveOverride processes DELETE /api/v1/feature-flags/{flagKey}/override/{merchantId}.
func (a *API) handleRemoveOverride(w http.ResponseWriter, r *http.Request) {
	msg, err := a.flags.RemoveOverride(r.Context(), actorFrom(r),
		chi.URLParam(r, "flagKey"), chi.URLParam(r, "merchantId"))
	if err != nil {
		writeServiceError(w, r, err, "remove override")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MessageResponse{Message: msg})
}

// decode reads the JSON body into dst, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		logger.FromContext(r.Context()).Warn("invalid json payload", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadRequest, codeInvalidJSON, "Invalid JSON payload: "+err.Error())
		return false
	}
	return true
}

// actorFrom returns the authenticated caller. The auth middleware guarantees one.
func actorFrom(r *http.Request) auth.Actor {
	actor, _ := auth.ActorFrom(r.Context())
	return actor
}
