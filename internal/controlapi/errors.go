package controlapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/rafaeljc/gatekeeper/internal/logger"
	"github.com/rafaeljc/gatekeeper/internal/registry"
)

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Code: code, Message: message})
}

// writeServiceError maps the registry error taxonomy onto HTTP.
// Unknown errors are logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	var verr *registry.ValidationError
	switch {
	case errors.As(err, &verr):
		details := make([]ErrorDetail, len(verr.Issues))
		for i, is := range verr.Issues {
			details[i] = ErrorDetail{Field: is.Field, Issue: is.Issue}
		}
		message := "Validation failed"
		if len(details) == 1 {
			message = details[0].Issue
		}
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{Code: codeInvalidInput, Message: message, Details: details})
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, registry.ErrConflict):
		writeError(w, r, http.StatusConflict, codeConflict, err.Error())
	case errors.Is(err, registry.ErrForbidden):
		writeError(w, r, http.StatusForbidden, codeForbidden, err.Error())
	default:
		logger.FromContext(r.Context()).Error("failed to "+action, slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, codeInternal, "Failed to "+action)
	}
}
