package controlapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// handleEvaluate processes GET /api/v1/feature-flags/{flagKey}/evaluate/{merchantId}.
func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	res, err := a.evaluations.Evaluate(r.Context(), chi.URLParam(r, "flagKey"), chi.URLParam(r, "merchantId"))
	if err != nil {
		writeServiceError(w, r, err, "evaluate flag")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, res)
}

// handleEvaluateMerchant processes GET /api/v1/merchants/{merchantId}/feature-flags.
func (a *API) handleEvaluateMerchant(w http.ResponseWriter, r *http.Request) {
	res, err := a.evaluations.EvaluateAll(r.Context(), chi.URLParam(r, "merchantId"))
	if err != nil {
		writeServiceError(w, r, err, "evaluate flags")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, res)
}
