package handler

import (
	"net/http"

	"corrsim/internal/simulator"
)

// ReferenceHandler serves the read-only market data.
type ReferenceHandler struct {
	sim *simulator.Simulator
}

// NewReferenceHandler creates a new reference data handler.
func NewReferenceHandler(sim *simulator.Simulator) *ReferenceHandler {
	return &ReferenceHandler{sim: sim}
}

// FxRates returns the USD pivot rates.
// GET /api/v1/fx
func (h *ReferenceHandler) FxRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.sim.FxRates(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(rates))
}

// FxHistory returns executed conversions, newest first.
// GET /api/v1/fx-history
func (h *ReferenceHandler) FxHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.sim.ListFxHistory(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(events))
}

// ClearingHours returns the clearing window of every currency.
// GET /api/v1/clearing-hours
func (h *ReferenceHandler) ClearingHours(w http.ResponseWriter, r *http.Request) {
	windows, err := h.sim.ClearingHours(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(windows))
}
