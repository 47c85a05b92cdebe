package handler

import (
	"context"
	"net/http"

	"corrsim/internal/models"
	"corrsim/internal/simulator"
)

// AdminHandler handles clock control and resets.
type AdminHandler struct {
	sim *simulator.Simulator
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(sim *simulator.Simulator) *AdminHandler {
	return &AdminHandler{sim: sim}
}

// Clock returns the current simulated time.
// GET /api/v1/clock
func (h *AdminHandler) Clock(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.sim.Clock())
}

// Pause handles POST /api/v1/admin/clock/pause.
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.clock(w, r, h.sim.Pause)
}

// Play handles POST /api/v1/admin/clock/play.
func (h *AdminHandler) Play(w http.ResponseWriter, r *http.Request) {
	h.clock(w, r, h.sim.Play)
}

// Faster handles POST /api/v1/admin/clock/faster.
func (h *AdminHandler) Faster(w http.ResponseWriter, r *http.Request) {
	h.clock(w, r, h.sim.Faster)
}

// Slower handles POST /api/v1/admin/clock/slower.
func (h *AdminHandler) Slower(w http.ResponseWriter, r *http.Request) {
	h.clock(w, r, h.sim.Slower)
}

// ResetClock handles POST /api/v1/admin/reset-clock.
func (h *AdminHandler) ResetClock(w http.ResponseWriter, r *http.Request) {
	h.clock(w, r, h.sim.ResetClock)
}

func (h *AdminHandler) clock(w http.ResponseWriter, r *http.Request, change func(context.Context) (models.ClockStatus, error)) {
	status, err := change(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, status)
}

// Reset wipes the simulation and reseeds reference data.
// POST /api/v1/admin/reset
func (h *AdminHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.sim.Reset(r.Context()); err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, OK{OK: true})
}

// ResetPayments drops payments and FX history.
// POST /api/v1/admin/reset-payments
func (h *AdminHandler) ResetPayments(w http.ResponseWriter, r *http.Request) {
	if err := h.sim.ResetPayments(r.Context()); err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, OK{OK: true})
}
