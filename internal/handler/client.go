package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"corrsim/internal/simulator"
)

// ClientHandler handles client endpoints.
type ClientHandler struct {
	sim *simulator.Simulator
}

// NewClientHandler creates a new client handler.
func NewClientHandler(sim *simulator.Simulator) *ClientHandler {
	return &ClientHandler{sim: sim}
}

// DepositRequest credits a client. Amount accepts a JSON number or string.
type DepositRequest struct {
	Currency string          `json:"currency" validate:"required,len=3"`
	Amount   decimal.Decimal `json:"amount"`
}

// List returns every client with its balances.
// GET /api/v1/clients
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	clients, err := h.sim.ListClients(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(clients))
}

// Deposit credits a regular or House client.
// POST /api/v1/clients/{id}/deposit
func (h *ClientHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := decode(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.sim.Deposit(r.Context(), chi.URLParam(r, "id"), req.Currency, req.Amount); err != nil {
		Fail(w, err)
		return
	}

	JSON(w, http.StatusOK, OK{OK: true})
}
