package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"corrsim/internal/models"
	"corrsim/internal/simulator"
)

// BankHandler handles bank, client and correspondent endpoints.
type BankHandler struct {
	sim *simulator.Simulator
}

// NewBankHandler creates a new bank handler.
func NewBankHandler(sim *simulator.Simulator) *BankHandler {
	return &BankHandler{sim: sim}
}

// CreateBankRequest represents a bank creation request.
type CreateBankRequest struct {
	Name         string `json:"name" validate:"required"`
	BaseCurrency string `json:"baseCurrency" validate:"required,len=3"`
}

// CreateClientRequest represents a regular client creation request.
type CreateClientRequest struct {
	Name string `json:"name" validate:"required"`
}

// CreateCorrespondentRequest opens a nostro for the owner at the correspondent.
type CreateCorrespondentRequest struct {
	OwnerBankID         string `json:"ownerBankId" validate:"required"`
	CorrespondentBankID string `json:"correspondentBankId" validate:"required"`
}

// List returns all banks.
// GET /api/v1/banks
func (h *BankHandler) List(w http.ResponseWriter, r *http.Request) {
	banks, err := h.sim.ListBanks(r.Context())
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(banks))
}

// Create creates a bank together with its House client.
// POST /api/v1/banks
func (h *BankHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBankRequest
	if err := decode(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	bank, err := h.sim.CreateBank(r.Context(), models.CreateBankParams{
		Name:         req.Name,
		BaseCurrency: req.BaseCurrency,
	})
	if err != nil {
		Fail(w, err)
		return
	}

	JSON(w, http.StatusCreated, bank)
}

// Currencies returns what a bank can hold.
// GET /api/v1/banks/{id}/currencies
func (h *BankHandler) Currencies(w http.ResponseWriter, r *http.Request) {
	available, err := h.sim.AvailableCurrencies(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, available)
}

// CreateClient opens a regular client at the bank.
// POST /api/v1/banks/{id}/clients
func (h *BankHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := decode(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	client, err := h.sim.CreateClient(r.Context(), models.CreateClientParams{
		BankID: chi.URLParam(r, "id"),
		Name:   req.Name,
	})
	if err != nil {
		Fail(w, err)
		return
	}

	JSON(w, http.StatusCreated, client)
}

// House returns the bank's House client, creating it if needed.
// POST /api/v1/banks/{id}/house
func (h *BankHandler) House(w http.ResponseWriter, r *http.Request) {
	client, err := h.sim.HouseClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, client)
}

// Nostros lists nostro accounts, optionally filtered by owner and currency.
// GET /api/v1/nostros?ownerBankId=&currency=
func (h *BankHandler) Nostros(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.NostroFilter{
		OwnerBankID: q.Get("ownerBankId"),
		Currency:    strings.ToUpper(q.Get("currency")),
	}

	nostros, err := h.sim.ListNostros(r.Context(), filter)
	if err != nil {
		Fail(w, err)
		return
	}
	JSON(w, http.StatusOK, nonNil(nostros))
}

// CreateCorrespondent opens a nostro and its mirrored vostro.
// POST /api/v1/correspondents/nostro
func (h *BankHandler) CreateCorrespondent(w http.ResponseWriter, r *http.Request) {
	var req CreateCorrespondentRequest
	if err := decode(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	nostro, err := h.sim.CreateCorrespondent(r.Context(), req.OwnerBankID, req.CorrespondentBankID)
	if err != nil {
		Fail(w, err)
		return
	}

	JSON(w, http.StatusCreated, nostro)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
