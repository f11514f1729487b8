package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/loyalty-engine/internal/domain/customer"
	"github.com/xenking/loyalty-engine/internal/reservation"
)

const defaultLedgerPage = 50

type ledgerEntryDTO struct {
	Amount    int64      `json:"amount"`
	Type      string     `json:"type"`
	Source    string     `json:"source,omitempty"`
	Balance   int64      `json:"balance"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type customerPointsResponse struct {
	CustomerID string           `json:"customerId"`
	Points     int64            `json:"points"`
	Tier       string           `json:"tier"`
	Ledger     []ledgerEntryDTO `json:"ledger"`
}

// CustomerEntitlements returns the customer's current stamp entitlements.
func (h *Handler) CustomerEntitlements(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.customers.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "customer not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	entitlements, err := h.entitlements.ForCustomer(r.Context(), id)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"customerId":   id,
		"entitlements": entitlements,
	})
}

// CustomerPoints returns the balance and a recent ledger page.
func (h *Handler) CustomerPoints(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	cust, err := h.customers.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, customer.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "customer not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	entries, err := h.ledger.ListByCustomer(r.Context(), id, defaultLedgerPage)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	ledger := make([]ledgerEntryDTO, len(entries))
	for i, e := range entries {
		ledger[i] = ledgerEntryDTO{
			Amount:    e.Amount,
			Type:      string(e.Type),
			Source:    e.Source,
			Balance:   e.Balance,
			ExpiresAt: e.ExpiresAt,
			CreatedAt: e.CreatedAt,
		}
	}

	writeJSON(w, r, http.StatusOK, customerPointsResponse{
		CustomerID: cust.ID,
		Points:     cust.Points,
		Tier:       string(cust.Tier),
		Ledger:     ledger,
	})
}

// ReservationStatus is a non-destructive token status check for diagnostics.
func (h *Handler) ReservationStatus(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	info, err := h.reservations.Peek(r.Context(), token)
	if err != nil {
		if errors.Is(err, reservation.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "reservation not found or expired")
			return
		}
		writeInternalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, tokenInfoDTO{
		ExpiresAt:        info.ExpiresAt,
		ExpiresInSeconds: int64(info.Remaining.Seconds()),
		Valid:            info.Valid,
	})
}
