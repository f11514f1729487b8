// Package handler exposes the preview/complete protocol and the thin read
// surface over HTTP. Handlers translate JSON to domain calls and map domain
// errors to status codes; business logic lives in the domain packages.
package handler

import (
	"net/http"

	"github.com/xenking/loyalty-engine/internal/domain/customer"
	"github.com/xenking/loyalty-engine/internal/domain/order"
	"github.com/xenking/loyalty-engine/internal/domain/points"
	"github.com/xenking/loyalty-engine/internal/domain/pricing"
	"github.com/xenking/loyalty-engine/internal/reservation"
)

// Handler holds the dependencies for all HTTP endpoints.
type Handler struct {
	orders       *order.Service
	entitlements *pricing.Calculator
	customers    customer.Repository
	ledger       points.Repository
	reservations reservation.Store
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders *order.Service,
	entitlements *pricing.Calculator,
	customers customer.Repository,
	ledger points.Repository,
	reservations reservation.Store,
) *Handler {
	return &Handler{
		orders:       orders,
		entitlements: entitlements,
		customers:    customers,
		ledger:       ledger,
		reservations: reservations,
	}
}

// Register mounts all API routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders/preview", h.Preview)
	mux.HandleFunc("POST /api/orders/complete", h.Complete)
	mux.HandleFunc("GET /api/customers/{id}/entitlements", h.CustomerEntitlements)
	mux.HandleFunc("GET /api/customers/{id}/points", h.CustomerPoints)
	mux.HandleFunc("GET /api/reservations/{token}", h.ReservationStatus)
}
