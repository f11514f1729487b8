package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/loyalty-engine/internal/domain/customer"
	"github.com/xenking/loyalty-engine/internal/domain/order"
	"github.com/xenking/loyalty-engine/internal/domain/pricing"
)

type completeRequest struct {
	ReservationToken string `json:"reservationToken"`
	OrderNumber      string `json:"orderNumber"`
	PaymentMethod    string `json:"paymentMethod,omitempty"`
	PaymentReference string `json:"paymentReference,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

type summaryDTO struct {
	Subtotal      float64 `json:"subtotal"`
	TotalDiscount float64 `json:"totalDiscount"`
	FinalTotal    float64 `json:"finalTotal"`
	PointsUsed    int64   `json:"pointsUsed"`
	PointsEarned  int64   `json:"pointsEarned"`
	PointsBalance int64   `json:"pointsBalance"`
}

type receiptDTO struct {
	OrderNumber   string    `json:"orderNumber"`
	Lines         []lineDTO `json:"lines"`
	Subtotal      float64   `json:"subtotal"`
	TotalDiscount float64   `json:"totalDiscount"`
	FinalTotal    float64   `json:"finalTotal"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type completeResponse struct {
	Success       bool                `json:"success"`
	TransactionID string              `json:"transactionId"`
	OrderNumber   string              `json:"orderNumber"`
	Summary       summaryDTO          `json:"summary"`
	Warnings      []pricing.Note      `json:"warnings,omitempty"`
	Achievements  []order.Achievement `json:"achievements,omitempty"`
	Receipt       receiptDTO          `json:"receipt"`
}

// Complete commits a previously reserved breakdown under an idempotent
// order number.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ReservationToken == "" {
		writeError(w, r, http.StatusBadRequest, "reservationToken required")
		return
	}
	if req.OrderNumber == "" {
		writeError(w, r, http.StatusBadRequest, "orderNumber required")
		return
	}

	result, err := h.orders.Complete(r.Context(), order.CompleteRequest{
		ReservationToken: req.ReservationToken,
		OrderNumber:      req.OrderNumber,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: req.PaymentReference,
		Notes:            req.Notes,
	})
	if err != nil {
		mapCompleteError(w, r, err)
		return
	}

	lines := make([]lineDTO, len(result.Receipt.Lines))
	for i, l := range result.Receipt.Lines {
		lines[i] = lineDTO{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice.InexactFloat64(),
			Quantity:  l.Quantity,
			LineTotal: l.LineTotal.InexactFloat64(),
			IsFree:    l.IsFree,
		}
	}

	writeJSON(w, r, http.StatusCreated, completeResponse{
		Success:       true,
		TransactionID: result.TransactionID,
		OrderNumber:   result.OrderNumber,
		Summary: summaryDTO{
			Subtotal:      result.Summary.Subtotal.InexactFloat64(),
			TotalDiscount: result.Summary.TotalDiscount.InexactFloat64(),
			FinalTotal:    result.Summary.FinalTotal.InexactFloat64(),
			PointsUsed:    result.Summary.PointsUsed,
			PointsEarned:  result.Summary.PointsEarned,
			PointsBalance: result.Summary.PointsBalance,
		},
		Warnings:     result.Warnings,
		Achievements: result.Achievements,
		Receipt: receiptDTO{
			OrderNumber:   result.Receipt.OrderNumber,
			Lines:         lines,
			Subtotal:      result.Receipt.Subtotal.InexactFloat64(),
			TotalDiscount: result.Receipt.TotalDiscount.InexactFloat64(),
			FinalTotal:    result.Receipt.FinalTotal.InexactFloat64(),
			PaymentMethod: result.Receipt.PaymentMethod,
			CreatedAt:     result.Receipt.CreatedAt,
		},
	})
}

func mapCompleteError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		dupErr *order.DuplicateOrderError
		ipErr  *order.InsufficientPointsError
	)
	switch {
	case errors.As(err, &dupErr):
		writeError(w, r, http.StatusConflict, dupErr.Error())
	case errors.Is(err, order.ErrInvalidToken):
		writeError(w, r, http.StatusBadRequest, "invalid or expired reservation token, request a new preview")
	case errors.As(err, &ipErr):
		writeError(w, r, http.StatusBadRequest, ipErr.Error())
	case errors.Is(err, customer.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "customer not found")
	default:
		writeInternalError(w, r, err)
	}
}
