package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/loyalty-engine/internal/domain/customer"
	"github.com/xenking/loyalty-engine/internal/domain/order"
	"github.com/xenking/loyalty-engine/internal/domain/pricing"
)

type previewRequest struct {
	CustomerID string            `json:"customerId"`
	Items      []previewItem     `json:"items"`
	Selections previewSelections `json:"selections"`
}

type previewItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type previewSelections struct {
	UsePoints      int64    `json:"usePoints,omitempty"`
	CampaignIDs    []string `json:"campaignIds,omitempty"`
	RedeemStampIDs []string `json:"redeemStampIds,omitempty"`
	RewardIDs      []string `json:"rewardIds,omitempty"`
}

type lineDTO struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
	LineTotal float64 `json:"lineTotal"`
	IsFree    bool    `json:"isFree"`
}

type appliedCampaignDTO struct {
	CampaignID string  `json:"campaignId"`
	Name       string  `json:"name"`
	Discount   float64 `json:"discount"`
}

type stampDTO struct {
	CampaignID    string  `json:"campaignId"`
	FreeProductID string  `json:"freeProductId"`
	Name          string  `json:"name"`
	Value         float64 `json:"value"`
}

type rewardDTO struct {
	RewardID   string  `json:"rewardId"`
	Name       string  `json:"name"`
	Discount   float64 `json:"discount"`
	PointsCost int64   `json:"pointsCost,omitempty"`
}

type breakdownDTO struct {
	Lines         []lineDTO            `json:"lines"`
	Subtotal      float64              `json:"subtotal"`
	Campaigns     []appliedCampaignDTO `json:"campaigns"`
	Stamps        []stampDTO           `json:"stamps"`
	Rewards       []rewardDTO          `json:"rewards"`
	TotalDiscount float64              `json:"totalDiscount"`
	FinalTotal    float64              `json:"finalTotal"`
}

type pointImpactDTO struct {
	PointsUsed        int64   `json:"pointsUsed"`
	PointsValue       float64 `json:"pointsValue"`
	PointsToEarn      int64   `json:"pointsToEarn"`
	LoyaltyMultiplier float64 `json:"loyaltyMultiplier"`
}

type tokenInfoDTO struct {
	ExpiresAt        time.Time `json:"expiresAt"`
	ExpiresInSeconds int64     `json:"expiresInSeconds"`
	Valid            bool      `json:"valid"`
}

type previewResponse struct {
	Breakdown        breakdownDTO   `json:"breakdown"`
	Impact           pointImpactDTO `json:"impact"`
	Warnings         []pricing.Note `json:"warnings"`
	Errors           []pricing.Note `json:"errors,omitempty"`
	ReservationToken string         `json:"reservationToken"`
	TokenInfo        tokenInfoDTO   `json:"tokenInfo"`
}

// Preview prices an order and reserves the result under a token.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CustomerID == "" {
		writeError(w, r, http.StatusBadRequest, "customerId required")
		return
	}

	items := make([]order.ItemSelection, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemSelection{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	result, err := h.orders.Preview(r.Context(), order.PreviewRequest{
		CustomerID: req.CustomerID,
		Items:      items,
		Selections: pricing.Selections{
			UsePoints:      req.Selections.UsePoints,
			CampaignIDs:    req.Selections.CampaignIDs,
			RedeemStampIDs: req.Selections.RedeemStampIDs,
			RewardIDs:      req.Selections.RewardIDs,
		},
	})
	if err != nil {
		mapPreviewError(w, r, err)
		return
	}

	b := result.Breakdown
	writeJSON(w, r, http.StatusOK, previewResponse{
		Breakdown: toBreakdownDTO(b),
		Impact: pointImpactDTO{
			PointsUsed:        b.PointsUsed,
			PointsValue:       b.PointsValue.InexactFloat64(),
			PointsToEarn:      b.PointsToEarn,
			LoyaltyMultiplier: b.LoyaltyMultiplier.InexactFloat64(),
		},
		Warnings:         orEmptyNotes(b.Warnings),
		Errors:           b.Errors,
		ReservationToken: result.Token,
		TokenInfo: tokenInfoDTO{
			ExpiresAt:        result.TokenInfo.ExpiresAt,
			ExpiresInSeconds: result.TokenInfo.ExpiresInSeconds,
			Valid:            result.TokenInfo.Valid,
		},
	})
}

func toBreakdownDTO(b pricing.Breakdown) breakdownDTO {
	dto := breakdownDTO{
		Lines:         make([]lineDTO, len(b.Lines)),
		Subtotal:      b.Subtotal.InexactFloat64(),
		Campaigns:     make([]appliedCampaignDTO, len(b.Campaigns)),
		Stamps:        make([]stampDTO, len(b.Stamps)),
		Rewards:       make([]rewardDTO, len(b.Rewards)),
		TotalDiscount: b.TotalDiscount.InexactFloat64(),
		FinalTotal:    b.FinalTotal.InexactFloat64(),
	}
	for i, l := range b.Lines {
		dto.Lines[i] = lineDTO{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice.InexactFloat64(),
			Quantity:  l.Quantity,
			LineTotal: l.LineTotal.InexactFloat64(),
			IsFree:    l.IsFree,
		}
	}
	for i, c := range b.Campaigns {
		dto.Campaigns[i] = appliedCampaignDTO{
			CampaignID: c.CampaignID,
			Name:       c.Name,
			Discount:   c.Discount.InexactFloat64(),
		}
	}
	for i, s := range b.Stamps {
		dto.Stamps[i] = stampDTO{
			CampaignID:    s.CampaignID,
			FreeProductID: s.FreeProductID,
			Name:          s.Name,
			Value:         s.Value.InexactFloat64(),
		}
	}
	for i, rw := range b.Rewards {
		dto.Rewards[i] = rewardDTO{
			RewardID:   rw.RewardID,
			Name:       rw.Name,
			Discount:   rw.Discount.InexactFloat64(),
			PointsCost: rw.PointsCost,
		}
	}
	return dto
}

func mapPreviewError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr  *order.InvalidQuantityError
		pnfErr *order.ProductNotFoundError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &iqErr):
		writeError(w, r, http.StatusUnprocessableEntity, iqErr.Error())
	case errors.As(err, &pnfErr):
		writeError(w, r, http.StatusUnprocessableEntity, pnfErr.Error())
	case errors.Is(err, customer.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "customer not found")
	default:
		writeInternalError(w, r, err)
	}
}

// orEmptyNotes keeps warnings serialized as [] rather than null.
func orEmptyNotes(notes []pricing.Note) []pricing.Note {
	if notes == nil {
		return []pricing.Note{}
	}
	return notes
}
