package handler

import (
	"log/slog"
	"net/http"

	"github.com/inkpress/comicmint/internal/domain"
	"github.com/inkpress/comicmint/internal/service"
)

// SettlementHandler serves the purchase and auction-completion endpoints.
type SettlementHandler struct {
	svc    *service.SettlementService
	logger *slog.Logger
}

// NewSettlementHandler creates a settlement handler.
func NewSettlementHandler(svc *service.SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		svc:    svc,
		logger: logHandler(logger, "settlement"),
	}
}

type buyRequest struct {
	Buyer partyRequest `json:"buyer"`
}

// Buy purchases a fixed-price listing at its asking price.
// POST /api/listings/{id}/buy
func (h *SettlementHandler) Buy(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rec, err := h.svc.Buy(r.Context(), domain.BuyCommand{
		ListingID: id,
		Buyer:     req.Buyer.toDomain(),
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "buy failed",
			slog.String("listing_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(rec))
}

// CompleteAuction evaluates and settles an ended auction. A sale returns
// the settlement record; a no-sale ending returns just the outcome.
// POST /api/auctions/{id}/complete
func (h *SettlementHandler) CompleteAuction(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	outcome, rec, err := h.svc.CompleteAuction(r.Context(), id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "auction completion failed",
			slog.String("listing_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"listing_id": id,
		"outcome":    string(outcome),
	}
	if outcome == domain.OutcomeSale {
		resp["transaction"] = toTransactionResponse(rec)
	}

	writeJSON(w, http.StatusOK, resp)
}
