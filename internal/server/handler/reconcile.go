package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/inkpress/comicmint/internal/service"
)

// ReconcileHandler serves the admin backfill endpoint.
type ReconcileHandler struct {
	svc    *service.ReconcileService
	logger *slog.Logger
}

// NewReconcileHandler creates a reconcile handler.
func NewReconcileHandler(svc *service.ReconcileService, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		svc:    svc,
		logger: logHandler(logger, "reconcile"),
	}
}

type backfillRequest struct {
	ListingIDs []string `json:"listing_ids"`
}

// Backfill synthesizes missing transaction records for sold listings. An
// empty body (or empty listing_ids) scans for candidates; explicit ids
// reconcile exactly those listings.
// POST /api/admin/backfill
func (h *ReconcileHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	report, err := h.svc.Backfill(r.Context(), req.ListingIDs)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "backfill failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "backfill finished",
		slog.Int("examined", report.Examined),
		slog.Int("created", report.Created),
		slog.Int("skipped", report.Skipped),
	)

	writeJSON(w, http.StatusOK, report)
}
