package handler

import (
	"log/slog"
	"net/http"

	"github.com/inkpress/comicmint/internal/domain"
)

// TransactionHandler serves read access to the settlement ledger.
type TransactionHandler struct {
	txs    domain.TransactionStore
	logger *slog.Logger
}

// NewTransactionHandler creates a transaction handler.
func NewTransactionHandler(txs domain.TransactionStore, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		txs:    txs,
		logger: logHandler(logger, "transaction"),
	}
}

// List returns transaction records, newest first.
// GET /api/transactions
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.txs.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list transactions failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": toTransactionResponses(recs),
		"count":        len(recs),
	})
}

// Get returns a single transaction record by id.
// GET /api/transactions/{id}
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	rec, err := h.txs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(rec))
}
