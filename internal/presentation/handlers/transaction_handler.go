package handlers

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/application/services"
)

// TransactionHandler handles HTTP requests for submitted transactions
type TransactionHandler struct {
	market *services.MarketService
	logger *zap.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(market *services.MarketService, logger *zap.Logger) *TransactionHandler {
	return &TransactionHandler{
		market: market,
		logger: logger,
	}
}

// RegisterRoutes registers the transaction routes
func (h *TransactionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/transactions/{hash}", h.GetTransaction)
}

// GetTransaction handles GET /api/v1/transactions/{hash}
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	if !isValidHash(hash) {
		respondError(w, http.StatusBadRequest, "Invalid transaction hash format")
		return
	}

	status, ok := h.market.Transaction(common.HexToHash(hash))
	if !ok {
		respondError(w, http.StatusNotFound, "transaction not found")
		return
	}

	respondJSON(w, http.StatusOK, status)
}

func isValidHash(hash string) bool {
	if len(hash) != 66 || !strings.HasPrefix(hash, "0x") {
		return false
	}
	for _, c := range hash[2:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
