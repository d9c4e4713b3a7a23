package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/application/services"
	"github.com/bimakw/pagemarket/internal/domain/entities"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors to HTTP statuses. Validation and ledger
// rejections carry their reason to the client.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	var (
		validation *entities.ValidationError
		rejection  *entities.ContractRejectionError
		reverted   *entities.MethodRevertedError
	)

	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusUnprocessableEntity, validation.Error())
	case errors.As(err, &rejection):
		respondError(w, http.StatusConflict, rejection.Error())
	case errors.Is(err, entities.ErrPendingTransaction):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, entities.ErrInsufficientFunds):
		respondError(w, http.StatusPaymentRequired, "insufficient funds")
	case errors.As(err, &reverted):
		respondError(w, http.StatusBadGateway, reverted.Error())
	case entities.IsLedgerUnavailable(err):
		logger.Warn("Ledger unavailable", zap.String("op", op), zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "ledger unavailable")
	case errors.Is(err, services.ErrWalletNotConfigured):
		respondError(w, http.StatusServiceUnavailable, "wallet not configured")
	default:
		logger.Error("Request failed", zap.String("op", op), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func isValidAddress(addr string) bool {
	if len(addr) != 42 {
		return false
	}
	if !strings.HasPrefix(addr, "0x") {
		return false
	}
	return common.IsHexAddress(addr)
}
