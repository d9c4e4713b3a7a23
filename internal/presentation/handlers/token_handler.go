package handlers

import (
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/application/services"
	"github.com/bimakw/pagemarket/internal/domain/entities"
)

// TokenHandler handles HTTP requests for page tokens
type TokenHandler struct {
	market   *services.MarketService
	resolver *services.MetadataResolver
	history  *services.HistoryService
	logger   *zap.Logger
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(market *services.MarketService, resolver *services.MetadataResolver, history *services.HistoryService, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{
		market:   market,
		resolver: resolver,
		history:  history,
		logger:   logger,
	}
}

// RegisterRoutes registers the token routes
func (h *TokenHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tokens/{id}", h.GetToken)
	r.Get("/tokens/{id}/quote", h.GetQuote)
	r.Get("/tokens/{id}/history", h.GetHistory)
	r.Post("/tokens/{id}/actions", h.PostAction)
}

// AmountResponse is a wei amount with its ether rendering
type AmountResponse struct {
	Wei   string `json:"wei"`
	Ether string `json:"ether"`
}

func newAmount(wei *big.Int) AmountResponse {
	if wei == nil {
		wei = new(big.Int)
	}
	return AmountResponse{Wei: wei.String(), Ether: entities.FormatEther(wei)}
}

// OfferResponse represents a token's sale offer
type OfferResponse struct {
	IsForSale bool           `json:"is_for_sale"`
	MinPrice  AmountResponse `json:"min_price"`
	Seller    string         `json:"seller"`
}

// BidResponse represents a token's open bid
type BidResponse struct {
	HasBid bool           `json:"has_bid"`
	Bidder string         `json:"bidder,omitempty"`
	Value  AmountResponse `json:"value"`
}

// MetadataResponse represents off-chain token metadata
type MetadataResponse struct {
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
	PageURL  string `json:"page_url"`
}

// TokenResponse represents a token with its market state
type TokenResponse struct {
	ID             entities.TokenID  `json:"id"`
	Owner          string            `json:"owner"`
	Offer          OfferResponse     `json:"offer"`
	Bid            BidResponse       `json:"bid"`
	Metadata       *MetadataResponse `json:"metadata,omitempty"`
	AllowedActions []entities.Action `json:"allowed_actions,omitempty"`
}

// QuoteResponse represents the payment a purchase requires, and the donation
// owed on the open bid when there is one
type QuoteResponse struct {
	TokenID     entities.TokenID `json:"token_id"`
	MinPrice    AmountResponse   `json:"min_price"`
	Donation    AmountResponse   `json:"donation"`
	Total       AmountResponse   `json:"total"`
	Bid         *AmountResponse  `json:"bid,omitempty"`
	BidDonation *AmountResponse  `json:"bid_donation,omitempty"`
}

// HistoryResponse represents a token's ordered event history
type HistoryResponse struct {
	TokenID entities.TokenID        `json:"token_id"`
	Events  []entities.HistoryEvent `json:"events"`
}

// ActionResponse acknowledges a submitted transaction
type ActionResponse struct {
	TxHash string           `json:"tx_hash"`
	Status entities.TxState `json:"status"`
}

// GetToken handles GET /api/v1/tokens/{id}
func (h *TokenHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var caller *common.Address
	if v := r.URL.Query().Get("caller"); v != "" {
		if !isValidAddress(v) {
			respondError(w, http.StatusBadRequest, "Invalid caller address format")
			return
		}
		addr := common.HexToAddress(v)
		caller = &addr
	}

	if err := h.market.Track(id); err != nil {
		h.logger.Warn("Failed to track token", zap.Stringer("token_id", id), zap.Error(err))
	}

	state, err := h.market.State(ctx, id)
	if err != nil {
		respondServiceError(w, h.logger, "state", err)
		return
	}

	response := newTokenResponse(state)
	if md, ok := h.resolver.Resolve(ctx, []entities.TokenID{id})[id]; ok {
		response.Metadata = &MetadataResponse{Title: md.Title, ImageURL: md.ImageURL, PageURL: md.PageURL()}
	}
	if caller != nil {
		response.AllowedActions = services.AllowedActionsFor(state, *caller)
	}

	respondJSON(w, http.StatusOK, response)
}

// GetQuote handles GET /api/v1/tokens/{id}/quote
func (h *TokenHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	quote, err := h.market.Quote(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "quote", err)
		return
	}

	response := QuoteResponse{
		TokenID:  quote.TokenID,
		MinPrice: newAmount(quote.MinPrice),
		Donation: newAmount(quote.Donation),
		Total:    newAmount(quote.Total),
	}
	if quote.Bid != nil {
		bid, donation := newAmount(quote.Bid), newAmount(quote.BidDonation)
		response.Bid, response.BidDonation = &bid, &donation
	}
	respondJSON(w, http.StatusOK, response)
}

// GetHistory handles GET /api/v1/tokens/{id}/history
func (h *TokenHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	events, err := h.history.TokenHistory(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, "history", err)
		return
	}

	respondJSON(w, http.StatusOK, HistoryResponse{TokenID: id, Events: events})
}

// PostAction handles POST /api/v1/tokens/{id}/actions
func (h *TokenHandler) PostAction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req services.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Action == "" {
		respondError(w, http.StatusBadRequest, "action is required")
		return
	}

	tracker, err := h.market.Execute(r.Context(), id, req)
	if err != nil {
		respondServiceError(w, h.logger, string(req.Action), err)
		return
	}

	respondJSON(w, http.StatusAccepted, ActionResponse{
		TxHash: tracker.Hash().Hex(),
		Status: tracker.Status().State,
	})
}

func (h *TokenHandler) parseID(w http.ResponseWriter, r *http.Request) (entities.TokenID, bool) {
	id, err := entities.ParseTokenID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid token id")
		return 0, false
	}
	return id, true
}

func newTokenResponse(state entities.TokenState) TokenResponse {
	response := TokenResponse{
		ID:    state.ID,
		Owner: state.Owner.Hex(),
		Offer: OfferResponse{
			IsForSale: state.Offer.IsForSale,
			MinPrice:  newAmount(state.Offer.MinPrice),
			Seller:    state.Offer.Seller.Hex(),
		},
		Bid: BidResponse{
			HasBid: state.Bid.HasBid,
			Value:  newAmount(state.Bid.Value),
		},
	}
	if state.Bid.HasBid {
		response.Bid.Bidder = state.Bid.Bidder.Hex()
	}
	return response
}
