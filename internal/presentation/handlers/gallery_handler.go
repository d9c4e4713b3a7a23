package handlers

import (
	"net/http"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/pagemarket/internal/application/services"
	"github.com/bimakw/pagemarket/internal/domain/entities"
)

// GalleryHandler handles HTTP requests for owner galleries and supply
type GalleryHandler struct {
	gallery *services.GalleryService
	supply  *services.SupplyService
	logger  *zap.Logger
}

// NewGalleryHandler creates a new gallery handler
func NewGalleryHandler(gallery *services.GalleryService, supply *services.SupplyService, logger *zap.Logger) *GalleryHandler {
	return &GalleryHandler{
		gallery: gallery,
		supply:  supply,
		logger:  logger,
	}
}

// RegisterRoutes registers the gallery routes
func (h *GalleryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/owners/{address}/tokens", h.GetOwnerTokens)
	r.Get("/supply", h.GetSupply)
}

// GalleryItem is one token of an owner's gallery
type GalleryItem struct {
	ID       entities.TokenID  `json:"id"`
	Metadata *MetadataResponse `json:"metadata,omitempty"`
}

// GalleryResponse represents an owner's tokens
type GalleryResponse struct {
	Owner     string        `json:"owner"`
	Total     int           `json:"total"`
	Tokens    []GalleryItem `json:"tokens"`
	UpdatedAt string        `json:"updated_at"`
}

// SupplyResponse represents the number of minted tokens
type SupplyResponse struct {
	TotalSupply string `json:"total_supply"`
}

// GetOwnerTokens handles GET /api/v1/owners/{address}/tokens
func (h *GalleryHandler) GetOwnerTokens(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !isValidAddress(address) {
		respondError(w, http.StatusBadRequest, "Invalid address format")
		return
	}

	gallery, err := h.gallery.Gallery(r.Context(), common.HexToAddress(address))
	if err != nil {
		respondServiceError(w, h.logger, "gallery", err)
		return
	}

	ids := append([]entities.TokenID(nil), gallery.TokenIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	items := make([]GalleryItem, 0, len(ids))
	for _, id := range ids {
		item := GalleryItem{ID: id}
		if md, ok := gallery.Metadata[id]; ok {
			item.Metadata = &MetadataResponse{Title: md.Title, ImageURL: md.ImageURL, PageURL: md.PageURL()}
		}
		items = append(items, item)
	}

	respondJSON(w, http.StatusOK, GalleryResponse{
		Owner:     gallery.Owner.Hex(),
		Total:     len(items),
		Tokens:    items,
		UpdatedAt: gallery.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	})
}

// GetSupply handles GET /api/v1/supply
func (h *GalleryHandler) GetSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := h.supply.Supply(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "supply", err)
		return
	}
	respondJSON(w, http.StatusOK, SupplyResponse{TotalSupply: supply.String()})
}
