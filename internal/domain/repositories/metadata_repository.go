package repositories

import (
	"context"

	"github.com/bimakw/pagemarket/internal/domain/entities"
)

// MetadataLookup defines the off-chain metadata source for tokens
type MetadataLookup interface {
	// FetchMetadata retrieves metadata for one token. Returns entities.ErrMetadataNotFound
	// when the source has no entry.
	FetchMetadata(ctx context.Context, id entities.TokenID) (*entities.TokenMetadata, error)
}

// MetadataCache defines a shared cache tier for resolved metadata
type MetadataCache interface {
	// GetMetadata returns cached metadata or an error on miss
	GetMetadata(ctx context.Context, id entities.TokenID) (*entities.TokenMetadata, error)

	// SetMetadata stores resolved metadata
	SetMetadata(ctx context.Context, metadata *entities.TokenMetadata) error
}
