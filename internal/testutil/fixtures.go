package testutil

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/pagemarket/internal/domain/entities"
)

// Common test addresses
var (
	TokenAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	AliceAddress = common.HexToAddress("0x1111111111111111111111111111111111111111")
	BobAddress   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	CharlieAddr  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// Ether returns n whole ether in wei
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// CreateTestTokenState creates a token owned by Alice with no offer and no bid
func CreateTestTokenState(id entities.TokenID, opts ...TokenStateOption) entities.TokenState {
	s := entities.EmptyTokenState(id)
	s.Owner = AliceAddress

	for _, opt := range opts {
		opt(&s)
	}

	return s
}

type TokenStateOption func(*entities.TokenState)

func WithOwner(owner common.Address) TokenStateOption {
	return func(s *entities.TokenState) {
		s.Owner = owner
	}
}

// WithOffer lists the token for price, sold by the current owner
func WithOffer(price *big.Int) TokenStateOption {
	return func(s *entities.TokenState) {
		s.Offer = entities.Offer{IsForSale: true, MinPrice: price, Seller: s.Owner}
	}
}

func WithBid(bidder common.Address, value *big.Int) TokenStateOption {
	return func(s *entities.TokenState) {
		s.Bid = entities.Bid{HasBid: true, Bidder: bidder, Value: value}
	}
}

// RawTokenState encodes state the way the reader returns the tokenState view
func RawTokenState(s entities.TokenState) entities.RawValue {
	minPrice := s.Offer.MinPrice
	if minPrice == nil {
		minPrice = new(big.Int)
	}
	value := s.Bid.Value
	if value == nil {
		value = new(big.Int)
	}
	return entities.RawValue{
		entities.RawValue{s.Owner},
		entities.RawValue{s.Offer.IsForSale, s.ID.Big(), s.Offer.Seller, minPrice, entities.NullAddress},
		entities.RawValue{s.Bid.HasBid, s.ID.Big(), s.Bid.Bidder, value},
	}
}

// RawTokensOf encodes a tokensOf result holding ids
func RawTokensOf(ids ...entities.TokenID) entities.RawValue {
	tokens := make([]*big.Int, len(ids))
	for i, id := range ids {
		tokens[i] = id.Big()
	}
	total := big.NewInt(int64(len(ids)))
	return entities.RawValue{tokens, total, total}
}

// RawUint encodes a single uint256 output such as totalSupply
func RawUint(v int64) entities.RawValue {
	return entities.RawValue{big.NewInt(v)}
}

// CreateTestEvent creates a history event with default values
func CreateTestEvent(id entities.TokenID, kind entities.EventKind, block uint64) entities.HistoryEvent {
	return entities.HistoryEvent{
		Kind:        kind,
		TokenID:     id,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
		From:        AliceAddress,
		Value:       new(big.Int),
		Timestamp:   time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC).Add(time.Duration(block) * 12 * time.Second),
	}
}

// CreateTestMetadata creates metadata for a page token
func CreateTestMetadata(id entities.TokenID, title string) entities.TokenMetadata {
	return entities.TokenMetadata{
		ID:       id,
		Title:    title,
		ImageURL: "https://upload.wikimedia.org/" + id.String() + ".png",
	}
}
