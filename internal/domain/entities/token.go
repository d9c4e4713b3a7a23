package entities

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// TokenID identifies a wiki page token. It is assigned by the ledger at mint time.
type TokenID uint64

// String returns the decimal representation of the id
func (id TokenID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Big returns the id as a uint256-compatible integer for ABI encoding
func (id TokenID) Big() *big.Int {
	return new(big.Int).SetUint64(uint64(id))
}

// ParseTokenID parses a decimal token id
func ParseTokenID(s string) (TokenID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return TokenID(v), nil
}

// NullAddress is the all-zero address the ledger uses for "no owner" and "no bidder"
var NullAddress = common.Address{}

// Offer is the sale offer of a token. MinPrice is denominated in wei.
type Offer struct {
	IsForSale bool           `json:"is_for_sale"`
	MinPrice  *big.Int       `json:"min_price"`
	Seller    common.Address `json:"seller"`
}

// Bid is the single outstanding bid slot of a token. Bidder is meaningless when HasBid is false.
type Bid struct {
	HasBid bool           `json:"has_bid"`
	Bidder common.Address `json:"bidder"`
	Value  *big.Int       `json:"value"`
}

// TokenState is one consistent sample of a token's ownership, offer and bid
type TokenState struct {
	ID    TokenID        `json:"id"`
	Owner common.Address `json:"owner"`
	Offer Offer          `json:"offer"`
	Bid   Bid            `json:"bid"`
}

// IsOwned reports whether the token has been minted to someone
func (s TokenState) IsOwned() bool {
	return s.Owner != NullAddress
}

// Equal compares two states by value. Nil and zero amounts are equal.
func (s TokenState) Equal(other TokenState) bool {
	return s.ID == other.ID &&
		s.Owner == other.Owner &&
		s.Offer.Equal(other.Offer) &&
		s.Bid.Equal(other.Bid)
}

// Equal compares two offers by value
func (o Offer) Equal(other Offer) bool {
	return o.IsForSale == other.IsForSale &&
		o.Seller == other.Seller &&
		amountsEqual(o.MinPrice, other.MinPrice)
}

// Equal compares two bids by value
func (b Bid) Equal(other Bid) bool {
	return b.HasBid == other.HasBid &&
		b.Bidder == other.Bidder &&
		amountsEqual(b.Value, other.Value)
}

// EmptyTokenState is the "no data yet" state for a token
func EmptyTokenState(id TokenID) TokenState {
	return TokenState{
		ID:    id,
		Owner: NullAddress,
		Offer: Offer{MinPrice: new(big.Int)},
		Bid:   Bid{Value: new(big.Int)},
	}
}

func amountsEqual(a, b *big.Int) bool {
	return amountOrZero(a).Cmp(amountOrZero(b)) == 0
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
