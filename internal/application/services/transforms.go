package services

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/pagemarket/internal/domain/entities"
)

// Poll transforms. Each one is total: a raw value of the wrong shape yields the
// empty value instead of failing.

// TokenStateTransform decodes the tokenState view for id
func TokenStateTransform(id entities.TokenID) func(entities.RawValue) entities.TokenState {
	return func(raw entities.RawValue) entities.TokenState {
		state := entities.EmptyTokenState(id)
		if len(raw) != 3 {
			return state
		}

		if owner, ok := nested(raw, 0); ok {
			state.Owner = addressAt(owner, 0)
		}
		if offer, ok := nested(raw, 1); ok {
			state.Offer = entities.Offer{
				IsForSale: boolAt(offer, 0),
				Seller:    addressAt(offer, 2),
				MinPrice:  bigAt(offer, 3),
			}
		}
		if bid, ok := nested(raw, 2); ok {
			state.Bid = entities.Bid{
				HasBid: boolAt(bid, 0),
				Bidder: addressAt(bid, 2),
				Value:  bigAt(bid, 3),
			}
		}
		return state
	}
}

// TokenIDsTransform decodes the id list of a tokensOf result
func TokenIDsTransform(raw entities.RawValue) []entities.TokenID {
	ids := make([]entities.TokenID, 0)
	if len(raw) == 0 {
		return ids
	}
	tokens, ok := raw[0].([]*big.Int)
	if !ok {
		return ids
	}
	for _, token := range tokens {
		if token == nil || !token.IsUint64() {
			continue
		}
		ids = append(ids, entities.TokenID(token.Uint64()))
	}
	return ids
}

// UintTransform decodes a single uint256 output, such as totalSupply
func UintTransform(raw entities.RawValue) *big.Int {
	return bigAt(raw, 0)
}

func nested(raw entities.RawValue, i int) (entities.RawValue, bool) {
	v, ok := raw[i].(entities.RawValue)
	return v, ok
}

func boolAt(raw entities.RawValue, i int) bool {
	if i >= len(raw) {
		return false
	}
	v, _ := raw[i].(bool)
	return v
}

func addressAt(raw entities.RawValue, i int) common.Address {
	if i >= len(raw) {
		return entities.NullAddress
	}
	v, _ := raw[i].(common.Address)
	return v
}

func bigAt(raw entities.RawValue, i int) *big.Int {
	if i >= len(raw) {
		return new(big.Int)
	}
	v, ok := raw[i].(*big.Int)
	if !ok || v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
