// Package market validates marketplace actions against a sampled token state and turns
// them into ledger write calls. Amounts are wei throughout; decimal conversion happens at
// the HTTP boundary.
package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/pagemarket/internal/domain/entities"
)

// Token contract write methods
const (
	methodOfferForSale = "offerPageForSale"
	methodNoLongerSale = "pageNoLongerForSale"
	methodBuy          = "buyPage"
	methodEnterBid     = "enterBidForPage"
	methodWithdrawBid  = "withdrawBidForPage"
	methodAcceptBid    = "acceptBidForPage"
)

// DonationQuoter asks the ledger for the donation owed on an amount
type DonationQuoter interface {
	Donation(ctx context.Context, amount *big.Int) (*big.Int, error)
}

// Machine checks action preconditions against one immutable TokenState
type Machine struct {
	state entities.TokenState
}

// NewMachine wraps a sampled token state
func NewMachine(state entities.TokenState) *Machine {
	return &Machine{state: state}
}

// State returns the state the machine validates against
func (m *Machine) State() entities.TokenState {
	return m.state
}

// ListForSale offers the token at price wei
func (m *Machine) ListForSale(caller common.Address, price *big.Int) (entities.WriteCall, error) {
	if caller != m.state.Owner {
		return entities.WriteCall{}, reject(entities.ActionListForSale, "caller is not the owner")
	}
	if !isPositive(price) {
		return entities.WriteCall{}, reject(entities.ActionListForSale, "price must be greater than zero")
	}
	return m.call(entities.ActionListForSale, methodOfferForSale, nil, m.state.ID.Big(), new(big.Int).Set(price)), nil
}

// Unlist withdraws the sale offer
func (m *Machine) Unlist(caller common.Address) (entities.WriteCall, error) {
	if caller != m.state.Owner {
		return entities.WriteCall{}, reject(entities.ActionUnlist, "caller is not the owner")
	}
	if !m.state.Offer.IsForSale {
		return entities.WriteCall{}, reject(entities.ActionUnlist, "token is not listed for sale")
	}
	return m.call(entities.ActionUnlist, methodNoLongerSale, nil, m.state.ID.Big()), nil
}

// PurchasePrice is the exact payment a purchase requires: minimum price plus the ledger's donation
func (m *Machine) PurchasePrice(ctx context.Context, quoter DonationQuoter) (*big.Int, error) {
	if !m.state.Offer.IsForSale {
		return nil, reject(entities.ActionPurchase, "token is not listed for sale")
	}
	minPrice := amount(m.state.Offer.MinPrice)
	donation, err := quoter.Donation(ctx, minPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to quote donation: %w", err)
	}
	return new(big.Int).Add(minPrice, donation), nil
}

// Purchase buys the listed token. payment must equal PurchasePrice.
func (m *Machine) Purchase(ctx context.Context, caller common.Address, payment *big.Int, quoter DonationQuoter) (entities.WriteCall, error) {
	if err := m.checkPurchase(caller); err != nil {
		return entities.WriteCall{}, err
	}

	price, err := m.PurchasePrice(ctx, quoter)
	if err != nil {
		return entities.WriteCall{}, err
	}
	if amount(payment).Cmp(price) != 0 {
		return entities.WriteCall{}, reject(entities.ActionPurchase,
			fmt.Sprintf("payment must equal minimum price plus donation (%s wei)", price))
	}

	return m.call(entities.ActionPurchase, methodBuy, price, m.state.ID.Big()), nil
}

// PurchaseAtQuote buys the listed token for a price already obtained from
// PurchasePrice, without quoting the donation again. The ledger still rejects a
// quote that has gone stale.
func (m *Machine) PurchaseAtQuote(caller common.Address, quote *big.Int) (entities.WriteCall, error) {
	if err := m.checkPurchase(caller); err != nil {
		return entities.WriteCall{}, err
	}
	if amount(quote).Cmp(amount(m.state.Offer.MinPrice)) < 0 {
		return entities.WriteCall{}, reject(entities.ActionPurchase, "quote is below the minimum price")
	}
	return m.call(entities.ActionPurchase, methodBuy, new(big.Int).Set(amount(quote)), m.state.ID.Big()), nil
}

func (m *Machine) checkPurchase(caller common.Address) error {
	if !m.state.Offer.IsForSale {
		return reject(entities.ActionPurchase, "token is not listed for sale")
	}
	if caller == m.state.Owner {
		return reject(entities.ActionPurchase, "caller already owns the token")
	}
	return nil
}

// PlaceBid escrows value wei as the token's single bid. An open bid must be
// withdrawn or accepted before a new one can be placed.
func (m *Machine) PlaceBid(caller common.Address, value *big.Int) (entities.WriteCall, error) {
	if caller == m.state.Owner {
		return entities.WriteCall{}, reject(entities.ActionPlaceBid, "caller owns the token")
	}
	if !m.state.IsOwned() {
		return entities.WriteCall{}, reject(entities.ActionPlaceBid, "token has not been minted")
	}
	if !isPositive(value) {
		return entities.WriteCall{}, reject(entities.ActionPlaceBid, "bid must be greater than zero")
	}
	if m.state.Bid.HasBid {
		if m.state.Bid.Bidder == caller {
			return entities.WriteCall{}, reject(entities.ActionPlaceBid, "caller already has an open bid")
		}
		return entities.WriteCall{}, reject(entities.ActionPlaceBid, "another bid is open until withdrawn or accepted")
	}
	return m.call(entities.ActionPlaceBid, methodEnterBid, new(big.Int).Set(value), m.state.ID.Big()), nil
}

// WithdrawBid cancels the caller's open bid
func (m *Machine) WithdrawBid(caller common.Address) (entities.WriteCall, error) {
	if !m.state.Bid.HasBid {
		return entities.WriteCall{}, reject(entities.ActionWithdrawBid, "token has no open bid")
	}
	if m.state.Bid.Bidder != caller {
		return entities.WriteCall{}, reject(entities.ActionWithdrawBid, "open bid belongs to another bidder")
	}
	return m.call(entities.ActionWithdrawBid, methodWithdrawBid, nil, m.state.ID.Big()), nil
}

// AcceptBid sells the token to the open bid. The observed bid value is passed as the
// minimum so a bid replaced in the meantime cannot be accepted at a lower price.
func (m *Machine) AcceptBid(caller common.Address) (entities.WriteCall, error) {
	if caller != m.state.Owner {
		return entities.WriteCall{}, reject(entities.ActionAcceptBid, "caller is not the owner")
	}
	if !m.state.Bid.HasBid {
		return entities.WriteCall{}, reject(entities.ActionAcceptBid, "token has no open bid")
	}
	return m.call(entities.ActionAcceptBid, methodAcceptBid, nil, m.state.ID.Big(), new(big.Int).Set(amount(m.state.Bid.Value))), nil
}

// AllowedActions lists what caller may do with the token right now
func (m *Machine) AllowedActions(caller common.Address) []entities.Action {
	var actions []entities.Action

	if m.state.IsOwned() && caller == m.state.Owner {
		if m.state.Offer.IsForSale {
			actions = append(actions, entities.ActionUnlist)
		} else {
			actions = append(actions, entities.ActionListForSale)
		}
		if m.state.Bid.HasBid {
			actions = append(actions, entities.ActionAcceptBid)
		}
	} else {
		if m.state.Offer.IsForSale {
			actions = append(actions, entities.ActionPurchase)
		}
		if m.state.IsOwned() {
			switch {
			case m.state.Bid.HasBid && m.state.Bid.Bidder == caller:
				actions = append(actions, entities.ActionWithdrawBid)
			case !m.state.Bid.HasBid:
				actions = append(actions, entities.ActionPlaceBid)
			}
		}
	}

	return append(actions, entities.ActionViewHistory)
}

func (m *Machine) call(action entities.Action, method string, value *big.Int, args ...interface{}) entities.WriteCall {
	if value == nil {
		value = new(big.Int)
	}
	return entities.WriteCall{
		Target:  entities.TokenContract,
		Method:  method,
		Args:    args,
		Value:   value,
		TokenID: m.state.ID,
		Action:  action,
	}
}

func reject(action entities.Action, reason string) error {
	return &entities.ValidationError{Action: action, Reason: reason}
}

func isPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

func amount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
