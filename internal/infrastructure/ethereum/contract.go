/*
 * Copyright (c) 2024 Bima Kharisma Wicaksana
 * GitHub: https://github.com/bimakw
 *
 * Licensed under MIT License with Attribution Requirement.
 * See LICENSE file for details.
 */

package ethereum

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/bimakw/pagemarket/internal/domain/entities"
)

// tokenABI is the subset of the wiki page Token contract this service talks to
const tokenABI = `[
  {"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"tokensOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"cursor","type":"uint256"},{"name":"howMany","type":"uint256"},{"name":"ascending","type":"bool"}],
   "outputs":[{"name":"tokens","type":"uint256[]"},{"name":"newCursor","type":"uint256"},{"name":"total","type":"uint256"}]},
  {"type":"function","name":"pageIdToAddress","stateMutability":"view","inputs":[{"name":"pageId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"pagesOfferedForSale","stateMutability":"view","inputs":[{"name":"pageId","type":"uint256"}],
   "outputs":[{"name":"isForSale","type":"bool"},{"name":"pageId","type":"uint256"},{"name":"seller","type":"address"},{"name":"minValue","type":"uint256"},{"name":"onlySellTo","type":"address"}]},
  {"type":"function","name":"pageBids","stateMutability":"view","inputs":[{"name":"pageId","type":"uint256"}],
   "outputs":[{"name":"hasBid","type":"bool"},{"name":"pageId","type":"uint256"},{"name":"bidder","type":"address"},{"name":"value","type":"uint256"}]},
  {"type":"function","name":"calculateDonationFromValue","stateMutability":"pure","inputs":[{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"offerPageForSale","stateMutability":"nonpayable","inputs":[{"name":"pageId","type":"uint256"},{"name":"minSalePriceInWei","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"pageNoLongerForSale","stateMutability":"nonpayable","inputs":[{"name":"pageId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"buyPage","stateMutability":"payable","inputs":[{"name":"pageId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"enterBidForPage","stateMutability":"payable","inputs":[{"name":"pageId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"withdrawBidForPage","stateMutability":"nonpayable","inputs":[{"name":"pageId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"acceptBidForPage","stateMutability":"nonpayable","inputs":[{"name":"pageId","type":"uint256"},{"name":"minPrice","type":"uint256"}],"outputs":[]},
  {"type":"event","name":"Mint","anonymous":false,"inputs":[{"name":"to","type":"address","indexed":true},{"name":"pageId","type":"uint256","indexed":true}]},
  {"type":"event","name":"PageOffered","anonymous":false,"inputs":[{"name":"pageId","type":"uint256","indexed":true},{"name":"minValue","type":"uint256","indexed":false},{"name":"toAddress","type":"address","indexed":true}]},
  {"type":"event","name":"PageNoLongerForSale","anonymous":false,"inputs":[{"name":"pageId","type":"uint256","indexed":true}]},
  {"type":"event","name":"PageBidEntered","anonymous":false,"inputs":[{"name":"pageId","type":"uint256","indexed":true},{"name":"value","type":"uint256","indexed":false},{"name":"fromAddress","type":"address","indexed":true}]},
  {"type":"event","name":"PageBidWithdrawn","anonymous":false,"inputs":[{"name":"pageId","type":"uint256","indexed":true},{"name":"value","type":"uint256","indexed":false},{"name":"fromAddress","type":"address","indexed":true}]},
  {"type":"event","name":"PageBought","anonymous":false,"inputs":[{"name":"pageId","type":"uint256","indexed":true},{"name":"value","type":"uint256","indexed":false},{"name":"fromAddress","type":"address","indexed":true},{"name":"toAddress","type":"address","indexed":true}]}
]`

// views maps a composite view name to the methods sampled together with the same arguments
var views = map[string][]string{
	entities.ViewTokenState: {"pageIdToAddress", "pagesOfferedForSale", "pageBids"},
}

// Contract binds a deployed address to its ABI
type Contract struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
}

// Contracts resolves logical contract names used in ledger queries
type Contracts struct {
	byName map[string]*Contract
}

// NewContracts parses the bundled ABIs and binds them to deployed addresses
func NewContracts(tokenAddress common.Address) (*Contracts, error) {
	parsed, err := abi.JSON(strings.NewReader(tokenABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Token ABI: %w", err)
	}

	return &Contracts{
		byName: map[string]*Contract{
			entities.TokenContract: {
				Name:    entities.TokenContract,
				Address: tokenAddress,
				ABI:     parsed,
			},
		},
	}, nil
}

// Get returns the contract registered under name
func (c *Contracts) Get(name string) (*Contract, error) {
	contract, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown contract %q", name)
	}
	return contract, nil
}

// Pack ABI-encodes a method call
func (c *Contract) Pack(method string, args ...interface{}) ([]byte, error) {
	if _, ok := c.ABI.Methods[method]; !ok {
		return nil, fmt.Errorf("%w: %s.%s", entities.ErrUnknownMethod, c.Name, method)
	}
	data, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s.%s: %w", c.Name, method, err)
	}
	return data, nil
}

// Unpack decodes the return data of a method call
func (c *Contract) Unpack(method string, data []byte) (entities.RawValue, error) {
	values, err := c.ABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s.%s: %w", c.Name, method, err)
	}
	return entities.RawValue(values), nil
}

// ViewMethods returns the methods behind a composite view, if name is one
func ViewMethods(name string) ([]string, bool) {
	methods, ok := views[name]
	return methods, ok
}
