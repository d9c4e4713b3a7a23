package entities

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Contract and view names known to the reader
const (
	TokenContract = "Token"

	// ViewTokenState samples pageIdToAddress, pagesOfferedForSale and pageBids for one id
	// from the same block.
	ViewTokenState = "tokenState"
)

// LedgerQuery describes a read-only ledger call. Identity is (Target, Method, Args).
type LedgerQuery struct {
	Target       string
	Method       string
	Args         []interface{}
	PollInterval time.Duration
}

// Key returns the canonical identity of the query, used for dedup and caching
func (q LedgerQuery) Key() string {
	var b strings.Builder
	b.WriteString(q.Target)
	b.WriteByte('.')
	b.WriteString(q.Method)
	b.WriteByte('(')
	for i, arg := range q.Args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(formatArg(arg))
	}
	b.WriteByte(')')
	return b.String()
}

// formatArg renders one argument in the form the ledger sees it. Integer kinds are
// all uint256 on the wire and share a decimal rendering; any other type is tagged
// so values of different types never share a key.
func formatArg(arg interface{}) string {
	switch v := arg.(type) {
	case *big.Int:
		if v == nil {
			return "0"
		}
		return v.String()
	case TokenID:
		return v.String()
	case uint64:
		return strconv.FormatUint(v, 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case common.Address:
		return strings.ToLower(v.Hex())
	case common.Hash:
		return strings.ToLower(v.Hex())
	case []byte:
		return "0x" + common.Bytes2Hex(v)
	case string:
		return strconv.Quote(v)
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// RawValue holds ABI-decoded outputs of a ledger call. Views return one nested RawValue
// per underlying method.
type RawValue []interface{}

// TokenStateQuery builds the composite query that samples a token's full state
func TokenStateQuery(id TokenID, interval time.Duration) LedgerQuery {
	return LedgerQuery{
		Target:       TokenContract,
		Method:       ViewTokenState,
		Args:         []interface{}{id.Big()},
		PollInterval: interval,
	}
}

// TokensOfQuery builds the query listing tokens held by owner
func TokensOfQuery(owner common.Address, interval time.Duration) LedgerQuery {
	return LedgerQuery{
		Target:       TokenContract,
		Method:       "tokensOf",
		Args:         []interface{}{owner, big.NewInt(0), big.NewInt(10000), true},
		PollInterval: interval,
	}
}

// TotalSupplyQuery builds the query for the number of minted tokens
func TotalSupplyQuery(interval time.Duration) LedgerQuery {
	return LedgerQuery{
		Target:       TokenContract,
		Method:       "totalSupply",
		PollInterval: interval,
	}
}

// DonationQuery builds the query asking the ledger for the donation owed on amount
func DonationQuery(amount *big.Int) LedgerQuery {
	return LedgerQuery{
		Target: TokenContract,
		Method: "calculateDonationFromValue",
		Args:   []interface{}{amount},
	}
}
