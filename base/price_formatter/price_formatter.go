// Package priceformatter renders raw token amounts with the decimals of
// their currency.
package priceformatter

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain"
)

type PriceFormatter interface {
	// DisplayPrice is value scaled down by the decimals of token, zero for a
	// nil value. Unknown tokens use domain.DefaultTokenDecimals.
	DisplayPrice(c ctx.Ctx, chainId domain.ChainId, token domain.Address, value *big.Int) (decimal.Decimal, error)
}
