package domain

import (
	"github.com/x-xyz/listingengine/base/ctx"
)

// DefaultTokenDecimals is assumed for a currency nobody registered
const DefaultTokenDecimals = 18

// PayToken is a currency listings can be priced in
type PayToken struct {
	ChainId       ChainId `bson:"chainId" json:"chainId"`
	Address       Address `bson:"address" json:"address"`
	Name          string  `bson:"name" json:"name"`
	Symbol        string  `bson:"symbol" json:"symbol"`
	TokenDecimals int32   `bson:"tokenDecimals" json:"decimals"`
}

type PayTokenId struct {
	ChainId ChainId `bson:"chainId"`
	Address Address `bson:"address"`
}

func (t *PayToken) ToId() *PayTokenId {
	return &PayTokenId{ChainId: t.ChainId, Address: t.Address}
}

// Decimals is safe on a nil token
func (t *PayToken) Decimals() int32 {
	if t != nil && t.TokenDecimals > 0 {
		return t.TokenDecimals
	}
	return DefaultTokenDecimals
}

type PayTokenRepo interface {
	// FindOne answers nil without an error for an unregistered currency
	FindOne(c ctx.Ctx, chainId ChainId, addr Address) (*PayToken, error)
	// Upsert stores the address lower cased
	Upsert(c ctx.Ctx, t *PayToken) error
}
