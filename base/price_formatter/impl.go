package priceformatter

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/keys"
	"github.com/x-xyz/listingengine/service/cache"
	"github.com/x-xyz/listingengine/service/cache/provider/primitive"
)

const tokenTtl = 10 * time.Minute

type PriceFormatterCfg struct {
	Paytoken domain.PayTokenRepo
	// Cache holds pay tokens by chain and address. A small in-process cache
	// is used when nil.
	Cache cache.Service[domain.PayToken]
}

type formatter struct {
	tokens domain.PayTokenRepo
	cache  cache.Service[domain.PayToken]
}

func NewPriceFormatter(cfg *PriceFormatterCfg) PriceFormatter {
	c := cfg.Cache
	if c == nil {
		c = cache.New[domain.PayToken](cache.Config{
			Ttl:      tokenTtl,
			Pfx:      keys.PfxPayToken,
			Provider: primitive.NewPrimitive(keys.PfxPayToken, 1),
		})
	}
	return &formatter{tokens: cfg.Paytoken, cache: c}
}

func (f *formatter) decimals(c ctx.Ctx, chainId domain.ChainId, token domain.Address) (int32, error) {
	token = token.ToLower()
	key := fmt.Sprintf("%d:%s", chainId, token)
	p, err := f.cache.Load(c, key, func() (*domain.PayToken, error) {
		p, err := f.tokens.FindOne(c, chainId, token)
		if err != nil {
			return nil, err
		}
		if p == nil {
			// remembered as an unknown currency, Decimals falls back
			p = &domain.PayToken{ChainId: chainId, Address: token}
		}
		return p, nil
	})
	if err != nil {
		c.WithFields(log.Fields{"err": err, "chainId": chainId, "token": token}).Error("loading pay token failed")
		return 0, err
	}
	return p.Decimals(), nil
}

func (f *formatter) DisplayPrice(c ctx.Ctx, chainId domain.ChainId, token domain.Address, value *big.Int) (decimal.Decimal, error) {
	if value == nil {
		return decimal.Zero, nil
	}
	d, err := f.decimals(c, chainId, token)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(value, -d), nil
}
