package metadata

import (
	"errors"
	"net/http"
	"time"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/listing"
	"github.com/x-xyz/listingengine/service/cache"
)

var (
	ErrStatusCodeNotOk = errors.New("http.status != 200")
)

// Client resolves display metadata of listed assets
type Client interface {
	// Get returns domain.ErrNotFound when the endpoint has nothing for the token
	Get(c ctx.Ctx, chainId domain.ChainId, contract domain.Address, tokenId domain.TokenId) (*listing.AssetMetadata, error)
}

type ClientCfg struct {
	HttpClient http.Client
	Timeout    time.Duration
	// UrlTemplate has {chainId}, {contract} and {tokenId} placeholders
	UrlTemplate string
	// Cache defaults to an in-process cache
	Cache cache.Service[listing.AssetMetadata]
}

type tokenMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	ImageUrl    string `json:"image_url"`
}
