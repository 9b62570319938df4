package metadata

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/keys"
	"github.com/x-xyz/listingengine/domain/listing"
	"github.com/x-xyz/listingengine/service/cache"
	"github.com/x-xyz/listingengine/service/cache/provider/primitive"
)

// responses are capped, metadata documents are small
const maxBody = 1 << 20

func NewClient(cfg *ClientCfg) Client {
	c := cfg.Cache
	if c == nil {
		c = cache.New[listing.AssetMetadata](cache.Config{
			Ttl:         10 * time.Minute,
			NegativeTtl: time.Minute,
			Pfx:         keys.PfxMetadata,
			Provider:    primitive.NewPrimitive(keys.PfxMetadata, 16),
		})
	}
	return &client{
		client:      cfg.HttpClient,
		timeout:     cfg.Timeout,
		urlTemplate: cfg.UrlTemplate,
		cache:       c,
		met:         metrics.New("metadata"),
	}
}

type client struct {
	client      http.Client
	timeout     time.Duration
	urlTemplate string
	cache       cache.Service[listing.AssetMetadata]
	met         metrics.Service
}

func (cl *client) Get(c ctx.Ctx, chainId domain.ChainId, contract domain.Address, tokenId domain.TokenId) (*listing.AssetMetadata, error) {
	key := keys.RedisKey(strconv.Itoa(int(chainId)), contract.ToLowerStr(), tokenId.String())
	res, err := cl.cache.Load(c, key, func() (*listing.AssetMetadata, error) {
		return cl.fetch(c, cl.url(chainId, contract, tokenId))
	})
	if errors.Is(err, cache.ErrNotFound) {
		return nil, domain.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return res, nil
}

func (cl *client) url(chainId domain.ChainId, contract domain.Address, tokenId domain.TokenId) string {
	return strings.NewReplacer(
		"{chainId}", strconv.Itoa(int(chainId)),
		"{contract}", contract.ToLowerStr(),
		"{tokenId}", tokenId.String(),
	).Replace(cl.urlTemplate)
}

func (cl *client) fetch(c ctx.Ctx, url string) (*listing.AssetMetadata, error) {
	defer cl.met.BumpTime("fetch.latency").End()
	data, err := cl.get(c, url)
	if err != nil {
		return nil, err
	}
	resp := tokenMetadata{}
	if err := json.Unmarshal(data, &resp); err != nil {
		c.WithFields(log.Fields{
			"url": url,
			"err": err,
		}).Warn("json.Unmarshal failed")
		return nil, err
	}
	image := resp.Image
	if image == "" {
		image = resp.ImageUrl
	}
	return &listing.AssetMetadata{
		Name:        resp.Name,
		Description: resp.Description,
		Image:       image,
	}, nil
}

func (cl *client) get(c ctx.Ctx, url string) ([]byte, error) {
	c, cancel := ctx.WithTimeout(c, cl.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(c, http.MethodGet, url, nil)
	if err != nil {
		c.WithFields(log.Fields{
			"url": url,
			"err": err,
		}).Error("NewRequestWithContext failed")
		return nil, err
	}
	resp, err := cl.client.Do(req)
	if err != nil {
		cl.met.BumpSum("fetch.err", 1, "reason", "transport")
		c.WithFields(log.Fields{
			"url": url,
			"err": err,
		}).Warn("client.Do failed")
		return nil, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, cache.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		cl.met.BumpSum("fetch.err", 1, "reason", "status")
		c.WithFields(log.Fields{
			"url":        url,
			"statusCode": resp.StatusCode,
		}).Warn("resp.StatusCode != 200")
		return nil, ErrStatusCodeNotOk
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		c.WithFields(log.Fields{
			"url": url,
			"err": err,
		}).Error("failed to read body")
		return nil, err
	}
	return body, nil
}
