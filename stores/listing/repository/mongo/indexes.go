package mongo

import (
	bCtx "github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/service/query"
)

var childKey = query.Index{Keys: []string{"txHash", "logIndex"}, Unique: true}

// Indexes lists every index the listing repositories query by
var Indexes = map[domain.Table][]query.Index{
	domain.TableListings: {
		{Keys: []string{"id"}, Unique: true},
		{Keys: []string{"-createdAt", "-id"}},
		{Keys: []string{"core.seller", "-createdAt"}},
		{Keys: []string{"updatedAt"}},
	},
	domain.TableBids: {
		childKey,
		{Keys: []string{"listingId", "blockNumber", "logIndex"}},
		{Keys: []string{"bidder", "-amountKey"}},
	},
	domain.TableOffers: {
		childKey,
		{Keys: []string{"listingId", "offerer", "status"}},
		{Keys: []string{"resolvedBy.txHash", "resolvedBy.logIndex"}},
	},
	domain.TablePurchases: {
		childKey,
		{Keys: []string{"listingId"}},
	},
	domain.TableAnomalies: {
		{Keys: []string{"-createdAt"}},
	},
}

func EnsureIndexes(ctx bCtx.Ctx, q query.Mongo) error {
	for table, indexes := range Indexes {
		if err := q.EnsureIndexes(ctx, table, indexes); err != nil {
			return err
		}
	}
	return nil
}
