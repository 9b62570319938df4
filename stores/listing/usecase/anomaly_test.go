package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain/listing"
)

type failingAnomalyRepo struct {
	fakeAnomalyRepo
}

func (*failingAnomalyRepo) Insert(ctx.Ctx, *listing.Anomaly) error {
	return errors.New("mongo down")
}

func TestAnomalyHookStores(t *testing.T) {
	repo := &fakeAnomalyRepo{}
	now := time.Unix(1_700_000_500, 0)
	h := NewAnomalyHook(repo).(*anomalyHook)
	h.now = func() time.Time { return now }

	h.Report(mockCtx, listing.DecodeFailure(7, meta(10, 2), "short data"))

	require.Len(t, repo.rows, 1)
	a := repo.rows[0]
	require.NotEmpty(t, a.Id)
	require.Equal(t, now, a.CreatedAt)
	require.Equal(t, listing.AnomalyDecodeFailure, a.Kind)
	require.Equal(t, listing.ListingId(7), a.ListingId)
	require.Equal(t, uint(2), a.At.LogIndex)
}

func TestAnomalyHookSwallowsInsertError(t *testing.T) {
	h := NewAnomalyHook(&failingAnomalyRepo{})
	require.NotPanics(t, func() {
		h.Report(mockCtx, listing.DecodeFailure(7, meta(10, 2), "short data"))
	})
}
