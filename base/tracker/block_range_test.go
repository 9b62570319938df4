package tracker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockRangeSplit(t *testing.T) {
	tests := []struct {
		r      *blockRange
		first  *blockRange
		second *blockRange
	}{
		{r: newBlockRange(1, 100), first: newBlockRange(1, 50), second: newBlockRange(51, 100)},
		{r: newBlockRange(1, 101), first: newBlockRange(1, 51), second: newBlockRange(52, 101)},
		{r: newBlockRange(3, 4), first: newBlockRange(3, 3), second: newBlockRange(4, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.r.String(), func(t *testing.T) {
			first, second := tt.r.split()
			require.Equal(t, tt.first, first)
			require.Equal(t, tt.second, second)
		})
	}
}

func TestBlockRangeChunks(t *testing.T) {
	req := require.New(t)
	req.Equal([]*blockRange{newBlockRange(10, 10)}, newBlockRange(10, 10).chunks(4))
	req.Equal([]*blockRange{
		newBlockRange(1, 4),
		newBlockRange(5, 8),
		newBlockRange(9, 10),
	}, newBlockRange(1, 10).chunks(4))
	req.Equal([]*blockRange{newBlockRange(1, 8)}, newBlockRange(1, 8).chunks(8))
	req.Equal([]*blockRange{newBlockRange(1, 8)}, newBlockRange(1, 8).chunks(0))
}

func TestBlockRangeSingle(t *testing.T) {
	require.True(t, newBlockRange(7, 7).single())
	require.False(t, newBlockRange(7, 8).single())
	require.Equal(t, uint64(8), newBlockRange(7, 8).toBlock().Uint64())
}
