package tracker

import (
	"fmt"
	"math/big"
)

// MaxBlockSpan bounds a single FilterLogs request
const MaxBlockSpan = 5000

type blockRange struct {
	begin uint64
	end   uint64 // inclusive
}

func newBlockRange(begin, end uint64) *blockRange {
	return &blockRange{begin: begin, end: end}
}

func (r *blockRange) single() bool {
	return r.begin == r.end
}

func (r *blockRange) fromBlock() *big.Int {
	return new(big.Int).SetUint64(r.begin)
}

func (r *blockRange) toBlock() *big.Int {
	return new(big.Int).SetUint64(r.end)
}

// split halves r, the first half keeps the extra block of an odd span
func (r *blockRange) split() (*blockRange, *blockRange) {
	mid := r.begin + (r.end-r.begin)/2
	return newBlockRange(r.begin, mid), newBlockRange(mid+1, r.end)
}

// chunks cuts r into consecutive ranges of at most span blocks
func (r *blockRange) chunks(span uint64) []*blockRange {
	if span == 0 {
		return []*blockRange{r}
	}
	res := []*blockRange{}
	for begin := r.begin; begin <= r.end; begin += span {
		end := begin + span - 1
		if end > r.end || end < begin {
			end = r.end
		}
		res = append(res, newBlockRange(begin, end))
		if end == r.end {
			break
		}
	}
	return res
}

func (r *blockRange) String() string {
	return fmt.Sprintf("blockRange{%d-%d}", r.begin, r.end)
}
