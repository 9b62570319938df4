package domain

import (
	"math/big"
	"strings"
)

// Big10000 is the denominator of basis point amounts
var Big10000 = big.NewInt(10000)

type SortDir int8

const (
	SortDirAsc  SortDir = 1
	SortDirDesc SortDir = -1
)

type ChainId int32

// Address is a 0x hex address as it came in. Stores keep the lower cased
// form, compare with Equals.
type Address string

// EmptyAddress is the zero address, the currency field uses it for the
// native coin
const EmptyAddress Address = "0x0000000000000000000000000000000000000000"

func (a Address) ToLower() Address { return Address(a.ToLowerStr()) }

func (a Address) ToLowerStr() string { return strings.ToLower(string(a)) }

// IsEmpty is true for an unset address only
func (a Address) IsEmpty() bool { return a == "" }

func (a Address) Equals(b Address) bool {
	return strings.EqualFold(string(a), string(b))
}

// TokenId is the decimal form of a uint256 token id
type TokenId string

func (i TokenId) String() string { return string(i) }

type (
	BlockNumber uint64
	TxHash      string
	BlockHash   string
)

// Position is where a log sits on chain. Logs are ordered by block, then by
// index inside the block.
type Position struct {
	BlockNumber BlockNumber `bson:"blockNumber" json:"blockNumber"`
	LogIndex    uint        `bson:"logIndex" json:"logIndex"`
}

// After is the strict order of Position
func (p Position) After(o Position) bool {
	if p.BlockNumber == o.BlockNumber {
		return p.LogIndex > o.LogIndex
	}
	return p.BlockNumber > o.BlockNumber
}
