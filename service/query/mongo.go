// Package query is the thin layer between the stores and the mongo driver.
// Every call is timed, slow calls are logged, and in checkIndex mode reads
// that would scan a whole collection are refused.
package query

import (
	"errors"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/domain"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrCollScan is returned in checkIndex mode for reads without a usable index
	ErrCollScan = errors.New("query plan is a collection scan")
)

// Index is a (possibly unique) index on the listed keys, in order. A key
// prefixed with '-' is descending.
type Index struct {
	Keys   []string
	Unique bool
}

// Mongo is what the repositories need from the database.
type Mongo interface {
	// Insert fails with ErrDuplicateKey when a unique index rejects doc
	Insert(c ctx.Ctx, table domain.Table, doc interface{}) error
	// FindOne decodes the first match into result, ErrNotFound when none
	FindOne(c ctx.Ctx, table domain.Table, filter, result interface{}) error
	Count(c ctx.Ctx, table domain.Table, filter interface{}) (int, error)
	// Upsert replaces the document matching filter or inserts doc
	Upsert(c ctx.Ctx, table domain.Table, filter, doc interface{}) error
	// Search sorts by one field, "-field" for descending
	Search(c ctx.Ctx, table domain.Table, offset, limit int, sort string, filter, results interface{}) error
	SearchNSorts(c ctx.Ctx, table domain.Table, offset, limit int, sorts []string, filter, results interface{}) error
	// Patch $sets fields on the first match, ErrNotFound when none
	Patch(c ctx.Ctx, table domain.Table, filter, fields interface{}) error
	// Pipe runs an aggregation. closeFn must be called once the iterator is drained.
	Pipe(c ctx.Ctx, table domain.Table, pipeline interface{}) (iter *Iter, closeFn func(), err error)
	// RunWithTransaction runs fn in a transaction. A nested call joins the
	// transaction already carried by c.
	RunWithTransaction(c ctx.Ctx, fn func(ctx.Ctx) error) error
	EnsureIndexes(c ctx.Ctx, table domain.Table, indexes []Index) error
	Ping(c ctx.Ctx) error
}
