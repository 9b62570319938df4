package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
	"golang.org/x/sync/semaphore"

	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/database/mongoclient"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/domain"
)

const (
	maxTime       = 20 * time.Second
	slowThreshold = 500 * time.Millisecond
	// concurrent transactions per process
	maxTransactions = 10
)

type impl struct {
	client     *mongoclient.Client
	checkIndex bool
	txs        *semaphore.Weighted
	met        metrics.Service
}

// New returns a Mongo backed by client. With checkIndex set every read is
// explained first, which also disables real transactions since explain is
// not allowed inside one.
func New(client *mongoclient.Client, checkIndex bool, met metrics.Service) Mongo {
	return &impl{
		client:     client,
		checkIndex: checkIndex,
		txs:        semaphore.NewWeighted(maxTransactions),
		met:        met,
	}
}

func (im *impl) coll(table domain.Table) *mongo.Collection {
	return im.client.Database(im.client.DbName).Collection(string(table))
}

// begin tags c with the call and returns the func that closes its
// measurement.
func (im *impl) begin(c ctx.Ctx, table domain.Table, action string, filter interface{}) (ctx.Ctx, func()) {
	start := time.Now()
	timer := im.met.BumpTime("time", "func", action, "table", string(table))
	c = ctx.WithValues(c, map[string]interface{}{"table": table, "action": action})
	return c, func() {
		timer.End()
		elapsed := time.Since(start)
		if elapsed < slowThreshold {
			return
		}
		im.met.BumpSum("slowlog", 1, "table", string(table), "action", action)
		c.WithFields(log.Fields{"durationMs": elapsed.Milliseconds(), "filter": filter}).Warn("mongo slowlog")
	}
}

func (im *impl) fail(c ctx.Ctx, msg string, err error) error {
	var connErr topology.ConnectionError
	if errors.As(err, &connErr) {
		im.met.BumpSum("conn.err", 1)
	}
	c.WithFields(log.Fields{"err": err}).Error(msg)
	return err
}

func (im *impl) Insert(c ctx.Ctx, table domain.Table, doc interface{}) error {
	c, end := im.begin(c, table, "insert", nil)
	defer end()

	_, err := im.coll(table).InsertOne(c, doc)
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicateKey
	}
	return im.fail(c, "InsertOne failed", err)
}

func (im *impl) FindOne(c ctx.Ctx, table domain.Table, filter, result interface{}) error {
	c, end := im.begin(c, table, "findone", filter)
	defer end()

	if err := im.explain(c, table, "find", bson.E{Key: "filter", Value: filter}); err != nil {
		return err
	}
	err := im.coll(table).FindOne(c, filter, options.FindOne().SetMaxTime(maxTime)).Decode(result)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	}
	return im.fail(c, "FindOne failed", err)
}

func (im *impl) Count(c ctx.Ctx, table domain.Table, filter interface{}) (int, error) {
	c, end := im.begin(c, table, "count", filter)
	defer end()

	if err := im.explain(c, table, "count", bson.E{Key: "query", Value: filter}); err != nil {
		return 0, err
	}
	n, err := im.coll(table).CountDocuments(c, filter, options.Count().SetMaxTime(maxTime))
	if err != nil {
		return 0, im.fail(c, "CountDocuments failed", err)
	}
	return int(n), nil
}

func (im *impl) Upsert(c ctx.Ctx, table domain.Table, filter, doc interface{}) error {
	c, end := im.begin(c, table, "upsert", filter)
	defer end()

	if _, err := im.coll(table).ReplaceOne(c, filter, doc, options.Replace().SetUpsert(true)); err != nil {
		return im.fail(c, "ReplaceOne failed", err)
	}
	return nil
}

func (im *impl) Search(c ctx.Ctx, table domain.Table, offset, limit int, sort string, filter, results interface{}) error {
	return im.SearchNSorts(c, table, offset, limit, []string{sort}, filter, results)
}

func (im *impl) SearchNSorts(c ctx.Ctx, table domain.Table, offset, limit int, sorts []string, filter, results interface{}) error {
	c, end := im.begin(c, table, "search", filter)
	defer end()

	if err := im.explain(c, table, "find", bson.E{Key: "filter", Value: filter}); err != nil {
		return err
	}
	opts := options.Find().SetMaxTime(maxTime).SetSkip(int64(offset)).SetLimit(int64(limit))
	if s := sortOption(sorts...); len(s) > 0 {
		opts.SetSort(s)
	}
	cur, err := im.coll(table).Find(c, filter, opts)
	if err != nil {
		return im.fail(c, "Find failed", err)
	}
	defer cur.Close(c)
	if err := cur.All(c, results); err != nil {
		return im.fail(c, "cursor.All failed", err)
	}
	return nil
}

func (im *impl) Patch(c ctx.Ctx, table domain.Table, filter, fields interface{}) error {
	c, end := im.begin(c, table, "patch", filter)
	defer end()

	res, err := im.coll(table).UpdateOne(c, filter, bson.M{"$set": fields})
	switch {
	case mongo.IsDuplicateKeyError(err):
		return ErrDuplicateKey
	case err != nil:
		return im.fail(c, "UpdateOne failed", err)
	case res.MatchedCount == 0:
		return ErrNotFound
	}
	return nil
}

// Iter walks the documents of an aggregation
type Iter struct {
	cur *mongo.Cursor
}

// Next decodes the next document into result, false once drained
func (it *Iter) Next(c ctx.Ctx, result interface{}) (bool, error) {
	if !it.cur.Next(c) {
		return false, it.cur.Err()
	}
	if err := it.cur.Decode(result); err != nil {
		return false, err
	}
	return true, nil
}

func (it *Iter) All(c ctx.Ctx, results interface{}) error {
	return it.cur.All(c, results)
}

func (im *impl) Pipe(c ctx.Ctx, table domain.Table, pipeline interface{}) (*Iter, func(), error) {
	c, end := im.begin(c, table, "pipe", pipeline)
	defer end()

	cur, err := im.coll(table).Aggregate(c, pipeline, options.Aggregate().SetMaxTime(maxTime))
	if err != nil {
		return nil, nil, im.fail(c, "Aggregate failed", err)
	}
	return &Iter{cur: cur}, func() { cur.Close(ctx.Background()) }, nil
}

func (im *impl) RunWithTransaction(c ctx.Ctx, fn func(ctx.Ctx) error) error {
	if mongo.SessionFromContext(c) != nil {
		return fn(c)
	}
	if err := im.txs.Acquire(c, 1); err != nil {
		return err
	}
	defer im.txs.Release(1)

	if im.checkIndex {
		return runWithHooks(c, fn)
	}

	defer im.met.BumpTime("transaction.time").End()
	sess, err := im.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(c)

	var hooks *commitHooks
	_, err = sess.WithTransaction(c, func(sc mongo.SessionContext) (interface{}, error) {
		// the driver retries on transient errors, only the last attempt's
		// hooks may run
		hooks = &commitHooks{}
		return nil, fn(ctx.Ctx{Context: context.WithValue(sc, hooksKey{}, hooks), Logger: c.Logger})
	})
	if err != nil {
		im.met.BumpSum("transaction.err", 1)
		return err
	}
	hooks.run(c)
	return nil
}

func (im *impl) EnsureIndexes(c ctx.Ctx, table domain.Table, indexes []Index) error {
	models := make([]mongo.IndexModel, len(indexes))
	for i, idx := range indexes {
		models[i] = mongo.IndexModel{
			Keys:    sortOption(idx.Keys...),
			Options: options.Index().SetUnique(idx.Unique),
		}
	}
	if _, err := im.coll(table).Indexes().CreateMany(c, models); err != nil {
		c.WithFields(log.Fields{"table": table, "err": err}).Error("CreateMany failed")
		return err
	}
	return nil
}

func (im *impl) Ping(c ctx.Ctx) error {
	return im.client.Ping(c, readpref.Primary())
}

// sortOption turns "field" / "-field" keys into an ordered bson.D
func sortOption(keys ...string) bson.D {
	d := bson.D{}
	for _, k := range keys {
		switch {
		case k == "":
		case strings.HasPrefix(k, "-"):
			d = append(d, bson.E{Key: k[1:], Value: -1})
		default:
			d = append(d, bson.E{Key: k, Value: 1})
		}
	}
	return d
}

// explain refuses filters the planner would answer with a collection scan
func (im *impl) explain(c ctx.Ctx, table domain.Table, cmd string, filter bson.E) error {
	if !im.checkIndex {
		return nil
	}
	res := im.client.Database(im.client.DbName).RunCommand(c, bson.D{
		{Key: "explain", Value: bson.D{{Key: cmd, Value: string(table)}, filter}},
		{Key: "verbosity", Value: "queryPlanner"},
	})
	var plan bson.M
	if err := res.Decode(&plan); err != nil {
		im.met.BumpSum("explain.err", 1)
		c.WithField("err", err).Warn("explain failed")
		return nil
	}
	// the plan layout differs between server versions
	if strings.Contains(fmt.Sprint(plan), "COLLSCAN") {
		c.WithField("filter", filter.Value).Error("collection scan")
		return ErrCollScan
	}
	return nil
}
