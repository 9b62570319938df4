package mongoclient

import (
	"context"
	"crypto/tls"
	"runtime"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"

	"github.com/x-xyz/listingengine/base/log"
)

const (
	socketTimeout  = 60 * time.Second
	connectTimeout = 10 * time.Second
)

// Client is a connected driver client bound to one database
type Client struct {
	DbName string
	*mongo.Client
}

type Config struct {
	URI    string
	DbName string
	// AuthDB is used when the uri carries credentials without authSource
	AuthDB string
	TLS    bool
	// Majority waits for a majority of the replica set on writes
	Majority bool
	// PoolMultiplier times NumCPU is the pool size across all hosts
	PoolMultiplier float64
}

// Options turns cfg into driver options
func (cfg Config) Options() (*options.ClientOptions, error) {
	cs, err := connstring.Parse(cfg.URI)
	if err != nil {
		return nil, err
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetSocketTimeout(socketTimeout).
		SetRetryWrites(true)

	if cs.Username != "" && cs.AuthSource == "" && cfg.AuthDB != "" {
		opts.SetAuth(options.Credential{
			AuthMechanism:           cs.AuthMechanism,
			AuthMechanismProperties: cs.AuthMechanismProperties,
			Username:                cs.Username,
			Password:                cs.Password,
			PasswordSet:             cs.PasswordSet,
			AuthSource:              cfg.AuthDB,
		})
	}

	if cfg.PoolMultiplier > 0 && len(cs.Hosts) > 0 {
		// every host gets its own pool
		total := int(float64(runtime.NumCPU()) * cfg.PoolMultiplier)
		perHost := (total + len(cs.Hosts) - 1) / len(cs.Hosts)
		if perHost < 1 {
			perHost = 1
		}
		opts.SetMaxPoolSize(uint64(perHost)).SetMinPoolSize(uint64(perHost / 4))
	}
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if cfg.Majority {
		opts.SetWriteConcern(writeconcern.New(writeconcern.WMajority()))
	}
	return opts, nil
}

// Connect dials the cluster and pings the primary
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	logger := log.Log().WithField("db", cfg.DbName)
	opts, err := cfg.Options()
	if err != nil {
		logger.WithField("err", err).Error("invalid mongo uri")
		return nil, err
	}

	c, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := mongo.Connect(c, opts)
	if err != nil {
		logger.WithField("err", err).Error("mongo.Connect failed")
		return nil, err
	}
	if err := client.Ping(c, readpref.Primary()); err != nil {
		logger.WithField("err", err).Error("mongo ping failed")
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logger.WithField("hosts", opts.Hosts).Info("mongo connected")
	return &Client{DbName: cfg.DbName, Client: client}, nil
}

// MustConnect panics when Connect fails
func MustConnect(ctx context.Context, cfg Config) *Client {
	c, err := Connect(ctx, cfg)
	if err != nil {
		log.Log().WithFields(log.Fields{"db": cfg.DbName, "err": err}).Panic("cannot reach mongo")
	}
	return c
}
