package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/viper"

	"github.com/x-xyz/listingengine/base/config"
	"github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/database/mongoclient"
	"github.com/x-xyz/listingengine/base/database/redisclient"
	"github.com/x-xyz/listingengine/base/env"
	"github.com/x-xyz/listingengine/base/goroutine"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/base/metrics"
	priceformatter "github.com/x-xyz/listingengine/base/price_formatter"
	bValidator "github.com/x-xyz/listingengine/base/validator"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/keys"
	"github.com/x-xyz/listingengine/domain/listing"
	mmiddleware "github.com/x-xyz/listingengine/middleware"
	"github.com/x-xyz/listingengine/service/cache"
	"github.com/x-xyz/listingengine/service/cache/provider/compound"
	"github.com/x-xyz/listingengine/service/cache/provider/primitive"
	redisprovider "github.com/x-xyz/listingengine/service/cache/provider/redis"
	"github.com/x-xyz/listingengine/service/invalidation"
	"github.com/x-xyz/listingengine/service/metadata"
	"github.com/x-xyz/listingengine/service/query"
	"github.com/x-xyz/listingengine/service/redis"
	"github.com/x-xyz/listingengine/service/statecache"
	hc_delivery "github.com/x-xyz/listingengine/stores/healthcheck/delivery/http"
	hc_repository "github.com/x-xyz/listingengine/stores/healthcheck/repository"
	hc_usecase "github.com/x-xyz/listingengine/stores/healthcheck/usecase"
	listing_delivery "github.com/x-xyz/listingengine/stores/listing/delivery/http"
	listing_repository "github.com/x-xyz/listingengine/stores/listing/repository/mongo"
	listing_usecase "github.com/x-xyz/listingengine/stores/listing/usecase"
	paytoken_delivery "github.com/x-xyz/listingengine/stores/paytoken/delivery/http"
	paytoken_repository "github.com/x-xyz/listingengine/stores/paytoken/repository"
)

func init() {
	if err := config.Load(os.Args[1:], "infra/configs/config.yaml"); err != nil {
		panic(err)
	}
	if err := config.InitLog(); err != nil {
		panic(err)
	}
}

func main() {
	defer log.Flush(2 * time.Second)
	c, cancel := ctx.WithCancel(ctx.Background())
	defer cancel()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	middL := mmiddleware.InitMiddleware()
	e.Use(middL.ResponseLogger())
	e.Use(middL.AddContext())
	e.Use(middleware.CORS())
	e.Validator = bValidator.NewCustomValidator(validator.New())

	c.Info("init mongo")
	mongoClient := mongoclient.MustConnect(c, config.Mongo())
	defer mongoClient.Disconnect(ctx.Background())
	q := query.New(mongoClient, viper.GetBool("mongo.checkIndex"), metrics.New("mongo"))
	if err := listing_repository.EnsureIndexes(c, q); err != nil {
		c.WithField("err", err).Panic("EnsureIndexes failed")
	}
	if err := q.EnsureIndexes(c, domain.TablePayTokens, paytoken_repository.Indexes); err != nil {
		c.WithField("err", err).Panic("EnsureIndexes failed")
	}

	c.Info("init redis")
	redisPool := redisclient.MustConnect(c, config.Redis())
	defer redisPool.Close()
	redisCache := redis.New("cache", metrics.New("redis"), redisPool)

	// derived views live in process, replicas stay coherent through the
	// invalidation channel
	states := statecache.New(statecache.Config{
		Shards:         viper.GetInt("statecache.shards"),
		StaleWindow:    viper.GetDuration("statecache.staleWindow"),
		ComputeTimeout: viper.GetDuration("statecache.computeTimeout"),
		PoolSize:       viper.GetInt("statecache.poolSize"),
	})
	defer states.Close()
	subscriber := invalidation.NewRedisSubscriber(redisCache, invalidation.CacheHandler(states), invalidation.SubscriberConfig{
		PingPeriod: viper.GetDuration("invalidation.pingPeriod"),
	})
	errCh := make(chan error, 4)
	subscribed := goroutine.Go(c, "invalidation", errCh, func() error {
		return subscriber.Run(c)
	})

	localMB := viper.GetInt("metadata.localSizeMB")
	if localMB <= 0 {
		localMB = 16
	}
	// asset metadata is shared between replicas, hot entries stay local
	metadataCache := cache.New[listing.AssetMetadata](cache.Config{
		Ttl:         config.Duration("metadata.ttl", 10*time.Minute),
		NegativeTtl: config.Duration("metadata.negativeTtl", time.Minute),
		Pfx:         keys.PfxMetadata,
		Provider: compound.NewCompound(time.Minute,
			primitive.NewPrimitive(keys.PfxMetadata, localMB),
			redisprovider.NewRedis(redisCache),
		),
	})
	metadataClient := metadata.NewClient(&metadata.ClientCfg{
		HttpClient:  http.Client{},
		Timeout:     config.Duration("metadata.timeout", 2*time.Second),
		UrlTemplate: viper.GetString("metadata.urlTemplate"),
		Cache:       metadataCache,
	})

	paytokenRepo := paytoken_repository.NewPayTokenRepo(q)
	queryUseCase := listing_usecase.NewQueryUseCase(&listing_usecase.QueryUseCaseCfg{
		ListingRepo:       listing_repository.NewListingRepo(q),
		BidRepo:           listing_repository.NewBidRepo(q),
		OfferRepo:         listing_repository.NewOfferRepo(q),
		AnomalyRepo:       listing_repository.NewAnomalyRepo(q),
		Cache:             states,
		Metadata:          metadataClient,
		PriceFormatter:    priceformatter.NewPriceFormatter(&priceformatter.PriceFormatterCfg{Paytoken: paytokenRepo}),
		Publisher:         invalidation.NewRedisPublisher(redisCache, env.PodName()),
		ViewTtl:           viper.GetDuration("query.viewTtl"),
		PageTtl:           viper.GetDuration("query.pageTtl"),
		MetadataTimeout:   viper.GetDuration("metadata.timeout"),
		StreamItemTimeout: viper.GetDuration("query.streamItemTimeout"),
		MaxPageSize:       viper.GetInt("query.maxPageSize"),
	})
	hc := hc_usecase.New(hc_repository.New(q, redisCache))

	hc_delivery.New(e, hc)
	adminKeys := viper.GetStringSlice("admin.keys")
	listing_delivery.New(e, queryUseCase, adminKeys)
	paytoken_delivery.New(e, paytokenRepo, adminKeys)

	address := viper.GetString("server.address")
	go func() {
		c.WithField("address", address).Info("starting server")
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-quit:
		c.WithField("signal", sig).Info("received signal")
	case err := <-errCh:
		c.WithField("err", err).Error("shutting down on error")
	}

	shutdown, done := ctx.WithTimeout(ctx.Detach(c), 10*time.Second)
	defer done()
	if err := e.Shutdown(shutdown); err != nil {
		c.WithField("err", err).Error("shutting down the server")
	}
	cancel()
	<-subscribed
	c.Info("shutdown server successfully")
}
