package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/viper"

	"github.com/x-xyz/listingengine/base/config"
	bCtx "github.com/x-xyz/listingengine/base/ctx"
	"github.com/x-xyz/listingengine/base/database/mongoclient"
	"github.com/x-xyz/listingengine/base/database/redisclient"
	"github.com/x-xyz/listingengine/base/env"
	"github.com/x-xyz/listingengine/base/ethereum"
	"github.com/x-xyz/listingengine/base/log"
	"github.com/x-xyz/listingengine/base/metrics"
	"github.com/x-xyz/listingengine/base/schedule"
	"github.com/x-xyz/listingengine/base/tracker"
	"github.com/x-xyz/listingengine/domain"
	"github.com/x-xyz/listingengine/domain/healthcheck"
	mmiddleware "github.com/x-xyz/listingengine/middleware"
	"github.com/x-xyz/listingengine/service/invalidation"
	"github.com/x-xyz/listingengine/service/query"
	"github.com/x-xyz/listingengine/service/redis"
	chain_repository "github.com/x-xyz/listingengine/stores/chain/repository"
	chain_usecase "github.com/x-xyz/listingengine/stores/chain/usecase"
	hc_delivery "github.com/x-xyz/listingengine/stores/healthcheck/delivery/http"
	hc_repository "github.com/x-xyz/listingengine/stores/healthcheck/repository"
	hc_usecase "github.com/x-xyz/listingengine/stores/healthcheck/usecase"
	listing_repository "github.com/x-xyz/listingengine/stores/listing/repository/mongo"
	listing_usecase "github.com/x-xyz/listingengine/stores/listing/usecase"
	tracker_state_repository "github.com/x-xyz/listingengine/stores/tracker_state/repository/mongo"
	tracker_state_usecase "github.com/x-xyz/listingengine/stores/tracker_state/usecase"
)

func init() {
	if err := config.Load(os.Args[1:], "infra/configs/tracker/config.yaml"); err != nil {
		panic(err)
	}
	if err := config.InitLog(); err != nil {
		panic(err)
	}
}

func main() {
	defer log.Flush(2 * time.Second)
	ctx, cancel := bCtx.WithCancel(bCtx.Background())
	defer cancel()

	chainId := viper.GetInt64("chain.id")
	market := viper.GetString("chain.market")
	if !common.IsHexAddress(market) {
		ctx.WithField("market", market).Panic("chain.market is not an address")
	}
	ctx.WithFields(log.Fields{
		"chainId":        chainId,
		"market":         market,
		"followDistance": viper.GetUint64("tracker.followDistance"),
	}).Info("config")

	ctx.Info("init mongo")
	mongoClient := mongoclient.MustConnect(ctx, config.Mongo())
	defer mongoClient.Disconnect(bCtx.Background())
	q := query.New(mongoClient, viper.GetBool("mongo.checkIndex"), metrics.New("mongo"))
	if err := listing_repository.EnsureIndexes(ctx, q); err != nil {
		ctx.WithField("err", err).Panic("EnsureIndexes failed")
	}
	for table, indexes := range map[domain.Table][]query.Index{
		domain.TableBlocks:        chain_repository.Indexes,
		domain.TableTrackerStates: tracker_state_repository.Indexes,
	} {
		if err := q.EnsureIndexes(ctx, table, indexes); err != nil {
			ctx.WithFields(log.Fields{"err": err, "table": table}).Panic("EnsureIndexes failed")
		}
	}

	ctx.Info("init redis")
	redisPool := redisclient.MustConnect(ctx, config.Redis())
	defer redisPool.Close()
	redisCache := redis.New("cache", metrics.New("redis"), redisPool)

	ctx.Info("connecting eth clients")
	wsClient := dial(ctx, viper.GetString("chain.wsUrl"))
	rpcConcurrency := viper.GetInt("chain.rpcConcurrency")
	if rpcConcurrency <= 0 {
		rpcConcurrency = 16
	}
	rpcClient := ethereum.NewThrottledClient(dial(ctx, viper.GetString("chain.rpcUrl")), rpcConcurrency, metrics.New("rpc"))
	archiveClient := dial(ctx, viper.GetString("chain.archiveRpcUrl"))

	errCh := make(chan error, 4)
	head := tracker.NewHeadWatcher(wsClient, errCh)
	if err := head.Start(ctx); err != nil {
		ctx.WithField("err", err).Panic("head watcher failed to start")
	}

	// repos
	listingRepo := listing_repository.NewListingRepo(q)
	bidRepo := listing_repository.NewBidRepo(q)
	offerRepo := listing_repository.NewOfferRepo(q)
	purchaseRepo := listing_repository.NewPurchaseRepo(q)
	anomalyRepo := listing_repository.NewAnomalyRepo(q)

	// usecases
	anomalyHook := listing_usecase.NewAnomalyHook(anomalyRepo)
	reconciler := listing_usecase.NewReconciler(&listing_usecase.ReconcilerCfg{
		Mongo:        q,
		ListingRepo:  listingRepo,
		BidRepo:      bidRepo,
		OfferRepo:    offerRepo,
		PurchaseRepo: purchaseRepo,
		AnomalyHook:  anomalyHook,
		Publisher:    invalidation.NewRedisPublisher(redisCache, env.PodName()),
	})
	auditor := listing_usecase.NewAuditor(&listing_usecase.AuditorCfg{
		ListingRepo:  listingRepo,
		BidRepo:      bidRepo,
		PurchaseRepo: purchaseRepo,
		AnomalyHook:  anomalyHook,
		MaxListings:  viper.GetInt("auditor.maxListings"),
	})

	marketTracker, err := tracker.NewEventTracker(&tracker.EventTrackerCfg{
		ChainId:  chainId,
		Contract: common.HexToAddress(market),
		Tag:      "market",
		Head:     head,
		Ws:       wsClient,
		Rpc:      rpcClient,
		Archive:  archiveClient,
		Mongo:    q,
		States:   tracker_state_usecase.NewTrackerStateUseCase(tracker_state_repository.NewTrackerStateMongoRepo(q), config.Duration("context.timeout", 10*time.Second)),
		Blocks:   chain_usecase.NewBlockUseCase(chain_repository.NewBlockRepo(q)),
		Handler: tracker.NewMarketEventHandler(&tracker.MarketEventHandlerCfg{
			ChainId:     chainId,
			Reconciler:  reconciler,
			AnomalyHook: anomalyHook,
		}),
		ErrorCh:        errCh,
		FollowDistance: viper.GetUint64("tracker.followDistance"),
		DeployedBlock:  viper.GetUint64("chain.marketDeployedBlock"),
		DecodeSender:   true,
		PollInterval:   viper.GetDuration("tracker.pollInterval"),
		BatchSize:      viper.GetInt("tracker.batchSize"),
		Retry: tracker.RetryCfg{
			Min:      viper.GetDuration("tracker.retry.min"),
			Max:      viper.GetDuration("tracker.retry.max"),
			Attempts: viper.GetInt("tracker.retry.attempts"),
		},
	})
	if err != nil {
		ctx.WithField("err", err).Panic("NewEventTracker failed")
	}
	marketTracker.Start(ctx)

	lookback := config.Duration("auditor.lookback", time.Hour)
	spec := viper.GetString("auditor.schedule")
	if spec == "" {
		spec = "0 */5 * * * *"
	}
	jobs := schedule.New(ctx)
	if err := jobs.Add(spec, "audit", func(c bCtx.Ctx) error {
		_, err := auditor.Audit(c, time.Now().Add(-lookback))
		return err
	}); err != nil {
		ctx.WithField("err", err).Panic("scheduling auditor failed")
	}
	jobs.Start()

	srv := startEchoServer(ctx, hc_usecase.New(hc_repository.New(q, redisCache)), errCh)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	exitCode := 0
	select {
	case sig := <-quit:
		ctx.WithField("signal", sig).Info("received signal")
	case err := <-errCh:
		// the cursor is durable, a restart resumes where the last commit left off
		ctx.WithField("err", err).Error("tracker stopped")
		exitCode = 1
	}

	cancel()
	jobs.Stop()
	marketTracker.Wait()
	head.Wait()
	shutdown, done := bCtx.WithTimeout(bCtx.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdown); err != nil {
		ctx.WithField("err", err).Warn("shutting down the server")
	}
	if exitCode != 0 {
		log.Flush(2 * time.Second)
		os.Exit(exitCode)
	}
}

// startEchoServer serves the health probes of the deployment
func startEchoServer(ctx bCtx.Ctx, hc healthcheck.HealthCheckUsecase, errCh chan<- error) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	middL := mmiddleware.InitMiddleware()
	e.Use(middL.AddContext())
	hc_delivery.New(e, hc)

	address := viper.GetString("server.address")
	ctx.WithField("address", address).Info("starting server")
	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return e
}

func dial(ctx bCtx.Ctx, url string) *ethclient.Client {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		ctx.WithFields(log.Fields{"err": err, "url": url}).Panic("ethclient.DialContext failed")
	}
	return client
}
