package bootstrap

import (
	"context"
	"strings"

	"github.com/krobus00/market-stream-service/internal/config"
	"github.com/krobus00/market-stream-service/internal/entity"
	"github.com/krobus00/market-stream-service/internal/infrastructure"
	"github.com/krobus00/market-stream-service/internal/repository"
	"github.com/krobus00/market-stream-service/internal/service/forwarder"
	"github.com/krobus00/market-stream-service/internal/service/relay"
	"github.com/krobus00/market-stream-service/internal/service/source"
	"github.com/krobus00/market-stream-service/internal/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// StartMarketDataForwarder runs the edge side: it drains the local market
// stream and pushes ticks/bars to the remote relay gateway.
func StartMarketDataForwarder(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	marketSource := source.NewJetstreamSource(nc, js, 0)
	err = marketSource.JetstreamEventSubscribe(ctx)
	util.ContinueOrFatal(err)

	filtered := forwarder.NewFilteredSource(marketSource)
	applyConfiguredSubscriptions(filtered)

	cleanup := map[string]operation{
		"nats connection": func(ctx context.Context) error {
			_ = marketSource.Close()
			return infrastructure.CloseJetstream(nc)
		},
	}

	if dbCfg, ok := config.Env.Database["subscriptions"]; ok && strings.TrimSpace(dbCfg.DSN) != "" {
		subscriptionsDB, err := infrastructure.NewPostgresConnection(ctx, dbCfg)
		util.ContinueOrFatal(err)
		infrastructure.StartPostgresHealthCheck(ctx, subscriptionsDB, dbCfg.PingInterval)

		cleanup["subscriptions database"] = func(ctx context.Context) error {
			return subscriptionsDB.Close()
		}

		subscriptionRepo := repository.NewForwardSubscriptionRepository(subscriptionsDB)
		applyStoredSubscriptions(ctx, filtered, subscriptionRepo)
	}

	sink := relay.NewClient(config.Env.Relay.URL,
		relay.WithPushTimeout(config.Env.Relay.PushTimeout),
		relay.WithHealthTimeout(config.Env.Relay.HealthTimeout),
	)

	var stateStore forwarder.StateStore
	if redisCfg, ok := config.Env.Redis["forwarder"]; ok && strings.TrimSpace(redisCfg.CacheDSN) != "" {
		redisStore, err := forwarder.NewRedisStateStore(redisCfg.CacheDSN)
		util.ContinueOrFatal(err)
		stateStore = redisStore

		cleanup["forwarder state store"] = func(ctx context.Context) error {
			return redisStore.Close()
		}
	}

	agent := forwarder.New(filtered, sink, stateStore, forwarder.Config{
		PollInterval:     config.Env.Forwarder.PollInterval,
		StatsInterval:    config.Env.Forwarder.StatsInterval,
		FailureThreshold: config.Env.Forwarder.FailureThreshold,
		BackoffFactor:    config.Env.Forwarder.BackoffFactor,
		MinBackoff:       config.Env.Forwarder.MinBackoff,
		MaxBackoff:       config.Env.Forwarder.MaxBackoff,
		StateKey:         config.Env.Forwarder.StateKey,
	})

	go func() {
		err := agent.Run(ctx)
		if err != nil && ctx.Err() == nil {
			logrus.Error(err)
		}
	}()

	cleanup["forwarder"] = func(ctx context.Context) error {
		cancel()
		return nil
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, cleanup)

	<-wait
}

// applyConfiguredSubscriptions installs the static symbol filters from the
// config file. Bar subscriptions are "SYMBOL:TIMEFRAME" pairs.
func applyConfiguredSubscriptions(filtered *forwarder.FilteredSource) {
	filtered.AllowTicks(config.Env.Forwarder.TickSymbols...)

	for _, pair := range config.Env.Forwarder.BarSubscriptions {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			logrus.Warnf("invalid bar subscription %q, expected SYMBOL:TIMEFRAME", pair)
			continue
		}

		timeframe, err := entity.ParseTimeframe(parts[1])
		if err != nil {
			logrus.Warnf("invalid bar subscription %q: %v", pair, err)
			continue
		}

		filtered.AllowBars(strings.TrimSpace(parts[0]), timeframe)
	}
}

// applyStoredSubscriptions merges the active rows from the subscriptions
// database into the filter. Rows without a timeframe select tick forwarding.
func applyStoredSubscriptions(ctx context.Context, filtered *forwarder.FilteredSource, repo *repository.ForwardSubscriptionRepository) {
	subscriptions, err := repo.GetActive(ctx)
	util.ContinueOrFatal(err)

	for _, subscription := range subscriptions {
		if !subscription.Timeframe.Valid {
			filtered.AllowTicks(subscription.Symbol)
			continue
		}

		timeframe, err := entity.ParseTimeframe(subscription.Timeframe.String)
		if err != nil {
			logrus.Warnf("skipping stored subscription %s: %v", subscription.ID, err)
			continue
		}

		filtered.AllowBars(subscription.Symbol, timeframe)
	}

	logrus.WithField("count", len(subscriptions)).Info("stored forward subscriptions applied")
}
