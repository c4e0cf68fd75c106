// Command strategybot runs the full candle -> strategy -> orchestrator
// -> execution pipeline against Binance USD-M futures for a configured
// set of symbols. It is grounded on the teacher's root main.go, trimmed
// from a multi-tenant SaaS entry point down to a single-account
// composition root: every manager from internal/ is constructed and
// wired here, in dependency order, with circular constructor
// dependencies (watch<->orchestrator, stoploss/invalidation<->executor)
// broken by an optional setter, matching SetRiskGate's precedent in
// internal/orchestrator.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"strategybot/config"
	"strategybot/internal/api"
	"strategybot/internal/auth"
	"strategybot/internal/binance"
	"strategybot/internal/cache"
	"strategybot/internal/candle"
	"strategybot/internal/circuit"
	"strategybot/internal/contract"
	"strategybot/internal/events"
	"strategybot/internal/execution/invalidation"
	"strategybot/internal/execution/order"
	"strategybot/internal/execution/position"
	"strategybot/internal/execution/sizing"
	"strategybot/internal/execution/stoploss"
	"strategybot/internal/execution/trailing"
	"strategybot/internal/exchange"
	"strategybot/internal/model"
	"strategybot/internal/orchestrator"
	"strategybot/internal/orders"
	"strategybot/internal/persistence"
	"strategybot/internal/statemachine"
	"strategybot/internal/strategyengine"
	"strategybot/internal/vault"
	"strategybot/internal/watch"
)

const (
	watchExpiryInterval = time.Minute
	machinePruneInterval = 5 * time.Minute
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "main").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiKey, secretKey := resolveCredentials(ctx, cfg, log)

	store, err := persistence.New(ctx, persistence.Config{
		Host:     cfg.PersistenceConfig.Host,
		Port:     cfg.PersistenceConfig.Port,
		User:     cfg.PersistenceConfig.User,
		Password: cfg.PersistenceConfig.Password,
		Database: cfg.PersistenceConfig.Database,
		SSLMode:  cfg.PersistenceConfig.SSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to persistence store")
	}
	defer store.Close()

	if err := store.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	bus := events.NewBus()

	marketData := binance.NewFuturesClient(apiKey, secretKey, cfg.FuturesConfig.TestNet)

	var tradingClient binance.FuturesClient = binance.NewCachedFuturesClient(marketData, binance.NewMarketDataCache())
	if cfg.TradingConfig.DryRun || cfg.BinanceConfig.MockMode {
		tradingClient = binance.NewFuturesMockClient(10000, func(symbol string) (float64, error) {
			mark, err := marketData.GetMarkPrice(symbol)
			if err != nil {
				return 0, err
			}
			return mark.MarkPrice, nil
		})
		log.Info().Msg("dry-run mode: trading against FuturesMockClient, market data still live")
	}

	exchangeClient := binance.NewExchangeClient(tradingClient)
	klineStream := binance.NewKlineStreamAdapter(cfg.FuturesConfig.TestNet)
	if err := klineStream.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect kline stream")
	}

	userStream := binance.NewUserDataStream(tradingClient, cfg.FuturesConfig.TestNet)
	userStreamAdapter := binance.NewUserDataStreamAdapter(userStream)
	if err := userStreamAdapter.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect user data stream")
	}

	candleMgr := candle.New(exchangeClient, klineStream, store, bus, log)
	strategyEngine := strategyengine.New(candleMgr, store, bus, log)
	bus.Subscribe(events.EventCandleClose, strategyEngine.OnCandleClose)

	globalConfig := model.DefaultGlobalConfig()
	stateMachine := statemachine.New(time.Duration(globalConfig.AntiRageLockTTLSec)*time.Second, bus, log)
	contractValidator := contract.New(globalConfig)
	positionTracker := position.New(store, bus, log)

	orderMgr := order.New(exchangeClient, store, bus, log)
	if cfg.RedisConfig.Enabled {
		if cacheSvc, err := cache.NewCacheService(cfg.RedisConfig); err != nil {
			log.Warn().Err(err).Msg("redis cache unavailable, client order ids fall back to uuid")
		} else {
			idGen, err := orders.NewClientOrderIdGenerator(cacheSvc, "default", nil)
			if err != nil {
				log.Warn().Err(err).Msg("client order id generator init failed")
			} else {
				orderMgr.SetLinkIDGenerator(idGen, orders.ModeSwing)
			}
		}
	}

	sizingAdapter := binance.NewSizingAdapter(tradingClient)
	sizer := sizing.New(sizingAdapter, sizingAdapter, sizing.DefaultConfig(), log)

	stopLossMgr := stoploss.New(nil, bus, log)
	trailingMgr := trailing.New(stopLossMgr, log)
	bus.Subscribe(events.EventStateUpdate, trailingMgr.OnStateUpdate)
	bus.Subscribe(events.EventStateUpdate, stopLossMgr.OnStateUpdate)
	invalidationMgr := invalidation.New(nil, bus, log)
	bus.Subscribe(events.EventStateUpdate, invalidationMgr.OnStateUpdate)

	executor := orchestrator.NewExecutor(
		orderMgr, exchangeClient, sizer, strategyEngine, positionTracker,
		stopLossMgr, trailingMgr, invalidationMgr, bus, log,
	)
	stopLossMgr.SetExiter(executor)
	invalidationMgr.SetExiter(executor)

	watchMgr := watch.New(store, nil, bus, log)
	bus.Subscribe(events.EventStateUpdate, watchMgr.OnStateUpdate)

	orch := orchestrator.New(stateMachine, contractValidator, executor, positionTracker, watchMgr, bus, log)
	watchMgr.SetSubmitter(orch)

	if cfg.CircuitBreakerConfig.Enabled {
		breaker := circuit.NewCircuitBreaker(&circuit.CircuitBreakerConfig{
			Enabled:              cfg.CircuitBreakerConfig.Enabled,
			MaxLossPerHour:       cfg.CircuitBreakerConfig.MaxLossPerHour,
			MaxConsecutiveLosses: cfg.CircuitBreakerConfig.MaxConsecutiveLosses,
			CooldownMinutes:      cfg.CircuitBreakerConfig.CooldownMinutes,
			MaxTradesPerMinute:   cfg.CircuitBreakerConfig.MaxTradesPerMinute,
			MaxDailyLoss:         cfg.CircuitBreakerConfig.MaxDailyLoss,
			MaxDailyTrades:       cfg.CircuitBreakerConfig.MaxDailyTrades,
		}, bus)
		orch.SetRiskGate(breaker)
	}

	for _, symbol := range cfg.SymbolsConfig.Symbols {
		strategyEngine.Configure(model.DefaultSymbolConfig(symbol, cfg.SymbolsConfig.Timeframe))
		if err := candleMgr.Subscribe(ctx, symbol, cfg.SymbolsConfig.Timeframe); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("failed to subscribe candle series")
		}
	}

	var jwtManager *auth.JWTManager
	if cfg.AuthConfig.Enabled {
		jwtManager = auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.AccessTokenDuration, cfg.AuthConfig.RefreshTokenDuration)
	}
	apiServer := api.NewServer(api.ServerConfig{Port: cfg.ServerConfig.Port, AuthEnabled: cfg.AuthConfig.Enabled}, bus, jwtManager, strategyEngine, positionTracker, log)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		candleMgr.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		consumeUserStream(ctx, userStreamAdapter, positionTracker, orderMgr, log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runWatchExpiry(ctx, watchMgr, stateMachine)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("api server stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
	}

	cancel()
	_ = userStreamAdapter.Close()
	_ = klineStream.Close()
	wg.Wait()
	log.Info().Msg("shutdown complete")
}

// resolveCredentials prefers Vault-stored API keys (a single "default"
// user entry, since this is a single-account bot) and falls back to the
// config-file pair when Vault is disabled or the lookup fails.
func resolveCredentials(ctx context.Context, cfg *config.Config, log zerolog.Logger) (string, string) {
	if !cfg.VaultConfig.Enabled {
		return cfg.BinanceConfig.APIKey, cfg.BinanceConfig.SecretKey
	}

	client, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Warn().Err(err).Msg("vault client init failed, falling back to config credentials")
		return cfg.BinanceConfig.APIKey, cfg.BinanceConfig.SecretKey
	}

	keyData, err := client.GetAPIKey(ctx, "default", "binance", cfg.FuturesConfig.TestNet)
	if err != nil {
		log.Warn().Err(err).Msg("vault key lookup failed, falling back to config credentials")
		return cfg.BinanceConfig.APIKey, cfg.BinanceConfig.SecretKey
	}
	return keyData.APIKey, keyData.SecretKey
}

// consumeUserStream routes the private account stream to the position
// tracker (position topic, raw frame) and order manager (execution
// topic, parsed into a model.Fill) until ctx is cancelled.
func consumeUserStream(ctx context.Context, stream *binance.UserDataStreamAdapter, positions *position.Tracker, orders *order.Manager, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			switch ev.Topic {
			case exchange.TopicPosition:
				positions.OnStreamEvent(ctx, ev)
			case exchange.TopicExecution:
				for _, raw := range ev.Data {
					exchangeOrderID, fill, ok := order.ParseExecution(raw)
					if !ok {
						continue
					}
					if err := orders.ApplyFill(ctx, exchangeOrderID, fill); err != nil {
						log.Warn().Err(err).Str("exchange_order_id", exchangeOrderID).Msg("apply fill failed")
					}
				}
			}
		}
	}
}

// runWatchExpiry expires due watch rules and prunes stale anti-rage
// locks on a minute-granularity timer until ctx is cancelled.
func runWatchExpiry(ctx context.Context, watchMgr *watch.Manager, stateMachine *statemachine.Machine) {
	expiryTicker := time.NewTicker(watchExpiryInterval)
	pruneTicker := time.NewTicker(machinePruneInterval)
	defer expiryTicker.Stop()
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-expiryTicker.C:
			watchMgr.ExpireDue(ctx)
			watchMgr.Cleanup()
		case <-pruneTicker.C:
			stateMachine.PruneExpired()
		}
	}
}

var _ = http.StatusOK // retained: api package's gin routes are exercised over HTTP, not this binary directly
