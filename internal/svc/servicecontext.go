package svc

import (
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"

	cachekeys "probsbots/internal/cache"
	"probsbots/internal/config"
	"probsbots/internal/model"
	"probsbots/internal/persistence/engine"
	"probsbots/pkg/account"
	exchangepkg "probsbots/pkg/exchange"
	_ "probsbots/pkg/exchange/bybit"
	_ "probsbots/pkg/exchange/sim"
	executorpkg "probsbots/pkg/executor"
	"probsbots/pkg/journal"
	"probsbots/pkg/ledger"
	llmpkg "probsbots/pkg/llm"
	managerpkg "probsbots/pkg/manager"
	marketpkg "probsbots/pkg/market"
	_ "probsbots/pkg/market/bybit"
	"probsbots/pkg/metrics"
	"probsbots/pkg/performance"
	"probsbots/pkg/reconciler"
)

type ServiceContext struct {
	Config config.Config

	ExecutorConfig   *executorpkg.Config
	ManagerConfig    *managerpkg.Config
	ReconcilerConfig *reconciler.Config

	Exchange exchangepkg.Provider
	Market   marketpkg.Provider

	// Optional: nil without a Postgres DSN / Redis host.
	DBConn sqlx.SqlConn
	Cache  gocache.Cache
	Store  ledger.Store

	Metrics     *metrics.Metrics
	Performance *performance.Aggregator
	Account     *account.Sampler
	Reconciler  *reconciler.Reconciler

	// Oracle and Manager are nil when no llm or executor section is configured;
	// the read API runs without them.
	Oracle  executorpkg.Oracle
	Journal *journal.Writer
	Manager *managerpkg.Manager
}

// Option customises service construction.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	exchange   exchangepkg.Provider
	oracle     executorpkg.Oracle
}

// WithRegisterer registers metrics on reg instead of the default registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithExchange replaces the configured venue.
func WithExchange(p exchangepkg.Provider) Option {
	return func(o *options) { o.exchange = p }
}

// WithOracle replaces the llm-backed oracle.
func WithOracle(oracle executorpkg.Oracle) Option {
	return func(o *options) { o.oracle = oracle }
}

func MustNewServiceContext(c config.Config, opts ...Option) *ServiceContext {
	svc, err := NewServiceContext(c, opts...)
	if err != nil {
		logx.Must(err)
	}
	return svc
}

func NewServiceContext(c config.Config, opts ...Option) (*ServiceContext, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	svc := &ServiceContext{
		Config:           c,
		ExecutorConfig:   c.Executor.Value,
		ManagerConfig:    c.Manager.Value,
		ReconcilerConfig: c.Reconciler.Value,
		Metrics:          metrics.NewMetrics("probsbots", o.registerer),
	}
	if svc.ManagerConfig == nil {
		svc.ManagerConfig = managerpkg.DefaultConfig()
	}
	if svc.ReconcilerConfig == nil {
		svc.ReconcilerConfig = reconciler.DefaultConfig()
	}

	if err := svc.initVenues(c, o); err != nil {
		return nil, err
	}
	if err := svc.initStorage(c); err != nil {
		return nil, err
	}
	if err := svc.initServices(c, o); err != nil {
		return nil, err
	}
	return svc, nil
}

func (svc *ServiceContext) initVenues(c config.Config, o *options) error {
	if o.exchange != nil {
		svc.Exchange = o.exchange
	} else {
		exchangeCfg := c.Exchange.Value
		if exchangeCfg == nil {
			return errors.New("svc: exchange config is required")
		}
		if c.IsTestEnv() {
			forceTestnet(exchangeCfg)
		}
		provider, err := exchangeCfg.DefaultProvider()
		if err != nil {
			return fmt.Errorf("svc: build exchange provider: %w", err)
		}
		svc.Exchange = provider
	}

	if marketCfg := c.Market.Value; marketCfg != nil {
		provider, err := marketCfg.DefaultProvider()
		if err != nil {
			return fmt.Errorf("svc: build market provider: %w", err)
		}
		svc.Market = provider
	}
	return nil
}

// forceTestnet keeps test runs off live venues whatever the yaml says.
func forceTestnet(cfg *exchangepkg.Config) {
	for _, provider := range cfg.Providers {
		provider.Testnet = true
	}
}

func (svc *ServiceContext) initStorage(c config.Config) error {
	if strings.TrimSpace(c.Redis.Host) != "" {
		svc.Cache = gocache.New(
			gocache.ClusterConf{{RedisConf: c.Redis, Weight: 100}},
			syncx.NewSingleFlight(),
			gocache.NewStat("probsbots"),
			model.ErrNotFound,
		)
	}

	if c.Postgres.DSN == "" {
		logx.Info("svc: no postgres dsn, using in-memory ledger")
		svc.Store = ledger.NewMemoryStore()
		return nil
	}
	conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
	if db, err := conn.RawDB(); err == nil {
		if c.Postgres.MaxOpen > 0 {
			db.SetMaxOpenConns(c.Postgres.MaxOpen)
		}
		if c.Postgres.MaxIdle > 0 {
			db.SetMaxIdleConns(c.Postgres.MaxIdle)
		}
	}
	store, err := engine.NewStore(engine.Config{
		SQLConn: conn,
		Cache:   svc.Cache,
		TTL:     cachekeys.NewTTLSet(c.TTL),
	})
	if err != nil {
		return err
	}
	svc.DBConn = conn
	svc.Store = store
	return nil
}

func (svc *ServiceContext) initServices(c config.Config, o *options) error {
	var perfOpts []performance.Option
	if svc.Cache != nil {
		perfOpts = append(perfOpts, performance.WithCache(svc.Cache,
			cachekeys.PerformanceTTL(cachekeys.NewTTLSet(c.TTL)), cachekeys.PerformanceKey))
	}
	perf, err := performance.NewAggregator(svc.Store, perfOpts...)
	if err != nil {
		return err
	}
	svc.Performance = perf

	sampler, err := account.NewSampler(svc.Exchange, svc.Store, svc.ManagerConfig.InitialCapital)
	if err != nil {
		return err
	}
	svc.Account = sampler

	rec, err := reconciler.New(svc.ReconcilerConfig, svc.Exchange, svc.Store,
		reconciler.WithInvalidator(perf),
		reconciler.WithMetrics(svc.Metrics),
	)
	if err != nil {
		return err
	}
	svc.Reconciler = rec

	if svc.ExecutorConfig == nil {
		logx.Info("svc: no executor config, decision loop disabled")
		return nil
	}
	oracle, err := svc.buildOracle(c, o)
	if err != nil {
		return err
	}
	if oracle == nil {
		logx.Info("svc: no llm config, decision loop disabled")
		return nil
	}
	svc.Oracle = oracle

	jw, err := journal.NewWriter(svc.ManagerConfig.JournalPath)
	if err != nil {
		return err
	}
	svc.Journal = jw

	mgr, err := managerpkg.NewManager(svc.ManagerConfig, svc.ExecutorConfig, svc.Exchange, svc.Market, oracle, svc.Store,
		managerpkg.WithDigester(perf),
		managerpkg.WithJournal(jw),
		managerpkg.WithMetrics(svc.Metrics),
	)
	if err != nil {
		return err
	}
	svc.Manager = mgr
	return nil
}

func (svc *ServiceContext) buildOracle(c config.Config, o *options) (executorpkg.Oracle, error) {
	if o.oracle != nil {
		return o.oracle, nil
	}
	llmCfg := c.LLM.Value
	if llmCfg == nil {
		return nil, nil
	}
	client, err := llmpkg.NewClient(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("svc: build llm client: %w", err)
	}
	var oracleOpts []executorpkg.OracleOption
	if recorder, ok := svc.Store.(executorpkg.ConversationRecorder); ok {
		oracleOpts = append(oracleOpts, executorpkg.WithConversationRecorder(recorder))
	}
	oracle, err := executorpkg.NewLLMOracle(svc.ExecutorConfig, client, oracleOpts...)
	if err != nil {
		return nil, fmt.Errorf("svc: build oracle: %w", err)
	}
	return oracle, nil
}
