package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"orderbook-lister/internal/cancellation"
	"orderbook-lister/internal/config"
	"orderbook-lister/internal/journal"
	"orderbook-lister/internal/listing"
	"orderbook-lister/internal/log"
	"orderbook-lister/internal/marketplace"
	"orderbook-lister/internal/metrics"
	"orderbook-lister/internal/orderbook"
	"orderbook-lister/internal/signer"
	"orderbook-lister/internal/store"
)

// Account 为已初始化的钱包信息。
type Account struct {
	Address string `json:"address"`
}

// App 聚合核心依赖，对外提供批量挂单、批量撤单与挂单查询。
// 同一时刻只允许一个批量任务（挂单或撤单）运行。
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	registry *prometheus.Registry
	metrics  *metrics.Collector

	mu          sync.Mutex
	initialized bool
	running     bool
	cancelRun   context.CancelFunc
	account     Account
	marketplace orderbook.Marketplace
	signer      orderbook.Signer
	pipeline    *listing.Pipeline
	canceller   *cancellation.Canceller
	journal     *journal.Service
	closers     []func() error
}

// New 创建 App 实例，依赖在 Initialize 时建立。
func New(cfg *config.Config, logger *zap.Logger, st *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: registry,
		metrics:  metrics.New(registry),
	}
}

// Initialize 解析私钥、连接节点与订单簿接口，返回钱包地址；重复调用返回同一账户。
func (a *App) Initialize(ctx context.Context) (Account, error) {
	a.mu.Lock()
	if a.initialized {
		account := a.account
		a.mu.Unlock()
		return account, nil
	}
	a.mu.Unlock()

	wallet, err := signer.New(ctx, a.cfg.Chain, log.Component(a.logger, "signer"))
	if err != nil {
		return Account{}, fmt.Errorf("初始化签名器失败: %w", err)
	}
	client, err := marketplace.NewClient(a.cfg.Marketplace, log.Component(a.logger, "marketplace"))
	if err != nil {
		wallet.Close()
		return Account{}, fmt.Errorf("初始化订单簿客户端失败: %w", err)
	}

	account, err := a.initializeWith(ctx, client, wallet)
	if err != nil {
		wallet.Close()
		return Account{}, err
	}

	a.mu.Lock()
	a.closers = append(a.closers, func() error {
		wallet.Close()
		return nil
	})
	a.mu.Unlock()
	return account, nil
}

func (a *App) initializeWith(ctx context.Context, market orderbook.Marketplace, sig orderbook.Signer) (Account, error) {
	address, err := sig.Address(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("获取钱包地址失败: %w", err)
	}

	var journalSvc *journal.Service
	if a.store != nil {
		journalSvc, err = journal.NewService(ctx, a.store, log.Component(a.logger, "journal"))
		if err != nil {
			return Account{}, fmt.Errorf("初始化运行日志失败: %w", err)
		}
	}

	pipeline := listing.NewPipeline(market, sig,
		listing.OptionsFromConfig(a.cfg.Pipeline, a.cfg.Marketplace),
		log.Component(a.logger, "listing"),
	)
	pipeline.SetObserver(a.metrics)

	canceller := cancellation.NewCanceller(market, sig,
		cancellation.OptionsFromConfig(a.cfg.Cancellation),
		log.Component(a.logger, "cancellation"),
	)
	canceller.SetObserver(a.metrics)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return a.account, nil
	}
	a.marketplace = market
	a.signer = sig
	a.pipeline = pipeline
	a.canceller = canceller
	a.journal = journalSvc
	a.account = Account{Address: address}
	a.initialized = true

	a.logger.Info("钱包已初始化",
		zap.String("address", address),
		zap.String("environment", a.cfg.App.Environment),
		zap.String("contract", a.cfg.Marketplace.ContractAddress),
	)
	return a.account, nil
}

// begin 占用单任务槽位，并在同一把锁内登记本次运行的取消函数。
func (a *App) begin(ctx context.Context, op string) (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return nil, &orderbook.StateError{Op: op, Err: orderbook.ErrNotInitialized}
	}
	if a.running {
		return nil, &orderbook.StateError{Op: op, Err: orderbook.ErrRunActive}
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.running = true
	a.cancelRun = cancel
	return runCtx, nil
}

func (a *App) end() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancelRun != nil {
		a.cancelRun()
	}
	a.running = false
	a.cancelRun = nil
}

// BulkList 执行一次批量挂单；部分成功与取消均通过 Result 表达。
func (a *App) BulkList(ctx context.Context, requests []orderbook.OrderRequest, onProgress listing.ProgressFunc) (listing.Result, error) {
	runCtx, err := a.begin(ctx, "BulkList")
	if err != nil {
		return listing.Result{}, err
	}
	defer a.end()

	res, err := a.pipeline.Run(runCtx, requests, onProgress)
	if res.RunID != "" && a.journal != nil {
		a.journal.RecordListRun(context.WithoutCancel(ctx), res)
	}
	if err != nil {
		a.recordError(ctx, "批量挂单异常结束", err, res.RunID)
		return res, err
	}
	return res, nil
}

// BulkCancel 执行一次批量撤单；被停止时剩余订单记为跳过，不视为错误。
func (a *App) BulkCancel(ctx context.Context, targets []cancellation.Target, onProgress cancellation.ProgressFunc) (cancellation.Result, error) {
	runCtx, err := a.begin(ctx, "BulkCancel")
	if err != nil {
		return cancellation.Result{}, err
	}
	defer a.end()

	res, err := a.canceller.Run(runCtx, targets, onProgress)
	if res.RunID != "" && a.journal != nil {
		a.journal.RecordCancelRun(context.WithoutCancel(ctx), res)
	}
	if err != nil {
		a.recordError(ctx, "批量撤单异常结束", err, res.RunID)
		return res, err
	}
	return res, nil
}

// RequestCancellationOfRun 请求停止当前运行的任务，返回是否存在运行中的任务。
func (a *App) RequestCancellationOfRun() bool {
	a.mu.Lock()
	cancelRun := a.cancelRun
	a.mu.Unlock()

	if cancelRun == nil {
		return false
	}
	a.logger.Info("收到取消请求，当前批次结束后停止")
	cancelRun()
	return true
}

// Account 返回已初始化的账户。
func (a *App) Account() (Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return Account{}, &orderbook.StateError{Op: "Account", Err: orderbook.ErrNotInitialized}
	}
	return a.account, nil
}

// Journal 返回运行日志服务，未初始化或未配置数据库时为 nil。
func (a *App) Journal() *journal.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.journal
}

func (a *App) recordError(ctx context.Context, msg string, err error, runID string) {
	a.logger.Error(msg, zap.String("run_id", runID), zap.Error(err))
	if a.journal != nil {
		a.journal.RecordError(context.WithoutCancel(ctx), msg, err, map[string]interface{}{"run_id": runID})
	}
}

// Close 释放签名器等资源；数据库由调用方关闭。
func (a *App) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var err error
	for _, closeFn := range closers {
		err = multierr.Append(err, closeFn())
	}
	return err
}
