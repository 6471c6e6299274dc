package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"orderbook-lister/internal/app"
	"orderbook-lister/internal/cancellation"
	"orderbook-lister/internal/config"
	"orderbook-lister/internal/listing"
	"orderbook-lister/internal/log"
	"orderbook-lister/internal/store"
)

const usage = `用法: lister [-config path] <command> [flags]

命令:
  list    -file requests.json   批量挂单，文件为 [{"item_id","price","currency"}]
  cancel  -file targets.json    批量撤单，文件为 [{"listing_id"|"order_id"|"order_hash"}]
          -ids a,b,c            或直接给出订单 id
  active  -items 1,2,3          查询活跃挂单，不指定则返回全部
`

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	if err := run(cfg, logger, flag.Arg(0), flag.Args()[1:]); err != nil {
		logger.Error("执行失败", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger, command string, args []string) error {
	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		return fmt.Errorf("初始化数据库失败: %w", err)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	lister := app.New(cfg, logger, sqliteStore)
	defer func() {
		if closeErr := lister.Close(); closeErr != nil {
			logger.Warn("释放资源失败", zap.Error(closeErr))
		}
	}()

	// 第一次信号触发协作式取消，已发出的远端调用继续完成；恢复默认处理后再次信号直接退出。
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go watchSignal(sigCtx, stop, lister, logger)

	ctx := context.Background()
	if err := lister.Serve(sigCtx, cfg.Monitor.Port); err != nil {
		return err
	}

	account, err := lister.Initialize(ctx)
	if err != nil {
		return err
	}
	logger.Info("使用钱包", zap.String("address", account.Address))

	switch command {
	case "list":
		return runList(ctx, lister, cfg, logger, args)
	case "cancel":
		return runCancel(ctx, lister, logger, args)
	case "active":
		return runActive(ctx, lister, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("未知命令 %q", command)
	}
}

type runCanceller interface {
	RequestCancellationOfRun() bool
}

func watchSignal(sigCtx context.Context, stop context.CancelFunc, lister runCanceller, logger *zap.Logger) {
	<-sigCtx.Done()
	stop()
	if lister.RequestCancellationOfRun() {
		logger.Warn("收到退出信号，等待当前批次结束；再次发送信号强制退出")
	}
}

func runList(ctx context.Context, lister *app.App, cfg *config.Config, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	file := fs.String("file", "", "挂单文件 (JSON)")
	_ = fs.Parse(args)
	if *file == "" {
		return fmt.Errorf("list 需要 -file")
	}

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("打开挂单文件失败: %w", err)
	}
	defer f.Close()

	requests, err := parseListFile(f, cfg.Marketplace.CurrencyDecimals)
	if err != nil {
		return err
	}

	res, err := lister.BulkList(ctx, requests, func(p listing.Progress) {
		logger.Info(p.Message,
			zap.String("status", string(p.Status)),
			zap.Int("processed", p.Processed),
			zap.Int("total", p.Total),
		)
	})
	if res.RunID != "" {
		if printErr := printJSON(res); printErr != nil {
			return printErr
		}
	}
	return err
}

func runCancel(ctx context.Context, lister *app.App, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	file := fs.String("file", "", "撤单文件 (JSON)")
	ids := fs.String("ids", "", "逗号分隔的订单 id")
	_ = fs.Parse(args)

	var targets []cancellation.Target
	switch {
	case *file != "":
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("打开撤单文件失败: %w", err)
		}
		defer f.Close()
		if targets, err = parseCancelFile(f); err != nil {
			return err
		}
	case *ids != "":
		for _, id := range splitList(*ids) {
			targets = append(targets, cancellation.Target{OrderID: id})
		}
	default:
		return fmt.Errorf("cancel 需要 -file 或 -ids")
	}

	res, err := lister.BulkCancel(ctx, targets, func(p cancellation.Progress) {
		logger.Info(p.Message,
			zap.String("status", string(p.Status)),
			zap.Int("processed", p.Processed),
			zap.Int("total", p.Total),
		)
	})
	if res.RunID != "" {
		if printErr := printJSON(res); printErr != nil {
			return printErr
		}
	}
	return err
}

func runActive(ctx context.Context, lister *app.App, args []string) error {
	fs := flag.NewFlagSet("active", flag.ExitOnError)
	items := fs.String("items", "", "逗号分隔的物品 id")
	_ = fs.Parse(args)

	listings, err := lister.FetchActiveListings(ctx, splitList(*items))
	if err != nil {
		return err
	}
	return printJSON(listings)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
