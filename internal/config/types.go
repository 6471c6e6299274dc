package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Marketplace  MarketplaceConfig  `mapstructure:"marketplace"`
	Chain        ChainConfig        `mapstructure:"chain"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Cancellation CancellationConfig `mapstructure:"cancellation"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Monitor      MonitorConfig      `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// MarketplaceConfig 描述订单簿 API 的连接信息与挂单默认值。
type MarketplaceConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	PublishableKey    string        `mapstructure:"publishable_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Retry             RetryConfig   `mapstructure:"retry"`
	ContractAddress   string        `mapstructure:"contract_address"`
	ItemType          string        `mapstructure:"item_type"`
	CurrencyType      string        `mapstructure:"currency_type"`
	DefaultCurrency   string        `mapstructure:"default_currency"`
	CurrencyDecimals  int32         `mapstructure:"currency_decimals"`
	ActivePageSize    int           `mapstructure:"active_page_size"`
}

// RetryConfig 统一控制只读调用的重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// ChainConfig 描述签名钱包与链上节点。
type ChainConfig struct {
	RPCURL              string        `mapstructure:"rpc_url"`
	ChainID             int64         `mapstructure:"chain_id"`
	PrivateKey          string        `mapstructure:"private_key"`
	ConfirmPollInterval time.Duration `mapstructure:"confirm_poll_interval"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout"`
	GasLimitMultiplier  float64       `mapstructure:"gas_limit_multiplier"`
}

// PipelineConfig 控制批量挂单流水线的批次与节奏。
type PipelineConfig struct {
	PrepareBatchSize  int           `mapstructure:"prepare_batch_size"`
	PrepareDelay      time.Duration `mapstructure:"prepare_delay"`
	CreateBatchSize   int           `mapstructure:"create_batch_size"`
	CreateDelay       time.Duration `mapstructure:"create_delay"`
	CreateMaxAttempts int           `mapstructure:"create_max_attempts"`
	CreateBackoffStep time.Duration `mapstructure:"create_backoff_step"`
}

// CancellationConfig 控制批量撤单。
type CancellationConfig struct {
	ChunkSize  int           `mapstructure:"chunk_size"`
	ChunkDelay time.Duration `mapstructure:"chunk_delay"`
	IDPrefix   string        `mapstructure:"id_prefix"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制 /events 与 /metrics 接口，端口为 0 时不启动。
type MonitorConfig struct {
	Port int `mapstructure:"port"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Marketplace.BaseURL == "" {
		err = multierr.Append(err, errors.New("marketplace.base_url 不能为空"))
	}
	if c.Marketplace.Timeout <= 0 {
		err = multierr.Append(err, errors.New("marketplace.timeout 必须大于0"))
	}
	if c.Marketplace.RequestsPerSecond < 0 {
		err = multierr.Append(err, errors.New("marketplace.requests_per_second 不能为负"))
	}
	if c.Marketplace.Burst <= 0 {
		err = multierr.Append(err, errors.New("marketplace.burst 必须大于0"))
	}
	if c.Marketplace.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("marketplace.retry.max_attempts 必须大于0"))
	}
	if c.Marketplace.Retry.MinDelay <= 0 || c.Marketplace.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("marketplace.retry.delay 必须为正"))
	}
	if c.Marketplace.Retry.MinDelay > c.Marketplace.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("marketplace.retry.min_delay 不能大于 max_delay"))
	}
	if !isHexAddress(c.Marketplace.ContractAddress) {
		err = multierr.Append(err, errors.New("marketplace.contract_address 不是合法地址"))
	}
	if !isHexAddress(c.Marketplace.DefaultCurrency) {
		err = multierr.Append(err, errors.New("marketplace.default_currency 不是合法地址"))
	}
	if c.Marketplace.ItemType == "" || c.Marketplace.CurrencyType == "" {
		err = multierr.Append(err, errors.New("marketplace.item_type 与 currency_type 不能为空"))
	}
	if c.Marketplace.CurrencyDecimals < 0 || c.Marketplace.CurrencyDecimals > 36 {
		err = multierr.Append(err, errors.New("marketplace.currency_decimals 应位于[0,36]"))
	}
	if c.Marketplace.ActivePageSize <= 0 || c.Marketplace.ActivePageSize > 200 {
		err = multierr.Append(err, errors.New("marketplace.active_page_size 应位于(0,200]"))
	}
	if c.Chain.RPCURL == "" {
		err = multierr.Append(err, errors.New("chain.rpc_url 不能为空"))
	}
	if c.Chain.ChainID <= 0 {
		err = multierr.Append(err, errors.New("chain.chain_id 必须大于0"))
	}
	if c.Chain.PrivateKey == "" {
		err = multierr.Append(err, errors.New("chain.private_key 不能为空"))
	}
	if c.Chain.ConfirmPollInterval <= 0 || c.Chain.ConfirmTimeout <= 0 {
		err = multierr.Append(err, errors.New("chain.confirm_poll_interval 与 confirm_timeout 必须大于0"))
	}
	if c.Chain.GasLimitMultiplier < 1 {
		err = multierr.Append(err, errors.New("chain.gas_limit_multiplier 不能小于1"))
	}
	if c.Pipeline.PrepareBatchSize <= 0 {
		err = multierr.Append(err, errors.New("pipeline.prepare_batch_size 必须大于0"))
	}
	if c.Pipeline.CreateBatchSize <= 0 {
		err = multierr.Append(err, errors.New("pipeline.create_batch_size 必须大于0"))
	}
	if c.Pipeline.CreateMaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("pipeline.create_max_attempts 必须大于0"))
	}
	if c.Pipeline.PrepareDelay < 0 || c.Pipeline.CreateDelay < 0 || c.Pipeline.CreateBackoffStep < 0 {
		err = multierr.Append(err, errors.New("pipeline 延迟参数不能为负"))
	}
	if c.Cancellation.ChunkSize <= 0 || c.Cancellation.ChunkSize > 20 {
		err = multierr.Append(err, errors.New("cancellation.chunk_size 应位于(0,20]"))
	}
	if c.Cancellation.ChunkDelay < 0 {
		err = multierr.Append(err, errors.New("cancellation.chunk_delay 不能为负"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		err = multierr.Append(err, errors.New("monitor.port 应位于[0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

func isHexAddress(s string) bool {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if len(s) != 40 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
