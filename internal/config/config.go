package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "lister"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("marketplace.base_url", "https://api.immutable.com")
	v.SetDefault("marketplace.publishable_key", "")
	v.SetDefault("marketplace.timeout", "30s")
	v.SetDefault("marketplace.requests_per_second", 10)
	v.SetDefault("marketplace.burst", 10)
	v.SetDefault("marketplace.retry.max_attempts", 3)
	v.SetDefault("marketplace.retry.min_delay", "500ms")
	v.SetDefault("marketplace.retry.max_delay", "5s")
	v.SetDefault("marketplace.contract_address", "0x06d92b637dfcdf95a2faba04ef22b2a096029b69")
	v.SetDefault("marketplace.item_type", "ERC721")
	v.SetDefault("marketplace.currency_type", "ERC20")
	v.SetDefault("marketplace.default_currency", "0x52a6c53869ce09a731cd772f245b97a4401d3348")
	v.SetDefault("marketplace.currency_decimals", 18)
	v.SetDefault("marketplace.active_page_size", 200)

	v.SetDefault("chain.rpc_url", "https://rpc.immutable.com")
	v.SetDefault("chain.chain_id", 13371)
	v.SetDefault("chain.private_key", "")
	v.SetDefault("chain.confirm_poll_interval", "2s")
	v.SetDefault("chain.confirm_timeout", "3m")
	v.SetDefault("chain.gas_limit_multiplier", 1.2)

	v.SetDefault("pipeline.prepare_batch_size", 10)
	v.SetDefault("pipeline.prepare_delay", "500ms")
	v.SetDefault("pipeline.create_batch_size", 5)
	v.SetDefault("pipeline.create_delay", "800ms")
	v.SetDefault("pipeline.create_max_attempts", 3)
	v.SetDefault("pipeline.create_backoff_step", "1s")

	v.SetDefault("cancellation.chunk_size", 20)
	v.SetDefault("cancellation.chunk_delay", "500ms")
	v.SetDefault("cancellation.id_prefix", "zkevm-")

	v.SetDefault("database.path", "data/lister.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("monitor.port", 0)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
