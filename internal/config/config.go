package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned by Load for values that parse but cannot be
// used.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all application configuration.
type Config struct {
	Env                string `mapstructure:"env"`
	LocalStackEndpoint string `mapstructure:"localstack_endpoint"`
	LogLevel           string
	EVVM               EVVMConfig
	Engine             EngineConfig
	RPC                RPCConfig
	Feed               FeedConfig
	Metrics            MetricsConfig
	Signer             SignerConfig
	Redis              RedisConfig
}

// EVVMConfig identifies the accounting ecosystem the engine settles in.
type EVVMConfig struct {
	InstanceID     uint64
	PrincipalToken common.Address
	RewardUnit     *uint256.Int
}

// EngineConfig holds the engine's identity and initial parameters.
type EngineConfig struct {
	Address              common.Address
	Owner                common.Address
	PercentageFee        uint64
	MaxLimitFillFixedFee *uint256.Int
	RewardSeller         uint64
	RewardService        uint64
	RewardStaker         uint64
}

// RPCConfig holds the gRPC transport settings.
type RPCConfig struct {
	SocketPath string `mapstructure:"socket_path"`
}

// FeedConfig holds the event stream settings. ListenAddr is served by the
// daemon; URL is dialed by watchers.
type FeedConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	URL        string `mapstructure:"url"`
}

// MetricsConfig holds the Prometheus endpoint settings. An empty ListenAddr
// disables the endpoint.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// SignerConfig holds signer-specific settings.
type SignerConfig struct {
	SessionTTLSec int    `mapstructure:"session_ttl_sec"`
	KMSKeyID      string `mapstructure:"kms_key_id"`
	AWSRegion     string `mapstructure:"aws_region"`
	KeyFile       string `mapstructure:"key_file"`
	MaxValue      *uint256.Int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// ResyncInterval is how often the mirror is rebuilt from the book.
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
}

// Load reads configuration from environment variables prefixed with P2PSWAP_.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("P2PSWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("env", "development")
	v.SetDefault("log.level", "info")

	// Ecosystem defaults
	v.SetDefault("evvm.instance_id", 1)
	v.SetDefault("evvm.principal_token", "0x0000000000000000000000000000000000000001")
	v.SetDefault("evvm.reward_unit", "5000000000000000000")

	// Engine defaults
	v.SetDefault("engine.address", "0x0000000000000000000000000000000000005a5a")
	v.SetDefault("engine.owner", "")
	v.SetDefault("engine.percentage_fee", 500)
	v.SetDefault("engine.max_limit_fill_fixed_fee", "100000000000000000")
	v.SetDefault("engine.reward_seller", 5000)
	v.SetDefault("engine.reward_service", 4000)
	v.SetDefault("engine.reward_staker", 1000)

	// Transport defaults
	v.SetDefault("rpc.socket_path", "/var/run/p2pswap/engine.sock")
	v.SetDefault("feed.listen_addr", "127.0.0.1:8546")
	v.SetDefault("feed.url", "ws://127.0.0.1:8546/events")
	v.SetDefault("metrics.listen_addr", "127.0.0.1:9464")

	// Signer defaults
	v.SetDefault("signer.session_ttl_sec", 3600)
	v.SetDefault("signer.aws_region", "us-east-1")
	v.SetDefault("signer.max_value", "1000000000000000000000")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.resync_interval", "1m")

	cfg := &Config{}

	cfg.Env = v.GetString("env")
	cfg.LocalStackEndpoint = v.GetString("localstack_endpoint")
	cfg.LogLevel = v.GetString("log.level")

	principal, err := address(v, "evvm.principal_token")
	if err != nil {
		return nil, err
	}
	rewardUnit, err := amount(v, "evvm.reward_unit")
	if err != nil {
		return nil, err
	}
	cfg.EVVM = EVVMConfig{
		InstanceID:     v.GetUint64("evvm.instance_id"),
		PrincipalToken: principal,
		RewardUnit:     rewardUnit,
	}

	engineAddr, err := address(v, "engine.address")
	if err != nil {
		return nil, err
	}
	owner, err := address(v, "engine.owner")
	if err != nil {
		return nil, err
	}
	maxFee, err := amount(v, "engine.max_limit_fill_fixed_fee")
	if err != nil {
		return nil, err
	}
	cfg.Engine = EngineConfig{
		Address:              engineAddr,
		Owner:                owner,
		PercentageFee:        v.GetUint64("engine.percentage_fee"),
		MaxLimitFillFixedFee: maxFee,
		RewardSeller:         v.GetUint64("engine.reward_seller"),
		RewardService:        v.GetUint64("engine.reward_service"),
		RewardStaker:         v.GetUint64("engine.reward_staker"),
	}
	if sum := cfg.Engine.RewardSeller + cfg.Engine.RewardService + cfg.Engine.RewardStaker; sum != 10_000 {
		return nil, fmt.Errorf("%w: engine reward split sums to %d, want 10000", ErrInvalidConfig, sum)
	}
	if cfg.Engine.PercentageFee > 10_000 {
		return nil, fmt.Errorf("%w: engine.percentage_fee %d exceeds 10000", ErrInvalidConfig, cfg.Engine.PercentageFee)
	}

	cfg.RPC = RPCConfig{SocketPath: v.GetString("rpc.socket_path")}
	cfg.Feed = FeedConfig{
		ListenAddr: v.GetString("feed.listen_addr"),
		URL:        v.GetString("feed.url"),
	}
	cfg.Metrics = MetricsConfig{ListenAddr: v.GetString("metrics.listen_addr")}

	maxValue, err := amount(v, "signer.max_value")
	if err != nil {
		return nil, err
	}
	cfg.Signer = SignerConfig{
		SessionTTLSec: v.GetInt("signer.session_ttl_sec"),
		KMSKeyID:      v.GetString("signer.kms_key_id"),
		AWSRegion:     v.GetString("signer.aws_region"),
		KeyFile:       v.GetString("signer.key_file"),
		MaxValue:      maxValue,
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("redis.enabled"),
		Addr:     v.GetString("redis.addr"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),

		ResyncInterval: v.GetDuration("redis.resync_interval"),
	}

	return cfg, nil
}

// address parses an optional hex address. An empty value is the zero address.
func address(v *viper.Viper, key string) (common.Address, error) {
	s := v.GetString(key)
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %s=%q is not a hex address", ErrInvalidConfig, key, s)
	}
	return common.HexToAddress(s), nil
}

// amount parses a decimal 256-bit amount.
func amount(v *viper.Viper, key string) (*uint256.Int, error) {
	n, err := uint256.FromDecimal(v.GetString(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
	return n, nil
}
