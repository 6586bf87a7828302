package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
)

const (
	ModeSimulated = "simulated"
	ModeEVM       = "evm"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Chain      ChainConfig      `yaml:"chain"`
	Simulated  SimulatedConfig  `yaml:"simulated"`
	CORS       CORSConfig       `yaml:"cors"`
	Admin      AdminConfig      `yaml:"admin"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig Database configuration. An empty DSN keeps all state in
// memory.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig settlement publisher configuration. An empty URL disables it.
type NATSConfig struct {
	URL             string `yaml:"url"`
	Timeout         int    `yaml:"timeout"`
	ReconnectWait   int    `yaml:"reconnect_wait"`
	MaxReconnects   int    `yaml:"max_reconnects"`
	EnableJetStream bool   `yaml:"enable_jetstream"`
	Stream          string `yaml:"stream"`
	SubjectPrefix   string `yaml:"subject_prefix"`
}

// RedisConfig login nonce store. An empty host falls back to memory.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Timeout  int    `yaml:"timeout"`
}

// AuthConfig signed-login and JWT settings
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
	NonceTTL      int    `yaml:"nonce_ttl"` // seconds
}

// FeeRuleConfig seeds a fee rule for a destination that has none
type FeeRuleConfig struct {
	Domain      uint32 `yaml:"domain"`
	PercFeeBips uint16 `yaml:"perc_fee_bips"`
	FlatFee     string `yaml:"flat_fee"`
}

// DispatcherConfig core dispatcher settings
type DispatcherConfig struct {
	Mode               string          `yaml:"mode"`
	LocalDomain        uint32          `yaml:"local_domain"`
	ForwardingDomain   uint32          `yaml:"forwarding_domain"`
	CustodyPolicy      string          `yaml:"custody_policy"`
	MaxPercFeeBips     uint16          `yaml:"max_perc_fee_bips"`
	Owner              string          `yaml:"owner"`
	FeeUpdater         string          `yaml:"fee_updater"`
	Collector          string          `yaml:"collector"`
	FastTransferTokens []string        `yaml:"fast_transfer_tokens"`
	FeeRules           []FeeRuleConfig `yaml:"fee_rules"`
}

// ChainConfig on-chain collaborators, used in evm mode
type ChainConfig struct {
	Network                    string   `yaml:"network"`
	DeploymentsFile            string   `yaml:"deployments_file"`
	ChainID                    uint64   `yaml:"chain_id"`
	RPCEndpoints               []string `yaml:"rpc_endpoints"`
	PrivateKey                 string   `yaml:"private_key"` // hex, custodian key
	TokenMessenger             string   `yaml:"token_messenger"`
	TokenMessengerWithMetadata string   `yaml:"token_messenger_with_metadata"`
	BurnToken                  string   `yaml:"burn_token"`
	GasLimit                   uint64   `yaml:"gas_limit"`
	ReceiptTimeout             int      `yaml:"receipt_timeout"` // seconds
}

// SimulatedConfig in-memory collaborators, used in simulated mode
type SimulatedConfig struct {
	ChainID   int64             `yaml:"chain_id"`
	Custodian string            `yaml:"custodian"`
	BurnToken string            `yaml:"burn_token"`
	Balances  map[string]string `yaml:"balances"` // address -> amount minted at start
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// AdminConfig Admin API access control configuration
type AdminConfig struct {
	AllowedIPs []string `yaml:"allowedIPs"`
}

// RateLimitConfig per-caller request limits
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LogConfig logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// AppConfig global configuration instance
var AppConfig *Config

// LoadConfig reads configPath (config.local.yaml, then config.yaml, when
// empty), applies .env and environment overrides, fills defaults and
// validates.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			logrus.Infof("🔧 Using local configuration file: config.local.yaml")
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	overrideFromEnv(cfg)
	cfg.applyDefaults()

	if cfg.Chain.DeploymentsFile != "" && cfg.Chain.Network != "" {
		reg, err := LoadDeployments(cfg.Chain.DeploymentsFile)
		if err != nil {
			return nil, err
		}
		if err := cfg.ApplyDeployment(reg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logrus.Infof("✅ [%s] Loading configuration from config file: %s", time.Now().Format("2006-01-02 15:04:05"), configPath)
	logrus.Infof("📋 [Config] mode=%s policy=%s local_domain=%d forwarding_domain=%d",
		cfg.Dispatcher.Mode, cfg.Dispatcher.CustodyPolicy, cfg.Dispatcher.LocalDomain, cfg.Dispatcher.ForwardingDomain)
	if len(cfg.Admin.AllowedIPs) > 0 {
		logrus.Infof("📋 [Config] Admin IP whitelist loaded: %d IPs/CIDRs configured", len(cfg.Admin.AllowedIPs))
	} else {
		logrus.Infof("📋 [Config] Admin IP whitelist: not configured (localhost-only mode)")
	}

	AppConfig = cfg
	return cfg, nil
}

// Parse decodes YAML without touching the environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Dispatcher.Mode == "" {
		c.Dispatcher.Mode = ModeSimulated
	}
	if c.Dispatcher.ForwardingDomain == 0 {
		c.Dispatcher.ForwardingDomain = dispatcher.DefaultForwardingDomain
	}
	if c.Dispatcher.CustodyPolicy == "" {
		c.Dispatcher.CustodyPolicy = string(dispatcher.CustodyAccumulate)
	}
	if c.Dispatcher.MaxPercFeeBips == 0 {
		c.Dispatcher.MaxPercFeeBips = dispatcher.DefaultMaxPercFeeBips
	}
	if c.Auth.TokenTTLHours == 0 {
		c.Auth.TokenTTLHours = 24
	}
	if c.Auth.NonceTTL == 0 {
		c.Auth.NonceTTL = 300
	}
	if c.NATS.Timeout == 0 {
		c.NATS.Timeout = 10
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "dispatcher"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Chain.GasLimit == 0 {
		c.Chain.GasLimit = 300_000
	}
	if c.Chain.ReceiptTimeout == 0 {
		c.Chain.ReceiptTimeout = 120
	}
	if c.Simulated.ChainID == 0 {
		c.Simulated.ChainID = 1337
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}

	if _, err := dispatcher.ParseCustodyPolicy(c.Dispatcher.CustodyPolicy); err != nil {
		return err
	}
	if c.Dispatcher.MaxPercFeeBips > dispatcher.BipsDenominator {
		return fmt.Errorf("dispatcher.max_perc_fee_bips %d above %d", c.Dispatcher.MaxPercFeeBips, dispatcher.BipsDenominator)
	}

	for name, v := range map[string]string{
		"dispatcher.owner":       c.Dispatcher.Owner,
		"dispatcher.fee_updater": c.Dispatcher.FeeUpdater,
		"dispatcher.collector":   c.Dispatcher.Collector,
	} {
		if err := requireAddress(name, v); err != nil {
			return err
		}
	}
	for i, t := range c.Dispatcher.FastTransferTokens {
		if err := requireAddress(fmt.Sprintf("dispatcher.fast_transfer_tokens[%d]", i), t); err != nil {
			return err
		}
	}
	for _, r := range c.Dispatcher.FeeRules {
		if r.PercFeeBips > c.Dispatcher.MaxPercFeeBips {
			return fmt.Errorf("dispatcher.fee_rules domain %d: %w", r.Domain, dispatcher.ErrPercFeeTooHigh)
		}
		if r.FlatFee != "" {
			if _, ok := parseAmount(r.FlatFee); !ok {
				return fmt.Errorf("dispatcher.fee_rules domain %d: invalid flat_fee %q", r.Domain, r.FlatFee)
			}
		}
	}

	switch c.Dispatcher.Mode {
	case ModeSimulated:
		if err := requireAddress("simulated.custodian", c.Simulated.Custodian); err != nil {
			return err
		}
		if err := requireAddress("simulated.burn_token", c.Simulated.BurnToken); err != nil {
			return err
		}
		for who, amount := range c.Simulated.Balances {
			if err := requireAddress("simulated.balances key", who); err != nil {
				return err
			}
			if _, ok := parseAmount(amount); !ok {
				return fmt.Errorf("simulated.balances[%s]: invalid amount %q", who, amount)
			}
		}
	case ModeEVM:
		if len(c.Chain.RPCEndpoints) == 0 {
			return errors.New("chain.rpc_endpoints is required in evm mode")
		}
		if c.Chain.PrivateKey == "" {
			return errors.New("chain.private_key is required in evm mode")
		}
		for name, v := range map[string]string{
			"chain.token_messenger":               c.Chain.TokenMessenger,
			"chain.token_messenger_with_metadata": c.Chain.TokenMessengerWithMetadata,
			"chain.burn_token":                    c.Chain.BurnToken,
		} {
			if err := requireAddress(name, v); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown dispatcher.mode %q", c.Dispatcher.Mode)
	}
	return nil
}

// RoleState returns the configured role holders. Call after Validate.
func (c *Config) RoleState() dispatcher.RoleState {
	return dispatcher.RoleState{
		Owner:      common.HexToAddress(c.Dispatcher.Owner),
		FeeUpdater: common.HexToAddress(c.Dispatcher.FeeUpdater),
		Collector:  common.HexToAddress(c.Dispatcher.Collector),
	}
}

// FastTokens returns the configured fast-transfer allow-list.
func (c *Config) FastTokens() []common.Address {
	out := make([]common.Address, 0, len(c.Dispatcher.FastTransferTokens))
	for _, t := range c.Dispatcher.FastTransferTokens {
		out = append(out, common.HexToAddress(t))
	}
	return out
}

func requireAddress(name, v string) error {
	if !common.IsHexAddress(v) {
		return fmt.Errorf("%s: %q is not an address", name, v)
	}
	if common.HexToAddress(v) == (common.Address{}) {
		return fmt.Errorf("%s: %w", name, dispatcher.ErrZeroAddress)
	}
	return nil
}

// ParseAmount parses a base-10 uint256.
func ParseAmount(s string) (*big.Int, bool) {
	return parseAmount(s)
}

func parseAmount(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || !dispatcher.IsUint256(v) {
		return nil, false
	}
	return v, true
}

func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		config.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		if p, err := strconv.Atoi(redisPort); err == nil {
			config.Redis.Port = p
		}
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.Redis.Password = redisPassword
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Auth.JWTSecret = secret
	}

	if mode := os.Getenv("DISPATCHER_MODE"); mode != "" {
		config.Dispatcher.Mode = mode
	}
	if policy := os.Getenv("CUSTODY_POLICY"); policy != "" {
		config.Dispatcher.CustodyPolicy = policy
	}
	if owner := os.Getenv("OWNER_ADDRESS"); owner != "" {
		config.Dispatcher.Owner = owner
	}
	if feeUpdater := os.Getenv("FEE_UPDATER_ADDRESS"); feeUpdater != "" {
		config.Dispatcher.FeeUpdater = feeUpdater
	}
	if collector := os.Getenv("COLLECTOR_ADDRESS"); collector != "" {
		config.Dispatcher.Collector = collector
	}

	if rpc := os.Getenv("RPC_ENDPOINTS"); rpc != "" {
		config.Chain.RPCEndpoints = splitList(rpc)
	}
	if privateKey := os.Getenv("PRIVATE_KEY"); privateKey != "" {
		config.Chain.PrivateKey = privateKey
	}
	if messenger := os.Getenv("TOKEN_MESSENGER"); messenger != "" {
		config.Chain.TokenMessenger = messenger
	}
	if messenger := os.Getenv("TOKEN_MESSENGER_WITH_METADATA"); messenger != "" {
		config.Chain.TokenMessengerWithMetadata = messenger
	}
	if token := os.Getenv("BURN_TOKEN"); token != "" {
		config.Chain.BurnToken = token
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		config.CORS.AllowedOrigins = splitList(corsOrigins)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
