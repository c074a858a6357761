package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr            string `yaml:"addr"`
		AwaitMaxSeconds int    `yaml:"await_max_seconds"`
	} `yaml:"server"`
	DB struct {
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"db"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"log"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
	} `yaml:"auth"`
	Catalog     DependencyConfig `yaml:"catalog"`
	Reclamation DependencyConfig `yaml:"reclamations"`
	Redis       struct {
		Addr    string `yaml:"addr"`
		Channel string `yaml:"channel"`
	} `yaml:"redis"`
	Chain struct {
		ChainID       string   `yaml:"chain_id"`
		AddressFormat string   `yaml:"address_format"`
		Bech32Prefix  string   `yaml:"bech32_prefix"`
		Symbol        string   `yaml:"symbol"`
		Decimals      int      `yaml:"decimals"`
		RPCEndpoints  []string `yaml:"rpc_endpoints"`
		WSEndpoints   []string `yaml:"ws_endpoints"`
		ConfirmDepth  int      `yaml:"confirm_depth"`
	} `yaml:"chain"`
	Negotiation struct {
		OfferTTLMinutes int `yaml:"offer_ttl_minutes"`
		GraceMinutes    int `yaml:"grace_minutes"`
	} `yaml:"negotiation"`
	Payments struct {
		IntentTTLMinutes         int `yaml:"intent_ttl_minutes"`
		SettlementTimeoutMinutes int `yaml:"settlement_timeout_minutes"`
	} `yaml:"payments"`
	Pricing struct {
		FiatCurrency string `yaml:"fiat_currency"`
		Rate         string `yaml:"rate"`
	} `yaml:"pricing"`
	Checkout struct {
		AutoCompleteHours int `yaml:"auto_complete_hours"`
	} `yaml:"checkout"`
	Worker struct {
		IntervalSeconds      int64 `yaml:"interval_seconds"`
		RPCFailoverThreshold int   `yaml:"rpc_failover_threshold"`
		WSFailoverThreshold  int   `yaml:"ws_failover_threshold"`
	} `yaml:"worker"`
}

// DependencyConfig describes an upstream HTTP service reached through a
// circuit breaker.
type DependencyConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
	Retries   int    `yaml:"retries"`
	BackoffMS int    `yaml:"backoff_ms"`
}

func (d DependencyConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutMS) * time.Millisecond
}

func (d DependencyConfig) Backoff() time.Duration {
	return time.Duration(d.BackoffMS) * time.Millisecond
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	if cfg.Catalog.BaseURL == "" || cfg.Reclamation.BaseURL == "" {
		return nil, errors.New("catalog and reclamations base_url are required")
	}
	if cfg.Chain.ChainID == "" || cfg.Chain.Symbol == "" {
		return nil, errors.New("chain config is incomplete")
	}
	switch cfg.Chain.AddressFormat {
	case "evm":
	case "bech32":
		if cfg.Chain.Bech32Prefix == "" {
			return nil, errors.New("chain.bech32_prefix is required for bech32 addresses")
		}
	default:
		return nil, errors.New("chain.address_format must be evm or bech32")
	}
	if cfg.Pricing.Rate == "" {
		return nil, errors.New("pricing.rate is required")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.AwaitMaxSeconds <= 0 {
		cfg.Server.AwaitMaxSeconds = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Chain.AddressFormat == "" {
		cfg.Chain.AddressFormat = "evm"
	}
	if cfg.Chain.Decimals == 0 {
		cfg.Chain.Decimals = 18
	}
	if cfg.Chain.ConfirmDepth <= 0 {
		cfg.Chain.ConfirmDepth = 12
	}
	if cfg.Negotiation.OfferTTLMinutes <= 0 {
		cfg.Negotiation.OfferTTLMinutes = 48 * 60
	}
	if cfg.Negotiation.GraceMinutes < 0 {
		cfg.Negotiation.GraceMinutes = 0
	}
	if cfg.Payments.IntentTTLMinutes <= 0 {
		cfg.Payments.IntentTTLMinutes = 30
	}
	if cfg.Payments.SettlementTimeoutMinutes <= 0 {
		cfg.Payments.SettlementTimeoutMinutes = 60
	}
	if cfg.Pricing.FiatCurrency == "" {
		cfg.Pricing.FiatCurrency = "MAD"
	}
	if cfg.Checkout.AutoCompleteHours <= 0 {
		cfg.Checkout.AutoCompleteHours = 72
	}
	if cfg.Worker.IntervalSeconds <= 0 {
		cfg.Worker.IntervalSeconds = 20
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "booking-events"
	}
	for _, dep := range []*DependencyConfig{&cfg.Catalog, &cfg.Reclamation} {
		if dep.TimeoutMS <= 0 {
			dep.TimeoutMS = 3000
		}
		if dep.Retries <= 0 {
			dep.Retries = 3
		}
		if dep.BackoffMS <= 0 {
			dep.BackoffMS = 200
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("CATALOG_URL"); v != "" {
		cfg.Catalog.BaseURL = v
	}
	if v := os.Getenv("RECLAMATIONS_URL"); v != "" {
		cfg.Reclamation.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		cfg.Chain.ChainID = v
	}
	if v := os.Getenv("RPC_ENDPOINTS"); v != "" {
		cfg.Chain.RPCEndpoints = splitCommaList(v)
	}
	if v := os.Getenv("WS_ENDPOINTS"); v != "" {
		cfg.Chain.WSEndpoints = splitCommaList(v)
	}
	if v := os.Getenv("CONFIRM_DEPTH"); v != "" {
		cfg.Chain.ConfirmDepth = atoiOr(cfg.Chain.ConfirmDepth, v)
	}
	if v := os.Getenv("OFFER_TTL_MINUTES"); v != "" {
		cfg.Negotiation.OfferTTLMinutes = atoiOr(cfg.Negotiation.OfferTTLMinutes, v)
	}
	if v := os.Getenv("INTENT_TTL_MINUTES"); v != "" {
		cfg.Payments.IntentTTLMinutes = atoiOr(cfg.Payments.IntentTTLMinutes, v)
	}
	if v := os.Getenv("CONVERSION_RATE"); v != "" {
		cfg.Pricing.Rate = v
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		cfg.Worker.IntervalSeconds = atoi64Or(cfg.Worker.IntervalSeconds, v)
	}
	if v := os.Getenv("WORKER_RPC_FAILOVER_THRESHOLD"); v != "" {
		cfg.Worker.RPCFailoverThreshold = atoiOr(cfg.Worker.RPCFailoverThreshold, v)
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
