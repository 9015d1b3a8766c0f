package config

import (
	"log/slog"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// Plimsoll deployment configuration, with environment overrides
// =============================================================================

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Firewall  FirewallConfig  `yaml:"firewall"`
	Redis     RedisConfig     `yaml:"redis"`
	Vault     VaultConfig     `yaml:"vault"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port            string `yaml:"port"`
	Env             string `yaml:"env"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
}

type UpstreamConfig struct {
	RPCURL         string `yaml:"rpc_url"`
	RPCParamSource string `yaml:"rpc_param_source"`
	SimulatorAddr  string `yaml:"simulator_addr"`
	TimeoutSec     int    `yaml:"timeout_sec"`
}

// FirewallConfig carries the tunable thresholds for the detection pipeline.
// Fields are float64/int so a zero value means "not set in YAML" and the
// built-in production default is left untouched by applyEnvOverrides.
type FirewallConfig struct {
	StrikeMax              int     `yaml:"strike_max"`
	StrikeWindowSecs       float64 `yaml:"strike_window_secs"`
	SeverDurationSecs      float64 `yaml:"sever_duration_secs"`
	RevertStrikeMax        int     `yaml:"revert_strike_max"`
	RevertStrikeWindowSecs float64 `yaml:"revert_strike_window_secs"`
	GasAnomalyRatio        float64 `yaml:"gas_anomaly_ratio"`
	MaxPreVerificationGas  uint64  `yaml:"max_pre_verification_gas"`
	ChainID                int     `yaml:"chain_id"`
	ConfigCacheTTLSecs     int     `yaml:"config_cache_ttl_secs"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type VaultConfig struct {
	KeyIDPrefix string `yaml:"key_id_prefix"`
}

type TelemetryConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the process-wide singleton config: a YAML file (if present)
// overlaid with environment variables, falling back to built-in defaults.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyDefaults()
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides on top of
// whatever the YAML file set (or left zero).
func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("PLIMSOLL_ENV", c.Server.Env)

	c.Upstream.RPCURL = getEnv("UPSTREAM_RPC", c.Upstream.RPCURL)
	c.Upstream.RPCParamSource = getEnv("RPC_PARAM_SOURCE", c.Upstream.RPCParamSource)
	c.Upstream.SimulatorAddr = getEnv("SIMULATOR_ADDR", c.Upstream.SimulatorAddr)

	if v := getEnvInt("STRIKE_MAX", 0); v > 0 {
		c.Firewall.StrikeMax = v
	}
	if v := getEnvFloat("STRIKE_WINDOW_SECS", 0); v > 0 {
		c.Firewall.StrikeWindowSecs = v
	}
	if v := getEnvFloat("SEVER_DURATION_SECS", 0); v > 0 {
		c.Firewall.SeverDurationSecs = v
	}
	if v := getEnvInt("REVERT_STRIKE_MAX", 0); v > 0 {
		c.Firewall.RevertStrikeMax = v
	}
	if v := getEnvFloat("REVERT_STRIKE_WINDOW_SECS", 0); v > 0 {
		c.Firewall.RevertStrikeWindowSecs = v
	}
	if v := getEnvFloat("GAS_ANOMALY_RATIO", 0); v > 0 {
		c.Firewall.GasAnomalyRatio = v
	}
	if v := getEnvInt("CONFIG_CACHE_TTL_SECS", 0); v > 0 {
		c.Firewall.ConfigCacheTTLSecs = v
	}

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Vault.KeyIDPrefix = getEnv("VAULT_KEY_ID_PREFIX", c.Vault.KeyIDPrefix)
}

// applyDefaults fills in zero fields with the production defaults, so a
// missing config.yaml still produces a usable Config.
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8443"
	}
	if c.Server.Env == "" {
		c.Server.Env = "production"
	}
	if c.Firewall.StrikeMax == 0 {
		c.Firewall.StrikeMax = 5
	}
	if c.Firewall.StrikeWindowSecs == 0 {
		c.Firewall.StrikeWindowSecs = 600
	}
	if c.Firewall.SeverDurationSecs == 0 {
		c.Firewall.SeverDurationSecs = 900
	}
	if c.Firewall.RevertStrikeMax == 0 {
		c.Firewall.RevertStrikeMax = 10
	}
	if c.Firewall.RevertStrikeWindowSecs == 0 {
		c.Firewall.RevertStrikeWindowSecs = 300
	}
	if c.Firewall.GasAnomalyRatio == 0 {
		c.Firewall.GasAnomalyRatio = 3.0
	}
	if c.Firewall.MaxPreVerificationGas == 0 {
		c.Firewall.MaxPreVerificationGas = 500_000
	}
	if c.Firewall.ChainID == 0 {
		c.Firewall.ChainID = 8453
	}
	if c.Firewall.ConfigCacheTTLSecs == 0 {
		c.Firewall.ConfigCacheTTLSecs = 300
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
