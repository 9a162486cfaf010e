package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const appDir = "safepilot"

type GlobalFlags struct {
	ConfigPath     string
	EnvFile        string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	Retries        int
	RPCURL         string
	LogLevel       string
	LogFormat      string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string

	RequestTimeout   time.Duration
	LedgerTimeout    time.Duration
	PriceTimeout     time.Duration
	PoolTimeout      time.Duration
	FormatterTimeout time.Duration
	Retries          int

	RPCURL          string
	FallbackRPCURLs []string
	CoinGeckoAPIKey string

	FormatterBackend string
	FormatterModel   string
	FormatterBaseURL string
	FormatterAPIKey  string

	PoolTopK          int
	PoolTVLFloor      float64
	FallbackNearPrice float64
	FallbackBTCPrice  float64

	IntentStorePath string
	IntentLockPath  string

	SignerURL     string
	SignerAccount string
	SignerToken   string

	ListenAddr string
	LogLevel   string
	LogFormat  string
}

type keyConfig struct {
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
}

func (k keyConfig) resolve() string {
	if k.APIKeyEnv != "" {
		return os.Getenv(k.APIKeyEnv)
	}
	return k.APIKey
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Log     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Near struct {
		RPCURL          string   `yaml:"rpc_url"`
		FallbackRPCURLs []string `yaml:"fallback_rpc_urls"`
		Timeout         string   `yaml:"timeout"`
	} `yaml:"near"`
	Prices struct {
		Timeout  string `yaml:"timeout"`
		Fallback struct {
			Near *float64 `yaml:"near"`
			BTC  *float64 `yaml:"btc"`
		} `yaml:"fallback"`
	} `yaml:"prices"`
	Pools struct {
		TopK     *int     `yaml:"top_k"`
		TVLFloor *float64 `yaml:"tvl_floor"`
		Timeout  string   `yaml:"timeout"`
	} `yaml:"pools"`
	Providers struct {
		CoinGecko keyConfig `yaml:"coingecko"`
	} `yaml:"providers"`
	Formatter struct {
		keyConfig `yaml:",inline"`
		Backend   string `yaml:"backend"`
		Model     string `yaml:"model"`
		BaseURL   string `yaml:"base_url"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"formatter"`
	Intents struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"intents"`
	Signer struct {
		URL      string `yaml:"url"`
		Account  string `yaml:"account"`
		Token    string `yaml:"token"`
		TokenEnv string `yaml:"token_env"`
	} `yaml:"signer"`
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}
	if err := loadEnvFile(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}
	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.RequestTimeout <= 0 {
		settings.RequestTimeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.PoolTopK <= 0 {
		settings.PoolTopK = 3
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	storePath, lockPath, err := defaultStorePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:        "json",
		RequestTimeout:    10 * time.Second,
		LedgerTimeout:     4 * time.Second,
		PriceTimeout:      3 * time.Second,
		PoolTimeout:       5 * time.Second,
		FormatterTimeout:  10 * time.Second,
		Retries:           0,
		RPCURL:            "https://rpc.mainnet.near.org",
		FormatterBackend:  "groq",
		PoolTopK:          3,
		PoolTVLFloor:      500_000,
		FallbackNearPrice: 3.00,
		FallbackBTCPrice:  100_000,
		IntentStorePath:   storePath,
		IntentLockPath:    lockPath,
		ListenAddr:        ":8080",
		LogLevel:          "info",
		LogFormat:         "json",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appDir, "config.yaml"), nil
}

func defaultStorePaths() (string, string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(base, appDir)
	return filepath.Join(dir, "intents.db"), filepath.Join(dir, "intents.lock"), nil
}

// loadEnvFile reads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing default .env is fine;
// a missing explicit file is not.
func loadEnvFile(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	durations := []struct {
		raw  string
		key  string
		dest *time.Duration
	}{
		{cfg.Timeout, "timeout", &settings.RequestTimeout},
		{cfg.Near.Timeout, "near.timeout", &settings.LedgerTimeout},
		{cfg.Prices.Timeout, "prices.timeout", &settings.PriceTimeout},
		{cfg.Pools.Timeout, "pools.timeout", &settings.PoolTimeout},
		{cfg.Formatter.Timeout, "formatter.timeout", &settings.FormatterTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.key, err)
		}
		*d.dest = v
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = cfg.Log.Format
	}
	if cfg.Near.RPCURL != "" {
		settings.RPCURL = cfg.Near.RPCURL
	}
	if len(cfg.Near.FallbackRPCURLs) > 0 {
		settings.FallbackRPCURLs = cfg.Near.FallbackRPCURLs
	}
	if cfg.Prices.Fallback.Near != nil {
		settings.FallbackNearPrice = *cfg.Prices.Fallback.Near
	}
	if cfg.Prices.Fallback.BTC != nil {
		settings.FallbackBTCPrice = *cfg.Prices.Fallback.BTC
	}
	if cfg.Pools.TopK != nil {
		settings.PoolTopK = *cfg.Pools.TopK
	}
	if cfg.Pools.TVLFloor != nil {
		settings.PoolTVLFloor = *cfg.Pools.TVLFloor
	}
	if v := cfg.Providers.CoinGecko.resolve(); v != "" {
		settings.CoinGeckoAPIKey = v
	}
	if cfg.Formatter.Backend != "" {
		settings.FormatterBackend = strings.ToLower(cfg.Formatter.Backend)
	}
	if cfg.Formatter.Model != "" {
		settings.FormatterModel = cfg.Formatter.Model
	}
	if cfg.Formatter.BaseURL != "" {
		settings.FormatterBaseURL = cfg.Formatter.BaseURL
	}
	if v := cfg.Formatter.resolve(); v != "" {
		settings.FormatterAPIKey = v
	}
	if cfg.Intents.Path != "" {
		settings.IntentStorePath = cfg.Intents.Path
	}
	if cfg.Intents.LockPath != "" {
		settings.IntentLockPath = cfg.Intents.LockPath
	}
	if cfg.Signer.URL != "" {
		settings.SignerURL = cfg.Signer.URL
	}
	if cfg.Signer.Account != "" {
		settings.SignerAccount = cfg.Signer.Account
	}
	if cfg.Signer.Token != "" {
		settings.SignerToken = cfg.Signer.Token
	}
	if cfg.Signer.TokenEnv != "" {
		settings.SignerToken = os.Getenv(cfg.Signer.TokenEnv)
	}
	if cfg.Server.Listen != "" {
		settings.ListenAddr = cfg.Server.Listen
	}
	return nil
}

func applyEnv(settings *Settings) error {
	if v := os.Getenv("SAFEPILOT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	durations := map[string]*time.Duration{
		"SAFEPILOT_TIMEOUT":           &settings.RequestTimeout,
		"SAFEPILOT_LEDGER_TIMEOUT":    &settings.LedgerTimeout,
		"SAFEPILOT_PRICE_TIMEOUT":     &settings.PriceTimeout,
		"SAFEPILOT_POOL_TIMEOUT":      &settings.PoolTimeout,
		"SAFEPILOT_FORMATTER_TIMEOUT": &settings.FormatterTimeout,
	}
	for key, dest := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*dest = d
		}
	}
	if v := os.Getenv("SAFEPILOT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("SAFEPILOT_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("SAFEPILOT_FALLBACK_RPC_URLS"); v != "" {
		settings.FallbackRPCURLs = splitList(v)
	}
	if v := os.Getenv("SAFEPILOT_COINGECKO_API_KEY"); v != "" {
		settings.CoinGeckoAPIKey = v
	}
	if v := os.Getenv("SAFEPILOT_FORMATTER"); v != "" {
		settings.FormatterBackend = strings.ToLower(v)
	}
	if v := os.Getenv("SAFEPILOT_FORMATTER_MODEL"); v != "" {
		settings.FormatterModel = v
	}
	if v := os.Getenv("SAFEPILOT_FORMATTER_BASE_URL"); v != "" {
		settings.FormatterBaseURL = v
	}
	// Vendor variables are honoured when no explicit key was configured.
	if settings.FormatterAPIKey == "" {
		switch settings.FormatterBackend {
		case "anthropic":
			settings.FormatterAPIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			settings.FormatterAPIKey = os.Getenv("OPENAI_API_KEY")
		default:
			settings.FormatterAPIKey = os.Getenv("GROQ_API_KEY")
		}
	}
	if v := os.Getenv("SAFEPILOT_FORMATTER_API_KEY"); v != "" {
		settings.FormatterAPIKey = v
	}
	if v := os.Getenv("SAFEPILOT_POOL_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.PoolTopK = n
		}
	}
	if v := os.Getenv("SAFEPILOT_FALLBACK_NEAR_PRICE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.FallbackNearPrice = f
		}
	}
	if v := os.Getenv("SAFEPILOT_FALLBACK_BTC_PRICE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.FallbackBTCPrice = f
		}
	}
	if v := os.Getenv("SAFEPILOT_INTENTS_PATH"); v != "" {
		settings.IntentStorePath = v
	}
	if v := os.Getenv("SAFEPILOT_INTENTS_LOCK_PATH"); v != "" {
		settings.IntentLockPath = v
	}
	if v := os.Getenv("SAFEPILOT_SIGNER_URL"); v != "" {
		settings.SignerURL = v
	}
	if v := os.Getenv("SAFEPILOT_SIGNER_ACCOUNT"); v != "" {
		settings.SignerAccount = v
	}
	if v := os.Getenv("SAFEPILOT_SIGNER_TOKEN"); v != "" {
		settings.SignerToken = v
	}
	if v := os.Getenv("SAFEPILOT_LISTEN"); v != "" {
		settings.ListenAddr = v
	}
	if v := os.Getenv("SAFEPILOT_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("SAFEPILOT_LOG_FORMAT"); v != "" {
		settings.LogFormat = v
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly
	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.RequestTimeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if v := strings.TrimSpace(flags.RPCURL); v != "" {
		settings.RPCURL = v
	}
	if v := strings.TrimSpace(flags.LogLevel); v != "" {
		settings.LogLevel = v
	}
	if v := strings.TrimSpace(flags.LogFormat); v != "" {
		settings.LogFormat = v
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
