package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Mpesa struct {
		BaseURL         string `yaml:"base_url"`
		ConsumerKey     string `yaml:"consumer_key"`
		ConsumerSecret  string `yaml:"consumer_secret"`
		ShortCode       string `yaml:"short_code"`
		Passkey         string `yaml:"passkey"`
		CallbackURL     string `yaml:"callback_url"`
		TransactionType string `yaml:"transaction_type"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
	} `yaml:"mpesa"`
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
	if cfg.Mpesa.BaseURL == "" || cfg.Mpesa.ConsumerKey == "" || cfg.Mpesa.ConsumerSecret == "" {
		return nil, errors.New("mpesa credentials are incomplete")
	}
	if cfg.Mpesa.ShortCode == "" || cfg.Mpesa.Passkey == "" || cfg.Mpesa.CallbackURL == "" {
		return nil, errors.New("mpesa stk config is incomplete")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Mpesa.TransactionType == "" {
		cfg.Mpesa.TransactionType = "CustomerPayBillOnline"
	}
	if cfg.Mpesa.TimeoutSeconds <= 0 {
		cfg.Mpesa.TimeoutSeconds = 30
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("MPESA_BASE_URL"); v != "" {
		cfg.Mpesa.BaseURL = v
	}
	if v := os.Getenv("MPESA_CONSUMER_KEY"); v != "" {
		cfg.Mpesa.ConsumerKey = v
	}
	if v := os.Getenv("MPESA_CONSUMER_SECRET"); v != "" {
		cfg.Mpesa.ConsumerSecret = v
	}
	if v := os.Getenv("MPESA_SHORT_CODE"); v != "" {
		cfg.Mpesa.ShortCode = v
	}
	if v := os.Getenv("MPESA_PASSKEY"); v != "" {
		cfg.Mpesa.Passkey = v
	}
	if v := os.Getenv("MPESA_CALLBACK_URL"); v != "" {
		cfg.Mpesa.CallbackURL = v
	}
	if v := os.Getenv("MPESA_TRANSACTION_TYPE"); v != "" {
		cfg.Mpesa.TransactionType = v
	}
	if v := os.Getenv("MPESA_TIMEOUT_SECONDS"); v != "" {
		cfg.Mpesa.TimeoutSeconds = atoiOr(cfg.Mpesa.TimeoutSeconds, v)
	}
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}
