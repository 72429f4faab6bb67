// Package config loads the gateway daemon configuration from TOML with
// defaults suitable for a single-lane store deployment.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type GatewayConfig struct {
	ListenAddr  string   `toml:"listen_addr"`
	DiagAddr    string   `toml:"diag_addr"`
	CorsOrigins []string `toml:"cors_origins"`

	DBPath        string `toml:"db_path"`
	CSVExportPath string `toml:"csv_export_path"`
	LogLevel      string `toml:"log_level"`
	LogFile       string `toml:"log_file"`

	IdleTimeoutSeconds int `toml:"idle_timeout_seconds"`
	KeepAliveSeconds   int `toml:"keep_alive_seconds"`
	MaxBufferBytes     int `toml:"max_buffer_bytes"`
	TrimToBytes        int `toml:"trim_to_bytes"`

	DailyTransactionCap     int    `toml:"daily_transaction_cap"`
	RewardValue             string `toml:"reward_value"`
	PromptForLoyalty        bool   `toml:"prompt_for_loyalty"`
	AgeVerificationRequired bool   `toml:"age_verification_required"`
	DuplicateResponses      bool   `toml:"duplicate_responses"`
	ReplyToControlOnly      bool   `toml:"reply_to_control_only"`
}

func Default() GatewayConfig {
	return GatewayConfig{
		ListenAddr:          ":9000",
		DiagAddr:            ":9100",
		DBPath:              "loyalty.db",
		LogLevel:            "info",
		IdleTimeoutSeconds:  60,
		KeepAliveSeconds:    30,
		MaxBufferBytes:      20000,
		TrimToBytes:         10000,
		DailyTransactionCap: 5,
		RewardValue:         "0.97",
		PromptForLoyalty:    true,
	}
}

// Load reads path over the defaults. A missing file is not an error: the
// daemon runs on defaults when deployed without a config.
func Load(path string) (GatewayConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return GatewayConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return GatewayConfig{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return GatewayConfig{}, err
	}
	return cfg, nil
}

func Validate(cfg GatewayConfig) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("config invalid: listen_addr is required")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return fmt.Errorf("config invalid: db_path is required")
	}
	if cfg.IdleTimeoutSeconds <= 0 {
		return fmt.Errorf("config invalid: idle_timeout_seconds must be positive")
	}
	if cfg.MaxBufferBytes <= 0 || cfg.TrimToBytes <= 0 {
		return fmt.Errorf("config invalid: buffer sizes must be positive")
	}
	if cfg.TrimToBytes > cfg.MaxBufferBytes {
		return fmt.Errorf("config invalid: trim_to_bytes %d exceeds max_buffer_bytes %d", cfg.TrimToBytes, cfg.MaxBufferBytes)
	}
	if cfg.DailyTransactionCap <= 0 {
		return fmt.Errorf("config invalid: daily_transaction_cap must be positive")
	}
	if strings.TrimSpace(cfg.RewardValue) == "" {
		return fmt.Errorf("config invalid: reward_value is required")
	}
	return nil
}
