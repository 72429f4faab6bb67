package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// simConfig drives one scripted lane session against a running gateway.
type simConfig struct {
	Addr          string
	LoyaltyID     string
	StoreID       string
	CashierID     string
	TransactionID string
	ItemUPC       string
	ItemDesc      string
	Finalize      bool
	Cancel        bool
}

func defaultSimConfig() simConfig {
	return simConfig{
		Addr:      "127.0.0.1:9000",
		LoyaltyID: "5551239876",
		StoreID:   "1421",
		CashierID: "88",
		ItemUPC:   "012345678905",
		ItemDesc:  "SODA 20OZ",
		Finalize:  true,
	}
}

// posim scenario.toml key mapping.
type fileConfig struct {
	Addr          string `toml:"addr"`
	LoyaltyID     string `toml:"loyalty_id"`
	StoreID       string `toml:"store_id"`
	CashierID     string `toml:"cashier_id"`
	TransactionID string `toml:"transaction_id"`
	ItemUPC       string `toml:"item_upc"`
	ItemDesc      string `toml:"item_desc"`
	Finalize      bool   `toml:"finalize"`
	Cancel        bool   `toml:"cancel"`
}

// posim loader for TOML scenario with default overlay.
func loadSimConfig(path string) (simConfig, error) {
	cfg := defaultSimConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return simConfig{}, fmt.Errorf("load posim scenario: %w", err)
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("loyalty_id") {
		cfg.LoyaltyID = strings.TrimSpace(raw.LoyaltyID)
	}
	if meta.IsDefined("store_id") {
		cfg.StoreID = strings.TrimSpace(raw.StoreID)
	}
	if meta.IsDefined("cashier_id") {
		cfg.CashierID = strings.TrimSpace(raw.CashierID)
	}
	if meta.IsDefined("transaction_id") {
		cfg.TransactionID = strings.TrimSpace(raw.TransactionID)
	}
	if meta.IsDefined("item_upc") {
		cfg.ItemUPC = strings.TrimSpace(raw.ItemUPC)
	}
	if meta.IsDefined("item_desc") {
		cfg.ItemDesc = strings.TrimSpace(raw.ItemDesc)
	}
	if meta.IsDefined("finalize") {
		cfg.Finalize = raw.Finalize
	}
	if meta.IsDefined("cancel") {
		cfg.Cancel = raw.Cancel
	}

	if cfg.Addr == "" {
		return simConfig{}, fmt.Errorf("load posim scenario: addr is required")
	}
	return cfg, nil
}
