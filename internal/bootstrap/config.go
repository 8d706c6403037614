package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"

	"walkforward/internal/config"
)

// LoadConfig delegates to the config loader and runs pre-flight checks.
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}
	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation
func checkPreFlight(cfg *config.Config) error {
	if cfg.Data.Source == "alpaca" && (!cfg.Broker.APIKey.IsSet() || !cfg.Broker.SecretKey.IsSet()) {
		return fmt.Errorf("alpaca market data requires broker.api_key and broker.secret_key")
	}

	if cfg.Data.Source == "csv" {
		info, err := os.Stat(cfg.Data.CSVDir)
		if err != nil {
			return fmt.Errorf("csv_dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("csv_dir %s is not a directory", cfg.Data.CSVDir)
		}
	}

	if cfg.Live.StateBackend != "memory" {
		dir := filepath.Dir(cfg.Live.StatePath)
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("state_path directory: %w", err)
		}
	}
	return nil
}
