package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# DITM Screener Configuration

[scan]
# Tickers scanned by default (override per run with the CLI)
tickers = ["AAPL", "MSFT", "GOOGL", "JNJ", "JPM"]
# Total capital allocated equally across tickers
target_capital = 50000.0
# Approximate Treasury yield, used by the Black-Scholes delta fallback
risk_free_rate = 0.04
# Market-data requests per second
fetch_rate_per_sec = 2.0

[filters]
min_delta = 0.80
max_delta = 0.95
# intrinsic / premium
min_intrinsic_pct = 0.85
min_dte = 90
max_iv = 0.30
max_spread_pct = 0.02
min_oi = 500

[data]
# Market-data API endpoint and bearer token.
# base_url = "https://api.example.com/marketdata/v1"
# token = ""

[tracker]
# SQLite database for scans, candidates and recommendations
# db_path = "~/.config/ditm-screener/recommendations.db"
# Hours before a ticker with an open recommendation may be recommended again
recency_window_hours = 24

[web]
# Dashboard API listen address
listen = "127.0.0.1:8090"
`

const presetsTemplate = `# Filter presets, matched against every candidate independently of the
# active scan thresholds.

default_preset = "moderate"

[presets.conservative]
min_delta = 0.85
max_delta = 0.95
min_intrinsic_pct = 0.90
max_extrinsic_pct = 0.10
min_dte = 90
max_dte = 365
max_iv = 0.25
max_spread_pct = 0.015
min_oi = 1000

[presets.moderate]
min_delta = 0.80
max_delta = 0.95
min_intrinsic_pct = 0.85
max_extrinsic_pct = 0.15
min_dte = 60
max_dte = 365
max_iv = 0.30
max_spread_pct = 0.02
min_oi = 500

[presets.aggressive]
min_delta = 0.70
max_delta = 0.90
min_intrinsic_pct = 0.70
max_extrinsic_pct = 0.30
min_dte = 15
max_dte = 45
max_iv = 0.30
max_spread_pct = 0.02
min_oi = 250
`

// writeTemplates creates template config files in the config directory.
func writeTemplates(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	files := map[string]string{
		"config.toml":  configTemplate,
		"presets.toml": presetsTemplate,
	}

	for name, content := range files {
		path := filepath.Join(configDir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}

	return nil
}
