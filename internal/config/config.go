// Package config loads cmd/dvbrelay's startup configuration: CLI flags,
// environment variable fallbacks (the teacher's envOr pattern) and an
// optional JSON file declaring outputs (SPEC_FULL.md §4.3).
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

// Output declares one outbound feed at startup.
type Output struct {
	ID        string   `json:"id"`
	SID       uint16   `json:"sid"`
	PIDs      []uint16 `json:"pids,omitempty"`
	TSID      uint16   `json:"tsid,omitempty"`
	FixedTSID bool     `json:"fixedTsid,omitempty"`
	DVB       bool     `json:"dvb,omitempty"`
	EPG       bool     `json:"epg,omitempty"`
	Watch     bool     `json:"watch,omitempty"`
	Addr      string   `json:"addr"`
}

// Config is the fully resolved startup configuration.
type Config struct {
	SourceKind string // "udp", "file", or "srt"
	SourceAddr string
	BudgetMode bool

	ControlAddr string

	NetworkID   uint16
	NetworkName string
	DefaultTSID uint16

	Outputs []Output
}

// fileConfig is the shape of the optional JSON config file: only the
// output list is declarative today, matching SPEC_FULL.md §4.3 ("CLI flags
// override the source/sink addresses").
type fileConfig struct {
	Outputs []Output `json:"outputs"`
}

// Load parses args (normally os.Args[1:]) into a Config, falling back to
// environment variables and then hardcoded defaults for anything not set
// on the command line, in the teacher's envOr idiom.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("dvbrelay", flag.ContinueOnError)

	sourceKind := fs.String("source-kind", envOr("SOURCE_KIND", "udp"), "ingest transport: udp, file, or srt")
	sourceAddr := fs.String("source-addr", envOr("SOURCE_ADDR", ":1234"), "source address (host:port, or file path)")
	budgetMode := fs.Bool("budget-mode", envOr("BUDGET_MODE", "") != "", "disable per-PID filtering; the source delivers the whole multiplex")
	controlAddr := fs.String("control-addr", envOr("CONTROL_ADDR", ":8080"), "control HTTP listen address")
	networkID := fs.Uint("network-id", 1, "synthesized NIT network_id")
	networkName := fs.String("network-name", envOr("NETWORK_NAME", "dvbrelay"), "synthesized NIT network_name")
	defaultTSID := fs.Uint("default-tsid", 1, "TSID assumed for outputs before the first upstream PAT arrives")
	configPath := fs.String("config", envOr("CONFIG_FILE", ""), "JSON file declaring outputs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		SourceKind:  *sourceKind,
		SourceAddr:  *sourceAddr,
		BudgetMode:  *budgetMode,
		ControlAddr: *controlAddr,
		NetworkID:   uint16(*networkID),
		NetworkName: *networkName,
		DefaultTSID: uint16(*defaultTSID),
	}

	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", *configPath, err)
		}
		var fc fileConfig
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", *configPath, err)
		}
		cfg.Outputs = fc.Outputs
	}

	return cfg, nil
}

// envOr returns the environment variable key's value, or fallback if unset
// or empty.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
