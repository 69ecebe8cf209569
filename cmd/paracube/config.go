// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// cliConfig is the flat set of flags from spec.md §6, plus an optional
// on-disk defaults file. It is a narrow collaborator: it never touches
// C1–C9 directly, only hands a fully-resolved broker.Config to main.
//
// Grounded on tutu/internal/daemon/config.go's Config/DefaultConfig/
// LoadConfig trio, flattened to spec.md's single-namespace flag list
// rather than tutu's nested [node]/[api]/[models] tables, since §6
// names no sub-sections.
type cliConfig struct {
	Workers              int      `toml:"workers"`
	TCPPort              int      `toml:"tcp_port"`
	UDPPort              int      `toml:"udp_port"`
	Daemon               bool     `toml:"daemon"`
	Name                 string   `toml:"name"`
	Connect              []string `toml:"connect"`
	CubeDepth            int      `toml:"cube_depth"`
	InitialSplitTimeoutMS int     `toml:"initial_split_timeout_ms"`
	LogLevel             string   `toml:"log_level"`
	// AdminAddr, if non-empty, serves broker.HTTPHandler's read-only
	// /status and /metrics routes. Not part of spec.md §6's flag list
	// (it's a SPEC_FULL.md DOMAIN STACK addition); empty disables it.
	AdminAddr string `toml:"admin_addr"`
}

// defaultCLIConfig mirrors the package defaults used elsewhere
// (runner.DefaultConfig, registry.DefaultConfig, offload.DefaultConfig)
// so a bare `paracube formula.cnf` behaves the same as one built from
// those packages' own zero-value fallbacks.
func defaultCLIConfig() cliConfig {
	return cliConfig{
		Workers:               0, // 0 => runner.DefaultConfig.Workers (runtime.NumCPU())
		TCPPort:               0, // 0 => OS-assigned ephemeral port
		UDPPort:               0,
		Daemon:                false,
		Name:                  "",
		CubeDepth:             20, // matches runner.DefaultConfig.MaxDepth
		InitialSplitTimeoutMS: 2000, // matches runner.DefaultConfig.SplitTimeout
		LogLevel:              "info",
		AdminAddr:             "",
	}
}

// loadCLIConfigFile overlays path (if it exists) onto defaults, per
// tutu's LoadConfig: absence of the file is not an error, only a
// decode failure is.
func loadCLIConfigFile(path string) (cliConfig, error) {
	cfg := defaultCLIConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "fatal": true,
}

func validateLogLevel(level string) error {
	if !validLogLevels[level] {
		return fmt.Errorf("invalid --log-level %q: want one of trace, debug, info, warn, fatal", level)
	}
	return nil
}
