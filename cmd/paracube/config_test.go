// Copyright 2016 The Gini Authors. All rights reserved.  Use of this source
// code is governed by a license that can be found in the License file.

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCLIConfigFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := loadCLIConfigFile(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("loadCLIConfigFile: %s", err)
	}
	want := defaultCLIConfig()
	if cfg.Workers != want.Workers || cfg.CubeDepth != want.CubeDepth || cfg.LogLevel != want.LogLevel {
		t.Fatalf("cfg = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadCLIConfigFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paracube.toml")
	body := "workers = 8\nname = \"node-a\"\nconnect = [\"10.0.0.1:9000\"]\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %s", err)
	}

	cfg, err := loadCLIConfigFile(path)
	if err != nil {
		t.Fatalf("loadCLIConfigFile: %s", err)
	}
	if cfg.Workers != 8 {
		t.Fatalf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.Name != "node-a" {
		t.Fatalf("Name = %q, want node-a", cfg.Name)
	}
	if len(cfg.Connect) != 1 || cfg.Connect[0] != "10.0.0.1:9000" {
		t.Fatalf("Connect = %v, want [10.0.0.1:9000]", cfg.Connect)
	}
	// Fields absent from the file keep the built-in default.
	if cfg.CubeDepth != defaultCLIConfig().CubeDepth {
		t.Fatalf("CubeDepth = %d, want default %d", cfg.CubeDepth, defaultCLIConfig().CubeDepth)
	}
}

func TestValidateLogLevel(t *testing.T) {
	for _, level := range []string{"trace", "debug", "info", "warn", "fatal"} {
		if err := validateLogLevel(level); err != nil {
			t.Errorf("validateLogLevel(%q): %s", level, err)
		}
	}
	if err := validateLogLevel("verbose"); err == nil {
		t.Error("validateLogLevel(\"verbose\") = nil, want error")
	}
}
