// Package fpconfig loads runtime configuration for the library's
// host-side tooling (cmd/fprint-monitor, the SDCP trust store): a .env
// file in the project root, overridden by environment variables.
// Grounded on teacher's internal/config/config.go, generalized from a
// single device IP/credential pair to the fields this library needs.
package fpconfig

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the host-side configuration surface: where to find the SDCP
// root and intermediate CA bundles, how many enroll stages to request by
// default, and the virtual-bridge address (FPRINT_VIRTUAL_BRIDGE_ADDR).
// The address is loaded unconditionally; no variable selects the virtual
// transport.
type Config struct {
	SDCPTrustBundlePath        string
	SDCPIntermediateBundlePath string
	DefaultEnrollStages        int
	VirtualBridgeAddr          string
}

var (
	loaded    *Config
	loadedSet bool
)

const (
	envTrustBundle        = "FPRINT_SDCP_TRUST_BUNDLE"
	envIntermediateBundle = "FPRINT_SDCP_INTERMEDIATE_BUNDLE"
	envEnrollStages       = "FPRINT_DEFAULT_ENROLL_STAGES"
	envVirtualAddr        = "FPRINT_VIRTUAL_BRIDGE_ADDR"
)

// Load reads .env from the project root (first checking cwd, then
// walking up to the nearest go.mod, exactly as findProjectRoot below
// does), then applies environment variable overrides. The result is
// cached; call Reload to force a re-read (used by tests).
func Load() *Config {
	if loadedSet {
		return loaded
	}
	return Reload()
}

// Reload forces a fresh read, bypassing the cache.
func Reload() *Config {
	cfg := &Config{DefaultEnrollStages: 5}

	root := findProjectRoot()
	if data, err := os.ReadFile(filepath.Join(root, ".env")); err == nil {
		parseEnvFile(string(data), cfg)
	}

	if v := os.Getenv(envTrustBundle); v != "" {
		cfg.SDCPTrustBundlePath = v
	}
	if v := os.Getenv(envIntermediateBundle); v != "" {
		cfg.SDCPIntermediateBundlePath = v
	}
	if v := os.Getenv(envEnrollStages); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultEnrollStages = n
		}
	}
	if v := os.Getenv(envVirtualAddr); v != "" {
		cfg.VirtualBridgeAddr = v
	}

	loaded = cfg
	loadedSet = true
	return cfg
}

func parseEnvFile(content string, cfg *Config) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		switch key {
		case envTrustBundle:
			cfg.SDCPTrustBundlePath = value
		case envIntermediateBundle:
			cfg.SDCPIntermediateBundlePath = value
		case envEnrollStages:
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				cfg.DefaultEnrollStages = n
			}
		case envVirtualAddr:
			cfg.VirtualBridgeAddr = value
		}
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
