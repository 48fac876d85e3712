package nkb

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the raw key=value pairs from /etc/nkb.conf plus the
// typed settings derived from them.
type Config struct {
	Values map[string]string

	OutDirs       []string
	Make          string
	SnapshotDir   string
	LibcSupported string
	LibcPolicy    LibcPolicy
	LibcMin       string
	Pause         time.Duration
}

// loadConfig reads path and applies NKB_* env overrides and defaults.
// A missing config file is not an error; defaults apply.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	mergeEnvOverrides(cfg)
	initConfig(cfg)

	return cfg, nil
}

// mergeEnvOverrides merges NKB_* and R2_* environment variables over the
// file values. Environment always wins.
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "NKB_") || strings.HasPrefix(env, "R2_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

// initConfig derives the typed settings from cfg.Values.
func initConfig(cfg *Config) {
	outDirs := cfg.Values["NKB_OUT_DIRS"]
	if outDirs == "" {
		outDirs = "out:out2"
	}
	cfg.OutDirs = nil
	for _, d := range strings.Split(outDirs, ":") {
		d = strings.TrimSpace(d)
		if d != "" {
			cfg.OutDirs = append(cfg.OutDirs, d)
		}
	}

	cfg.Make = cfg.Values["NKB_MAKE"]
	if cfg.Make == "" {
		cfg.Make = "make"
	}

	cfg.SnapshotDir = cfg.Values["NKB_SNAPSHOT_DIR"]
	if cfg.SnapshotDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.SnapshotDir = filepath.Join(home, ".cache", "nkb", "snapshots")
		} else {
			cfg.SnapshotDir = "/var/cache/nkb/snapshots"
		}
	}

	cfg.LibcSupported = cfg.Values["NKB_LIBC_SUPPORTED"]
	if cfg.LibcSupported == "" {
		cfg.LibcSupported = "glibc 2.39"
	}

	switch cfg.Values["NKB_LIBC_POLICY"] {
	case "minimum":
		cfg.LibcPolicy = LibcPolicyMinimum
	default:
		cfg.LibcPolicy = LibcPolicyExact
	}
	cfg.LibcMin = cfg.Values["NKB_LIBC_MIN"]
	if cfg.LibcMin == "" {
		cfg.LibcMin = cfg.LibcSupported
	}

	cfg.Pause = 2 * time.Second
	if ms := cfg.Values["NKB_PAUSE_MS"]; ms != "" {
		if n, err := strconv.Atoi(ms); err == nil && n >= 0 {
			cfg.Pause = time.Duration(n) * time.Millisecond
		}
	}

	if cfg.Values["NKB_DEBUG"] == "1" {
		Debug = true
	}
}
