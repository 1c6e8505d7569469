// Package config loads process-wide tuning: DSP thread count, cache
// location, and worker-pool sizes. Layered: an optional YAML file, then
// environment variables (.env via godotenv) overriding it.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the tunables applied once before any DSP primitive runs.
type Config struct {
	DSPThreads      int    `yaml:"dsp_threads"`
	CachePath       string `yaml:"cache_path"`
	StagePoolSize   int    `yaml:"stage_pool_size"`
	BatchTimeoutSec int    `yaml:"batch_timeout_sec"`
}

// Default returns the baseline configuration: DSP threads = min(4,
// max(1, NumCPU)), a per-analysis stage pool of 7 workers, and a 300s
// batch timeout.
func Default() Config {
	threads := runtime.NumCPU()
	if threads > 4 {
		threads = 4
	}
	if threads < 1 {
		threads = 1
	}
	home, _ := os.UserHomeDir()
	return Config{
		DSPThreads:      threads,
		CachePath:       filepath.Join(home, ".cuematrix", "cache.db"),
		StagePoolSize:   7,
		BatchTimeoutSec: 300,
	}
}

// Load builds a Config from (in increasing priority): defaults, a YAML
// file at path (if it exists), a ".env" file in the working directory,
// and process environment variables.
func Load(yamlPath string) Config {
	cfg := Default()

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			_ = yaml.Unmarshal(data, &cfg)
		}
	}

	// .env is optional; ignore a missing file.
	_ = godotenv.Load()

	if v := os.Getenv("CUEMATRIX_DSP_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DSPThreads = n
		}
	}
	if v := os.Getenv("CUEMATRIX_CACHE_PATH"); v != "" {
		cfg.CachePath = v
	}
	if v := os.Getenv("CUEMATRIX_STAGE_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StagePoolSize = n
		}
	}
	if v := os.Getenv("CUEMATRIX_BATCH_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchTimeoutSec = n
		}
	}
	return cfg
}

// ApplyDSPThreads is called once at process start, before any DSP
// primitive runs, so library thread pools (here: our own worker pools)
// are sized consistently.
func ApplyDSPThreads(cfg Config) {
	runtime.GOMAXPROCS(cfg.DSPThreads)
}
