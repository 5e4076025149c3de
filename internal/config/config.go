package config

import (
	"github.com/ilyakaznacheev/cleanenv"
)

// Config carries every analyzer threshold. Values come from an optional
// YAML file with environment-variable overrides; unset keys fall back to
// the defaults below.
type Config struct {
	// NPlusOneThreshold is the minimum size of a repeated-query group that
	// raises an N+1 issue.
	NPlusOneThreshold int `yaml:"nplusone_threshold" env:"QD_NPLUSONE_THRESHOLD" env-default:"5"`

	// JoinRecommendedMax and JoinCriticalMax bound the per-query JOIN count.
	JoinRecommendedMax int `yaml:"join_recommended_max" env:"QD_JOIN_RECOMMENDED_MAX" env-default:"5"`
	JoinCriticalMax    int `yaml:"join_critical_max" env:"QD_JOIN_CRITICAL_MAX" env-default:"8"`

	// RowWarnThreshold and RowCriticalThreshold bound hydrated row counts.
	RowWarnThreshold     int `yaml:"row_warn_threshold" env:"QD_ROW_WARN_THRESHOLD" env-default:"100"`
	RowCriticalThreshold int `yaml:"row_critical_threshold" env:"QD_ROW_CRITICAL_THRESHOLD" env-default:"1000"`

	// InjectionMinLevel is the lowest injection risk level to report
	// (NONE, LOW, MEDIUM, HIGH).
	InjectionMinLevel string `yaml:"injection_min_level" env:"QD_INJECTION_MIN_LEVEL" env-default:"LOW"`

	// MemoryLimitMB and MemoryCeilingFraction configure the analysis
	// memory watchdog. A limit of 0 disables it.
	MemoryLimitMB         int     `yaml:"memory_limit_mb" env:"QD_MEMORY_LIMIT_MB" env-default:"512"`
	MemoryCeilingFraction float64 `yaml:"memory_ceiling_fraction" env:"QD_MEMORY_CEILING_FRACTION" env-default:"0.8"`

	// Concurrency is the worker count used when ingesting log directories.
	Concurrency int `yaml:"concurrency" env:"QD_CONCURRENCY" env-default:"10"`
}

// Load reads configuration from the given YAML path, or from the
// environment alone when path is empty.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if path == "" {
		err = cleanenv.ReadEnv(&cfg)
	} else {
		err = cleanenv.ReadConfig(path, &cfg)
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in defaults without touching the environment.
func Default() *Config {
	return &Config{
		NPlusOneThreshold:     5,
		JoinRecommendedMax:    5,
		JoinCriticalMax:       8,
		RowWarnThreshold:      100,
		RowCriticalThreshold:  1000,
		InjectionMinLevel:     "LOW",
		MemoryLimitMB:         512,
		MemoryCeilingFraction: 0.8,
		Concurrency:           10,
	}
}
