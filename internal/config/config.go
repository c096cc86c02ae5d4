package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		Questions       int    `yaml:"questions"`        // per session, default 10
		Reward          int    `yaml:"reward"`           // delta for a correct answer
		Penalty         *int   `yaml:"penalty"`          // magnitude for wrong/no answer; explicit 0 means no deduction
		QuestionSeconds int    `yaml:"question_seconds"` // 0 disables countdowns
		AnswerGrace     string `yaml:"answer_grace"`     // slack before server-side timeout
		EnforceDeadline bool   `yaml:"enforce_deadline"`
		IdleTTL         string `yaml:"idle_ttl"`       // idle-expiry threshold
		SweepInterval   string `yaml:"sweep_interval"` // eviction cadence
		TopicTTL        string `yaml:"topic_ttl"`      // question cache TTL
	} `yaml:"quiz"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// IntOr returns v unless it is zero, in which case fallback is used.
func IntOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
