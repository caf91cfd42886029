package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Env    string `yaml:"env"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		Duration     string `yaml:"duration"`
		MaxQuestions int    `yaml:"maxQuestions"`
		CacheTTL     string `yaml:"cacheTtl"`
	} `yaml:"quiz"`
	Proctor struct {
		ViolationLimit   int    `yaml:"violationLimit"`
		FacePollInterval string `yaml:"facePollInterval"`
	} `yaml:"proctor"`
	Detector struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"detector"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
	} `yaml:"auth"`
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

// ViolationLimit returns the configured violation threshold or the default of 3.
func (c Config) ViolationLimit() int {
	if c.Proctor.ViolationLimit > 0 {
		return c.Proctor.ViolationLimit
	}
	return 3
}

// QuizMaxQuestions returns the configured batch cap or the default of 20.
func (c Config) QuizMaxQuestions() int {
	if c.Quiz.MaxQuestions > 0 {
		return c.Quiz.MaxQuestions
	}
	return 20
}
