// Copyright 2025 Digix Global
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "daoengine.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	DataDir         string `yaml:"dataDir"         split_words:"true"`
	BindAddr        string `yaml:"bindAddr"        split_words:"true"`
	QuarterStart    string `yaml:"quarterStart"    split_words:"true"`
	ShutdownTimeout string `yaml:"shutdownTimeout" split_words:"true"`
	FounderAddr     string `yaml:"founderAddr"     split_words:"true"`
	RootAddr        string `yaml:"rootAddr"        split_words:"true"`
	PrlAddr         string `yaml:"prlAddr"         split_words:"true"`
	MetricsPort     uint   `yaml:"metricsPort"     split_words:"true"`
	ChunkSize       int    `yaml:"chunkSize"       split_words:"true"`
	DevMode         bool   `yaml:"devMode"         split_words:"true"`
}

// Params returns the governance parameter set matching the configured run
// mode. Dev mode shrinks the epoch and voting windows to minutes.
func (c *Config) Params() dao.Params {
	if c.DevMode {
		return dao.DevParams()
	}
	return dao.DefaultParams()
}

// ParsedQuarterStart parses the configured quarter start timestamp. Dev mode
// defaults to the current time when none is configured; otherwise a quarter
// start is required.
func (c *Config) ParsedQuarterStart() (time.Time, error) {
	if c.QuarterStart == "" {
		if c.DevMode {
			return time.Now().UTC(), nil
		}
		return time.Time{}, fmt.Errorf("quarterStart is required")
	}
	start, err := time.Parse(time.RFC3339, c.QuarterStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid quarterStart: %w", err)
	}
	return start, nil
}

var globalConfig = &Config{
	DataDir:         ".daoengine",
	BindAddr:        "0.0.0.0",
	MetricsPort:     9090,
	ShutdownTimeout: DefaultShutdownTimeout,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.daoengine/daoengine.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".daoengine", "daoengine.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/daoengine/daoengine.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/daoengine/daoengine.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	err := envconfig.Process("daoengine", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	if globalConfig.ShutdownTimeout != "" {
		if _, err := time.ParseDuration(globalConfig.ShutdownTimeout); err != nil {
			return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
		}
	}
	if globalConfig.QuarterStart != "" {
		if _, err := time.Parse(time.RFC3339, globalConfig.QuarterStart); err != nil {
			return nil, fmt.Errorf("invalid quarterStart: %w", err)
		}
	}

	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}
