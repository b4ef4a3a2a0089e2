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

package daoengine

import (
	"io"
	"log/slog"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the engine's construction-time configuration. Build one with
// NewConfig and the With* option functions.
type Config struct {
	logger        *slog.Logger
	promRegistry  prometheus.Registerer
	dataDir       string
	params        dao.Params
	quarterStart  time.Time
	stakeVault    dao.AssetVault
	rewardsVault  dao.AssetVault
	treasuryVault dao.AssetVault
	roles         dao.RoleRegistry
	nowFunc       func() time.Time
	chunkSize     int
}

// ConfigOptionFunc is a function used to modify a Config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new daoengine config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger throws away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		params: dao.DefaultParams(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithLogger specifies the logger
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies the prometheus registry to register
// metrics with
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithDataDir specifies the on-disk location for the metadata and document
// stores. An empty data dir runs the engine fully in memory.
func WithDataDir(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithParams specifies the initial governance parameter set. A parameter
// set persisted from a previous run takes precedence at startup.
func WithParams(params dao.Params) ConfigOptionFunc {
	return func(c *Config) {
		c.params = params
	}
}

// WithQuarterStart specifies the immutable start of the first quarter
func WithQuarterStart(start time.Time) ConfigOptionFunc {
	return func(c *Config) {
		c.quarterStart = start
	}
}

// WithStakeVault specifies the vault holding locked stake tokens
func WithStakeVault(vault dao.AssetVault) ConfigOptionFunc {
	return func(c *Config) {
		c.stakeVault = vault
	}
}

// WithRewardsVault specifies the vault the quarterly rewards pool is paid
// from
func WithRewardsVault(vault dao.AssetVault) ConfigOptionFunc {
	return func(c *Config) {
		c.rewardsVault = vault
	}
}

// WithTreasuryVault specifies the vault proposal funding is released from
func WithTreasuryVault(vault dao.AssetVault) ConfigOptionFunc {
	return func(c *Config) {
		c.treasuryVault = vault
	}
}

// WithRoleRegistry specifies the registry consulted for role checks
func WithRoleRegistry(roles dao.RoleRegistry) ConfigOptionFunc {
	return func(c *Config) {
		c.roles = roles
	}
}

// WithNowFunc overrides the engine's time source, used in tests
func WithNowFunc(now func() time.Time) ConfigOptionFunc {
	return func(c *Config) {
		c.nowFunc = now
	}
}

// WithChunkSize specifies how many participants one FinalizeQuarter call
// visits
func WithChunkSize(chunk int) ConfigOptionFunc {
	return func(c *Config) {
		c.chunkSize = chunk
	}
}
