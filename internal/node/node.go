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

package node

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/digixglobal/daoengine"
	"github.com/digixglobal/daoengine/dao"
	"github.com/digixglobal/daoengine/event"
	"github.com/digixglobal/daoengine/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dev mode seeds the vaults so a fresh engine can run a full governance
// cycle without external funding
const devSeedPool = 1_000_000 * dao.TokenUnit

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")

	quarterStart, err := cfg.ParsedQuarterStart()
	if err != nil {
		return err
	}

	// Parse shutdown timeout
	shutdownTimeout := 30 * time.Second // Default timeout
	if cfg.ShutdownTimeout != "" {
		var err error
		shutdownTimeout, err = time.ParseDuration(cfg.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid shutdown timeout: %w", err)
		}
	}

	roles := dao.NewMemoryRoleRegistry()
	for _, grant := range []struct {
		addr string
		role dao.Role
	}{
		{cfg.FounderAddr, dao.RoleFounder},
		{cfg.RootAddr, dao.RoleRoot},
		{cfg.PrlAddr, dao.RolePRL},
	} {
		if grant.addr == "" {
			continue
		}
		if !common.IsHexAddress(grant.addr) {
			return fmt.Errorf("invalid %s address: %s", grant.role, grant.addr)
		}
		roles.Grant(common.HexToAddress(grant.addr), grant.role)
	}

	stakeVault := dao.NewMemoryVault()
	rewardsVault := dao.NewMemoryVault()
	treasuryVault := dao.NewMemoryVault()
	if cfg.DevMode {
		rewardsVault.MintVault(devSeedPool)
		treasuryVault.MintVault(devSeedPool)
	}

	e, err := daoengine.New(
		daoengine.NewConfig(
			daoengine.WithLogger(logger),
			daoengine.WithDataDir(cfg.DataDir),
			daoengine.WithParams(cfg.Params()),
			daoengine.WithQuarterStart(quarterStart),
			daoengine.WithStakeVault(stakeVault),
			daoengine.WithRewardsVault(rewardsVault),
			daoengine.WithTreasuryVault(treasuryVault),
			daoengine.WithRoleRegistry(roles),
			daoengine.WithChunkSize(cfg.ChunkSize),
			// Enable metrics with default prometheus registry
			daoengine.WithPrometheusRegistry(prometheus.DefaultRegisterer),
		),
	)
	if err != nil {
		return err
	}

	// Mirror governance transitions into the log
	for _, eventType := range []event.EventType{
		event.QuarterStartedEventType,
		event.ProposalStateEventType,
		event.VoteRoundClosedEventType,
		event.StakeLockedEventType,
		event.StakeWithdrawnEventType,
		event.RewardsClaimedEventType,
	} {
		e.EventBus().SubscribeFunc(eventType, func(evt event.Event) {
			logger.Info(
				"governance event",
				"component", "node",
				"type", evt.Type,
				"data", fmt.Sprintf("%+v", evt.Data),
			)
		})
	}

	// Metrics and debug listener
	http.Handle("/metrics", promhttp.Handler())
	logger.Info(
		"serving prometheus metrics on "+fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		"component",
		"node",
	)
	metricsServer := &http.Server{
		Addr: fmt.Sprintf(
			"%s:%d",
			cfg.BindAddr,
			cfg.MetricsPort,
		),
		ReadHeaderTimeout: 60 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error(
				fmt.Sprintf("failed to start metrics listener: %s", err),
				"component", "node",
			)
			os.Exit(1)
		}
	}()

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()
	<-signalCtx.Done()
	logger.Info("signal received, initiating graceful shutdown")

	// Shutdown metrics server
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	// Shutdown engine
	if err := e.Stop(); err != nil {
		logger.Error("shutdown errors occurred", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
