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

// Package daoengine is the token-weighted governance and treasury engine:
// stake locking, commit-reveal voting, quarterly reward and reputation
// accrual, and milestone-gated proposal funding, driven by a quarter/phase
// clock. The Engine facade serializes every operation and owns persistence;
// the sub-packages hold the mechanics.
package daoengine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/digixglobal/daoengine/database"
	"github.com/digixglobal/daoengine/docstore"
	"github.com/digixglobal/daoengine/epoch"
	"github.com/digixglobal/daoengine/event"
	"github.com/digixglobal/daoengine/proposal"
	"github.com/digixglobal/daoengine/rewards"
	"github.com/digixglobal/daoengine/stake"
	"github.com/digixglobal/daoengine/voting"
	"github.com/ethereum/go-ethereum/common"
)

// Engine is the single entry point for every governance operation. All
// methods take the engine mutex, so the sub-packages can stay free of
// internal locking. Mutating operations persist the affected entities
// before returning.
type Engine struct {
	mu        sync.Mutex
	config    Config
	clock     *epoch.Clock
	ledger    *stake.Ledger
	rewards   *rewards.Engine
	proposals *proposal.Machine
	nonces    *voting.NonceRegistry
	eventBus  *event.EventBus
	store     *database.Store
	docs      *docstore.Store
	metrics   *engineMetrics

	params    dao.Params
	migrated  bool
	successor common.Address
}

// New creates an engine from the given config and loads any persisted state
// from the data directory.
func New(cfg Config) (*Engine, error) {
	if err := cfg.params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.quarterStart.IsZero() {
		return nil, errors.New("invalid configuration: quarter start required")
	}
	if cfg.stakeVault == nil || cfg.rewardsVault == nil ||
		cfg.treasuryVault == nil {
		return nil, errors.New("invalid configuration: all three vaults required")
	}
	e := &Engine{
		config: cfg,
		params: cfg.params,
	}

	store, err := database.New(cfg.dataDir, cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	e.store = store
	docs, err := docstore.New(cfg.dataDir, cfg.logger)
	if err != nil {
		//nolint:errcheck
		store.Close()
		return nil, fmt.Errorf("open document store: %w", err)
	}
	e.docs = docs

	// A parameter set enacted by a past special proposal takes precedence
	// over the configured one
	persisted, migrated, successor, found, err := store.EngineState()
	if err != nil {
		return nil, fmt.Errorf("load engine state: %w", err)
	}
	if found {
		e.params = persisted
		e.migrated = migrated
		e.successor = successor
	}

	clockOpts := []epoch.ClockOptionFunc{}
	if cfg.nowFunc != nil {
		clockOpts = append(clockOpts, epoch.WithNowFunc(cfg.nowFunc))
	}
	e.clock = epoch.NewClock(
		cfg.quarterStart,
		e.params.LockingPhaseDuration,
		e.params.QuarterDuration,
		clockOpts...,
	)
	paramsFn := func() dao.Params { return e.params }
	e.ledger = stake.NewLedger(cfg.logger, e.clock, paramsFn, cfg.stakeVault)
	e.rewards = rewards.NewEngine(
		cfg.logger,
		e.clock,
		paramsFn,
		e.ledger,
		cfg.rewardsVault,
	)
	e.proposals = proposal.NewMachine(cfg.logger, paramsFn)
	e.nonces = voting.NewNonceRegistry()
	e.eventBus = event.NewEventBus(cfg.promRegistry, cfg.logger)
	if cfg.promRegistry != nil {
		e.metrics = newEngineMetrics(cfg.promRegistry)
	}
	if err := e.load(); err != nil {
		return nil, fmt.Errorf("load persisted state: %w", err)
	}
	e.refreshGauges()
	return e, nil
}

// load restores every persisted entity into the in-memory components
func (e *Engine) load() error {
	participants, err := e.store.Participants()
	if err != nil {
		return err
	}
	var outstanding uint64
	for _, p := range participants {
		e.ledger.Restore(p)
		outstanding += p.ClaimableReward
	}
	e.rewards.RestoreOutstanding(outstanding)

	infos, err := e.store.QuarterInfos()
	if err != nil {
		return err
	}
	for _, info := range infos {
		e.rewards.RestoreQuarterInfo(info)
	}
	cursor, err := e.store.Cursor()
	if err != nil {
		return err
	}
	if cursor != nil {
		e.rewards.RestoreCursor(cursor)
	}

	props, err := e.store.Proposals()
	if err != nil {
		return err
	}
	for _, p := range props {
		e.proposals.Restore(p)
	}
	specials, err := e.store.Specials()
	if err != nil {
		return err
	}
	for _, s := range specials {
		e.proposals.RestoreSpecial(s)
	}
	nonces, err := e.store.Nonces()
	if err != nil {
		return err
	}
	for voter, last := range nonces {
		e.nonces.Restore(voter, last)
	}
	return nil
}

// Stop shuts down the event bus and closes the stores
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.eventBus.Stop()
	var errs []error
	if err := e.docs.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// EventBus returns the engine's event bus for subscriptions
func (e *Engine) EventBus() *event.EventBus {
	return e.eventBus
}

func (e *Engine) now() time.Time {
	return e.clock.Now()
}

// notMigrated rejects state-mutating operations once the DAO has handed
// over to a successor. Withdrawals stay open so stake can leave.
func (e *Engine) notMigrated() error {
	if e.migrated {
		return fmt.Errorf("%w: successor %s", dao.ErrMigrated, e.successor.Hex())
	}
	return nil
}

// settleCaller brings addr fully up to date with all finalized quarters and
// persists the result. Every stake-mutating or voting operation goes through
// here first so lazy settlement can never lag a caller's own actions.
func (e *Engine) settleCaller(addr common.Address, now time.Time) error {
	if err := e.rewards.SettleUser(addr, now); err != nil {
		return err
	}
	if p := e.ledger.Get(addr); p != nil {
		return e.store.SaveParticipant(p)
	}
	return nil
}

func (e *Engine) saveParticipant(addr common.Address) error {
	if p := e.ledger.Get(addr); p != nil {
		return e.store.SaveParticipant(p)
	}
	return nil
}

func (e *Engine) saveEngineState() error {
	return e.store.SaveEngineState(e.params, e.migrated, e.successor)
}

func (e *Engine) refreshGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.participants.Set(float64(e.ledger.ParticipantCount()))
	e.metrics.moderators.Set(float64(e.ledger.ModeratorCount()))
	e.metrics.lockedStake.Set(float64(e.ledger.TotalLockedStake()))
	e.metrics.outstanding.Set(float64(e.rewards.Outstanding()))
	e.metrics.lastQuarter.Set(float64(e.rewards.LastFinalized()))
	if c := e.rewards.ActiveCursor(); c != nil {
		e.metrics.passVisited.Set(float64(c.Visited))
	} else {
		e.metrics.passVisited.Set(0)
	}
}

// LockStake locks amount of stake for the caller, settling them first. The
// caller must have approved the stake vault for at least amount.
func (e *Engine) LockStake(addr common.Address, amount uint64) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("lock_stake", err); e.refreshGauges() }()
	if err = e.notMigrated(); err != nil {
		return err
	}
	now := e.now()
	if err = e.settleCaller(addr, now); err != nil {
		return err
	}
	if err = e.ledger.Lock(addr, amount, now); err != nil {
		return err
	}
	if err = e.saveParticipant(addr); err != nil {
		return err
	}
	quarter, _ := e.clock.QuarterAt(now)
	e.eventBus.Publish(
		event.StakeLockedEventType,
		event.NewEvent(event.StakeLockedEventType, event.StakeLockedEvent{
			Address: addr,
			Amount:  amount,
			Quarter: quarter,
		}),
	)
	return nil
}

// WithdrawStake releases amount of the caller's locked stake. Allowed only
// during the locking phase, and still allowed after migration.
func (e *Engine) WithdrawStake(addr common.Address, amount uint64) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("withdraw_stake", err); e.refreshGauges() }()
	now := e.now()
	// After migration no further quarters can be finalized, so settlement
	// would block withdrawals forever once the migration quarter ends.
	// Rewards and reputation were frozen at the handover; exits go straight
	// to the ledger.
	if !e.migrated {
		if err = e.settleCaller(addr, now); err != nil {
			return err
		}
	}
	if err = e.ledger.Withdraw(addr, amount, now); err != nil {
		return err
	}
	if err = e.saveParticipant(addr); err != nil {
		return err
	}
	quarter, _ := e.clock.QuarterAt(now)
	e.eventBus.Publish(
		event.StakeWithdrawnEventType,
		event.NewEvent(event.StakeWithdrawnEventType, event.StakeWithdrawnEvent{
			Address: addr,
			Amount:  amount,
			Quarter: quarter,
		}),
	)
	return nil
}

// ConfirmParticipation marks the caller as participating in the current
// quarter. Allowed only during the locking phase.
func (e *Engine) ConfirmParticipation(addr common.Address) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("confirm_participation", err) }()
	if err = e.notMigrated(); err != nil {
		return err
	}
	now := e.now()
	if err = e.settleCaller(addr, now); err != nil {
		return err
	}
	if err = e.ledger.ConfirmParticipation(addr, now); err != nil {
		return err
	}
	return e.saveParticipant(addr)
}

// FinalizeQuarter advances the quarter-boundary pass by one bounded chunk.
// Founder-gated. Returns the finalized QuarterInfo on the completing call
// and whether the pass is done; callers repeat until done. The pass is not
// restricted to the locking phase: a late or in-flight finalization must
// stay callable in any phase, because stake and claim operations on the
// new quarter are held back until the pass completes.
func (e *Engine) FinalizeQuarter(
	caller common.Address,
) (info *rewards.QuarterInfo, done bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("finalize_quarter", err); e.refreshGauges() }()
	if err = e.notMigrated(); err != nil {
		return nil, false, err
	}
	if err = dao.RequireRole(e.config.roles, caller, dao.RoleFounder); err != nil {
		return nil, false, err
	}
	now := e.now()
	quarter, err := e.clock.QuarterAt(now)
	if err != nil {
		return nil, false, err
	}
	var prevAfter common.Address
	var prevVisited int
	if c := e.rewards.ActiveCursor(); c != nil && c.Quarter == quarter {
		prevAfter = c.LastAddress
		prevVisited = c.Visited
	}
	info, done, err = e.rewards.GlobalStep(now, e.config.chunkSize)
	if err != nil {
		return nil, false, err
	}
	if done && info == nil {
		// Quarter was already finalized; nothing to persist
		return nil, true, nil
	}
	// Persist the records visited by this chunk
	var persistErr error
	visited := e.ledger.Count() - prevVisited
	if c := e.rewards.ActiveCursor(); c != nil {
		visited = c.Visited - prevVisited
	}
	e.ledger.VisitFrom(prevAfter, visited, func(p *stake.Participant) {
		if saveErr := e.store.SaveParticipant(p); saveErr != nil {
			persistErr = saveErr
		}
	})
	if persistErr != nil {
		err = fmt.Errorf("persist pass chunk: %w", persistErr)
		return nil, false, err
	}
	if info == nil {
		if err = e.store.SaveCursor(e.rewards.ActiveCursor()); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	if err = e.store.SaveQuarterInfo(info); err != nil {
		return nil, false, err
	}
	if err = e.store.ClearCursor(); err != nil {
		return nil, false, err
	}
	e.eventBus.Publish(
		event.QuarterStartedEventType,
		event.NewEvent(event.QuarterStartedEventType, event.QuarterStartedEvent{
			Quarter:          info.Quarter,
			RewardsPool:      info.RewardsPool,
			TotalEffective:   info.TotalEffectiveStake,
			DistributionTime: info.DistributionTime,
		}),
	)
	return info, true, nil
}

// ClaimRewards settles the caller and pays out their claimable reward
// balance net of demurrage.
func (e *Engine) ClaimRewards(addr common.Address) (payout uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("claim_rewards", err); e.refreshGauges() }()
	if err = e.notMigrated(); err != nil {
		return 0, err
	}
	now := e.now()
	// Settle first so the pre-payout balance is observable; the claim's own
	// settlement is then a no-op
	if err = e.settleCaller(addr, now); err != nil {
		return 0, err
	}
	var balance uint64
	if p := e.ledger.Get(addr); p != nil {
		balance = p.ClaimableReward
	}
	payout, err = e.rewards.ClaimRewards(addr, now)
	if err != nil {
		return 0, err
	}
	if err = e.saveParticipant(addr); err != nil {
		return 0, err
	}
	e.eventBus.Publish(
		event.RewardsClaimedEventType,
		event.NewEvent(event.RewardsClaimedEventType, event.RewardsClaimedEvent{
			Address:   addr,
			Payout:    payout,
			Demurrage: balance - payout,
		}),
	)
	return payout, nil
}

// Migrate hands the DAO over to a successor: the undistributed treasury is
// transferred and a forwarding pointer recorded. Root-gated and one-time;
// after migration every operation except stake withdrawal is rejected with
// ErrMigrated.
func (e *Engine) Migrate(
	caller common.Address,
	successor common.Address,
) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("migrate", err) }()
	if err = e.notMigrated(); err != nil {
		return err
	}
	if err = dao.RequireRole(e.config.roles, caller, dao.RoleRoot); err != nil {
		return err
	}
	remaining := e.config.treasuryVault.VaultBalance()
	if remaining > 0 {
		if err = e.config.treasuryVault.PayOut(successor, remaining); err != nil {
			return fmt.Errorf("transfer treasury to successor: %w", err)
		}
	}
	e.migrated = true
	e.successor = successor
	if err = e.saveEngineState(); err != nil {
		return err
	}
	e.config.logger.Info(
		"dao migrated",
		"component", "engine",
		"successor", successor.Hex(),
		"treasury_transferred", remaining,
	)
	return nil
}

// Params returns the active governance parameter set
func (e *Engine) Params() dao.Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// Migrated reports whether the DAO has been handed over, and to whom
func (e *Engine) Migrated() (bool, common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.migrated, e.successor
}

// CurrentQuarter returns the quarter number at the engine's current time
func (e *Engine) CurrentQuarter() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock.CurrentQuarter()
}

// CurrentPhase returns the phase at the engine's current time
func (e *Engine) CurrentPhase() (epoch.Phase, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock.CurrentPhase()
}

// Participant returns a snapshot of the participant record for addr
func (e *Engine) Participant(addr common.Address) (stake.Participant, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.ledger.Get(addr)
	if p == nil {
		return stake.Participant{}, false
	}
	return *p, true
}

// QuarterInfo returns the finalized record for quarter q, or nil
func (e *Engine) QuarterInfo(q uint64) *rewards.QuarterInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rewards.Quarter(q)
}

// LastFinalizedQuarter returns the most recent finalized quarter
func (e *Engine) LastFinalizedQuarter() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rewards.LastFinalized()
}

// TotalLockedStake returns the aggregate locked stake
func (e *Engine) TotalLockedStake() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.TotalLockedStake()
}

// Document retrieves a proposal attestation document by its content hash
func (e *Engine) Document(id common.Hash) ([]byte, error) {
	return e.docs.Get(id)
}
