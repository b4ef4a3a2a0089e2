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

// Package stake tracks each participant's locked and effective stake and
// maintains the participant and moderator pools. The ledger is the sole
// source of truth for voting weight; the rewards engine reads it and
// writes back reputation and claimable-reward fields.
package stake

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/digixglobal/daoengine/epoch"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ledger maintains the participant registry in insertion order. Insertion
// order is what makes the rewards engine's resumable batch pass stable:
// records are never removed (only zeroed), so a cursor into the order
// remains valid across calls.
//
// The ledger is not internally synchronized; the engine serializes all
// access under its single-writer execution model.
type Ledger struct {
	logger       *slog.Logger
	clock        *epoch.Clock
	params       func() dao.Params
	vault        dao.AssetVault
	participants *orderedmap.OrderedMap[common.Address, *Participant]

	totalLockedStake             uint64
	totalEffectiveStake          uint64
	totalModeratorEffectiveStake uint64
	participantCount             int
	moderatorCount               int
}

// NewLedger creates an empty stake ledger. The params accessor is consulted
// live so special-proposal reconfiguration takes effect without rebuilding
// the ledger.
func NewLedger(
	logger *slog.Logger,
	clock *epoch.Clock,
	params func() dao.Params,
	vault dao.AssetVault,
) *Ledger {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Ledger{
		logger:       logger,
		clock:        clock,
		params:       params,
		vault:        vault,
		participants: orderedmap.NewOrderedMap[common.Address, *Participant](),
	}
}

// Get returns the participant record for addr, or nil
func (l *Ledger) Get(addr common.Address) *Participant {
	p, _ := l.participants.Get(addr)
	return p
}

// Count returns the number of participant records (including zeroed ones)
func (l *Ledger) Count() int {
	return l.participants.Len()
}

// ParticipantCount returns the number of addresses above the minimum
// participant stake threshold
func (l *Ledger) ParticipantCount() int {
	return l.participantCount
}

// ModeratorCount returns the current size of the moderator pool
func (l *Ledger) ModeratorCount() int {
	return l.moderatorCount
}

// TotalLockedStake returns the aggregate locked stake across all
// participants; this is the total weight base for special proposal
// quorums.
func (l *Ledger) TotalLockedStake() uint64 {
	return l.totalLockedStake
}

// TotalEffectiveStake returns the aggregate effective stake across all
// participants; this is the total weight base for milestone voting
// quorums. It tracks the same proration and rollover rules as each
// participant's EffectiveStake field.
func (l *Ledger) TotalEffectiveStake() uint64 {
	return l.totalEffectiveStake
}

// TotalModeratorEffectiveStake returns the aggregate effective stake of the
// moderator pool; this is the weight base for draft vote quorums.
func (l *Ledger) TotalModeratorEffectiveStake() uint64 {
	return l.totalModeratorEffectiveStake
}

// Lock locks amount of stake for addr, pulling it from the vault under
// approve-then-transfer semantics. Legal in either phase; stake locked
// during the Main phase only counts toward effective stake in proportion
// to the time remaining until the next locking phase.
func (l *Ledger) Lock(addr common.Address, amount uint64, now time.Time) error {
	if amount == 0 {
		return dao.ErrZeroAmount
	}
	quarter, err := l.clock.QuarterAt(now)
	if err != nil {
		return err
	}
	phase, err := l.clock.PhaseAt(now)
	if err != nil {
		return err
	}
	if err := l.vault.PullFrom(addr, amount); err != nil {
		return fmt.Errorf("lock stake: %w", err)
	}

	p := l.Get(addr)
	if p == nil {
		p = NewParticipant(addr)
		// A fresh record owes nothing for quarters before it existed
		p.LastQuarterRewardsUpdated = quarter - 1
		p.LastQuarterReputationUpdated = quarter - 1
		l.participants.Set(addr, p)
	}

	effectiveAdd := amount
	if phase == epoch.PhaseMain {
		remaining, err := l.clock.TimeToNextQuarter(now)
		if err != nil {
			return err
		}
		effectiveAdd = prorate(amount, remaining, l.clock.QuarterDuration())
	}

	params := l.params()
	wasParticipant := p.LockedStake >= params.MinimumStake

	p.LockedStake += amount
	p.EffectiveStake += effectiveAdd
	l.totalLockedStake += amount
	l.totalEffectiveStake += effectiveAdd

	if p.LockedStake >= params.MinimumStake {
		p.LastParticipatedQuarter = quarter
		if !wasParticipant {
			l.participantCount++
		}
	}
	l.refreshModerator(p, effectiveAdd, params)

	l.logger.Debug(
		"stake locked",
		"component", "stake",
		"address", addr.Hex(),
		"amount", amount,
		"effective_add", effectiveAdd,
		"phase", phase.String(),
	)
	return nil
}

// Withdraw releases amount of locked stake back to addr. Only legal in the
// locking phase. Pool totals are adjusted using effective stake so they
// stay consistent with the lock path.
func (l *Ledger) Withdraw(addr common.Address, amount uint64, now time.Time) error {
	if amount == 0 {
		return dao.ErrZeroAmount
	}
	if err := l.clock.RequirePhase(now, epoch.PhaseLocking); err != nil {
		return err
	}
	p := l.Get(addr)
	if p == nil || p.LockedStake < amount {
		return fmt.Errorf("%w: locked stake below withdrawal amount", dao.ErrInsufficientBalance)
	}

	params := l.params()
	wasParticipant := p.LockedStake >= params.MinimumStake

	effectiveRemove := min(amount, p.EffectiveStake)
	p.LockedStake -= amount
	p.EffectiveStake -= effectiveRemove
	l.totalLockedStake -= amount
	l.totalEffectiveStake -= effectiveRemove

	if wasParticipant && p.LockedStake < params.MinimumStake {
		l.participantCount--
	}
	if p.IsModerator {
		if p.LockedStake < params.ModeratorMinimumStake ||
			p.Reputation < params.ModeratorMinimumReputation {
			l.demote(p)
		} else {
			// Still a moderator, shrink the pool by the effective delta
			modRemove := min(effectiveRemove, p.EffectiveModeratorStake)
			l.totalModeratorEffectiveStake -= modRemove
			p.EffectiveModeratorStake -= modRemove
		}
	}

	if err := l.vault.PayOut(addr, amount); err != nil {
		return fmt.Errorf("withdraw stake: %w", err)
	}
	l.logger.Debug(
		"stake withdrawn",
		"component", "stake",
		"address", addr.Hex(),
		"amount", amount,
	)
	return nil
}

// ConfirmParticipation marks addr as participating in the current quarter.
// The engine settles the participant's pending quarters first, then calls
// this, then re-evaluates moderator status with the updated reputation.
func (l *Ledger) ConfirmParticipation(addr common.Address, now time.Time) error {
	if err := l.clock.RequirePhase(now, epoch.PhaseLocking); err != nil {
		return err
	}
	quarter, err := l.clock.QuarterAt(now)
	if err != nil {
		return err
	}
	p := l.Get(addr)
	if p == nil || p.LockedStake < l.params().MinimumStake {
		return fmt.Errorf("%w: not an active participant", dao.ErrNotEligible)
	}
	if p.LastParticipatedQuarter == quarter {
		// Already confirmed this quarter
		return nil
	}
	p.LastParticipatedQuarter = quarter
	l.RefreshModerator(p)
	return nil
}

// RefreshModerator re-evaluates addr's moderator status after a reputation
// change, promoting or demoting as needed.
func (l *Ledger) RefreshModerator(p *Participant) {
	l.refreshModerator(p, 0, l.params())
}

func (l *Ledger) refreshModerator(p *Participant, effectiveAdd uint64, params dao.Params) {
	eligible := p.LockedStake >= params.ModeratorMinimumStake &&
		p.Reputation >= params.ModeratorMinimumReputation
	switch {
	case eligible && !p.IsModerator:
		p.IsModerator = true
		p.EffectiveModeratorStake = p.EffectiveStake
		l.totalModeratorEffectiveStake += p.EffectiveStake
		l.moderatorCount++
	case eligible && p.IsModerator && effectiveAdd > 0:
		p.EffectiveModeratorStake += effectiveAdd
		l.totalModeratorEffectiveStake += effectiveAdd
	case !eligible && p.IsModerator:
		l.demote(p)
	}
}

func (l *Ledger) demote(p *Participant) {
	l.totalModeratorEffectiveStake -= p.EffectiveModeratorStake
	p.EffectiveModeratorStake = 0
	p.IsModerator = false
	l.moderatorCount--
}

// RolloverEffective resets a participant's effective stake to their full
// locked stake for the new quarter. The rewards engine calls this for each
// participant it visits during the quarter-boundary pass, so the work stays
// within the pass's bounded chunk.
func (l *Ledger) RolloverEffective(p *Participant) {
	l.totalEffectiveStake += p.LockedStake - p.EffectiveStake
	p.EffectiveStake = p.LockedStake
	if p.IsModerator {
		delta := p.EffectiveStake - p.EffectiveModeratorStake
		l.totalModeratorEffectiveStake += delta
		p.EffectiveModeratorStake = p.EffectiveStake
	}
}

// VisitFrom iterates participants in insertion order, starting after the
// given address (or from the beginning when after is the zero address),
// calling fn for up to limit records. It returns the last visited address
// and the number visited.
func (l *Ledger) VisitFrom(
	after common.Address,
	limit int,
	fn func(p *Participant),
) (common.Address, int) {
	var el *orderedmap.Element[common.Address, *Participant]
	if after == (common.Address{}) {
		el = l.participants.Front()
	} else {
		prev := l.participants.GetElement(after)
		if prev == nil {
			return after, 0
		}
		el = prev.Next()
	}
	visited := 0
	last := after
	for el != nil && visited < limit {
		fn(el.Value)
		last = el.Key
		visited++
		el = el.Next()
	}
	return last, visited
}

// Restore reinstates a persisted participant record at startup, rebuilding
// aggregate totals.
func (l *Ledger) Restore(p *Participant) {
	l.participants.Set(p.Address, p)
	l.totalLockedStake += p.LockedStake
	l.totalEffectiveStake += p.EffectiveStake
	params := l.params()
	if p.LockedStake >= params.MinimumStake {
		l.participantCount++
	}
	if p.IsModerator {
		l.totalModeratorEffectiveStake += p.EffectiveModeratorStake
		l.moderatorCount++
	}
}

// prorate computes floor(amount * remaining / quarterDuration) with 256-bit
// intermediates.
func prorate(amount uint64, remaining, quarterDuration time.Duration) uint64 {
	v := new(uint256.Int).Mul(
		uint256.NewInt(amount),
		uint256.NewInt(uint64(remaining)),
	)
	v.Div(v, uint256.NewInt(uint64(quarterDuration)))
	return v.Uint64()
}
