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

package rewards

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/digixglobal/daoengine/epoch"
	"github.com/digixglobal/daoengine/stake"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultChunkSize is the number of participants a single quarter-boundary
// pass invocation visits when the caller does not specify one.
const DefaultChunkSize = 50

// Engine runs the quarter-boundary pass and per-user settlement. It is the
// only writer of reputation and claimable-reward fields on participant
// records, and the only writer of QuarterInfo records.
//
// Like the stake ledger it is not internally synchronized; the surrounding
// engine serializes all access.
type Engine struct {
	logger *slog.Logger
	clock  *epoch.Clock
	params func() dao.Params
	ledger *stake.Ledger
	vault  dao.AssetVault

	quarters      map[uint64]*QuarterInfo
	lastFinalized uint64
	cursor        *Cursor
	// Total claimable rewards across all participants. The pool available
	// at finalization is the vault balance minus this, which is how
	// demurraged and flooring-dust amounts flow back into the next pool.
	outstanding uint64
}

// NewEngine creates a rewards engine over the given ledger and rewards-asset
// vault. Quarter 1 needs no boundary pass, so a fresh engine starts with it
// already finalized.
func NewEngine(
	logger *slog.Logger,
	clock *epoch.Clock,
	params func() dao.Params,
	ledger *stake.Ledger,
	vault dao.AssetVault,
) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Engine{
		logger:        logger,
		clock:         clock,
		params:        params,
		ledger:        ledger,
		vault:         vault,
		quarters:      make(map[uint64]*QuarterInfo),
		lastFinalized: 1,
	}
}

// LastFinalized returns the most recent finalized quarter
func (e *Engine) LastFinalized() uint64 {
	return e.lastFinalized
}

// Quarter returns the finalized QuarterInfo record for q, or nil
func (e *Engine) Quarter(q uint64) *QuarterInfo {
	return e.quarters[q]
}

// ActiveCursor returns the in-progress pass cursor, or nil when no pass is
// running
func (e *Engine) ActiveCursor() *Cursor {
	return e.cursor
}

// Outstanding returns the total claimable rewards across all participants
func (e *Engine) Outstanding() uint64 {
	return e.outstanding
}

// RequireFinalized fails unless the current quarter's boundary pass has run
// to completion. Stake-mutating operations and settlements are gated on
// this so the participant set and balances stay stable under an incomplete
// pass.
func (e *Engine) RequireFinalized(now time.Time) error {
	quarter, err := e.clock.QuarterAt(now)
	if err != nil {
		return err
	}
	if quarter <= e.lastFinalized {
		return nil
	}
	if e.cursor != nil && e.cursor.Quarter == quarter {
		return dao.ErrBatchInProgress
	}
	return fmt.Errorf("%w: quarter %d", dao.ErrQuarterNotFinalized, quarter)
}

// GlobalStep advances the quarter-boundary pass by one bounded chunk. The
// pass visits every participant in ledger order: it settles the visitor's
// pending reward and reputation for earlier quarters, measures their
// effective balance for the quarter just ended, and rolls their effective
// stake over for the new quarter. On the completing call it finalizes the
// QuarterInfo record exactly once and returns it; repeated calls after
// completion are no-ops reporting done.
func (e *Engine) GlobalStep(
	now time.Time,
	chunk int,
) (*QuarterInfo, bool, error) {
	quarter, err := e.clock.QuarterAt(now)
	if err != nil {
		return nil, false, err
	}
	if quarter <= e.lastFinalized {
		return nil, true, nil
	}
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	if e.cursor == nil || e.cursor.Quarter != quarter {
		// A stale cursor from an abandoned pass is discarded; the new pass
		// re-measures everyone from the start.
		e.cursor = &Cursor{Quarter: quarter}
	}

	params := e.params()
	measured := quarter - 1
	last, visited := e.ledger.VisitFrom(
		e.cursor.LastAddress,
		chunk,
		func(p *stake.Participant) {
			e.creditPending(p)
			e.settleReputation(p, measured-1)
			e.ledger.RefreshModerator(p)

			var eb, ebMod uint64
			if p.LastParticipatedQuarter == measured {
				eb = EffectiveBalance(
					params.MinimumQuarterPoint,
					params.QuarterPointScale,
					params.ReputationPointScale,
					p.QuarterPoint(measured),
					p.Reputation,
					p.LockedStake,
				)
				if p.IsModerator {
					ebMod = EffectiveBalance(
						params.ModeratorMinimumQuarterPoint,
						params.QuarterPointScale,
						params.ReputationPointScale,
						p.ModeratorQuarterPoint(measured),
						p.Reputation,
						p.LockedStake,
					)
				}
			}
			p.PendingQuarter = measured
			p.PendingEffectiveBalance = eb
			p.PendingModeratorEffectiveBalance = ebMod
			e.cursor.SumEffective += eb
			e.cursor.SumModeratorEffective += ebMod

			e.ledger.RolloverEffective(p)
		},
	)
	e.cursor.LastAddress = last
	e.cursor.Visited += visited

	if e.cursor.Visited < e.ledger.Count() {
		e.logger.Debug(
			"rewards pass chunk processed",
			"component", "rewards",
			"quarter", quarter,
			"visited", e.cursor.Visited,
			"total", e.ledger.Count(),
		)
		return nil, false, nil
	}
	info := e.finalize(quarter, params, now)
	e.cursor = nil
	return info, true, nil
}

// finalize writes the QuarterInfo record from the completed pass totals.
// The pool is whatever the vault holds beyond already-credited claimables,
// which folds in demurrage recovered since the last distribution.
func (e *Engine) finalize(
	quarter uint64,
	params dao.Params,
	now time.Time,
) *QuarterInfo {
	balance := e.vault.VaultBalance()
	var available uint64
	if balance > e.outstanding {
		available = balance - e.outstanding
	}
	var cumulative uint64
	if prev := e.quarters[e.lastFinalized]; prev != nil {
		cumulative = prev.CumulativeRewards
	}
	info := &QuarterInfo{
		Quarter:                      quarter,
		MinimumQuarterPoint:          params.MinimumQuarterPoint,
		ModeratorMinimumQuarterPoint: params.ModeratorMinimumQuarterPoint,
		QuarterPointScale:            params.QuarterPointScale,
		ReputationPointScale:         params.ReputationPointScale,
		ModeratorRewardsPortion:      params.ModeratorRewardsPortion,
		TotalEffectiveStake:          e.cursor.SumEffective,
		TotalModeratorEffectiveStake: e.cursor.SumModeratorEffective,
		RewardsPool:                  available,
		DistributionTime:             now,
		CumulativeRewards:            cumulative + available,
	}
	e.quarters[quarter] = info
	e.lastFinalized = quarter
	e.logger.Info(
		"quarter finalized",
		"component", "rewards",
		"quarter", quarter,
		"pool", available,
		"total_effective", info.TotalEffectiveStake,
		"total_moderator_effective", info.TotalModeratorEffectiveStake,
	)
	return info
}

// SettleUser brings one participant fully up to date with all finalized
// quarters: credits their pending reward and applies outstanding reputation
// deltas, then re-evaluates moderator status. Invoked lazily on the user's
// next interaction, or for everyone during the boundary pass itself.
func (e *Engine) SettleUser(addr common.Address, now time.Time) error {
	if err := e.RequireFinalized(now); err != nil {
		return err
	}
	quarter, err := e.clock.QuarterAt(now)
	if err != nil {
		return err
	}
	p := e.ledger.Get(addr)
	if p == nil {
		return nil
	}
	e.creditPending(p)
	e.settleReputation(p, quarter-1)
	e.ledger.RefreshModerator(p)
	return nil
}

// ClaimRewards settles the caller and pays out their claimable balance,
// reduced by demurrage for the days elapsed since the balance last accrued.
// The demurraged amount stays in the vault and flows into the next
// quarter's pool. Returns the amount paid out.
func (e *Engine) ClaimRewards(
	addr common.Address,
	now time.Time,
) (uint64, error) {
	if err := e.SettleUser(addr, now); err != nil {
		return 0, err
	}
	p := e.ledger.Get(addr)
	if p == nil || p.ClaimableReward == 0 {
		return 0, fmt.Errorf("%w: no claimable rewards", dao.ErrZeroAmount)
	}
	balance := p.ClaimableReward
	cut := Demurrage(
		balance,
		daysBetween(p.RewardAccruedTime, now),
		e.params().DemurrageRate,
	)
	payout := balance - cut
	p.ClaimableReward = 0
	e.outstanding -= balance
	if payout > 0 {
		if err := e.vault.PayOut(addr, payout); err != nil {
			p.ClaimableReward = balance
			e.outstanding += balance
			return 0, fmt.Errorf("claim rewards: %w", err)
		}
	}
	e.logger.Info(
		"rewards claimed",
		"component", "rewards",
		"address", addr.Hex(),
		"payout", payout,
		"demurrage", cut,
	)
	return payout, nil
}

// creditPending converts a participant's stored effective balances into a
// reward once the corresponding quarter is finalized. The existing
// claimable balance is demurraged up to the new distribution time before
// the reward is folded in, so a single (balance, accrued-time) pair stays
// accurate.
func (e *Engine) creditPending(p *stake.Participant) {
	if p.PendingQuarter == 0 {
		return
	}
	info := e.quarters[p.PendingQuarter+1]
	if info == nil {
		if p.PendingQuarter+1 <= e.lastFinalized {
			// The boundary this was measured for was skipped over and will
			// never be finalized; the measurement is unredeemable.
			p.PendingQuarter = 0
			p.PendingEffectiveBalance = 0
			p.PendingModeratorEffectiveBalance = 0
		}
		return
	}
	portion := info.ModeratorRewardsPortion
	reward := rewardPortion(
		p.PendingEffectiveBalance,
		info.RewardsPool,
		portion.Den-portion.Num,
		portion.Den,
		info.TotalEffectiveStake,
	)
	reward += rewardPortion(
		p.PendingModeratorEffectiveBalance,
		info.RewardsPool,
		portion.Num,
		portion.Den,
		info.TotalModeratorEffectiveStake,
	)
	if p.ClaimableReward > 0 {
		cut := Demurrage(
			p.ClaimableReward,
			daysBetween(p.RewardAccruedTime, info.DistributionTime),
			e.params().DemurrageRate,
		)
		p.ClaimableReward -= cut
		e.outstanding -= cut
	}
	p.ClaimableReward += reward
	e.outstanding += reward
	p.RewardAccruedTime = info.DistributionTime
	p.LastQuarterRewardsUpdated = p.PendingQuarter
	p.PendingQuarter = 0
	p.PendingEffectiveBalance = 0
	p.PendingModeratorEffectiveBalance = 0
}

// settleReputation applies reputation deltas for every unsettled quarter up
// to and including through. Quarters the participant locked for earn or
// lose by their quarter points; quarters they sat out entirely cost a flat
// penalty. Reputation floors at zero.
func (e *Engine) settleReputation(p *stake.Participant, through uint64) {
	if p.LastQuarterReputationUpdated >= through {
		return
	}
	params := e.params()
	for q := p.LastQuarterReputationUpdated + 1; q <= through; q++ {
		if q <= p.LastParticipatedQuarter {
			qp := p.QuarterPoint(q)
			if qp >= params.MinimumQuarterPoint {
				p.Reputation += reputationGain(qp, params)
			} else {
				p.DeductReputation(reputationPenalty(qp, params))
			}
		} else {
			p.DeductReputation(
				params.MaxReputationDeduction + params.PunishmentForNotLocking,
			)
		}
	}
	p.LastQuarterReputationUpdated = through
}

// RestoreQuarterInfo reinstates a persisted QuarterInfo record at startup
func (e *Engine) RestoreQuarterInfo(info *QuarterInfo) {
	e.quarters[info.Quarter] = info
	if info.Quarter > e.lastFinalized {
		e.lastFinalized = info.Quarter
	}
}

// RestoreCursor reinstates a persisted in-progress pass cursor at startup
func (e *Engine) RestoreCursor(c *Cursor) {
	e.cursor = c
}

// RestoreOutstanding sets the total claimable rewards at startup, computed
// by the caller as the sum of restored participants' claimable balances
func (e *Engine) RestoreOutstanding(total uint64) {
	e.outstanding = total
}
