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

// Package rewards implements the quarterly rewards and reputation accrual
// engine: the resumable quarter-boundary pass that measures every
// participant's effective balance, the per-user lazy settlement that credits
// rewards and applies reputation deltas, and demurrage on unclaimed
// balances.
package rewards

import (
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/holiman/uint256"
)

// EffectiveBalance converts a participant's locked stake into their
// reward-weighting contribution for one quarter. Participation above the
// minimum quarter point keeps the full stake as the base; below it the base
// degrades linearly. The base is then scaled up by extra participation and
// accumulated reputation:
//
//	effective = floor(base * (qpScale + qp - minPoint) * (rpScale + reputation)
//	                  / (qpScale * rpScale))
//
// All intermediates are 256-bit, the result floors. Never negative: params
// validation guarantees qpScale > minPoint.
func EffectiveBalance(
	minPoint uint64,
	qpScale uint64,
	rpScale uint64,
	quarterPoint uint64,
	reputation uint64,
	lockedStake uint64,
) uint64 {
	if minPoint == 0 || qpScale == 0 || rpScale == 0 {
		return 0
	}
	base := uint256.NewInt(lockedStake)
	if quarterPoint <= minPoint {
		base.Mul(base, uint256.NewInt(quarterPoint))
		base.Div(base, uint256.NewInt(minPoint))
	}
	v := new(uint256.Int).Mul(
		base,
		uint256.NewInt(qpScale+quarterPoint-minPoint),
	)
	v.Mul(v, uint256.NewInt(rpScale+reputation))
	v.Div(v, new(uint256.Int).Mul(
		uint256.NewInt(qpScale),
		uint256.NewInt(rpScale),
	))
	return v.Uint64()
}

// rewardPortion computes one share of a quarter's pool:
//
//	floor(effective * pool * num / (totalEffective * den))
//
// The participant pool uses the complement of the moderator portion, the
// moderator pool uses the portion itself.
func rewardPortion(
	effective uint64,
	pool uint64,
	num uint64,
	den uint64,
	totalEffective uint64,
) uint64 {
	if effective == 0 || totalEffective == 0 || den == 0 {
		return 0
	}
	v := new(uint256.Int).Mul(
		uint256.NewInt(effective),
		uint256.NewInt(pool),
	)
	v.Mul(v, uint256.NewInt(num))
	v.Div(v, new(uint256.Int).Mul(
		uint256.NewInt(totalEffective),
		uint256.NewInt(den),
	))
	return v.Uint64()
}

// Demurrage returns the decay on an unclaimed balance over the given number
// of full days, floor(balance*days*rateNum/rateDen), capped at the balance.
func Demurrage(balance uint64, days uint64, rate dao.Ratio) uint64 {
	if balance == 0 || days == 0 || rate.Den == 0 {
		return 0
	}
	v := new(uint256.Int).Mul(
		uint256.NewInt(balance),
		uint256.NewInt(days),
	)
	v.Mul(v, uint256.NewInt(rate.Num))
	v.Div(v, uint256.NewInt(rate.Den))
	cut := v.Uint64()
	if cut > balance {
		return balance
	}
	return cut
}

// daysBetween returns the number of full days from a to b, zero when b is
// not after a.
func daysBetween(a, b time.Time) uint64 {
	if !b.After(a) {
		return 0
	}
	return uint64(b.Sub(a) / (24 * time.Hour))
}

// reputationGain is the reward for participating above the minimum quarter
// point.
func reputationGain(quarterPoint uint64, p dao.Params) uint64 {
	extra := quarterPoint - p.MinimumQuarterPoint
	return extra * p.ReputationPerExtraPoint.Num / p.ReputationPerExtraPoint.Den
}

// reputationPenalty is the deduction for participating below the minimum
// quarter point.
func reputationPenalty(quarterPoint uint64, p dao.Params) uint64 {
	short := p.MinimumQuarterPoint - quarterPoint
	return short * p.MaxReputationDeduction / p.MinimumQuarterPoint
}
