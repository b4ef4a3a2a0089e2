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

package stake

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Participant is the address-keyed stake and standing record. Created on
// first stake lock, never deleted; a full withdrawal zeroes the stake
// fields but keeps the record (and its reputation history).
//
// Invariants: EffectiveStake <= LockedStake; IsModerator only while
// LockedStake and Reputation meet the moderator thresholds.
type Participant struct {
	Address                 common.Address
	LockedStake             uint64
	EffectiveStake          uint64
	EffectiveModeratorStake uint64
	IsModerator             bool
	Reputation              uint64

	// Quarter bookkeeping for the rewards engine
	LastParticipatedQuarter      uint64
	LastQuarterRewardsUpdated    uint64
	LastQuarterReputationUpdated uint64
	ClaimableReward              uint64
	// Distribution timestamp of the quarter whose rewards were last folded
	// into ClaimableReward; demurrage on claim is measured from here.
	RewardAccruedTime time.Time

	// Effective balances computed by the most recent quarter-boundary pass,
	// held until the quarter is finalized and the reward is credited
	PendingQuarter                   uint64
	PendingEffectiveBalance          uint64
	PendingModeratorEffectiveBalance uint64

	// Participation points per quarter, earned by revealing votes (and, for
	// moderators, by draft voting)
	QuarterPoints          map[uint64]uint64
	ModeratorQuarterPoints map[uint64]uint64
}

// NewParticipant creates an empty participant record for addr
func NewParticipant(addr common.Address) *Participant {
	return &Participant{
		Address:                addr,
		QuarterPoints:          make(map[uint64]uint64),
		ModeratorQuarterPoints: make(map[uint64]uint64),
	}
}

// QuarterPoint returns the participation points earned in quarter q
func (p *Participant) QuarterPoint(q uint64) uint64 {
	return p.QuarterPoints[q]
}

// ModeratorQuarterPoint returns the moderator participation points earned
// in quarter q
func (p *Participant) ModeratorQuarterPoint(q uint64) uint64 {
	return p.ModeratorQuarterPoints[q]
}

// AddQuarterPoints awards participation points for quarter q
func (p *Participant) AddQuarterPoints(q, points uint64) {
	if points == 0 {
		return
	}
	p.QuarterPoints[q] += points
}

// AddModeratorQuarterPoints awards moderator participation points for
// quarter q
func (p *Participant) AddModeratorQuarterPoints(q, points uint64) {
	if points == 0 {
		return
	}
	p.ModeratorQuarterPoints[q] += points
}

// DeductReputation applies a reputation penalty, flooring at zero
func (p *Participant) DeductReputation(amount uint64) {
	if amount >= p.Reputation {
		p.Reputation = 0
		return
	}
	p.Reputation -= amount
}
