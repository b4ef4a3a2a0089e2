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

package event

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	QuarterStartedEventType  EventType = "quarter.started"
	ProposalStateEventType   EventType = "proposal.state"
	VoteRoundClosedEventType EventType = "vote.round.closed"
	StakeLockedEventType     EventType = "stake.locked"
	StakeWithdrawnEventType  EventType = "stake.withdrawn"
	RewardsClaimedEventType  EventType = "rewards.claimed"
)

// QuarterStartedEvent fires exactly once per quarter, when the boundary
// pass completes and the quarter's rewards pool is fixed.
type QuarterStartedEvent struct {
	Quarter          uint64
	RewardsPool      uint64
	TotalEffective   uint64
	DistributionTime time.Time
}

// ProposalStateEvent fires on every proposal lifecycle transition
type ProposalStateEvent struct {
	ID    common.Hash
	State string
}

// VoteRoundClosedEvent fires when a draft, milestone or special round is
// claimed
type VoteRoundClosedEvent struct {
	ProposalID common.Hash
	Kind       string // draft, milestone, special
	Passed     bool
	ForWeight  uint64
	Against    uint64
	Turnout    uint64
}

// StakeLockedEvent fires on every successful stake lock
type StakeLockedEvent struct {
	Address common.Address
	Amount  uint64
	Quarter uint64
}

// StakeWithdrawnEvent fires on every successful stake withdrawal
type StakeWithdrawnEvent struct {
	Address common.Address
	Amount  uint64
	Quarter uint64
}

// RewardsClaimedEvent fires when a participant claims their rewards
type RewardsClaimedEvent struct {
	Address   common.Address
	Payout    uint64
	Demurrage uint64
}
