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

// Package proposal implements the funding proposal state machine: milestone
// lifecycle gated by draft and commit-reveal voting outcomes and the PRL
// compliance flag, plus founder-submitted special proposals that replace the
// governance parameter set.
//
// The machine owns proposal lifecycle exclusively. Voter eligibility, vote
// weighting and quorum inputs are decided by the surrounding engine; the
// machine enforces state transitions.
package proposal

import (
	"fmt"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/digixglobal/daoengine/voting"
	"github.com/ethereum/go-ethereum/common"
)

// State is a proposal's position in the funding lifecycle. States advance
// monotonically except Endorsed, which a failed draft vote returns to so
// the proposer can modify and re-finalize.
type State int

const (
	// StatePreproposal is a submitted proposal awaiting moderator endorsement
	StatePreproposal State = iota
	// StateEndorsed has an endorser; a draft vote may be open or may have
	// failed (the proposer can re-finalize)
	StateEndorsed
	// StateVetted passed its draft vote; the first milestone round can start
	StateVetted
	// StateVoting has an open commit-reveal round for the current milestone
	// or the final review
	StateVoting
	// StateFunded passed the current milestone vote; funds are claimable
	StateFunded
	// StateFailed lost a milestone vote; remaining milestones are abandoned
	StateFailed
	// StateCompleted passed its final review; only the final reward claim
	// remains
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StatePreproposal:
		return "preproposal"
	case StateEndorsed:
		return "endorsed"
	case StateVetted:
		return "vetted"
	case StateVoting:
		return "voting"
	case StateFunded:
		return "funded"
	case StateFailed:
		return "failed"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Version is one revision of a proposal's funding plan. The latest version
// is the binding one once voting starts.
type Version struct {
	DocHash            common.Hash
	MilestoneDurations []time.Duration
	MilestoneFundings  []uint64
	FinalReward        uint64
	SubmittedAt        time.Time
}

// Validate checks the structural invariants of a version against the
// treasury balance at submission time.
func (v *Version) Validate(treasuryBalance uint64) error {
	if len(v.MilestoneFundings) == 0 ||
		len(v.MilestoneFundings) != len(v.MilestoneDurations) {
		return dao.ErrMilestoneMismatch
	}
	var total uint64 = v.FinalReward
	for _, amount := range v.MilestoneFundings {
		if amount == 0 {
			return fmt.Errorf("%w: zero milestone funding", dao.ErrZeroAmount)
		}
		total += amount
	}
	if total > treasuryBalance {
		return fmt.Errorf(
			"%w: %d > %d",
			dao.ErrExceedsTreasury, total, treasuryBalance,
		)
	}
	return nil
}

// TotalFunding returns the sum of milestone fundings and the final reward
func (v *Version) TotalFunding() uint64 {
	total := v.FinalReward
	for _, amount := range v.MilestoneFundings {
		total += amount
	}
	return total
}

// Proposal is one funding proposal. Identified by the content hash of its
// first attestation document.
type Proposal struct {
	ID       common.Hash
	Proposer common.Address
	Endorser common.Address
	State    State
	Versions []*Version

	// CurrentMilestone indexes the milestone being voted on or funded;
	// equal to the milestone count once all milestones are claimed and the
	// final review remains
	CurrentMilestone int
	// Compliance is the PRL approval flag per milestone; funds for a
	// milestone are only releasable while its flag is set
	Compliance []bool
	// ClaimedCurrent marks the current milestone's funds as released
	ClaimedCurrent bool
	// FundsClaimed is the total released across all milestones
	FundsClaimed       uint64
	FinalRewardClaimed bool

	// Draft is the moderator tally for the active or most recent draft
	// vote; Round is the active or most recent commit-reveal round
	Draft *voting.DraftTally
	Round *voting.Round

	CreatedAt time.Time
	// FundedAt is when the current milestone's vote passed; the next round
	// cannot start before the milestone's duration has elapsed from here
	FundedAt time.Time
}

// Latest returns the binding version of the funding plan
func (p *Proposal) Latest() *Version {
	return p.Versions[len(p.Versions)-1]
}

// finalReview reports whether all milestones are funded and only the final
// review round remains
func (p *Proposal) finalReview() bool {
	return p.CurrentMilestone >= len(p.Latest().MilestoneFundings)
}
