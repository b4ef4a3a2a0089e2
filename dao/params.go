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

package dao

import (
	"errors"
	"time"
)

// TokenUnit is the number of base units per whole token (9 decimals)
const TokenUnit uint64 = 1_000_000_000

// Ratio is an exact num/den pair used for quota and reward-split checks.
// Comparisons are done by cross-multiplication, never floating point.
type Ratio struct {
	Num uint64
	Den uint64
}

// QuorumParams holds the constants for one minimum-quorum calculation.
// The fixed portion is a flat fraction of total stake; the scaling portion
// grows with the funding amount requested relative to the treasury balance.
type QuorumParams struct {
	FixedNum uint64
	FixedDen uint64
	ScaleNum uint64
	ScaleDen uint64
}

// Params is the full governance parameter set. A copy of the active Params
// is snapshotted into each quarter's QuarterInfo, and the set as a whole is
// replaceable via a passed special proposal.
type Params struct {
	// Epoch timing. The start of the first quarter is configured separately
	// on the epoch clock and is immutable.
	LockingPhaseDuration time.Duration
	QuarterDuration      time.Duration

	// Stake thresholds
	MinimumStake               uint64 // locked stake to count as a participant
	ModeratorMinimumStake      uint64
	ModeratorMinimumReputation uint64

	// Voting windows
	DraftVotingDuration   time.Duration
	CommitPhaseDuration   time.Duration
	RevealPhaseDuration   time.Duration
	SpecialCommitDuration time.Duration
	SpecialRevealDuration time.Duration

	// Quorum and quota constant sets. Draft, milestone voting and special
	// proposals each carry their own risk tolerance.
	DraftQuorum   QuorumParams
	VotingQuorum  QuorumParams
	SpecialQuorum QuorumParams
	DraftQuota    Ratio
	VotingQuota   Ratio
	SpecialQuota  Ratio

	// Participation and reputation
	MinimumQuarterPoint          uint64
	ModeratorMinimumQuarterPoint uint64
	QuarterPointScale            uint64
	ReputationPointScale         uint64
	ReputationPerExtraPoint      Ratio
	MaxReputationDeduction       uint64
	PunishmentForNotLocking      uint64

	// Quarter points awarded per action
	VoteQuarterPoint      uint64 // per commit-reveal vote revealed
	DraftVoteQuarterPoint uint64 // per moderator draft vote

	// Portion of each quarter's rewards pool reserved for moderators
	ModeratorRewardsPortion Ratio

	// Demurrage applied per day to unclaimed reward balances
	DemurrageRate Ratio
}

// DefaultParams returns the mainnet governance parameter set.
func DefaultParams() Params {
	return Params{
		LockingPhaseDuration:         10 * 24 * time.Hour,
		QuarterDuration:              90 * 24 * time.Hour,
		MinimumStake:                 10 * TokenUnit,
		ModeratorMinimumStake:        842 * TokenUnit,
		ModeratorMinimumReputation:   400,
		DraftVotingDuration:          7 * 24 * time.Hour,
		CommitPhaseDuration:          14 * 24 * time.Hour,
		RevealPhaseDuration:          7 * 24 * time.Hour,
		SpecialCommitDuration:        14 * 24 * time.Hour,
		SpecialRevealDuration:        7 * 24 * time.Hour,
		DraftQuorum:                  QuorumParams{FixedNum: 5, FixedDen: 100, ScaleNum: 35, ScaleDen: 100},
		VotingQuorum:                 QuorumParams{FixedNum: 5, FixedDen: 100, ScaleNum: 25, ScaleDen: 100},
		SpecialQuorum:                QuorumParams{FixedNum: 51, FixedDen: 100, ScaleNum: 0, ScaleDen: 100},
		DraftQuota:                   Ratio{Num: 30, Den: 100},
		VotingQuota:                  Ratio{Num: 30, Den: 100},
		SpecialQuota:                 Ratio{Num: 70, Den: 100},
		MinimumQuarterPoint:          3,
		ModeratorMinimumQuarterPoint: 3,
		QuarterPointScale:            400,
		ReputationPointScale:         2000,
		ReputationPerExtraPoint:      Ratio{Num: 1, Den: 1},
		MaxReputationDeduction:       20,
		PunishmentForNotLocking:      60,
		VoteQuarterPoint:             1,
		DraftVoteQuarterPoint:        1,
		ModeratorRewardsPortion:      Ratio{Num: 5, Den: 100},
		DemurrageRate:                Ratio{Num: 165, Den: 10_000_000},
	}
}

// DevParams returns an accelerated parameter set for development and tests.
// Quarters last an hour with a ten minute locking phase.
func DevParams() Params {
	p := DefaultParams()
	p.LockingPhaseDuration = 10 * time.Minute
	p.QuarterDuration = time.Hour
	p.DraftVotingDuration = 5 * time.Minute
	p.CommitPhaseDuration = 10 * time.Minute
	p.RevealPhaseDuration = 5 * time.Minute
	p.SpecialCommitDuration = 10 * time.Minute
	p.SpecialRevealDuration = 5 * time.Minute
	return p
}

// Validate checks internal consistency of the parameter set. It is called
// when the engine starts and before a special proposal's replacement set is
// accepted for voting.
func (p Params) Validate() error {
	if p.QuarterDuration <= 0 || p.LockingPhaseDuration <= 0 {
		return errors.New("quarter and locking phase durations must be positive")
	}
	if p.LockingPhaseDuration >= p.QuarterDuration {
		return errors.New("locking phase must be shorter than the quarter")
	}
	if p.CommitPhaseDuration <= 0 || p.RevealPhaseDuration <= 0 ||
		p.SpecialCommitDuration <= 0 || p.SpecialRevealDuration <= 0 ||
		p.DraftVotingDuration <= 0 {
		return errors.New("voting windows must be positive")
	}
	for _, q := range []QuorumParams{p.DraftQuorum, p.VotingQuorum, p.SpecialQuorum} {
		if q.FixedDen == 0 || q.ScaleDen == 0 {
			return errors.New("quorum denominators must be non-zero")
		}
	}
	for _, r := range []Ratio{p.DraftQuota, p.VotingQuota, p.SpecialQuota, p.ReputationPerExtraPoint, p.ModeratorRewardsPortion, p.DemurrageRate} {
		if r.Den == 0 {
			return errors.New("ratio denominators must be non-zero")
		}
	}
	if p.ModeratorRewardsPortion.Num > p.ModeratorRewardsPortion.Den {
		return errors.New("moderator rewards portion cannot exceed the whole pool")
	}
	if p.MinimumQuarterPoint == 0 || p.ModeratorMinimumQuarterPoint == 0 {
		return errors.New("minimum quarter points must be non-zero")
	}
	if p.QuarterPointScale <= p.MinimumQuarterPoint {
		return errors.New("quarter point scale must exceed the minimum quarter point")
	}
	if p.MinimumStake == 0 {
		return errors.New("minimum stake must be non-zero")
	}
	return nil
}
