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

// Package voting implements the commit-reveal voting protocol shared by
// milestone and special-proposal votes, the plain draft vote used by
// moderators, and the pure quorum/quota calculator. Eligibility and vote
// weighting are decided by the caller; this package only enforces protocol
// mechanics.
package voting

import (
	"fmt"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/ethereum/go-ethereum/common"
)

// RoundPhase is the protocol phase of one commit-reveal round. Rounds
// advance monotonically: Commit -> Reveal -> Claimed. A round never
// re-enters Commit.
type RoundPhase int

const (
	RoundCommit RoundPhase = iota
	RoundReveal
	RoundClaimed
)

func (p RoundPhase) String() string {
	switch p {
	case RoundCommit:
		return "commit"
	case RoundReveal:
		return "reveal"
	case RoundClaimed:
		return "claimed"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// VoteRecord is one voter's state within a round. Weight is snapshotted at
// commit time so stake changes between commit and reveal cannot influence
// the tally.
type VoteRecord struct {
	CommitHash common.Hash
	Choice     bool
	Revealed   bool
	Weight     uint64
	Nonce      uint64
}

// Result is the outcome of a claimed round. A round that fails quorum or
// quota still produces a Result (Passed=false); it is never retried.
type Result struct {
	Passed    bool
	ForWeight uint64
	Against   uint64
	Turnout   uint64
	MinQuorum uint64
}

// Round is one commit-reveal voting round.
type Round struct {
	records    map[common.Address]*VoteRecord
	commitEnds time.Time
	revealEnds time.Time
	forWeight  uint64
	against    uint64
	result     *Result
}

// NewRound opens a round at start with the given window durations.
func NewRound(start time.Time, commitDur, revealDur time.Duration) *Round {
	return &Round{
		commitEnds: start.Add(commitDur),
		revealEnds: start.Add(commitDur).Add(revealDur),
		records:    make(map[common.Address]*VoteRecord),
	}
}

// PhaseAt returns the round phase at t. The reveal window begins
// immediately when the commit window elapses.
func (r *Round) PhaseAt(t time.Time) RoundPhase {
	if r.result != nil {
		return RoundClaimed
	}
	if t.Before(r.commitEnds) {
		return RoundCommit
	}
	if t.Before(r.revealEnds) {
		return RoundReveal
	}
	// Window elapsed but result not yet claimed; still counts as reveal
	// being over for gating purposes
	return RoundReveal
}

// CommitEnds returns the end of the commit window
func (r *Round) CommitEnds() time.Time {
	return r.commitEnds
}

// RevealEnds returns the end of the reveal window
func (r *Round) RevealEnds() time.Time {
	return r.revealEnds
}

// Commit stores a voter's commitment hash with the weight snapshotted now.
// Exactly one commit per voter per round.
func (r *Round) Commit(
	voter common.Address,
	commitHash common.Hash,
	weight uint64,
	nonce uint64,
	now time.Time,
) error {
	if r.result != nil {
		return dao.ErrAlreadyClaimed
	}
	if !now.Before(r.commitEnds) {
		return fmt.Errorf("%w: commit window has closed", dao.ErrWrongPhase)
	}
	if _, ok := r.records[voter]; ok {
		return dao.ErrDuplicateCommit
	}
	r.records[voter] = &VoteRecord{
		CommitHash: commitHash,
		Weight:     weight,
		Nonce:      nonce,
	}
	return nil
}

// Reveal opens a voter's commitment. Accepted only within the reveal
// window, only once, and only if (choice, salt) reproduces the stored hash.
func (r *Round) Reveal(
	voter common.Address,
	choice bool,
	salt common.Hash,
	now time.Time,
) error {
	if r.result != nil {
		return dao.ErrAlreadyClaimed
	}
	if now.Before(r.commitEnds) || !now.Before(r.revealEnds) {
		return fmt.Errorf("%w: outside reveal window", dao.ErrWrongPhase)
	}
	record, ok := r.records[voter]
	if !ok {
		return fmt.Errorf("%w: no commit from voter", dao.ErrNotEligible)
	}
	if record.Revealed {
		return dao.ErrAlreadyRevealed
	}
	if SealVote(voter, choice, salt) != record.CommitHash {
		return dao.ErrHashMismatch
	}
	record.Revealed = true
	record.Choice = choice
	if choice {
		r.forWeight += record.Weight
	} else {
		r.against += record.Weight
	}
	return nil
}

// Claim closes the round after the reveal window and records the outcome
// against the supplied quorum and quota. A failed round is claimed as a
// fail, not retried.
func (r *Round) Claim(
	minQuorum uint64,
	quota dao.Ratio,
	now time.Time,
) (*Result, error) {
	if r.result != nil {
		return nil, dao.ErrAlreadyClaimed
	}
	if now.Before(r.revealEnds) {
		return nil, fmt.Errorf("%w: reveal window still open", dao.ErrWrongPhase)
	}
	turnout := r.forWeight + r.against
	r.result = &Result{
		ForWeight: r.forWeight,
		Against:   r.against,
		Turnout:   turnout,
		MinQuorum: minQuorum,
		Passed: turnout >= minQuorum &&
			QuotaPass(r.forWeight, r.against, quota),
	}
	return r.result, nil
}

// Result returns the claimed outcome, or nil while the round is open
func (r *Round) Result() *Result {
	return r.result
}

// Record returns the vote record for voter, or nil
func (r *Round) Record(voter common.Address) *VoteRecord {
	return r.records[voter]
}

// Records returns the underlying record map for persistence
func (r *Round) Records() map[common.Address]*VoteRecord {
	return r.records
}

// RestoreRound reinstates a round from its persisted window bounds. Vote
// records and any claimed result are restored separately.
func RestoreRound(commitEnds, revealEnds time.Time) *Round {
	return &Round{
		commitEnds: commitEnds,
		revealEnds: revealEnds,
		records:    make(map[common.Address]*VoteRecord),
	}
}

// RestoreRecord reinstates a persisted vote record, rebuilding running
// tallies. Used when loading state at startup.
func (r *Round) RestoreRecord(voter common.Address, record *VoteRecord) {
	r.records[voter] = record
	if record.Revealed {
		if record.Choice {
			r.forWeight += record.Weight
		} else {
			r.against += record.Weight
		}
	}
}

// RestoreResult reinstates a persisted claimed result
func (r *Round) RestoreResult(result *Result) {
	r.result = result
}
