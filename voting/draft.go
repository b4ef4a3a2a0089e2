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

package voting

import (
	"fmt"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/ethereum/go-ethereum/common"
)

// draftVote is one moderator's current draft vote
type draftVote struct {
	choice bool
	weight uint64
}

// DraftTally is the plain (non-committed) vote used by moderators on a
// proposal in Initial state. A later vote from the same moderator
// overwrites the earlier one; the aggregate counters are adjusted by the
// delta rather than recomputed from scratch.
type DraftTally struct {
	votes     map[common.Address]draftVote
	closes    time.Time
	forWeight uint64
	against   uint64
	result    *Result
}

// NewDraftTally opens a draft vote at start with the given duration.
func NewDraftTally(start time.Time, duration time.Duration) *DraftTally {
	return &DraftTally{
		votes:  make(map[common.Address]draftVote),
		closes: start.Add(duration),
	}
}

// Closes returns the end of the draft voting window
func (d *DraftTally) Closes() time.Time {
	return d.closes
}

// Vote records or replaces a moderator's draft vote with the given weight.
func (d *DraftTally) Vote(
	voter common.Address,
	choice bool,
	weight uint64,
	now time.Time,
) error {
	if d.result != nil {
		return dao.ErrAlreadyClaimed
	}
	if !now.Before(d.closes) {
		return fmt.Errorf("%w: draft voting window has closed", dao.ErrWrongPhase)
	}
	if prev, ok := d.votes[voter]; ok {
		// Remove the previous vote's contribution before applying the new one
		if prev.choice {
			d.forWeight -= prev.weight
		} else {
			d.against -= prev.weight
		}
	}
	d.votes[voter] = draftVote{choice: choice, weight: weight}
	if choice {
		d.forWeight += weight
	} else {
		d.against += weight
	}
	return nil
}

// Claim closes the draft vote against the supplied quorum and quota.
func (d *DraftTally) Claim(
	minQuorum uint64,
	quota dao.Ratio,
	now time.Time,
) (*Result, error) {
	if d.result != nil {
		return nil, dao.ErrAlreadyClaimed
	}
	if now.Before(d.closes) {
		return nil, fmt.Errorf("%w: draft voting window still open", dao.ErrWrongPhase)
	}
	turnout := d.forWeight + d.against
	d.result = &Result{
		ForWeight: d.forWeight,
		Against:   d.against,
		Turnout:   turnout,
		MinQuorum: minQuorum,
		Passed: turnout >= minQuorum &&
			QuotaPass(d.forWeight, d.against, quota),
	}
	return d.result, nil
}

// Result returns the claimed outcome, or nil while the vote is open
func (d *DraftTally) Result() *Result {
	return d.result
}

// Tally returns the current running for/against weights
func (d *DraftTally) Tally() (forWeight, against uint64) {
	return d.forWeight, d.against
}

// HasVoted reports whether voter has a recorded draft vote
func (d *DraftTally) HasVoted(voter common.Address) bool {
	_, ok := d.votes[voter]
	return ok
}

// DraftVote is the exported view of one recorded draft vote, used for
// persistence
type DraftVote struct {
	Choice bool
	Weight uint64
}

// Votes returns a copy of the recorded votes
func (d *DraftTally) Votes() map[common.Address]DraftVote {
	out := make(map[common.Address]DraftVote, len(d.votes))
	for voter, v := range d.votes {
		out[voter] = DraftVote{Choice: v.choice, Weight: v.weight}
	}
	return out
}

// RestoreDraftTally reinstates a draft vote from its persisted close time.
// Votes and any claimed result are restored separately.
func RestoreDraftTally(closes time.Time) *DraftTally {
	return &DraftTally{
		votes:  make(map[common.Address]draftVote),
		closes: closes,
	}
}

// RestoreResult reinstates a persisted claimed result
func (d *DraftTally) RestoreResult(result *Result) {
	d.result = result
}

// RestoreVote reinstates a persisted draft vote, rebuilding running tallies
func (d *DraftTally) RestoreVote(
	voter common.Address,
	choice bool,
	weight uint64,
) {
	d.votes[voter] = draftVote{choice: choice, weight: weight}
	if choice {
		d.forWeight += weight
	} else {
		d.against += weight
	}
}
