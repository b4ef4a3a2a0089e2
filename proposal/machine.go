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

package proposal

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/digixglobal/daoengine/voting"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/ethereum/go-ethereum/common"
)

// Machine owns the proposal registry and every lifecycle transition.
// Proposals are kept in submission order, which is externally observable
// through First/Last and Visit.
//
// Not internally synchronized; the engine serializes access.
type Machine struct {
	logger    *slog.Logger
	params    func() dao.Params
	proposals *orderedmap.OrderedMap[common.Hash, *Proposal]
	specials  *orderedmap.OrderedMap[common.Hash, *Special]
}

// NewMachine creates an empty proposal state machine.
func NewMachine(logger *slog.Logger, params func() dao.Params) *Machine {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Machine{
		logger:    logger,
		params:    params,
		proposals: orderedmap.NewOrderedMap[common.Hash, *Proposal](),
		specials:  orderedmap.NewOrderedMap[common.Hash, *Special](),
	}
}

// Get returns the proposal with the given id, or an error
func (m *Machine) Get(id common.Hash) (*Proposal, error) {
	p, ok := m.proposals.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: proposal %s", dao.ErrNotFound, id.Hex())
	}
	return p, nil
}

// Count returns the number of proposals
func (m *Machine) Count() int {
	return m.proposals.Len()
}

// First returns the earliest submitted proposal, or nil
func (m *Machine) First() *Proposal {
	if el := m.proposals.Front(); el != nil {
		return el.Value
	}
	return nil
}

// Last returns the most recently submitted proposal, or nil
func (m *Machine) Last() *Proposal {
	if el := m.proposals.Back(); el != nil {
		return el.Value
	}
	return nil
}

// Visit iterates proposals in submission order
func (m *Machine) Visit(fn func(p *Proposal)) {
	for el := m.proposals.Front(); el != nil; el = el.Next() {
		fn(el.Value)
	}
}

// Submit creates a new proposal in Preproposal state. The proposal id is
// the content hash of the first version's attestation document.
func (m *Machine) Submit(
	proposer common.Address,
	version *Version,
	treasuryBalance uint64,
	now time.Time,
) (*Proposal, error) {
	if err := version.Validate(treasuryBalance); err != nil {
		return nil, err
	}
	if _, ok := m.proposals.Get(version.DocHash); ok {
		return nil, fmt.Errorf(
			"%w: proposal %s",
			dao.ErrAlreadyExists, version.DocHash.Hex(),
		)
	}
	version.SubmittedAt = now
	p := &Proposal{
		ID:         version.DocHash,
		Proposer:   proposer,
		State:      StatePreproposal,
		Versions:   []*Version{version},
		Compliance: make([]bool, len(version.MilestoneFundings)),
		CreatedAt:  now,
	}
	m.proposals.Set(p.ID, p)
	m.logger.Info(
		"proposal submitted",
		"component", "proposal",
		"id", p.ID.Hex(),
		"proposer", proposer.Hex(),
		"milestones", len(version.MilestoneFundings),
	)
	return p, nil
}

// Modify appends a new version to a proposal that has not yet been vetted.
// Only the proposer may modify.
func (m *Machine) Modify(
	id common.Hash,
	proposer common.Address,
	version *Version,
	treasuryBalance uint64,
	now time.Time,
) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}
	if p.Proposer != proposer {
		return dao.ErrNotProposer
	}
	if p.State != StatePreproposal && p.State != StateEndorsed {
		return fmt.Errorf(
			"%w: cannot modify a %s proposal",
			dao.ErrWrongState, p.State,
		)
	}
	if p.Draft != nil && p.Draft.Result() == nil {
		return fmt.Errorf(
			"%w: draft vote in progress",
			dao.ErrWrongState,
		)
	}
	if err := version.Validate(treasuryBalance); err != nil {
		return err
	}
	version.SubmittedAt = now
	p.Versions = append(p.Versions, version)
	p.Compliance = make([]bool, len(version.MilestoneFundings))
	return nil
}

// Endorse moves a preproposal to Endorsed and opens its draft vote. A
// proposal is endorsed exactly once.
func (m *Machine) Endorse(
	id common.Hash,
	endorser common.Address,
	now time.Time,
) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}
	if p.Endorser != (common.Address{}) {
		return dao.ErrAlreadyEndorsed
	}
	if p.State != StatePreproposal {
		return fmt.Errorf(
			"%w: cannot endorse a %s proposal",
			dao.ErrWrongState, p.State,
		)
	}
	p.Endorser = endorser
	p.State = StateEndorsed
	p.Draft = voting.NewDraftTally(now, m.params().DraftVotingDuration)
	m.logger.Info(
		"proposal endorsed",
		"component", "proposal",
		"id", id.Hex(),
		"endorser", endorser.Hex(),
	)
	return nil
}

// Refinalize reopens the draft vote after a failed one. Only the proposer,
// only while Endorsed.
func (m *Machine) Refinalize(
	id common.Hash,
	proposer common.Address,
	now time.Time,
) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}
	if p.Proposer != proposer {
		return dao.ErrNotProposer
	}
	if p.State != StateEndorsed || p.Draft == nil || p.Draft.Result() == nil {
		return fmt.Errorf(
			"%w: no failed draft vote to reopen",
			dao.ErrWrongState,
		)
	}
	p.Draft = voting.NewDraftTally(now, m.params().DraftVotingDuration)
	return nil
}

// DraftVote records a moderator's draft vote. Moderator eligibility and
// weight are the caller's responsibility.
func (m *Machine) DraftVote(
	id common.Hash,
	voter common.Address,
	choice bool,
	weight uint64,
	now time.Time,
) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}
	if p.State != StateEndorsed || p.Draft == nil {
		return fmt.Errorf(
			"%w: proposal is not in draft voting",
			dao.ErrWrongState,
		)
	}
	return p.Draft.Vote(voter, choice, weight, now)
}

// ClaimDraft closes the draft vote. On pass the proposal becomes Vetted;
// on fail it stays Endorsed and the proposer may modify and re-finalize.
func (m *Machine) ClaimDraft(
	id common.Hash,
	minQuorum uint64,
	quota dao.Ratio,
	now time.Time,
) (*voting.Result, error) {
	p, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if p.State != StateEndorsed || p.Draft == nil {
		return nil, fmt.Errorf(
			"%w: proposal is not in draft voting",
			dao.ErrWrongState,
		)
	}
	result, err := p.Draft.Claim(minQuorum, quota, now)
	if err != nil {
		return nil, err
	}
	if result.Passed {
		p.State = StateVetted
	}
	m.logger.Info(
		"draft vote claimed",
		"component", "proposal",
		"id", id.Hex(),
		"passed", result.Passed,
		"turnout", result.Turnout,
	)
	return result, nil
}

// StartRound opens the commit-reveal round for the current milestone, or
// the final review round once every milestone is funded. The first
// milestone round starts from Vetted; later rounds start from Funded after
// the funded milestone's duration has elapsed and its funds were claimed.
func (m *Machine) StartRound(id common.Hash, now time.Time) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}
	switch p.State {
	case StateVetted:
		// first milestone
	case StateFunded:
		if !p.ClaimedCurrent {
			return fmt.Errorf(
				"%w: current milestone funds not yet claimed",
				dao.ErrWrongState,
			)
		}
		prior := p.CurrentMilestone - 1
		elapsed := p.FundedAt.Add(p.Latest().MilestoneDurations[prior])
		if now.Before(elapsed) {
			return fmt.Errorf(
				"%w: milestone period has not elapsed",
				dao.ErrWrongPhase,
			)
		}
	default:
		return fmt.Errorf(
			"%w: cannot start a round for a %s proposal",
			dao.ErrWrongState, p.State,
		)
	}
	params := m.params()
	p.Round = voting.NewRound(
		now,
		params.CommitPhaseDuration,
		params.RevealPhaseDuration,
	)
	p.State = StateVoting
	m.logger.Info(
		"voting round opened",
		"component", "proposal",
		"id", id.Hex(),
		"milestone", p.CurrentMilestone,
		"final_review", p.finalReview(),
	)
	return nil
}

// Commit records a sealed vote in the active round. Nonce replay protection
// is handled by the caller's registry before this is reached.
func (m *Machine) Commit(
	id common.Hash,
	voter common.Address,
	sealed common.Hash,
	weight uint64,
	nonce uint64,
	now time.Time,
) error {
	r, err := m.activeRound(id)
	if err != nil {
		return err
	}
	return r.Commit(voter, sealed, weight, nonce, now)
}

// Reveal opens a sealed vote in the active round
func (m *Machine) Reveal(
	id common.Hash,
	voter common.Address,
	choice bool,
	salt common.Hash,
	now time.Time,
) error {
	r, err := m.activeRound(id)
	if err != nil {
		return err
	}
	return r.Reveal(voter, choice, salt, now)
}

// ClaimRound closes the active round. A milestone pass moves the proposal
// to Funded; a final-review pass completes it; any fail abandons the
// remaining milestones.
func (m *Machine) ClaimRound(
	id common.Hash,
	minQuorum uint64,
	quota dao.Ratio,
	now time.Time,
) (*voting.Result, error) {
	p, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if p.State != StateVoting || p.Round == nil {
		return nil, fmt.Errorf(
			"%w: no voting round in progress",
			dao.ErrWrongState,
		)
	}
	result, err := p.Round.Claim(minQuorum, quota, now)
	if err != nil {
		return nil, err
	}
	switch {
	case !result.Passed:
		p.State = StateFailed
	case p.finalReview():
		p.State = StateCompleted
	default:
		p.State = StateFunded
		p.FundedAt = now
		p.ClaimedCurrent = false
	}
	m.logger.Info(
		"voting round claimed",
		"component", "proposal",
		"id", id.Hex(),
		"milestone", p.CurrentMilestone,
		"passed", result.Passed,
		"state", p.State.String(),
	)
	return result, nil
}

// SetCompliance sets the PRL approval flag for one milestone. The flag can
// be revoked as well as granted; funds are releasable only while set.
func (m *Machine) SetCompliance(
	id common.Hash,
	milestone int,
	approved bool,
) error {
	p, err := m.Get(id)
	if err != nil {
		return err
	}
	if milestone < 0 || milestone >= len(p.Compliance) {
		return fmt.Errorf("%w: milestone %d", dao.ErrNotFound, milestone)
	}
	p.Compliance[milestone] = approved
	return nil
}

// ClaimFunding releases the funds the proposer is currently owed: the
// current milestone's allocation after its vote passed and the PRL
// approved it, or the final reward after completion. The release is capped
// at the milestone amount regardless of any other claimable balances.
// Returns the amount to pay out.
func (m *Machine) ClaimFunding(
	id common.Hash,
	proposer common.Address,
	now time.Time,
) (uint64, error) {
	p, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	if p.Proposer != proposer {
		return 0, dao.ErrNotProposer
	}
	switch p.State {
	case StateCompleted:
		if p.FinalRewardClaimed {
			return 0, dao.ErrAlreadyClaimed
		}
		p.FinalRewardClaimed = true
		amount := p.Latest().FinalReward
		p.FundsClaimed += amount
		return amount, nil
	case StateFunded:
		if p.ClaimedCurrent {
			return 0, dao.ErrAlreadyClaimed
		}
		if !p.Compliance[p.CurrentMilestone] {
			return 0, fmt.Errorf(
				"%w: milestone %d not PRL-approved",
				dao.ErrNotAuthorized, p.CurrentMilestone,
			)
		}
		amount := p.Latest().MilestoneFundings[p.CurrentMilestone]
		p.ClaimedCurrent = true
		p.CurrentMilestone++
		p.FundsClaimed += amount
		m.logger.Info(
			"milestone funds claimed",
			"component", "proposal",
			"id", id.Hex(),
			"milestone", p.CurrentMilestone-1,
			"amount", amount,
		)
		return amount, nil
	default:
		return 0, fmt.Errorf(
			"%w: nothing claimable for a %s proposal",
			dao.ErrWrongState, p.State,
		)
	}
}

// Restore reinstates a persisted proposal at startup
func (m *Machine) Restore(p *Proposal) {
	m.proposals.Set(p.ID, p)
}

func (m *Machine) activeRound(id common.Hash) (*voting.Round, error) {
	p, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if p.State != StateVoting || p.Round == nil {
		return nil, fmt.Errorf(
			"%w: no voting round in progress",
			dao.ErrWrongState,
		)
	}
	return p.Round, nil
}
