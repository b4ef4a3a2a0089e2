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

package daoengine

import (
	"fmt"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/digixglobal/daoengine/epoch"
	"github.com/digixglobal/daoengine/event"
	"github.com/digixglobal/daoengine/proposal"
	"github.com/digixglobal/daoengine/stake"
	"github.com/digixglobal/daoengine/voting"
	"github.com/ethereum/go-ethereum/common"
)

// requireParticipant settles addr and returns their record if they hold at
// least the minimum participant stake.
func (e *Engine) requireParticipant(
	addr common.Address,
	now time.Time,
) (*stake.Participant, error) {
	if err := e.settleCaller(addr, now); err != nil {
		return nil, err
	}
	p := e.ledger.Get(addr)
	if p == nil || p.LockedStake < e.params.MinimumStake {
		return nil, fmt.Errorf(
			"%w: below minimum participant stake",
			dao.ErrNotEligible,
		)
	}
	return p, nil
}

// requireModerator settles addr and returns their record if they are in the
// moderator pool.
func (e *Engine) requireModerator(
	addr common.Address,
	now time.Time,
) (*stake.Participant, error) {
	p, err := e.requireParticipant(addr, now)
	if err != nil {
		return nil, err
	}
	if !p.IsModerator {
		return nil, fmt.Errorf("%w: not a moderator", dao.ErrNotEligible)
	}
	return p, nil
}

func (e *Engine) publishProposalState(id common.Hash, state string) {
	e.eventBus.Publish(
		event.ProposalStateEventType,
		event.NewEvent(event.ProposalStateEventType, event.ProposalStateEvent{
			ID:    id,
			State: state,
		}),
	)
}

func (e *Engine) publishRoundClosed(
	id common.Hash,
	kind string,
	result *voting.Result,
) {
	e.eventBus.Publish(
		event.VoteRoundClosedEventType,
		event.NewEvent(event.VoteRoundClosedEventType, event.VoteRoundClosedEvent{
			ProposalID: id,
			Kind:       kind,
			Passed:     result.Passed,
			ForWeight:  result.ForWeight,
			Against:    result.Against,
			Turnout:    result.Turnout,
		}),
	)
}

func (e *Engine) saveProposal(id common.Hash) error {
	p, err := e.proposals.Get(id)
	if err != nil {
		return err
	}
	return e.store.SaveProposal(p)
}

// SubmitProposal stores the attestation document and creates a new funding
// proposal identified by its content hash. The proposer must be a
// participant; the plan must fit within the treasury.
func (e *Engine) SubmitProposal(
	proposer common.Address,
	doc []byte,
	milestoneDurations []time.Duration,
	milestoneFundings []uint64,
	finalReward uint64,
) (id common.Hash, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("submit_proposal", err) }()
	if err = e.notMigrated(); err != nil {
		return common.Hash{}, err
	}
	now := e.now()
	if _, err = e.requireParticipant(proposer, now); err != nil {
		return common.Hash{}, err
	}
	if err = e.clock.RequirePhase(now, epoch.PhaseMain); err != nil {
		return common.Hash{}, err
	}
	id, err = e.docs.Put(doc)
	if err != nil {
		return common.Hash{}, fmt.Errorf("store attestation: %w", err)
	}
	version := &proposal.Version{
		DocHash:            id,
		MilestoneDurations: milestoneDurations,
		MilestoneFundings:  milestoneFundings,
		FinalReward:        finalReward,
	}
	if _, err = e.proposals.Submit(
		proposer,
		version,
		e.config.treasuryVault.VaultBalance(),
		now,
	); err != nil {
		return common.Hash{}, err
	}
	if err = e.saveProposal(id); err != nil {
		return common.Hash{}, err
	}
	e.publishProposalState(id, proposal.StatePreproposal.String())
	return id, nil
}

// ModifyProposal stores a revised attestation document and appends a new
// version of the funding plan. Proposer-only, before vetting.
func (e *Engine) ModifyProposal(
	id common.Hash,
	proposer common.Address,
	doc []byte,
	milestoneDurations []time.Duration,
	milestoneFundings []uint64,
	finalReward uint64,
) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("modify_proposal", err) }()
	if err = e.notMigrated(); err != nil {
		return err
	}
	now := e.now()
	if _, err = e.requireParticipant(proposer, now); err != nil {
		return err
	}
	docHash, err := e.docs.Put(doc)
	if err != nil {
		return fmt.Errorf("store attestation: %w", err)
	}
	version := &proposal.Version{
		DocHash:            docHash,
		MilestoneDurations: milestoneDurations,
		MilestoneFundings:  milestoneFundings,
		FinalReward:        finalReward,
	}
	if err = e.proposals.Modify(
		id,
		proposer,
		version,
		e.config.treasuryVault.VaultBalance(),
		now,
	); err != nil {
		return err
	}
	return e.saveProposal(id)
}

// EndorseProposal moves a preproposal into draft voting. Moderator-only.
func (e *Engine) EndorseProposal(
	id common.Hash,
	endorser common.Address,
) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("endorse_proposal", err) }()
	if err = e.notMigrated(); err != nil {
		return err
	}
	now := e.now()
	if _, err = e.requireModerator(endorser, now); err != nil {
		return err
	}
	if err = e.proposals.Endorse(id, endorser, now); err != nil {
		return err
	}
	if err = e.saveProposal(id); err != nil {
		return err
	}
	e.publishProposalState(id, proposal.StateEndorsed.String())
	return nil
}

// RefinalizeProposal reopens the draft vote after a failed one.
// Proposer-only.
func (e *Engine) RefinalizeProposal(
	id common.Hash,
	proposer common.Address,
) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("refinalize_proposal", err) }()
	if err = e.notMigrated(); err != nil {
		return err
	}
	now := e.now()
	if _, err = e.requireParticipant(proposer, now); err != nil {
		return err
	}
	if err = e.proposals.Refinalize(id, proposer, now); err != nil {
		return err
	}
	return e.saveProposal(id)
}

// DraftVote records a moderator's plain vote on an endorsed proposal,
// weighted by their effective moderator stake. The first vote on a draft
// earns moderator quarter points; re-votes replace the recorded choice
// without earning again.
func (e *Engine) DraftVote(
	id common.Hash,
	voter common.Address,
	choice bool,
) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("draft_vote", err) }()
	if err = e.notMigrated(); err != nil {
		return err
	}
	now := e.now()
	p, err := e.requireModerator(voter, now)
	if err != nil {
		return err
	}
	prop, err := e.proposals.Get(id)
	if err != nil {
		return err
	}
	firstVote := prop.Draft == nil || !prop.Draft.HasVoted(voter)
	if err = e.proposals.DraftVote(
		id, voter, choice, p.EffectiveModeratorStake, now,
	); err != nil {
		return err
	}
	quarter, err := e.clock.QuarterAt(now)
	if err != nil {
		return err
	}
	if firstVote {
		p.AddModeratorQuarterPoints(quarter, e.params.DraftVoteQuarterPoint)
	}
	if err = e.saveParticipant(voter); err != nil {
		return err
	}
	return e.saveProposal(id)
}

// ClaimDraftResult closes the draft vote once its window has elapsed. The
// quorum scales with the amount requested relative to the treasury; the
// weight base is the moderator pool's effective stake.
func (e *Engine) ClaimDraftResult(
	id common.Hash,
) (result *voting.Result, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("claim_draft", err) }()
	if err = e.notMigrated(); err != nil {
		return nil, err
	}
	now := e.now()
	p, err := e.proposals.Get(id)
	if err != nil {
		return nil, err
	}
	minQuorum := voting.MinQuorum(
		e.ledger.TotalModeratorEffectiveStake(),
		e.params.DraftQuorum,
		p.Latest().TotalFunding(),
		e.config.treasuryVault.VaultBalance(),
	)
	result, err = e.proposals.ClaimDraft(id, minQuorum, e.params.DraftQuota, now)
	if err != nil {
		return nil, err
	}
	if err = e.saveProposal(id); err != nil {
		return nil, err
	}
	e.publishRoundClosed(id, "draft", result)
	if result.Passed {
		e.publishProposalState(id, proposal.StateVetted.String())
	}
	return result, nil
}

// StartProposalRound opens the commit-reveal round for the proposal's
// current milestone (or final review). Proposer-only.
func (e *Engine) StartProposalRound(
	id common.Hash,
	proposer common.Address,
) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("start_round", err) }()
	if err = e.notMigrated(); err != nil {
		return err
	}
	now := e.now()
	if _, err = e.requireParticipant(proposer, now); err != nil {
		return err
	}
	p, err := e.proposals.Get(id)
	if err != nil {
		return err
	}
	if p.Proposer != proposer {
		return dao.ErrNotProposer
	}
	if err = e.proposals.StartRound(id, now); err != nil {
		return err
	}
	if err = e.saveProposal(id); err != nil {
		return err
	}
	e.publishProposalState(id, proposal.StateVoting.String())
	return nil
}

// CommitVote records a sealed vote in the proposal's active round, weighted
// by the voter's effective stake at commit time. The nonce must strictly
// exceed the voter's last used nonce; it is consumed even if the commit is
// rejected.
func (e *Engine) CommitVote(
	id common.Hash,
	voter common.Address,
	sealed common.Hash,
	nonce uint64,
) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("commit_vote", err) }()
	if err = e.notMigrated(); err != nil {
		return err
	}
	now := e.now()
	p, err := e.requireParticipant(voter, now)
	if err != nil {
		return err
	}
	if err = e.nonces.Use(voter, nonce); err != nil {
		return err
	}
	if err = e.store.SaveNonce(voter, nonce); err != nil {
		return err
	}
	if err = e.proposals.Commit(
		id, voter, sealed, p.EffectiveStake, nonce, now,
	); err != nil {
		return err
	}
	return e.saveProposal(id)
}

// RevealVote opens a sealed vote in the proposal's active round. A valid
// reveal earns the voter quarter points.
func (e *Engine) RevealVote(
	id common.Hash,
	voter common.Address,
	choice bool,
	salt common.Hash,
) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("reveal_vote", err) }()
	if err = e.notMigrated(); err != nil {
		return err
	}
	now := e.now()
	if err = e.proposals.Reveal(id, voter, choice, salt, now); err != nil {
		return err
	}
	if err = e.awardVotePoints(voter, now); err != nil {
		return err
	}
	return e.saveProposal(id)
}

func (e *Engine) awardVotePoints(voter common.Address, now time.Time) error {
	quarter, err := e.clock.QuarterAt(now)
	if err != nil {
		return err
	}
	if p := e.ledger.Get(voter); p != nil {
		p.AddQuarterPoints(quarter, e.params.VoteQuarterPoint)
		return e.saveParticipant(voter)
	}
	return nil
}

// ClaimVotingResult closes the proposal's active round once its reveal
// window has elapsed. The weight base is total effective stake; the quorum
// scales with the plan's total funding ask.
func (e *Engine) ClaimVotingResult(
	id common.Hash,
) (result *voting.Result, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("claim_voting", err) }()
	if err = e.notMigrated(); err != nil {
		return nil, err
	}
	now := e.now()
	p, err := e.proposals.Get(id)
	if err != nil {
		return nil, err
	}
	minQuorum := voting.MinQuorum(
		e.ledger.TotalEffectiveStake(),
		e.params.VotingQuorum,
		p.Latest().TotalFunding(),
		e.config.treasuryVault.VaultBalance(),
	)
	result, err = e.proposals.ClaimRound(
		id, minQuorum, e.params.VotingQuota, now,
	)
	if err != nil {
		return nil, err
	}
	if err = e.saveProposal(id); err != nil {
		return nil, err
	}
	e.publishRoundClosed(id, "milestone", result)
	e.publishProposalState(id, p.State.String())
	return result, nil
}

// SetCompliance sets the PRL approval flag for one milestone. PRL-gated.
func (e *Engine) SetCompliance(
	caller common.Address,
	id common.Hash,
	milestone int,
	approved bool,
) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("set_compliance", err) }()
	if err = dao.RequireRole(e.config.roles, caller, dao.RolePRL); err != nil {
		return err
	}
	if err = e.proposals.SetCompliance(id, milestone, approved); err != nil {
		return err
	}
	return e.saveProposal(id)
}

// ClaimFunding releases the funds the proposer is currently owed from the
// treasury: the current milestone's allocation, or the final reward after
// completion.
func (e *Engine) ClaimFunding(
	id common.Hash,
	proposer common.Address,
) (amount uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("claim_funding", err) }()
	if err = e.notMigrated(); err != nil {
		return 0, err
	}
	now := e.now()
	amount, err = e.proposals.ClaimFunding(id, proposer, now)
	if err != nil {
		return 0, err
	}
	if err = e.config.treasuryVault.PayOut(proposer, amount); err != nil {
		return 0, fmt.Errorf("release funding: %w", err)
	}
	if err = e.saveProposal(id); err != nil {
		return 0, err
	}
	return amount, nil
}

// GetProposal returns the proposal with the given id
func (e *Engine) GetProposal(id common.Hash) (*proposal.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.proposals.Get(id)
}

// VisitProposals iterates proposals in submission order
func (e *Engine) VisitProposals(fn func(p *proposal.Proposal)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.proposals.Visit(fn)
}

// SubmitSpecial opens a special proposal to replace the governance
// parameter set, with its voting round starting immediately.
// Founder-gated.
func (e *Engine) SubmitSpecial(
	proposer common.Address,
	doc []byte,
	newParams dao.Params,
) (id common.Hash, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("submit_special", err) }()
	if err = e.notMigrated(); err != nil {
		return common.Hash{}, err
	}
	if err = dao.RequireRole(
		e.config.roles, proposer, dao.RoleFounder,
	); err != nil {
		return common.Hash{}, err
	}
	now := e.now()
	id, err = e.docs.Put(doc)
	if err != nil {
		return common.Hash{}, fmt.Errorf("store attestation: %w", err)
	}
	s, err := e.proposals.SubmitSpecial(id, proposer, newParams, now)
	if err != nil {
		return common.Hash{}, err
	}
	if err = e.store.SaveSpecial(s); err != nil {
		return common.Hash{}, err
	}
	return id, nil
}

// CommitSpecialVote records a sealed vote on a special proposal, weighted
// by locked stake.
func (e *Engine) CommitSpecialVote(
	id common.Hash,
	voter common.Address,
	sealed common.Hash,
	nonce uint64,
) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("commit_special", err) }()
	if err = e.notMigrated(); err != nil {
		return err
	}
	now := e.now()
	p, err := e.requireParticipant(voter, now)
	if err != nil {
		return err
	}
	if err = e.nonces.Use(voter, nonce); err != nil {
		return err
	}
	if err = e.store.SaveNonce(voter, nonce); err != nil {
		return err
	}
	if err = e.proposals.CommitSpecial(
		id, voter, sealed, p.LockedStake, nonce, now,
	); err != nil {
		return err
	}
	return e.saveSpecial(id)
}

// RevealSpecialVote opens a sealed vote on a special proposal. A valid
// reveal earns quarter points.
func (e *Engine) RevealSpecialVote(
	id common.Hash,
	voter common.Address,
	choice bool,
	salt common.Hash,
) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("reveal_special", err) }()
	if err = e.notMigrated(); err != nil {
		return err
	}
	now := e.now()
	if err = e.proposals.RevealSpecial(id, voter, choice, salt, now); err != nil {
		return err
	}
	if err = e.awardVotePoints(voter, now); err != nil {
		return err
	}
	return e.saveSpecial(id)
}

// ClaimSpecialResult closes a special proposal's round. On a pass the
// replacement parameter set takes effect immediately, including the epoch
// clock durations for subsequent quarters.
func (e *Engine) ClaimSpecialResult(
	id common.Hash,
) (result *voting.Result, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { e.metrics.observe("claim_special", err) }()
	if err = e.notMigrated(); err != nil {
		return nil, err
	}
	now := e.now()
	minQuorum := voting.MinQuorum(
		e.ledger.TotalLockedStake(),
		e.params.SpecialQuorum,
		0,
		0,
	)
	s, result, err := e.proposals.ClaimSpecial(
		id, minQuorum, e.params.SpecialQuota, now,
	)
	if err != nil {
		return nil, err
	}
	if result.Passed {
		e.params = s.NewParams
		e.clock.SetDurations(
			e.params.LockingPhaseDuration,
			e.params.QuarterDuration,
		)
		if err = e.proposals.MarkApplied(id); err != nil {
			return nil, err
		}
		if err = e.saveEngineState(); err != nil {
			return nil, err
		}
		e.config.logger.Info(
			"governance parameters replaced",
			"component", "engine",
			"special", id.Hex(),
		)
	}
	if err = e.saveSpecial(id); err != nil {
		return nil, err
	}
	e.publishRoundClosed(id, "special", result)
	return result, nil
}

// GetSpecial returns the special proposal with the given id
func (e *Engine) GetSpecial(id common.Hash) (*proposal.Special, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.proposals.GetSpecial(id)
}

func (e *Engine) saveSpecial(id common.Hash) error {
	s, err := e.proposals.GetSpecial(id)
	if err != nil {
		return err
	}
	return e.store.SaveSpecial(s)
}
