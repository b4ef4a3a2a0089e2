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
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/digixglobal/daoengine/voting"
	"github.com/ethereum/go-ethereum/common"
)

// Special is a founder-submitted proposal to replace the governance
// parameter set. It skips endorsement and draft voting: a commit-reveal
// round opens immediately, votable by every participant and weighted by
// locked stake.
type Special struct {
	ID        common.Hash
	Proposer  common.Address
	NewParams dao.Params
	Round     *voting.Round
	CreatedAt time.Time
	// Passed is set when the round is claimed with a winning outcome;
	// Applied when the engine has swapped the parameter set in
	Passed  bool
	Applied bool
}

// GetSpecial returns the special proposal with the given id
func (m *Machine) GetSpecial(id common.Hash) (*Special, error) {
	s, ok := m.specials.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: special proposal %s", dao.ErrNotFound, id.Hex())
	}
	return s, nil
}

// VisitSpecials iterates special proposals in submission order
func (m *Machine) VisitSpecials(fn func(s *Special)) {
	for el := m.specials.Front(); el != nil; el = el.Next() {
		fn(el.Value)
	}
}

// SubmitSpecial opens a special proposal and its voting round. Founder
// gating is the caller's responsibility; the replacement parameter set
// must validate before it is accepted for voting.
func (m *Machine) SubmitSpecial(
	id common.Hash,
	proposer common.Address,
	newParams dao.Params,
	now time.Time,
) (*Special, error) {
	if err := newParams.Validate(); err != nil {
		return nil, fmt.Errorf("special proposal params: %w", err)
	}
	if _, ok := m.specials.Get(id); ok {
		return nil, fmt.Errorf(
			"%w: special proposal %s",
			dao.ErrAlreadyExists, id.Hex(),
		)
	}
	params := m.params()
	s := &Special{
		ID:        id,
		Proposer:  proposer,
		NewParams: newParams,
		Round: voting.NewRound(
			now,
			params.SpecialCommitDuration,
			params.SpecialRevealDuration,
		),
		CreatedAt: now,
	}
	m.specials.Set(id, s)
	m.logger.Info(
		"special proposal submitted",
		"component", "proposal",
		"id", id.Hex(),
		"proposer", proposer.Hex(),
	)
	return s, nil
}

// CommitSpecial records a sealed vote on a special proposal
func (m *Machine) CommitSpecial(
	id common.Hash,
	voter common.Address,
	sealed common.Hash,
	weight uint64,
	nonce uint64,
	now time.Time,
) error {
	s, err := m.GetSpecial(id)
	if err != nil {
		return err
	}
	return s.Round.Commit(voter, sealed, weight, nonce, now)
}

// RevealSpecial opens a sealed vote on a special proposal
func (m *Machine) RevealSpecial(
	id common.Hash,
	voter common.Address,
	choice bool,
	salt common.Hash,
	now time.Time,
) error {
	s, err := m.GetSpecial(id)
	if err != nil {
		return err
	}
	return s.Round.Reveal(voter, choice, salt, now)
}

// ClaimSpecial closes a special proposal's round. The caller applies the
// replacement parameter set when the result passed, then marks it applied.
func (m *Machine) ClaimSpecial(
	id common.Hash,
	minQuorum uint64,
	quota dao.Ratio,
	now time.Time,
) (*Special, *voting.Result, error) {
	s, err := m.GetSpecial(id)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.Round.Claim(minQuorum, quota, now)
	if err != nil {
		return nil, nil, err
	}
	s.Passed = result.Passed
	m.logger.Info(
		"special proposal claimed",
		"component", "proposal",
		"id", id.Hex(),
		"passed", result.Passed,
		"turnout", result.Turnout,
	)
	return s, result, nil
}

// MarkApplied records that a passed special proposal's parameter set is
// now in force
func (m *Machine) MarkApplied(id common.Hash) error {
	s, err := m.GetSpecial(id)
	if err != nil {
		return err
	}
	if !s.Passed {
		return fmt.Errorf(
			"%w: special proposal did not pass",
			dao.ErrWrongState,
		)
	}
	s.Applied = true
	return nil
}

// RestoreSpecial reinstates a persisted special proposal at startup
func (m *Machine) RestoreSpecial(s *Special) {
	m.specials.Set(s.ID, s)
}
