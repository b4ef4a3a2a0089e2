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
	"testing"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	roundStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	voterA     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	voterB     = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	saltA      = common.HexToHash("0x01")
	saltB      = common.HexToHash("0x02")
)

func testRound() *Round {
	return NewRound(roundStart, time.Hour, 30*time.Minute)
}

func TestCommitRevealIntegrity(t *testing.T) {
	r := testRound()

	sealed := SealVote(voterA, true, saltA)
	require.NoError(t, r.Commit(voterA, sealed, 100, 1, roundStart))

	inReveal := roundStart.Add(time.Hour + time.Minute)
	require.NoError(t, r.Reveal(voterA, true, saltA, inReveal))

	record := r.Record(voterA)
	require.NotNil(t, record)
	assert.True(t, record.Revealed)
	assert.True(t, record.Choice)
	assert.Equal(t, uint64(100), record.Weight)
}

func TestRevealHashMismatch(t *testing.T) {
	r := testRound()
	sealed := SealVote(voterA, true, saltA)
	require.NoError(t, r.Commit(voterA, sealed, 100, 1, roundStart))

	inReveal := roundStart.Add(time.Hour + time.Minute)
	// Wrong salt
	err := r.Reveal(voterA, true, saltB, inReveal)
	assert.ErrorIs(t, err, dao.ErrHashMismatch)
	// Wrong choice
	err = r.Reveal(voterA, false, saltA, inReveal)
	assert.ErrorIs(t, err, dao.ErrHashMismatch)
	// Correct reveal still accepted afterward
	require.NoError(t, r.Reveal(voterA, true, saltA, inReveal))
}

func TestDuplicateCommit(t *testing.T) {
	r := testRound()
	sealed := SealVote(voterA, true, saltA)
	require.NoError(t, r.Commit(voterA, sealed, 100, 1, roundStart))
	err := r.Commit(voterA, sealed, 100, 2, roundStart.Add(time.Minute))
	assert.ErrorIs(t, err, dao.ErrDuplicateCommit)
}

func TestCommitAfterWindow(t *testing.T) {
	r := testRound()
	sealed := SealVote(voterA, true, saltA)
	err := r.Commit(voterA, sealed, 100, 1, roundStart.Add(time.Hour))
	assert.ErrorIs(t, err, dao.ErrWrongPhase)
}

func TestRevealOutsideWindow(t *testing.T) {
	r := testRound()
	sealed := SealVote(voterA, true, saltA)
	require.NoError(t, r.Commit(voterA, sealed, 100, 1, roundStart))

	// Before the commit window closes
	err := r.Reveal(voterA, true, saltA, roundStart.Add(30*time.Minute))
	assert.ErrorIs(t, err, dao.ErrWrongPhase)
	// After the reveal window closes
	err = r.Reveal(voterA, true, saltA, roundStart.Add(2*time.Hour))
	assert.ErrorIs(t, err, dao.ErrWrongPhase)
}

func TestDoubleReveal(t *testing.T) {
	r := testRound()
	sealed := SealVote(voterA, true, saltA)
	require.NoError(t, r.Commit(voterA, sealed, 100, 1, roundStart))

	inReveal := roundStart.Add(time.Hour + time.Minute)
	require.NoError(t, r.Reveal(voterA, true, saltA, inReveal))
	err := r.Reveal(voterA, true, saltA, inReveal.Add(time.Minute))
	assert.ErrorIs(t, err, dao.ErrAlreadyRevealed)
}

func TestRevealWithoutCommit(t *testing.T) {
	r := testRound()
	inReveal := roundStart.Add(time.Hour + time.Minute)
	err := r.Reveal(voterB, true, saltB, inReveal)
	assert.ErrorIs(t, err, dao.ErrNotEligible)
}

func TestWeightSnapshottedAtCommit(t *testing.T) {
	r := testRound()
	sealed := SealVote(voterA, true, saltA)
	require.NoError(t, r.Commit(voterA, sealed, 100, 1, roundStart))

	// Weight recorded at commit time is what counts at reveal
	inReveal := roundStart.Add(time.Hour + time.Minute)
	require.NoError(t, r.Reveal(voterA, true, saltA, inReveal))

	result, err := r.Claim(0, dao.Ratio{Num: 30, Den: 100}, roundStart.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), result.ForWeight)
}

func TestClaimOutcome(t *testing.T) {
	r := testRound()
	require.NoError(
		t,
		r.Commit(voterA, SealVote(voterA, true, saltA), 700, 1, roundStart),
	)
	require.NoError(
		t,
		r.Commit(voterB, SealVote(voterB, false, saltB), 300, 1, roundStart),
	)

	inReveal := roundStart.Add(time.Hour + time.Minute)
	require.NoError(t, r.Reveal(voterA, true, saltA, inReveal))
	require.NoError(t, r.Reveal(voterB, false, saltB, inReveal))

	afterReveal := roundStart.Add(2 * time.Hour)

	// Claiming before the reveal window closes fails
	_, err := r.Claim(500, dao.Ratio{Num: 30, Den: 100}, inReveal)
	assert.ErrorIs(t, err, dao.ErrWrongPhase)

	result, err := r.Claim(500, dao.Ratio{Num: 30, Den: 100}, afterReveal)
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, uint64(700), result.ForWeight)
	assert.Equal(t, uint64(300), result.Against)
	assert.Equal(t, uint64(1000), result.Turnout)

	// Round is claimed exactly once
	_, err = r.Claim(500, dao.Ratio{Num: 30, Den: 100}, afterReveal)
	assert.ErrorIs(t, err, dao.ErrAlreadyClaimed)
}

func TestClaimFailsQuorum(t *testing.T) {
	r := testRound()
	require.NoError(
		t,
		r.Commit(voterA, SealVote(voterA, true, saltA), 100, 1, roundStart),
	)
	inReveal := roundStart.Add(time.Hour + time.Minute)
	require.NoError(t, r.Reveal(voterA, true, saltA, inReveal))

	result, err := r.Claim(500, dao.Ratio{Num: 30, Den: 100}, roundStart.Add(2*time.Hour))
	require.NoError(t, err)
	// Fails quorum but is still claimed, recorded as a fail
	assert.False(t, result.Passed)
	assert.Equal(t, RoundClaimed, r.PhaseAt(roundStart.Add(3*time.Hour)))
}

func TestNonceRegistry(t *testing.T) {
	n := NewNonceRegistry()

	require.NoError(t, n.Use(voterA, 1))
	require.NoError(t, n.Use(voterA, 2))
	// Equal nonce rejected
	assert.ErrorIs(t, n.Use(voterA, 2), dao.ErrNonceReused)
	// Lower nonce rejected
	assert.ErrorIs(t, n.Use(voterA, 1), dao.ErrNonceReused)
	// Gaps are fine
	require.NoError(t, n.Use(voterA, 10))
	// Separate voters have independent sequences
	require.NoError(t, n.Use(voterB, 1))
	assert.Equal(t, uint64(10), n.Last(voterA))
}

func TestDraftTallyRevote(t *testing.T) {
	d := NewDraftTally(roundStart, time.Hour)

	require.NoError(t, d.Vote(voterA, true, 100, roundStart))
	forW, against := d.Tally()
	assert.Equal(t, uint64(100), forW)
	assert.Equal(t, uint64(0), against)

	// Re-vote flips side and updates weight by delta
	require.NoError(t, d.Vote(voterA, false, 120, roundStart.Add(time.Minute)))
	forW, against = d.Tally()
	assert.Equal(t, uint64(0), forW)
	assert.Equal(t, uint64(120), against)

	require.NoError(t, d.Vote(voterB, true, 500, roundStart.Add(time.Minute)))
	forW, against = d.Tally()
	assert.Equal(t, uint64(500), forW)
	assert.Equal(t, uint64(120), against)
}

func TestDraftTallyClaim(t *testing.T) {
	d := NewDraftTally(roundStart, time.Hour)
	require.NoError(t, d.Vote(voterA, true, 500, roundStart))
	require.NoError(t, d.Vote(voterB, false, 100, roundStart))

	_, err := d.Claim(100, dao.Ratio{Num: 30, Den: 100}, roundStart.Add(time.Minute))
	assert.ErrorIs(t, err, dao.ErrWrongPhase)

	result, err := d.Claim(100, dao.Ratio{Num: 30, Den: 100}, roundStart.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, result.Passed)

	// Voting after close fails
	err = d.Vote(voterA, true, 500, roundStart.Add(2*time.Hour))
	assert.ErrorIs(t, err, dao.ErrAlreadyClaimed)
}
