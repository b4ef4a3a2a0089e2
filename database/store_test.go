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

package database

import (
	"testing"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/digixglobal/daoengine/proposal"
	"github.com/digixglobal/daoengine/rewards"
	"github.com/digixglobal/daoengine/stake"
	"github.com/digixglobal/daoengine/voting"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testAddrA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testAddrB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testDoc   = common.HexToHash(
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	)
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := New("", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		//nolint:errcheck
		store.Close()
	})
	return store
}

func TestParticipantRoundTrip(t *testing.T) {
	store := testStore(t)
	p := stake.NewParticipant(testAddrA)
	p.LockedStake = 50_000_000_000
	p.EffectiveStake = 48_000_000_000
	p.IsModerator = true
	p.EffectiveModeratorStake = 48_000_000_000
	p.Reputation = 125
	p.LastParticipatedQuarter = 4
	p.LastQuarterRewardsUpdated = 3
	p.LastQuarterReputationUpdated = 3
	p.ClaimableReward = 1_234_567
	p.RewardAccruedTime = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	p.PendingQuarter = 4
	p.PendingEffectiveBalance = 47_000_000_000
	p.AddQuarterPoints(4, 7)
	p.AddModeratorQuarterPoints(4, 3)
	require.NoError(t, store.SaveParticipant(p))

	loaded, err := store.Participants()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, p, loaded[0])
}

func TestParticipantUpsert(t *testing.T) {
	store := testStore(t)
	p := stake.NewParticipant(testAddrA)
	p.LockedStake = 100
	require.NoError(t, store.SaveParticipant(p))
	p.LockedStake = 200
	p.Reputation = 35
	require.NoError(t, store.SaveParticipant(p))

	loaded, err := store.Participants()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, uint64(200), loaded[0].LockedStake)
	assert.Equal(t, uint64(35), loaded[0].Reputation)
}

func TestQuarterInfoRoundTrip(t *testing.T) {
	store := testStore(t)
	info := &rewards.QuarterInfo{
		Quarter:                      3,
		MinimumQuarterPoint:          3,
		ModeratorMinimumQuarterPoint: 3,
		QuarterPointScale:            400,
		ReputationPointScale:         2000,
		ModeratorRewardsPortion:      dao.Ratio{Num: 5, Den: 100},
		TotalEffectiveStake:          900_000_000_000,
		TotalModeratorEffectiveStake: 120_000_000_000,
		RewardsPool:                  1_000_000_000,
		DistributionTime:             time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		CumulativeRewards:            2_500_000_000,
	}
	require.NoError(t, store.SaveQuarterInfo(info))

	loaded, err := store.QuarterInfos()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, info, loaded[0])
}

func TestCursorRoundTrip(t *testing.T) {
	store := testStore(t)

	// No cursor persisted yet
	loaded, err := store.Cursor()
	require.NoError(t, err)
	assert.Nil(t, loaded)

	cursor := &rewards.Cursor{
		Quarter:               5,
		LastAddress:           testAddrB,
		Visited:               37,
		SumEffective:          400_000_000_000,
		SumModeratorEffective: 25_000_000_000,
	}
	require.NoError(t, store.SaveCursor(cursor))
	loaded, err = store.Cursor()
	require.NoError(t, err)
	assert.Equal(t, cursor, loaded)

	// Saving again overwrites the single row
	cursor.Visited = 50
	require.NoError(t, store.SaveCursor(cursor))
	loaded, err = store.Cursor()
	require.NoError(t, err)
	assert.Equal(t, 50, loaded.Visited)

	require.NoError(t, store.ClearCursor())
	loaded, err = store.Cursor()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestProposalRoundTrip(t *testing.T) {
	store := testStore(t)
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	p := &proposal.Proposal{
		ID:       testDoc,
		Proposer: testAddrA,
		Endorser: testAddrB,
		State:    proposal.StateVoting,
		Versions: []*proposal.Version{
			{
				DocHash: testDoc,
				MilestoneDurations: []time.Duration{
					30 * 24 * time.Hour,
					45 * 24 * time.Hour,
				},
				MilestoneFundings: []uint64{100_000_000_000, 50_000_000_000},
				FinalReward:       10_000_000_000,
				SubmittedAt:       start,
			},
		},
		CurrentMilestone: 1,
		Compliance:       []bool{true, false},
		FundsClaimed:     100_000_000_000,
		CreatedAt:        start,
		FundedAt:         start.Add(10 * 24 * time.Hour),
	}

	// Attach a claimed draft and a round with mixed commit/reveal state
	p.Draft = voting.NewDraftTally(start, 7*24*time.Hour)
	require.NoError(t, p.Draft.Vote(testAddrB, true, 42, start.Add(time.Hour)))
	_, err := p.Draft.Claim(10, dao.Ratio{Num: 1, Den: 2}, start.Add(8*24*time.Hour))
	require.NoError(t, err)

	p.Round = voting.NewRound(start, 14*24*time.Hour, 7*24*time.Hour)
	salt := common.HexToHash("0x01")
	sealed := voting.SealVote(testAddrA, true, salt)
	require.NoError(t, p.Round.Commit(testAddrA, sealed, 77, 1, start.Add(time.Hour)))
	require.NoError(t, p.Round.Commit(
		testAddrB,
		voting.SealVote(testAddrB, false, salt),
		33,
		1,
		start.Add(time.Hour),
	))
	require.NoError(t, p.Round.Reveal(
		testAddrA, true, salt, start.Add(15*24*time.Hour),
	))

	require.NoError(t, store.SaveProposal(p))
	loaded, err := store.Proposals()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0]

	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.State, got.State)
	assert.Equal(t, p.Versions, got.Versions)
	assert.Equal(t, p.Compliance, got.Compliance)
	assert.Equal(t, p.FundsClaimed, got.FundsClaimed)
	assert.Equal(t, p.FundedAt, got.FundedAt)

	// Draft came back claimed with its result intact
	require.NotNil(t, got.Draft)
	require.NotNil(t, got.Draft.Result())
	assert.Equal(t, p.Draft.Result(), got.Draft.Result())
	assert.Equal(t, p.Draft.Votes(), got.Draft.Votes())

	// Round came back with records and running tallies rebuilt
	require.NotNil(t, got.Round)
	assert.Equal(t, p.Round.CommitEnds(), got.Round.CommitEnds())
	assert.Equal(t, p.Round.RevealEnds(), got.Round.RevealEnds())
	assert.Equal(t, p.Round.Record(testAddrA), got.Round.Record(testAddrA))
	assert.Equal(t, p.Round.Record(testAddrB), got.Round.Record(testAddrB))

	// The restored round still accepts the outstanding reveal
	require.NoError(t, got.Round.Reveal(
		testAddrB, false, salt, start.Add(15*24*time.Hour),
	))
	result, err := got.Round.Claim(
		10, dao.Ratio{Num: 1, Den: 2}, start.Add(22*24*time.Hour),
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), result.ForWeight)
	assert.Equal(t, uint64(33), result.Against)
}

func TestSpecialRoundTrip(t *testing.T) {
	store := testStore(t)
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	params := dao.DefaultParams()
	params.MinimumQuarterPoint = 5

	sp := &proposal.Special{
		ID:        testDoc,
		Proposer:  testAddrA,
		NewParams: params,
		Round:     voting.NewRound(start, 9*24*time.Hour, 2*24*time.Hour),
		CreatedAt: start,
		Passed:    true,
	}
	require.NoError(t, store.SaveSpecial(sp))

	loaded, err := store.Specials()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, sp.ID, loaded[0].ID)
	assert.Equal(t, sp.NewParams, loaded[0].NewParams)
	assert.True(t, loaded[0].Passed)
	assert.False(t, loaded[0].Applied)
	assert.Equal(t, sp.Round.CommitEnds(), loaded[0].Round.CommitEnds())
}

func TestNonceRoundTrip(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.SaveNonce(testAddrA, 3))
	require.NoError(t, store.SaveNonce(testAddrB, 9))
	require.NoError(t, store.SaveNonce(testAddrA, 4))

	loaded, err := store.Nonces()
	require.NoError(t, err)
	assert.Equal(
		t,
		map[common.Address]uint64{testAddrA: 4, testAddrB: 9},
		loaded,
	)
}

func TestEngineStateRoundTrip(t *testing.T) {
	store := testStore(t)

	_, _, _, found, err := store.EngineState()
	require.NoError(t, err)
	assert.False(t, found)

	params := dao.DefaultParams()
	params.DraftVotingDuration = 10 * 24 * time.Hour
	require.NoError(t, store.SaveEngineState(params, true, testAddrB))

	loaded, migrated, successor, found, err := store.EngineState()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, params, loaded)
	assert.True(t, migrated)
	assert.Equal(t, testAddrB, successor)
}
