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
	"sort"
	"time"

	"github.com/digixglobal/daoengine/dao"
	"github.com/digixglobal/daoengine/database/models"
	"github.com/digixglobal/daoengine/proposal"
	"github.com/digixglobal/daoengine/rewards"
	"github.com/digixglobal/daoengine/stake"
	"github.com/digixglobal/daoengine/voting"
	"github.com/ethereum/go-ethereum/common"
)

func participantToModel(p *stake.Participant) *models.Participant {
	return &models.Participant{
		Address:                 p.Address.Hex(),
		LockedStake:             p.LockedStake,
		EffectiveStake:          p.EffectiveStake,
		EffectiveModeratorStake: p.EffectiveModeratorStake,
		IsModerator:             p.IsModerator,
		Reputation:              p.Reputation,

		LastParticipatedQuarter:      p.LastParticipatedQuarter,
		LastQuarterRewardsUpdated:    p.LastQuarterRewardsUpdated,
		LastQuarterReputationUpdated: p.LastQuarterReputationUpdated,
		ClaimableReward:              p.ClaimableReward,
		RewardAccruedTime:            p.RewardAccruedTime,

		PendingQuarter:                   p.PendingQuarter,
		PendingEffectiveBalance:          p.PendingEffectiveBalance,
		PendingModeratorEffectiveBalance: p.PendingModeratorEffectiveBalance,

		QuarterPoints:          p.QuarterPoints,
		ModeratorQuarterPoints: p.ModeratorQuarterPoints,
	}
}

func participantFromModel(row *models.Participant) *stake.Participant {
	p := stake.NewParticipant(common.HexToAddress(row.Address))
	p.LockedStake = row.LockedStake
	p.EffectiveStake = row.EffectiveStake
	p.EffectiveModeratorStake = row.EffectiveModeratorStake
	p.IsModerator = row.IsModerator
	p.Reputation = row.Reputation
	p.LastParticipatedQuarter = row.LastParticipatedQuarter
	p.LastQuarterRewardsUpdated = row.LastQuarterRewardsUpdated
	p.LastQuarterReputationUpdated = row.LastQuarterReputationUpdated
	p.ClaimableReward = row.ClaimableReward
	p.RewardAccruedTime = row.RewardAccruedTime
	p.PendingQuarter = row.PendingQuarter
	p.PendingEffectiveBalance = row.PendingEffectiveBalance
	p.PendingModeratorEffectiveBalance = row.PendingModeratorEffectiveBalance
	if row.QuarterPoints != nil {
		p.QuarterPoints = row.QuarterPoints
	}
	if row.ModeratorQuarterPoints != nil {
		p.ModeratorQuarterPoints = row.ModeratorQuarterPoints
	}
	return p
}

func quarterInfoToModel(info *rewards.QuarterInfo) *models.QuarterInfo {
	return &models.QuarterInfo{
		Quarter:                      info.Quarter,
		MinimumQuarterPoint:          info.MinimumQuarterPoint,
		ModeratorMinimumQuarterPoint: info.ModeratorMinimumQuarterPoint,
		QuarterPointScale:            info.QuarterPointScale,
		ReputationPointScale:         info.ReputationPointScale,
		ModeratorPortionNum:          info.ModeratorRewardsPortion.Num,
		ModeratorPortionDen:          info.ModeratorRewardsPortion.Den,
		TotalEffectiveStake:          info.TotalEffectiveStake,
		TotalModeratorEffectiveStake: info.TotalModeratorEffectiveStake,
		RewardsPool:                  info.RewardsPool,
		DistributionTime:             info.DistributionTime,
		CumulativeRewards:            info.CumulativeRewards,
	}
}

func quarterInfoFromModel(row *models.QuarterInfo) *rewards.QuarterInfo {
	return &rewards.QuarterInfo{
		Quarter:                      row.Quarter,
		MinimumQuarterPoint:          row.MinimumQuarterPoint,
		ModeratorMinimumQuarterPoint: row.ModeratorMinimumQuarterPoint,
		QuarterPointScale:            row.QuarterPointScale,
		ReputationPointScale:         row.ReputationPointScale,
		ModeratorRewardsPortion: dao.Ratio{
			Num: row.ModeratorPortionNum,
			Den: row.ModeratorPortionDen,
		},
		TotalEffectiveStake:          row.TotalEffectiveStake,
		TotalModeratorEffectiveStake: row.TotalModeratorEffectiveStake,
		RewardsPool:                  row.RewardsPool,
		DistributionTime:             row.DistributionTime,
		CumulativeRewards:            row.CumulativeRewards,
	}
}

func resultToDoc(result *voting.Result) *models.ResultDoc {
	if result == nil {
		return nil
	}
	return &models.ResultDoc{
		Passed:    result.Passed,
		ForWeight: result.ForWeight,
		Against:   result.Against,
		Turnout:   result.Turnout,
		MinQuorum: result.MinQuorum,
	}
}

func resultFromDoc(doc *models.ResultDoc) *voting.Result {
	if doc == nil {
		return nil
	}
	return &voting.Result{
		Passed:    doc.Passed,
		ForWeight: doc.ForWeight,
		Against:   doc.Against,
		Turnout:   doc.Turnout,
		MinQuorum: doc.MinQuorum,
	}
}

func roundToDoc(round *voting.Round) *models.RoundDoc {
	if round == nil {
		return nil
	}
	records := round.Records()
	recordDocs := make([]models.VoteRecordDoc, 0, len(records))
	for voter, record := range records {
		recordDocs = append(recordDocs, models.VoteRecordDoc{
			Voter:      voter.Hex(),
			CommitHash: record.CommitHash.Hex(),
			Choice:     record.Choice,
			Revealed:   record.Revealed,
			Weight:     record.Weight,
			Nonce:      record.Nonce,
		})
	}
	// Stable ordering keeps repeated saves byte-identical
	sort.Slice(recordDocs, func(i, j int) bool {
		return recordDocs[i].Voter < recordDocs[j].Voter
	})
	return &models.RoundDoc{
		CommitEnds: round.CommitEnds(),
		RevealEnds: round.RevealEnds(),
		Records:    recordDocs,
		Result:     resultToDoc(round.Result()),
	}
}

func roundFromDoc(doc *models.RoundDoc) *voting.Round {
	if doc == nil {
		return nil
	}
	round := voting.RestoreRound(doc.CommitEnds, doc.RevealEnds)
	for _, record := range doc.Records {
		round.RestoreRecord(
			common.HexToAddress(record.Voter),
			&voting.VoteRecord{
				CommitHash: common.HexToHash(record.CommitHash),
				Choice:     record.Choice,
				Revealed:   record.Revealed,
				Weight:     record.Weight,
				Nonce:      record.Nonce,
			},
		)
	}
	if result := resultFromDoc(doc.Result); result != nil {
		round.RestoreResult(result)
	}
	return round
}

func draftToDoc(draft *voting.DraftTally) *models.DraftDoc {
	if draft == nil {
		return nil
	}
	votes := draft.Votes()
	voteDocs := make([]models.DraftVoteDoc, 0, len(votes))
	for voter, vote := range votes {
		voteDocs = append(voteDocs, models.DraftVoteDoc{
			Voter:  voter.Hex(),
			Choice: vote.Choice,
			Weight: vote.Weight,
		})
	}
	sort.Slice(voteDocs, func(i, j int) bool {
		return voteDocs[i].Voter < voteDocs[j].Voter
	})
	return &models.DraftDoc{
		Closes: draft.Closes(),
		Votes:  voteDocs,
		Result: resultToDoc(draft.Result()),
	}
}

func draftFromDoc(doc *models.DraftDoc) *voting.DraftTally {
	if doc == nil {
		return nil
	}
	draft := voting.RestoreDraftTally(doc.Closes)
	for _, vote := range doc.Votes {
		draft.RestoreVote(
			common.HexToAddress(vote.Voter),
			vote.Choice,
			vote.Weight,
		)
	}
	if result := resultFromDoc(doc.Result); result != nil {
		draft.RestoreResult(result)
	}
	return draft
}

func versionToDoc(v *proposal.Version) models.VersionDoc {
	durations := make([]int64, 0, len(v.MilestoneDurations))
	for _, d := range v.MilestoneDurations {
		durations = append(durations, int64(d))
	}
	return models.VersionDoc{
		DocHash:            v.DocHash.Hex(),
		MilestoneDurations: durations,
		MilestoneFundings:  v.MilestoneFundings,
		FinalReward:        v.FinalReward,
		SubmittedAt:        v.SubmittedAt,
	}
}

func versionFromDoc(doc *models.VersionDoc) *proposal.Version {
	durations := make([]time.Duration, 0, len(doc.MilestoneDurations))
	for _, d := range doc.MilestoneDurations {
		durations = append(durations, time.Duration(d))
	}
	return &proposal.Version{
		DocHash:            common.HexToHash(doc.DocHash),
		MilestoneDurations: durations,
		MilestoneFundings:  doc.MilestoneFundings,
		FinalReward:        doc.FinalReward,
		SubmittedAt:        doc.SubmittedAt,
	}
}

func proposalToModel(p *proposal.Proposal) *models.Proposal {
	versionDocs := make([]models.VersionDoc, 0, len(p.Versions))
	for _, v := range p.Versions {
		versionDocs = append(versionDocs, versionToDoc(v))
	}
	return &models.Proposal{
		ProposalId:         p.ID.Hex(),
		Proposer:           p.Proposer.Hex(),
		Endorser:           p.Endorser.Hex(),
		State:              int(p.State),
		CurrentMilestone:   p.CurrentMilestone,
		Compliance:         p.Compliance,
		ClaimedCurrent:     p.ClaimedCurrent,
		FundsClaimed:       p.FundsClaimed,
		FinalRewardClaimed: p.FinalRewardClaimed,
		Versions:           versionDocs,
		Draft:              draftToDoc(p.Draft),
		Round:              roundToDoc(p.Round),
		CreatedAt:          p.CreatedAt,
		FundedAt:           p.FundedAt,
	}
}

func proposalFromModel(row *models.Proposal) *proposal.Proposal {
	versions := make([]*proposal.Version, 0, len(row.Versions))
	for i := range row.Versions {
		versions = append(versions, versionFromDoc(&row.Versions[i]))
	}
	return &proposal.Proposal{
		ID:                 common.HexToHash(row.ProposalId),
		Proposer:           common.HexToAddress(row.Proposer),
		Endorser:           common.HexToAddress(row.Endorser),
		State:              proposal.State(row.State),
		Versions:           versions,
		CurrentMilestone:   row.CurrentMilestone,
		Compliance:         row.Compliance,
		ClaimedCurrent:     row.ClaimedCurrent,
		FundsClaimed:       row.FundsClaimed,
		FinalRewardClaimed: row.FinalRewardClaimed,
		Draft:              draftFromDoc(row.Draft),
		Round:              roundFromDoc(row.Round),
		CreatedAt:          row.CreatedAt,
		FundedAt:           row.FundedAt,
	}
}
