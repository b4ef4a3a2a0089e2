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

// Package database persists the engine's entities (participants, quarter
// records, proposals, vote rounds, the accrual cursor) in a SQLite metadata
// store so an interrupted boundary pass resumes across restarts.
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/digixglobal/daoengine/dao"
	"github.com/digixglobal/daoengine/database/models"
	"github.com/digixglobal/daoengine/proposal"
	"github.com/digixglobal/daoengine/rewards"
	"github.com/digixglobal/daoengine/stake"
	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store is the SQLite-backed metadata store.
type Store struct {
	logger  *slog.Logger
	db      *gorm.DB
	dataDir string
}

// New creates a metadata store. Uses an in-memory database when dataDir is
// empty, which is useful for dev mode and testing.
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var db *gorm.DB
	var err error
	if dataDir == "" {
		db, err = gorm.Open(
			sqlite.Open("file::memory:?cache=shared"),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dbPath := filepath.Join(dataDir, "metadata.sqlite")
		// WAL journal mode, disable sync on write
		connOpts := "_pragma=journal_mode(WAL)&_pragma=sync(OFF)&_pragma=cache_size(-50000)"
		db, err = gorm.Open(
			sqlite.Open(fmt.Sprintf("file:%s?%s", dbPath, connOpts)),
			&gorm.Config{
				Logger:                 gormlogger.Discard,
				SkipDefaultTransaction: true,
			},
		)
		if err != nil {
			return nil, err
		}
	}
	s := &Store{
		logger:  logger,
		db:      db,
		dataDir: dataDir,
	}
	for _, model := range models.MigrateModels {
		if err := s.db.AutoMigrate(model); err != nil {
			return nil, fmt.Errorf("create table schema: %w", err)
		}
	}
	return s, nil
}

// DataDir returns the path to the data directory used for storage
func (s *Store) DataDir() string {
	return s.dataDir
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveParticipant upserts one participant record
func (s *Store) SaveParticipant(p *stake.Participant) error {
	row := participantToModel(p)
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		UpdateAll: true,
	}).Create(row)
	return result.Error
}

// Participants loads every persisted participant in insertion order
func (s *Store) Participants() ([]*stake.Participant, error) {
	var rows []models.Participant
	if result := s.db.Order("id").Find(&rows); result.Error != nil {
		return nil, result.Error
	}
	out := make([]*stake.Participant, 0, len(rows))
	for i := range rows {
		out = append(out, participantFromModel(&rows[i]))
	}
	return out, nil
}

// SaveQuarterInfo upserts one finalized quarter record
func (s *Store) SaveQuarterInfo(info *rewards.QuarterInfo) error {
	row := quarterInfoToModel(info)
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "quarter"}},
		UpdateAll: true,
	}).Create(row)
	return result.Error
}

// QuarterInfos loads every finalized quarter record
func (s *Store) QuarterInfos() ([]*rewards.QuarterInfo, error) {
	var rows []models.QuarterInfo
	if result := s.db.Order("quarter").Find(&rows); result.Error != nil {
		return nil, result.Error
	}
	out := make([]*rewards.QuarterInfo, 0, len(rows))
	for i := range rows {
		out = append(out, quarterInfoFromModel(&rows[i]))
	}
	return out, nil
}

// SaveCursor persists the in-progress pass cursor (single row)
func (s *Store) SaveCursor(c *rewards.Cursor) error {
	row := &models.AccrualCursor{
		ID:                    1,
		Quarter:               c.Quarter,
		LastAddress:           c.LastAddress.Hex(),
		Visited:               c.Visited,
		SumEffective:          c.SumEffective,
		SumModeratorEffective: c.SumModeratorEffective,
	}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row)
	return result.Error
}

// ClearCursor removes the persisted cursor after a pass completes
func (s *Store) ClearCursor() error {
	result := s.db.Where("id = ?", 1).Delete(&models.AccrualCursor{})
	return result.Error
}

// Cursor loads the persisted pass cursor, or nil when no pass was in
// progress
func (s *Store) Cursor() (*rewards.Cursor, error) {
	var row models.AccrualCursor
	result := s.db.First(&row, 1)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &rewards.Cursor{
		Quarter:               row.Quarter,
		LastAddress:           common.HexToAddress(row.LastAddress),
		Visited:               row.Visited,
		SumEffective:          row.SumEffective,
		SumModeratorEffective: row.SumModeratorEffective,
	}, nil
}

// SaveProposal upserts one proposal with its versions, draft tally and
// active round
func (s *Store) SaveProposal(p *proposal.Proposal) error {
	row := proposalToModel(p)
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "proposal_id"}},
		UpdateAll: true,
	}).Create(row)
	return result.Error
}

// Proposals loads every persisted proposal in submission order
func (s *Store) Proposals() ([]*proposal.Proposal, error) {
	var rows []models.Proposal
	if result := s.db.Order("id").Find(&rows); result.Error != nil {
		return nil, result.Error
	}
	out := make([]*proposal.Proposal, 0, len(rows))
	for i := range rows {
		out = append(out, proposalFromModel(&rows[i]))
	}
	return out, nil
}

// SaveSpecial upserts one special proposal
func (s *Store) SaveSpecial(sp *proposal.Special) error {
	paramsJson, err := json.Marshal(sp.NewParams)
	if err != nil {
		return fmt.Errorf("marshal special proposal params: %w", err)
	}
	row := &models.SpecialProposal{
		ProposalId: sp.ID.Hex(),
		Proposer:   sp.Proposer.Hex(),
		NewParams:  paramsJson,
		Round:      roundToDoc(sp.Round),
		CreatedAt:  sp.CreatedAt,
		Passed:     sp.Passed,
		Applied:    sp.Applied,
	}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "proposal_id"}},
		UpdateAll: true,
	}).Create(row)
	return result.Error
}

// Specials loads every persisted special proposal in submission order
func (s *Store) Specials() ([]*proposal.Special, error) {
	var rows []models.SpecialProposal
	if result := s.db.Order("id").Find(&rows); result.Error != nil {
		return nil, result.Error
	}
	out := make([]*proposal.Special, 0, len(rows))
	for i := range rows {
		var params dao.Params
		if err := json.Unmarshal(rows[i].NewParams, &params); err != nil {
			return nil, fmt.Errorf("unmarshal special proposal params: %w", err)
		}
		out = append(out, &proposal.Special{
			ID:        common.HexToHash(rows[i].ProposalId),
			Proposer:  common.HexToAddress(rows[i].Proposer),
			NewParams: params,
			Round:     roundFromDoc(rows[i].Round),
			CreatedAt: rows[i].CreatedAt,
			Passed:    rows[i].Passed,
			Applied:   rows[i].Applied,
		})
	}
	return out, nil
}

// SaveNonce upserts one voter's replay-guard watermark
func (s *Store) SaveNonce(voter common.Address, last uint64) error {
	row := &models.VoterNonce{Voter: voter.Hex(), Last: last}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "voter"}},
		UpdateAll: true,
	}).Create(row)
	return result.Error
}

// Nonces loads every voter's last used nonce
func (s *Store) Nonces() (map[common.Address]uint64, error) {
	var rows []models.VoterNonce
	if result := s.db.Find(&rows); result.Error != nil {
		return nil, result.Error
	}
	out := make(map[common.Address]uint64, len(rows))
	for _, row := range rows {
		out[common.HexToAddress(row.Voter)] = row.Last
	}
	return out, nil
}

// SaveEngineState persists the active parameter set and migration state
// (single row)
func (s *Store) SaveEngineState(
	params dao.Params,
	migrated bool,
	successor common.Address,
) error {
	paramsJson, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	row := &models.EngineState{
		ID:        1,
		Params:    paramsJson,
		Migrated:  migrated,
		Successor: successor.Hex(),
	}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row)
	return result.Error
}

// EngineState loads the persisted engine-wide state. The boolean reports
// whether any state was persisted.
func (s *Store) EngineState() (dao.Params, bool, common.Address, bool, error) {
	var row models.EngineState
	result := s.db.First(&row, 1)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return dao.Params{}, false, common.Address{}, false, nil
		}
		return dao.Params{}, false, common.Address{}, false, result.Error
	}
	var params dao.Params
	if err := json.Unmarshal(row.Params, &params); err != nil {
		return dao.Params{}, false, common.Address{}, false, fmt.Errorf(
			"unmarshal params: %w", err,
		)
	}
	return params, row.Migrated, common.HexToAddress(row.Successor), true, nil
}
