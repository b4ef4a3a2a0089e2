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

// Package docstore is the content-addressed blob store for proposal
// attestation documents. Documents are keyed by the keccak-256 hash of their
// content, so the identifier carried by a proposal commits to the exact
// document bytes.
package docstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/digixglobal/daoengine/dao"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	defaultValueLogFileSize = 64 << 20
	defaultValueThreshold   = 1 << 10
)

// Store holds attestation documents in badger. Data is not persisted when
// no data directory is configured.
type Store struct {
	logger    *slog.Logger
	db        *badger.DB
	gcTicker  *time.Ticker
	gcStopCh  chan struct{}
	gcWg      sync.WaitGroup
	dataDir   string
	gcEnabled bool
}

// New creates a document store under dataDir, or an in-memory store when
// dataDir is empty.
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s := &Store{
		logger:  logger,
		dataDir: dataDir,
	}
	var db *badger.DB
	var err error
	if dataDir == "" {
		// No dataDir, use in-memory config
		badgerOpts := badger.DefaultOptions("").
			WithLogger(newBadgerLogger(logger)).
			// The default INFO logging is a bit verbose
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true).
			WithValueThreshold(defaultValueThreshold)
		db, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		docDir := filepath.Join(dataDir, "docs")
		badgerOpts := badger.DefaultOptions(docDir).
			WithLogger(newBadgerLogger(logger)).
			WithLoggingLevel(badger.WARNING).
			WithValueLogFileSize(defaultValueLogFileSize).
			WithValueThreshold(defaultValueThreshold).
			WithCompression(options.Snappy)
		db, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
		s.gcEnabled = true
	}
	s.db = db
	if s.gcEnabled {
		s.gcTicker = time.NewTicker(5 * time.Minute)
		s.gcStopCh = make(chan struct{})
		s.gcWg.Add(1)
		go s.valueLogGc(s.gcTicker, s.gcStopCh)
	}
	return s, nil
}

func (s *Store) valueLogGc(t *time.Ticker, stop <-chan struct{}) {
	defer s.gcWg.Done()
	for {
		select {
		case <-t.C:
		again:
			err := s.db.RunValueLogGC(0.5)
			if err != nil {
				// Log any actual errors
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn(
						fmt.Sprintf("doc store: GC failure: %s", err),
						"component", "docstore",
					)
				}
			} else {
				// Run it again if it just ran successfully
				goto again
			}
		case <-stop:
			return
		}
	}
}

// Close stops the GC goroutine and closes the database
func (s *Store) Close() error {
	if s.gcTicker != nil {
		s.gcTicker.Stop()
		if s.gcStopCh != nil {
			close(s.gcStopCh)
			s.gcStopCh = nil
		}
		s.gcWg.Wait()
		s.gcTicker = nil
	}
	return s.db.Close()
}

// Put stores content and returns its content hash. Storing the same content
// twice is a no-op yielding the same identifier.
func (s *Store) Put(content []byte) (common.Hash, error) {
	if len(content) == 0 {
		return common.Hash{}, fmt.Errorf(
			"%w: empty document", dao.ErrZeroAmount,
		)
	}
	id := crypto.Keccak256Hash(content)
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(id.Bytes(), content)
	})
	if err != nil {
		return common.Hash{}, err
	}
	return id, nil
}

// Get retrieves the document with the given content hash. The content is
// verified against the identifier on the way out so storage corruption
// cannot go unnoticed.
func (s *Store) Get(id common.Hash) ([]byte, error) {
	var content []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(id.Bytes())
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: document %s", dao.ErrNotFound, id.Hex())
			}
			return err
		}
		content, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(crypto.Keccak256(content), id.Bytes()) {
		return nil, fmt.Errorf("%w: document %s", dao.ErrHashMismatch, id.Hex())
	}
	return content, nil
}

// Has reports whether a document with the given content hash is stored
func (s *Store) Has(id common.Hash) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(id.Bytes())
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
