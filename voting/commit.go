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
	"sync"

	"github.com/digixglobal/daoengine/dao"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SealVote produces the commitment hash for a vote:
// keccak256(voter || choice || salt). The voter address is bound into the
// hash so a commitment cannot be replayed by another voter.
func SealVote(voter common.Address, choice bool, salt common.Hash) common.Hash {
	var choiceByte byte
	if choice {
		choiceByte = 1
	}
	return crypto.Keccak256Hash(
		voter.Bytes(),
		[]byte{choiceByte},
		salt.Bytes(),
	)
}

// NonceRegistry tracks the last nonce used by each voter across all of that
// voter's commits. A commit is accepted only with a nonce strictly greater
// than the last used one.
type NonceRegistry struct {
	mu   sync.Mutex
	last map[common.Address]uint64
}

func NewNonceRegistry() *NonceRegistry {
	return &NonceRegistry{
		last: make(map[common.Address]uint64),
	}
}

// Use consumes nonce for voter, failing with ErrNonceReused if it does not
// exceed the voter's last used nonce.
func (n *NonceRegistry) Use(voter common.Address, nonce uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if nonce <= n.last[voter] {
		return fmt.Errorf(
			"%w: nonce %d, last used %d",
			dao.ErrNonceReused,
			nonce,
			n.last[voter],
		)
	}
	n.last[voter] = nonce
	return nil
}

// Last returns the last nonce used by voter (zero if none)
func (n *NonceRegistry) Last(voter common.Address) uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last[voter]
}

// All returns a copy of every voter's last used nonce, for persistence
func (n *NonceRegistry) All() map[common.Address]uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[common.Address]uint64, len(n.last))
	for voter, nonce := range n.last {
		out[voter] = nonce
	}
	return out
}

// Restore seeds the registry from persisted state at startup
func (n *NonceRegistry) Restore(voter common.Address, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if nonce > n.last[voter] {
		n.last[voter] = nonce
	}
}
