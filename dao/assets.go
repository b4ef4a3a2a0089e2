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

package dao

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// AssetVault is the asset-transfer collaborator the engine calls into. It
// follows approve-then-transfer semantics: PullFrom only succeeds up to the
// holder's prior allowance for the vault. Balances are never negative.
//
// The engine holds one vault for the stake token and one for the rewards
// token. Token mechanics themselves (supply, ERC20 wiring) live outside the
// engine.
type AssetVault interface {
	// BalanceOf returns the balance held by addr
	BalanceOf(addr common.Address) uint64
	// VaultBalance returns the balance held in custody by the vault itself
	VaultBalance() uint64
	// Allowance returns what holder has approved the vault to pull
	Allowance(holder common.Address) uint64
	// PullFrom moves amount from holder into vault custody, consuming allowance
	PullFrom(holder common.Address, amount uint64) error
	// PayOut moves amount from vault custody to recipient
	PayOut(recipient common.Address, amount uint64) error
}

// MemoryVault is an in-memory AssetVault used in dev mode and tests.
type MemoryVault struct {
	mu         sync.Mutex
	balances   map[common.Address]uint64
	allowances map[common.Address]uint64
	custody    uint64
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		balances:   make(map[common.Address]uint64),
		allowances: make(map[common.Address]uint64),
	}
}

// Mint credits amount to addr's balance
func (v *MemoryVault) Mint(addr common.Address, amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[addr] += amount
}

// MintVault credits amount directly to vault custody
func (v *MemoryVault) MintVault(amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.custody += amount
}

// Approve sets the vault's allowance for holder
func (v *MemoryVault) Approve(holder common.Address, amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowances[holder] = amount
}

func (v *MemoryVault) BalanceOf(addr common.Address) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[addr]
}

func (v *MemoryVault) VaultBalance() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.custody
}

func (v *MemoryVault) Allowance(holder common.Address) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.allowances[holder]
}

func (v *MemoryVault) PullFrom(holder common.Address, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.allowances[holder] < amount {
		return fmt.Errorf("%w: allowance %d < %d", ErrInsufficientAllowance, v.allowances[holder], amount)
	}
	if v.balances[holder] < amount {
		return fmt.Errorf("%w: balance %d < %d", ErrInsufficientBalance, v.balances[holder], amount)
	}
	v.allowances[holder] -= amount
	v.balances[holder] -= amount
	v.custody += amount
	return nil
}

func (v *MemoryVault) PayOut(recipient common.Address, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.custody < amount {
		return fmt.Errorf("%w: vault custody %d < %d", ErrInsufficientBalance, v.custody, amount)
	}
	v.custody -= amount
	v.balances[recipient] += amount
	return nil
}
