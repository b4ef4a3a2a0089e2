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

// Role identifies a capability granted to an address.
type Role string

const (
	// RoleRoot can migrate the DAO to a successor
	RoleRoot Role = "root"
	// RoleFounder can trigger quarter finalization and submit special proposals
	RoleFounder Role = "founder"
	// RolePRL approves milestone fund releases (external compliance gate)
	RolePRL Role = "prl"
	// RoleKYCAdmin manages participant identity approvals
	RoleKYCAdmin Role = "kyc-admin"
)

// RoleRegistry answers role membership queries. Implementations are expected
// to be an external identity registry; the engine only consults HasRole.
type RoleRegistry interface {
	HasRole(addr common.Address, role Role) bool
}

// RequireRole is the single capability check consulted by every
// state-mutating operation with a role precondition.
func RequireRole(reg RoleRegistry, addr common.Address, role Role) error {
	if reg == nil || !reg.HasRole(addr, role) {
		return fmt.Errorf("%w: %s requires %s", ErrNotAuthorized, addr.Hex(), role)
	}
	return nil
}

// MemoryRoleRegistry is an in-memory RoleRegistry used in dev mode and tests.
type MemoryRoleRegistry struct {
	mu    sync.RWMutex
	roles map[Role]map[common.Address]struct{}
}

func NewMemoryRoleRegistry() *MemoryRoleRegistry {
	return &MemoryRoleRegistry{
		roles: make(map[Role]map[common.Address]struct{}),
	}
}

func (r *MemoryRoleRegistry) Grant(addr common.Address, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[role]; !ok {
		r.roles[role] = make(map[common.Address]struct{})
	}
	r.roles[role][addr] = struct{}{}
}

func (r *MemoryRoleRegistry) Revoke(addr common.Address, role Role) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.roles[role]; ok {
		delete(members, addr)
	}
}

func (r *MemoryRoleRegistry) HasRole(addr common.Address, role Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roles[role][addr]
	return ok
}
