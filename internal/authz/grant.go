// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package authz

import (
	"github.com/google/uuid"
)

// Role is the access level derived from a grant. Roles are never stored;
// they are computed from the ownership flag and the permission set.
type Role string

// Derived roles, broadest first.
const (
	// RoleOwner holds billing and lifecycle authority over the account's
	// places.
	RoleOwner Role = "OWNER"

	// RoleFullAccess holds explicit permissions for a place.
	RoleFullAccess Role = "FULL_ACCESS"

	// RoleHobbit is a guest with a grant but no permissions at all.
	RoleHobbit Role = "HOBBIT"
)

// Grant is one (entity, place) bundle of raw permission strings plus the
// ownership flag, as sourced from the grant store. Permissions stay
// unparsed here; the context parses them at construction. Order of the
// permission slice is significant: the decision algorithm's first-wins
// instance scan follows it.
type Grant struct {
	EntityID     uuid.UUID
	PlaceID      uuid.UUID
	PlaceName    string
	AccountID    uuid.UUID
	AccountOwner bool
	Permissions  []string
}

// Role derives the access level for this grant.
func (g Grant) Role() Role {
	switch {
	case g.AccountOwner:
		return RoleOwner
	case len(g.Permissions) == 0:
		return RoleHobbit
	default:
		return RoleFullAccess
	}
}

// Clone returns a deep copy; the permission slice is copied, not aliased.
func (g Grant) Clone() Grant {
	dup := g
	if g.Permissions != nil {
		dup.Permissions = make([]string, len(g.Permissions))
		copy(dup.Permissions, g.Permissions)
	}
	return dup
}
