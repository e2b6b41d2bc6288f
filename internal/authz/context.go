// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package authz

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// NoPrincipal is the audit label used for an anonymous context.
const NoPrincipal = "[no principal]"

// Principal identifies the authenticated actor a context is built for.
// Identity is established upstream; this core only labels decisions with it.
type Principal struct {
	ID       uuid.UUID
	Username string
}

// placePermissions holds the two disjoint partitions of a place's parsed
// permissions. Slice order follows grant input order, then permission order
// within each grant; the instance scan in IsPermitted depends on it.
type placePermissions struct {
	instance []Permission
	class    []Permission
}

// Context is an immutable per-principal index over the principal's grants,
// split per place into instance-scoped and class-scoped permission sets.
// It is built once per principal (typically per session), holds only value
// data copied in at construction, and is safe to share across goroutines
// without synchronization.
type Context struct {
	principal          *Principal
	lastPasswordChange time.Time
	grants             []Grant
	places             map[uuid.UUID]placePermissions
}

// EmptyContext represents an anonymous principal with no grants anywhere.
var EmptyContext = &Context{places: map[uuid.UUID]placePermissions{}}

// NewContext builds a context from a principal (nil for anonymous) and its
// grants. Every raw permission string is parsed up front; a single
// unparseable string fails construction with MALFORMED_PERMISSION rather
// than silently dropping the entry, since a dropped permission could
// silently deny a legitimate action or be read broader than intended.
func NewContext(principal *Principal, lastPasswordChange time.Time, grants []Grant) (*Context, error) {
	actx := &Context{
		principal:          principal,
		lastPasswordChange: lastPasswordChange,
		grants:             make([]Grant, 0, len(grants)),
		places:             make(map[uuid.UUID]placePermissions, len(grants)),
	}
	for _, grant := range grants {
		actx.grants = append(actx.grants, grant.Clone())

		place := actx.places[grant.PlaceID]
		for _, raw := range grant.Permissions {
			perm, err := ParsePermission(raw)
			if err != nil {
				return nil, oops.
					With("entityID", grant.EntityID.String()).
					With("placeID", grant.PlaceID.String()).
					Wrap(err)
			}
			if perm.IsInstance() {
				place.instance = append(place.instance, perm)
			} else {
				place.class = append(place.class, perm)
			}
		}
		actx.places[grant.PlaceID] = place
	}
	return actx, nil
}

// InstancePermissions returns the place's instance-scoped permissions in
// grant input order. Total: unknown places yield an empty slice, never nil
// panics or absent lookups. Callers must not mutate the result.
//
// Duplicate instance permissions for the same (place, resource) are
// tolerated; the decision algorithm consults only the first match, so
// input order is the tie-break.
func (c *Context) InstancePermissions(placeID uuid.UUID) []Permission {
	if c == nil {
		return nil
	}
	return c.places[placeID].instance
}

// NonInstancePermissions returns the place's class-level permissions in
// grant input order. Total for unknown places. Callers must not mutate the
// result.
func (c *Context) NonInstancePermissions(placeID uuid.UUID) []Permission {
	if c == nil {
		return nil
	}
	return c.places[placeID].class
}

// HasAnyPermission reports whether the principal holds at least one
// instance- or class-level permission for the place. Used by checks that
// only need presence, not specific permission evaluation.
func (c *Context) HasAnyPermission(placeID uuid.UUID) bool {
	if c == nil {
		return false
	}
	place := c.places[placeID]
	return len(place.instance) > 0 || len(place.class) > 0
}

// Grants returns a copy of the raw input grants, used by role-based checks
// that need AccountOwner or EntityID directly.
func (c *Context) Grants() []Grant {
	if c == nil {
		return nil
	}
	out := make([]Grant, len(c.grants))
	for i, g := range c.grants {
		out[i] = g.Clone()
	}
	return out
}

// OwnsAccountAt reports whether any grant marks the principal as account
// owner for the place.
func (c *Context) OwnsAccountAt(placeID uuid.UUID) bool {
	if c == nil {
		return false
	}
	for _, g := range c.grants {
		if g.PlaceID == placeID && g.AccountOwner {
			return true
		}
	}
	return false
}

// LastPasswordChange returns the timestamp recorded at construction; zero
// when none was supplied.
func (c *Context) LastPasswordChange() time.Time {
	return c.lastPasswordChange
}

// SubjectString returns a stable display label for audit logging.
// Anonymous contexts report the NoPrincipal marker.
func (c *Context) SubjectString() string {
	if c == nil || c.principal == nil {
		return NoPrincipal
	}
	if c.principal.Username != "" {
		return c.principal.Username + " (" + c.principal.ID.String() + ")"
	}
	return c.principal.ID.String()
}
