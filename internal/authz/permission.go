// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package authz

import (
	"sort"
	"strings"

	"github.com/samber/oops"
)

// Wildcard is the literal wildcard token in permission strings.
const Wildcard = "*"

// Action codes recognized in the actions segment of a permission string.
const (
	ActionRead    = 'r'
	ActionWrite   = 'w'
	ActionExecute = 'x'
	ActionCreate  = 'c'
	ActionDelete  = 'd'
)

// actionBit maps an action code to its bit in an ActionSet.
// Returns 0 for unknown codes.
func actionBit(code rune) uint8 {
	switch code {
	case ActionRead:
		return 1 << 0
	case ActionWrite:
		return 1 << 1
	case ActionExecute:
		return 1 << 2
	case ActionCreate:
		return 1 << 3
	case ActionDelete:
		return 1 << 4
	default:
		return 0
	}
}

// ActionSet is a set of action codes, or the wildcard that implies every set.
// The zero value is the empty set, which implies no action; an empty set on
// an instance permission is how a grant explicitly withholds access to one
// resource instance.
type ActionSet struct {
	bits     uint8
	wildcard bool
}

// WildcardActions is the action set that implies every other set.
var WildcardActions = ActionSet{wildcard: true}

// ParseActionSet parses the actions segment of a permission string.
// Accepts "*", the empty string (empty set), and action codes either
// run together ("rw") or comma-separated ("r,w").
func ParseActionSet(s string) (ActionSet, error) {
	if s == Wildcard {
		return WildcardActions, nil
	}
	var set ActionSet
	for _, code := range strings.ReplaceAll(s, ",", "") {
		bit := actionBit(code)
		if bit == 0 {
			return ActionSet{}, oops.
				Code(ErrCodeMalformedPermission).
				With("actions", s).
				Errorf("unknown action code %q", code)
		}
		set.bits |= bit
	}
	return set, nil
}

// IsWildcard reports whether the set is the wildcard.
func (a ActionSet) IsWildcard() bool { return a.wildcard }

// IsEmpty reports whether the set contains no actions (and is not the wildcard).
func (a ActionSet) IsEmpty() bool { return !a.wildcard && a.bits == 0 }

// Contains reports whether every action in other is in a.
// The wildcard contains every set; every set contains the empty set.
func (a ActionSet) Contains(other ActionSet) bool {
	if a.wildcard {
		return true
	}
	if other.wildcard {
		return false
	}
	return a.bits&other.bits == other.bits
}

// String renders the set in canonical permission-segment form.
func (a ActionSet) String() string {
	if a.wildcard {
		return Wildcard
	}
	var b strings.Builder
	for _, code := range []rune{ActionRead, ActionWrite, ActionExecute, ActionCreate, ActionDelete} {
		if a.bits&actionBit(code) != 0 {
			b.WriteRune(code)
		}
	}
	return b.String()
}

// Permission is one parsed entry of the capability:actions:instance grammar.
// Class-level permissions carry the wildcard instance; instance permissions
// name one concrete resource and take precedence over class-level grants for
// that resource (see IsPermitted).
type Permission struct {
	Capability string
	Actions    ActionSet
	Instance   string
}

// ParsePermission parses a permission string of the form
// "capability:actions:instance", e.g. "dev:rw:*" or "dev:r,w:device-123".
// Returns a MALFORMED_PERMISSION error for anything that does not match the
// three-segment grammar. Capability and instance are kept verbatim; grants
// originate from trusted policy data, so no normalization is applied.
func ParsePermission(s string) (Permission, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Permission{}, oops.
			Code(ErrCodeMalformedPermission).
			With("permission", s).
			Errorf("expected capability:actions:instance, got %d segment(s)", len(parts))
	}
	if parts[0] == "" {
		return Permission{}, oops.
			Code(ErrCodeMalformedPermission).
			With("permission", s).
			Errorf("empty capability segment")
	}
	if parts[2] == "" {
		return Permission{}, oops.
			Code(ErrCodeMalformedPermission).
			With("permission", s).
			Errorf("empty instance segment")
	}
	actions, err := ParseActionSet(parts[1])
	if err != nil {
		return Permission{}, oops.With("permission", s).Wrap(err)
	}
	return Permission{
		Capability: parts[0],
		Actions:    actions,
		Instance:   parts[2],
	}, nil
}

// MustParsePermission is ParsePermission for hardcoded permission tables.
// Panics on malformed input.
func MustParsePermission(s string) Permission {
	p, err := ParsePermission(s)
	if err != nil {
		panic("authz: invalid permission literal: " + err.Error())
	}
	return p
}

// ParsePermissions parses a list of raw permission strings, preserving order.
func ParsePermissions(raw []string) ([]Permission, error) {
	perms := make([]Permission, 0, len(raw))
	for _, s := range raw {
		p, err := ParsePermission(s)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

// IsInstance reports whether the permission is scoped to one concrete
// resource instance rather than a whole capability class.
func (p Permission) IsInstance() bool { return p.Instance != Wildcard }

// Implies reports whether this granted permission satisfies required.
// Capability must be the wildcard or an exact match, the action set must be
// the wildcard or a superset, and for instance-scoped grants the instance
// must be the wildcard or an exact match.
func (p Permission) Implies(required Permission) bool {
	if p.Capability != Wildcard && p.Capability != required.Capability {
		return false
	}
	if !p.Actions.Contains(required.Actions) {
		return false
	}
	if p.IsInstance() && p.Instance != required.Instance {
		return false
	}
	return true
}

// ShouldEvaluate reports whether this instance permission is the
// authoritative entry for required's resource instance. Only instance-scoped
// permissions are ever authoritative; class-level entries return false.
func (p Permission) ShouldEvaluate(required Permission) bool {
	return p.IsInstance() && p.Instance == required.Instance
}

// String renders the permission in canonical string form.
func (p Permission) String() string {
	return p.Capability + ":" + p.Actions.String() + ":" + p.Instance
}

// sortedPermissionStrings renders permissions as sorted strings, used by
// audit logging for stable output.
func sortedPermissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.String()
	}
	sort.Strings(out)
	return out
}
