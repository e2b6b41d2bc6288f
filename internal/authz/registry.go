// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package authz

import (
	"sort"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// RequirementRegistry resolves the permissions a message type requires.
// The second return is false when the type has no registered requirement;
// the permission strategy treats that as requiring nothing.
type RequirementRegistry interface {
	RequiredPermissions(messageType string) ([]Permission, bool)
}

// FilterFunc produces a possibly-redacted copy of an outbound message for
// the principal. Implementations must not mutate the input message.
type FilterFunc func(actx *Context, placeID uuid.UUID, msg *Message) *Message

// FilterRegistry resolves the redaction filter for a message type. The
// second return is false when no filter is registered; callers fall back to
// identity.
type FilterRegistry interface {
	MessageFilter(messageType string) (FilterFunc, bool)
}

// IdentityFilter returns the message unchanged.
func IdentityFilter(_ *Context, _ uuid.UUID, msg *Message) *Message {
	return msg
}

// requirementEntry pairs a compiled type pattern with its permissions.
type requirementEntry struct {
	pattern glob.Glob
	perms   []Permission
}

// StaticRequirementRegistry is a map-backed RequirementRegistry. Entries
// are keyed by exact message type or by a glob pattern over types
// (e.g. "video:*"); exact entries always win over patterns, and patterns
// are consulted in sorted key order so overlapping patterns resolve
// deterministically.
type StaticRequirementRegistry struct {
	exact    map[string][]Permission
	patterns []requirementEntry
}

// NewStaticRequirementRegistry compiles a requirement table. Keys containing
// glob metacharacters are compiled with ':' as the separator, matching the
// message-type namespace grammar; compilation failure is an INVALID_PATTERN
// error.
func NewStaticRequirementRegistry(table map[string][]Permission) (*StaticRequirementRegistry, error) {
	keys := make([]string, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	reg := &StaticRequirementRegistry{exact: make(map[string][]Permission)}
	for _, key := range keys {
		if !hasGlobMeta(key) {
			reg.exact[key] = table[key]
			continue
		}
		g, err := glob.Compile(key, ':')
		if err != nil {
			return nil, oops.
				Code(ErrCodeInvalidPattern).
				With("pattern", key).
				Wrap(err)
		}
		reg.patterns = append(reg.patterns, requirementEntry{pattern: g, perms: table[key]})
	}
	return reg, nil
}

// RequiredPermissions implements RequirementRegistry.
func (r *StaticRequirementRegistry) RequiredPermissions(messageType string) ([]Permission, bool) {
	if perms, ok := r.exact[messageType]; ok {
		return perms, true
	}
	for _, entry := range r.patterns {
		if entry.pattern.Match(messageType) {
			return entry.perms, true
		}
	}
	return nil, false
}

// StaticFilterRegistry is a map-backed FilterRegistry keyed by exact
// message type.
type StaticFilterRegistry struct {
	filters map[string]FilterFunc
}

// NewStaticFilterRegistry builds a filter registry from a table.
func NewStaticFilterRegistry(table map[string]FilterFunc) *StaticFilterRegistry {
	filters := make(map[string]FilterFunc, len(table))
	for key, fn := range table {
		filters[key] = fn
	}
	return &StaticFilterRegistry{filters: filters}
}

// MessageFilter implements FilterRegistry.
func (r *StaticFilterRegistry) MessageFilter(messageType string) (FilterFunc, bool) {
	fn, ok := r.filters[messageType]
	return fn, ok
}

// hasGlobMeta reports whether the key uses glob syntax rather than being a
// literal message type.
func hasGlobMeta(key string) bool {
	for _, c := range key {
		switch c {
		case '*', '?', '[', ']', '{', '}':
			return true
		}
	}
	return false
}
