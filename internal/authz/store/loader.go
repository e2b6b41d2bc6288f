// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package store

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/hearthgate/hearthgate/internal/authz"
)

// ContextLoader builds authorization contexts from persisted grants.
// Typically invoked once at session establishment; the resulting context is
// immutable and lives for the session.
type ContextLoader struct {
	store GrantStore
}

// NewContextLoader creates a loader over the given grant store.
func NewContextLoader(store GrantStore) *ContextLoader {
	return &ContextLoader{store: store}
}

// Load fetches the principal's grants and constructs its authorization
// context. A malformed permission string in storage fails the load; the
// session must not come up with partial grants.
func (l *ContextLoader) Load(ctx context.Context, principal *authz.Principal, lastPasswordChange time.Time) (*authz.Context, error) {
	stored, err := l.store.ListForEntity(ctx, principal.ID)
	if err != nil {
		return nil, oops.With("operation", "load authorization context").
			With("entityID", principal.ID.String()).
			Wrap(err)
	}

	grants := make([]authz.Grant, 0, len(stored))
	for _, g := range stored {
		grants = append(grants, g.Grant())
	}
	return authz.NewContext(principal, lastPasswordChange, grants)
}
