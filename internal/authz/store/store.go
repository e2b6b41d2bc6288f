// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

// Package store persists place grants in PostgreSQL and loads them into
// authorization contexts.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/hearthgate/hearthgate/internal/authz"
)

// StoredGrant is the persisted form of a place grant. ID is a ULID string
// assigned at creation; the (entity, place) pair is unique.
type StoredGrant struct {
	ID           string
	EntityID     uuid.UUID
	PlaceID      uuid.UUID
	PlaceName    string
	AccountID    uuid.UUID
	AccountOwner bool
	Permissions  []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Grant converts the stored row into the evaluation-layer grant shape.
func (g *StoredGrant) Grant() authz.Grant {
	return authz.Grant{
		EntityID:     g.EntityID,
		PlaceID:      g.PlaceID,
		PlaceName:    g.PlaceName,
		AccountID:    g.AccountID,
		AccountOwner: g.AccountOwner,
		Permissions:  append([]string(nil), g.Permissions...),
	}
}

// GrantStore handles CRUD operations for place grants.
type GrantStore interface {
	Create(ctx context.Context, g *StoredGrant) error
	Get(ctx context.Context, entityID, placeID uuid.UUID) (*StoredGrant, error)
	ListForEntity(ctx context.Context, entityID uuid.UUID) ([]*StoredGrant, error)
	ListForPlace(ctx context.Context, placeID uuid.UUID) ([]*StoredGrant, error)
	UpdatePermissions(ctx context.Context, entityID, placeID uuid.UUID, permissions []string) error
	SetAccountOwner(ctx context.Context, entityID, placeID uuid.UUID, owner bool) error
	Delete(ctx context.Context, entityID, placeID uuid.UUID) error
}

// IsNotFound reports whether err is a GRANT_NOT_FOUND error from the store.
func IsNotFound(err error) bool {
	return hasCode(err, "GRANT_NOT_FOUND")
}

// IsAlreadyExists reports whether err is a GRANT_EXISTS error from the
// store, raised when a grant for the same (entity, place) pair already
// exists.
func IsAlreadyExists(err error) bool {
	return hasCode(err, "GRANT_EXISTS")
}

func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == code
}
