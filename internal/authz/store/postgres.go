// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/hearthgate/hearthgate/internal/authz"
)

// poolIface is the subset of pgxpool.Pool the store uses; pgxmock provides
// a compatible mock for unit tests.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements GrantStore using PostgreSQL.
type PostgresStore struct {
	pool poolIface
}

// NewPostgresStore creates a PostgresStore backed by the given connection
// pool.
func NewPostgresStore(pool poolIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// grantColumns is the shared column list for SELECT queries.
const grantColumns = `id, entity_id, place_id, place_name, account_id, account_owner, permissions, created_at, updated_at`

// scanGrant scans a row into a StoredGrant.
func scanGrant(row pgx.Row) (*StoredGrant, error) {
	var g StoredGrant
	err := row.Scan(
		&g.ID, &g.EntityID, &g.PlaceID, &g.PlaceName, &g.AccountID,
		&g.AccountOwner, &g.Permissions, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// scanGrants scans multiple rows into a slice of StoredGrant.
func scanGrants(rows pgx.Rows) ([]*StoredGrant, error) {
	defer rows.Close()
	var grants []*StoredGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, oops.With("operation", "scan grant row").Wrap(err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate grant rows").Wrap(err)
	}
	return grants, nil
}

// validatePermissions rejects permission strings that would later fail
// context construction, so malformed grants never reach the database.
func validatePermissions(permissions []string) error {
	_, err := authz.ParsePermissions(permissions)
	return err
}

// Create inserts a new grant, generating a ULID for its ID. A grant for the
// same (entity, place) pair raises GRANT_EXISTS.
func (s *PostgresStore) Create(ctx context.Context, g *StoredGrant) error {
	if err := validatePermissions(g.Permissions); err != nil {
		return err
	}

	id := ulid.Make().String()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO place_grants (id, entity_id, place_id, place_name, account_id, account_owner, permissions)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, g.EntityID, g.PlaceID, g.PlaceName, g.AccountID, g.AccountOwner, g.Permissions)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("GRANT_EXISTS").
				With("entityID", g.EntityID.String()).
				With("placeID", g.PlaceID.String()).
				Errorf("grant already exists")
		}
		return oops.Code("GRANT_CREATE_FAILED").
			With("entityID", g.EntityID.String()).
			With("placeID", g.PlaceID.String()).
			Wrap(err)
	}

	g.ID = id
	return nil
}

// Get retrieves the grant for an (entity, place) pair.
func (s *PostgresStore) Get(ctx context.Context, entityID, placeID uuid.UUID) (*StoredGrant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+grantColumns+` FROM place_grants WHERE entity_id = $1 AND place_id = $2`,
		entityID, placeID)
	g, err := scanGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("GRANT_NOT_FOUND").
			With("entityID", entityID.String()).
			With("placeID", placeID.String()).
			Errorf("grant not found")
	}
	if err != nil {
		return nil, oops.With("operation", "get grant").
			With("entityID", entityID.String()).
			With("placeID", placeID.String()).
			Wrap(err)
	}
	return g, nil
}

// ListForEntity returns all grants held by an entity, ordered by place name.
func (s *PostgresStore) ListForEntity(ctx context.Context, entityID uuid.UUID) ([]*StoredGrant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+grantColumns+` FROM place_grants WHERE entity_id = $1 ORDER BY place_name, place_id`,
		entityID)
	if err != nil {
		return nil, oops.With("operation", "list grants for entity").
			With("entityID", entityID.String()).
			Wrap(err)
	}
	return scanGrants(rows)
}

// ListForPlace returns all grants at a place, ordered by entity id.
func (s *PostgresStore) ListForPlace(ctx context.Context, placeID uuid.UUID) ([]*StoredGrant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+grantColumns+` FROM place_grants WHERE place_id = $1 ORDER BY entity_id`,
		placeID)
	if err != nil {
		return nil, oops.With("operation", "list grants for place").
			With("placeID", placeID.String()).
			Wrap(err)
	}
	return scanGrants(rows)
}

// UpdatePermissions replaces the permission list of an existing grant.
func (s *PostgresStore) UpdatePermissions(ctx context.Context, entityID, placeID uuid.UUID, permissions []string) error {
	if err := validatePermissions(permissions); err != nil {
		return err
	}

	result, err := s.pool.Exec(ctx, `
		UPDATE place_grants SET permissions = $3, updated_at = now()
		WHERE entity_id = $1 AND place_id = $2
	`, entityID, placeID, permissions)
	if err != nil {
		return oops.Code("GRANT_UPDATE_FAILED").
			With("entityID", entityID.String()).
			With("placeID", placeID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("GRANT_NOT_FOUND").
			With("entityID", entityID.String()).
			With("placeID", placeID.String()).
			Errorf("grant not found")
	}
	return nil
}

// SetAccountOwner flips the account-owner flag of an existing grant.
func (s *PostgresStore) SetAccountOwner(ctx context.Context, entityID, placeID uuid.UUID, owner bool) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE place_grants SET account_owner = $3, updated_at = now()
		WHERE entity_id = $1 AND place_id = $2
	`, entityID, placeID, owner)
	if err != nil {
		return oops.Code("GRANT_UPDATE_FAILED").
			With("entityID", entityID.String()).
			With("placeID", placeID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("GRANT_NOT_FOUND").
			With("entityID", entityID.String()).
			With("placeID", placeID.String()).
			Errorf("grant not found")
	}
	return nil
}

// Delete revokes the grant for an (entity, place) pair.
func (s *PostgresStore) Delete(ctx context.Context, entityID, placeID uuid.UUID) error {
	result, err := s.pool.Exec(ctx,
		`DELETE FROM place_grants WHERE entity_id = $1 AND place_id = $2`,
		entityID, placeID)
	if err != nil {
		return oops.Code("GRANT_DELETE_FAILED").
			With("entityID", entityID.String()).
			With("placeID", placeID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("GRANT_NOT_FOUND").
			With("entityID", entityID.String()).
			With("placeID", placeID.String()).
			Errorf("grant not found")
	}
	return nil
}
