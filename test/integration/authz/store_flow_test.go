// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

//go:build integration

package authz_test

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/pashagolub/pgxmock/v4"

	"github.com/hearthgate/hearthgate/internal/authz"
	"github.com/hearthgate/hearthgate/internal/authz/audit"
	"github.com/hearthgate/hearthgate/internal/authz/store"
)

// The session establishment path: grants persisted in Postgres are loaded
// into an authorization context, and the permission strategy decides from
// that context. The database is mocked at the pool boundary.
var _ = Describe("Grant store to decision flow", func() {
	var (
		ctx       context.Context
		mock      pgxmock.PgxPoolIface
		loader    *store.ContextLoader
		principal *authz.Principal
		home      uuid.UUID
	)

	grantColumns := []string{
		"id", "entity_id", "place_id", "place_name", "account_id",
		"account_owner", "permissions", "created_at", "updated_at",
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		mock, err = pgxmock.NewPool()
		Expect(err).NotTo(HaveOccurred())
		loader = store.NewContextLoader(store.NewPostgresStore(mock))
		principal = &authz.Principal{ID: uuid.New(), Username: "marge"}
		home = uuid.New()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
		mock.Close()
	})

	It("authorizes a session built from persisted grants", func() {
		now := time.Now().UTC()
		rows := pgxmock.NewRows(grantColumns).AddRow(
			"01JA5M3F8PZQW4T0V6XKBR2HND", principal.ID, home, "Home",
			uuid.New(), false, []string{"dev:rwx:*", "dev::camera-front"}, now, now,
		)
		mock.ExpectQuery(`SELECT .+ FROM place_grants WHERE entity_id = \$1`).
			WithArgs(principal.ID).
			WillReturnRows(rows)

		actx, err := loader.Load(ctx, principal, now)
		Expect(err).NotTo(HaveOccurred())

		reg, err := authz.NewStaticRequirementRegistry(map[string][]authz.Permission{
			"device:TurnOn":      {authz.MustParsePermission("dev:x:porch-light")},
			"camera:StreamVideo": {authz.MustParsePermission("dev:r:camera-front")},
		})
		Expect(err).NotTo(HaveOccurred())
		auth, err := authz.NewAuthorizer(authz.AlgorithmPermissions, authz.Options{
			Metrics:      authz.NewUnregisteredMetrics(),
			Requirements: reg,
			Logger:       slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
			Audit:        audit.NewLogger(audit.ModeDenialsOnly, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))),
		})
		Expect(err).NotTo(HaveOccurred())

		allowed, err := auth.Authorize(ctx, actx, home,
			&authz.Message{Type: "device:TurnOn", Destination: authz.DeviceAddress("porch-light")})
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())

		allowed, err = auth.Authorize(ctx, actx, home,
			&authz.Message{Type: "camera:StreamVideo", Destination: authz.DeviceAddress("camera-front")})
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeFalse(), "the stored instance grant blanks out the camera")
	})

	It("fails session establishment when storage holds a malformed permission", func() {
		now := time.Now().UTC()
		rows := pgxmock.NewRows(grantColumns).AddRow(
			"01JA5M3F8PZQW4T0V6XKBR2HND", principal.ID, home, "Home",
			uuid.New(), false, []string{"not-a-permission"}, now, now,
		)
		mock.ExpectQuery(`SELECT .+ FROM place_grants WHERE entity_id = \$1`).
			WithArgs(principal.ID).
			WillReturnRows(rows)

		_, err := loader.Load(ctx, principal, now)
		Expect(err).To(HaveOccurred())
	})
})
