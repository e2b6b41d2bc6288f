// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

//go:build integration

package store_test

import (
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/hearthgate/hearthgate/internal/authz"
	"github.com/hearthgate/hearthgate/internal/authz/store"
)

func newStoredGrant(entityID, placeID uuid.UUID, perms ...string) *store.StoredGrant {
	return &store.StoredGrant{
		EntityID:    entityID,
		PlaceID:     placeID,
		PlaceName:   "Lake House",
		AccountID:   uuid.New(),
		Permissions: perms,
	}
}

var _ = Describe("Grant CRUD", func() {
	var entityID, placeID uuid.UUID

	BeforeEach(func() {
		entityID = uuid.New()
		placeID = uuid.New()
	})

	It("round-trips a grant through create and get", func() {
		g := newStoredGrant(entityID, placeID, "dev:rwx:*", "dev::camera-front")
		Expect(env.Grants.Create(env.ctx, g)).To(Succeed())
		Expect(g.ID).NotTo(BeEmpty())

		got, err := env.Grants.Get(env.ctx, entityID, placeID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(g.ID))
		Expect(got.PlaceName).To(Equal("Lake House"))
		Expect(got.Permissions).To(Equal([]string{"dev:rwx:*", "dev::camera-front"}))
		Expect(got.CreatedAt).NotTo(BeZero())
	})

	It("rejects a second grant for the same entity and place", func() {
		Expect(env.Grants.Create(env.ctx, newStoredGrant(entityID, placeID, "dev:r:*"))).To(Succeed())

		err := env.Grants.Create(env.ctx, newStoredGrant(entityID, placeID, "dev:w:*"))
		Expect(err).To(HaveOccurred())
		Expect(store.IsAlreadyExists(err)).To(BeTrue())
	})

	It("rejects malformed permission strings before touching the database", func() {
		err := env.Grants.Create(env.ctx, newStoredGrant(entityID, placeID, "not-a-permission"))
		Expect(err).To(HaveOccurred())

		_, err = env.Grants.Get(env.ctx, entityID, placeID)
		Expect(store.IsNotFound(err)).To(BeTrue())
	})

	It("reports a missing grant as not found", func() {
		_, err := env.Grants.Get(env.ctx, entityID, placeID)
		Expect(store.IsNotFound(err)).To(BeTrue())
	})

	It("lists an entity's grants ordered by place name", func() {
		cabin := newStoredGrant(entityID, uuid.New(), "dev:r:*")
		cabin.PlaceName = "Cabin"
		home := newStoredGrant(entityID, uuid.New(), "dev:rwx:*")
		home.PlaceName = "Home"
		Expect(env.Grants.Create(env.ctx, home)).To(Succeed())
		Expect(env.Grants.Create(env.ctx, cabin)).To(Succeed())

		grants, err := env.Grants.ListForEntity(env.ctx, entityID)
		Expect(err).NotTo(HaveOccurred())
		Expect(grants).To(HaveLen(2))
		Expect(grants[0].PlaceName).To(Equal("Cabin"))
		Expect(grants[1].PlaceName).To(Equal("Home"))
	})

	It("lists every grant at a place", func() {
		Expect(env.Grants.Create(env.ctx, newStoredGrant(uuid.New(), placeID, "dev:r:*"))).To(Succeed())
		Expect(env.Grants.Create(env.ctx, newStoredGrant(uuid.New(), placeID, "dev:w:*"))).To(Succeed())

		grants, err := env.Grants.ListForPlace(env.ctx, placeID)
		Expect(err).NotTo(HaveOccurred())
		Expect(grants).To(HaveLen(2))
	})

	It("updates permissions in place", func() {
		Expect(env.Grants.Create(env.ctx, newStoredGrant(entityID, placeID, "dev:r:*"))).To(Succeed())

		Expect(env.Grants.UpdatePermissions(env.ctx, entityID, placeID,
			[]string{"dev:rwx:*", "acct:r:*"})).To(Succeed())

		got, err := env.Grants.Get(env.ctx, entityID, placeID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Permissions).To(Equal([]string{"dev:rwx:*", "acct:r:*"}))
		Expect(got.UpdatedAt).To(BeTemporally(">=", got.CreatedAt))
	})

	It("flips account ownership", func() {
		Expect(env.Grants.Create(env.ctx, newStoredGrant(entityID, placeID))).To(Succeed())

		Expect(env.Grants.SetAccountOwner(env.ctx, entityID, placeID, true)).To(Succeed())

		got, err := env.Grants.Get(env.ctx, entityID, placeID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.AccountOwner).To(BeTrue())
		Expect(got.Grant().Role()).To(Equal(authz.RoleOwner))
	})

	It("deletes a grant and reports a second delete as not found", func() {
		Expect(env.Grants.Create(env.ctx, newStoredGrant(entityID, placeID, "dev:r:*"))).To(Succeed())

		Expect(env.Grants.Delete(env.ctx, entityID, placeID)).To(Succeed())
		Expect(store.IsNotFound(env.Grants.Delete(env.ctx, entityID, placeID))).To(BeTrue())
	})
})

var _ = Describe("Context loading from the database", func() {
	It("builds a context that honors stored instance precedence", func() {
		entityID := uuid.New()
		home := uuid.New()
		g := newStoredGrant(entityID, home, "dev:*:*", "dev::camera-front")
		g.PlaceName = "Home"
		Expect(env.Grants.Create(env.ctx, g)).To(Succeed())

		loader := store.NewContextLoader(env.Grants)
		actx, err := loader.Load(env.ctx,
			&authz.Principal{ID: entityID, Username: "marge"}, time.Now())
		Expect(err).NotTo(HaveOccurred())

		blocked := []authz.Permission{authz.MustParsePermission("dev:r:camera-front")}
		Expect(authz.IsPermitted(actx, home, blocked)).To(BeFalse())

		open := []authz.Permission{authz.MustParsePermission("dev:x:porch-light")}
		Expect(authz.IsPermitted(actx, home, open)).To(BeTrue())
	})
})
