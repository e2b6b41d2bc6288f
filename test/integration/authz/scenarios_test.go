// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

//go:build integration

package authz_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hearthgate/hearthgate/internal/authz"
	"github.com/hearthgate/hearthgate/internal/authz/audit"
)

// decisionStack is a fully wired permission-strategy authorizer with its
// metrics and a buffer capturing structured log output.
type decisionStack struct {
	authorizer authz.Authorizer
	metrics    *authz.Metrics
	logs       *bytes.Buffer
}

func newDecisionStack(table map[string][]authz.Permission, mode audit.Mode) *decisionStack {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	reg, err := authz.NewStaticRequirementRegistry(table)
	Expect(err).NotTo(HaveOccurred())

	metrics := authz.NewUnregisteredMetrics()
	auth, err := authz.NewAuthorizer(authz.AlgorithmPermissions, authz.Options{
		Metrics:      metrics,
		Requirements: reg,
		Logger:       logger,
		Audit:        audit.NewLogger(mode, logger),
	})
	Expect(err).NotTo(HaveOccurred())

	return &decisionStack{authorizer: auth, metrics: metrics, logs: buf}
}

func residentContext(grants ...authz.Grant) *authz.Context {
	actx, err := authz.NewContext(
		&authz.Principal{ID: uuid.New(), Username: "marge"},
		time.Now(),
		grants,
	)
	Expect(err).NotTo(HaveOccurred())
	return actx
}

func auditEntries(buf *bytes.Buffer) []map[string]any {
	var entries []map[string]any
	dec := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	for dec.More() {
		var line map[string]any
		Expect(dec.Decode(&line)).To(Succeed())
		if line["msg"] == "authorization decision" {
			entries = append(entries, line)
		}
	}
	return entries
}

var _ = Describe("Permission-based decisions", func() {
	var (
		ctx   context.Context
		home  uuid.UUID
		cabin uuid.UUID
	)

	BeforeEach(func() {
		ctx = context.Background()
		home = uuid.New()
		cabin = uuid.New()
	})

	Describe("Class grants", func() {
		It("allows a resident whose class grant covers the requirement", func() {
			stack := newDecisionStack(map[string][]authz.Permission{
				"device:SetAttributes": {authz.MustParsePermission("dev:wx:*")},
			}, audit.ModeAll)
			actx := residentContext(authz.Grant{
				EntityID:    uuid.New(),
				PlaceID:     home,
				PlaceName:   "Home",
				Permissions: []string{"dev:rwx:*"},
			})
			msg := &authz.Message{Type: "device:SetAttributes", Destination: authz.DeviceAddress("porch-light")}

			allowed, err := stack.authorizer.Authorize(ctx, actx, home, msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
			Expect(testutil.ToFloat64(stack.metrics.Authorized)).To(Equal(1.0))
		})

		It("denies the same resident at a place they hold no grant for", func() {
			stack := newDecisionStack(map[string][]authz.Permission{
				"device:SetAttributes": {authz.MustParsePermission("dev:wx:*")},
			}, audit.ModeAll)
			actx := residentContext(authz.Grant{
				EntityID:    uuid.New(),
				PlaceID:     home,
				Permissions: []string{"dev:rwx:*"},
			})
			msg := &authz.Message{Type: "device:SetAttributes", Destination: authz.DeviceAddress("porch-light")}

			allowed, err := stack.authorizer.Authorize(ctx, actx, cabin, msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
			Expect(testutil.ToFloat64(stack.metrics.NonAccountHolder)).To(Equal(1.0))
		})
	})

	Describe("Instance precedence", func() {
		It("lets an empty instance grant carve one device out of a broad class grant", func() {
			stack := newDecisionStack(map[string][]authz.Permission{
				"camera:StreamVideo": {authz.MustParsePermission("dev:r:camera-front")},
				"device:TurnOn":      {authz.MustParsePermission("dev:x:porch-light")},
			}, audit.ModeAll)
			actx := residentContext(authz.Grant{
				EntityID:    uuid.New(),
				PlaceID:     home,
				Permissions: []string{"dev:*:*", "dev::camera-front"},
			})

			allowed, err := stack.authorizer.Authorize(ctx, actx, home,
				&authz.Message{Type: "camera:StreamVideo", Destination: authz.DeviceAddress("camera-front")})
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse(), "the instance grant overrides the class wildcard for its device")

			allowed, err = stack.authorizer.Authorize(ctx, actx, home,
				&authz.Message{Type: "device:TurnOn", Destination: authz.DeviceAddress("porch-light")})
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue(), "devices without an instance grant still use the class wildcard")
		})

		It("lets an instance grant widen access beyond the class set", func() {
			stack := newDecisionStack(map[string][]authz.Permission{
				"thermostat:SetTarget": {authz.MustParsePermission("dev:w:thermostat")},
			}, audit.ModeAll)
			actx := residentContext(authz.Grant{
				EntityID:    uuid.New(),
				PlaceID:     home,
				Permissions: []string{"dev:r:*", "dev:rwx:thermostat"},
			})

			allowed, err := stack.authorizer.Authorize(ctx, actx, home,
				&authz.Message{Type: "thermostat:SetTarget", Destination: authz.DeviceAddress("thermostat")})
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
		})
	})

	Describe("Session place guards", func() {
		var stack *decisionStack
		var actx *authz.Context

		BeforeEach(func() {
			stack = newDecisionStack(nil, audit.ModeAll)
			actx = residentContext(authz.Grant{
				EntityID:    uuid.New(),
				PlaceID:     home,
				Permissions: []string{"dev:*:*"},
			})
		})

		It("denies every request when no place is bound to the session", func() {
			allowed, err := stack.authorizer.Authorize(ctx, actx, uuid.Nil,
				&authz.Message{Type: "device:TurnOn"})
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
			Expect(testutil.ToFloat64(stack.metrics.NoPlace)).To(Equal(1.0))
		})

		It("denies and drops messages whose declared place disagrees with the session", func() {
			msg := &authz.Message{Type: "device:TurnOn", PlaceID: cabin.String()}

			allowed, err := stack.authorizer.Authorize(ctx, actx, home, msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
			Expect(testutil.ToFloat64(stack.metrics.WrongPlace)).To(Equal(1.0))

			filtered, err := stack.authorizer.Filter(ctx, actx, home, msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(filtered).To(BeNil())
		})
	})

	Describe("Unclassified message types", func() {
		It("fails open and counts the type for operator inventory", func() {
			stack := newDecisionStack(map[string][]authz.Permission{}, audit.ModeAll)
			actx := residentContext()

			allowed, err := stack.authorizer.Authorize(ctx, actx, home,
				&authz.Message{Type: "lab:Experiment"})
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
			Expect(testutil.ToFloat64(stack.metrics.Unclassified)).To(Equal(1.0))
			Expect(testutil.ToFloat64(stack.metrics.Authorized)).To(Equal(1.0))
		})
	})

	Describe("Audit trail", func() {
		It("records only denials in denials-only mode", func() {
			stack := newDecisionStack(map[string][]authz.Permission{
				"device:TurnOn": {authz.MustParsePermission("dev:x:*")},
			}, audit.ModeDenialsOnly)
			actx := residentContext(authz.Grant{
				EntityID:    uuid.New(),
				PlaceID:     home,
				Permissions: []string{"dev:x:*"},
			})

			allowed, err := stack.authorizer.Authorize(ctx, actx, home,
				&authz.Message{Type: "device:TurnOn"})
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())

			allowed, err = stack.authorizer.Authorize(ctx, actx, cabin,
				&authz.Message{Type: "device:TurnOn"})
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())

			entries := auditEntries(stack.logs)
			Expect(entries).To(HaveLen(1))
			Expect(entries[0]["authorized"]).To(BeFalse())
			Expect(entries[0]["place_id"]).To(Equal(cabin.String()))
			Expect(entries[0]["subject"]).To(ContainSubstring("marge"))
			Expect(entries[0]["audit_id"]).NotTo(BeEmpty())
		})

		It("records both outcomes in all mode", func() {
			stack := newDecisionStack(map[string][]authz.Permission{
				"device:TurnOn": {authz.MustParsePermission("dev:x:*")},
			}, audit.ModeAll)
			actx := residentContext(authz.Grant{
				EntityID:    uuid.New(),
				PlaceID:     home,
				Permissions: []string{"dev:x:*"},
			})

			_, err := stack.authorizer.Authorize(ctx, actx, home,
				&authz.Message{Type: "device:TurnOn"})
			Expect(err).NotTo(HaveOccurred())
			_, err = stack.authorizer.Authorize(ctx, actx, cabin,
				&authz.Message{Type: "device:TurnOn"})
			Expect(err).NotTo(HaveOccurred())

			entries := auditEntries(stack.logs)
			Expect(entries).To(HaveLen(2))
			Expect(entries[0]["authorized"]).To(BeTrue())
			Expect(entries[1]["authorized"]).To(BeFalse())
		})
	})

	Describe("Outbound filtering", func() {
		It("applies a registered redaction filter without touching the original", func() {
			buf := &bytes.Buffer{}
			logger := slog.New(slog.NewJSONHandler(buf, nil))
			metrics := authz.NewUnregisteredMetrics()
			filters := authz.NewStaticFilterRegistry(map[string]authz.FilterFunc{
				"camera:Snapshot": func(_ *authz.Context, _ uuid.UUID, msg *authz.Message) *authz.Message {
					dup := msg.Clone()
					delete(dup.Attributes, "streamUrl")
					return dup
				},
			})
			auth, err := authz.NewAuthorizer(authz.AlgorithmPermissions, authz.Options{
				Metrics: metrics,
				Filters: filters,
				Logger:  logger,
			})
			Expect(err).NotTo(HaveOccurred())

			actx := residentContext()
			msg := &authz.Message{
				Type:       "camera:Snapshot",
				Attributes: map[string]any{"streamUrl": "rtsp://cam", "width": 640},
			}

			filtered, err := auth.Filter(ctx, actx, home, msg)
			Expect(err).NotTo(HaveOccurred())
			Expect(filtered.Attributes).NotTo(HaveKey("streamUrl"))
			Expect(filtered.Attributes).To(HaveKeyWithValue("width", 640))
			Expect(msg.Attributes).To(HaveKey("streamUrl"))
		})
	})
})

var _ = Describe("Role-based decisions", func() {
	var (
		ctx  context.Context
		home uuid.UUID
	)

	newRoleStack := func(requirePlace, enforceSelf bool) (authz.Authorizer, *authz.Metrics) {
		metrics := authz.NewUnregisteredMetrics()
		auth, err := authz.NewAuthorizer(authz.AlgorithmRole, authz.Options{
			Metrics:            metrics,
			Logger:             slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
			RequirePlaceHeader: requirePlace,
			EnforceSelfCheck:   enforceSelf,
		})
		Expect(err).NotTo(HaveOccurred())
		return auth, metrics
	}

	BeforeEach(func() {
		ctx = context.Background()
		home = uuid.New()
	})

	It("never authorizes support operations, even for account owners", func() {
		auth, metrics := newRoleStack(true, true)
		actx := residentContext(authz.Grant{
			EntityID:     uuid.New(),
			PlaceID:      home,
			AccountOwner: true,
			Permissions:  []string{"acct:*:*"},
		})

		allowed, err := auth.Authorize(ctx, actx, home,
			&authz.Message{Type: authz.MsgAccountIssueCredit})
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeFalse())
		Expect(testutil.ToFloat64(metrics.BlockedSupportOp)).To(Equal(1.0))
	})

	It("reserves billing operations for the account owner", func() {
		auth, metrics := newRoleStack(true, true)
		owner := residentContext(authz.Grant{
			EntityID:     uuid.New(),
			PlaceID:      home,
			AccountOwner: true,
		})
		guest := residentContext(authz.Grant{
			EntityID:    uuid.New(),
			PlaceID:     home,
			Permissions: []string{"dev:*:*"},
		})

		allowed, err := auth.Authorize(ctx, owner, home,
			&authz.Message{Type: authz.MsgAccountListInvoices})
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())

		allowed, err = auth.Authorize(ctx, guest, home,
			&authz.Message{Type: authz.MsgAccountListInvoices})
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeFalse())
		Expect(testutil.ToFloat64(metrics.NonAccountHolder)).To(Equal(1.0))
	})

	It("enforces the self check only when configured", func() {
		strict, strictMetrics := newRoleStack(true, true)
		lenient, _ := newRoleStack(true, false)
		actx := residentContext()
		msg := &authz.Message{
			Type:        authz.MsgPersonAddMobileDevice,
			Actor:       authz.PersonAddress("marge"),
			Destination: authz.PersonAddress("homer"),
		}

		allowed, err := strict.Authorize(ctx, actx, home, msg)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeFalse())
		Expect(testutil.ToFloat64(strictMetrics.WrongPerson)).To(Equal(1.0))

		allowed, err = lenient.Authorize(ctx, actx, home, msg)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())
	})

	It("resolves service-addressed place queries through the embedded place id", func() {
		auth, _ := newRoleStack(true, true)
		actx := residentContext(authz.Grant{
			EntityID:    uuid.New(),
			PlaceID:     home,
			Permissions: []string{"dev:r:*"},
		})
		msg := &authz.Message{
			Type:        authz.MsgVideoListRecordings,
			Destination: authz.ServiceAddress("video"),
			Attributes:  map[string]any{authz.AttrPlaceID: home.String()},
		}

		allowed, err := auth.Authorize(ctx, actx, home, msg)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeTrue())

		msg.Attributes[authz.AttrPlaceID] = uuid.New().String()
		allowed, err = auth.Authorize(ctx, actx, home, msg)
		Expect(err).NotTo(HaveOccurred())
		Expect(allowed).To(BeFalse())
	})
})
