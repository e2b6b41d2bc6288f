// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package authz

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hearthgate/hearthgate/internal/authz/audit"
)

// Message types classified by the role strategy. Types follow the
// platform's namespace:Operation convention.
const (
	// Support operations that are never authorized through this path.
	MsgAccountIssueCredit        = "account:IssueCredit"
	MsgAccountIssueInvoiceRefund = "account:IssueInvoiceRefund"
	MsgNoteNotify                = "note:Notify"

	// Billing and account-lifecycle operations requiring account ownership.
	MsgAccountAddPlace             = "account:AddPlace"
	MsgAccountCreateBillingAccount = "account:CreateBillingAccount"
	MsgAccountDelete               = "account:Delete"
	MsgAccountListInvoices         = "account:ListInvoices"
	MsgAccountListAdjustments      = "account:ListAdjustments"
	MsgAccountUpdateBillingInfo    = "account:UpdateBillingInfo"
	MsgAccountUpdateServicePlan    = "account:UpdateServicePlan"
	MsgPlaceDelete                 = "place:Delete"
	MsgAccountListDevices          = "account:ListDevices" // deprecated list operation
	MsgAccountListHubs             = "account:ListHubs"    // deprecated list operation

	// Operations open to any authenticated principal.
	MsgPersonAcceptInvitation   = "person:AcceptInvitation"
	MsgPersonPendingInvitations = "person:PendingInvitations"
	MsgPersonRejectInvitation   = "person:RejectInvitation"
	MsgPlaceValidateAddress     = "place:ValidateAddress"
	MsgPlatformPing             = "platform:Ping"

	// Person self-service operations: actor must equal destination.
	MsgPersonAddMobileDevice     = "person:AddMobileDevice"
	MsgPersonRemoveMobileDevice  = "person:RemoveMobileDevice"
	MsgPersonListMobileDevices   = "person:ListMobileDevices"
	MsgPersonSetSecurityAnswers  = "person:SetSecurityAnswers"
	MsgPersonGetSecurityAnswers  = "person:GetSecurityAnswers"
	MsgPersonListAvailablePlaces = "person:ListAvailablePlaces"
	MsgPersonPromoteToAccount    = "person:PromoteToAccount"

	// Service-addressed list/query/record operations whose target place is
	// embedded in the message payload.
	MsgRuleListRules       = "rule:ListRules"
	MsgSceneListScenes     = "scene:ListScenes"
	MsgSceneListTemplates  = "scene:ListSceneTemplates"
	MsgSchedListSchedulers = "sched:ListSchedulers"
	MsgSubsListSubsystems  = "subs:ListSubsystems"
	MsgVideoListRecordings = "video:ListRecordings"
	MsgVideoPageRecordings = "video:PageRecordings"
	MsgVideoStartRecording = "video:StartRecording"
	MsgVideoStopRecording  = "video:StopRecording"
	MsgVideoGetQuota       = "video:GetQuota"
	MsgVideoDeleteAll      = "video:DeleteAll"
)

// Category classifies a message type for the role strategy. Categories are
// evaluated in declaration order; the first (and only) category a type maps
// to decides and short-circuits.
type Category int

// Rule-table categories, priority order.
const (
	// CategoryDefault is the fallthrough for unclassified types: the
	// default path's place checks apply.
	CategoryDefault Category = iota

	// CategoryBlocked operations are never authorized through this path.
	CategoryBlocked

	// CategoryOwner operations require an account-owner grant for the
	// target place.
	CategoryOwner

	// CategoryAnyone operations need authentication only.
	CategoryAnyone

	// CategorySelf operations may only target the acting principal's own
	// identity.
	CategorySelf

	// CategoryPlaceQuery operations are service-addressed but scoped to a
	// place embedded in the message payload.
	CategoryPlaceQuery
)

var categoryStrings = [...]string{
	"default",
	"blocked",
	"owner",
	"anyone",
	"self",
	"place_query",
}

func (c Category) String() string {
	if c >= 0 && int(c) < len(categoryStrings) {
		return categoryStrings[c]
	}
	return "unknown"
}

// messageCategories is the rule table. Each known message type maps to
// exactly one category; anything absent falls through to CategoryDefault.
var messageCategories = map[string]Category{
	MsgAccountIssueCredit:        CategoryBlocked,
	MsgAccountIssueInvoiceRefund: CategoryBlocked,
	MsgNoteNotify:                CategoryBlocked,

	MsgAccountAddPlace:             CategoryOwner,
	MsgAccountCreateBillingAccount: CategoryOwner,
	MsgAccountDelete:               CategoryOwner,
	MsgAccountListInvoices:         CategoryOwner,
	MsgAccountListAdjustments:      CategoryOwner,
	MsgAccountUpdateBillingInfo:    CategoryOwner,
	MsgAccountUpdateServicePlan:    CategoryOwner,
	MsgPlaceDelete:                 CategoryOwner,
	MsgAccountListDevices:          CategoryOwner,
	MsgAccountListHubs:             CategoryOwner,

	MsgPersonAcceptInvitation:   CategoryAnyone,
	MsgPersonPendingInvitations: CategoryAnyone,
	MsgPersonRejectInvitation:   CategoryAnyone,
	MsgPlaceValidateAddress:     CategoryAnyone,
	MsgPlatformPing:             CategoryAnyone,

	MsgPersonAddMobileDevice:     CategorySelf,
	MsgPersonRemoveMobileDevice:  CategorySelf,
	MsgPersonListMobileDevices:   CategorySelf,
	MsgPersonSetSecurityAnswers:  CategorySelf,
	MsgPersonGetSecurityAnswers:  CategorySelf,
	MsgPersonListAvailablePlaces: CategorySelf,
	MsgPersonPromoteToAccount:    CategorySelf,

	MsgRuleListRules:       CategoryPlaceQuery,
	MsgSceneListScenes:     CategoryPlaceQuery,
	MsgSceneListTemplates:  CategoryPlaceQuery,
	MsgSchedListSchedulers: CategoryPlaceQuery,
	MsgSubsListSubsystems:  CategoryPlaceQuery,
	MsgVideoListRecordings: CategoryPlaceQuery,
	MsgVideoPageRecordings: CategoryPlaceQuery,
	MsgVideoStartRecording: CategoryPlaceQuery,
	MsgVideoStopRecording:  CategoryPlaceQuery,
	MsgVideoGetQuota:       CategoryPlaceQuery,
	MsgVideoDeleteAll:      CategoryPlaceQuery,
}

// CategoryOf returns the rule-table category for a message type.
// Unclassified types fall through to CategoryDefault.
func CategoryOf(messageType string) Category {
	return messageCategories[messageType]
}

// KnownMessageTypes returns the message types the rule table classifies.
func KnownMessageTypes() []string {
	types := make([]string, 0, len(messageCategories))
	for t := range messageCategories {
		types = append(types, t)
	}
	return types
}

// RoleAuthorizer decides by role and rule table rather than permission
// evaluation. It backs support-agent sessions, where grants carry ownership
// flags but no permission strings. Filter is identity; this strategy never
// redacts payloads.
type RoleAuthorizer struct {
	metrics            *Metrics
	logger             *slog.Logger
	audit              *audit.Logger
	requirePlaceHeader bool
	enforceSelfCheck   bool
}

// NewRoleAuthorizer builds the rule-table strategy from opts.
func NewRoleAuthorizer(opts Options) *RoleAuthorizer {
	return &RoleAuthorizer{
		metrics:            opts.Metrics,
		logger:             opts.logger(),
		audit:              opts.Audit,
		requirePlaceHeader: opts.RequirePlaceHeader,
		enforceSelfCheck:   opts.EnforceSelfCheck,
	}
}

// Authorize implements Authorizer. Exactly one audit counter is
// incremented on every decision; malformed request parameters surface as
// INVALID_PARAMETER errors instead.
func (r *RoleAuthorizer) Authorize(ctx context.Context, actx *Context, placeID uuid.UUID, msg *Message) (bool, error) {
	start := time.Now()
	allowed, reason, err := r.decide(ctx, actx, placeID, msg)
	if err != nil {
		return false, err
	}
	r.audit.Record(ctx, audit.Entry{
		Subject:     actx.SubjectString(),
		MessageType: msg.Type,
		PlaceID:     placeID.String(),
		Authorized:  allowed,
		Reason:      reason,
		Duration:    time.Since(start),
	})
	return allowed, nil
}

func (r *RoleAuthorizer) decide(ctx context.Context, actx *Context, placeID uuid.UUID, msg *Message) (bool, string, error) {
	switch CategoryOf(msg.Type) {
	case CategoryBlocked:
		r.metrics.BlockedSupportOp.Inc()
		r.logger.WarnContext(ctx, "blocked support operation",
			"messageType", msg.Type,
			"subject", actx.SubjectString())
		return false, "blocked support operation", nil

	case CategoryOwner:
		return r.authorizeOwner(ctx, actx, placeID, msg)

	case CategoryAnyone:
		r.metrics.Authorized.Inc()
		return true, "open operation", nil

	case CategorySelf:
		return r.authorizeSelf(ctx, actx, msg)

	case CategoryPlaceQuery:
		if msg.Destination.IsService() {
			return r.authorizeEmbeddedPlace(ctx, actx, msg)
		}
		return r.authorizeDefault(ctx, actx, placeID, msg)

	default:
		return r.authorizeDefault(ctx, actx, placeID, msg)
	}
}

// Filter implements Authorizer; role-based authorization does not redact.
func (r *RoleAuthorizer) Filter(_ context.Context, _ *Context, _ uuid.UUID, msg *Message) (*Message, error) {
	return msg, nil
}

// authorizeOwner requires an account-owner grant for the target place. The
// target is the session place except for place deletion (destination id)
// and service-plan updates (embedded placeId attribute).
func (r *RoleAuthorizer) authorizeOwner(ctx context.Context, actx *Context, placeID uuid.UUID, msg *Message) (bool, string, error) {
	target := placeID
	switch msg.Type {
	case MsgPlaceDelete:
		id, err := r.destinationPlaceID(msg)
		if err != nil {
			return false, "", err
		}
		target = id
	case MsgAccountUpdateServicePlan:
		id, err := msg.EmbeddedPlaceID()
		if err != nil {
			return false, "", err
		}
		target = id
	}

	if actx.OwnsAccountAt(target) {
		r.metrics.Authorized.Inc()
		return true, "account owner", nil
	}
	r.metrics.NonAccountHolder.Inc()
	r.logger.DebugContext(ctx, "account ownership required",
		"messageType", msg.Type,
		"subject", actx.SubjectString(),
		"placeID", target.String())
	return false, "account ownership required", nil
}

// authorizeSelf requires the actor to be the destination: a person may only
// perform these operations on their own identity. Togglable by
// configuration.
func (r *RoleAuthorizer) authorizeSelf(ctx context.Context, actx *Context, msg *Message) (bool, string, error) {
	if !r.enforceSelfCheck || msg.Actor.String() == msg.Destination.String() {
		r.metrics.Authorized.Inc()
		return true, "self-service operation", nil
	}
	r.metrics.WrongPerson.Inc()
	r.logger.DebugContext(ctx, "self-service operation targeting another person",
		"messageType", msg.Type,
		"subject", actx.SubjectString(),
		"actor", msg.Actor.String(),
		"destination", msg.Destination.String())
	return false, "self-service operation targeting another person", nil
}

// authorizeEmbeddedPlace handles service-addressed place queries: the
// target place comes from the payload, and holding any permission at all
// for it suffices. Specific permission strings are not evaluated here.
func (r *RoleAuthorizer) authorizeEmbeddedPlace(ctx context.Context, actx *Context, msg *Message) (bool, string, error) {
	target, err := msg.EmbeddedPlaceID()
	if err != nil {
		return false, "", err
	}
	return r.authorizeAnyPermission(ctx, actx, target, msg)
}

// authorizeDefault is category 5: a non-empty session place is required
// (togglable), except that place-scoped destinations are checked against
// the destination's own place id.
func (r *RoleAuthorizer) authorizeDefault(ctx context.Context, actx *Context, placeID uuid.UUID, msg *Message) (bool, string, error) {
	if msg.Destination.PlaceScoped() {
		target, err := msg.Destination.PlaceID()
		if err != nil {
			return false, "", err
		}
		return r.authorizeAnyPermission(ctx, actx, target, msg)
	}

	if r.requirePlaceHeader && placeID == uuid.Nil {
		r.metrics.NoPlace.Inc()
		r.logger.DebugContext(ctx, "no place bound to session",
			"messageType", msg.Type,
			"subject", actx.SubjectString())
		return false, "no place bound to session", nil
	}

	r.metrics.Authorized.Inc()
	return true, "place precondition met", nil
}

func (r *RoleAuthorizer) authorizeAnyPermission(ctx context.Context, actx *Context, target uuid.UUID, msg *Message) (bool, string, error) {
	if actx.HasAnyPermission(target) {
		r.metrics.Authorized.Inc()
		return true, "holds permissions for target place", nil
	}
	r.metrics.NonAccountHolder.Inc()
	r.logger.DebugContext(ctx, "no permissions held for target place",
		"messageType", msg.Type,
		"subject", actx.SubjectString(),
		"placeID", target.String())
	return false, "no permissions held for target place", nil
}

// destinationPlaceID extracts the place id from the message destination for
// operations addressed directly at a place.
func (r *RoleAuthorizer) destinationPlaceID(msg *Message) (uuid.UUID, error) {
	id, err := uuid.Parse(msg.Destination.ID)
	if err != nil {
		return uuid.Nil, oopsInvalidDestination(msg, err)
	}
	return id, nil
}
