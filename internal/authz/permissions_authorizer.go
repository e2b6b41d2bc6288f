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

// PermissionsAuthorizer is the default strategy: it resolves the
// permissions a message type requires through an injected registry and
// evaluates them against the principal's grants with instance precedence.
type PermissionsAuthorizer struct {
	metrics      *Metrics
	requirements RequirementRegistry
	filters      FilterRegistry
	logger       *slog.Logger
	audit        *audit.Logger
}

// NewPermissionsAuthorizer builds the permission-based strategy from opts.
// Nil registries behave as empty: every message type is unclassified and
// every filter is identity.
func NewPermissionsAuthorizer(opts Options) *PermissionsAuthorizer {
	return &PermissionsAuthorizer{
		metrics:      opts.Metrics,
		requirements: opts.Requirements,
		filters:      opts.Filters,
		logger:       opts.logger(),
		audit:        opts.Audit,
	}
}

// Authorize implements Authorizer. Requests are denied outright when no
// place is bound to the session or when the session place disagrees with
// the message's declared place (defense against cross-tenant replay).
// A message type with no registered requirement is permitted: an explicit,
// intentional fail-open for unclassified message types, logged and counted
// so operators can inventory them.
func (p *PermissionsAuthorizer) Authorize(ctx context.Context, actx *Context, placeID uuid.UUID, msg *Message) (bool, error) {
	start := time.Now()
	allowed, reason := p.decide(ctx, actx, placeID, msg)
	p.audit.Record(ctx, audit.Entry{
		Subject:     actx.SubjectString(),
		MessageType: msg.Type,
		PlaceID:     placeID.String(),
		Authorized:  allowed,
		Reason:      reason,
		Duration:    time.Since(start),
	})
	return allowed, nil
}

func (p *PermissionsAuthorizer) decide(ctx context.Context, actx *Context, placeID uuid.UUID, msg *Message) (bool, string) {
	if placeID == uuid.Nil {
		p.metrics.NoPlace.Inc()
		p.logger.DebugContext(ctx, "no place bound to session",
			"messageType", msg.Type,
			"subject", actx.SubjectString())
		return false, "no place bound to session"
	}
	if !p.placeMatches(ctx, actx, placeID, msg) {
		p.metrics.WrongPlace.Inc()
		return false, "message place does not match session place"
	}

	required, ok := p.lookupRequirements(msg.Type)
	if !ok {
		p.metrics.Unclassified.Inc()
		p.logger.WarnContext(ctx, "no permission requirement registered for message type, allowing",
			"messageType", msg.Type,
			"subject", actx.SubjectString())
		p.metrics.Authorized.Inc()
		return true, "unclassified message type"
	}

	if IsPermitted(actx, placeID, required) {
		p.metrics.Authorized.Inc()
		return true, "permission requirement met"
	}

	p.metrics.NonAccountHolder.Inc()
	p.logger.DebugContext(ctx, "permission requirement not met",
		"messageType", msg.Type,
		"subject", actx.SubjectString(),
		"placeID", placeID.String(),
		"required", sortedPermissionStrings(required))
	return false, "permission requirement not met"
}

// Filter implements Authorizer. A place mismatch drops the message (nil
// result); otherwise the registered per-type filter runs, defaulting to
// identity.
func (p *PermissionsAuthorizer) Filter(ctx context.Context, actx *Context, placeID uuid.UUID, msg *Message) (*Message, error) {
	if placeID == uuid.Nil || !p.placeMatches(ctx, actx, placeID, msg) {
		return nil, nil
	}
	if p.filters != nil {
		if fn, ok := p.filters.MessageFilter(msg.Type); ok {
			return fn(actx, placeID, msg), nil
		}
	}
	return msg, nil
}

func (p *PermissionsAuthorizer) lookupRequirements(messageType string) ([]Permission, bool) {
	if p.requirements == nil {
		return nil, false
	}
	return p.requirements.RequiredPermissions(messageType)
}

// placeMatches enforces the session/message place agreement guard shared by
// Authorize and Filter.
func (p *PermissionsAuthorizer) placeMatches(ctx context.Context, actx *Context, placeID uuid.UUID, msg *Message) bool {
	if msg.PlaceID != "" && msg.PlaceID != placeID.String() {
		p.logger.DebugContext(ctx, "message place does not match session place",
			"messageType", msg.Type,
			"subject", actx.SubjectString(),
			"sessionPlace", placeID.String(),
			"messagePlace", msg.PlaceID)
		return false
	}
	return true
}
