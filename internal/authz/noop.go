// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package authz

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NoopAuthorizer authorizes everything and filters nothing. Used only when
// authorization is administratively disabled; every call is still logged at
// debug level for audit continuity.
type NoopAuthorizer struct {
	logger *slog.Logger
}

// NewNoopAuthorizer creates a pass-through authorizer.
func NewNoopAuthorizer(logger *slog.Logger) *NoopAuthorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopAuthorizer{logger: logger}
}

// Authorize implements Authorizer; always true.
func (n *NoopAuthorizer) Authorize(ctx context.Context, actx *Context, placeID uuid.UUID, msg *Message) (bool, error) {
	n.logger.DebugContext(ctx, "authorization disabled, request allowed",
		"subject", actx.SubjectString(),
		"messageType", msg.Type,
		"placeID", placeID.String())
	return true, nil
}

// Filter implements Authorizer; identity.
func (n *NoopAuthorizer) Filter(ctx context.Context, actx *Context, placeID uuid.UUID, msg *Message) (*Message, error) {
	n.logger.DebugContext(ctx, "authorization disabled, message unfiltered",
		"subject", actx.SubjectString(),
		"messageType", msg.Type,
		"placeID", placeID.String())
	return msg, nil
}
