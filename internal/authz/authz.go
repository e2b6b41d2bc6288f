// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

// Package authz is the authorization core of the Hearthgate platform.
//
// Given a request message addressed to a place (a household), it decides
// whether the acting principal may perform the request, and it can redact
// parts of an outgoing message the principal is not entitled to see.
// Decisions flow through one of three interchangeable strategies selected
// at startup:
//
//   - AlgorithmPermissions (default): wildcard permission strings with
//     instance-over-class precedence, driven by an injected
//     permission-requirement registry.
//   - AlgorithmRole: a static, ordered rule table keyed by message type,
//     used for support-agent sessions.
//   - AlgorithmNone: pass-through for administratively disabled
//     environments.
//
// Strategies are stateless singletons; contexts are immutable after
// construction. Nothing on the decision path blocks or performs I/O.
package authz

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/hearthgate/hearthgate/internal/authz/audit"
)

// Algorithm names an authorizer strategy. Selection happens once at
// process configuration time and is fixed for the process lifetime.
type Algorithm string

// Supported algorithms.
const (
	AlgorithmNone        Algorithm = "none"
	AlgorithmRole        Algorithm = "role"
	AlgorithmPermissions Algorithm = "permissions"
)

// ParseAlgorithm validates an algorithm name from configuration. An empty
// name selects the permission-based default.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case AlgorithmNone, AlgorithmRole, AlgorithmPermissions:
		return Algorithm(name), nil
	case "":
		return AlgorithmPermissions, nil
	default:
		return "", oops.
			Code(ErrCodeUnknownAlgorithm).
			With("algorithm", name).
			Errorf("unknown authorizer algorithm %q", name)
	}
}

// Authorizer is the common decision contract implemented by the three
// strategies. Implementations are safe for unsynchronized concurrent use.
type Authorizer interface {
	// Authorize decides whether the principal behind actx may perform msg.
	// placeID is the place bound to the session; uuid.Nil means no place is
	// bound. A false result is the normal "unauthorized" outcome; a non-nil
	// error signals a malformed request (INVALID_PARAMETER), never a denial.
	Authorize(ctx context.Context, actx *Context, placeID uuid.UUID, msg *Message) (bool, error)

	// Filter returns a possibly-redacted copy of an outbound message for
	// this principal, or nil to drop the message entirely (used when the
	// message and session place disagree).
	Filter(ctx context.Context, actx *Context, placeID uuid.UUID, msg *Message) (*Message, error)
}

// Options bundles the collaborators a strategy needs. Metrics is required
// for the role and permission strategies; Requirements and Filters are only
// consulted by the permission strategy; Logger falls back to slog.Default.
type Options struct {
	Metrics      *Metrics
	Requirements RequirementRegistry
	Filters      FilterRegistry
	Logger       *slog.Logger

	// Audit optionally records every decision; nil disables audit logging.
	Audit *audit.Logger

	// RequirePlaceHeader controls whether the role strategy's default path
	// demands a session place.
	RequirePlaceHeader bool

	// EnforceSelfCheck controls whether the role strategy enforces the
	// actor-equals-destination rule for self-service operations.
	EnforceSelfCheck bool
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// NewAuthorizer constructs the strategy named by algorithm. The selection
// is fixed for the process lifetime; callers must not switch strategies per
// request.
func NewAuthorizer(algorithm Algorithm, opts Options) (Authorizer, error) {
	switch algorithm {
	case AlgorithmNone:
		return NewNoopAuthorizer(opts.logger()), nil
	case AlgorithmRole:
		if opts.Metrics == nil {
			return nil, oops.Errorf("role authorizer requires metrics")
		}
		return NewRoleAuthorizer(opts), nil
	case AlgorithmPermissions, "":
		if opts.Metrics == nil {
			return nil, oops.Errorf("permissions authorizer requires metrics")
		}
		return NewPermissionsAuthorizer(opts), nil
	default:
		return nil, oops.
			Code(ErrCodeUnknownAlgorithm).
			With("algorithm", string(algorithm)).
			Errorf("unknown authorizer algorithm %q", string(algorithm))
	}
}
