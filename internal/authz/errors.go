// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package authz

import "github.com/samber/oops"

// Error codes attached to oops errors raised by this package.
const (
	// ErrCodeMalformedPermission marks a grant permission string that does
	// not parse. Fatal at context construction; never silently dropped.
	ErrCodeMalformedPermission = "MALFORMED_PERMISSION"

	// ErrCodeInvalidParameter marks a message-embedded field (such as an
	// embedded placeId) that is required for a place-scoped check but is
	// malformed. Surfaced to the caller as a validation failure so operators
	// can tell a bad request apart from a denial.
	ErrCodeInvalidParameter = "INVALID_PARAMETER"

	// ErrCodeInvalidAddress marks a platform address string that does not
	// parse.
	ErrCodeInvalidAddress = "INVALID_ADDRESS"

	// ErrCodeInvalidPattern marks a registry message-type pattern that fails
	// to compile.
	ErrCodeInvalidPattern = "INVALID_PATTERN"

	// ErrCodeUnauthorized is the stable code callers use to turn a false
	// decision into a protocol-level error response.
	ErrCodeUnauthorized = "UNAUTHORIZED"

	// ErrCodeUnknownAlgorithm marks an unrecognized authorizer algorithm
	// name in configuration.
	ErrCodeUnknownAlgorithm = "UNKNOWN_ALGORITHM"
)

// NewUnauthorizedError builds the error value callers return when a
// decision comes back false. It is an expected outcome, not a fault.
func NewUnauthorizedError(subject, messageType string) error {
	return oops.
		Code(ErrCodeUnauthorized).
		With("subject", subject).
		With("messageType", messageType).
		Errorf("%s is not authorized to perform %s", subject, messageType)
}

// IsInvalidParameter reports whether err carries the INVALID_PARAMETER code.
func IsInvalidParameter(err error) bool {
	return hasCode(err, ErrCodeInvalidParameter)
}

// IsUnauthorized reports whether err carries the UNAUTHORIZED code.
func IsUnauthorized(err error) bool {
	return hasCode(err, ErrCodeUnauthorized)
}

// oopsInvalidDestination wraps a destination-parsing failure as an
// INVALID_PARAMETER error carrying the message context.
func oopsInvalidDestination(msg *Message, err error) error {
	return oops.
		Code(ErrCodeInvalidParameter).
		With("messageType", msg.Type).
		With("destination", msg.Destination.String()).
		Wrapf(err, "malformed place id in destination")
}

func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	oopsErr, ok := oops.AsOops(err)
	return ok && oopsErr.Code() == code
}
