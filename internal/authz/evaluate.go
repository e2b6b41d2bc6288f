// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package authz

import "github.com/google/uuid"

// IsPermitted evaluates a list of required permissions against the
// principal's grants for one place. An empty or nil requirement list is
// vacuously permitted; a message that asserts no requirement is always
// allowed by this layer.
//
// Per requirement, instance permissions take precedence: the first
// instance-scoped grant naming the requirement's resource instance is
// authoritative and its Implies result is returned immediately, regardless
// of what class-level grants would allow. A narrowly scoped grant (or an
// explicit empty-action non-grant) for one instance always wins over a
// broader class grant. If no instance permission matches, any class-level
// permission implying the requirement satisfies it.
//
// All requirements must be individually satisfied for the overall result
// to be true.
func IsPermitted(actx *Context, placeID uuid.UUID, required []Permission) bool {
	if actx == nil {
		return len(required) == 0
	}
	instance := actx.InstancePermissions(placeID)
	class := actx.NonInstancePermissions(placeID)

	for _, req := range required {
		if !isRequirementMet(instance, class, req) {
			return false
		}
	}
	return true
}

func isRequirementMet(instance, class []Permission, required Permission) bool {
	// First instance match wins; there is no combining of multiple instance
	// permissions for the same resource.
	for _, granted := range instance {
		if granted.ShouldEvaluate(required) {
			return granted.Implies(required)
		}
	}
	for _, granted := range class {
		if granted.Implies(required) {
			return true
		}
	}
	return false
}
