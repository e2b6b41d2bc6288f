// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package authz

import (
	"strings"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Address groups identify what kind of endpoint a platform address names.
const (
	GroupService   = "serv"
	GroupDevice    = "dev"
	GroupPlace     = "place"
	GroupPerson    = "person"
	GroupAccount   = "acct"
	GroupHub       = "hub"
	GroupSubsystem = "sub"
)

// knownGroups lists the valid address group tokens.
var knownGroups = []string{
	GroupService,
	GroupDevice,
	GroupPlace,
	GroupPerson,
	GroupAccount,
	GroupHub,
	GroupSubsystem,
}

// Address is a platform message address of the form "group:namespace:id".
// Service-level addresses carry an empty id ("serv:scene:"); subsystem
// addresses are place-scoped, their id is the place the subsystem instance
// belongs to ("sub:security:<placeID>").
type Address struct {
	Group     string
	Namespace string
	ID        string
}

// ParseAddress parses a "group:namespace:id" address string. The id segment
// may be empty (a namespace-level service address); the group must be one
// of the known tokens and the namespace must be non-empty.
func ParseAddress(s string) (Address, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Address{}, oops.
			Code(ErrCodeInvalidAddress).
			With("address", s).
			Errorf("expected group:namespace:id")
	}
	addr := Address{Group: parts[0], Namespace: parts[1], ID: parts[2]}
	if !contains(knownGroups, addr.Group) {
		return Address{}, oops.
			Code(ErrCodeInvalidAddress).
			With("address", s).
			Errorf("unknown address group %q", addr.Group)
	}
	if addr.Namespace == "" {
		return Address{}, oops.
			Code(ErrCodeInvalidAddress).
			With("address", s).
			Errorf("empty namespace segment")
	}
	return addr, nil
}

// ServiceAddress returns the namespace-level service address for a
// namespace, e.g. ServiceAddress("scene") == "serv:scene:".
func ServiceAddress(namespace string) Address {
	return Address{Group: GroupService, Namespace: namespace}
}

// DeviceAddress returns the address of one device instance.
func DeviceAddress(deviceID string) Address {
	return Address{Group: GroupDevice, Namespace: GroupDevice, ID: deviceID}
}

// PersonAddress returns the address of one person.
func PersonAddress(personID string) Address {
	return Address{Group: GroupPerson, Namespace: GroupPerson, ID: personID}
}

// PlaceAddress returns the address of one place.
func PlaceAddress(placeID string) Address {
	return Address{Group: GroupPlace, Namespace: GroupPlace, ID: placeID}
}

// AccountAddress returns the address of one account.
func AccountAddress(accountID string) Address {
	return Address{Group: GroupAccount, Namespace: GroupAccount, ID: accountID}
}

// SubsystemAddress returns the address of a subsystem instance at a place.
func SubsystemAddress(namespace, placeID string) Address {
	return Address{Group: GroupSubsystem, Namespace: namespace, ID: placeID}
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.Group == "" && a.Namespace == "" && a.ID == ""
}

// IsService reports whether the address names a namespace-level service
// rather than a concrete instance.
func (a Address) IsService() bool {
	return a.Group == GroupService || a.ID == ""
}

// PlaceScoped reports whether the address belongs to a place-scoped
// namespace, i.e. its id segment is the owning place's id.
func (a Address) PlaceScoped() bool {
	return a.Group == GroupSubsystem
}

// PlaceID returns the place id carried by a place-scoped address, parsed
// and validated. Returns an INVALID_PARAMETER error when the id segment is
// not a well-formed identifier, so callers can distinguish a bad request
// from a denial.
func (a Address) PlaceID() (uuid.UUID, error) {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return uuid.Nil, oops.
			Code(ErrCodeInvalidParameter).
			With("address", a.String()).
			Wrapf(err, "malformed place id in address")
	}
	return id, nil
}

// String renders the address in wire form.
func (a Address) String() string {
	return a.Group + ":" + a.Namespace + ":" + a.ID
}

// AttrPlaceID is the attribute key messages use to embed a target place id.
const AttrPlaceID = "placeId"

// Message is the shape of a platform request or response as seen by the
// authorization core: an opaque type string, an optional declared place
// header, a destination, the acting principal's address, and a string-keyed
// attribute payload.
type Message struct {
	Type        string
	PlaceID     string
	Destination Address
	Actor       Address
	Attributes  map[string]any
}

// Clone returns a copy with its own attribute map, for filters that redact
// outgoing messages without touching the original.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	dup := *m
	if m.Attributes != nil {
		dup.Attributes = make(map[string]any, len(m.Attributes))
		for k, v := range m.Attributes {
			dup.Attributes[k] = v
		}
	}
	return &dup
}

// EmbeddedPlaceID reads and validates the placeId attribute from the
// message payload. Returns an INVALID_PARAMETER error when the attribute is
// absent, not a string, or not a well-formed identifier.
func (m *Message) EmbeddedPlaceID() (uuid.UUID, error) {
	raw, ok := m.Attributes[AttrPlaceID]
	if !ok {
		return uuid.Nil, oops.
			Code(ErrCodeInvalidParameter).
			With("messageType", m.Type).
			Errorf("missing %s attribute", AttrPlaceID)
	}
	s, ok := raw.(string)
	if !ok {
		return uuid.Nil, oops.
			Code(ErrCodeInvalidParameter).
			With("messageType", m.Type).
			Errorf("%s attribute is not a string", AttrPlaceID)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, oops.
			Code(ErrCodeInvalidParameter).
			With("messageType", m.Type).
			With(AttrPlaceID, s).
			Wrapf(err, "malformed %s attribute", AttrPlaceID)
	}
	return id, nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
