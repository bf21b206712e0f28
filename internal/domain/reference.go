package domain

import (
	"fmt"
	"strings"
)

// ReferenceKind discriminates the entity an external reference points to.
type ReferenceKind string

const (
	KindMembership ReferenceKind = "membresia"
	KindEnrollment ReferenceKind = "inscripcion"
)

// ReferenceSeparator is reserved: entity ids may not contain it.
const ReferenceSeparator = ":"

// legacySeparator is the delimiter used by references created before the
// structured format. Only the first occurrence splits kind from id.
const legacySeparator = "-"

// Valid reports whether k is a known kind.
func (k ReferenceKind) Valid() bool {
	return k == KindMembership || k == KindEnrollment
}

// MockPath is the frontend route segment used by mock checkouts.
func (k ReferenceKind) MockPath() string {
	if k == KindEnrollment {
		return "curso"
	}
	return string(k)
}

// ExternalReference maps a gateway payment back to a local entity.
type ExternalReference struct {
	Kind     ReferenceKind
	EntityID string
}

// NewExternalReference validates kind and id. Ids carrying the reserved
// separator or surrounding whitespace are refused so that parsing always
// returns the same id.
func NewExternalReference(kind ReferenceKind, entityID string) (ExternalReference, error) {
	if !kind.Valid() {
		return ExternalReference{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidReference, kind)
	}
	if strings.TrimSpace(entityID) == "" {
		return ExternalReference{}, fmt.Errorf("%w: empty entity id", ErrInvalidReference)
	}
	if strings.TrimSpace(entityID) != entityID {
		return ExternalReference{}, fmt.Errorf("%w: entity id %q has surrounding whitespace", ErrInvalidReference, entityID)
	}
	if strings.Contains(entityID, ReferenceSeparator) {
		return ExternalReference{}, fmt.Errorf("%w: entity id %q contains %q", ErrInvalidReference, entityID, ReferenceSeparator)
	}
	return ExternalReference{Kind: kind, EntityID: entityID}, nil
}

// String encodes the reference as "<kind>:<entityId>".
func (r ExternalReference) String() string {
	return string(r.Kind) + ReferenceSeparator + r.EntityID
}

// ParseExternalReference decodes both "<kind>:<entityId>" and the legacy
// "<kind>-<entityId>" shape. Unknown kinds return ErrInvalidReference.
func ParseExternalReference(raw string) (ExternalReference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ExternalReference{}, fmt.Errorf("%w: empty reference", ErrInvalidReference)
	}

	kind, id, ok := strings.Cut(raw, ReferenceSeparator)
	if !ok {
		kind, id, ok = strings.Cut(raw, legacySeparator)
		if !ok {
			return ExternalReference{}, fmt.Errorf("%w: %q has no separator", ErrInvalidReference, raw)
		}
	}

	return NewExternalReference(ReferenceKind(kind), strings.TrimSpace(id))
}
