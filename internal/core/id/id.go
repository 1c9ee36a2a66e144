// Package id provides the runtime type of id-typed attributes.
package id

import (
	"github.com/google/uuid"
)

// ID is the value of an id-typed attribute.
type ID = uuid.UUID

// New generates a time-ordered UUIDv7, falling back to a random UUIDv4.
func New() ID {
	v, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return v
}

// Parse converts the canonical text form to an ID.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// FromBytes converts a 16 byte array, as returned by database drivers.
func FromBytes(b [16]byte) ID {
	return ID(b)
}
