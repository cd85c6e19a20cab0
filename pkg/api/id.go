package api

import (
	"github.com/oklog/ulid/v2"
)

// NewRunID returns a new run identifier. ULIDs sort by creation time, which
// keeps history listings ordered without a separate timestamp index.
func NewRunID() string {
	return ulid.Make().String()
}

// ValidateRunID reports whether id is a well-formed run identifier.
func ValidateRunID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}
