package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string. It identifies poll sessions and the
// executions created by the fake backend.
func NewID() string {
	return ulid.Make().String()
}
