package model

import "github.com/oklog/ulid/v2"

// NewID returns a new ULID string. Executions and agents share the id space;
// ULIDs sort by creation time, which keeps list queries cheap.
func NewID() string {
	return ulid.Make().String()
}
