package core

import "github.com/google/uuid"

// Identifier tags GPU objects so their lifecycle can be followed in the logs.
type Identifier uuid.UUID

func NewIdentifier() Identifier {
	return Identifier(uuid.New())
}

func (id Identifier) String() string {
	return uuid.UUID(id).String()
}

// Short is the first block of the uuid, enough to tell objects apart in a log line.
func (id Identifier) Short() string {
	return id.String()[:8]
}
