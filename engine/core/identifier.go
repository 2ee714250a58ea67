package core

import (
	"fmt"

	"github.com/google/uuid"
)

// ObjectID names a device object for logs and debug markers.
type ObjectID uuid.UUID

var NilObjectID = ObjectID(uuid.Nil)

func NewObjectID() ObjectID {
	return ObjectID(uuid.New())
}

func (id ObjectID) String() string {
	return uuid.UUID(id).String()
}

// Short returns the first 8 characters of the id.
func (id ObjectID) Short() string {
	return id.String()[:8]
}

// DebugName joins a kind with the short id, e.g. "fence-1a2b3c4d".
func DebugName(kind string, id ObjectID) string {
	return fmt.Sprintf("%s-%s", kind, id.Short())
}
