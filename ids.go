package relaydb

import "github.com/google/uuid"

// NewEntityID generates a locally-created entity id, a UUID v4 string.
func NewEntityID() string {
	return uuid.NewString()
}
