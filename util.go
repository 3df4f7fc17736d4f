package aggregator

import (
	"github.com/google/uuid"
)

// NewID generates a new unique ID for aggregators and subscriptions.
func NewID() string {
	u, err := uuid.NewRandom()
	if err != nil {
		return ""
	}
	return u.String()
}
