package bus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// InvalidationMessage is the wire format for dependency invalidation
// broadcasts. Origin identifies the publishing process so subscribers can
// skip their own broadcasts.
type InvalidationMessage struct {
	ID         string    `json:"id"`
	Origin     string    `json:"origin"`
	Dependency string    `json:"dependency"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewInvalidationMessage creates a new invalidation message
func NewInvalidationMessage(origin, dependency string) *InvalidationMessage {
	return &InvalidationMessage{
		ID:         uuid.NewString(),
		Origin:     origin,
		Dependency: dependency,
		Timestamp:  time.Now().UTC(),
	}
}

// Marshal converts the message to JSON bytes
func (m *InvalidationMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalInvalidationMessage unmarshals an invalidation message from JSON
func UnmarshalInvalidationMessage(data []byte) (*InvalidationMessage, error) {
	var msg InvalidationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
