package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DetectionRequestMessage asks a worker to run recurring detection for one
// user. The worker reads the user's history from storage itself.
type DetectionRequestMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDetectionRequestMessage creates a message with a fresh ID.
func NewDetectionRequestMessage(userID, requestID string) *DetectionRequestMessage {
	return &DetectionRequestMessage{
		ID:        uuid.NewString(),
		UserID:    userID,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	}
}

func (m *DetectionRequestMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return errors.New("detection request without user_id")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *DetectionRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DetectionRequestMessageFromJSON decodes and validates a message.
func DetectionRequestMessageFromJSON(data []byte) (*DetectionRequestMessage, error) {
	var msg DetectionRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
