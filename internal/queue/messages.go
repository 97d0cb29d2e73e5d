package queue

import (
	"encoding/json"
	"time"
)

// Outcome labels carried by OutcomeMessage.
const (
	OutcomeConnected = "connected"
	OutcomeTimedOut  = "timed_out"
	OutcomeFailed    = "failed"
)

// OutcomeMessage reports how one orchestration run ended.
type OutcomeMessage struct {
	CallID            string    `json:"call_id,omitempty"`
	Outcome           string    `json:"outcome"`
	Status            string    `json:"status,omitempty"`
	State             *string   `json:"state,omitempty"`
	PromptOperationID string    `json:"play_prompt_operation_id,omitempty"`
	Participants      int       `json:"participants"`
	Error             string    `json:"error,omitempty"`
	DurationMs        int64     `json:"duration_ms"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// NotificationMessage carries a raw platform event notification.
type NotificationMessage struct {
	CallID     string          `json:"call_id,omitempty"`
	ChangeType string          `json:"change_type,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}
