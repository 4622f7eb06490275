package job

import (
	"encoding/json"
	"time"
)

// Job is a queued task whose handler failed. Payload is the original message
// body, so a retry republishes it unchanged to Topic.
type Job struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Subject   string          `json:"subject"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}
