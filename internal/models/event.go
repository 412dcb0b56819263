package models

import (
	"time"
)

// StatusEvent is one entry in a validation's status stream. An event is
// emitted whenever a source changes status and once more when the whole
// validation completes.
type StatusEvent struct {
	SessionID string       `json:"sessionId"`
	Source    Source       `json:"source,omitempty"`
	Status    SourceStatus `json:"status,omitempty"`
	Composite int          `json:"composite"`
	Completed bool         `json:"completed"`
	At        time.Time    `json:"at"`
}
