package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType categorizes the kind of event.
type EventType string

const (
	EventTypeHello      EventType = "hello"
	EventTypeLog        EventType = "log"
	EventTypeNodeStatus EventType = "node_status"
	EventTypeRunStatus  EventType = "run_status"
	EventTypeNodeOutput EventType = "node_output"
	EventTypeError      EventType = "error"
	EventTypeStreamEnd  EventType = "stream_end"

	// EventTypeResult tags the NDJSON stdout line carrying a skill's output.
	EventTypeResult EventType = "result"
)

// LogLevel represents the severity of a log event.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// Event represents a single event in a run's event stream. Seq is assigned
// by the run store when the event is appended; ID is its string form and is
// what SSE clients send back as Last-Event-ID.
type Event struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq"`
	RunID     string          `json:"run_id"`
	Type      EventType       `json:"type"`
	NodeID    string          `json:"node_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventInput is used when appending new events.
type EventInput struct {
	Type   EventType   `json:"type"`
	NodeID string      `json:"node_id,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// NodeStatusEvent is the data payload for node status change events.
type NodeStatusEvent struct {
	Status NodeStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// RunStatusEvent is the data payload for run status change events.
type RunStatusEvent struct {
	Status RunStatus `json:"status"`
	Error  string    `json:"error,omitempty"`
}

// ToSSE formats the event for Server-Sent Events protocol.
// Format: id: <id>\nevent: <type>\ndata: <json>\n\n
func (e *Event) ToSSE() []byte {
	data, _ := json.Marshal(e)
	return []byte(fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, data))
}

// ParseNDJSON attempts to parse a line of NDJSON from a skill's stdout.
// Lines that carry a "type" field become events of that type; anything else
// is treated as a log line.
func ParseNDJSON(line []byte) (*EventInput, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	eventType := EventTypeLog
	if t, ok := raw["type"].(string); ok {
		eventType = EventType(t)
	}

	return &EventInput{
		Type: eventType,
		Data: raw,
	}, nil
}
