// Package realtime carries CRM push notifications from other clients onto
// the in-process event bus.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"dealership_portal/platform/events"
)

// Push event kinds.
const (
	KindLeadCreated   = "lead:created"
	KindLeadUpdated   = "lead:updated"
	KindBadgesRefresh = "badges:refresh"
)

// Kinds lists every kind a pipeline view reacts to.
var Kinds = []string{KindLeadCreated, KindLeadUpdated, KindBadgesRefresh}

// ErrUnknownKind is returned when decoding a frame of a kind nobody handles.
var ErrUnknownKind = errors.New("unknown realtime event kind")

// Frame is the wire format shared by the socket and the redis channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeFrame parses and checks a frame.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("decode realtime frame: %w", err)
	}
	f.Event = strings.TrimSpace(f.Event)
	if !slices.Contains(Kinds, f.Event) {
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownKind, f.Event)
	}
	return f, nil
}

// Event is a push notification as published on the bus.
type Event struct {
	events.BaseEvent
	Kind    string          `json:"kind"`
	Source  string          `json:"source"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventName implements events.Event.
func (e Event) EventName() string { return e.Kind }

// NewEvent wraps a frame received from source.
func NewEvent(f Frame, source string) Event {
	return Event{BaseEvent: events.NewBaseEvent(), Kind: f.Event, Source: source, Payload: f.Data}
}
