// Package mqtt publishes detection events to an MQTT broker, with an
// abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/djbios/catscale/pkg/litterbox"
)

// Topic is the MQTT topic for detection events.
const Topic = "catscale/events"

// Publisher publishes detection events to a broker.
type Publisher interface {

	// Publish sends a detection event to the broker.
	// Returns error if publishing fails (must not crash the process).
	Publish(event litterbox.Event) error

	// Close disconnects from the broker.
	Close() error
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Litterbox EventPayload `json:"litterbox"`
}

// EventPayload contains the detection event details.
type EventPayload struct {
	Timestamp   string   `json:"timestamp"`
	Event       string   `json:"event"`
	VisitWeight *float64 `json:"visit_weight,omitempty"`
	WasteWeight *float64 `json:"waste_weight,omitempty"`
	Baseline    *float64 `json:"baseline_weight,omitempty"`
}

// FormatPayload creates the JSON payload for a detection event.
func FormatPayload(event litterbox.Event) ([]byte, error) {

	payload := Payload{
		Litterbox: EventPayload{
			Timestamp: event.Time.UTC().Format(time.RFC3339),
			Event:     event.Kind.String(),
		},
	}

	switch event.Kind {
	case litterbox.EventVisit:
		visitWeight := event.VisitWeight
		payload.Litterbox.VisitWeight = &visitWeight
	case litterbox.EventSettled:
		wasteWeight, baseline := event.WasteWeight, event.Baseline
		payload.Litterbox.WasteWeight = &wasteWeight
		payload.Litterbox.Baseline = &baseline
	}

	return json.Marshal(payload)
}
