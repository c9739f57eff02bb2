// ABOUTME: Event frame carried by the Bus with lazy JSON access helpers
// ABOUTME: Payloads are verbatim relay frames; no schema is enforced here

package voice

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Event is one frame received over the realtime relay (or published
// programmatically via Bus.Broadcast). The payload is carried verbatim.
type Event struct {
	ID         string
	ReceivedAt time.Time
	Payload    []byte
}

// Type peeks at the "type" field of a JSON payload. Returns "" for non-JSON
// payloads and payloads without a string type field.
func (e Event) Type() string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(e.Payload, &probe); err != nil {
		return ""
	}
	return probe.Type
}

// Decode unmarshals the payload as JSON into dst.
func (e Event) Decode(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decoding event payload: %w", err)
	}
	return nil
}

// DecodeLoose decodes the payload into dst, tolerating the loose typing some
// engines emit ("5" for 5, 1 for true). Fields are matched by json tag.
func (e Event) DecodeLoose(dst any) error {
	var raw map[string]any
	if err := json.Unmarshal(e.Payload, &raw); err != nil {
		return fmt.Errorf("decoding event payload: %w", err)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return fmt.Errorf("building event decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decoding event fields: %w", err)
	}
	return nil
}

// Predicate selects the events a caller is waiting for.
type Predicate func(Event) bool

// TypeIs matches events whose JSON payload carries the given "type" field.
func TypeIs(t string) Predicate {
	return func(e Event) bool { return e.Type() == t }
}

// Any matches every event.
func Any() Predicate {
	return func(Event) bool { return true }
}
