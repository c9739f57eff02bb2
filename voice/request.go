// ABOUTME: Inbound webhook payload with typed convenience fields
// ABOUTME: The raw body is retained; unknown fields stay reachable via Fields

package voice

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Request is the inbound call event delivered to a handler. Typed fields
// cover the common envelope; everything the engine sent is available in
// Fields and Raw.
type Request struct {
	// EventName is the engine's event designator, e.g. "call.start".
	EventName string `mapstructure:"event"`

	// CallRef identifies the call leg this event belongs to.
	CallRef string `mapstructure:"callRef"`

	From      string `mapstructure:"from"`
	To        string `mapstructure:"to"`
	Direction string `mapstructure:"direction"`

	// Fields is the full decoded payload.
	Fields map[string]any `mapstructure:"-"`

	raw []byte
}

// Raw returns the request body exactly as received.
func (r *Request) Raw() []byte {
	return r.raw
}

// parseRequest decodes a webhook body. The caller has already validated the
// body against the inbound payload schema, so fields here decode leniently:
// a missing or oddly typed envelope field leaves its zero value.
func parseRequest(body []byte) (*Request, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decoding request body: %w", err)
	}

	req := &Request{Fields: fields, raw: body}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           req,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("building request decoder: %w", err)
	}
	if err := dec.Decode(fields); err != nil {
		return nil, fmt.Errorf("decoding request fields: %w", err)
	}
	return req, nil
}
