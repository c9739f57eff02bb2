// ABOUTME: Call-control action type and the verb vocabulary handlers emit
// ABOUTME: Actions are opaque to the server; the engine renders them

package voice

import "time"

// Action is a single call-control instruction accumulated by a Response.
// The server performs no semantic validation; rendering an action into an
// engine command is the engine's concern.
type Action struct {
	Verb   string         `json:"verb"`
	Params map[string]any `json:"params,omitempty"`
}

// Call-control verbs understood by the telephony engine.
const (
	VerbAnswer   = "answer"
	VerbPlay     = "play"
	VerbSay      = "say"
	VerbGather   = "gather"
	VerbDial     = "dial"
	VerbRecord   = "record"
	VerbMute     = "mute"
	VerbUnmute   = "unmute"
	VerbPlayDTMF = "playDtmf"
	VerbHangup   = "hangup"
)

// GatherOptions tunes a gather action. Zero fields are omitted from the
// action parameters and left to engine defaults.
type GatherOptions struct {
	// MaxDigits stops collection after this many digits.
	MaxDigits int

	// Timeout bounds the wait for the first digit.
	Timeout time.Duration

	// FinishOnKey stops collection when this key is pressed.
	FinishOnKey string
}

func (o GatherOptions) params() map[string]any {
	params := make(map[string]any)
	if o.MaxDigits > 0 {
		params["maxDigits"] = o.MaxDigits
	}
	if o.Timeout > 0 {
		params["timeoutMs"] = o.Timeout.Milliseconds()
	}
	if o.FinishOnKey != "" {
		params["finishOnKey"] = o.FinishOnKey
	}
	return params
}

// RecordOptions tunes a record action.
type RecordOptions struct {
	// MaxDuration caps the recording length.
	MaxDuration time.Duration

	// Beep plays a tone before recording starts.
	Beep bool

	// FinishOnKey stops the recording when this key is pressed.
	FinishOnKey string
}

func (o RecordOptions) params() map[string]any {
	params := make(map[string]any)
	if o.MaxDuration > 0 {
		params["maxDurationMs"] = o.MaxDuration.Milliseconds()
	}
	if o.Beep {
		params["beep"] = true
	}
	if o.FinishOnKey != "" {
		params["finishOnKey"] = o.FinishOnKey
	}
	return params
}
