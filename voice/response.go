// ABOUTME: Per-request action builder and the WaitForEvent suspension point
// ABOUTME: Single-use; the dispatcher closes it when the handler returns

package voice

import (
	"context"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/youngnishant/fonoster/internal/metrics"
)

// DefaultWaitTimeout applies when WaitForEvent is called with a non-positive
// timeout.
const DefaultWaitTimeout = 30 * time.Second

// Synthesizer renders text into an audio artifact inside the server's assets
// directory and returns the artifact filename. Implementations live outside
// this package; Say falls back to a literal say action when none is wired.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Response accumulates call-control actions for one webhook request and
// exposes the shared event bus so the handler can await live call events
// without leaving its logical flow. A Response is created per request, owned
// by that request's handler, and is never reused.
//
// Once the handler returns the response transitions to closed; any action or
// wait afterwards fails with ErrResponseClosed.
type Response struct {
	mu      sync.Mutex
	actions []Action
	closed  bool

	bus    *Bus
	synth  Synthesizer
	m      *metrics.Metrics
	logger *slog.Logger
}

func newResponse(bus *Bus, synth Synthesizer, m *metrics.Metrics, logger *slog.Logger) *Response {
	if logger == nil {
		logger = slog.Default()
	}
	return &Response{bus: bus, synth: synth, m: m, logger: logger}
}

// AddAction appends one action to the ordered sequence. No semantic
// validation happens here.
func (r *Response) AddAction(action Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrResponseClosed
	}
	r.actions = append(r.actions, action)
	return nil
}

// Answer accepts the call.
func (r *Response) Answer() error {
	return r.AddAction(Action{Verb: VerbAnswer})
}

// Play queues playback of an audio URL.
func (r *Response) Play(url string) error {
	return r.AddAction(Action{Verb: VerbPlay, Params: map[string]any{"url": url}})
}

// Say speaks text to the caller. With a synthesizer wired, the text is
// rendered into the assets directory and a play action referencing the
// artifact is queued instead; synthesis failure degrades to the literal say
// action rather than failing the handler.
func (r *Response) Say(ctx context.Context, text string) error {
	if r.synth != nil {
		name, err := r.synth.Synthesize(ctx, text)
		if err == nil {
			return r.AddAction(Action{
				Verb:   VerbPlay,
				Params: map[string]any{"url": path.Join("/tts", name)},
			})
		}
		r.logger.Warn("speech synthesis failed, falling back to say verb", "error", err)
	}
	return r.AddAction(Action{Verb: VerbSay, Params: map[string]any{"text": text}})
}

// Gather collects DTMF digits from the caller.
func (r *Response) Gather(opts GatherOptions) error {
	return r.AddAction(Action{Verb: VerbGather, Params: opts.params()})
}

// Dial bridges the call to another destination.
func (r *Response) Dial(destination string) error {
	return r.AddAction(Action{Verb: VerbDial, Params: map[string]any{"destination": destination}})
}

// Record starts recording the call.
func (r *Response) Record(opts RecordOptions) error {
	return r.AddAction(Action{Verb: VerbRecord, Params: opts.params()})
}

// Mute mutes the caller's audio.
func (r *Response) Mute() error {
	return r.AddAction(Action{Verb: VerbMute})
}

// Unmute restores the caller's audio.
func (r *Response) Unmute() error {
	return r.AddAction(Action{Verb: VerbUnmute})
}

// PlayDTMF sends DTMF tones on the call leg.
func (r *Response) PlayDTMF(digits string) error {
	return r.AddAction(Action{Verb: VerbPlayDTMF, Params: map[string]any{"digits": digits}})
}

// Hangup terminates the call.
func (r *Response) Hangup() error {
	return r.AddAction(Action{Verb: VerbHangup})
}

// WaitForEvent blocks the handler until a broadcast event satisfies pred,
// then returns it. This is the one suspension point in a handler: only the
// handler's goroutine blocks, so other requests and relay connections keep
// being served.
//
// If timeout elapses first it returns ErrWaitTimeout; if ctx is cancelled it
// returns the context error; if the bus shuts down mid-wait it returns
// ErrBusClosed. The bus subscription is removed on every path, so no
// residual subscription survives the call. A nil pred matches any event and
// a non-positive timeout means DefaultWaitTimeout.
func (r *Response) WaitForEvent(ctx context.Context, pred Predicate, timeout time.Duration) (Event, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return Event{}, ErrResponseClosed
	}

	if pred == nil {
		pred = Any()
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	// Cancelling subCtx also triggers the bus's own cleanup path; the
	// explicit Unsubscribe below is synchronous and idempotent.
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch, subID := r.bus.Subscribe(subCtx)
	defer r.bus.Unsubscribe(subID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return Event{}, ErrBusClosed
			}
			if pred(event) {
				return event, nil
			}
		case <-timer.C:
			if r.m != nil {
				r.m.WaitTimeouts.Inc()
			}
			return Event{}, ErrWaitTimeout
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Actions returns a snapshot of the accumulated action sequence.
func (r *Response) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// close marks the response finished. Called by the dispatcher exactly once,
// after the handler has returned.
func (r *Response) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}
