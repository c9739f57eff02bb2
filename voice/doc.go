// Package voice bridges the two transports used in interactive call
// control: a synchronous HTTP webhook that delivers an inbound call event
// and expects a sequence of call-control actions back, and a realtime
// WebSocket relay over which the telephony engine pushes live events (DTMF
// digits, call state changes) while the webhook handler is still running.
//
// # Overview
//
// Three surfaces share one listener and one route:
//
//   - POST <path>: the webhook dispatcher. Each request gets a fresh
//     Response bound to the shared event Bus, the registered Handler runs to
//     completion, and the accumulated actions are returned as JSON.
//   - GET <path> (WebSocket upgrade): the realtime relay. Every inbound
//     frame is broadcast verbatim to all Bus subscribers.
//   - GET /tts/{file}: previously generated audio artifacts by filename.
//
// # Usage
//
// Register a handler and run the server:
//
//	handler := func(ctx context.Context, req *voice.Request, res *voice.Response) {
//	    res.Answer()
//	    res.Say(ctx, "Press a digit")
//	    res.Gather(voice.GatherOptions{MaxDigits: 1})
//
//	    event, err := res.WaitForEvent(ctx, voice.TypeIs("digit"), 5*time.Second)
//	    if errors.Is(err, voice.ErrWaitTimeout) {
//	        res.Hangup()
//	        return
//	    }
//	    // act on event...
//	}
//
//	srv, err := voice.NewServer(voice.Config{Port: 3000}, handler)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv.Run(ctx)
//
// # Event Correlation
//
// The Bus broadcasts globally: every subscriber sees every relayed frame,
// and nothing at this layer ties a relay connection to a particular call. A
// handler awaiting an event filters with a Predicate over the payload; if
// multiple calls are active concurrently, the predicate must discriminate by
// payload content (for example a callRef field).
//
// # Suspension
//
// Response.WaitForEvent is the only blocking point in a handler. It parks
// the handler's goroutine on a bus subscription until a matching event, a
// timeout, or cancellation, so concurrent requests and relay traffic are
// unaffected.
//
// # Lifecycle
//
// NewServer validates the Config and creates the Bus; Run listens and
// serves; Shutdown (or context cancellation inside Run) closes the bus,
// sends close frames to relay clients, and drains in-flight handlers.
package voice
