// ABOUTME: Minimal fake telephony engine for E2E testing — POSTs a call webhook and streams DTMF frames.
// ABOUTME: Usage: fake-engine [-addr localhost:3000] [-digits 5] [-secret shared-secret]

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/youngnishant/fonoster/internal/auth"
	"github.com/youngnishant/fonoster/voice"
)

func main() {
	addr := flag.String("addr", "localhost:3000", "Voice server address")
	path := flag.String("path", "/", "Webhook and relay route")
	from := flag.String("from", "+15551234567", "Caller number")
	to := flag.String("to", "+15557654321", "Callee number")
	digits := flag.String("digits", "5", "DTMF digits to send after the call starts")
	interval := flag.Duration("interval", 500*time.Millisecond, "Delay between digit frames")
	secret := flag.String("secret", "", "Webhook auth secret (empty when the server runs open)")
	flag.Parse()

	if err := run(*addr, *path, *from, *to, *digits, *interval, *secret); err != nil {
		log.Fatal(err)
	}
}

func run(addr, path, from, to, digits string, interval time.Duration, secret string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	callRef := uuid.New().String()

	// Relay connection carries the DTMF frames.
	wsURL := url.URL{Scheme: "ws", Host: addr, Path: path}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("dialing relay: %w", err)
	}
	defer conn.Close()

	fmt.Fprintf(os.Stderr, "connected to %s (call %s)\n", wsURL.String(), callRef)

	// The webhook blocks until the handler finishes, which for an IVR means
	// until our digits arrive, so it runs concurrently with the frames.
	type webhookResult struct {
		actions []voice.Action
		err     error
	}
	resultCh := make(chan webhookResult, 1)
	go func() {
		actions, err := postCallStart(ctx, addr, path, callRef, from, to, secret)
		resultCh <- webhookResult{actions: actions, err: err}
	}()

	// Give the handler a moment to reach its digit wait.
	select {
	case <-time.After(interval):
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, d := range digits {
		frame, err := json.Marshal(map[string]string{
			"type":    "digit",
			"digit":   string(d),
			"callRef": callRef,
		})
		if err != nil {
			return fmt.Errorf("encoding digit frame: %w", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return fmt.Errorf("sending digit frame: %w", err)
		}
		log.Printf("sent digit %q", string(d))

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			return res.err
		}
		printActions(res.actions)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func postCallStart(ctx context.Context, addr, path, callRef, from, to, secret string) ([]voice.Action, error) {
	payload, err := json.Marshal(map[string]string{
		"event":     "call.start",
		"callRef":   callRef,
		"from":      from,
		"to":        to,
		"direction": "inbound",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding webhook payload: %w", err)
	}

	httpURL := url.URL{Scheme: "http", Host: addr, Path: path}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, httpURL.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if secret != "" {
		token, err := auth.NewVerifier([]byte(secret)).Generate("fake-engine", time.Hour)
		if err != nil {
			return nil, fmt.Errorf("generating token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading webhook response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webhook returned %d: %s", resp.StatusCode, body)
	}

	var decoded struct {
		Actions []voice.Action `json:"actions"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding actions: %w", err)
	}
	return decoded.Actions, nil
}

func printActions(actions []voice.Action) {
	fmt.Printf("webhook returned %d action(s):\n", len(actions))
	for i, a := range actions {
		fmt.Printf("  %d. %s", i+1, a.Verb)
		if len(a.Params) > 0 {
			params, _ := json.Marshal(a.Params)
			fmt.Printf(" %s", params)
		}
		fmt.Println()
	}
}
