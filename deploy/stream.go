// ABOUTME: Progress stream returned by Deploy and the Drain helper
// ABOUTME: A well-formed stream ends with exactly one terminal update

package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
)

// Stage identifies where a deployment currently is.
type Stage string

// Deployment stages, in the order the service reports them. Completed and
// Failed are terminal; everything after the first terminal update is
// ignored.
const (
	StageQueued    Stage = "queued"
	StageUploading Stage = "uploading"
	StageBuilding  Stage = "building"
	StageDeploying Stage = "deploying"
	StageCompleted Stage = "completed"
	StageFailed    Stage = "failed"
)

// Terminal reports whether the stage ends the stream.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Progress is one update from the deployment service.
type Progress struct {
	Stage   Stage     `json:"stage"`
	Message string    `json:"message,omitempty"`
	Ref     string    `json:"ref,omitempty"`
	At      time.Time `json:"at"`
}

var (
	// ErrDeployFailed is returned by Drain when the service reports a
	// failed terminal stage.
	ErrDeployFailed = errors.New("deploy failed")

	// ErrStreamTruncated is returned by Drain when the stream ends without
	// any terminal stage.
	ErrStreamTruncated = errors.New("deploy stream ended without a terminal stage")
)

// Stream is a live deployment progress stream. Recv blocks for the next
// update; Close abandons the deployment watch (the deployment itself keeps
// running server-side).
type Stream struct {
	cs     grpc.ClientStream
	cancel context.CancelFunc
}

// Recv returns the next progress update. io.EOF signals the server closed
// the stream.
func (s *Stream) Recv() (Progress, error) {
	var p Progress
	if err := s.cs.RecvMsg(&p); err != nil {
		return Progress{}, err
	}
	return p, nil
}

// Close releases the stream. Safe to call multiple times.
func (s *Stream) Close() error {
	s.cancel()
	return nil
}

// Drain consumes stream until the first terminal update and returns it,
// forwarding every update to sink along the way (nil sink is allowed). A
// failed terminal stage is reported as ErrDeployFailed with the returned
// Progress still carrying the service's message. The stream is closed on
// every path.
func Drain(stream *Stream, sink func(Progress)) (Progress, error) {
	defer stream.Close()

	for {
		p, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return Progress{}, ErrStreamTruncated
		}
		if err != nil {
			return Progress{}, fmt.Errorf("receiving deploy progress: %w", err)
		}

		if sink != nil {
			sink(p)
		}

		switch p.Stage {
		case StageCompleted:
			return p, nil
		case StageFailed:
			return p, fmt.Errorf("%w: %s", ErrDeployFailed, p.Message)
		}
	}
}
