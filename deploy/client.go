// ABOUTME: gRPC client for the deployment service's server-streaming Deploy RPC
// ABOUTME: Dials with insecure transport credentials; auth rides as bearer metadata

package deploy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
)

const deployMethod = "/fonoster.deploy.v1.DeployService/Deploy"

// deployStreamDesc matches the service definition on the server side. Only
// the server streams; the client sends a single request.
var deployStreamDesc = &grpc.StreamDesc{
	StreamName:    "Deploy",
	ServerStreams: true,
}

// DeployRequest is the single message the client sends on the Deploy stream.
type DeployRequest struct {
	Manifest *Manifest `json:"manifest"`

	// ArtifactRef points at a previously uploaded application artifact.
	ArtifactRef string `json:"artifactRef,omitempty"`
}

// Client talks to a deployment service.
type Client struct {
	conn     *grpc.ClientConn
	token    string
	logger   *slog.Logger
	dialOpts []grpc.DialOption
}

// Option customizes a Client.
type Option func(*Client)

// WithToken attaches a bearer token to every deployment call.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the client logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDialOptions appends extra gRPC dial options, after the defaults.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) { c.dialOpts = append(c.dialOpts, opts...) }
}

// Dial connects to the deployment service at target. The transport is
// insecure by default; deployments through an authenticated front door use
// WithToken.
func Dial(target string, opts ...Option) (*Client, error) {
	c := &Client{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "deploy-client")

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    10 * time.Minute,
			Timeout: 20 * time.Second,
		}),
	}, c.dialOpts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to deploy service: %w", err)
	}
	c.conn = conn
	return c, nil
}

// Deploy submits the request and returns the progress stream. The manifest
// is validated before anything goes on the wire.
func (c *Client) Deploy(ctx context.Context, req DeployRequest) (*Stream, error) {
	if err := req.Manifest.Validate(); err != nil {
		return nil, err
	}

	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}

	ctx, cancel := context.WithCancel(ctx)
	cs, err := c.conn.NewStream(ctx, deployStreamDesc, deployMethod)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening deploy stream: %w", err)
	}

	if err := cs.SendMsg(&req); err != nil {
		cancel()
		return nil, fmt.Errorf("sending deploy request: %w", err)
	}
	if err := cs.CloseSend(); err != nil {
		cancel()
		return nil, fmt.Errorf("closing send side: %w", err)
	}

	c.logger.Info("deployment submitted",
		"app", req.Manifest.Name,
		"artifact_ref", req.ArtifactRef)
	return &Stream{cs: cs, cancel: cancel}, nil
}

// DeployPackage uploads the artifact through up, then submits the
// deployment referencing it.
func (c *Client) DeployPackage(ctx context.Context, m *Manifest, artifact io.Reader, up Uploader) (*Stream, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	ref, err := up.Upload(ctx, m.Name, artifact)
	if err != nil {
		return nil, fmt.Errorf("uploading artifact: %w", err)
	}

	return c.Deploy(ctx, DeployRequest{Manifest: m, ArtifactRef: ref})
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
