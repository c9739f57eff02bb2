// ABOUTME: Tests for the deploy client against an in-process fake service
// ABOUTME: Uses bufconn and a hand-registered ServiceDesc speaking the json codec

package deploy

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
)

// fakeDeployServer scripts the progress updates returned for each request.
// When hold is set the handler keeps the stream open after the last update
// until the client goes away.
type fakeDeployServer struct {
	mu       sync.Mutex
	updates  []Progress
	hold     chan struct{}
	requests []DeployRequest
	auth     []string
}

func (f *fakeDeployServer) handle(srv any, stream grpc.ServerStream) error {
	var req DeployRequest
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}

	var authHeader string
	if md, ok := metadata.FromIncomingContext(stream.Context()); ok {
		if vals := md.Get("authorization"); len(vals) > 0 {
			authHeader = vals[0]
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.auth = append(f.auth, authHeader)
	updates := make([]Progress, len(f.updates))
	copy(updates, f.updates)
	f.mu.Unlock()

	for _, p := range updates {
		if err := stream.SendMsg(&p); err != nil {
			return err
		}
	}

	if f.hold != nil {
		select {
		case <-f.hold:
		case <-stream.Context().Done():
		}
	}
	return nil
}

func (f *fakeDeployServer) received() []DeployRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]DeployRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeDeployServer) authHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.auth))
	copy(out, f.auth)
	return out
}

func newTestService(t *testing.T, fake *fakeDeployServer, clientOpts ...Option) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: "fonoster.deploy.v1.DeployService",
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "Deploy",
				Handler:       fake.handle,
				ServerStreams: true,
			},
		},
	}, fake)

	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	opts := append([]Option{
		WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	}, clientOpts...)

	client, err := Dial("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testManifest() *Manifest {
	return &Manifest{
		Name:  "ivr-demo",
		Entry: "main",
		Env:   map[string]string{"GREETING": "hello"},
	}
}

func scriptedUpdates(stages ...Stage) []Progress {
	updates := make([]Progress, 0, len(stages))
	for _, s := range stages {
		updates = append(updates, Progress{Stage: s, Message: string(s), At: time.Now().UTC()})
	}
	return updates
}

func TestDeploy_DrainToCompletion(t *testing.T) {
	fake := &fakeDeployServer{
		updates: []Progress{
			{Stage: StageQueued},
			{Stage: StageUploading},
			{Stage: StageBuilding},
			{Stage: StageDeploying},
			{Stage: StageCompleted, Ref: "apps/ivr-demo@v1", Message: "deployed"},
		},
	}
	client := newTestService(t, fake)

	stream, err := client.Deploy(t.Context(), DeployRequest{
		Manifest:    testManifest(),
		ArtifactRef: "artifacts/ivr-demo.tgz",
	})
	require.NoError(t, err)

	var seen []Stage
	final, err := Drain(stream, func(p Progress) {
		seen = append(seen, p.Stage)
	})
	require.NoError(t, err)

	assert.Equal(t, StageCompleted, final.Stage)
	assert.Equal(t, "apps/ivr-demo@v1", final.Ref)
	assert.Equal(t, []Stage{StageQueued, StageUploading, StageBuilding, StageDeploying, StageCompleted}, seen)

	reqs := fake.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, "ivr-demo", reqs[0].Manifest.Name)
	assert.Equal(t, "artifacts/ivr-demo.tgz", reqs[0].ArtifactRef)
	assert.Equal(t, "hello", reqs[0].Manifest.Env["GREETING"])
}

func TestDeploy_DrainReportsFailure(t *testing.T) {
	fake := &fakeDeployServer{
		updates: scriptedUpdates(StageQueued, StageBuilding, StageFailed),
	}
	client := newTestService(t, fake)

	stream, err := client.Deploy(t.Context(), DeployRequest{Manifest: testManifest()})
	require.NoError(t, err)

	final, err := Drain(stream, nil)
	require.ErrorIs(t, err, ErrDeployFailed)
	assert.Equal(t, StageFailed, final.Stage)
	assert.Contains(t, err.Error(), "failed")
}

func TestDeploy_DrainTruncatedStream(t *testing.T) {
	fake := &fakeDeployServer{
		updates: scriptedUpdates(StageQueued, StageUploading),
	}
	client := newTestService(t, fake)

	stream, err := client.Deploy(t.Context(), DeployRequest{Manifest: testManifest()})
	require.NoError(t, err)

	_, err = Drain(stream, nil)
	assert.ErrorIs(t, err, ErrStreamTruncated)
}

func TestDeploy_DrainStopsAtFirstTerminal(t *testing.T) {
	// A misbehaving server keeps talking after the terminal update; the
	// client must not surface anything past it.
	fake := &fakeDeployServer{
		updates: scriptedUpdates(StageQueued, StageCompleted, StageFailed),
	}
	client := newTestService(t, fake)

	stream, err := client.Deploy(t.Context(), DeployRequest{Manifest: testManifest()})
	require.NoError(t, err)

	var seen []Stage
	final, err := Drain(stream, func(p Progress) { seen = append(seen, p.Stage) })
	require.NoError(t, err)
	assert.Equal(t, StageCompleted, final.Stage)
	assert.Equal(t, []Stage{StageQueued, StageCompleted}, seen)
}

func TestDeploy_StreamRecvAndClose(t *testing.T) {
	// The server holds the stream open after the first update so nothing
	// is buffered client-side when Close fires.
	fake := &fakeDeployServer{
		updates: scriptedUpdates(StageQueued),
		hold:    make(chan struct{}),
	}
	client := newTestService(t, fake)

	stream, err := client.Deploy(t.Context(), DeployRequest{Manifest: testManifest()})
	require.NoError(t, err)

	p, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, StageQueued, p.Stage)

	require.NoError(t, stream.Close())

	_, err = stream.Recv()
	require.Error(t, err)
	assert.False(t, errors.Is(err, io.EOF), "closed stream should not look like clean EOF")
}

func TestDeploy_BearerTokenMetadata(t *testing.T) {
	fake := &fakeDeployServer{
		updates: scriptedUpdates(StageCompleted),
	}
	client := newTestService(t, fake, WithToken("deploy-token-123"))

	stream, err := client.Deploy(t.Context(), DeployRequest{Manifest: testManifest()})
	require.NoError(t, err)
	_, err = Drain(stream, nil)
	require.NoError(t, err)

	headers := fake.authHeaders()
	require.Len(t, headers, 1)
	assert.Equal(t, "Bearer deploy-token-123", headers[0])
}

func TestDeploy_NoTokenNoMetadata(t *testing.T) {
	fake := &fakeDeployServer{
		updates: scriptedUpdates(StageCompleted),
	}
	client := newTestService(t, fake)

	stream, err := client.Deploy(t.Context(), DeployRequest{Manifest: testManifest()})
	require.NoError(t, err)
	_, err = Drain(stream, nil)
	require.NoError(t, err)

	headers := fake.authHeaders()
	require.Len(t, headers, 1)
	assert.Empty(t, headers[0])
}

func TestDeploy_RejectsInvalidManifestBeforeWire(t *testing.T) {
	fake := &fakeDeployServer{
		updates: scriptedUpdates(StageCompleted),
	}
	client := newTestService(t, fake)

	_, err := client.Deploy(t.Context(), DeployRequest{Manifest: &Manifest{Name: "Bad Name!"}})
	require.ErrorIs(t, err, ErrManifestInvalid)

	assert.Empty(t, fake.received(), "invalid manifests must never reach the service")
}

type fakeUploader struct {
	gotName string
	gotData string
	ref     string
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, name string, artifact io.Reader) (string, error) {
	f.gotName = name
	data, err := io.ReadAll(artifact)
	if err != nil {
		return "", err
	}
	f.gotData = string(data)
	return f.ref, f.err
}

func TestDeployPackage_UploadsThenDeploys(t *testing.T) {
	fake := &fakeDeployServer{
		updates: scriptedUpdates(StageCompleted),
	}
	client := newTestService(t, fake)

	up := &fakeUploader{ref: "artifacts/ivr-demo@sha256:abc"}
	stream, err := client.DeployPackage(t.Context(), testManifest(), strings.NewReader("tarball-bytes"), up)
	require.NoError(t, err)
	_, err = Drain(stream, nil)
	require.NoError(t, err)

	assert.Equal(t, "ivr-demo", up.gotName)
	assert.Equal(t, "tarball-bytes", up.gotData)

	reqs := fake.received()
	require.Len(t, reqs, 1)
	assert.Equal(t, "artifacts/ivr-demo@sha256:abc", reqs[0].ArtifactRef)
}

func TestDeployPackage_UploadFailureShortCircuits(t *testing.T) {
	fake := &fakeDeployServer{
		updates: scriptedUpdates(StageCompleted),
	}
	client := newTestService(t, fake)

	up := &fakeUploader{err: errors.New("bucket unavailable")}
	_, err := client.DeployPackage(t.Context(), testManifest(), strings.NewReader("x"), up)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uploading artifact")

	assert.Empty(t, fake.received())
}

func TestStage_Terminal(t *testing.T) {
	assert.True(t, StageCompleted.Terminal())
	assert.True(t, StageFailed.Terminal())
	assert.False(t, StageQueued.Terminal())
	assert.False(t, StageDeploying.Terminal())
}
