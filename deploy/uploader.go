// ABOUTME: Artifact upload contract consumed by DeployPackage
// ABOUTME: Packaging and storage are the hosting environment's concern

package deploy

import (
	"context"
	"io"
)

// Uploader pushes a packaged application artifact somewhere the deployment
// service can fetch it from, returning an opaque artifact reference. This
// package only consumes the contract; implementations belong to the hosting
// environment.
type Uploader interface {
	Upload(ctx context.Context, name string, artifact io.Reader) (ref string, err error)
}
