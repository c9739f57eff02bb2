// Package deploy is the client for pushing voice applications to a
// deployment service.
//
// # Overview
//
// A deployment is described by a Manifest (YAML) and an artifact reference
// pointing at the packaged application. The Deploy RPC is server-streaming:
// the client sends one request and receives progress updates until exactly
// one terminal update (completed or failed) ends the stream.
//
// Messages travel as JSON over gRPC, so server implementations need no
// generated stubs; they register a handler for
// /fonoster.deploy.v1.DeployService/Deploy and speak the json content
// subtype.
//
// # Usage
//
// Submit a deployment and wait for the outcome:
//
//	client, err := deploy.Dial("deploy.example.com:50051",
//	    deploy.WithToken(os.Getenv("DEPLOY_TOKEN")))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	manifest, err := deploy.LoadManifest("voice-app.yaml")
//	if err != nil {
//	    return err
//	}
//
//	stream, err := client.Deploy(ctx, deploy.DeployRequest{
//	    Manifest:    manifest,
//	    ArtifactRef: "artifacts/voice-app-v3.tgz",
//	})
//	if err != nil {
//	    return err
//	}
//
//	final, err := deploy.Drain(stream, func(p deploy.Progress) {
//	    fmt.Printf("%s: %s\n", p.Stage, p.Message)
//	})
//	if errors.Is(err, deploy.ErrDeployFailed) {
//	    fmt.Println("failed:", final.Message)
//	}
//
// # Artifact Upload
//
// Packaging and uploading artifacts is the hosting environment's concern.
// DeployPackage accepts any Uploader implementation and chains upload and
// deployment; implementations of Uploader live outside this module.
package deploy
