// Package tts renders text to speech with Amazon Polly.
//
// Artifacts are MP3 files written into the voice server's assets directory
// under a content-addressed name derived from the voice, engine, and text.
// Synthesizing the same phrase twice returns the existing artifact without
// calling the provider, which matters because IVR prompts repeat heavily.
//
// The Synthesizer satisfies the voice package's Synthesizer interface:
//
//	synth, err := tts.New(assetsDir, tts.Config{VoiceID: "Joanna"}, logger)
//	srv, err := voice.NewServer(cfg, handler, voice.WithSynthesizer(synth))
//
// AWS credentials resolve through the default chain (environment, shared
// config, instance role) on first use.
package tts
