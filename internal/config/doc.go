// Package config handles configuration loading for the voice server.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults; running with no
// config file at all is supported.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	server:
//	  auth_secret: "${VOICE_AUTH_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Environment Overrides
//
// After the file is parsed, VOICE_* environment variables override
// individual fields, which keeps container deployments configurable without
// editing the file:
//
//	VOICE_PORT=8080
//	VOICE_LOG_LEVEL=debug
//	VOICE_TTS_ENABLED=true
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	server:
//	  shutdown_timeout: "5s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  path: "/"                # webhook and relay route
//	  port: 3000
//	  bind: "0.0.0.0"
//	  assets_dir: "assets"     # synthesized audio artifacts
//	  auth_secret: "${VOICE_AUTH_SECRET}"  # empty disables auth
//	  shutdown_timeout: "5s"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Metrics:
//
//	metrics:
//	  enabled: false  # GET /metrics in Prometheus format
//
// Speech synthesis:
//
//	tts:
//	  enabled: false
//	  region: "us-east-1"
//	  voice: "Joanna"
//	  engine: "neural"  # standard, neural
//
// Call detail records:
//
//	cdr:
//	  enabled: false
//	  path: "data/cdr.db"
//
// # Validation
//
// Load() validates:
//
//   - Server path, port, and bind address
//   - Logging level and format values
//   - TTS engine values
//   - Duration format validity
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("voice.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
