// ABOUTME: Amazon Polly speech synthesis into the voice server's assets directory
// ABOUTME: Artifact names are content-addressed so repeated phrases hit the cache

package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

// Synthesis failure classes. Callers that degrade on failure can treat these
// uniformly; the classes exist for logging and retry decisions.
var (
	// ErrThrottled means the provider rejected the request for rate reasons.
	ErrThrottled = errors.New("tts: throttled")

	// ErrTextRejected means the provider refused the input text itself.
	ErrTextRejected = errors.New("tts: text rejected")
)

// synthClient is the slice of the Polly API the synthesizer needs.
type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// Config tunes the Polly synthesizer. Zero fields take defaults.
type Config struct {
	Region  string
	VoiceID string
	Engine  string
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Region) == "" {
		c.Region = "us-east-1"
	}
	if strings.TrimSpace(c.VoiceID) == "" {
		c.VoiceID = "Joanna"
	}
	if strings.TrimSpace(c.Engine) == "" {
		c.Engine = "neural"
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}

// Synthesizer renders text to MP3 artifacts in a local directory using
// Amazon Polly. The AWS client is resolved lazily on first use so
// constructing one without credentials is free.
type Synthesizer struct {
	mu     sync.Mutex
	client synthClient

	cfg       Config
	assetsDir string
	logger    *slog.Logger
}

// New builds a synthesizer writing into assetsDir. The directory is created
// if missing.
func New(assetsDir string, cfg Config, logger *slog.Logger) (*Synthesizer, error) {
	return NewWithClient(assetsDir, cfg, nil, logger)
}

// NewWithClient is New with an injected Polly client, for tests.
func NewWithClient(assetsDir string, cfg Config, client synthClient, logger *slog.Logger) (*Synthesizer, error) {
	if strings.TrimSpace(assetsDir) == "" {
		return nil, errors.New("assets directory must not be empty")
	}
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating assets directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		client:    client,
		cfg:       cfg.withDefaults(),
		assetsDir: assetsDir,
		logger:    logger.With("component", "tts"),
	}, nil
}

// Synthesize renders text and returns the artifact filename relative to the
// assets directory. The name is derived from the voice, engine, and text, so
// an artifact that already exists is returned without calling the provider.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("tts: empty text")
	}

	name := s.artifactName(text)
	dest := filepath.Join(s.assetsDir, name)
	if _, err := os.Stat(dest); err == nil {
		s.logger.Debug("synthesis cache hit", "file", name)
		return name, nil
	}

	client, err := s.resolveClient(ctx)
	if err != nil {
		return "", err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(s.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(s.cfg.VoiceID),
	})
	if err != nil {
		return "", normalizePollyError(err)
	}
	if output == nil || output.AudioStream == nil {
		return "", errors.New("tts: provider returned no audio")
	}
	defer output.AudioStream.Close()

	if err := s.writeArtifact(dest, output.AudioStream); err != nil {
		return "", err
	}

	s.logger.Info("synthesized speech",
		"file", name,
		"voice", s.cfg.VoiceID,
		"chars", len(text))
	return name, nil
}

// writeArtifact stages the audio in a temp file and renames it into place so
// a concurrent asset request never sees a partial file.
func (s *Synthesizer) writeArtifact(dest string, audio io.Reader) error {
	tmp, err := os.CreateTemp(s.assetsDir, ".tts-*")
	if err != nil {
		return fmt.Errorf("staging audio artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, audio); err != nil {
		tmp.Close()
		return fmt.Errorf("writing audio artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing audio artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("publishing audio artifact: %w", err)
	}
	return nil
}

func (s *Synthesizer) artifactName(text string) string {
	sum := sha256.Sum256([]byte(s.cfg.VoiceID + "|" + s.cfg.Engine + "|" + text))
	return hex.EncodeToString(sum[:16]) + ".mp3"
}

func (s *Synthesizer) resolveClient(ctx context.Context) (synthClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	s.client = polly.NewFromConfig(awsCfg)
	return s.client, nil
}

// normalizePollyError classifies provider failures into the package's error
// classes, keeping the original error in the chain.
func normalizePollyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException":
			return fmt.Errorf("%w: %s", ErrThrottled, apiErr.ErrorMessage())
		case "InvalidSsmlException", "TextLengthExceededException", "InvalidSampleRateException":
			return fmt.Errorf("%w: %s", ErrTextRejected, apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("tts: synthesize: %w", err)
}
