// ABOUTME: Entry point for the fonoster voice server
// ABOUTME: Serves the call webhook, the realtime relay, and synthesized audio assets

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/youngnishant/fonoster/internal/cdr"
	"github.com/youngnishant/fonoster/internal/config"
	"github.com/youngnishant/fonoster/internal/tts"
	"github.com/youngnishant/fonoster/voice"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  __                       _
 / _| ___  _ __   ___  ___| |_ ___ _ __
| |_ / _ \| '_ \ / _ \/ __| __/ _ \ '__|
|  _| (_) | | | | (_) \__ \ ||  __/ |
|_|  \___/|_| |_|\___/|___/\__\___|_|
`

// getConfigPath returns the path to the voice server config file.
// Priority: FONOSTER_CONFIG env var > XDG_CONFIG_HOME/fonoster/voice.yaml > ~/.config/fonoster/voice.yaml
func getConfigPath() string {
	if envPath := os.Getenv("FONOSTER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "voice.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "fonoster", "voice.yaml")
}

// getDataPath returns the path to the fonoster data directory.
// Priority: XDG_DATA_HOME/fonoster > ~/.local/share/fonoster
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "fonoster")
}

// loadConfig loads the config file if one exists. With no file and no
// explicit FONOSTER_CONFIG the defaults apply, so the binary runs out of
// the box.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) && os.Getenv("FONOSTER_CONFIG") == "" {
		cfg, err := config.Load("")
		return cfg, "(defaults)", err
	}

	cfg, err := config.Load(configPath)
	return cfg, configPath, err
}

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "calls":
		err = runCalls(ctx)
	case "version":
		fmt.Printf("fonoster-voice %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: fonoster-voice [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the voice server (default)")
	fmt.Println("  init      Create a config file interactively")
	fmt.Println("  health    Check voice server health")
	fmt.Println("  calls     List recorded calls (--ref REF, --limit N, --stats)")
	fmt.Println("  version   Print the version")
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	vcfg := cfg.Server.Voice().WithDefaults()
	vcfg.EnableMetrics = cfg.Metrics.Enabled

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    http://%s:%d%s\n", vcfg.Bind, vcfg.Port, vcfg.Path)
	green.Print("    ▶ ")
	fmt.Printf("Assets:  %s\n", vcfg.AssetsDir)

	if cfg.TTS.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("TTS:     ")
		cyan.Printf("polly/%s", cfg.TTS.Voice)
		fmt.Println()
	}
	if cfg.CDR.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("CDR:     %s\n", cfg.CDR.Path)
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics: /metrics\n")
	}

	fmt.Println()

	opts := []voice.Option{voice.WithLogger(logger)}

	if cfg.TTS.Enabled {
		synth, err := tts.New(vcfg.AssetsDir, tts.Config{
			Region:  cfg.TTS.Region,
			VoiceID: cfg.TTS.Voice,
			Engine:  cfg.TTS.Engine,
		}, logger)
		if err != nil {
			return fmt.Errorf("creating synthesizer: %w", err)
		}
		opts = append(opts, voice.WithSynthesizer(synth))
	}

	if cfg.CDR.Enabled {
		store, err := cdr.Open(cfg.CDR.Path, logger)
		if err != nil {
			return fmt.Errorf("opening call record store: %w", err)
		}
		defer store.Close()
		opts = append(opts, voice.WithRecorder(store))
	}

	srv, err := voice.NewServer(vcfg, demoHandler(logger), opts...)
	if err != nil {
		return fmt.Errorf("creating voice server: %w", err)
	}

	logger.Info("starting fonoster-voice",
		"config", configPath,
		"addr", fmt.Sprintf("%s:%d", vcfg.Bind, vcfg.Port),
		"path", vcfg.Path,
	)

	return srv.Run(ctx)
}

// demoHandler is the IVR served when no application is wired in: answer,
// read back one DTMF digit, hang up. Pairs with cmd/fake-engine for an
// end-to-end smoke test.
func demoHandler(logger *slog.Logger) voice.Handler {
	return func(ctx context.Context, req *voice.Request, res *voice.Response) {
		logger.Info("inbound call",
			"event", req.EventName,
			"call_ref", req.CallRef,
			"from", req.From,
			"to", req.To,
		)

		res.Answer()
		res.Say(ctx, "Welcome to the fonoster demo. Press any key on your phone.")
		res.Gather(voice.GatherOptions{MaxDigits: 1, Timeout: 10 * time.Second})

		ev, err := res.WaitForEvent(ctx, voice.TypeIs("digit"), 10*time.Second)
		if err != nil {
			res.Say(ctx, "No input received. Goodbye.")
			res.Hangup()
			return
		}

		var input struct {
			Digit string `json:"digit"`
		}
		if err := ev.DecodeLoose(&input); err != nil || input.Digit == "" {
			res.Say(ctx, "Sorry, I did not catch that. Goodbye.")
			res.Hangup()
			return
		}

		res.Say(ctx, fmt.Sprintf("You pressed %s. Goodbye.", input.Digit))
		res.Hangup()
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	vcfg := cfg.Server.Voice().WithDefaults()
	host := vcfg.Bind
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	url := fmt.Sprintf("http://%s:%d/healthz", host, vcfg.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// runCalls lists call detail records from the configured store.
// Supports both "--flag value" and "--flag=value" formats.
func runCalls(ctx context.Context) error {
	var (
		callRef   string
		limit     int
		showStats bool
	)

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--ref":
			if i+1 >= len(args) {
				return fmt.Errorf("--ref requires a value")
			}
			callRef = args[i+1]
			i++
		case strings.HasPrefix(arg, "--ref="):
			callRef = strings.TrimPrefix(arg, "--ref=")
		case arg == "--limit":
			if i+1 >= len(args) {
				return fmt.Errorf("--limit requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid --limit value: %s", args[i+1])
			}
			limit = n
			i++
		case strings.HasPrefix(arg, "--limit="):
			n, err := strconv.Atoi(strings.TrimPrefix(arg, "--limit="))
			if err != nil {
				return fmt.Errorf("invalid --limit value: %s", arg)
			}
			limit = n
		case arg == "--stats":
			showStats = true
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Quiet logger; this is a read-only listing.
	store, err := cdr.Open(cfg.CDR.Path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return fmt.Errorf("opening call record store: %w", err)
	}
	defer store.Close()

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	if showStats {
		stats, err := store.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("reading call stats: %w", err)
		}

		cyan.Println("  Call statistics")
		cyan.Println("  ---------------")
		fmt.Printf("  Total:        %d\n", stats.Total)
		fmt.Printf("  Failed:       %d\n", stats.Failed)
		fmt.Printf("  Avg duration: %dms\n", stats.AvgDurationMS)
		if !stats.LastCallAt.IsZero() {
			fmt.Printf("  Last call:    %s\n", stats.LastCallAt.Format(time.RFC3339))
		}
		return nil
	}

	records, err := store.List(ctx, cdr.Filter{CallRef: callRef, Limit: limit})
	if err != nil {
		return fmt.Errorf("listing calls: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("no calls recorded")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("%s  ", rec.ReceivedAt.Format("2006-01-02 15:04:05"))
		if rec.Status == voice.CallStatusOK {
			green.Printf("%-7s", rec.Status)
		} else {
			red.Printf("%-7s", rec.Status)
		}
		fmt.Printf("  %-24s %-16s %6dms  %d action(s)\n",
			rec.CallRef, rec.EventName, rec.Duration.Milliseconds(), len(rec.Actions))
	}

	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("fonoster-voice configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultCDRPath := filepath.Join(defaultDataPath, "cdr.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	path := prompt(reader, "Webhook route", "/")
	port := prompt(reader, "Listen port", "3000")
	bind := prompt(reader, "Bind address", "0.0.0.0")
	assetsDir := prompt(reader, "Assets directory", "assets")
	authSecret := prompt(reader, "Webhook auth secret (empty to disable)", "")

	// Speech synthesis
	fmt.Println("\n--- Speech Synthesis ---")
	enableTTS := prompt(reader, "Enable Polly speech synthesis?", "no")
	ttsEnabled := strings.ToLower(enableTTS) == "yes" || strings.ToLower(enableTTS) == "y"

	var ttsRegion, ttsVoice, ttsEngine string
	if ttsEnabled {
		ttsRegion = prompt(reader, "AWS region", "us-east-1")
		ttsVoice = prompt(reader, "Polly voice", "Joanna")
		ttsEngine = prompt(reader, "Polly engine (standard/neural)", "neural")
	}

	// Call records
	fmt.Println("\n--- Call Records ---")
	enableCDR := prompt(reader, "Record call details to SQLite?", "yes")
	cdrEnabled := strings.ToLower(enableCDR) == "yes" || strings.ToLower(enableCDR) == "y"

	cdrPath := defaultCDRPath
	if cdrEnabled {
		cdrPath = prompt(reader, "SQLite database path", defaultCDRPath)
	}

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Metrics
	fmt.Println("\n--- Metrics ---")
	enableMetrics := prompt(reader, "Expose Prometheus metrics?", "no")
	metricsEnabled := strings.ToLower(enableMetrics) == "yes" || strings.ToLower(enableMetrics) == "y"

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# fonoster-voice configuration\n")
	cfg.WriteString("# Generated by fonoster-voice init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", path))
	cfg.WriteString(fmt.Sprintf("  port: %s\n", port))
	cfg.WriteString(fmt.Sprintf("  bind: \"%s\"\n", bind))
	cfg.WriteString(fmt.Sprintf("  assets_dir: \"%s\"\n", assetsDir))
	if authSecret != "" {
		cfg.WriteString(fmt.Sprintf("  auth_secret: \"%s\"\n", authSecret))
	}
	cfg.WriteString("  shutdown_timeout: \"5s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("tts:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", ttsEnabled))
	if ttsEnabled {
		cfg.WriteString(fmt.Sprintf("  region: \"%s\"\n", ttsRegion))
		cfg.WriteString(fmt.Sprintf("  voice: \"%s\"\n", ttsVoice))
		cfg.WriteString(fmt.Sprintf("  engine: \"%s\"\n", ttsEngine))
	}
	cfg.WriteString("\n")

	cfg.WriteString("cdr:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", cdrEnabled))
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", cdrPath))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", metricsEnabled))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists when CDR is on
	if cdrEnabled {
		if err := os.MkdirAll(filepath.Dir(cdrPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  fonoster-voice serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
