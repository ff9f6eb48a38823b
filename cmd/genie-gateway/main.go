// ABOUTME: Entry point for the genie-gateway server
// ABOUTME: Routes natural-language questions to Databricks Genie spaces

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/genie-gateway/internal/auth"
	"github.com/2389/genie-gateway/internal/config"
	"github.com/2389/genie-gateway/internal/coordinator"
	"github.com/2389/genie-gateway/internal/gateway"
	"github.com/2389/genie-gateway/internal/genie"
	"github.com/2389/genie-gateway/internal/orchestrator"
	"github.com/2389/genie-gateway/internal/store"
	"github.com/2389/genie-gateway/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                    _                          _
   __ _  ___ _ __ (_) ___        __ _  __ _| |_ _____      ____ _ _   _
  / _' |/ _ \ '_ \| |/ _ \_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | (_| |  __/ | | | |  __/_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \__, |\___|_| |_|_|\___|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
  |___/                         |___/                             |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: GENIE_CONFIG env var > XDG_CONFIG_HOME/genie/gateway.yaml > ~/.config/genie/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("GENIE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "genie", "gateway.yaml")
}

// getDataPath returns the path to the genie data directory.
// Priority: XDG_DATA_HOME/genie > ~/.local/share/genie
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "genie")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: genie-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                   Start the gateway server")
		fmt.Println("  init                    Write a starter config file")
		fmt.Println("  token --subject NAME    Mint a JWT for a client")
		fmt.Println("  health                  Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Sales:    %s\n", cfg.Genie.Sales.SpaceID)
	green.Print("    ▶ ")
	fmt.Printf("Customer: %s\n", cfg.Genie.Customer.SpaceID)
	green.Print("    ▶ ")
	fmt.Printf("Model:    %s\n", cfg.LLM.Model)
	fmt.Println()

	logger.Info("starting genie-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	threads := store.NewThreadStore(logger)
	clients := genie.NewClients(cfg.Genie.Sales.ClientConfig(), cfg.Genie.Customer.ClientConfig(), logger)
	registry := tools.NewRegistry(clients)

	runtime, err := coordinator.New(cfg.LLM.RuntimeConfig(), registry, logger)
	if err != nil {
		return fmt.Errorf("creating coordinator: %w", err)
	}

	var (
		orchLedger orchestrator.Ledger
		eventLog   gateway.EventLog
	)
	if cfg.Database.Path != "" {
		ledger, err := store.NewSQLiteLedger(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening ledger: %w", err)
		}
		defer ledger.Close()
		orchLedger = ledger
		eventLog = ledger
	} else {
		logger.Warn("audit ledger disabled (database.path not set)")
	}

	orch, err := orchestrator.New(threads, runtime, orchLedger, nil, logger)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		logger.Warn("API auth disabled (auth.jwt_secret not set)")
	}

	gw, err := gateway.New(gateway.Options{
		Addr:     cfg.Server.HTTPAddr,
		Threads:  threads,
		Orch:     orch,
		Events:   eventLog,
		Verifier: verifier,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return gw.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runInit writes a starter config with a random JWT secret. It refuses to
// overwrite an existing file.
func runInit() error {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	dataPath := getDataPath()
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configContent := fmt.Sprintf(`# genie-gateway configuration
# Generated by genie-gateway init

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

auth:
  jwt_secret: "%s"

genie:
  sales:
    base_url: "${DATABRICKS_HOST}"
    space_id: "your-sales-space-id"
    token: "${DATABRICKS_TOKEN}"
    poll_interval: "1s"
  customer:
    base_url: "${DATABRICKS_HOST}"
    space_id: "your-customer-space-id"
    token: "${DATABRICKS_TOKEN}"
    poll_interval: "1s"

llm:
  base_url: ""
  api_key: "${OPENAI_API_KEY}"
  model: "gpt-4o"
  temperature: 0.5

logging:
  level: "info"
  format: "text"
`, filepath.Join(dataPath, "ledger.db"), jwtSecret)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	fmt.Println("  Edit the genie space ids and credentials, then run: genie-gateway serve")
	return nil
}

// runToken mints a JWT for a client using the configured secret.
// Supports "--subject value", "--subject=value", and a --ttl duration.
func runToken() error {
	var subject string
	ttl := 30 * 24 * time.Hour

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--subject" || arg == "-s":
			if i+1 >= len(args) {
				return errors.New("--subject requires a value")
			}
			subject = args[i+1]
			i++
		case strings.HasPrefix(arg, "--subject="):
			subject = strings.TrimPrefix(arg, "--subject=")
		case arg == "--ttl":
			if i+1 >= len(args) {
				return errors.New("--ttl requires a value")
			}
			d, err := time.ParseDuration(args[i+1])
			if err != nil {
				return fmt.Errorf("parsing --ttl: %w", err)
			}
			ttl = d
			i++
		case strings.HasPrefix(arg, "--ttl="):
			d, err := time.ParseDuration(strings.TrimPrefix(arg, "--ttl="))
			if err != nil {
				return fmt.Errorf("parsing --ttl: %w", err)
			}
			ttl = d
		default:
			return fmt.Errorf("unknown flag: %s", arg)
		}
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return errors.New("--subject flag is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(subject, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/healthz", cfg.Server.HTTPAddr)
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

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

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

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs), then record attrs
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
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
