package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/halwell/parlq/internal/api"
	"github.com/halwell/parlq/internal/config"
	"github.com/halwell/parlq/internal/evaluate"
	"github.com/halwell/parlq/internal/federation"
	"github.com/halwell/parlq/internal/intent"
	"github.com/halwell/parlq/internal/ollama"
	"github.com/halwell/parlq/internal/pipeline"
	"github.com/halwell/parlq/internal/recommend"
	"github.com/halwell/parlq/internal/registry"
	"github.com/halwell/parlq/internal/sources"
	"github.com/halwell/parlq/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the parlq server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running parlq server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show parlq system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "parlq.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

// parseDurationOr parses a configured duration, warning and falling back when
// the value is invalid.
func parseDurationOr(value, key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration in config, using default", "key", key, "value", value, "default", fallback, "error", err)
		return fallback
	}
	return d
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "parlq version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("parlq is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("parlq is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Pick the query analyzer. The LLM path needs a reachable Ollama with the
	// configured model pulled; otherwise fall back to the rule analyzer.
	analyzer := chooseAnalyzer(ctx, cfg)

	// Assemble the source catalog and upstream clients.
	reg := registry.Builtin()
	sourceSet := sources.NewSet(map[string]sources.Source{
		"members": sources.NewMembersClient(cfg.Sources.MembersBaseURL),
		"twfy":    sources.NewTWFYClient(cfg.Sources.TWFYBaseURL, cfg.Sources.TWFYAPIKey),
		"hansard": sources.NewHansardClient(cfg.Sources.HansardBaseURL),
	})

	sourceTimeout := parseDurationOr(cfg.Federation.SourceTimeout, "federation.source_timeout", 5*time.Second)
	pipelineTimeout := parseDurationOr(cfg.Federation.PipelineTimeout, "federation.pipeline_timeout", 30*time.Second)
	cacheTTL := parseDurationOr(cfg.Federation.CacheTTL, "federation.cache_ttl", 15*time.Minute)

	recommender := recommend.New(reg, cfg.Federation.RecommendationCap)
	cache := federation.NewStoreCache(store, cacheTTL)
	executor := federation.NewExecutor(sourceSet, cache, sourceTimeout)
	evaluator := evaluate.New(reg)
	pipe := pipeline.New(analyzer, recommender, executor, evaluator, store, pipelineTimeout)

	deps := api.MCPDeps{
		Pipeline: pipe,
		Registry: reg,
		Sources:  sourceSet,
		Store:    store,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(deps)
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHTTPHandler(deps, cfg.Server.Token),
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "parlq listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func chooseAnalyzer(ctx context.Context, cfg config.Config) intent.Analyzer {
	if !cfg.Intent.UseLLM {
		slog.Info("query analysis using rule analyzer (LLM disabled)")
		return intent.NewRuleAnalyzer()
	}

	client := ollama.New(cfg.Ollama.BaseURL)
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if !client.IsRunning(checkCtx) {
		printWarning("Ollama not reachable at %s, using rule-based analysis", cfg.Ollama.BaseURL)
		return intent.NewRuleAnalyzer()
	}
	if !client.HasModel(checkCtx, cfg.Ollama.Model) {
		printWarning("model %q not available, using rule-based analysis (pull it with: ollama pull %s)", cfg.Ollama.Model, cfg.Ollama.Model)
		return intent.NewRuleAnalyzer()
	}

	extractionTimeout := parseDurationOr(cfg.Intent.ExtractionTimeout, "intent.extraction_timeout", 3*time.Second)
	slog.Info("query analysis using LLM", "model", cfg.Ollama.Model, "timeout", extractionTimeout)
	return intent.NewLLMAnalyzer(client, cfg.Ollama.Model, extractionTimeout)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("parlq is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop parlq (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to parlq (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	serverUp := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			serverUp = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	// Check Ollama.
	ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
	if err != nil {
		printStatus("Ollama", "not running (rule-based analysis)")
	} else {
		ollamaResp.Body.Close()
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}
	printStatus("Model", "%s", cfg.Ollama.Model)

	// Probe upstream sources through the running server.
	if serverUp {
		c, err := newAPIClient()
		if err == nil {
			statusCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if statusResp, err := c.get(statusCtx, "/sources/status"); err == nil {
				var statuses []struct {
					Name   string `json:"name"`
					Status string `json:"status"`
				}
				if decodeJSON(statusResp, &statuses) == nil {
					ok := 0
					for _, s := range statuses {
						if s.Status == "ok" {
							ok++
						}
					}
					printStatus("Sources", "%d of %d reachable", ok, len(statuses))
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
