// Command chatenrich attaches to AI chat pages in Chrome and shows
// enrichment panels next to shopping-related answers.
//
// Usage:
//
//	chatenrich -config chatenrich.yaml                   # pages from YAML config
//	chatenrich -url https://claude.ai/new                # quick single page
//	chatenrich -url https://claude.ai/new -mock-api :7411  # with the local mock backend
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chatenrich"
	"github.com/hazyhaar/chatenrich/internal/mockapi"
)

func main() {
	configPath := flag.String("config", "", "path to chatenrich.yaml config file")
	singleURL := flag.String("url", "", "attach to a single chat URL (stdout sink)")
	mockAddr := flag.String("mock-api", "", "serve the mock enrichment backend on this address and use it")
	listen := flag.String("listen", "", "control API address (overrides api.listen)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides log_level)")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *singleURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: chatenrich -config <file> | -url <url> [-mock-api addr] [-listen addr]")
		os.Exit(2)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *listen != "" {
		cfg.API.Listen = *listen
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *mockAddr); err != nil {
		logger.Error("chatenrich: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path, singleURL string) (*chatenrich.Config, error) {
	switch {
	case path != "":
		cfg, err := chatenrich.LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		if singleURL != "" {
			cfg.Pages = []chatenrich.PageConfig{{ID: "page-1", URL: singleURL}}
		}
		return cfg, nil
	case singleURL != "":
		cfg := chatenrich.DefaultConfig()
		cfg.Pages = []chatenrich.PageConfig{{ID: "page-1", URL: singleURL}}
		return cfg, nil
	}
	return nil, errors.New("chatenrich: -config or -url is required")
}

func run(ctx context.Context, logger *slog.Logger, cfg *chatenrich.Config, mockAddr string) error {
	var servers []*http.Server
	defer func() {
		for _, srv := range servers {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			srv.Shutdown(shutdownCtx)
			cancel()
		}
	}()

	if mockAddr != "" {
		mock := mockapi.New(mockapi.WithLogger(logger))
		srv, addr, err := serve(mockAddr, mock.Handler(), logger)
		if err != nil {
			return fmt.Errorf("mock api: %w", err)
		}
		servers = append(servers, srv)
		cfg.Enrichment.BaseURL = "http://" + dialable(addr)
		logger.Info("chatenrich: mock api listening", "addr", addr)
	}

	sinks, err := chatenrich.SinksFromConfig(cfg, os.Stdout, logger)
	if err != nil {
		return err
	}
	agent, err := chatenrich.New(ctx, cfg, chatenrich.WithLogger(logger), chatenrich.WithSinks(sinks...))
	if err != nil {
		return err
	}
	defer agent.Close()

	if h, err := agent.Health(ctx); err != nil {
		logger.Warn("chatenrich: enrichment service unreachable", "base_url", cfg.Enrichment.BaseURL, "error", err)
	} else {
		logger.Info("chatenrich: enrichment service", "status", h.Status, "database_connected", h.DatabaseConnected)
	}

	if cfg.API.Listen != "" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "chatenrich", Version: "1.0.0"}, nil)
		agent.RegisterMCP(mcpSrv)

		r := chi.NewRouter()
		r.Mount("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))
		r.Mount("/", agent.Handler())

		srv, addr, err := serve(cfg.API.Listen, r, logger)
		if err != nil {
			return fmt.Errorf("control api: %w", err)
		}
		servers = append(servers, srv)
		logger.Info("chatenrich: control api listening", "addr", addr)
	}

	return agent.Run(ctx)
}

// serve listens on addr and serves h in the background. It returns the
// bound address, which differs from addr when addr has port 0.
func serve(addr string, h http.Handler, logger *slog.Logger) (*http.Server, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", err
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("chatenrich: http server", "addr", ln.Addr().String(), "error", err)
		}
	}()
	return srv, ln.Addr().String(), nil
}

// dialable turns a wildcard listen address into a loopback one.
func dialable(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
