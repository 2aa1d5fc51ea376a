// Package main starts the query gateway: an HTTP front door that
// authenticates a caller, resolves/creates their upstream agent, forwards
// one turn to the upstream inference server, and records the result.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lightspeed-stack/query-gateway/pkg/api"
	"github.com/lightspeed-stack/query-gateway/pkg/config"
	"github.com/lightspeed-stack/query-gateway/pkg/services"
	"github.com/lightspeed-stack/query-gateway/pkg/upstream"
)

const upstreamTimeout = 60 * time.Second

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
	}

	cfg, err := config.Load(filepath.Join(*configDir, "gateway.yaml"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	upstreamClient := upstream.NewHTTPClient(cfg.UpstreamURL, upstreamTimeout)

	svc, err := services.New(*cfg, upstreamClient)
	if err != nil {
		log.Fatalf("failed to build services: %v", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error("error closing services", "error", err)
		}
	}()

	router := api.NewRouter(svc)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	go func() {
		slog.Info("gateway listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("error during shutdown", "error", err)
	}
}
