// Package services builds the gateway's one long-lived shared object
// graph — the "explicit Services context" the teacher's re-architecture
// notes call for in place of process-wide singletons. Everything that
// outlives a single request (the database handle, the quota limiters,
// the metrics registry, the configured auth module) is constructed once
// here and threaded through to pkg/api's handlers.
package services

import (
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/lightspeed-stack/query-gateway/pkg/auth"
	"github.com/lightspeed-stack/query-gateway/pkg/authz"
	"github.com/lightspeed-stack/query-gateway/pkg/cache"
	"github.com/lightspeed-stack/query-gateway/pkg/config"
	"github.com/lightspeed-stack/query-gateway/pkg/feedback"
	"github.com/lightspeed-stack/query-gateway/pkg/metrics"
	"github.com/lightspeed-stack/query-gateway/pkg/query"
	"github.com/lightspeed-stack/query-gateway/pkg/quota"
	"github.com/lightspeed-stack/query-gateway/pkg/streaming"
	"github.com/lightspeed-stack/query-gateway/pkg/toolcomposer"
	"github.com/lightspeed-stack/query-gateway/pkg/transcripts"
	"github.com/lightspeed-stack/query-gateway/pkg/upstream"
)

// Services is the gateway's object graph for one running process. Every
// field is safe for concurrent use; Services itself carries no mutable
// state beyond what its fields already guard.
type Services struct {
	Config config.Config

	Auth           auth.Module
	RoleResolver   authz.RoleResolver
	AccessResolver authz.AccessResolver

	Upstream upstream.Client
	Cache    cache.Cache
	Limiters []quota.Limiter

	Metrics     *metrics.Metrics
	Registry    *prometheus.Registry
	Transcripts *transcripts.Writer
	Feedback    *feedback.Writer

	Query     *query.Handler
	Streaming *streaming.Handler

	db *sql.DB // non-nil only for the postgres cache backend; closed by Close
}

// New constructs the full Services object graph from cfg. Component
// construction order mirrors the dependency order in spec §5: the cache
// backend (and its *sql.DB, if any) before the quota limiters that may
// share it, the upstream client before the handlers that wrap it, and
// the metrics registry before anything that records to it.
func New(cfg config.Config, upstreamClient upstream.Client) (*Services, error) {
	registry := prometheus.NewRegistry()
	m := metrics.Init(registry)

	c, db, err := buildCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("services: build cache: %w", err)
	}

	limiters, err := buildLimiters(cfg.QuotaLimits, db)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("services: build quota limiters: %w", err)
	}

	authModule, err := buildAuth(cfg.Auth)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, fmt.Errorf("services: build auth module: %w", err)
	}

	mcpServers := make([]toolcomposer.MCPServer, len(cfg.MCPServers))
	for i, s := range cfg.MCPServers {
		mcpServers[i] = toolcomposer.MCPServer{Name: s.Name, URL: s.URL}
	}

	handlerCfg := query.Config{
		DefaultModel:        cfg.DefaultModel,
		DefaultProvider:     cfg.DefaultProvider,
		DefaultSystemPrompt: cfg.DefaultSystemPrompt,
		SummarySystemPrompt: cfg.SummarySystemPrompt,
		MCPServers:          mcpServers,
	}

	transcriptWriter := transcripts.NewWriter(cfg.TranscriptRoot)
	feedbackWriter := feedback.NewWriter(cfg.FeedbackRoot)

	return &Services{
		Config:         cfg,
		Auth:           authModule,
		RoleResolver:   authz.NoopRoleResolver{},
		AccessResolver: authz.NoopAccessResolver{},
		Upstream:       upstreamClient,
		Cache:          c,
		Limiters:       limiters,
		Metrics:        m,
		Registry:       registry,
		Transcripts:    transcriptWriter,
		Feedback:       feedbackWriter,
		Query: &query.Handler{
			Client:      upstreamClient,
			Cache:       c,
			Limiters:    limiters,
			Transcripts: transcriptWriter,
			Metrics:     m,
			Config:      handlerCfg,
		},
		Streaming: &streaming.Handler{
			Client:      upstreamClient,
			Cache:       c,
			Limiters:    limiters,
			Transcripts: transcriptWriter,
			Metrics:     m,
			Config:      handlerCfg,
		},
		db: db,
	}, nil
}

// Close closes the shared Postgres database handle, if the postgres cache
// backend opened one; no other resource is released.
func (s *Services) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("services: close database: %w", err)
	}
	return nil
}

func buildCache(cfg config.CacheConfig) (cache.Cache, *sql.DB, error) {
	switch cfg.Backend {
	case "", "memory":
		return cache.NewMemory(), nil, nil
	case "noop":
		return cache.NewNoop(), nil, nil
	case "sqlite":
		c, err := cache.NewSQLite(cfg.DSN)
		return c, nil, err
	case "postgres":
		return cache.NewPostgres(cfg.DSN)
	default:
		return nil, nil, fmt.Errorf("services: unknown cache backend %q", cfg.Backend)
	}
}

func buildLimiters(limits []config.QuotaLimit, db *sql.DB) ([]quota.Limiter, error) {
	limiters := make([]quota.Limiter, 0, len(limits))
	for _, l := range limits {
		if db != nil {
			limiters = append(limiters, quota.NewPostgresLimiter(db, l.Name, l.Limit))
			continue
		}
		limiters = append(limiters, quota.NewMemoryLimiter(l.Name, l.Limit))
	}
	return limiters, nil
}

func buildAuth(cfg config.AuthConfig) (auth.Module, error) {
	switch cfg.Module {
	case "", "noop":
		return auth.Noop{}, nil
	case "noop-with-token":
		return auth.NoopWithToken{}, nil
	case "jwk-token":
		return auth.NewJWKToken(auth.JWKTokenConfig{JWKSURL: cfg.JWKSURL}), nil
	case "k8s":
		restCfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("services: load in-cluster k8s config: %w", err)
		}
		client, err := kubernetes.NewForConfig(restCfg)
		if err != nil {
			return nil, fmt.Errorf("services: build k8s client: %w", err)
		}
		return auth.NewK8s(client, auth.K8sConfig{}), nil
	default:
		return nil, fmt.Errorf("services: unknown auth module %q", cfg.Module)
	}
}
