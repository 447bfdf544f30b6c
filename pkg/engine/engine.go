// Package engine orchestrates a pricing batch: load the persisted cache,
// resolve every catalog resource across all commitment terms, join, and
// fold the results into a savings report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/finchops/azreserve/pkg/catalog"
	"github.com/finchops/azreserve/pkg/config"
	"github.com/finchops/azreserve/pkg/pricing"
	"github.com/finchops/azreserve/pkg/report"
	"github.com/finchops/azreserve/pkg/savings"
	"github.com/finchops/azreserve/pkg/storage"
	"github.com/finchops/azreserve/pkg/swarm"
	"github.com/finchops/azreserve/pkg/telemetry"
	"github.com/finchops/azreserve/pkg/version"
)

// Config holds engine settings.
type Config struct {
	MaxConcurrency int
	CacheKey       string
	OutputDir      string // local path or "s3://bucket/prefix"
	JsonLogs       bool

	// Telemetry config.
	OtelEndpoint  string
	SkipTelemetry bool

	// Dependencies.
	Logger *slog.Logger
}

// Engine is the runtime core.
type Engine struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	Pool   *swarm.Pool

	config    Config
	outputDir string
	s3Target  string

	store     storage.BlobStore
	cache     *pricing.QuoteCache
	primary   pricing.PrimarySource
	secondary pricing.SecondarySource
}

// Option defines a functional configuration override.
type Option func(*Engine)

// New initializes the Engine with safe defaults: JSON logs, a local blob
// store rooted at the working directory, and live price sources.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: redactSensitiveData,
	})
	e := &Engine{
		Logger:    slog.New(handler),
		Tracer:    otel.Tracer("azreserve/engine"),
		outputDir: config.DefaultOutputDir,
		config: Config{
			MaxConcurrency: config.DefaultPricingConfig().MaxConcurrency,
			CacheKey:       config.DefaultPricingConfig().CacheKey,
		},
	}

	for _, opt := range opts {
		opt(e)
	}

	slog.SetDefault(e.Logger)

	if !e.config.SkipTelemetry {
		shutdown, err := telemetry.Init(ctx, version.AppName, version.Current, e.config.OtelEndpoint)
		if err != nil {
			e.Logger.Warn("Telemetry failed", "error", err)
		} else {
			_ = shutdown
		}
	}

	if e.store == nil {
		e.store = storage.NewLocalStore(".")
	}
	if e.cache == nil {
		e.cache = pricing.NewQuoteCache(e.Logger, e.store, e.config.CacheKey)
	}
	if e.primary == nil {
		e.primary = pricing.NewRetailClient(e.Logger)
	}
	if e.secondary == nil {
		e.secondary = pricing.NewScraper(e.Logger)
	}
	if e.Pool == nil {
		max := e.config.MaxConcurrency
		if max < 1 {
			max = 1
		}
		start := max / 2
		if start < 1 {
			start = 1
		}
		e.Pool = swarm.NewPool(start, 1, max, func(err error) bool {
			return errors.Is(err, pricing.ErrThrottled)
		})
	}

	return e, nil
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.Logger = l
	}
}

// WithPrimary sets the primary price source.
func WithPrimary(p pricing.PrimarySource) Option {
	return func(e *Engine) {
		e.primary = p
	}
}

// WithSecondary sets the fallback price source.
func WithSecondary(s pricing.SecondarySource) Option {
	return func(e *Engine) {
		e.secondary = s
	}
}

// WithStore sets the blob store for the cache and artifacts.
func WithStore(s storage.BlobStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithConfig sets raw config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		if cfg.MaxConcurrency <= 0 {
			cfg.MaxConcurrency = e.config.MaxConcurrency
		}
		if cfg.CacheKey == "" {
			cfg.CacheKey = e.config.CacheKey
		}
		e.config = cfg
		if cfg.OutputDir != "" {
			if strings.HasPrefix(cfg.OutputDir, "s3://") {
				e.s3Target = cfg.OutputDir
				e.outputDir = config.DefaultOutputDir // Generate locally first
			} else {
				e.outputDir = cfg.OutputDir
			}
		}
		if cfg.Logger != nil {
			e.Logger = cfg.Logger
		}
	}
}

// OutputDir returns the local directory artifacts are written to.
func (e *Engine) OutputDir() string {
	return e.outputDir
}

// Run prices the catalog and returns the savings report. An empty catalog
// is a precondition failure, not an empty report.
func (e *Engine) Run(ctx context.Context, cat *catalog.Catalog) (*report.Report, error) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Run")
	defer span.End()

	// Crash safety.
	defer e.recoverPanic(ctx)

	if cat == nil || len(cat.Resources) == 0 {
		return nil, catalog.ErrEmptyCatalog
	}

	e.Logger.Info("Starting pricing batch",
		"resources", len(cat.Resources),
		"max_concurrency", e.config.MaxConcurrency)

	if err := e.cache.Load(ctx); err != nil {
		return nil, fmt.Errorf("load price cache: %w", err)
	}
	e.Logger.Info("Price cache loaded", "entries", e.cache.Len())

	resolver := pricing.NewResolver(e.Logger, e.primary, e.secondary, e.cache)

	e.Pool.Start(ctx)
	defer e.Pool.Stop()

	var (
		mu       sync.Mutex
		records  []savings.Record
		unpriced []savings.Unpriced
	)

	g, gctx := errgroup.WithContext(ctx)

	// Warm the secondary source for license-priced resources while the
	// primary lookups run. The scrape session is single-concurrency, so
	// this is one sequential pass over distinct pairs.
	g.Go(func() error {
		seen := make(map[string]bool)
		for _, desc := range cat.Resources {
			if desc.OS != catalog.OSWindows {
				continue
			}
			key := pricing.Key(desc.SKU, desc.Region)
			if seen[key] {
				continue
			}
			seen[key] = true
			resolver.Prefetch(gctx, desc.SKU, desc.Region)
		}
		return nil
	})

	g.Go(func() error {
		for _, desc := range cat.Resources {
			desc := desc
			e.Pool.Submit(func(tctx context.Context) error {
				quotes, err := resolver.ResolveAll(tctx, desc)
				rec, miss := savings.Compute(desc, quotes)
				mu.Lock()
				if rec != nil {
					records = append(records, *rec)
				}
				if miss != nil {
					unpriced = append(unpriced, *miss)
				}
				mu.Unlock()
				return err
			})
		}
		e.Pool.Wait()
		return nil
	})

	// Join barrier: nothing below runs until every resource is resolved.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := savings.Aggregate(records, unpriced)
	span.SetAttributes(
		attribute.Int("batch.priced", summary.PricedCount),
		attribute.Int("batch.unpriced", summary.UnpricedCount),
	)
	e.Logger.Info("Pricing batch complete",
		"priced", summary.PricedCount,
		"unpriced", summary.UnpricedCount,
		"cached_pairs", e.cache.Len())

	if err := e.cache.Save(ctx); err != nil {
		e.Logger.Warn("Failed to persist price cache", "error", err)
	}

	return report.New(summary, records, unpriced), nil
}

// recoverPanic handles failures.
func (e *Engine) recoverPanic(ctx context.Context) {
	if r := recover(); r != nil {
		tr := otel.Tracer("azreserve/engine")
		_, span := tr.Start(ctx, "CriticalPanic")

		stack := debug.Stack()

		span.RecordError(fmt.Errorf("%v", r), trace.WithStackTrace(true))
		span.SetStatus(codes.Error, "CRITICAL FAILURE")
		span.SetAttributes(
			attribute.String("crash.stack", string(stack)),
			attribute.String("crash.reason", fmt.Sprintf("%v", r)),
		)
		span.End()

		e.Logger.Error("CRITICAL FAILURE", "error", r, "stack", string(stack))
	}
}

// redactSensitiveData scrubs sensitive keys from logs.
func redactSensitiveData(groups []string, a slog.Attr) slog.Attr {
	sensitiveKeys := map[string]bool{
		"account": true, "password": true, "access_key": true, "token": true,
		"secret": true, "api_key": true, "private_key": true, "auth_token": true,
		"refresh_token": true, "certificate": true, "signature": true,
		"credential": true, "ssh_key": true, "connection_string": true,
	}

	if sensitiveKeys[a.Key] {
		return slog.Attr{
			Key:   a.Key,
			Value: slog.StringValue("[REDACTED]"),
		}
	}
	return a
}
