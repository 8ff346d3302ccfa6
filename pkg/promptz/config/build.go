package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cremich/promptz-sub001/pkg/promptz"
	"github.com/cremich/promptz-sub001/pkg/promptz/bus"
	"github.com/cremich/promptz-sub001/pkg/promptz/bus/cehttp"
	"github.com/cremich/promptz-sub001/pkg/promptz/bus/jetstream"
	membus "github.com/cremich/promptz-sub001/pkg/promptz/bus/memory"
	"github.com/cremich/promptz-sub001/pkg/promptz/bus/s3archive"
	"github.com/cremich/promptz-sub001/pkg/promptz/internal/awsconf"
	"github.com/cremich/promptz-sub001/pkg/promptz/store/dynamodb"
	"github.com/cremich/promptz-sub001/pkg/promptz/store/memory"
	"github.com/cremich/promptz-sub001/pkg/promptz/store/postgres"
	"github.com/cremich/promptz-sub001/pkg/promptz/store/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Runtime is a fully wired service with the resources it owns. A runtime
// from BuildReplay only carries Replayer and Registry.
type Runtime struct {
	Service   promptz.Service
	Store     promptz.Store
	Publisher *promptz.FanoutPublisher
	Replayer  bus.Replayer // nil without ARCHIVE_URL
	Registry  *promptz.Registry
	Metrics   *prometheus.Registry

	closers []func() error
}

// migrator is implemented by the SQL stores.
type migrator interface {
	Migrate(ctx context.Context, kinds ...promptz.Kind) error
}

// tableCreator is implemented by the DynamoDB store.
type tableCreator interface {
	CreateTables(ctx context.Context, kinds ...promptz.Kind) error
}

// Build connects the store and event sinks and assembles the service.
// Resources opened before a failure are released.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (rt *Runtime, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	rt = &Runtime{
		Registry: promptz.DefaultRegistry(),
		Metrics:  prometheus.NewRegistry(),
	}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	rt.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := promptz.NewMetrics(rt.Metrics)
	if err != nil {
		return rt, fmt.Errorf("failed to register metrics: %w", err)
	}

	rt.Store, err = c.buildStore(ctx, rt)
	if err != nil {
		return rt, fmt.Errorf("failed to build store: %w", err)
	}

	rt.Publisher = promptz.NewFanoutPublisher()
	for _, raw := range c.BusURLs {
		spec, err := ParseSinkURL(raw)
		if err != nil {
			return rt, err
		}
		p, err := c.buildSink(ctx, rt, spec, logger)
		if err != nil {
			return rt, fmt.Errorf("failed to build sink %s: %w", raw, err)
		}
		rt.Publisher.Add(p)
	}

	if c.ArchiveURL != "" {
		p, err := c.buildArchive(ctx, rt, logger)
		if err != nil {
			return rt, err
		}
		rt.Publisher.Add(p)
	}

	rt.Service, err = promptz.New(
		promptz.WithStore(rt.Store),
		promptz.WithPublisher(rt.Publisher),
		promptz.WithLogger(logger),
		promptz.WithMetrics(metrics),
		promptz.WithEventSource(c.EventSource),
		promptz.WithPublishTimeout(c.PublishTimeout),
	)
	if err != nil {
		return rt, err
	}
	return rt, nil
}

// ErrNoArchive is returned by BuildReplay when ARCHIVE_URL is empty.
var ErrNoArchive = errors.New("ARCHIVE_URL is not configured")

// BuildReplay connects only the archive. The store, the service and the
// BUS_URL sinks are left nil, so reading the archive never touches them.
func (c *ServerConfig) BuildReplay(ctx context.Context, logger *slog.Logger) (rt *Runtime, err error) {
	if c.ArchiveURL == "" {
		return nil, ErrNoArchive
	}
	if logger == nil {
		logger = slog.Default()
	}

	rt = &Runtime{Registry: promptz.DefaultRegistry()}
	if _, err = c.buildArchive(ctx, rt, logger); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// buildArchive opens ARCHIVE_URL and sets rt.Replayer.
func (c *ServerConfig) buildArchive(ctx context.Context, rt *Runtime, logger *slog.Logger) (promptz.Publisher, error) {
	spec, err := ParseSinkURL(c.ArchiveURL)
	if err != nil {
		return nil, err
	}
	p, err := c.buildSink(ctx, rt, spec, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build archive %s: %w", c.ArchiveURL, err)
	}
	replayer, ok := p.(bus.Replayer)
	if !ok {
		return nil, fmt.Errorf("archive %s cannot replay", c.ArchiveURL)
	}
	rt.Replayer = replayer
	return p, nil
}

func (c *ServerConfig) awsConfig(region, endpoint string) awsconf.Config {
	if region == "" {
		region = c.AWSRegion
	}
	return awsconf.Config{
		Region:          region,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		Endpoint:        endpoint,
	}
}

func (c *ServerConfig) buildStore(ctx context.Context, rt *Runtime) (promptz.Store, error) {
	spec, err := ParseStoreURL(c.StoreURL)
	if err != nil {
		return nil, err
	}

	switch spec.Type {
	case StoreMemory:
		return memory.New(), nil

	case StorePostgres:
		pool, err := pgxpool.New(ctx, spec.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
		return postgres.NewWithPool(pool,
			postgres.WithSchema(c.DBSchema),
			postgres.WithTablePrefix(c.TablePrefix),
		), nil

	case StoreSQLite:
		store, err := sqlite.Open(spec.Path, c.TablePrefix)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, store.Close)
		return store, nil

	case StoreDynamoDB:
		return dynamodb.New(ctx, dynamodb.Config{
			Config:      c.awsConfig(spec.Region, spec.Endpoint),
			TablePrefix: c.TablePrefix,
		})
	}
	return nil, fmt.Errorf("unsupported store type: %s", spec.Type)
}

func (c *ServerConfig) buildSink(ctx context.Context, rt *Runtime, spec SinkSpec, logger *slog.Logger) (promptz.Publisher, error) {
	switch spec.Type {
	case SinkLog:
		return promptz.NewLogPublisher(logger), nil

	case SinkNoop:
		return promptz.NewNoopPublisher(), nil

	case SinkMemory:
		return membus.New(0), nil

	case SinkNATS:
		b, err := jetstream.Connect(ctx, jetstream.Config{
			URL:           spec.URL,
			Stream:        spec.Stream,
			SubjectPrefix: spec.SubjectPrefix,
			Retention:     c.StreamRetention(spec),
		})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, b.Close)
		return b, nil

	case SinkHTTP:
		return cehttp.New(cehttp.Config{
			Target:     spec.Target,
			Structured: c.BusStructured,
			Timeout:    c.PublishTimeout,
		})

	case SinkS3:
		return s3archive.New(ctx, s3archive.Config{
			Config:                 c.awsConfig(spec.Region, spec.Endpoint),
			Bucket:                 spec.Bucket,
			Prefix:                 spec.Prefix,
			UsePathStyle:           spec.UsePathStyle,
			EnableSSE:              spec.SSEAlgorithm != "",
			SSEAlgorithm:           spec.SSEAlgorithm,
			SSEKMSKeyID:            spec.SSEKMSKeyID,
			CreateBucketIfNotExist: spec.CreateBucket,
		})
	}
	return nil, fmt.Errorf("unsupported sink type: %s", spec.Type)
}

// Migrate creates the tables of every registered kind. Stores without a
// schema do nothing.
func (rt *Runtime) Migrate(ctx context.Context) error {
	kinds := rt.Registry.Kinds()
	switch s := rt.Store.(type) {
	case migrator:
		return s.Migrate(ctx, kinds...)
	case tableCreator:
		return s.CreateTables(ctx, kinds...)
	}
	return nil
}

// Close releases connections in reverse order of creation.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// OpenSink builds an extra publisher from a sink url. Its resources are
// released by rt.Close.
func (c *ServerConfig) OpenSink(ctx context.Context, rt *Runtime, raw string, logger *slog.Logger) (promptz.Publisher, error) {
	spec, err := ParseSinkURL(raw)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return c.buildSink(ctx, rt, spec, logger)
}
