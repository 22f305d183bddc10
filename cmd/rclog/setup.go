package main

import (
	"context"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/rclog/internal/config"
	"github.com/therealutkarshpriyadarshi/rclog/internal/dlq"
	"github.com/therealutkarshpriyadarshi/rclog/internal/logging"
	"github.com/therealutkarshpriyadarshi/rclog/internal/metrics"
	"github.com/therealutkarshpriyadarshi/rclog/internal/output"
	"github.com/therealutkarshpriyadarshi/rclog/internal/pipeline"
	"github.com/therealutkarshpriyadarshi/rclog/internal/profiling"
	"github.com/therealutkarshpriyadarshi/rclog/internal/reliability"
	"github.com/therealutkarshpriyadarshi/rclog/internal/security"
	"github.com/therealutkarshpriyadarshi/rclog/internal/shutdown"
	"github.com/therealutkarshpriyadarshi/rclog/internal/tracing"
)

const shutdownTimeout = 30 * time.Second

// runtime holds what a command builds around the pipeline and must release
type runtime struct {
	logger     *logging.Logger
	metrics    *metrics.Collector
	tracer     *tracing.Provider
	router     *output.Router
	deadLetter *dlq.DeadLetterQueue
	profiler   *profiling.Profiler
	pipeline   *pipeline.Pipeline
	shutdown   *shutdown.Manager
}

func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	logger := newLogger(cfg)
	rt := &runtime{
		logger:   logger,
		metrics:  metrics.NewCollector(),
		shutdown: shutdown.New(shutdown.Config{Timeout: shutdownTimeout, Logger: logger}),
	}

	if p := cfg.Profiling; p != nil {
		rt.profiler = profiling.New(profiling.Config{
			CPUProfilePath: p.CPUProfile,
			MemProfilePath: p.MemProfile,
		}, logger)
		if rt.profiler.Enabled() {
			if err := rt.profiler.Start(); err != nil {
				return nil, err
			}
			rt.shutdown.Register("profiling", func(context.Context) error { return rt.profiler.Stop() })
		}
	}

	tracerCfg := tracing.Config{}
	if cfg.Tracing != nil {
		tracerCfg = tracing.Config{
			Enabled:    cfg.Tracing.Enabled,
			Endpoint:   cfg.Tracing.Endpoint,
			SampleRate: cfg.Tracing.SampleRate,
		}
	}
	tracer, err := tracing.NewProvider(ctx, tracerCfg)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	rt.tracer = tracer
	rt.shutdown.Register("tracing", tracer.Shutdown)

	if dir := cfg.Sinks.DeadLetterDir; dir != "" {
		queue, err := dlq.NewDeadLetterQueue(dlq.DLQConfig{Dir: dir})
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.deadLetter = queue
		rt.shutdown.Register("dead letters", func(context.Context) error { return queue.Close() })
	}

	router, err := newRouter(ctx, cfg, rt)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.router = router
	rt.shutdown.Register("sinks", func(context.Context) error { return router.Close() })

	rt.pipeline = pipeline.New(pipeline.Options{
		Config:  cfg,
		Logger:  rt.logger,
		Metrics: rt.metrics,
		Tracer:  rt.tracer,
		Router:  rt.router,
	})
	return rt, nil
}

// newRouter connects every configured sink
func newRouter(ctx context.Context, cfg *config.Config, rt *runtime) (*output.Router, error) {
	retry := reliability.RetryConfig{}
	if r := cfg.Retry; r != nil {
		retry = reliability.RetryConfig{
			MaxRetries:     r.MaxRetries,
			InitialBackoff: r.InitialBackoff,
			MaxBackoff:     r.MaxBackoff,
			Multiplier:     r.Multiplier,
			Jitter:         r.Jitter,
		}
	}

	routerCfg := output.RouterConfig{
		Retry:   retry,
		Metrics: rt.metrics,
		Tracer:  rt.tracer,
		Logger:  rt.logger.WithComponent("output"),
	}
	if rt.deadLetter != nil {
		routerCfg.DeadLetter = rt.deadLetter
	}
	router := output.NewRouter(routerCfg)

	if s := cfg.Sinks.S3; s != nil {
		uploader, err := output.NewS3Uploader(ctx, output.S3Config{
			Bucket:       s.Bucket,
			Region:       s.Region,
			Prefix:       s.Prefix,
			Endpoint:     s.Endpoint,
			UsePathStyle: s.UsePathStyle,
			StorageClass: s.StorageClass,
		}, cfg.Report.Organization, cfg.Report.ChassisID)
		if err != nil {
			router.Close()
			return nil, fmt.Errorf("failed to create s3 sink: %w", err)
		}
		router.AddFileSink(uploader)
		rt.logger.Info().Str("bucket", s.Bucket).Msg("S3 sink enabled")
	}

	if k := cfg.Sinks.Kafka; k != nil {
		publisher, err := output.NewKafkaPublisher(output.KafkaConfig{
			Brokers:          k.Brokers,
			Topic:            k.Topic,
			ClientID:         k.ClientID,
			RequiredAcks:     k.RequiredAcks,
			CompressionCodec: k.CompressionCodec,
			Version:          k.Version,
			RateLimit:        k.RateLimit,
			TLS:              sinkTLS(k.TLS),
		})
		if err != nil {
			router.Close()
			return nil, fmt.Errorf("failed to create kafka sink: %w", err)
		}
		router.AddEventSink(publisher)
		rt.logger.Info().Str("topic", k.Topic).Msg("Kafka sink enabled")
	}

	if es := cfg.Sinks.Elasticsearch; es != nil {
		indexer, err := output.NewElasticsearchIndexer(output.ElasticsearchConfig{
			Addresses: es.Addresses,
			Index:     es.Index,
			Username:  es.Username,
			Password:  es.Password,
			APIKey:    es.APIKey,
			CloudID:   es.CloudID,
			BatchSize: es.BatchSize,
			RateLimit: es.RateLimit,
			TLS:       sinkTLS(es.TLS),
		})
		if err != nil {
			router.Close()
			return nil, fmt.Errorf("failed to create elasticsearch sink: %w", err)
		}
		router.AddEventSink(indexer)
		rt.logger.Info().Str("index", es.Index).Msg("Elasticsearch sink enabled")
	}

	return router, nil
}

func sinkTLS(t *config.TLSConfig) *security.TLSConfig {
	if t == nil {
		return nil
	}
	return &security.TLSConfig{
		Enabled:            t.Enabled,
		CertFile:           t.CertFile,
		KeyFile:            t.KeyFile,
		CAFile:             t.CAFile,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}
}

// close releases everything in reverse creation order
func (rt *runtime) close() {
	if err := rt.shutdown.Shutdown(); err != nil {
		rt.logger.Warn().Err(err).Msg("Shutdown completed with errors")
	}
}
