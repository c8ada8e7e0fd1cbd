package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"lacus-client/internal/artifact"
	"lacus-client/internal/env"
	"lacus-client/internal/runnable"
	"lacus-client/internal/schedule"
	"lacus-client/internal/storage"
	"lacus-client/internal/telemetry"
	"lacus-client/lacus"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func main() {
	if err := env.Load(); err != nil {
		log.Fatalf("failed to load environment: %v", err)
	}

	var urlInstance string
	var schedulesFile string
	var storageBackend string
	var pollInterval time.Duration
	var debug bool
	var storageConfig storage.Config
	flag.StringVar(&urlInstance, "url-instance", env.OrDefault("LACUS_URL", "http://127.0.0.1:7100"), "URL of the Lacus instance")
	flag.StringVar(&schedulesFile, "schedules", env.OrDefault("SCHEDULES_FILE", "schedules.yaml"), "YAML file listing the schedules")
	flag.DurationVar(&pollInterval, "poll-interval", env.OrDefault("POLL_INTERVAL", 5*time.Second), "Polling interval of captures being exported")
	flag.BoolVar(&debug, "debug", env.OrDefault("DEBUG", false), "Human readable logs and pprof endpoints")
	flag.StringVar(&storageBackend, "storage-backend", env.OrDefault("STORAGE_BACKEND", "file"), "Storage backend of exported captures (file, s3 or minio)")
	flag.StringVar(&storageConfig.File.Directory, "directory", env.OrDefault("DIRECTORY", "/tmp"), "Output directory of the file backend")
	flag.StringVar(&storageConfig.S3.Bucket, "s3-bucket", env.OrDefault("S3_BUCKET", ""), "Bucket of the s3 backend")
	flag.StringVar(&storageConfig.S3.Prefix, "s3-prefix", env.OrDefault("S3_PREFIX", ""), "Key prefix of the s3 backend")
	flag.StringVar(&storageConfig.S3.EndpointURL, "s3-endpoint-url", env.OrDefault("S3_ENDPOINT_URL", ""), "Endpoint of an S3 compatible service")
	flag.StringVar(&storageConfig.S3.Region, "s3-region", env.OrDefault("S3_REGION", ""), "Region of the s3 backend")
	flag.StringVar(&storageConfig.MinIO.Endpoint, "minio-endpoint", env.OrDefault("MINIO_ENDPOINT", ""), "Endpoint of the minio backend")
	flag.StringVar(&storageConfig.MinIO.AccessKey, "minio-access-key", env.OrDefault("MINIO_ACCESS_KEY", ""), "Access key of the minio backend")
	flag.StringVar(&storageConfig.MinIO.SecretKey, "minio-secret-key", env.OrDefault("MINIO_SECRET_KEY", ""), "Secret key of the minio backend")
	flag.StringVar(&storageConfig.MinIO.Bucket, "minio-bucket", env.OrDefault("MINIO_BUCKET", ""), "Bucket of the minio backend")
	flag.BoolVar(&storageConfig.MinIO.UseSSL, "minio-use-ssl", env.OrDefault("MINIO_USE_SSL", false), "Connect to the minio backend over TLS")
	flag.BoolVar(&storageConfig.MinIO.CreateBucket, "minio-create-bucket", env.OrDefault("MINIO_CREATE_BUCKET", false), "Create the minio bucket when missing")
	flag.Parse()
	storageConfig.Backend = storage.Backend(storageBackend)

	ctx := context.Background()

	logger, err := telemetry.NewLogger(os.Stderr, debug)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	runnable.Debug = debug

	otel.SetTextMapPropagator(propagation.TraceContext{})
	tracerProvider, err := telemetry.NewTracerProvider(ctx, "lacus-scheduler")
	if err != nil {
		log.Fatalf("failed to create tracer provider: %v", err)
	}
	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(tracerProvider))

	meterProvider, err := telemetry.NewMeterProvider("lacus-scheduler")
	if err != nil {
		log.Fatalf("failed to create meter provider: %v", err)
	}
	otel.SetMeterProvider(meterProvider)

	entries, err := schedule.ParseFile(schedulesFile)
	if err != nil {
		log.Fatalf("failed to read schedules: %v", err)
	}

	config := lacus.DefaultConfig()
	config.Logger = logger
	config.MeterProvider = meterProvider
	client, err := lacus.NewClient(urlInstance, config)
	if err != nil {
		log.Fatalf("failed to create lacus client: %v", err)
	}
	if !client.IsUp(ctx) {
		logger.Warn("lacus is not reachable yet", "url", client.RootURL())
	}

	scheduler, err := schedule.NewScheduler(client, entries, telemetry.Logr(logger).WithName("schedule"), meterProvider)
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	scheduler.PollInterval = pollInterval

	for _, entry := range entries {
		if !entry.Export {
			continue
		}
		s, err := storage.New(ctx, storageConfig)
		if err != nil {
			log.Fatalf("failed to create storage backend: %v", err)
		}
		scheduler.Exporter = &artifact.Exporter{Storage: s, Concurrency: 4}
		break
	}

	logger.Info("starting scheduler", "schedules", len(entries), "url", client.RootURL())
	startErr := runnable.NewServer(scheduler, logger, meterProvider).Start(ctx)

	if err := tracerProvider.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown tracer provider", "error", err)
	}
	if startErr != nil {
		log.Fatalf("scheduler stopped: %v", startErr)
	}
}
