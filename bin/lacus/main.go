package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	v1 "lacus-client/api/v1"
	"lacus-client/internal/artifact"
	"lacus-client/internal/env"
	"lacus-client/internal/storage"
	"lacus-client/internal/telemetry"
	"lacus-client/lacus"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/xerrors"
)

type headers []string

func (h *headers) String() string {
	return strings.Join(*h, ", ")
}

func (h *headers) Set(value string) error {
	*h = append(*h, value)
	return nil
}

const usage = `Usage: lacus [flags] <command> [arguments]

Commands:
  enqueue <url>       enqueue a URL, or a local file with --document
  status <uuid>       status of a capture
  result <uuid>       capture as returned by Lacus
  wait <uuid>         wait for a capture to be done and print it
  export <uuid>       wait for a capture and store its artifacts
  stats [date]        daily statistics, today by default
  db-status           database status
  lacus-status        status of the instance
  busy                whether the instance is busy
  ongoing             ongoing captures
  enqueued            enqueued captures
  proxies             proxies configured on the instance

Flags:
`

var errUnreachable = errors.New("instance is unreachable")

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) error {
	flags := flag.NewFlagSet("lacus", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}

	var urlInstance string
	var redisUp bool
	var timeout time.Duration
	var maxRetries uint
	var userAgent string
	var debug bool
	flags.StringVar(&urlInstance, "url-instance", env.OrDefault("LACUS_URL", "http://127.0.0.1:7100"), "URL of the instance")
	flags.BoolVar(&redisUp, "redis-up", false, "Check if redis is up")
	flags.BoolVar(&redisUp, "redis_up", false, "Alias of --redis-up")
	flags.DurationVar(&timeout, "timeout", env.OrDefault("LACUS_TIMEOUT", 30*time.Second), "Timeout of every call to the instance")
	flags.UintVar(&maxRetries, "max-retries", env.OrDefault("LACUS_MAX_RETRIES", uint(5)), "Retries on server errors and connection failures")
	flags.StringVar(&userAgent, "client-user-agent", env.OrDefault("LACUS_USER_AGENT", ""), "User-Agent sent to the instance")
	flags.BoolVar(&debug, "debug", env.OrDefault("DEBUG", false), "Log requests in a human readable format")
	if err := flags.Parse(args); err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(stderr, debug)
	if err != nil {
		return err
	}

	config := lacus.DefaultConfig()
	config.Timeout = timeout
	config.MaxRetries = maxRetries
	config.Logger = logger
	if userAgent != "" {
		config.UserAgent = userAgent
	}
	client, err := lacus.NewClient(urlInstance, config)
	if err != nil {
		return err
	}

	if !client.IsUp(ctx) {
		fmt.Fprintf(stderr, "Unable to reach %s. Is the server up?\n", client.RootURL())
		return errUnreachable
	}

	if redisUp {
		up, err := client.RedisUp(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, up)
	}

	if flags.NArg() == 0 {
		flags.Usage()
		return xerrors.New("a command is required")
	}
	command, args := flags.Arg(0), flags.Args()[1:]

	switch command {
	case "enqueue":
		return enqueue(ctx, client, args, stdout, stderr)
	case "status":
		id, err := identifier(args)
		if err != nil {
			return err
		}
		status, err := client.GetCaptureStatus(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(stdout, status)
	case "result":
		id, err := identifier(args)
		if err != nil {
			return err
		}
		capture, err := client.GetCaptureRaw(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(stdout, capture)
	case "wait":
		capture, err := wait(ctx, client, args, stderr)
		if err != nil {
			return err
		}
		return printJSON(stdout, lacus.Encode(capture))
	case "export":
		return export(ctx, client, args, stdout, stderr)
	case "stats":
		return stats(ctx, client, args, stdout, stderr)
	case "db-status":
		status, err := client.DBStatus(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, status)
	case "lacus-status":
		status, err := client.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, status)
	case "busy":
		busy, err := client.IsBusy(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, busy)
	case "ongoing", "enqueued":
		listFlags := flag.NewFlagSet(command, flag.ContinueOnError)
		listFlags.SetOutput(stderr)
		withSettings := listFlags.Bool("with-settings", false, "Include the settings of every capture")
		if err := listFlags.Parse(args); err != nil {
			return err
		}
		list := client.OngoingCaptures
		if command == "enqueued" {
			list = client.EnqueuedCaptures
		}
		captures, err := list(ctx, *withSettings)
		if err != nil {
			return err
		}
		return printJSON(stdout, captures)
	case "proxies":
		proxies, err := client.Proxies(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, proxies)
	default:
		flags.Usage()
		return xerrors.Errorf("unknown command: %s", command)
	}
}

func identifier(args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", xerrors.New("exactly one capture identifier is required")
	}
	return args[0], nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return xerrors.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func enqueue(ctx context.Context, client *lacus.Client, args []string, stdout io.Writer, stderr io.Writer) error {
	flags := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var document string
	var generateUUID bool
	var browser string
	var deviceName string
	var userAgent string
	var proxy string
	var referer string
	var depth int
	var priority int
	var generalTimeout int
	var force bool
	var withFavicon bool
	var cookies string
	var headers headers
	flags.StringVar(&document, "document", "", "Capture a local file instead of a URL")
	flags.BoolVar(&generateUUID, "generate-uuid", false, "Generate the capture identifier instead of letting Lacus pick one")
	flags.StringVar(&browser, "browser", "", "Browser engine (chromium, firefox or webkit)")
	flags.StringVar(&deviceName, "device-name", "", "Device to emulate")
	flags.StringVar(&userAgent, "user-agent", "", "User-Agent used by the capture")
	flags.StringVar(&proxy, "proxy", "", "Proxy used by the capture")
	flags.StringVar(&referer, "referer", "", "Referer sent by the capture")
	flags.IntVar(&depth, "depth", 0, "Levels of links to capture")
	flags.IntVar(&priority, "priority", 0, "Priority of the capture")
	flags.IntVar(&generalTimeout, "general-timeout", -1, "Timeout of the capture in seconds, the instance default when negative")
	flags.BoolVar(&force, "force", false, "Capture again even if a recent capture exists")
	flags.BoolVar(&withFavicon, "with-favicon", false, "Fetch the potential favicons")
	flags.StringVar(&cookies, "cookies", "", "JSON file holding a cookie or a list of cookies")
	flags.Var(&headers, "H", "Add HTTP header (can be used multiple times, e.g., -H 'Accept-Language: en')")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var opts []lacus.EnqueueOption
	switch {
	case flags.NArg() == 1:
		opts = append(opts, lacus.WithURL(flags.Arg(0)))
	case flags.NArg() == 0 && document != "":
		content, err := os.ReadFile(document)
		if err != nil {
			return xerrors.Errorf("failed to read document: %w", err)
		}
		opts = append(opts, lacus.WithDocument(filepath.Base(document), content))
	default:
		return xerrors.New("either one URL or --document is required")
	}

	opts = append(opts,
		lacus.WithBrowser(v1.Browser(browser)),
		lacus.WithDeviceName(deviceName),
		lacus.WithUserAgent(userAgent),
		lacus.WithProxy(proxy),
		lacus.WithReferer(referer),
		lacus.WithDepth(depth),
		lacus.WithPriority(priority),
		lacus.WithForce(force),
		lacus.WithFavicon(withFavicon),
		lacus.WithHeadersString(strings.Join(headers, "\n")),
	)
	if cookies != "" {
		b, err := os.ReadFile(cookies)
		if err != nil {
			return xerrors.Errorf("failed to read cookies: %w", err)
		}
		parsed, err := lacus.ParseCookies(b)
		if err != nil {
			return err
		}
		opts = append(opts, lacus.WithCookies(parsed))
	}
	if generalTimeout >= 0 {
		opts = append(opts, lacus.WithGeneralTimeout(generalTimeout))
	}
	if generateUUID {
		opts = append(opts, lacus.WithUUID(uuid.NewString()))
	}

	id, err := client.Enqueue(ctx, opts...)
	if err != nil {
		return err
	}
	return printJSON(stdout, id)
}

func wait(ctx context.Context, client *lacus.Client, args []string, stderr io.Writer) (*v1.CaptureResponse, error) {
	flags := flag.NewFlagSet("wait", flag.ContinueOnError)
	flags.SetOutput(stderr)
	interval := flags.Duration("interval", 5*time.Second, "Polling interval")
	maxWait := flags.Duration("max-wait", 10*time.Minute, "Give up after this long")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	id, err := identifier(flags.Args())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, *maxWait)
	defer cancel()
	return client.WaitForCapture(ctx, id, *interval)
}

func export(ctx context.Context, client *lacus.Client, args []string, stdout io.Writer, stderr io.Writer) error {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var config storage.Config
	var backend string
	flags.StringVar(&backend, "storage-backend", env.OrDefault("STORAGE_BACKEND", "file"), "Storage backend (file, s3 or minio)")
	flags.StringVar(&config.File.Directory, "directory", env.OrDefault("DIRECTORY", "."), "Output directory of the file backend")
	flags.StringVar(&config.S3.Bucket, "s3-bucket", env.OrDefault("S3_BUCKET", ""), "Bucket of the s3 backend")
	flags.StringVar(&config.S3.Prefix, "s3-prefix", env.OrDefault("S3_PREFIX", ""), "Key prefix of the s3 backend")
	flags.StringVar(&config.S3.EndpointURL, "s3-endpoint-url", env.OrDefault("S3_ENDPOINT_URL", ""), "Endpoint of an S3 compatible service")
	flags.StringVar(&config.S3.Region, "s3-region", env.OrDefault("S3_REGION", ""), "Region of the s3 backend")
	flags.StringVar(&config.MinIO.Endpoint, "minio-endpoint", env.OrDefault("MINIO_ENDPOINT", ""), "Endpoint of the minio backend")
	flags.StringVar(&config.MinIO.AccessKey, "minio-access-key", env.OrDefault("MINIO_ACCESS_KEY", ""), "Access key of the minio backend")
	flags.StringVar(&config.MinIO.SecretKey, "minio-secret-key", env.OrDefault("MINIO_SECRET_KEY", ""), "Secret key of the minio backend")
	flags.StringVar(&config.MinIO.Bucket, "minio-bucket", env.OrDefault("MINIO_BUCKET", ""), "Bucket of the minio backend")
	flags.BoolVar(&config.MinIO.UseSSL, "minio-use-ssl", env.OrDefault("MINIO_USE_SSL", false), "Connect to the minio backend over TLS")
	flags.BoolVar(&config.MinIO.CreateBucket, "minio-create-bucket", env.OrDefault("MINIO_CREATE_BUCKET", false), "Create the minio bucket when missing")
	concurrency := flags.Int("concurrency", 4, "Parallel uploads")
	interval := flags.Duration("interval", 5*time.Second, "Polling interval")
	if err := flags.Parse(args); err != nil {
		return err
	}
	config.Backend = storage.Backend(backend)

	id, err := identifier(flags.Args())
	if err != nil {
		return err
	}

	s, err := storage.New(ctx, config)
	if err != nil {
		return err
	}

	capture, err := client.WaitForCapture(ctx, id, *interval)
	if err != nil {
		return err
	}
	manifest, err := (&artifact.Exporter{Storage: s, Concurrency: *concurrency}).Export(ctx, id, capture)
	if err != nil {
		return err
	}
	return printJSON(stdout, manifest)
}

func stats(ctx context.Context, client *lacus.Client, args []string, stdout io.Writer, stderr io.Writer) error {
	flags := flag.NewFlagSet("stats", flag.ContinueOnError)
	flags.SetOutput(stderr)
	details := flags.Bool("details", false, "List the captures, retries and failures instead of counting them")
	if err := flags.Parse(args); err != nil {
		return err
	}

	var day time.Time
	if flags.NArg() > 0 {
		var err error
		if day, err = time.Parse(time.DateOnly, flags.Arg(0)); err != nil {
			return xerrors.Errorf("failed to parse date: %w", err)
		}
	}

	s, err := client.DailyStats(ctx, day, !*details)
	if err != nil {
		return err
	}
	return printJSON(stdout, s)
}

func main() {
	if err := env.Load(); err != nil {
		log.Fatalf("failed to load environment: %v", err)
	}

	ctx := context.Background()

	tracerProvider, err := telemetry.NewTracerProvider(ctx, "lacus")
	if err != nil {
		log.Fatalf("failed to create tracer provider: %v", err)
	}
	otel.SetTracerProvider(tracerProvider)

	err = run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	if err := tracerProvider.Shutdown(ctx); err != nil {
		log.Printf("failed to shutdown tracer provider: %v", err)
	}

	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUnreachable):
		os.Exit(1)
	default:
		log.Fatalf("%v", err)
	}
}
