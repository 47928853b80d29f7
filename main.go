package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/vespa-engine/metrics-emitter/certs"
	"github.com/vespa-engine/metrics-emitter/config"
	"github.com/vespa-engine/metrics-emitter/emitter"
	"github.com/vespa-engine/metrics-emitter/handlers"
	"github.com/vespa-engine/metrics-emitter/journal"
	"github.com/vespa-engine/metrics-emitter/scheduler"
	"github.com/vespa-engine/metrics-emitter/sink"
	_ "github.com/vespa-engine/metrics-emitter/sqlitedriver"
	"github.com/vespa-engine/metrics-emitter/vespa"
)

// version is set at build time via ldflags
var version = "dev"

type InfoResponse struct {
	Component string `json:"component"`
	Version   string `json:"version"`
	Hostname  string `json:"hostname"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Namespace string `json:"namespace"`
	Sink      string `json:"sink"`
	Endpoint  string `json:"endpoint"`
	NextEmit  string `json:"nextEmit,omitempty"`
}

// EmitterInfo backs the /info endpoint.
type EmitterInfo struct {
	namespace string
	sinkName  string
	endpoint  string
	// Next emit getter (returns RFC3339 timestamp or empty string)
	nextEmitGetter func() string
}

func NewEmitterInfo(namespace, sinkName, endpoint string) *EmitterInfo {
	return &EmitterInfo{
		namespace: namespace,
		sinkName:  sinkName,
		endpoint:  endpoint,
	}
}

// SetNextEmitGetter sets a callback reporting the next scheduled emit run.
func (e *EmitterInfo) SetNextEmitGetter(getter func() string) {
	e.nextEmitGetter = getter
}

func (e *EmitterInfo) GetInfo() interface{} {
	hostname, _ := os.Hostname()

	info := InfoResponse{
		Component: "vespa-metrics-emitter",
		Version:   version,
		Hostname:  hostname,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		Namespace: e.namespace,
		Sink:      e.sinkName,
		Endpoint:  e.endpoint,
	}
	if e.nextEmitGetter != nil {
		info.NextEmit = e.nextEmitGetter()
	}
	return info
}

// setupLogging configures logging to write to both stdout and a log file
func setupLogging() (*os.File, error) {
	logDir := "/var/log/vespa-emitter"
	logFile := filepath.Join(logDir, "emitter.log")

	// Try to create log file, but don't fail if we can't
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		// If we can't create the log file, just log to stdout
		log.Printf("Warning: could not open log file %s: %v (logging to stdout only)", logFile, err)
		return nil, nil
	}

	// Log to both stdout (systemd journal) and file
	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags)

	return file, nil
}

// buildCertSource creates the certificate source selected by the configuration.
// A nil source means the metrics client connects without a client certificate.
func buildCertSource(ctx context.Context, cfg *config.Config) (certs.Source, error) {
	switch cfg.CertSource {
	case "", "none":
		return nil, nil
	case "file":
		return certs.NewFileSource(cfg.CertFile, cfg.KeyFile), nil
	case "ssm":
		source, err := certs.NewSSMSource(ctx, cfg.SSMRegion, cfg.CertParam, cfg.KeyParam)
		if err != nil {
			return nil, err
		}
		return source, nil
	default:
		return nil, fmt.Errorf("unknown cert_source %q (expected none, file or ssm)", cfg.CertSource)
	}
}

// buildSink creates the metrics sink selected by the configuration.
func buildSink(ctx context.Context, cfg *config.Config) (sink.Sink, error) {
	switch cfg.Sink {
	case "cloudwatch":
		// The region comes from the AWS environment, like the rest of the
		// default credential chain.
		cw, err := sink.NewCloudWatchSink(ctx, "")
		if err != nil {
			return nil, err
		}
		return cw, nil
	case "otlp":
		otlp, err := sink.NewOTLPSink(ctx, sink.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: sink.OTLPProtocol(cfg.OTLPProtocol),
			Insecure: cfg.OTLPInsecure,
			Version:  version,
		})
		if err != nil {
			return nil, err
		}
		return otlp, nil
	case "kafka":
		kafka, err := sink.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		return kafka, nil
	default:
		return nil, fmt.Errorf("unknown sink %q (expected cloudwatch, otlp or kafka)", cfg.Sink)
	}
}

func main() {
	// Setup logging to both stdout and file
	logFile, _ := setupLogging()
	if logFile != nil {
		defer func() { _ = logFile.Close() }()
	}

	configPath := flag.String("config", "", "path to configuration file")
	runOnce := flag.Bool("once", false, "perform a single emit run and exit")
	flag.Parse()

	// Load configuration from file with environment variable overrides
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadConfig(*configPath)
	} else {
		cfg, err = config.LoadConfigWithDefaults()
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("vespa-metrics-emitter v%s starting", version)
	log.Printf("Configuration: endpoint=%s, sink=%s, namespace=%s, chunk_size=%d",
		cfg.Endpoint, cfg.Sink, cfg.Namespace, cfg.ChunkSize)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Resolve client certificate material once at startup
	certSource, err := buildCertSource(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize certificate source: %v", err)
	}

	clientCfg := vespa.ClientConfig{
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.FetchTimeout,
	}
	if certSource != nil {
		certFile, keyFile, err := certSource.Resolve(ctx)
		if err != nil {
			log.Fatalf("Failed to resolve client certificate: %v", err)
		}
		clientCfg.CertFile = certFile
		clientCfg.KeyFile = keyFile
	}

	client, err := vespa.NewClient(clientCfg)
	if err != nil {
		log.Fatalf("Failed to create metrics client: %v", err)
	}

	metricsSink, err := buildSink(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize %s sink: %v", cfg.Sink, err)
	}

	runner := emitter.NewRunner(client, metricsSink, cfg.Namespace, cfg.ChunkSize)

	// One-shot mode for cron or manual use: no journal, no HTTP server,
	// a non-zero exit code for any failed outcome.
	if *runOnce {
		summary := runner.Run(ctx)
		log.Printf("Run %s finished with outcome %s (%d points, %d chunks, %v)",
			summary.RunID, summary.Outcome, summary.Points, summary.ChunksSent, summary.Duration)

		// os.Exit skips deferred calls, so release resources here
		if err := metricsSink.Close(); err != nil {
			log.Printf("Warning: failed to close sink: %v", err)
		}
		if certSource != nil {
			if err := certSource.Close(); err != nil {
				log.Printf("Warning: failed to clean up certificate material: %v", err)
			}
		}

		if summary.Outcome != emitter.OutcomeCompleted && summary.Outcome != emitter.OutcomeNoNodes {
			os.Exit(1)
		}
		return
	}

	defer func() {
		if err := metricsSink.Close(); err != nil {
			log.Printf("Warning: failed to close sink: %v", err)
		}
	}()
	if certSource != nil {
		defer func() {
			if err := certSource.Close(); err != nil {
				log.Printf("Warning: failed to clean up certificate material: %v", err)
			}
		}()
	}

	// Initialize the run journal. The emitter works without it, so a journal
	// failure only costs the run history endpoints.
	jnl, err := journal.New(cfg.JournalPath)
	if err != nil {
		log.Printf("Warning: failed to initialize run journal at %s: %v (continuing without journal)", cfg.JournalPath, err)
		jnl = nil
	} else {
		defer func() { _ = journal.Close(jnl) }()
	}

	// A nil *Journal must not end up inside a non-nil interface value
	var recorder emitter.RunRecorder
	var runStore handlers.RunStore
	if jnl != nil {
		recorder = jnl
		runStore = jnl
	}

	// Initialize scheduler with the emit job and, when the journal is
	// available, the retention prune job
	sched := scheduler.New()

	emitJob := emitter.NewEmitJob(runner, recorder)
	if err := sched.AddJob(
		emitJob,
		scheduler.NewIntervalScheduleWithJitter(cfg.EmitInterval, cfg.EmitJitter),
		scheduler.JobConfig{
			Enabled: true,
			Timeout: cfg.RunTimeout,
		},
	); err != nil {
		log.Fatalf("Failed to add emit job: %v", err)
	}
	log.Printf("Scheduled %s job (interval: %v, jitter: %v, timeout: %v)",
		emitter.EmitJobName, cfg.EmitInterval, cfg.EmitJitter, cfg.RunTimeout)

	if jnl != nil {
		pruneJob := journal.NewPruneJob(jnl, cfg.JournalKeep)
		if err := sched.AddJob(
			pruneJob,
			scheduler.NewIntervalSchedule(time.Hour),
			scheduler.JobConfig{
				Enabled: true,
				Timeout: time.Minute,
			},
		); err != nil {
			log.Fatalf("Failed to add journal prune job: %v", err)
		}
	}

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Setup HTTP server
	infoProvider := NewEmitterInfo(cfg.Namespace, metricsSink.Name(), cfg.Endpoint)
	infoProvider.SetNextEmitGetter(func() string {
		next, err := sched.GetNextRun(emitter.EmitJobName)
		if err != nil {
			return ""
		}
		return next.Format(time.RFC3339)
	})

	mux := http.NewServeMux()
	handlers.RegisterHandlers(mux, infoProvider, runStore, sched, emitter.EmitJobName)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("vespa-metrics-emitter listening on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutdown signal received, shutting down gracefully...")

	// Stop scheduling new runs and wait for any in-flight run to finish
	cancel()
	if err := sched.Stop(); err != nil {
		log.Printf("Error stopping scheduler: %v", err)
	}

	// Shutdown HTTP server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("vespa-metrics-emitter stopped")
}
