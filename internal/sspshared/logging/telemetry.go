// Package logging builds the process-wide structured logger and OTel
// providers: a fan-out slog handler (stderr text plus an OTel log
// bridge) backed by stdout exporters in dev and OTLP/HTTP exporters
// whenever an endpoint is configured.
package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"sspbackend/internal/sspshared/apperr"
)

// Settings configures Service construction. OTLPEndpoint is an
// "http://host:port" or "https://host:port" OTLP/HTTP collector
// address; an empty value selects stdout-only exporters.
type Settings struct {
	ServiceName  string
	LogLevel     string
	OTLPEndpoint string
}

// Service holds the process's logger and OTel providers plus the
// shutdown funcs needed to flush them on exit.
type Service struct {
	Slogger         *slog.Logger
	MetricsProvider metric.MeterProvider
	TracesProvider  trace.TracerProvider
	StartTime       time.Time

	shutdownFns []func(context.Context) error
}

// ParseLogLevel maps a case-insensitive level name onto slog.Level.
// CONFIG/NOTICE/TRACE/FATAL/ALL/OFF are accepted as aliases of the
// nearest slog level so operators can reuse java.util.logging-style
// config values without translation.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ALL", "TRACE", "DEBUG":
		return slog.LevelDebug, nil
	case "CONFIG", "INFO":
		return slog.LevelInfo, nil
	case "NOTICE", "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR", "FATAL":
		return slog.LevelError, nil
	case "OFF":
		return slog.Level(math.MaxInt32), nil
	default:
		return 0, apperr.New(apperr.KindValidationError, fmt.Sprintf("unsupported log level %q", name))
	}
}

// New builds the logger and OTel providers described by settings.
// Every exporter is stdout-backed unless settings.OTLPEndpoint is set,
// in which case OTLP/HTTP exporters are used instead.
func New(ctx context.Context, settings Settings) (*Service, error) {
	level, err := ParseLogLevel(settings.LogLevel)
	if err != nil {
		return nil, err
	}

	svc := &Service{StartTime: time.Now()}

	logExporter, err := svc.buildLogExporter(ctx, settings)
	if err != nil {
		return nil, err
	}

	metricExporter, err := svc.buildMetricExporter(ctx, settings)
	if err != nil {
		return nil, err
	}

	traceExporter, err := svc.buildTraceExporter(ctx, settings)
	if err != nil {
		return nil, err
	}

	loggerProvider := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)))
	svc.shutdownFns = append(svc.shutdownFns, loggerProvider.Shutdown)

	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	svc.shutdownFns = append(svc.shutdownFns, meterProvider.Shutdown)
	svc.MetricsProvider = meterProvider

	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	svc.shutdownFns = append(svc.shutdownFns, tracerProvider.Shutdown)
	svc.TracesProvider = tracerProvider

	otelHandler := otelslog.NewHandler(settings.ServiceName, otelslog.WithLoggerProvider(loggerProvider))
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	svc.Slogger = slog.New(slogmulti.Fanout(textHandler, otelHandler)).With("service", settings.ServiceName)

	return svc, nil
}

// Shutdown flushes and closes every exporter. Errors are joined rather
// than returned on first failure so every provider gets a chance to
// flush.
func (s *Service) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error

	for _, fn := range s.shutdownFns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return apperr.Wrap(apperr.KindTransient, "telemetry shutdown failed", errors.Join(errs...))
}

func newStdoutLogExporter() (sdklog.Exporter, error) {
	exporter, err := stdoutlog.New()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to create stdout log exporter", err)
	}

	return exporter, nil
}

func (s *Service) buildLogExporter(ctx context.Context, settings Settings) (sdklog.Exporter, error) {
	if settings.OTLPEndpoint == "" {
		return newStdoutLogExporter()
	}

	endpoint, insecure, err := splitEndpoint(settings.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}

	exporter, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to create OTLP log exporter", err)
	}

	return exporter, nil
}

func (s *Service) buildMetricExporter(ctx context.Context, settings Settings) (sdkmetric.Exporter, error) {
	if settings.OTLPEndpoint == "" {
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindTransient, "failed to create stdout metric exporter", err)
		}

		return exporter, nil
	}

	endpoint, insecure, err := splitEndpoint(settings.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to create OTLP metric exporter", err)
	}

	return exporter, nil
}

func (s *Service) buildTraceExporter(ctx context.Context, settings Settings) (sdktrace.SpanExporter, error) {
	if settings.OTLPEndpoint == "" {
		exporter, err := stdouttrace.New()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindTransient, "failed to create stdout trace exporter", err)
		}

		return exporter, nil
	}

	endpoint, insecure, err := splitEndpoint(settings.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to create OTLP trace exporter", err)
	}

	return exporter, nil
}

// splitEndpoint parses an "http(s)://host:port" OTLP endpoint into the
// bare "host:port" form the otlp*http exporters expect plus whether
// the connection should skip TLS.
func splitEndpoint(raw string) (addr string, insecure bool, err error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, apperr.Wrap(apperr.KindValidationError, "invalid OTLP endpoint", err)
	}

	switch parsed.Scheme {
	case "http":
		insecure = true
	case "https":
		insecure = false
	default:
		return "", false, apperr.New(apperr.KindValidationError, fmt.Sprintf("invalid OTLP endpoint protocol %q", parsed.Scheme))
	}

	if parsed.Host == "" {
		return "", false, apperr.New(apperr.KindValidationError, "OTLP endpoint is missing a host")
	}

	return parsed.Host, insecure, nil
}
