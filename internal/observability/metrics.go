package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

// DefaultMetricsPort is assumed when the exporter address cannot be read back.
const DefaultMetricsPort = 9090

var (
	// TelemetrySystem receives every counter, gauge and histogram. Nil
	// disables emission; recorders in internal/metrics check for it.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the scrape endpoint proxied at /metrics.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// InitMetrics starts the Prometheus exporter on port (0 picks a free one)
// and installs TelemetrySystem on top of it. Metric names are prefixed with
// namespace, or serviceName when namespace is empty.
func InitMetrics(serviceName string, port int, namespace ...string) error {
	if port < 0 {
		port = 0
	}
	prefix := serviceName
	if len(namespace) > 0 && namespace[0] != "" {
		prefix = namespace[0]
	}

	exporter := exporters.NewPrometheusExporter(prefix, fmt.Sprintf(":%d", port))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start prometheus exporter: %w", err)
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: exporter})
	if err != nil {
		return fmt.Errorf("create telemetry system: %w", err)
	}

	PrometheusExporter = exporter
	TelemetrySystem = sys
	metricsPort = boundPort(exporter.GetAddr(), port)
	return nil
}

// GetMetricsPort returns the port the exporter actually bound.
func GetMetricsPort() int {
	return metricsPort
}

// boundPort reads the port back from the listener address. A requested
// port of 0 that cannot be resolved falls back to DefaultMetricsPort.
func boundPort(addr string, requested int) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err == nil {
		if port, convErr := strconv.Atoi(portStr); convErr == nil {
			return port
		}
	}
	if requested == 0 {
		return DefaultMetricsPort
	}
	return requested
}
