// Package metrics provides Prometheus metrics for the panel server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "panel_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// File manager metrics
	fileOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_file_operations_total",
			Help: "File operations by type and outcome",
		},
		[]string{"op", "result"},
	)

	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panel_upload_bytes_total",
			Help: "Total bytes stored from uploads",
		},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_uploads_total",
			Help: "Total uploaded files by outcome",
		},
		[]string{"status"},
	)

	downloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panel_download_bytes_total",
			Help: "Total bytes served by the download endpoint",
		},
	)

	quotaRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panel_upload_quota_rejections_total",
			Help: "Uploads rejected for exceeding the per-file limit",
		},
	)

	// Terminal metrics
	terminalCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_terminal_commands_total",
			Help: "Terminal commands by outcome",
		},
		[]string{"result"},
	)

	terminalCommandDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "panel_terminal_command_duration_seconds",
			Help:    "Terminal command wall-clock duration",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	// Database metrics
	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "panel_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	// SSE metrics
	sseConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "panel_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	sseEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_sse_events_total",
			Help: "Total SSE events published",
		},
		[]string{"type"},
	)

	rateLimitHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panel_rate_limit_hits_total",
			Help: "Total rate limit rejections (429s)",
		},
	)

	// Backup metrics
	backupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_backups_total",
			Help: "Backups by outcome",
		},
		[]string{"status"},
	)

	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "panel_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordFileOp records a file manager operation.
func RecordFileOp(op string, success bool) {
	fileOpsTotal.WithLabelValues(op, outcome(success)).Inc()
}

// RecordUpload records one uploaded file.
func RecordUpload(status string, bytes int64) {
	uploadsTotal.WithLabelValues(status).Inc()
	uploadBytesTotal.Add(float64(bytes))
}

// RecordDownload records bytes sent by a download.
func RecordDownload(bytes int64) {
	downloadBytesTotal.Add(float64(bytes))
}

// RecordQuotaRejection records an upload over the per-file limit.
func RecordQuotaRejection() {
	quotaRejectionsTotal.Inc()
}

// RecordTerminalCommand records a terminal command. result is one of
// success, failed, blocked, timeout.
func RecordTerminalCommand(result string, duration time.Duration) {
	terminalCommandsTotal.WithLabelValues(result).Inc()
	if duration > 0 {
		terminalCommandDuration.Observe(duration.Seconds())
	}
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// SetDBConnectionsOpen sets the number of open database connections.
func SetDBConnectionsOpen(count int) {
	dbConnectionsOpen.Set(float64(count))
}

// SetSSEConnectionsActive sets the number of active SSE connections.
func SetSSEConnectionsActive(count int64) {
	sseConnectionsActive.Set(float64(count))
}

// RecordSSEEvent records an SSE event publication.
func RecordSSEEvent(eventType string) {
	sseEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordRateLimitHit records a rate limit rejection.
func RecordRateLimitHit() {
	rateLimitHitsTotal.Inc()
}

// RecordBackup records a backup run.
func RecordBackup(success bool) {
	backupsTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordS3Operation records an S3 operation duration.
func RecordS3Operation(operation string, duration time.Duration) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// routeLabel keeps the path label bounded: WebDAV paths carry file names.
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/dav/") {
		return "/dav/"
	}
	if strings.HasPrefix(path, "/api/admin/users/") {
		return "/api/admin/users/"
	}
	return path
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), rw.statusCode, time.Since(start))
	})
}
