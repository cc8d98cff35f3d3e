package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drive_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drive_http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)

	// File metrics
	FilesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drive_files_uploaded_total",
			Help: "Total number of files uploaded",
		},
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "drive_upload_bytes_total",
			Help: "Total bytes accepted by the storage provider",
		},
	)

	FilesDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_files_deleted_total",
			Help: "Files removed from user lists, by outcome of the remote destroy",
		},
		[]string{"remote"},
	)

	// Authentication metrics
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"status"},
	)

	RegisterAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_register_attempts_total",
			Help: "Total number of registration attempts",
		},
		[]string{"status"},
	)

	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_otp_issued_total",
			Help: "One-time codes issued",
		},
		[]string{"flow"},
	)

	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_otp_verifications_total",
			Help: "One-time code verification outcomes",
		},
		[]string{"flow", "result"},
	)

	MailDispatch = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drive_mail_dispatch_total",
			Help: "Outbound mail attempts",
		},
		[]string{"kind", "status"},
	)
)

// RecordHTTPRequest records metrics for an HTTP request
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := httpStatusToString(status)
	HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

func httpStatusToString(code int) string {
	if code >= 200 && code < 300 {
		return "2xx"
	} else if code >= 300 && code < 400 {
		return "3xx"
	} else if code >= 400 && code < 500 {
		return "4xx"
	} else if code >= 500 {
		return "5xx"
	}
	return "unknown"
}

// RecordFileUpload counts a stored upload and its size.
func RecordFileUpload(size int64) {
	FilesUploaded.Inc()
	UploadBytes.Add(float64(size))
}

// RecordFileDelete counts a local removal labelled with the remote outcome
// ("removed", "failed", "skipped").
func RecordFileDelete(remote string) {
	FilesDeleted.WithLabelValues(remote).Inc()
}

func RecordLogin(success bool) {
	LoginAttempts.WithLabelValues(outcome(success)).Inc()
}

func RecordRegistration(success bool) {
	RegisterAttempts.WithLabelValues(outcome(success)).Inc()
}

// RecordOTPIssued counts a code issued for flow ("registration", "reset").
func RecordOTPIssued(flow string) {
	OTPIssued.WithLabelValues(flow).Inc()
}

// RecordOTPVerification counts a verify outcome such as "verified",
// "mismatch", "expired", "exhausted" or "missing".
func RecordOTPVerification(flow, result string) {
	OTPVerifications.WithLabelValues(flow, result).Inc()
}

func RecordMail(kind string, sent bool) {
	status := "failed"
	if sent {
		status = "sent"
	}
	MailDispatch.WithLabelValues(kind, status).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
