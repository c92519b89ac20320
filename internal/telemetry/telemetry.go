package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkgfleet/pkgfleet/pkg/backend"
	apperrors "github.com/pkgfleet/pkgfleet/pkg/errors"
	"github.com/pkgfleet/pkgfleet/pkg/logging"
	"github.com/pkgfleet/pkgfleet/pkg/metrics"
)

// Sink receives backend failures the orchestrator decided are worth
// reporting. User-input, terminal and cancelled failures never arrive here.
type Sink interface {
	ReportFailure(ctx context.Context, backendID string, op backend.OperationKind, kind apperrors.ErrorKind, message string)
}

// Report is one reported failure
type Report struct {
	ID        string                `json:"id"`
	BackendID string                `json:"backend_id"`
	Operation backend.OperationKind `json:"operation"`
	Kind      apperrors.ErrorKind   `json:"kind"`
	Message   string                `json:"message"`
	Timestamp time.Time             `json:"timestamp"`
}

// Handler delivers a report to one destination
type Handler interface {
	HandleReport(ctx context.Context, report Report) error
	Name() string
}

// Reporter fans reports out to its handlers, suppressing repeats of the
// same (backend, operation, kind) within the dedup window so a flapping
// backend does not flood the sink.
type Reporter struct {
	handlers []Handler
	window   time.Duration

	mu       sync.Mutex
	lastSeen map[string]time.Time

	logger *logging.Logger
	now    func() time.Time
}

// NewReporter creates a reporter with the given dedup window
func NewReporter(window time.Duration) *Reporter {
	if window <= 0 {
		window = 5 * time.Minute
	}

	return &Reporter{
		window:   window,
		lastSeen: make(map[string]time.Time),
		logger:   logging.GetLogger(),
		now:      time.Now,
	}
}

// AddHandler registers a delivery handler
func (r *Reporter) AddHandler(handler Handler) {
	r.handlers = append(r.handlers, handler)
}

// ReportFailure implements Sink
func (r *Reporter) ReportFailure(ctx context.Context, backendID string, op backend.OperationKind, kind apperrors.ErrorKind, message string) {
	key := fmt.Sprintf("%s:%s:%s", backendID, op, kind)

	r.mu.Lock()
	now := r.now()
	if last, ok := r.lastSeen[key]; ok && now.Sub(last) < r.window {
		r.mu.Unlock()
		return
	}
	r.lastSeen[key] = now
	r.mu.Unlock()

	report := Report{
		ID:        uuid.New().String(),
		BackendID: backendID,
		Operation: op,
		Kind:      kind,
		Message:   message,
		Timestamp: now,
	}

	for _, handler := range r.handlers {
		if err := handler.HandleReport(ctx, report); err != nil {
			r.logger.Error("Failed to deliver failure report",
				"handler", handler.Name(),
				"backend", backendID,
				"error", err.Error(),
			)
		}
	}
}

// LoggingHandler writes reports to the structured log
type LoggingHandler struct {
	logger *logging.Logger
}

// NewLoggingHandler creates a logging delivery handler
func NewLoggingHandler(logger *logging.Logger) *LoggingHandler {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &LoggingHandler{logger: logger}
}

func (h *LoggingHandler) Name() string {
	return "logging"
}

func (h *LoggingHandler) HandleReport(ctx context.Context, report Report) error {
	h.logger.Warn("Backend failure reported",
		"report_id", report.ID,
		"backend", report.BackendID,
		"operation", string(report.Operation),
		"kind", string(report.Kind),
		"message", report.Message,
	)
	return nil
}

// MetricsHandler counts reports in Prometheus
type MetricsHandler struct {
	metrics *metrics.Metrics
}

// NewMetricsHandler creates a metrics delivery handler
func NewMetricsHandler(m *metrics.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: m}
}

func (h *MetricsHandler) Name() string {
	return "metrics"
}

func (h *MetricsHandler) HandleReport(ctx context.Context, report Report) error {
	h.metrics.RecordReportedFailure(report.BackendID, string(report.Operation), string(report.Kind))
	return nil
}

// NopSink discards every report, useful in tests and when telemetry is
// disabled by configuration
type NopSink struct{}

func (NopSink) ReportFailure(ctx context.Context, backendID string, op backend.OperationKind, kind apperrors.ErrorKind, message string) {
}
