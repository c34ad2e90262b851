package progress

import (
	"go.uber.org/zap"

	"github.com/webharvest/batchfetch/internal/metrics"
)

// LogSink writes one structured log line per completed item.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Record logs the event at Debug for successes and Warn for failures.
func (s *LogSink) Record(event Event) {
	fields := []zap.Field{
		zap.String("batch_id", event.BatchID),
		zap.Int("index", event.Index),
		zap.String("url", event.URL),
		zap.Int("status", event.StatusCode),
		zap.Duration("duration", event.Duration),
	}
	if event.Success {
		s.logger.Debug("item fetched", append(fields, zap.Int("bytes", event.Bytes))...)
		return
	}
	s.logger.Warn("item failed", append(fields, zap.String("error", event.Error))...)
}

// PrometheusSink forwards item outcomes to the metrics collectors.
type PrometheusSink struct{}

// Record updates fetch counters and latency histograms.
func (PrometheusSink) Record(event Event) {
	metrics.ObserveFetch(event.StatusCode, event.Bytes, event.Duration)
}
