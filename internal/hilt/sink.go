package hilt

import "log/slog"

// LogSink sends operator output to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink over logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) LogLine(text string) {
	s.logger.Info(text)
}

func (s *LogSink) LogBusFrame(text string) {
	s.logger.Info("bus", "frame", text)
}
