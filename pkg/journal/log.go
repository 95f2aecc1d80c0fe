package journal

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes entries as structured log lines.
type LogSink struct {
	logger *zap.Logger
}

func (s *LogSink) Open(_ context.Context, _ Config, logger *zap.Logger) error {
	s.logger = logger
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return nil
}

func (s *LogSink) Write(_ context.Context, e Entry) error {
	s.logger.Info("journal",
		zap.Time("at", e.At),
		zap.String("role", e.Role),
		zap.String("sessionID", e.SessionID),
		zap.String("stationID", e.StationID),
		zap.String("kind", e.Kind),
		zap.String("topic", e.Topic),
		zap.ByteString("payload", e.Payload),
	)
	return nil
}

func (s *LogSink) Close() error {
	return nil
}

func init() {
	RegisterSink(SinkLog, func() Sink { return &LogSink{} })
}
