package progress

import (
	"context"
	"log/slog"
)

// Sink accepts push-based progress events. Delivery is best-effort; the
// pipeline never blocks on a slow or broken sink.
type Sink interface {
	Emit(ctx context.Context, e Event) error
	Close() error
}

// LogSink writes events to the structured log. It is the default sink.
type LogSink struct {
	Logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

func (s *LogSink) Emit(_ context.Context, e Event) error {
	s.Logger.Info("batch.progress",
		"type", e.Type,
		"current", e.Current,
		"total", e.Total,
		"failed", e.Failed,
		"skipped", e.Skipped,
		"file", e.CurrentFile,
		"message", e.Message,
	)
	return nil
}

func (s *LogSink) Close() error { return nil }

// ChannelSink forwards events to a Go channel, dropping when the consumer
// falls behind. Useful for tests and in-process subscribers.
type ChannelSink struct {
	C chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{C: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(_ context.Context, e Event) error {
	select {
	case s.C <- e:
	default:
		// consumer behind; drop rather than stall the batch
	}
	return nil
}

func (s *ChannelSink) Close() error {
	close(s.C)
	return nil
}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, e Event) error {
	var firstErr error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiSink) Close() error {
	var firstErr error
	for _, s := range m {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
