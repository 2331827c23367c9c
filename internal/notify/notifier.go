// Package notify delivers engine notifications to people outside the engine.
package notify

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Notifier delivers one notification. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, kind string, recipients []string, payload json.RawMessage) error
}

// LogNotifier writes notifications to the log. Used when no webhook is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, kind string, recipients []string, payload json.RawMessage) error {
	n.logger.Info("notification",
		zap.String("kind", kind),
		zap.Strings("recipients", recipients),
		zap.ByteString("payload", payload))
	return nil
}
