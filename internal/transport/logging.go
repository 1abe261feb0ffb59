// SPDX-License-Identifier: MIT
package transport

import (
	"go.uber.org/zap"

	applog "sigscope/internal/log"
)

// LoggingTransport writes every message to the debug log.
type LoggingTransport struct {
	log *zap.SugaredLogger
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	lt := &LoggingTransport{log: applog.Named("transport")}
	lt.log.Debug("Using LoggingTransport")
	return lt
}

// Send logs the type and content of data. It never fails.
func (lt *LoggingTransport) Send(data any) error {
	lt.log.Debugw("message", "type", typeName(data), "data", data)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

func typeName(data any) string {
	if m, ok := data.(interface{ MessageType() string }); ok {
		return m.MessageType()
	}
	return "unknown"
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
