package mqtt311

import (
	"github.com/hashicorp/go-hclog"
)

// HCLogger adapts a hashicorp/go-hclog logger to the Logger interface.
type HCLogger struct {
	logger hclog.Logger
}

// NewHCLogger wraps an hclog.Logger. A nil logger uses hclog.Default().
func NewHCLogger(logger hclog.Logger) *HCLogger {
	if logger == nil {
		logger = hclog.Default()
	}
	return &HCLogger{logger: logger}
}

// Debug logs a debug message.
func (h *HCLogger) Debug(msg string, fields LogFields) {
	h.logger.Debug(msg, flattenFields(fields)...)
}

// Info logs an info message.
func (h *HCLogger) Info(msg string, fields LogFields) {
	h.logger.Info(msg, flattenFields(fields)...)
}

// Warn logs a warning message.
func (h *HCLogger) Warn(msg string, fields LogFields) {
	h.logger.Warn(msg, flattenFields(fields)...)
}

// Error logs an error message.
func (h *HCLogger) Error(msg string, fields LogFields) {
	h.logger.Error(msg, flattenFields(fields)...)
}

func flattenFields(fields LogFields) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
