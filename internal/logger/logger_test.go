package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBufferLogger cria um logger que escreve JSON no buffer
func newBufferLogger(buf *bytes.Buffer, level logrus.Level) *StructuredLogger {
	return &StructuredLogger{
		logger: &logrus.Logger{
			Out:       buf,
			Formatter: &logrus.JSONFormatter{},
			Level:     level,
			Hooks:     make(logrus.LevelHooks),
		},
		fields: make(logrus.Fields),
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		expected logrus.Level
	}{
		{name: "Debug level JSON format", level: "debug", format: "json", expected: logrus.DebugLevel},
		{name: "Info level text format", level: "info", format: "text", expected: logrus.InfoLevel},
		{name: "Invalid level defaults to info", level: "invalid", format: "json", expected: logrus.InfoLevel},
		{name: "Warn level", level: "warn", format: "json", expected: logrus.WarnLevel},
		{name: "Error level", level: "error", format: "json", expected: logrus.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.level, tt.format)
			structLogger, ok := logger.(*StructuredLogger)
			require.True(t, ok)
			assert.Equal(t, tt.expected, structLogger.logger.GetLevel())
		})
	}
}

func TestStructuredLogger_LogLevels(t *testing.T) {
	var buf bytes.Buffer
	structLogger := newBufferLogger(&buf, logrus.DebugLevel)

	tests := []struct {
		name     string
		logFunc  func()
		expected string
	}{
		{
			name:     "Debug log",
			logFunc:  func() { structLogger.Debug("Debug message", map[string]interface{}{"key": "value"}) },
			expected: "debug",
		},
		{
			name:     "Info log",
			logFunc:  func() { structLogger.Info("Info message", map[string]interface{}{"key": "value"}) },
			expected: "info",
		},
		{
			name:     "Warn log",
			logFunc:  func() { structLogger.Warn("Warn message", map[string]interface{}{"key": "value"}) },
			expected: "warning",
		},
		{
			name: "Error log",
			logFunc: func() {
				structLogger.Error("Error message", errors.New("test error"), map[string]interface{}{"key": "value"})
			},
			expected: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.logFunc()

			output := buf.String()
			assert.Contains(t, output, tt.expected)
			assert.Contains(t, output, "security_gate")
		})
	}
}

func TestStructuredLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	structLogger := newBufferLogger(&buf, logrus.DebugLevel)

	ctx := ContextWithRequestInfo(context.Background(), "req-123", "192.168.1.1", "session-abcdef123", "test-agent")

	structLogger.WithContext(ctx).Info("Test message with context", nil)

	output := buf.String()
	assert.Contains(t, output, "req-123")
	assert.Contains(t, output, "192.168.1.1")
	assert.Contains(t, output, "session-***")
	assert.NotContains(t, output, "session-abcdef123")
	assert.Contains(t, output, "test-agent")
}

func TestLogRequestOutcome(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		expectedLevel string
		expectedMsg   string
	}{
		{name: "Success is info", status: http.StatusOK, expectedLevel: "info", expectedMsg: "Request completed"},
		{name: "Redirect is info", status: http.StatusFound, expectedLevel: "info", expectedMsg: "Request completed"},
		{name: "Bad request is warning", status: http.StatusBadRequest, expectedLevel: "warning", expectedMsg: "Request rejected"},
		{name: "Too many requests is warning", status: http.StatusTooManyRequests, expectedLevel: "warning", expectedMsg: "Request rejected"},
		{name: "Server error is error", status: http.StatusInternalServerError, expectedLevel: "error", expectedMsg: "Request failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			structLogger := newBufferLogger(&buf, logrus.DebugLevel)

			LogRequestOutcome(structLogger, tt.status, map[string]interface{}{"path": "/x"})

			var entry map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
			assert.Equal(t, tt.expectedLevel, entry["level"])
			assert.Equal(t, tt.expectedMsg, entry["msg"])
			assert.Equal(t, float64(tt.status), entry["status"])
			assert.Equal(t, "/x", entry["path"])
		})
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{name: "Empty", secret: "", expected: ""},
		{name: "Long secret", secret: "verylongtoken123456789", expected: "verylong***"},
		{name: "Short secret", secret: "short", expected: "short***"},
		{name: "Exact 8 chars", secret: "exactly8", expected: "exactly8***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskSecret(tt.secret))
		})
	}
}

func TestContextWithRequestInfo(t *testing.T) {
	enrichedCtx := ContextWithRequestInfo(context.Background(), "req-456", "10.0.0.1", "sess123", "Mozilla/5.0")

	assert.Equal(t, "req-456", enrichedCtx.Value(RequestIDKey))
	assert.Equal(t, "10.0.0.1", enrichedCtx.Value(IPKey))
	assert.Equal(t, "sess123", enrichedCtx.Value(SessionKey))
	assert.Equal(t, "Mozilla/5.0", enrichedCtx.Value(UserAgentKey))
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
	}{
		{name: "Nil context", ctx: nil, expected: ""},
		{name: "Context without request ID", ctx: context.Background(), expected: ""},
		{name: "Context with request ID", ctx: context.WithValue(context.Background(), RequestIDKey, "req-789"), expected: "req-789"},
		{name: "Context with invalid request ID type", ctx: context.WithValue(context.Background(), RequestIDKey, 123), expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetRequestID(tt.ctx))
		})
	}
}

func TestStructuredLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	structLogger := newBufferLogger(&buf, logrus.InfoLevel)

	structLogger.Info("Test JSON format", map[string]interface{}{
		"test_field": "test_value",
		"number":     123,
	})

	var logEntry map[string]interface{}
	err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &logEntry)
	require.NoError(t, err)

	assert.Contains(t, logEntry, "msg") // logrus usa "msg" por padrão
	assert.Contains(t, logEntry, "level")
	assert.Equal(t, "security_gate", logEntry["component"])
	assert.Equal(t, "test_value", logEntry["test_field"])
	assert.Equal(t, float64(123), logEntry["number"])
}
