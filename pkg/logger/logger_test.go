package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func captureLogger(buf *bytes.Buffer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	return zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(buf),
		zap.DebugLevel,
	))
}

func TestLogger_Info_WithTraceAndRequestID(t *testing.T) {
	buffer := &bytes.Buffer{}
	Log = captureLogger(buffer)

	ctx := context.WithValue(context.Background(), TraceIdKey, "trace-abc")
	ctx = context.WithValue(ctx, RequestIdKey, "req-1")

	Info(ctx, "转账成功", zap.String("wallet_id", "w-1"), zap.String("amount", "40"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry), "日志输出必须是合法的 JSON")

	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "转账成功", entry["msg"])
	assert.Equal(t, "w-1", entry["wallet_id"])
	assert.Equal(t, "40", entry["amount"])
	assert.Equal(t, "trace-abc", entry["trace_id"])
	assert.Equal(t, "req-1", entry["request_id"])
}

func TestLogger_Error_NoTraceID(t *testing.T) {
	buffer := &bytes.Buffer{}
	Log = captureLogger(buffer)

	Error(context.Background(), "数据库连接失败", zap.String("db", "mysql"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &entry))

	_, exists := entry["trace_id"]
	assert.False(t, exists, "没有 TraceID 的 Context 不应该输出 trace_id 字段")
	_, exists = entry["request_id"]
	assert.False(t, exists)
	assert.Equal(t, "error", entry["level"])
}

func TestLogger_NilContext(t *testing.T) {
	buffer := &bytes.Buffer{}
	Log = captureLogger(buffer)

	//nolint:staticcheck
	Warn(nil, "no ctx")
	assert.Contains(t, buffer.String(), "no ctx")
}
