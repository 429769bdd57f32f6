package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Context 中的 key，网关/中间件写入，日志读取
const (
	TraceIdKey   = "trace_id"
	RequestIdKey = "request_id"
)

// 全局 Logger 实例，未初始化时为 Nop，测试里不会 panic
var Log = zap.NewNop()

// Init 初始化日志组件
// serviceName: 服务名 (例如 "wallet-service")
// level: debug, info, warn, error
func Init(serviceName string, level string) {
	InitWithFile(serviceName, level, "")
}

// InitWithFile 同 Init，logFile 为空时写入 logs/{serviceName}.log
func InitWithFile(serviceName string, level string, logFile string) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	writeSyncers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}

	if logFile == "" {
		logFile = filepath.Join("logs", serviceName+".log")
	}
	// 文件打不开只输出控制台，不中断启动
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err == nil {
		if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			writeSyncers = append(writeSyncers, zapcore.AddSync(file))
		}
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(writeSyncers...),
		zapLevel,
	)

	// AddCallerSkip(1)：跳过本包的封装函数，行号指向调用方
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", serviceName))
}

// Info 打印 Info 级别日志
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Info(msg, withContext(ctx, fields)...)
}

// Error 打印 Error 级别日志
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Error(msg, withContext(ctx, fields)...)
}

// Warn 打印 Warn 级别日志
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Warn(msg, withContext(ctx, fields)...)
}

// Debug 打印 Debug 级别日志
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Debug(msg, withContext(ctx, fields)...)
}

// Fatal 打印后 os.Exit
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Fatal(msg, withContext(ctx, fields)...)
}

// withContext 从 ctx 中取 trace_id / request_id 追加到 fields
// trace_id 优先用显式写入的值，其次是 otel span
func withContext(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	if traceID, ok := ctx.Value(TraceIdKey).(string); ok && traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	} else if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	if rid, ok := ctx.Value(RequestIdKey).(string); ok && rid != "" {
		fields = append(fields, zap.String("request_id", rid))
	}
	return fields
}

// Sync 刷新缓冲区 (main 中 defer 调用)
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
