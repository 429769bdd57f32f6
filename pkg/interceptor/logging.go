package interceptor

import (
	"context"
	"fmt"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"gopherwallet.com/pkg/logger"
)

// zapLogger 适配 go-grpc-middleware 的 logging.Logger
// 每次调用读全局 logger.Log，Init 之后替换也能生效
func zapLogger() logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		f := make([]zap.Field, 0, len(fields)/2)
		iter := logging.Fields(fields).Iterator()
		for iter.Next() {
			k, v := iter.At()
			switch val := v.(type) {
			case string:
				f = append(f, zap.String(k, val))
			case int:
				f = append(f, zap.Int(k, val))
			case bool:
				f = append(f, zap.Bool(k, val))
			case fmt.Stringer:
				f = append(f, zap.Stringer(k, val))
			default:
				f = append(f, zap.Any(k, val))
			}
		}
		if rid := RequestIDFromCtx(ctx); rid != "" {
			f = append(f, zap.String("request_id", rid))
		}

		l := logger.Log.WithOptions(zap.AddCallerSkip(1))
		switch lvl {
		case logging.LevelDebug:
			l.Debug(msg, f...)
		case logging.LevelInfo:
			l.Info(msg, f...)
		case logging.LevelWarn:
			l.Warn(msg, f...)
		default:
			l.Error(msg, f...)
		}
	})
}

var loggingOpts = []logging.Option{
	logging.WithLogOnEvents(logging.FinishCall),
}

// AccessLogUnary 每个调用结束打一条访问日志
func AccessLogUnary() grpc.UnaryServerInterceptor {
	return logging.UnaryServerInterceptor(zapLogger(), loggingOpts...)
}

func AccessLogStream() grpc.StreamServerInterceptor {
	return logging.StreamServerInterceptor(zapLogger(), loggingOpts...)
}
