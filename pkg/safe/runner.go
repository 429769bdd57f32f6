package safe

import (
	"context"
	"runtime/debug"

	"go.uber.org/zap"
	"gopherwallet.com/pkg/logger"
)

// Go 启动协程，panic 记日志而不是打崩进程
func Go(fn func()) {
	GoCtx(context.Background(), func(context.Context) { fn() })
}

// GoCtx 携带 ctx 启动协程，panic 日志保留链路信息
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer Recover(ctx, "goroutine")
		fn(ctx)
	}()
}

// Recover 在 defer 中调用
func Recover(ctx context.Context, where string) {
	if r := recover(); r != nil {
		logger.Error(ctx, "🚨 PANIC RECOVERED",
			zap.String("where", where),
			zap.Any("panic", r),
			zap.String("stack", string(debug.Stack())),
		)
	}
}
