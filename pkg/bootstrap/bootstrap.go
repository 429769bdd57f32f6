package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/stats"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/register"
	"gopherwallet.com/pkg/register/etcd"
)

// EtcdCfg 服务注册配置，Endpoints 为空则跳过注册
type EtcdCfg struct {
	Endpoints     []string `mapstructure:"endpoints"`
	ServicePrefix string   `mapstructure:"service_prefix"`
	TTL           int64    `mapstructure:"ttl"`
}

// Options 进程级公共装配：HTTP + gRPC 监听、pprof、/metrics、etcd 注册、优雅退出
type Options struct {
	ServiceName string
	GRPCAddr    string
	HTTPAddr    string

	HTTPHandler  http.Handler
	RegisterGRPC func(*grpc.Server)

	// gRPC 拦截器，prometheus 指标拦截器固定在最外层
	UnaryInterceptors  []grpc.UnaryServerInterceptor
	StreamInterceptors []grpc.StreamServerInterceptor
	StatsHandler       stats.Handler

	Etcd     *EtcdCfg
	MetaData map[string]string

	MetricsAddr string
	PprofAddr   string

	ShutdownTimeout time.Duration
	// 按注册顺序在 server 停止后执行，例如 flush trace、关闭 nats
	OnShutdown []func(context.Context) error
}

// Run 阻塞直到 ctx 取消或任一 server 出错
func Run(ctx context.Context, opt Options) error {
	if opt.ServiceName == "" || opt.GRPCAddr == "" || opt.HTTPAddr == "" || opt.HTTPHandler == nil {
		return fmt.Errorf("bootstrap: missing required options")
	}
	if opt.ShutdownTimeout <= 0 {
		opt.ShutdownTimeout = 10 * time.Second
	}

	grpcServer := NewGRPCServer(opt)
	httpServer := &http.Server{
		Addr:              opt.HTTPAddr,
		Handler:           opt.HTTPHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if opt.PprofAddr != "" {
		startPprof(ctx, opt.PprofAddr)
	}
	if opt.MetricsAddr != "" {
		startMetrics(ctx, opt.MetricsAddr)
	}

	errCh := make(chan error, 2)
	grpcLis, err := net.Listen("tcp", opt.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", opt.GRPCAddr, err)
	}
	go func() {
		logger.Info(ctx, "🚀 gRPC listening", zap.String("addr", opt.GRPCAddr))
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Info(ctx, "🚀 HTTP listening", zap.String("addr", opt.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	unregister, err := registerEtcd(ctx, opt)
	if err != nil {
		grpcServer.Stop()
		_ = httpServer.Close()
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	case runErr = <-errCh:
		logger.Error(ctx, "server error", zap.Error(runErr))
	}

	// 先摘流量再停服务
	if unregister != nil {
		unregister()
	}

	sdCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opt.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(sdCtx); err != nil {
		logger.Warn(sdCtx, "http shutdown", zap.Error(err))
	}
	stopGRPC(sdCtx, grpcServer)
	for _, fn := range opt.OnShutdown {
		if err := fn(sdCtx); err != nil {
			logger.Warn(sdCtx, "shutdown hook", zap.Error(err))
		}
	}
	logger.Info(sdCtx, "service stopped", zap.String("service", opt.ServiceName))
	return runErr
}

// stopGRPC GracefulStop 会等 Watch 这类长连接，超时后强停
func stopGRPC(ctx context.Context, gs *grpc.Server) {
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		gs.Stop()
	}
}

func registerEtcd(ctx context.Context, opt Options) (func(), error) {
	if opt.Etcd == nil || len(opt.Etcd.Endpoints) == 0 {
		return nil, nil
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   opt.Etcd.Endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	prefix := opt.Etcd.ServicePrefix
	if prefix == "" {
		prefix = "/gopherwallet/services"
	}
	var reg register.Register = etcd.NewEtcdRegister(cli, prefix, opt.Etcd.TTL)

	meta := map[string]string{"http_addr": opt.HTTPAddr}
	for k, v := range opt.MetaData {
		meta[k] = v
	}
	ins := &register.Instance{
		ID:       fmt.Sprintf("%s-%s", opt.ServiceName, opt.GRPCAddr),
		Name:     opt.ServiceName,
		Addr:     opt.GRPCAddr,
		MetaData: meta,
	}
	regCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := reg.Register(regCtx, ins); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("register etcd: %w", err)
	}
	return func() {
		c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := reg.UnRegister(c, ins); err != nil {
			logger.Warn(c, "etcd unregister", zap.Error(err))
		}
		_ = cli.Close()
	}, nil
}

var grpcMetrics = func() *grpcprom.ServerMetrics {
	m := grpcprom.NewServerMetrics(grpcprom.WithServerHandlingTimeHistogram())
	if err := prometheus.Register(m); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*grpcprom.ServerMetrics); ok {
				return existing
			}
		}
		panic(err)
	}
	return m
}()

// NewGRPCServer keepalive + prometheus 指标 + 调用方拦截器
func NewGRPCServer(opt Options) *grpc.Server {
	kaep := keepalive.EnforcementPolicy{
		MinTime:             10 * time.Second,
		PermitWithoutStream: true,
	}
	kasp := keepalive.ServerParameters{
		Time:    30 * time.Second,
		Timeout: 10 * time.Second,
	}

	unaryInts := append([]grpc.UnaryServerInterceptor{grpcMetrics.UnaryServerInterceptor()}, opt.UnaryInterceptors...)
	streamInts := append([]grpc.StreamServerInterceptor{grpcMetrics.StreamServerInterceptor()}, opt.StreamInterceptors...)

	opts := []grpc.ServerOption{
		grpc.KeepaliveEnforcementPolicy(kaep),
		grpc.KeepaliveParams(kasp),
		grpc.ChainUnaryInterceptor(unaryInts...),
		grpc.ChainStreamInterceptor(streamInts...),
	}
	if opt.StatsHandler != nil {
		opts = append(opts, grpc.StatsHandler(opt.StatsHandler))
	}

	gs := grpc.NewServer(opts...)
	if opt.RegisterGRPC != nil {
		opt.RegisterGRPC(gs)
	}
	grpcMetrics.InitializeMetrics(gs)
	return gs
}

func serveBackground(ctx context.Context, name string, srv *http.Server) {
	go func() {
		logger.Info(ctx, name+" listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn(ctx, name+" listen error", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}

func startPprof(ctx context.Context, addr string) {
	runtime.SetMutexProfileFraction(10)
	runtime.SetBlockProfileRate(10000)

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	serveBackground(ctx, "pprof", &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	})
}

func startMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	serveBackground(ctx, "metrics", &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	})
}
