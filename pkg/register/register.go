package register

import "context"

// Instance 注册中心里的一条服务实例
type Instance struct {
	ID       string            `json:"id"`   // 默认 服务名-ip:port
	Name     string            `json:"name"` // 服务名称 eg:"wallet-service"
	Addr     string            `json:"addr"` // gRPC ip:port
	MetaData map[string]string `json:"metadata,omitempty"`
}

type Register interface {
	Register(ctx context.Context, ins *Instance) error
	UnRegister(ctx context.Context, ins *Instance) error
}
