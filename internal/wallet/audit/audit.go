// Package audit 审计日志：落库、NATS 广播、扇出
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"gopherwallet.com/internal/wallet/domain"
	"gopherwallet.com/pkg/logger"
	"gopherwallet.com/pkg/xerr"
)

// 元数据里出现这些 key 一律丢弃
var secretKeys = map[string]struct{}{
	"private_key":           {},
	"privatekey":            {},
	"encrypted_private_key": {},
	"password":              {},
	"old_password":          {},
	"new_password":          {},
	"mnemonic":              {},
}

func sanitize(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return meta
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if _, bad := secretKeys[strings.ToLower(k)]; bad {
			continue
		}
		out[k] = v
	}
	return out
}

func normalize(e domain.AuditEntry) domain.AuditEntry {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.Metadata = sanitize(e.Metadata)
	return e
}

// DBSink 写 audit_logs 表
type DBSink struct {
	store domain.AuditStore
}

func NewDBSink(store domain.AuditStore) *DBSink { return &DBSink{store: store} }

func (s *DBSink) Record(ctx context.Context, e domain.AuditEntry) error {
	e = normalize(e)
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return xerr.Wrap(err, xerr.Internal, "encode audit metadata")
	}
	return s.store.CreateAuditLog(ctx, &domain.AuditLog{
		UserID:    e.UserID,
		Action:    e.Action,
		Metadata:  string(meta),
		CreatedAt: e.CreatedAt,
	})
}

// Publisher *nats.Conn 满足该接口
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NatsSink 发布到 <prefix>.<action>，例如 wallet.audit.transfer.confirmed
type NatsSink struct {
	pub    Publisher
	prefix string
}

func NewNatsSink(pub Publisher, prefix string) *NatsSink {
	if prefix == "" {
		prefix = "wallet.audit"
	}
	return &NatsSink{pub: pub, prefix: prefix}
}

func (s *NatsSink) Subject(action string) string {
	return s.prefix + "." + action
}

func (s *NatsSink) Record(_ context.Context, e domain.AuditEntry) error {
	e = normalize(e)
	payload, err := json.Marshal(e)
	if err != nil {
		return xerr.Wrap(err, xerr.Internal, "encode audit event")
	}
	return s.pub.Publish(s.Subject(e.Action), payload)
}

// ConnectNats 断线无限重连，审计广播不阻塞启动
func ConnectNats(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(context.Background(), "⚠️ NATS 连接断开", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(context.Background(), "🔁 NATS 重连成功", zap.String("url", nc.ConnectedUrl()))
		}),
	)
}

// Multi 扇出到多个 sink，单个失败只记日志，不影响调用方
type Multi []domain.AuditSink

func (m Multi) Record(ctx context.Context, e domain.AuditEntry) error {
	e = normalize(e)
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, e); err != nil {
			logger.Warn(ctx, "⚠️ 审计写入失败", zap.String("action", e.Action), zap.Error(err))
		}
	}
	return nil
}

// Discard 未配置审计时使用
type Discard struct{}

func (Discard) Record(context.Context, domain.AuditEntry) error { return nil }
