package repo

import (
	"context"

	"gopherwallet.com/internal/wallet/domain"
)

func (r *Repo) CreateAuditLog(ctx context.Context, log *domain.AuditLog) error {
	return dbErr(r.getDb(ctx).Create(log).Error, "create audit log")
}
