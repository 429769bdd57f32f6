package repo

import (
	"context"

	"gopherwallet.com/internal/wallet/domain"
	"gorm.io/gorm/clause"
)

func (r *Repo) GetToken(ctx context.Context, symbol string, network domain.Network) (*domain.Token, error) {
	var t domain.Token
	err := r.getDb(ctx).
		Where("symbol = ? AND network = ?", symbol, network).
		First(&t).Error
	if err != nil {
		return nil, findErr(err, "token")
	}
	return &t, nil
}

func (r *Repo) GetTokenByID(ctx context.Context, id uint64) (*domain.Token, error) {
	var t domain.Token
	if err := r.getDb(ctx).First(&t, id).Error; err != nil {
		return nil, findErr(err, "token")
	}
	return &t, nil
}

// UpsertToken 按 (symbol, network) 幂等写入，回填 ID
func (r *Repo) UpsertToken(ctx context.Context, t *domain.Token) error {
	err := r.getDb(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "network"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "contract_address", "decimals", "is_active", "logo_url"}),
	}).Create(t).Error
	if err != nil {
		return dbErr(err, "upsert token")
	}
	stored, err := r.GetToken(ctx, t.Symbol, t.Network)
	if err != nil {
		return err
	}
	*t = *stored
	return nil
}
