package repository

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/models"
)

// FastTokenRepository persists the fast-transfer allow-list
type FastTokenRepository interface {
	dispatcher.TokenStore
}

type fastTokenRepository struct {
	db *gorm.DB
}

// NewFastTokenRepository creates a new FastTokenRepository instance
func NewFastTokenRepository(db *gorm.DB) FastTokenRepository {
	return &fastTokenRepository{db: db}
}

func (r *fastTokenRepository) LoadFastTransferTokens(ctx context.Context) (map[common.Address]bool, error) {
	var rows []*models.FastTransferToken
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[common.Address]bool, len(rows))
	for _, row := range rows {
		out[common.HexToAddress(row.Token)] = row.Allowed
	}
	return out, nil
}

func (r *fastTokenRepository) SaveFastTransferToken(ctx context.Context, token common.Address, allowed bool, updatedBy common.Address) error {
	row := &models.FastTransferToken{
		Token:     addrString(token),
		Allowed:   allowed,
		UpdatedBy: addrString(updatedBy),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"allowed", "updated_by", "updated_at"}),
	}).Create(row).Error
}
