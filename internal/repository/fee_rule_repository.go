package repository

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/models"
)

// FeeRuleRepository persists the fee schedule
type FeeRuleRepository interface {
	dispatcher.RuleStore
	List(ctx context.Context) ([]*models.FeeRule, error)
}

type feeRuleRepository struct {
	db *gorm.DB
}

// NewFeeRuleRepository creates a new FeeRuleRepository instance
func NewFeeRuleRepository(db *gorm.DB) FeeRuleRepository {
	return &feeRuleRepository{db: db}
}

func (r *feeRuleRepository) List(ctx context.Context) ([]*models.FeeRule, error) {
	var rules []*models.FeeRule
	err := r.db.WithContext(ctx).Order("destination_domain ASC").Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *feeRuleRepository) LoadFeeRules(ctx context.Context) (map[uint32]dispatcher.FeeRule, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[uint32]dispatcher.FeeRule, len(rows))
	for _, row := range rows {
		flat, err := parseBig(row.FlatFee)
		if err != nil {
			return nil, fmt.Errorf("fee rule for domain %d: %w", row.DestinationDomain, err)
		}
		out[row.DestinationDomain] = dispatcher.FeeRule{
			PercFeeBips: row.PercFeeBips,
			FlatFee:     flat,
			Initialized: true,
		}
	}
	return out, nil
}

func (r *feeRuleRepository) SaveFeeRule(ctx context.Context, destinationDomain uint32, rule dispatcher.FeeRule, updatedBy common.Address) error {
	row := &models.FeeRule{
		DestinationDomain: destinationDomain,
		PercFeeBips:       rule.PercFeeBips,
		FlatFee:           bigString(orZero(rule.FlatFee)),
		UpdatedBy:         addrString(updatedBy),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "destination_domain"}},
		DoUpdates: clause.AssignmentColumns([]string{"perc_fee_bips", "flat_fee", "updated_by", "updated_at"}),
	}).Create(row).Error
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
