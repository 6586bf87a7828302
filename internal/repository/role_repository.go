package repository

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/models"
)

// RoleRepository persists role holders
type RoleRepository interface {
	dispatcher.RoleStore
}

type roleRepository struct {
	db *gorm.DB
}

// NewRoleRepository creates a new RoleRepository instance
func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

// LoadRoles reports ok only when all three roles are stored; a partial table
// is treated as empty and reseeded.
func (r *roleRepository) LoadRoles(ctx context.Context) (dispatcher.RoleState, bool, error) {
	var rows []*models.RoleAssignment
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return dispatcher.RoleState{}, false, err
	}

	var state dispatcher.RoleState
	found := 0
	for _, row := range rows {
		holder := common.HexToAddress(row.Holder)
		switch dispatcher.Role(row.Role) {
		case dispatcher.RoleOwner:
			state.Owner = holder
		case dispatcher.RoleFeeUpdater:
			state.FeeUpdater = holder
		case dispatcher.RoleCollector:
			state.Collector = holder
		default:
			continue
		}
		found++
	}
	return state, found == 3, nil
}

func (r *roleRepository) SaveRole(ctx context.Context, role dispatcher.Role, holder, updatedBy common.Address) error {
	row := &models.RoleAssignment{
		Role:      string(role),
		Holder:    addrString(holder),
		UpdatedBy: addrString(updatedBy),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "role"}},
		DoUpdates: clause.AssignmentColumns([]string{"holder", "updated_by", "updated_at"}),
	}).Create(row).Error
}
