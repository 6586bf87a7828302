package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/models"
)

// SettlementFilter narrows List. Zero fields are ignored.
type SettlementFilter struct {
	Caller            string
	Route             string
	DestinationDomain *uint32
}

// SettlementRepository stores settlements and fee withdrawals. It is also the
// dispatcher's persistence sink.
type SettlementRepository interface {
	dispatcher.SettlementSink
	dispatcher.WithdrawalSink

	GetByID(ctx context.Context, id string) (*models.Settlement, error)
	List(ctx context.Context, filter SettlementFilter, page, limit int) ([]*models.Settlement, int64, error)
	ListWithdrawals(ctx context.Context, page, limit int) ([]*models.FeeWithdrawal, int64, error)
}

type settlementRepository struct {
	db *gorm.DB
}

// NewSettlementRepository creates a new SettlementRepository instance
func NewSettlementRepository(db *gorm.DB) SettlementRepository {
	return &settlementRepository{db: db}
}

func (r *settlementRepository) Emit(ctx context.Context, s *dispatcher.Settlement) error {
	return r.db.WithContext(ctx).Create(SettlementToModel(s)).Error
}

func (r *settlementRepository) RecordWithdrawal(ctx context.Context, w *dispatcher.FeeWithdrawal) error {
	return r.db.WithContext(ctx).Create(&models.FeeWithdrawal{
		ID:        w.ID,
		Collector: addrString(w.Collector),
		Token:     addrString(w.Token),
		Amount:    bigString(w.Amount),
		CreatedAt: w.CreatedAt,
	}).Error
}

func (r *settlementRepository) GetByID(ctx context.Context, id string) (*models.Settlement, error) {
	var s models.Settlement
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *settlementRepository) List(ctx context.Context, filter SettlementFilter, page, limit int) ([]*models.Settlement, int64, error) {
	var settlements []*models.Settlement
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Settlement{})
	if filter.Caller != "" {
		query = query.Where("caller = ?", strings.ToLower(filter.Caller))
	}
	if filter.Route != "" {
		query = query.Where("route = ?", filter.Route)
	}
	if filter.DestinationDomain != nil {
		query = query.Where("destination_domain = ?", *filter.DestinationDomain)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&settlements).Error
	if err != nil {
		return nil, 0, err
	}
	return settlements, total, nil
}

func (r *settlementRepository) ListWithdrawals(ctx context.Context, page, limit int) ([]*models.FeeWithdrawal, int64, error) {
	var withdrawals []*models.FeeWithdrawal
	var total int64

	query := r.db.WithContext(ctx).Model(&models.FeeWithdrawal{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	err := query.Offset(offset).Limit(limit).Order("created_at DESC").Find(&withdrawals).Error
	if err != nil {
		return nil, 0, err
	}
	return withdrawals, total, nil
}
