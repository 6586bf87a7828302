package repository

import (
	"context"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/models"
)

// memorySettlementRepository keeps the most recent records when no database
// is configured. Oldest entries are dropped past capacity.
type memorySettlementRepository struct {
	mu          sync.RWMutex
	capacity    int
	settlements []*models.Settlement // oldest first
	withdrawals []*models.FeeWithdrawal
}

// NewMemorySettlementRepository returns an in-memory SettlementRepository
// holding at most capacity records of each kind.
func NewMemorySettlementRepository(capacity int) SettlementRepository {
	if capacity <= 0 {
		capacity = 10_000
	}
	return &memorySettlementRepository{capacity: capacity}
}

func (r *memorySettlementRepository) Emit(_ context.Context, s *dispatcher.Settlement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settlements = append(r.settlements, SettlementToModel(s))
	if len(r.settlements) > r.capacity {
		r.settlements = r.settlements[len(r.settlements)-r.capacity:]
	}
	return nil
}

func (r *memorySettlementRepository) RecordWithdrawal(_ context.Context, w *dispatcher.FeeWithdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.withdrawals = append(r.withdrawals, &models.FeeWithdrawal{
		ID:        w.ID,
		Collector: addrString(w.Collector),
		Token:     addrString(w.Token),
		Amount:    bigString(w.Amount),
		CreatedAt: w.CreatedAt,
	})
	if len(r.withdrawals) > r.capacity {
		r.withdrawals = r.withdrawals[len(r.withdrawals)-r.capacity:]
	}
	return nil
}

func (r *memorySettlementRepository) GetByID(_ context.Context, id string) (*models.Settlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.settlements {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memorySettlementRepository) List(_ context.Context, filter SettlementFilter, page, limit int) ([]*models.Settlement, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caller := strings.ToLower(filter.Caller)
	var matched []*models.Settlement
	for i := len(r.settlements) - 1; i >= 0; i-- {
		s := r.settlements[i]
		if caller != "" && s.Caller != caller {
			continue
		}
		if filter.Route != "" && s.Route != filter.Route {
			continue
		}
		if filter.DestinationDomain != nil && s.DestinationDomain != *filter.DestinationDomain {
			continue
		}
		matched = append(matched, s)
	}
	return paginate(matched, page, limit), int64(len(matched)), nil
}

func (r *memorySettlementRepository) ListWithdrawals(_ context.Context, page, limit int) ([]*models.FeeWithdrawal, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	newest := make([]*models.FeeWithdrawal, 0, len(r.withdrawals))
	for i := len(r.withdrawals) - 1; i >= 0; i-- {
		newest = append(newest, r.withdrawals[i])
	}
	return paginate(newest, page, limit), int64(len(newest)), nil
}

func paginate[T any](items []T, page, limit int) []T {
	offset := (page - 1) * limit
	if offset < 0 || offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
