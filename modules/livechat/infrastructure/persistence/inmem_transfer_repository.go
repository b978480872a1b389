package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/transfer"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

type InmemTransferRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Transfer
}

func NewInmemTransferRepository() *InmemTransferRepository {
	return &InmemTransferRepository{
		items: make(map[string]*models.Transfer),
	}
}

func (r *InmemTransferRepository) Create(ctx context.Context, t transfer.Transfer) (transfer.Transfer, error) {
	if _, err := composables.UseTenantID(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[t.ID().String()] = toDBTransfer(t)
	return t, nil
}

func (r *InmemTransferRepository) GetByID(ctx context.Context, id uuid.UUID) (transfer.Transfer, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.items[id.String()]
	if !ok || m.TenantID != tenantID.String() {
		return nil, transfer.ErrNotFound
	}
	clone := *m
	return toDomainTransfer(&clone)
}

func (r *InmemTransferRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]transfer.Transfer, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*models.Transfer
	for _, m := range r.items {
		if m.TenantID == tenantID.String() && m.ConversationID == conversationID.String() {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].InitiatedAt.Before(matched[j].InitiatedAt)
	})
	out := make([]transfer.Transfer, 0, len(matched))
	for _, m := range matched {
		clone := *m
		t, err := toDomainTransfer(&clone)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
