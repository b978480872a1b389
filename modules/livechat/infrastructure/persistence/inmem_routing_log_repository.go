package persistence

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/routinglog"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

type InmemRoutingLogRepository struct {
	mu    sync.RWMutex
	items []*models.RoutingLogEntry
}

func NewInmemRoutingLogRepository() *InmemRoutingLogRepository {
	return &InmemRoutingLogRepository{}
}

func (r *InmemRoutingLogRepository) Append(ctx context.Context, e routinglog.Entry) (routinglog.Entry, error) {
	if _, err := composables.UseTenantID(ctx); err != nil {
		return nil, err
	}
	m, err := toDBRoutingLogEntry(e)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, m)
	return e, nil
}

func (r *InmemRoutingLogRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]routinglog.Entry, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []routinglog.Entry
	for _, m := range r.items {
		if m.TenantID != tenantID.String() || m.ConversationID != conversationID.String() {
			continue
		}
		clone := *m
		entry, err := toDomainRoutingLogEntry(&clone)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}
