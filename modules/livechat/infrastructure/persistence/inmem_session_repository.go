package persistence

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agentsession"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

type InmemSessionRepository struct {
	mu    sync.RWMutex
	items map[string]*models.AgentSession
}

func NewInmemSessionRepository() *InmemSessionRepository {
	return &InmemSessionRepository{
		items: make(map[string]*models.AgentSession),
	}
}

func (r *InmemSessionRepository) Save(ctx context.Context, s agentsession.Session) (agentsession.Session, error) {
	if _, err := composables.UseTenantID(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m := toDBAgentSession(s)
	r.items[m.TenantID+":"+m.AgentID] = m
	return s, nil
}

func (r *InmemSessionRepository) GetByAgentID(ctx context.Context, agentID uuid.UUID) (agentsession.Session, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.items[tenantID.String()+":"+agentID.String()]
	if !ok {
		return nil, agentsession.ErrNotFound
	}
	clone := *m
	return toDomainAgentSession(&clone)
}

func (r *InmemSessionRepository) Delete(ctx context.Context, agentID uuid.UUID) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, tenantID.String()+":"+agentID.String())
	return nil
}

func (r *InmemSessionRepository) List(ctx context.Context) ([]agentsession.Session, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []agentsession.Session
	for _, m := range r.items {
		if m.TenantID != tenantID.String() {
			continue
		}
		clone := *m
		s, err := toDomainAgentSession(&clone)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
