package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

type InmemAgentRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Agent
	tags  map[string][]models.AgentTag
}

func NewInmemAgentRepository() *InmemAgentRepository {
	return &InmemAgentRepository{
		items: make(map[string]*models.Agent),
		tags:  make(map[string][]models.AgentTag),
	}
}

func (r *InmemAgentRepository) GetByID(ctx context.Context, id uuid.UUID) (agent.Agent, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.items[id.String()]
	if !ok || m.TenantID != tenantID.String() {
		return nil, agent.ErrNotFound
	}
	clone := *m
	return toDomainAgent(&clone, r.tags[id.String()])
}

func (r *InmemAgentRepository) List(ctx context.Context) ([]agent.Agent, error) {
	return r.list(ctx, func(m *models.Agent) bool { return true })
}

func (r *InmemAgentRepository) ListAvailable(ctx context.Context) ([]agent.Agent, error) {
	return r.list(ctx, func(m *models.Agent) bool {
		return m.Status == string(agent.StatusOnline) && m.IsAcceptingChats
	})
}

func (r *InmemAgentRepository) Create(ctx context.Context, a agent.Agent) (agent.Agent, error) {
	if _, err := composables.UseTenantID(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, tags := toDBAgent(a)
	r.items[m.ID] = m
	r.tags[m.ID] = tags
	return a, nil
}

func (r *InmemAgentRepository) Update(ctx context.Context, a agent.Agent) (agent.Agent, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[a.ID().String()]
	if !ok || stored.TenantID != tenantID.String() {
		return nil, agent.ErrNotFound
	}
	m, tags := toDBAgent(a)
	// The load counter is owned by IncrementLoad and DecrementLoad.
	m.ActiveConversations = stored.ActiveConversations
	r.items[m.ID] = m
	r.tags[m.ID] = tags
	return a, nil
}

func (r *InmemAgentRepository) SetStatus(ctx context.Context, id uuid.UUID, status agent.Status) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id.String()]
	if !ok || m.TenantID != tenantID.String() {
		return agent.ErrNotFound
	}
	m.Status = string(status)
	m.LastSeenAt.Valid = true
	m.LastSeenAt.Time = time.Now()
	return nil
}

func (r *InmemAgentRepository) IncrementLoad(ctx context.Context, id uuid.UUID) error {
	return r.adjustLoad(ctx, id, 1)
}

func (r *InmemAgentRepository) DecrementLoad(ctx context.Context, id uuid.UUID) error {
	return r.adjustLoad(ctx, id, -1)
}

func (r *InmemAgentRepository) TouchAssigned(ctx context.Context, id uuid.UUID, at time.Time) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id.String()]
	if !ok || m.TenantID != tenantID.String() {
		return agent.ErrNotFound
	}
	m.LastAssignedAt.Valid = true
	m.LastAssignedAt.Time = at
	return nil
}

func (r *InmemAgentRepository) adjustLoad(ctx context.Context, id uuid.UUID, delta int) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id.String()]
	if !ok || m.TenantID != tenantID.String() {
		return agent.ErrNotFound
	}
	m.ActiveConversations += delta
	if m.ActiveConversations < 0 {
		m.ActiveConversations = 0
	}
	return nil
}

func (r *InmemAgentRepository) list(ctx context.Context, keep func(*models.Agent) bool) ([]agent.Agent, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*models.Agent
	for _, m := range r.items {
		if m.TenantID == tenantID.String() && keep(m) {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].ActiveConversations != matched[j].ActiveConversations {
			return matched[i].ActiveConversations < matched[j].ActiveConversations
		}
		return matched[i].ID < matched[j].ID
	})
	out := make([]agent.Agent, 0, len(matched))
	for _, m := range matched {
		clone := *m
		a, err := toDomainAgent(&clone, r.tags[m.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
