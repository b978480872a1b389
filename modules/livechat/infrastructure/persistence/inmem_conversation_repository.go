package persistence

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

// InmemConversationRepository keeps conversations as database models and
// maps them back out on every read, so callers get independent copies the
// same way the SQL store hands out fresh rows.
type InmemConversationRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Conversation
}

func NewInmemConversationRepository() *InmemConversationRepository {
	return &InmemConversationRepository{
		items: make(map[string]*models.Conversation),
	}
}

func (r *InmemConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.items[id.String()]
	if !ok || m.TenantID != tenantID.String() {
		return nil, conversation.ErrNotFound
	}
	clone := *m
	return toDomainConversation(&clone)
}

func (r *InmemConversationRepository) Create(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	if _, err := composables.UseTenantID(ctx); err != nil {
		return nil, err
	}
	m, err := toDBConversation(conv)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[conv.ID().String()] = m
	return conv, nil
}

func (r *InmemConversationRepository) Update(ctx context.Context, conv conversation.Conversation, expected conversation.Status) (conversation.Conversation, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[conv.ID().String()]
	if !ok || stored.TenantID != tenantID.String() {
		return nil, conversation.ErrNotFound
	}
	if stored.Status != string(expected) {
		return nil, conversation.ErrStaleStatus
	}
	m, err := toDBConversation(conv)
	if err != nil {
		return nil, err
	}
	r.items[conv.ID().String()] = m
	return conv, nil
}

func (r *InmemConversationRepository) ListByStatus(ctx context.Context, status conversation.Status) ([]conversation.Conversation, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []conversation.Conversation
	for _, m := range r.items {
		if m.TenantID != tenantID.String() || m.Status != string(status) {
			continue
		}
		clone := *m
		conv, err := toDomainConversation(&clone)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, nil
}

func (r *InmemConversationRepository) CountActiveByAgent(ctx context.Context, agentID uuid.UUID) (int, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return 0, err
	}
	active := map[string]bool{
		string(conversation.StatusActive):          true,
		string(conversation.StatusPendingTransfer): true,
		string(conversation.StatusEscalated):       true,
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, m := range r.items {
		if m.TenantID != tenantID.String() || !active[m.Status] {
			continue
		}
		if m.AssignedAgentID.Valid && m.AssignedAgentID.String == agentID.String() {
			count++
		}
	}
	return count, nil
}

// setQueuePosition is used by the in-memory queue repository to keep the
// mirrored position on the conversation row in step with the queue.
func (r *InmemConversationRepository) setQueuePosition(conversationID string, position *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[conversationID]
	if !ok {
		return
	}
	if position == nil {
		m.QueuePosition.Valid = false
		m.QueuePosition.Int32 = 0
		return
	}
	m.QueuePosition.Valid = true
	m.QueuePosition.Int32 = int32(*position)
}
