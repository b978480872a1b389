package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/queueentry"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

// InmemQueueRepository mirrors queue positions onto the conversation store
// it is constructed with, matching what the SQL repository does with a
// cross-table update.
type InmemQueueRepository struct {
	mu            sync.Mutex
	items         map[string]*models.QueueEntry
	conversations *InmemConversationRepository
}

func NewInmemQueueRepository(conversations *InmemConversationRepository) *InmemQueueRepository {
	return &InmemQueueRepository{
		items:         make(map[string]*models.QueueEntry),
		conversations: conversations,
	}
}

// Lock is a no-op here; every mutation below is serialized by the
// repository's own mutex.
func (r *InmemQueueRepository) Lock(ctx context.Context) error {
	_, err := composables.UseTenantID(ctx)
	return err
}

func (r *InmemQueueRepository) GetByConversationID(ctx context.Context, conversationID uuid.UUID) (queueentry.QueueEntry, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[conversationID.String()]
	if !ok || m.TenantID != tenantID.String() {
		return nil, queueentry.ErrNotFound
	}
	clone := *m
	return toDomainQueueEntry(&clone)
}

func (r *InmemQueueRepository) List(ctx context.Context) ([]queueentry.QueueEntry, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := r.tenantEntries(tenantID.String())
	out := make([]queueentry.QueueEntry, 0, len(matched))
	for _, m := range matched {
		clone := *m
		entry, err := toDomainQueueEntry(&clone)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *InmemQueueRepository) Count(ctx context.Context) (int, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tenantEntries(tenantID.String())), nil
}

func (r *InmemQueueRepository) InsertAt(ctx context.Context, entry queueentry.QueueEntry, position int) (queueentry.QueueEntry, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.tenantEntries(tenantID.String()) {
		if m.Position >= position {
			m.Position++
			r.conversations.setQueuePosition(m.ConversationID, intPtr(m.Position))
		}
	}
	entry = entry.WithPosition(position)
	m, err := toDBQueueEntry(entry)
	if err != nil {
		return nil, err
	}
	r.items[m.ConversationID] = m
	r.conversations.setQueuePosition(m.ConversationID, intPtr(position))
	return entry, nil
}

func (r *InmemQueueRepository) Remove(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed, ok := r.items[conversationID.String()]
	if !ok || removed.TenantID != tenantID.String() {
		return false, nil
	}
	delete(r.items, conversationID.String())
	r.conversations.setQueuePosition(conversationID.String(), nil)
	for _, m := range r.tenantEntries(tenantID.String()) {
		if m.Position > removed.Position {
			m.Position--
			r.conversations.setQueuePosition(m.ConversationID, intPtr(m.Position))
		}
	}
	return true, nil
}

// tenantEntries returns the tenant's entries ordered by position. Callers
// hold r.mu.
func (r *InmemQueueRepository) tenantEntries(tenantID string) []*models.QueueEntry {
	var matched []*models.QueueEntry
	for _, m := range r.items {
		if m.TenantID == tenantID {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Position < matched[j].Position
	})
	return matched
}

func intPtr(v int) *int { return &v }
