package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/chatsettings"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

type InmemChatSettingsRepository struct {
	mu    sync.Mutex
	items map[string]*models.ChatSettings
}

func NewInmemChatSettingsRepository() *InmemChatSettingsRepository {
	return &InmemChatSettingsRepository{
		items: make(map[string]*models.ChatSettings),
	}
}

func (r *InmemChatSettingsRepository) Get(ctx context.Context) (chatsettings.Settings, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[tenantID.String()]
	if !ok {
		return chatsettings.New(tenantID), nil
	}
	clone := *m
	return toDomainChatSettings(&clone)
}

func (r *InmemChatSettingsRepository) Save(ctx context.Context, s chatsettings.Settings) (chatsettings.Settings, error) {
	if _, err := composables.UseTenantID(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m := toDBChatSettings(s)
	r.items[m.TenantID] = m
	return s, nil
}

func (r *InmemChatSettingsRepository) RecordHandleTime(ctx context.Context, duration time.Duration) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	seconds := int(duration / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[tenantID.String()]
	if !ok {
		m = toDBChatSettings(chatsettings.New(tenantID))
		m.AvgHandleTimeSeconds = 0
		m.HandledCount = 0
		r.items[tenantID.String()] = m
	}
	m.AvgHandleTimeSeconds = (m.AvgHandleTimeSeconds*m.HandledCount + seconds) / (m.HandledCount + 1)
	m.HandledCount++
	return nil
}
