package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/chatsettings"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

type ChatSettingsRepository struct{}

func NewChatSettingsRepository() chatsettings.Repository {
	return &ChatSettingsRepository{}
}

func (r *ChatSettingsRepository) Get(ctx context.Context) (chatsettings.Settings, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	var m models.ChatSettings
	err = tx.QueryRow(ctx, `
		SELECT tenant_id, is_enabled, max_queue_size, assignment_method,
		       max_chats_per_agent, avg_handle_time_seconds, handled_count,
		       business_hours_enabled, timezone
		FROM live_chat_settings
		WHERE tenant_id = $1
	`, tenantID.String()).Scan(
		&m.TenantID, &m.IsEnabled, &m.MaxQueueSize, &m.AssignmentMethod,
		&m.MaxChatsPerAgent, &m.AvgHandleTimeSeconds, &m.HandledCount,
		&m.BusinessHoursEnabled, &m.Timezone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chatsettings.New(tenantID), nil
		}
		return nil, errors.Wrap(err, "failed to query chat settings")
	}
	return toDomainChatSettings(&m)
}

func (r *ChatSettingsRepository) Save(ctx context.Context, s chatsettings.Settings) (chatsettings.Settings, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m := toDBChatSettings(s)
	if _, err := tx.Exec(ctx, `
		INSERT INTO live_chat_settings (
			tenant_id, is_enabled, max_queue_size, assignment_method,
			max_chats_per_agent, avg_handle_time_seconds, handled_count,
			business_hours_enabled, timezone
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id) DO UPDATE SET
			is_enabled = EXCLUDED.is_enabled,
			max_queue_size = EXCLUDED.max_queue_size,
			assignment_method = EXCLUDED.assignment_method,
			max_chats_per_agent = EXCLUDED.max_chats_per_agent,
			avg_handle_time_seconds = EXCLUDED.avg_handle_time_seconds,
			handled_count = EXCLUDED.handled_count,
			business_hours_enabled = EXCLUDED.business_hours_enabled,
			timezone = EXCLUDED.timezone
	`,
		m.TenantID, m.IsEnabled, m.MaxQueueSize, m.AssignmentMethod,
		m.MaxChatsPerAgent, m.AvgHandleTimeSeconds, m.HandledCount,
		m.BusinessHoursEnabled, m.Timezone,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert chat settings")
	}
	return s, nil
}

// RecordHandleTime folds one closed conversation into the stored rolling
// average in a single statement so concurrent closes never lose updates.
func (r *ChatSettingsRepository) RecordHandleTime(ctx context.Context, duration time.Duration) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	seconds := int(duration / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO live_chat_settings (tenant_id, avg_handle_time_seconds, handled_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET
			avg_handle_time_seconds = (
				live_chat_settings.avg_handle_time_seconds * live_chat_settings.handled_count + EXCLUDED.avg_handle_time_seconds
			) / (live_chat_settings.handled_count + 1),
			handled_count = live_chat_settings.handled_count + 1
	`, tenantID.String(), seconds); err != nil {
		return errors.Wrap(err, "failed to record handle time")
	}
	return nil
}
