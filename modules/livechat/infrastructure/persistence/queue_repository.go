package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/queueentry"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

const queueFindQuery = `
	SELECT id, tenant_id, conversation_id, position, priority, preferred_agent_id,
	       skills_required, entry_reason, queued_at, estimated_wait_seconds
	FROM chat_queue`

type QueueRepository struct{}

func NewQueueRepository() queueentry.Repository {
	return &QueueRepository{}
}

// Lock serializes queue mutations for one tenant by taking a row lock on
// the tenant's control row. Concurrent enqueues and dequeues for the same
// tenant block here, so position shifts never interleave.
func (r *QueueRepository) Lock(ctx context.Context) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO chat_queue_control (tenant_id) VALUES ($1)
		ON CONFLICT (tenant_id) DO NOTHING
	`, tenantID.String()); err != nil {
		return errors.Wrap(err, "failed to ensure queue control row")
	}
	var locked string
	if err := tx.QueryRow(ctx, `
		SELECT tenant_id FROM chat_queue_control WHERE tenant_id = $1 FOR UPDATE
	`, tenantID.String()).Scan(&locked); err != nil {
		return errors.Wrap(err, "failed to lock queue")
	}
	return nil
}

func (r *QueueRepository) GetByConversationID(ctx context.Context, conversationID uuid.UUID) (queueentry.QueueEntry, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := r.queryEntries(
		ctx,
		queueFindQuery+" WHERE tenant_id = $1 AND conversation_id = $2",
		tenantID.String(), conversationID.String(),
	)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, queueentry.ErrNotFound
	}
	return entries[0], nil
}

func (r *QueueRepository) List(ctx context.Context) ([]queueentry.QueueEntry, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryEntries(
		ctx,
		queueFindQuery+" WHERE tenant_id = $1 ORDER BY position",
		tenantID.String(),
	)
}

func (r *QueueRepository) Count(ctx context.Context) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return 0, err
	}
	var count int
	if err := tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM chat_queue WHERE tenant_id = $1",
		tenantID.String(),
	).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count queue entries")
	}
	return count, nil
}

func (r *QueueRepository) InsertAt(ctx context.Context, entry queueentry.QueueEntry, position int) (queueentry.QueueEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	// Shift entries at or after the insertion point one place down. The
	// negation trick avoids tripping the unique (tenant_id, position)
	// constraint mid-update.
	if _, err := tx.Exec(ctx, `
		UPDATE chat_queue SET position = -(position + 1)
		WHERE tenant_id = $1 AND position >= $2
	`, tenantID.String(), position); err != nil {
		return nil, errors.Wrap(err, "failed to shift queue positions")
	}
	if _, err := tx.Exec(ctx, `
		UPDATE chat_queue SET position = -position
		WHERE tenant_id = $1 AND position < 0
	`, tenantID.String()); err != nil {
		return nil, errors.Wrap(err, "failed to restore shifted positions")
	}

	entry = entry.WithPosition(position)
	m, err := toDBQueueEntry(entry)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO chat_queue (
			id, tenant_id, conversation_id, position, priority, preferred_agent_id,
			skills_required, entry_reason, queued_at, estimated_wait_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		m.ID, m.TenantID, m.ConversationID, m.Position, m.Priority, m.PreferredAgentID,
		m.SkillsRequired, m.EntryReason, m.QueuedAt, m.EstimatedWaitSeconds,
	); err != nil {
		return nil, errors.Wrap(err, "failed to insert queue entry")
	}

	if err := r.syncConversationPositions(ctx, tenantID.String()); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *QueueRepository) Remove(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return false, err
	}
	var removedPos int
	err = tx.QueryRow(ctx, `
		DELETE FROM chat_queue
		WHERE tenant_id = $1 AND conversation_id = $2
		RETURNING position
	`, tenantID.String(), conversationID.String()).Scan(&removedPos)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to remove queue entry")
	}
	if _, err := tx.Exec(ctx, `
		UPDATE chat_queue SET position = position - 1
		WHERE tenant_id = $1 AND position > $2
	`, tenantID.String(), removedPos); err != nil {
		return false, errors.Wrap(err, "failed to close queue gap")
	}
	if _, err := tx.Exec(ctx, `
		UPDATE live_chat_conversations SET queue_position = NULL
		WHERE tenant_id = $1 AND id = $2
	`, tenantID.String(), conversationID.String()); err != nil {
		return false, errors.Wrap(err, "failed to clear conversation position")
	}
	if err := r.syncConversationPositions(ctx, tenantID.String()); err != nil {
		return false, err
	}
	return true, nil
}

// syncConversationPositions mirrors queue positions onto queued
// conversations so reads that only touch the conversation row see the
// same number a queue listing would.
func (r *QueueRepository) syncConversationPositions(ctx context.Context, tenantID string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE live_chat_conversations c SET queue_position = q.position
		FROM chat_queue q
		WHERE q.tenant_id = $1 AND c.tenant_id = q.tenant_id AND c.id = q.conversation_id
	`, tenantID); err != nil {
		return errors.Wrap(err, "failed to sync conversation positions")
	}
	return nil
}

func (r *QueueRepository) queryEntries(ctx context.Context, query string, args ...interface{}) ([]queueentry.QueueEntry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var entries []queueentry.QueueEntry
	for rows.Next() {
		var m models.QueueEntry
		if err := rows.Scan(
			&m.ID, &m.TenantID, &m.ConversationID, &m.Position, &m.Priority,
			&m.PreferredAgentID, &m.SkillsRequired, &m.EntryReason, &m.QueuedAt,
			&m.EstimatedWaitSeconds,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan queue entry row")
		}
		entry, err := toDomainQueueEntry(&m)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map queue entry")
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return entries, nil
}
