package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/routinglog"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

const routingLogFindQuery = `
	SELECT id, tenant_id, conversation_id, method, selected_agent_id,
	       confidence, candidates, fallback_reason, created_at
	FROM routing_log`

type RoutingLogRepository struct{}

func NewRoutingLogRepository() routinglog.Repository {
	return &RoutingLogRepository{}
}

func (r *RoutingLogRepository) Append(ctx context.Context, e routinglog.Entry) (routinglog.Entry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m, err := toDBRoutingLogEntry(e)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO routing_log (
			id, tenant_id, conversation_id, method, selected_agent_id,
			confidence, candidates, fallback_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		m.ID, m.TenantID, m.ConversationID, m.Method, m.SelectedAgentID,
		m.Confidence, m.Candidates, m.FallbackReason, m.CreatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "failed to append routing log entry")
	}
	return e, nil
}

func (r *RoutingLogRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]routinglog.Entry, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx,
		routingLogFindQuery+" WHERE tenant_id = $1 AND conversation_id = $2 ORDER BY created_at",
		tenantID.String(), conversationID.String(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var entries []routinglog.Entry
	for rows.Next() {
		var m models.RoutingLogEntry
		if err := rows.Scan(
			&m.ID, &m.TenantID, &m.ConversationID, &m.Method, &m.SelectedAgentID,
			&m.Confidence, &m.Candidates, &m.FallbackReason, &m.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan routing log row")
		}
		entry, err := toDomainRoutingLogEntry(&m)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map routing log entry")
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return entries, nil
}
