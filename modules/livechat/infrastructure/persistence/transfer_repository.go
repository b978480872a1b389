package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/transfer"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

const transferFindQuery = `
	SELECT id, tenant_id, conversation_id, from_agent_id, to_agent_id, reason,
	       notes, status, conversation_summary, customer_context, initiated_at, completed_at
	FROM conversation_transfers`

type TransferRepository struct{}

func NewTransferRepository() transfer.Repository {
	return &TransferRepository{}
}

func (r *TransferRepository) Create(ctx context.Context, t transfer.Transfer) (transfer.Transfer, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m := toDBTransfer(t)
	if _, err := tx.Exec(ctx, `
		INSERT INTO conversation_transfers (
			id, tenant_id, conversation_id, from_agent_id, to_agent_id, reason,
			notes, status, conversation_summary, customer_context, initiated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, completed_at = EXCLUDED.completed_at
	`,
		m.ID, m.TenantID, m.ConversationID, m.FromAgentID, m.ToAgentID, m.Reason,
		m.Notes, m.Status, m.ConversationSummary, m.CustomerContext, m.InitiatedAt, m.CompletedAt,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert transfer")
	}
	return t, nil
}

func (r *TransferRepository) GetByID(ctx context.Context, id uuid.UUID) (transfer.Transfer, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	transfers, err := r.queryTransfers(ctx, transferFindQuery+" WHERE id = $1 AND tenant_id = $2", id.String(), tenantID.String())
	if err != nil {
		return nil, err
	}
	if len(transfers) == 0 {
		return nil, transfer.ErrNotFound
	}
	return transfers[0], nil
}

func (r *TransferRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]transfer.Transfer, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryTransfers(
		ctx,
		transferFindQuery+" WHERE tenant_id = $1 AND conversation_id = $2 ORDER BY initiated_at",
		tenantID.String(), conversationID.String(),
	)
}

func (r *TransferRepository) queryTransfers(ctx context.Context, query string, args ...interface{}) ([]transfer.Transfer, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var transfers []transfer.Transfer
	for rows.Next() {
		var m models.Transfer
		if err := rows.Scan(
			&m.ID, &m.TenantID, &m.ConversationID, &m.FromAgentID, &m.ToAgentID, &m.Reason,
			&m.Notes, &m.Status, &m.ConversationSummary, &m.CustomerContext, &m.InitiatedAt, &m.CompletedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan transfer row")
		}
		t, err := toDomainTransfer(&m)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map transfer")
		}
		transfers = append(transfers, t)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return transfers, nil
}
