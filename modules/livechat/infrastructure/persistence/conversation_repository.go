package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

const conversationFindQuery = `
	SELECT id, tenant_id, customer_identifier, customer_name, customer_email,
	       chatbot_session_id, handoff_reason, original_question,
	       status, priority, skills_required, queue_position, assigned_agent_id, previous_agent_id,
	       assignment_method, created_at, queued_at, assigned_at, first_response_at,
	       last_activity_at, closed_at, message_count, agent_message_count,
	       customer_message_count, wait_time_seconds, response_time_seconds,
	       duration_seconds, closed_by, closure_reason, resolution_status, satisfaction
	FROM live_chat_conversations`

type ConversationRepository struct{}

func NewConversationRepository() conversation.Repository {
	return &ConversationRepository{}
}

func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	convs, err := r.queryConversations(ctx, conversationFindQuery+" WHERE id = $1 AND tenant_id = $2", id.String(), tenantID.String())
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, conversation.ErrNotFound
	}
	return convs[0], nil
}

func (r *ConversationRepository) Create(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m, err := toDBConversation(conv)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO live_chat_conversations (
			id, tenant_id, customer_identifier, customer_name, customer_email,
			chatbot_session_id, handoff_reason, original_question,
			status, priority, skills_required, queue_position, assigned_agent_id, previous_agent_id,
			assignment_method, created_at, queued_at, assigned_at, first_response_at,
			last_activity_at, closed_at, message_count, agent_message_count,
			customer_message_count, wait_time_seconds, response_time_seconds,
			duration_seconds, closed_by, closure_reason, resolution_status, satisfaction
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31
		)
	`
	if _, err := tx.Exec(ctx, query,
		m.ID, m.TenantID, m.CustomerIdentifier, m.CustomerName, m.CustomerEmail,
		m.ChatbotSessionID, m.HandoffReason, m.OriginalQuestion,
		m.Status, m.Priority, m.SkillsRequired, m.QueuePosition, m.AssignedAgentID, m.PreviousAgentID,
		m.AssignmentMethod, m.CreatedAt, m.QueuedAt, m.AssignedAt, m.FirstResponseAt,
		m.LastActivityAt, m.ClosedAt, m.MessageCount, m.AgentMessageCount,
		m.CustomerMessageCount, m.WaitTimeSeconds, m.ResponseTimeSeconds,
		m.DurationSeconds, m.ClosedBy, m.ClosureReason, m.ResolutionStatus, m.Satisfaction,
	); err != nil {
		return nil, errors.Wrap(err, "failed to insert conversation")
	}
	return conv, nil
}

// Update persists conv only while the stored status equals expected. The
// WHERE clause is the compare-and-swap that makes concurrent state
// transitions lose cleanly instead of double-applying.
func (r *ConversationRepository) Update(ctx context.Context, conv conversation.Conversation, expected conversation.Status) (conversation.Conversation, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m, err := toDBConversation(conv)
	if err != nil {
		return nil, err
	}
	query := `
		UPDATE live_chat_conversations SET
			status = $1, priority = $2, queue_position = $3, assigned_agent_id = $4,
			previous_agent_id = $5, assignment_method = $6, assigned_at = $7,
			first_response_at = $8, last_activity_at = $9, closed_at = $10,
			message_count = $11, agent_message_count = $12, customer_message_count = $13,
			wait_time_seconds = $14, response_time_seconds = $15, duration_seconds = $16,
			closed_by = $17, closure_reason = $18, resolution_status = $19, satisfaction = $20
		WHERE id = $21 AND tenant_id = $22 AND status = $23
	`
	tag, err := tx.Exec(ctx, query,
		m.Status, m.Priority, m.QueuePosition, m.AssignedAgentID,
		m.PreviousAgentID, m.AssignmentMethod, m.AssignedAt,
		m.FirstResponseAt, m.LastActivityAt, m.ClosedAt,
		m.MessageCount, m.AgentMessageCount, m.CustomerMessageCount,
		m.WaitTimeSeconds, m.ResponseTimeSeconds, m.DurationSeconds,
		m.ClosedBy, m.ClosureReason, m.ResolutionStatus, m.Satisfaction,
		m.ID, m.TenantID, string(expected),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update conversation")
	}
	if tag.RowsAffected() == 0 {
		return nil, conversation.ErrStaleStatus
	}
	return conv, nil
}

func (r *ConversationRepository) ListByStatus(ctx context.Context, status conversation.Status) ([]conversation.Conversation, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryConversations(
		ctx,
		conversationFindQuery+" WHERE tenant_id = $1 AND status = $2 ORDER BY created_at",
		tenantID.String(), string(status),
	)
}

func (r *ConversationRepository) CountActiveByAgent(ctx context.Context, agentID uuid.UUID) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return 0, err
	}
	var count int
	query := `
		SELECT COUNT(*) FROM live_chat_conversations
		WHERE tenant_id = $1 AND assigned_agent_id = $2 AND status IN ($3, $4, $5)
	`
	if err := tx.QueryRow(ctx, query,
		tenantID.String(), agentID.String(),
		string(conversation.StatusActive),
		string(conversation.StatusPendingTransfer),
		string(conversation.StatusEscalated),
	).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count active conversations")
	}
	return count, nil
}

func (r *ConversationRepository) queryConversations(ctx context.Context, query string, args ...interface{}) ([]conversation.Conversation, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var convs []conversation.Conversation
	for rows.Next() {
		var m models.Conversation
		if err := rows.Scan(
			&m.ID, &m.TenantID, &m.CustomerIdentifier, &m.CustomerName, &m.CustomerEmail,
			&m.ChatbotSessionID, &m.HandoffReason, &m.OriginalQuestion,
			&m.Status, &m.Priority, &m.SkillsRequired, &m.QueuePosition, &m.AssignedAgentID, &m.PreviousAgentID,
			&m.AssignmentMethod, &m.CreatedAt, &m.QueuedAt, &m.AssignedAt, &m.FirstResponseAt,
			&m.LastActivityAt, &m.ClosedAt, &m.MessageCount, &m.AgentMessageCount,
			&m.CustomerMessageCount, &m.WaitTimeSeconds, &m.ResponseTimeSeconds,
			&m.DurationSeconds, &m.ClosedBy, &m.ClosureReason, &m.ResolutionStatus, &m.Satisfaction,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation row")
		}
		conv, err := toDomainConversation(&m)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map conversation")
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return convs, nil
}
