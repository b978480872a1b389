package persistence

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

const agentFindQuery = `
	SELECT id, tenant_id, email, display_name, status, max_concurrent_chats,
	       active_conversations, is_accepting_chats, accepts_overflow, auto_assign,
	       last_assigned_at, last_seen_at, created_at, updated_at
	FROM agents`

const agentTagsQuery = `
	SELECT agent_id, tenant_id, name, proficiency, success_rate,
	       avg_satisfaction, conversations_handled
	FROM agent_tags`

type AgentRepository struct{}

func NewAgentRepository() agent.Repository {
	return &AgentRepository{}
}

func (r *AgentRepository) GetByID(ctx context.Context, id uuid.UUID) (agent.Agent, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	agents, err := r.queryAgents(ctx, agentFindQuery+" WHERE id = $1 AND tenant_id = $2", id.String(), tenantID.String())
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, agent.ErrNotFound
	}
	return agents[0], nil
}

func (r *AgentRepository) List(ctx context.Context) ([]agent.Agent, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryAgents(ctx, agentFindQuery+" WHERE tenant_id = $1 ORDER BY display_name", tenantID.String())
}

func (r *AgentRepository) ListAvailable(ctx context.Context) ([]agent.Agent, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return r.queryAgents(
		ctx,
		agentFindQuery+` WHERE tenant_id = $1 AND status = $2 AND is_accepting_chats
			ORDER BY active_conversations, id`,
		tenantID.String(), string(agent.StatusOnline),
	)
}

func (r *AgentRepository) Create(ctx context.Context, a agent.Agent) (agent.Agent, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m, tags := toDBAgent(a)
	if _, err := tx.Exec(ctx, `
		INSERT INTO agents (
			id, tenant_id, email, display_name, status, max_concurrent_chats,
			active_conversations, is_accepting_chats, accepts_overflow, auto_assign,
			last_assigned_at, last_seen_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		m.ID, m.TenantID, m.Email, m.DisplayName, m.Status, m.MaxConcurrentChats,
		m.ActiveConversations, m.IsAcceptingChats, m.AcceptsOverflow, m.AutoAssign,
		m.LastAssignedAt, m.LastSeenAt, m.CreatedAt, m.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "failed to insert agent")
	}
	if err := r.replaceTags(ctx, m.ID, m.TenantID, tags); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AgentRepository) Update(ctx context.Context, a agent.Agent) (agent.Agent, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m, tags := toDBAgent(a)
	tag, err := tx.Exec(ctx, `
		UPDATE agents SET
			email = $1, display_name = $2, status = $3, max_concurrent_chats = $4,
			is_accepting_chats = $5, accepts_overflow = $6, auto_assign = $7,
			last_seen_at = $8, updated_at = now()
		WHERE id = $9 AND tenant_id = $10
	`,
		m.Email, m.DisplayName, m.Status, m.MaxConcurrentChats,
		m.IsAcceptingChats, m.AcceptsOverflow, m.AutoAssign,
		m.LastSeenAt, m.ID, m.TenantID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update agent")
	}
	if tag.RowsAffected() == 0 {
		return nil, agent.ErrNotFound
	}
	if err := r.replaceTags(ctx, m.ID, m.TenantID, tags); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AgentRepository) SetStatus(ctx context.Context, id uuid.UUID, status agent.Status) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE agents SET status = $1, last_seen_at = now(), updated_at = now()
		WHERE id = $2 AND tenant_id = $3
	`, string(status), id.String(), tenantID.String())
	if err != nil {
		return errors.Wrap(err, "failed to set agent status")
	}
	if tag.RowsAffected() == 0 {
		return agent.ErrNotFound
	}
	return nil
}

// IncrementLoad bumps the agent's active conversation count in a single
// statement so concurrent assignments never read-modify-write over each
// other.
func (r *AgentRepository) IncrementLoad(ctx context.Context, id uuid.UUID) error {
	return r.adjustLoad(ctx, id, `
		UPDATE agents SET active_conversations = active_conversations + 1, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`)
}

func (r *AgentRepository) DecrementLoad(ctx context.Context, id uuid.UUID) error {
	return r.adjustLoad(ctx, id, `
		UPDATE agents SET active_conversations = GREATEST(active_conversations - 1, 0), updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`)
}

func (r *AgentRepository) TouchAssigned(ctx context.Context, id uuid.UUID, at time.Time) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE agents SET last_assigned_at = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3
	`, at, id.String(), tenantID.String()); err != nil {
		return errors.Wrap(err, "failed to touch agent assignment time")
	}
	return nil
}

func (r *AgentRepository) adjustLoad(ctx context.Context, id uuid.UUID, query string) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, query, id.String(), tenantID.String())
	if err != nil {
		return errors.Wrap(err, "failed to adjust agent load")
	}
	if tag.RowsAffected() == 0 {
		return agent.ErrNotFound
	}
	return nil
}

func (r *AgentRepository) replaceTags(ctx context.Context, agentID, tenantID string, tags []models.AgentTag) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		"DELETE FROM agent_tags WHERE agent_id = $1 AND tenant_id = $2",
		agentID, tenantID,
	); err != nil {
		return errors.Wrap(err, "failed to clear agent tags")
	}
	for _, t := range tags {
		if _, err := tx.Exec(ctx, `
			INSERT INTO agent_tags (
				agent_id, tenant_id, name, proficiency, success_rate,
				avg_satisfaction, conversations_handled
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			t.AgentID, t.TenantID, t.Name, t.Proficiency, t.SuccessRate,
			t.AvgSatisfaction, t.ConversationsHandled,
		); err != nil {
			return errors.Wrap(err, "failed to insert agent tag")
		}
	}
	return nil
}

func (r *AgentRepository) queryAgents(ctx context.Context, query string, args ...interface{}) ([]agent.Agent, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var dbAgents []models.Agent
	for rows.Next() {
		var m models.Agent
		if err := rows.Scan(
			&m.ID, &m.TenantID, &m.Email, &m.DisplayName, &m.Status, &m.MaxConcurrentChats,
			&m.ActiveConversations, &m.IsAcceptingChats, &m.AcceptsOverflow, &m.AutoAssign,
			&m.LastAssignedAt, &m.LastSeenAt, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan agent row")
		}
		dbAgents = append(dbAgents, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	agents := make([]agent.Agent, 0, len(dbAgents))
	for i := range dbAgents {
		tags, err := r.queryTags(ctx, dbAgents[i].ID, dbAgents[i].TenantID)
		if err != nil {
			return nil, err
		}
		a, err := toDomainAgent(&dbAgents[i], tags)
		if err != nil {
			return nil, errors.Wrap(err, "failed to map agent")
		}
		agents = append(agents, a)
	}
	return agents, nil
}

func (r *AgentRepository) queryTags(ctx context.Context, agentID, tenantID string) ([]models.AgentTag, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx,
		agentTagsQuery+" WHERE agent_id = $1 AND tenant_id = $2 ORDER BY name",
		agentID, tenantID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query agent tags")
	}
	defer rows.Close()

	var tags []models.AgentTag
	for rows.Next() {
		var t models.AgentTag
		if err := rows.Scan(
			&t.AgentID, &t.TenantID, &t.Name, &t.Proficiency, &t.SuccessRate,
			&t.AvgSatisfaction, &t.ConversationsHandled,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan agent tag row")
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return tags, nil
}
