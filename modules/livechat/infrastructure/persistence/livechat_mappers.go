package persistence

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agentsession"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/chatsettings"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/queueentry"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/routinglog"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/transfer"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/mapping"
)

func toDomainConversation(m *models.Conversation) (conversation.Conversation, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := uuid.Parse(m.TenantID)
	if err != nil {
		return nil, err
	}

	var assignedAgent, previousAgent *uuid.UUID
	if v := mapping.SQLNullStringToUUID(m.AssignedAgentID); v != uuid.Nil {
		assignedAgent = &v
	}
	if v := mapping.SQLNullStringToUUID(m.PreviousAgentID); v != uuid.Nil {
		previousAgent = &v
	}

	var skills []string
	if m.SkillsRequired != "" {
		if err := json.Unmarshal([]byte(m.SkillsRequired), &skills); err != nil {
			return nil, err
		}
	}

	opts := []conversation.Option{
		conversation.WithID(id),
		conversation.WithCustomerName(mapping.SQLNullStringToValue(m.CustomerName)),
		conversation.WithCustomerEmail(mapping.SQLNullStringToValue(m.CustomerEmail)),
		conversation.WithChatbotSessionID(mapping.SQLNullStringToValue(m.ChatbotSessionID)),
		conversation.WithHandoffReason(mapping.SQLNullStringToValue(m.HandoffReason)),
		conversation.WithOriginalQuestion(mapping.SQLNullStringToValue(m.OriginalQuestion)),
		conversation.WithStatus(conversation.Status(m.Status)),
		conversation.WithPriority(conversation.Priority(m.Priority)),
		conversation.WithSkillsRequired(skills),
		conversation.WithQueuePosition(mapping.SQLNullInt32ToPointer(m.QueuePosition)),
		conversation.WithAssignedAgentID(assignedAgent),
		conversation.WithPreviousAgentID(previousAgent),
		conversation.WithAssignmentMethod(conversation.AssignmentMethod(mapping.SQLNullStringToValue(m.AssignmentMethod))),
		conversation.WithTimestamps(m.CreatedAt, m.QueuedAt, m.LastActivityAt),
		conversation.WithAssignedAt(mapping.SQLNullTimeToPointer(m.AssignedAt)),
		conversation.WithFirstResponseAt(mapping.SQLNullTimeToPointer(m.FirstResponseAt)),
		conversation.WithClosedAt(mapping.SQLNullTimeToPointer(m.ClosedAt)),
		conversation.WithMessageCounts(m.MessageCount, m.AgentMessageCount, m.CustomerMessageCount),
		conversation.WithMetrics(
			mapping.SQLNullInt32ToPointer(m.WaitTimeSeconds),
			mapping.SQLNullInt32ToPointer(m.ResponseTimeSeconds),
			mapping.SQLNullInt32ToPointer(m.DurationSeconds),
		),
		conversation.WithClosure(
			mapping.SQLNullStringToValue(m.ClosedBy),
			mapping.SQLNullStringToValue(m.ClosureReason),
			mapping.SQLNullStringToValue(m.ResolutionStatus),
		),
		conversation.WithSatisfaction(mapping.SQLNullInt32ToPointer(m.Satisfaction)),
	}
	return conversation.New(tenantID, m.CustomerIdentifier, opts...), nil
}

func toDBConversation(c conversation.Conversation) (*models.Conversation, error) {
	skills, err := json.Marshal(c.SkillsRequired())
	if err != nil {
		return nil, err
	}
	m := &models.Conversation{
		ID:                   c.ID().String(),
		TenantID:             c.TenantID().String(),
		CustomerIdentifier:   c.CustomerIdentifier(),
		CustomerName:         mapping.ValueToSQLNullString(c.CustomerName()),
		CustomerEmail:        mapping.ValueToSQLNullString(c.CustomerEmail()),
		ChatbotSessionID:     mapping.ValueToSQLNullString(c.ChatbotSessionID()),
		HandoffReason:        mapping.ValueToSQLNullString(c.HandoffReason()),
		OriginalQuestion:     mapping.ValueToSQLNullString(c.OriginalQuestion()),
		Status:               string(c.Status()),
		Priority:             int(c.Priority()),
		SkillsRequired:       string(skills),
		QueuePosition:        mapping.PointerToSQLNullInt32(c.QueuePosition()),
		AssignmentMethod:     mapping.ValueToSQLNullString(string(c.AssignmentMethod())),
		CreatedAt:            c.CreatedAt(),
		QueuedAt:             c.QueuedAt(),
		AssignedAt:           mapping.PointerToSQLNullTime(c.AssignedAt()),
		FirstResponseAt:      mapping.PointerToSQLNullTime(c.FirstResponseAt()),
		LastActivityAt:       c.LastActivityAt(),
		ClosedAt:             mapping.PointerToSQLNullTime(c.ClosedAt()),
		MessageCount:         c.MessageCount(),
		AgentMessageCount:    c.AgentMessageCount(),
		CustomerMessageCount: c.CustomerMessageCount(),
		WaitTimeSeconds:      mapping.PointerToSQLNullInt32(c.WaitTimeSeconds()),
		ResponseTimeSeconds:  mapping.PointerToSQLNullInt32(c.ResponseTimeSeconds()),
		DurationSeconds:      mapping.PointerToSQLNullInt32(c.DurationSeconds()),
		ClosedBy:             mapping.ValueToSQLNullString(c.ClosedBy()),
		ClosureReason:        mapping.ValueToSQLNullString(c.ClosureReason()),
		ResolutionStatus:     mapping.ValueToSQLNullString(c.ResolutionStatus()),
		Satisfaction:         mapping.PointerToSQLNullInt32(c.Satisfaction()),
	}
	if c.AssignedAgentID() != nil {
		m.AssignedAgentID = mapping.UUIDToSQLNullString(*c.AssignedAgentID())
	}
	if c.PreviousAgentID() != nil {
		m.PreviousAgentID = mapping.UUIDToSQLNullString(*c.PreviousAgentID())
	}
	return m, nil
}

func toDomainAgent(m *models.Agent, tags []models.AgentTag) (agent.Agent, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := uuid.Parse(m.TenantID)
	if err != nil {
		return nil, err
	}

	domainTags := make([]agent.Tag, 0, len(tags))
	for _, t := range tags {
		domainTags = append(domainTags, agent.Tag{
			Name:                 t.Name,
			Proficiency:          t.Proficiency,
			SuccessRate:          t.SuccessRate,
			AvgSatisfaction:      t.AvgSatisfaction,
			ConversationsHandled: t.ConversationsHandled,
		})
	}

	return agent.New(tenantID, m.Email, m.DisplayName,
		agent.WithID(id),
		agent.WithStatus(agent.Status(m.Status)),
		agent.WithMaxConcurrentChats(m.MaxConcurrentChats),
		agent.WithActiveConversations(m.ActiveConversations),
		agent.WithAcceptingChats(m.IsAcceptingChats),
		agent.WithAcceptsOverflow(m.AcceptsOverflow),
		agent.WithAutoAssign(m.AutoAssign),
		agent.WithTags(domainTags),
		agent.WithLastAssignedAt(mapping.SQLNullTimeToPointer(m.LastAssignedAt)),
		agent.WithLastSeenAt(mapping.SQLNullTimeToPointer(m.LastSeenAt)),
		agent.WithTimestamps(m.CreatedAt, m.UpdatedAt),
	), nil
}

func toDBAgent(a agent.Agent) (*models.Agent, []models.AgentTag) {
	m := &models.Agent{
		ID:                  a.ID().String(),
		TenantID:            a.TenantID().String(),
		Email:               a.Email(),
		DisplayName:         a.DisplayName(),
		Status:              string(a.Status()),
		MaxConcurrentChats:  a.MaxConcurrentChats(),
		ActiveConversations: a.ActiveConversations(),
		IsAcceptingChats:    a.IsAcceptingChats(),
		AcceptsOverflow:     a.AcceptsOverflow(),
		AutoAssign:          a.AutoAssign(),
		CreatedAt:           a.CreatedAt(),
		UpdatedAt:           a.UpdatedAt(),
	}
	if a.LastAssignedAt() != nil {
		m.LastAssignedAt = mapping.PointerToSQLNullTime(a.LastAssignedAt())
	}
	if a.LastSeenAt() != nil {
		m.LastSeenAt = mapping.PointerToSQLNullTime(a.LastSeenAt())
	}
	tags := make([]models.AgentTag, 0, len(a.Tags()))
	for _, t := range a.Tags() {
		tags = append(tags, models.AgentTag{
			AgentID:              m.ID,
			TenantID:             m.TenantID,
			Name:                 t.Name,
			Proficiency:          t.Proficiency,
			SuccessRate:          t.SuccessRate,
			AvgSatisfaction:      t.AvgSatisfaction,
			ConversationsHandled: t.ConversationsHandled,
		})
	}
	return m, tags
}

func toDomainQueueEntry(m *models.QueueEntry) (queueentry.QueueEntry, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := uuid.Parse(m.TenantID)
	if err != nil {
		return nil, err
	}
	conversationID, err := uuid.Parse(m.ConversationID)
	if err != nil {
		return nil, err
	}

	var skills []string
	if m.SkillsRequired != "" {
		if err := json.Unmarshal([]byte(m.SkillsRequired), &skills); err != nil {
			return nil, err
		}
	}

	var preferred *uuid.UUID
	if v := mapping.SQLNullStringToUUID(m.PreferredAgentID); v != uuid.Nil {
		preferred = &v
	}

	return queueentry.New(tenantID, conversationID,
		queueentry.WithID(id),
		queueentry.WithPosition(m.Position),
		queueentry.WithPriority(m.Priority),
		queueentry.WithPreferredAgentID(preferred),
		queueentry.WithSkillsRequired(skills),
		queueentry.WithEntryReason(queueentry.EntryReason(m.EntryReason)),
		queueentry.WithQueuedAt(m.QueuedAt),
		queueentry.WithEstimatedWait(m.EstimatedWaitSeconds),
	), nil
}

func toDBQueueEntry(e queueentry.QueueEntry) (*models.QueueEntry, error) {
	skills, err := json.Marshal(e.SkillsRequired())
	if err != nil {
		return nil, err
	}
	m := &models.QueueEntry{
		ID:                   e.ID().String(),
		TenantID:             e.TenantID().String(),
		ConversationID:       e.ConversationID().String(),
		Position:             e.Position(),
		Priority:             e.Priority(),
		SkillsRequired:       string(skills),
		EntryReason:          string(e.EntryReason()),
		QueuedAt:             e.QueuedAt(),
		EstimatedWaitSeconds: e.EstimatedWaitSeconds(),
	}
	if e.PreferredAgentID() != nil {
		m.PreferredAgentID = mapping.UUIDToSQLNullString(*e.PreferredAgentID())
	}
	return m, nil
}

func toDomainTransfer(m *models.Transfer) (transfer.Transfer, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := uuid.Parse(m.TenantID)
	if err != nil {
		return nil, err
	}
	conversationID, err := uuid.Parse(m.ConversationID)
	if err != nil {
		return nil, err
	}
	fromAgent, err := uuid.Parse(m.FromAgentID)
	if err != nil {
		return nil, err
	}
	toAgent, err := uuid.Parse(m.ToAgentID)
	if err != nil {
		return nil, err
	}

	return transfer.New(tenantID, conversationID, fromAgent, toAgent,
		transfer.WithID(id),
		transfer.WithReason(mapping.SQLNullStringToValue(m.Reason)),
		transfer.WithNotes(mapping.SQLNullStringToValue(m.Notes)),
		transfer.WithStatus(transfer.Status(m.Status)),
		transfer.WithConversationSummary(mapping.SQLNullStringToValue(m.ConversationSummary)),
		transfer.WithCustomerContext(mapping.SQLNullStringToValue(m.CustomerContext)),
		transfer.WithInitiatedAt(m.InitiatedAt),
		transfer.WithCompletedAt(mapping.SQLNullTimeToPointer(m.CompletedAt)),
	), nil
}

func toDBTransfer(t transfer.Transfer) *models.Transfer {
	return &models.Transfer{
		ID:                  t.ID().String(),
		TenantID:            t.TenantID().String(),
		ConversationID:      t.ConversationID().String(),
		FromAgentID:         t.FromAgentID().String(),
		ToAgentID:           t.ToAgentID().String(),
		Reason:              mapping.ValueToSQLNullString(t.Reason()),
		Notes:               mapping.ValueToSQLNullString(t.Notes()),
		Status:              string(t.Status()),
		ConversationSummary: mapping.ValueToSQLNullString(t.ConversationSummary()),
		CustomerContext:     mapping.ValueToSQLNullString(t.CustomerContext()),
		InitiatedAt:         t.InitiatedAt(),
		CompletedAt:         mapping.PointerToSQLNullTime(t.CompletedAt()),
	}
}

func toDomainRoutingLogEntry(m *models.RoutingLogEntry) (routinglog.Entry, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := uuid.Parse(m.TenantID)
	if err != nil {
		return nil, err
	}
	conversationID, err := uuid.Parse(m.ConversationID)
	if err != nil {
		return nil, err
	}

	var candidates []routinglog.CandidateScore
	if m.Candidates != "" {
		if err := json.Unmarshal([]byte(m.Candidates), &candidates); err != nil {
			return nil, err
		}
	}

	opts := []routinglog.Option{
		routinglog.WithID(id),
		routinglog.WithCandidates(candidates),
		routinglog.WithFallbackReason(mapping.SQLNullStringToValue(m.FallbackReason)),
		routinglog.WithCreatedAt(m.CreatedAt),
	}
	if v := mapping.SQLNullStringToUUID(m.SelectedAgentID); v != uuid.Nil {
		opts = append(opts, routinglog.WithSelectedAgent(v, m.Confidence))
	}
	return routinglog.New(tenantID, conversationID, m.Method, opts...), nil
}

func toDBRoutingLogEntry(e routinglog.Entry) (*models.RoutingLogEntry, error) {
	candidates, err := json.Marshal(e.Candidates())
	if err != nil {
		return nil, err
	}
	m := &models.RoutingLogEntry{
		ID:             e.ID().String(),
		TenantID:       e.TenantID().String(),
		ConversationID: e.ConversationID().String(),
		Method:         e.Method(),
		Confidence:     e.Confidence(),
		Candidates:     string(candidates),
		FallbackReason: mapping.ValueToSQLNullString(e.FallbackReason()),
		CreatedAt:      e.CreatedAt(),
	}
	if e.SelectedAgentID() != nil {
		m.SelectedAgentID = mapping.UUIDToSQLNullString(*e.SelectedAgentID())
	}
	return m, nil
}

func toDomainChatSettings(m *models.ChatSettings) (chatsettings.Settings, error) {
	tenantID, err := uuid.Parse(m.TenantID)
	if err != nil {
		return nil, err
	}
	return chatsettings.New(tenantID,
		chatsettings.WithEnabled(m.IsEnabled),
		chatsettings.WithMaxQueueSize(m.MaxQueueSize),
		chatsettings.WithAssignmentMethod(chatsettings.AssignmentMethod(m.AssignmentMethod)),
		chatsettings.WithMaxChatsPerAgent(m.MaxChatsPerAgent),
		chatsettings.WithAvgHandleTime(time.Duration(m.AvgHandleTimeSeconds)*time.Second, m.HandledCount),
		chatsettings.WithBusinessHours(m.BusinessHoursEnabled, m.Timezone),
	), nil
}

func toDBChatSettings(s chatsettings.Settings) *models.ChatSettings {
	return &models.ChatSettings{
		TenantID:             s.TenantID().String(),
		IsEnabled:            s.IsEnabled(),
		MaxQueueSize:         s.MaxQueueSize(),
		AssignmentMethod:     string(s.AssignmentMethod()),
		MaxChatsPerAgent:     s.MaxChatsPerAgent(),
		AvgHandleTimeSeconds: int(s.AvgHandleTime().Seconds()),
		HandledCount:         s.HandledCount(),
		BusinessHoursEnabled: s.BusinessHoursEnabled(),
		Timezone:             s.Timezone(),
	}
}

func toDomainAgentSession(m *models.AgentSession) (agentsession.Session, error) {
	sessionID, err := uuid.Parse(m.SessionID)
	if err != nil {
		return nil, err
	}
	agentID, err := uuid.Parse(m.AgentID)
	if err != nil {
		return nil, err
	}
	tenantID, err := uuid.Parse(m.TenantID)
	if err != nil {
		return nil, err
	}
	return agentsession.New(tenantID, agentID,
		agentsession.WithSessionID(sessionID),
		agentsession.WithLoginAt(m.LoginAt),
		agentsession.WithLastActivityAt(m.LastActivityAt),
		agentsession.WithIPAddress(m.IPAddress),
		agentsession.WithUserAgent(m.UserAgent),
	), nil
}

func toDBAgentSession(s agentsession.Session) *models.AgentSession {
	return &models.AgentSession{
		SessionID:      s.SessionID().String(),
		AgentID:        s.AgentID().String(),
		TenantID:       s.TenantID().String(),
		LoginAt:        s.LoginAt(),
		LastActivityAt: s.LastActivityAt(),
		IPAddress:      s.IPAddress(),
		UserAgent:      s.UserAgent(),
	}
}
