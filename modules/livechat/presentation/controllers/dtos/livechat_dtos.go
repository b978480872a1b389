package dtos

import (
	"time"

	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agentsession"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/chatsettings"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/queueentry"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/routinglog"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/transfer"
	"github.com/omnidesk/omnidesk/pkg/constants"
	"github.com/omnidesk/omnidesk/pkg/serrors"
)

// validateStruct runs the shared validator and reports per-field coded
// errors. Every DTO's Ok method goes through here.
func validateStruct(d any) (serrors.ValidationErrors, bool) {
	if err := constants.Validate.Struct(d); err != nil {
		verrs := serrors.ProcessValidatorErrors(err)
		return verrs, len(verrs) == 0
	}
	return serrors.ValidationErrors{}, true
}

type StartConversationDTO struct {
	CustomerIdentifier string   `json:"customer_identifier" validate:"required"`
	CustomerName       string   `json:"customer_name"`
	CustomerEmail      string   `json:"customer_email" validate:"omitempty,email"`
	ChatbotSessionID   string   `json:"chatbot_session_id"`
	HandoffReason      string   `json:"handoff_reason"`
	OriginalQuestion   string   `json:"original_question"`
	Priority           string   `json:"priority" validate:"omitempty,oneof=normal high urgent"`
	SkillsRequired     []string `json:"skills_required"`
	PreferredAgentID   *string  `json:"preferred_agent_id" validate:"omitempty,uuid"`
}

func (d *StartConversationDTO) Ok() (serrors.ValidationErrors, bool) {
	return validateStruct(d)
}

func (d *StartConversationDTO) ToPriority() conversation.Priority {
	switch d.Priority {
	case "high":
		return conversation.PriorityHigh
	case "urgent":
		return conversation.PriorityUrgent
	default:
		return conversation.PriorityNormal
	}
}

func (d *StartConversationDTO) ToPreferredAgentID() *uuid.UUID {
	if d.PreferredAgentID == nil {
		return nil
	}
	id, err := uuid.Parse(*d.PreferredAgentID)
	if err != nil {
		return nil
	}
	return &id
}

type MessageDTO struct {
	Sender string `json:"sender" validate:"required,oneof=customer agent"`
}

func (d *MessageDTO) Ok() (serrors.ValidationErrors, bool) {
	return validateStruct(d)
}

type CloseConversationDTO struct {
	ClosedBy     string `json:"closed_by" validate:"required,oneof=agent customer system"`
	Reason       string `json:"reason"`
	Resolution   string `json:"resolution"`
	Satisfaction *int   `json:"satisfaction" validate:"omitempty,min=1,max=5"`
}

func (d *CloseConversationDTO) Ok() (serrors.ValidationErrors, bool) {
	return validateStruct(d)
}

type TransferDTO struct {
	FromAgentID         string `json:"from_agent_id" validate:"required,uuid"`
	ToAgentID           string `json:"to_agent_id" validate:"required,uuid"`
	Reason              string `json:"reason"`
	Notes               string `json:"notes"`
	ConversationSummary string `json:"conversation_summary"`
	CustomerContext     string `json:"customer_context"`
}

func (d *TransferDTO) Ok() (serrors.ValidationErrors, bool) {
	return validateStruct(d)
}

type EscalateDTO struct {
	EscalatedBy string `json:"escalated_by" validate:"required"`
}

func (d *EscalateDTO) Ok() (serrors.ValidationErrors, bool) {
	return validateStruct(d)
}

type AgentStatusDTO struct {
	Status    string `json:"status" validate:"required,oneof=online away busy offline"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

func (d *AgentStatusDTO) Ok() (serrors.ValidationErrors, bool) {
	return validateStruct(d)
}

type AgentTagDTO struct {
	Name        string  `json:"name" validate:"required"`
	Proficiency float64 `json:"proficiency" validate:"min=0,max=1"`
}

type SaveAgentDTO struct {
	Email              string        `json:"email" validate:"required,email"`
	DisplayName        string        `json:"display_name" validate:"required"`
	MaxConcurrentChats int           `json:"max_concurrent_chats" validate:"omitempty,min=1"`
	AcceptsOverflow    bool          `json:"accepts_overflow"`
	AutoAssign         *bool         `json:"auto_assign"`
	AcceptingChats     *bool         `json:"accepting_chats"`
	Tags               []AgentTagDTO `json:"tags" validate:"dive"`
}

func (d *SaveAgentDTO) Ok() (serrors.ValidationErrors, bool) {
	return validateStruct(d)
}

func (d *SaveAgentDTO) ToEntity(tenantID uuid.UUID, opts ...agent.Option) agent.Agent {
	tags := make([]agent.Tag, 0, len(d.Tags))
	for _, t := range d.Tags {
		tags = append(tags, agent.Tag{Name: t.Name, Proficiency: t.Proficiency})
	}
	all := []agent.Option{
		agent.WithTags(tags),
		agent.WithAcceptsOverflow(d.AcceptsOverflow),
	}
	if d.MaxConcurrentChats > 0 {
		all = append(all, agent.WithMaxConcurrentChats(d.MaxConcurrentChats))
	}
	if d.AutoAssign != nil {
		all = append(all, agent.WithAutoAssign(*d.AutoAssign))
	}
	if d.AcceptingChats != nil {
		all = append(all, agent.WithAcceptingChats(*d.AcceptingChats))
	}
	all = append(all, opts...)
	return agent.New(tenantID, d.Email, d.DisplayName, all...)
}

type SaveSettingsDTO struct {
	IsEnabled            *bool  `json:"is_enabled"`
	MaxQueueSize         int    `json:"max_queue_size" validate:"omitempty,min=1"`
	AssignmentMethod     string `json:"assignment_method" validate:"omitempty,oneof=round_robin least_busy skills_based"`
	MaxChatsPerAgent     int    `json:"max_chats_per_agent" validate:"omitempty,min=1"`
	BusinessHoursEnabled bool   `json:"business_hours_enabled"`
	Timezone             string `json:"timezone"`
}

func (d *SaveSettingsDTO) Ok() (serrors.ValidationErrors, bool) {
	return validateStruct(d)
}

// Apply folds the DTO onto the current settings, preserving the rolling
// handle-time average which only closing conversations may change.
func (d *SaveSettingsDTO) Apply(current chatsettings.Settings) chatsettings.Settings {
	enabled := current.IsEnabled()
	if d.IsEnabled != nil {
		enabled = *d.IsEnabled
	}
	maxQueue := current.MaxQueueSize()
	if d.MaxQueueSize > 0 {
		maxQueue = d.MaxQueueSize
	}
	method := current.AssignmentMethod()
	if d.AssignmentMethod != "" {
		method = chatsettings.AssignmentMethod(d.AssignmentMethod)
	}
	maxChats := current.MaxChatsPerAgent()
	if d.MaxChatsPerAgent > 0 {
		maxChats = d.MaxChatsPerAgent
	}
	timezone := current.Timezone()
	if d.Timezone != "" {
		timezone = d.Timezone
	}
	return chatsettings.New(
		current.TenantID(),
		chatsettings.WithEnabled(enabled),
		chatsettings.WithMaxQueueSize(maxQueue),
		chatsettings.WithAssignmentMethod(method),
		chatsettings.WithMaxChatsPerAgent(maxChats),
		chatsettings.WithAvgHandleTime(current.AvgHandleTime(), current.HandledCount()),
		chatsettings.WithBusinessHours(d.BusinessHoursEnabled, timezone),
	)
}

type ConversationResponse struct {
	ID                   string     `json:"id"`
	CustomerIdentifier   string     `json:"customer_identifier"`
	CustomerName         string     `json:"customer_name,omitempty"`
	CustomerEmail        string     `json:"customer_email,omitempty"`
	ChatbotSessionID     string     `json:"chatbot_session_id,omitempty"`
	HandoffReason        string     `json:"handoff_reason,omitempty"`
	OriginalQuestion     string     `json:"original_question,omitempty"`
	Status               string     `json:"status"`
	Priority             int        `json:"priority"`
	QueuePosition        *int       `json:"queue_position,omitempty"`
	AssignedAgentID      *string    `json:"assigned_agent_id,omitempty"`
	PreviousAgentID      *string    `json:"previous_agent_id,omitempty"`
	AssignmentMethod     string     `json:"assignment_method,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	QueuedAt             time.Time  `json:"queued_at"`
	AssignedAt           *time.Time `json:"assigned_at,omitempty"`
	FirstResponseAt      *time.Time `json:"first_response_at,omitempty"`
	LastActivityAt       time.Time  `json:"last_activity_at"`
	ClosedAt             *time.Time `json:"closed_at,omitempty"`
	MessageCount         int        `json:"message_count"`
	AgentMessageCount    int        `json:"agent_message_count"`
	CustomerMessageCount int        `json:"customer_message_count"`
	WaitTimeSeconds      *int       `json:"wait_time_seconds,omitempty"`
	ResponseTimeSeconds  *int       `json:"response_time_seconds,omitempty"`
	DurationSeconds      *int       `json:"duration_seconds,omitempty"`
	ClosedBy             string     `json:"closed_by,omitempty"`
	ClosureReason        string     `json:"closure_reason,omitempty"`
	ResolutionStatus     string     `json:"resolution_status,omitempty"`
	Satisfaction         *int       `json:"satisfaction,omitempty"`
}

func NewConversationResponse(c conversation.Conversation) *ConversationResponse {
	return &ConversationResponse{
		ID:                   c.ID().String(),
		CustomerIdentifier:   c.CustomerIdentifier(),
		CustomerName:         c.CustomerName(),
		CustomerEmail:        c.CustomerEmail(),
		ChatbotSessionID:     c.ChatbotSessionID(),
		HandoffReason:        c.HandoffReason(),
		OriginalQuestion:     c.OriginalQuestion(),
		Status:               string(c.Status()),
		Priority:             int(c.Priority()),
		QueuePosition:        c.QueuePosition(),
		AssignedAgentID:      uuidString(c.AssignedAgentID()),
		PreviousAgentID:      uuidString(c.PreviousAgentID()),
		AssignmentMethod:     string(c.AssignmentMethod()),
		CreatedAt:            c.CreatedAt(),
		QueuedAt:             c.QueuedAt(),
		AssignedAt:           c.AssignedAt(),
		FirstResponseAt:      c.FirstResponseAt(),
		LastActivityAt:       c.LastActivityAt(),
		ClosedAt:             c.ClosedAt(),
		MessageCount:         c.MessageCount(),
		AgentMessageCount:    c.AgentMessageCount(),
		CustomerMessageCount: c.CustomerMessageCount(),
		WaitTimeSeconds:      c.WaitTimeSeconds(),
		ResponseTimeSeconds:  c.ResponseTimeSeconds(),
		DurationSeconds:      c.DurationSeconds(),
		ClosedBy:             c.ClosedBy(),
		ClosureReason:        c.ClosureReason(),
		ResolutionStatus:     c.ResolutionStatus(),
		Satisfaction:         c.Satisfaction(),
	}
}

type AgentResponse struct {
	ID                  string        `json:"id"`
	Email               string        `json:"email"`
	DisplayName         string        `json:"display_name"`
	Status              string        `json:"status"`
	MaxConcurrentChats  int           `json:"max_concurrent_chats"`
	ActiveConversations int           `json:"active_conversations"`
	IsAcceptingChats    bool          `json:"is_accepting_chats"`
	AcceptsOverflow     bool          `json:"accepts_overflow"`
	AutoAssign          bool          `json:"auto_assign"`
	Tags                []AgentTagDTO `json:"tags"`
	LastAssignedAt      *time.Time    `json:"last_assigned_at,omitempty"`
	LastSeenAt          *time.Time    `json:"last_seen_at,omitempty"`
}

func NewAgentResponse(a agent.Agent) *AgentResponse {
	tags := make([]AgentTagDTO, 0, len(a.Tags()))
	for _, t := range a.Tags() {
		tags = append(tags, AgentTagDTO{Name: t.Name, Proficiency: t.Proficiency})
	}
	return &AgentResponse{
		ID:                  a.ID().String(),
		Email:               a.Email(),
		DisplayName:         a.DisplayName(),
		Status:              string(a.Status()),
		MaxConcurrentChats:  a.MaxConcurrentChats(),
		ActiveConversations: a.ActiveConversations(),
		IsAcceptingChats:    a.IsAcceptingChats(),
		AcceptsOverflow:     a.AcceptsOverflow(),
		AutoAssign:          a.AutoAssign(),
		Tags:                tags,
		LastAssignedAt:      a.LastAssignedAt(),
		LastSeenAt:          a.LastSeenAt(),
	}
}

type QueueEntryResponse struct {
	ConversationID       string    `json:"conversation_id"`
	Position             int       `json:"position"`
	Priority             int       `json:"priority"`
	PreferredAgentID     *string   `json:"preferred_agent_id,omitempty"`
	SkillsRequired       []string  `json:"skills_required,omitempty"`
	EntryReason          string    `json:"entry_reason"`
	QueuedAt             time.Time `json:"queued_at"`
	EstimatedWaitSeconds int       `json:"estimated_wait_seconds"`
}

func NewQueueEntryResponse(e queueentry.QueueEntry) *QueueEntryResponse {
	return &QueueEntryResponse{
		ConversationID:       e.ConversationID().String(),
		Position:             e.Position(),
		Priority:             e.Priority(),
		PreferredAgentID:     uuidString(e.PreferredAgentID()),
		SkillsRequired:       e.SkillsRequired(),
		EntryReason:          string(e.EntryReason()),
		QueuedAt:             e.QueuedAt(),
		EstimatedWaitSeconds: e.EstimatedWaitSeconds(),
	}
}

type TransferResponse struct {
	ID                  string     `json:"id"`
	ConversationID      string     `json:"conversation_id"`
	FromAgentID         string     `json:"from_agent_id"`
	ToAgentID           string     `json:"to_agent_id"`
	Reason              string     `json:"reason,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	Status              string     `json:"status"`
	ConversationSummary string     `json:"conversation_summary,omitempty"`
	CustomerContext     string     `json:"customer_context,omitempty"`
	InitiatedAt         time.Time  `json:"initiated_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

func NewTransferResponse(t transfer.Transfer) *TransferResponse {
	return &TransferResponse{
		ID:                  t.ID().String(),
		ConversationID:      t.ConversationID().String(),
		FromAgentID:         t.FromAgentID().String(),
		ToAgentID:           t.ToAgentID().String(),
		Reason:              t.Reason(),
		Notes:               t.Notes(),
		Status:              string(t.Status()),
		ConversationSummary: t.ConversationSummary(),
		CustomerContext:     t.CustomerContext(),
		InitiatedAt:         t.InitiatedAt(),
		CompletedAt:         t.CompletedAt(),
	}
}

type RoutingEntryResponse struct {
	ID              string                      `json:"id"`
	ConversationID  string                      `json:"conversation_id"`
	Method          string                      `json:"method"`
	SelectedAgentID *string                     `json:"selected_agent_id,omitempty"`
	Confidence      float64                     `json:"confidence"`
	Candidates      []routinglog.CandidateScore `json:"candidates,omitempty"`
	FallbackReason  string                      `json:"fallback_reason,omitempty"`
	CreatedAt       time.Time                   `json:"created_at"`
}

func NewRoutingEntryResponse(e routinglog.Entry) *RoutingEntryResponse {
	return &RoutingEntryResponse{
		ID:              e.ID().String(),
		ConversationID:  e.ConversationID().String(),
		Method:          e.Method(),
		SelectedAgentID: uuidString(e.SelectedAgentID()),
		Confidence:      e.Confidence(),
		Candidates:      e.Candidates(),
		FallbackReason:  e.FallbackReason(),
		CreatedAt:       e.CreatedAt(),
	}
}

type SettingsResponse struct {
	IsEnabled            bool   `json:"is_enabled"`
	MaxQueueSize         int    `json:"max_queue_size"`
	AssignmentMethod     string `json:"assignment_method"`
	MaxChatsPerAgent     int    `json:"max_chats_per_agent"`
	AvgHandleTimeSeconds int    `json:"avg_handle_time_seconds"`
	HandledCount         int    `json:"handled_count"`
	BusinessHoursEnabled bool   `json:"business_hours_enabled"`
	Timezone             string `json:"timezone"`
}

func NewSettingsResponse(s chatsettings.Settings) *SettingsResponse {
	return &SettingsResponse{
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

type SessionResponse struct {
	SessionID      string    `json:"session_id"`
	AgentID        string    `json:"agent_id"`
	LoginAt        time.Time `json:"login_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}

func NewSessionResponse(s agentsession.Session) *SessionResponse {
	return &SessionResponse{
		SessionID:      s.SessionID().String(),
		AgentID:        s.AgentID().String(),
		LoginAt:        s.LoginAt(),
		LastActivityAt: s.LastActivityAt(),
		IPAddress:      s.IPAddress(),
		UserAgent:      s.UserAgent(),
	}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
