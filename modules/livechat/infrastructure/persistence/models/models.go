package models

import (
	"database/sql"
	"time"
)

type Conversation struct {
	ID                   string
	TenantID             string
	CustomerIdentifier   string
	CustomerName         sql.NullString
	CustomerEmail        sql.NullString
	ChatbotSessionID     sql.NullString
	HandoffReason        sql.NullString
	OriginalQuestion     sql.NullString
	Status               string
	Priority             int
	SkillsRequired       string // JSON array
	QueuePosition        sql.NullInt32
	AssignedAgentID      sql.NullString
	PreviousAgentID      sql.NullString
	AssignmentMethod     sql.NullString
	CreatedAt            time.Time
	QueuedAt             time.Time
	AssignedAt           sql.NullTime
	FirstResponseAt      sql.NullTime
	LastActivityAt       time.Time
	ClosedAt             sql.NullTime
	MessageCount         int
	AgentMessageCount    int
	CustomerMessageCount int
	WaitTimeSeconds      sql.NullInt32
	ResponseTimeSeconds  sql.NullInt32
	DurationSeconds      sql.NullInt32
	ClosedBy             sql.NullString
	ClosureReason        sql.NullString
	ResolutionStatus     sql.NullString
	Satisfaction         sql.NullInt32
}

type Agent struct {
	ID                  string
	TenantID            string
	Email               string
	DisplayName         string
	Status              string
	MaxConcurrentChats  int
	ActiveConversations int
	IsAcceptingChats    bool
	AcceptsOverflow     bool
	AutoAssign          bool
	LastAssignedAt      sql.NullTime
	LastSeenAt          sql.NullTime
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type AgentTag struct {
	AgentID              string
	TenantID             string
	Name                 string
	Proficiency          float64
	SuccessRate          float64
	AvgSatisfaction      float64
	ConversationsHandled int
}

type QueueEntry struct {
	ID                   string
	TenantID             string
	ConversationID       string
	Position             int
	Priority             int
	PreferredAgentID     sql.NullString
	SkillsRequired       string // JSON array
	EntryReason          string
	QueuedAt             time.Time
	EstimatedWaitSeconds int
}

type Transfer struct {
	ID                  string
	TenantID            string
	ConversationID      string
	FromAgentID         string
	ToAgentID           string
	Reason              sql.NullString
	Notes               sql.NullString
	Status              string
	ConversationSummary sql.NullString
	CustomerContext     sql.NullString
	InitiatedAt         time.Time
	CompletedAt         sql.NullTime
}

type RoutingLogEntry struct {
	ID              string
	TenantID        string
	ConversationID  string
	Method          string
	SelectedAgentID sql.NullString
	Confidence      float64
	Candidates      string // JSON array of scoring breakdowns
	FallbackReason  sql.NullString
	CreatedAt       time.Time
}

type ChatSettings struct {
	TenantID             string
	IsEnabled            bool
	MaxQueueSize         int
	AssignmentMethod     string
	MaxChatsPerAgent     int
	AvgHandleTimeSeconds int
	HandledCount         int
	BusinessHoursEnabled bool
	Timezone             string
}

type AgentSession struct {
	SessionID      string    `json:"session_id"`
	AgentID        string    `json:"agent_id"`
	TenantID       string    `json:"tenant_id"`
	LoginAt        time.Time `json:"login_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}
