package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("conversation not found")
	ErrInvalidTransition = errors.New("invalid conversation state transition")
	ErrAlreadyAssigned   = errors.New("conversation already assigned")
	// ErrStaleStatus is returned by repositories when a guarded update
	// finds the stored status no longer matches the expected one.
	ErrStaleStatus = errors.New("conversation status changed concurrently")
)

type Status string

const (
	StatusQueued          Status = "queued"
	StatusActive          Status = "active"
	StatusPendingTransfer Status = "pending_transfer"
	StatusEscalated       Status = "escalated"
	StatusResolved        Status = "resolved"
	StatusAbandoned       Status = "abandoned"
)

// validTransitions is the closed transition table. Every status write goes
// through it; anything else fails with ErrInvalidTransition.
var validTransitions = map[Status][]Status{
	StatusQueued:          {StatusActive, StatusAbandoned},
	StatusActive:          {StatusResolved, StatusPendingTransfer, StatusEscalated},
	StatusEscalated:       {StatusResolved, StatusPendingTransfer},
	StatusPendingTransfer: {StatusActive},
	StatusResolved:        {},
	StatusAbandoned:       {},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

type Priority int

const (
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
	PriorityUrgent Priority = 3
)

// AssignmentMethod records how an agent ended up with a conversation.
type AssignmentMethod string

const (
	MethodSkillsBased AssignmentMethod = "skills_based"
	MethodLeastBusy   AssignmentMethod = "least_busy"
	MethodRoundRobin  AssignmentMethod = "round_robin"
	MethodDirect      AssignmentMethod = "direct"
	MethodTransfer    AssignmentMethod = "transfer"
	MethodFallback    AssignmentMethod = "fallback_round_robin"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Conversation, error)
	Create(ctx context.Context, conv Conversation) (Conversation, error)
	// Update persists conv only while the stored status still equals
	// expected; ErrStaleStatus otherwise. This is the CAS that makes
	// concurrent assignment attempts lose cleanly.
	Update(ctx context.Context, conv Conversation, expected Status) (Conversation, error)
	ListByStatus(ctx context.Context, status Status) ([]Conversation, error)
	CountActiveByAgent(ctx context.Context, agentID uuid.UUID) (int, error)
}

type Conversation interface {
	ID() uuid.UUID
	TenantID() uuid.UUID
	CustomerIdentifier() string
	CustomerName() string
	CustomerEmail() string
	ChatbotSessionID() string
	HandoffReason() string
	OriginalQuestion() string

	Status() Status
	Priority() Priority
	SkillsRequired() []string
	QueuePosition() *int
	AssignedAgentID() *uuid.UUID
	PreviousAgentID() *uuid.UUID
	AssignmentMethod() AssignmentMethod

	CreatedAt() time.Time
	QueuedAt() time.Time
	AssignedAt() *time.Time
	FirstResponseAt() *time.Time
	LastActivityAt() time.Time
	ClosedAt() *time.Time

	MessageCount() int
	AgentMessageCount() int
	CustomerMessageCount() int

	WaitTimeSeconds() *int
	ResponseTimeSeconds() *int
	DurationSeconds() *int

	ClosedBy() string
	ClosureReason() string
	ResolutionStatus() string
	Satisfaction() *int

	SetQueuePosition(pos *int) Conversation
	Assign(agentID uuid.UUID, method AssignmentMethod, at time.Time) (Conversation, error)
	BeginTransfer(at time.Time) (Conversation, error)
	CompleteTransfer(toAgentID uuid.UUID, at time.Time) (Conversation, error)
	Escalate(at time.Time) (Conversation, error)
	Close(closedBy, reason, resolution string, at time.Time) (Conversation, error)
	Abandon(at time.Time) (Conversation, error)
	RecordCustomerMessage(at time.Time) Conversation
	RecordAgentMessage(at time.Time) Conversation
	RateSatisfaction(rating int) (Conversation, error)
}

type conv struct {
	id                 uuid.UUID
	tenantID           uuid.UUID
	customerIdentifier string
	customerName       string
	customerEmail      string
	chatbotSessionID   string
	handoffReason      string
	originalQuestion   string

	status           Status
	priority         Priority
	skillsRequired   []string
	queuePosition    *int
	assignedAgentID  *uuid.UUID
	previousAgentID  *uuid.UUID
	assignmentMethod AssignmentMethod

	createdAt       time.Time
	queuedAt        time.Time
	assignedAt      *time.Time
	firstResponseAt *time.Time
	lastActivityAt  time.Time
	closedAt        *time.Time

	messageCount         int
	agentMessageCount    int
	customerMessageCount int

	waitTimeSeconds     *int
	responseTimeSeconds *int
	durationSeconds     *int

	closedBy         string
	closureReason    string
	resolutionStatus string
	satisfaction     *int
}

// New creates a conversation in queued status; every conversation starts
// life waiting for an agent.
func New(tenantID uuid.UUID, customerIdentifier string, opts ...Option) Conversation {
	now := time.Now()
	c := &conv{
		id:                 uuid.New(),
		tenantID:           tenantID,
		customerIdentifier: customerIdentifier,
		status:             StatusQueued,
		priority:           PriorityNormal,
		createdAt:          now,
		queuedAt:           now,
		lastActivityAt:     now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Option func(*conv)

func WithID(id uuid.UUID) Option {
	return func(c *conv) {
		if id != uuid.Nil {
			c.id = id
		}
	}
}

func WithCustomerName(name string) Option {
	return func(c *conv) { c.customerName = name }
}

func WithCustomerEmail(email string) Option {
	return func(c *conv) { c.customerEmail = email }
}

func WithChatbotSessionID(sessionID string) Option {
	return func(c *conv) { c.chatbotSessionID = sessionID }
}

func WithHandoffReason(reason string) Option {
	return func(c *conv) { c.handoffReason = reason }
}

func WithOriginalQuestion(question string) Option {
	return func(c *conv) { c.originalQuestion = question }
}

func WithPriority(p Priority) Option {
	return func(c *conv) { c.priority = p }
}

func WithSkillsRequired(skills []string) Option {
	return func(c *conv) { c.skillsRequired = skills }
}

func WithStatus(s Status) Option {
	return func(c *conv) { c.status = s }
}

func WithQueuePosition(pos *int) Option {
	return func(c *conv) { c.queuePosition = pos }
}

func WithAssignedAgentID(id *uuid.UUID) Option {
	return func(c *conv) { c.assignedAgentID = id }
}

func WithPreviousAgentID(id *uuid.UUID) Option {
	return func(c *conv) { c.previousAgentID = id }
}

func WithAssignmentMethod(m AssignmentMethod) Option {
	return func(c *conv) { c.assignmentMethod = m }
}

func WithTimestamps(createdAt, queuedAt, lastActivityAt time.Time) Option {
	return func(c *conv) {
		if !createdAt.IsZero() {
			c.createdAt = createdAt
		}
		if !queuedAt.IsZero() {
			c.queuedAt = queuedAt
		}
		if !lastActivityAt.IsZero() {
			c.lastActivityAt = lastActivityAt
		}
	}
}

func WithAssignedAt(t *time.Time) Option {
	return func(c *conv) { c.assignedAt = t }
}

func WithFirstResponseAt(t *time.Time) Option {
	return func(c *conv) { c.firstResponseAt = t }
}

func WithClosedAt(t *time.Time) Option {
	return func(c *conv) { c.closedAt = t }
}

func WithMessageCounts(total, agent, customer int) Option {
	return func(c *conv) {
		c.messageCount = total
		c.agentMessageCount = agent
		c.customerMessageCount = customer
	}
}

func WithMetrics(waitSeconds, responseSeconds, durationSeconds *int) Option {
	return func(c *conv) {
		c.waitTimeSeconds = waitSeconds
		c.responseTimeSeconds = responseSeconds
		c.durationSeconds = durationSeconds
	}
}

func WithClosure(closedBy, reason, resolution string) Option {
	return func(c *conv) {
		c.closedBy = closedBy
		c.closureReason = reason
		c.resolutionStatus = resolution
	}
}

func WithSatisfaction(rating *int) Option {
	return func(c *conv) { c.satisfaction = rating }
}

func (c *conv) ID() uuid.UUID                      { return c.id }
func (c *conv) TenantID() uuid.UUID                { return c.tenantID }
func (c *conv) CustomerIdentifier() string         { return c.customerIdentifier }
func (c *conv) CustomerName() string               { return c.customerName }
func (c *conv) CustomerEmail() string              { return c.customerEmail }
func (c *conv) ChatbotSessionID() string           { return c.chatbotSessionID }
func (c *conv) HandoffReason() string              { return c.handoffReason }
func (c *conv) OriginalQuestion() string           { return c.originalQuestion }
func (c *conv) Status() Status                     { return c.status }
func (c *conv) Priority() Priority                 { return c.priority }
func (c *conv) SkillsRequired() []string           { return c.skillsRequired }
func (c *conv) QueuePosition() *int                { return c.queuePosition }
func (c *conv) AssignedAgentID() *uuid.UUID        { return c.assignedAgentID }
func (c *conv) PreviousAgentID() *uuid.UUID        { return c.previousAgentID }
func (c *conv) AssignmentMethod() AssignmentMethod { return c.assignmentMethod }
func (c *conv) CreatedAt() time.Time               { return c.createdAt }
func (c *conv) QueuedAt() time.Time                { return c.queuedAt }
func (c *conv) AssignedAt() *time.Time             { return c.assignedAt }
func (c *conv) FirstResponseAt() *time.Time        { return c.firstResponseAt }
func (c *conv) LastActivityAt() time.Time          { return c.lastActivityAt }
func (c *conv) ClosedAt() *time.Time               { return c.closedAt }
func (c *conv) MessageCount() int                  { return c.messageCount }
func (c *conv) AgentMessageCount() int             { return c.agentMessageCount }
func (c *conv) CustomerMessageCount() int          { return c.customerMessageCount }
func (c *conv) WaitTimeSeconds() *int              { return c.waitTimeSeconds }
func (c *conv) ResponseTimeSeconds() *int          { return c.responseTimeSeconds }
func (c *conv) DurationSeconds() *int              { return c.durationSeconds }
func (c *conv) ClosedBy() string                   { return c.closedBy }
func (c *conv) ClosureReason() string              { return c.closureReason }
func (c *conv) ResolutionStatus() string           { return c.resolutionStatus }
func (c *conv) Satisfaction() *int                 { return c.satisfaction }

func (c *conv) SetQueuePosition(pos *int) Conversation {
	c.queuePosition = pos
	return c
}

func (c *conv) transition(next Status) error {
	if !c.status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	c.status = next
	return nil
}

func (c *conv) Assign(agentID uuid.UUID, method AssignmentMethod, at time.Time) (Conversation, error) {
	if err := c.transition(StatusActive); err != nil {
		return nil, err
	}
	c.assignedAgentID = &agentID
	c.assignmentMethod = method
	c.assignedAt = &at
	c.queuePosition = nil
	wait := int(at.Sub(c.queuedAt).Seconds())
	c.waitTimeSeconds = &wait
	c.lastActivityAt = at
	return c, nil
}

func (c *conv) BeginTransfer(at time.Time) (Conversation, error) {
	if c.assignedAgentID == nil {
		return nil, ErrInvalidTransition
	}
	if err := c.transition(StatusPendingTransfer); err != nil {
		return nil, err
	}
	c.lastActivityAt = at
	return c, nil
}

func (c *conv) CompleteTransfer(toAgentID uuid.UUID, at time.Time) (Conversation, error) {
	if err := c.transition(StatusActive); err != nil {
		return nil, err
	}
	c.previousAgentID = c.assignedAgentID
	c.assignedAgentID = &toAgentID
	c.assignmentMethod = MethodTransfer
	c.assignedAt = &at
	c.lastActivityAt = at
	return c, nil
}

func (c *conv) Escalate(at time.Time) (Conversation, error) {
	if err := c.transition(StatusEscalated); err != nil {
		return nil, err
	}
	c.lastActivityAt = at
	return c, nil
}

// Close resolves the conversation and computes the duration and
// response-time metrics from stored timestamps.
func (c *conv) Close(closedBy, reason, resolution string, at time.Time) (Conversation, error) {
	if err := c.transition(StatusResolved); err != nil {
		return nil, err
	}
	c.closedBy = closedBy
	c.closureReason = reason
	c.resolutionStatus = resolution
	c.closedAt = &at
	c.lastActivityAt = at
	duration := int(at.Sub(c.createdAt).Seconds())
	c.durationSeconds = &duration
	if c.firstResponseAt != nil {
		response := int(c.firstResponseAt.Sub(c.queuedAt).Seconds())
		c.responseTimeSeconds = &response
	}
	return c, nil
}

// Abandon is only valid while queued; an abandoned active chat is closed
// as resolved with a distinguishing reason instead.
func (c *conv) Abandon(at time.Time) (Conversation, error) {
	if c.status != StatusQueued {
		return nil, ErrInvalidTransition
	}
	if err := c.transition(StatusAbandoned); err != nil {
		return nil, err
	}
	c.queuePosition = nil
	c.closedAt = &at
	c.closedBy = "customer"
	c.closureReason = "abandoned_in_queue"
	c.lastActivityAt = at
	return c, nil
}

func (c *conv) RecordCustomerMessage(at time.Time) Conversation {
	c.messageCount++
	c.customerMessageCount++
	c.lastActivityAt = at
	return c
}

func (c *conv) RecordAgentMessage(at time.Time) Conversation {
	c.messageCount++
	c.agentMessageCount++
	if c.firstResponseAt == nil {
		t := at
		c.firstResponseAt = &t
	}
	c.lastActivityAt = at
	return c
}

func (c *conv) RateSatisfaction(rating int) (Conversation, error) {
	if rating < 1 || rating > 5 {
		return nil, errors.New("satisfaction rating must be between 1 and 5")
	}
	c.satisfaction = &rating
	return c, nil
}
