package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agentsession"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/chatsettings"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/queueentry"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/routinglog"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/transfer"
	"github.com/omnidesk/omnidesk/pkg/composables"
	"github.com/omnidesk/omnidesk/pkg/eventbus"
)

var ErrChatDisabled = errors.New("live chat is disabled for tenant")

// StartConversationInput carries everything the chatbot hands over when a
// customer asks for a human.
type StartConversationInput struct {
	CustomerIdentifier string
	CustomerName       string
	CustomerEmail      string
	ChatbotSessionID   string
	HandoffReason      string
	OriginalQuestion   string
	Priority           conversation.Priority
	SkillsRequired     []string
	PreferredAgentID   *uuid.UUID
}

// StartConversationResult reports where the new conversation ended up:
// either immediately assigned, or queued at Entry's position.
type StartConversationResult struct {
	Conversation conversation.Conversation
	Entry        queueentry.QueueEntry
	Assignment   *AssignmentResult
}

// TransferInput describes an agent-to-agent handoff request.
type TransferInput struct {
	ConversationID      uuid.UUID
	FromAgentID         uuid.UUID
	ToAgentID           uuid.UUID
	Reason              string
	Notes               string
	ConversationSummary string
	CustomerContext     string
}

// CloseInput finishes a conversation.
type CloseInput struct {
	ConversationID uuid.UUID
	ClosedBy       string
	Reason         string
	Resolution     string
	Satisfaction   *int
}

// LiveChatService coordinates the conversation lifecycle across the queue,
// routing, and presence layers. It is the single entry point the
// transport layer talks to.
type LiveChatService struct {
	conversationRepo conversation.Repository
	transferRepo     transfer.Repository
	routingRepo      routinglog.Repository
	agentRepo        agent.Repository
	settingsRepo     chatsettings.Repository
	queueService     *QueueService
	routingService   *RoutingService
	presenceService  *PresenceService
	publisher        eventbus.EventBus
}

func NewLiveChatService(
	conversationRepo conversation.Repository,
	transferRepo transfer.Repository,
	routingRepo routinglog.Repository,
	agentRepo agent.Repository,
	settingsRepo chatsettings.Repository,
	queueService *QueueService,
	routingService *RoutingService,
	presenceService *PresenceService,
	publisher eventbus.EventBus,
) *LiveChatService {
	return &LiveChatService{
		conversationRepo: conversationRepo,
		transferRepo:     transferRepo,
		routingRepo:      routingRepo,
		agentRepo:        agentRepo,
		settingsRepo:     settingsRepo,
		queueService:     queueService,
		routingService:   routingService,
		presenceService:  presenceService,
		publisher:        publisher,
	}
}

// StartConversation accepts a chatbot handoff: create the conversation,
// queue it, then try to hand it to an agent straight away. When the queue
// is full the conversation is never created and ErrQueueFull comes back.
func (s *LiveChatService) StartConversation(ctx context.Context, input StartConversationInput) (*StartConversationResult, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	result, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*StartConversationResult, error) {
		settings, err := s.settingsRepo.Get(txCtx)
		if err != nil {
			return nil, err
		}
		if !settings.IsEnabled() {
			return nil, ErrChatDisabled
		}

		conv := conversation.New(
			tenantID,
			input.CustomerIdentifier,
			conversation.WithCustomerName(input.CustomerName),
			conversation.WithCustomerEmail(input.CustomerEmail),
			conversation.WithChatbotSessionID(input.ChatbotSessionID),
			conversation.WithHandoffReason(input.HandoffReason),
			conversation.WithOriginalQuestion(input.OriginalQuestion),
			conversation.WithPriority(input.Priority),
			conversation.WithSkillsRequired(input.SkillsRequired),
		)
		conv, err = s.conversationRepo.Create(txCtx, conv)
		if err != nil {
			return nil, err
		}

		entry, err := s.queueService.enqueue(txCtx, conv,
			queueentry.WithSkillsRequired(input.SkillsRequired),
			queueentry.WithPreferredAgentID(input.PreferredAgentID),
		)
		if err != nil {
			return nil, err
		}

		assignment, err := s.routingService.assignQueued(txCtx, conv.ID())
		if err != nil {
			return nil, err
		}
		if assignment != nil {
			return &StartConversationResult{Conversation: assignment.Conversation, Entry: entry, Assignment: assignment}, nil
		}

		conv = conv.SetQueuePosition(intRef(entry.Position()))
		return &StartConversationResult{Conversation: conv, Entry: entry}, nil
	})
	if err != nil {
		return nil, err
	}

	// Events go out only once the transaction has committed; a rollback
	// must not leave phantom lifecycle events on the bus.
	s.publisher.Publish(conversation.NewQueuedEvent(result.Conversation, result.Entry.Position()))
	if result.Assignment != nil {
		s.publisher.Publish(conversation.NewAssignedEvent(result.Assignment.Conversation, result.Assignment.Agent.ID(), result.Assignment.Method))
	}
	return result, nil
}

func (s *LiveChatService) Conversation(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (conversation.Conversation, error) {
		return s.conversationRepo.GetByID(txCtx, id)
	})
}

// CustomerMessage records customer activity on an open conversation.
func (s *LiveChatService) CustomerMessage(ctx context.Context, conversationID uuid.UUID) (conversation.Conversation, error) {
	return s.recordMessage(ctx, conversationID, func(c conversation.Conversation) conversation.Conversation {
		return c.RecordCustomerMessage(time.Now())
	})
}

// AgentMessage records an agent reply; the first one stamps the
// conversation's first-response time.
func (s *LiveChatService) AgentMessage(ctx context.Context, conversationID uuid.UUID) (conversation.Conversation, error) {
	return s.recordMessage(ctx, conversationID, func(c conversation.Conversation) conversation.Conversation {
		return c.RecordAgentMessage(time.Now())
	})
}

// AgentAcceptsNext pulls the next eligible queued conversation for the
// agent. A nil result means the queue holds nothing they can take.
func (s *LiveChatService) AgentAcceptsNext(ctx context.Context, agentID uuid.UUID) (*AssignmentResult, error) {
	return s.routingService.AssignNext(ctx, agentID)
}

// PeekNextForAgent previews what AgentAcceptsNext would hand the agent,
// without touching the queue. queueentry.ErrNotFound means nothing
// matches their skills right now.
func (s *LiveChatService) PeekNextForAgent(ctx context.Context, agentID uuid.UUID) (queueentry.QueueEntry, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (queueentry.QueueEntry, error) {
		a, err := s.agentRepo.GetByID(txCtx, agentID)
		if err != nil {
			return nil, err
		}
		return s.queueService.PeekNext(txCtx, a.SkillNames())
	})
}

// AgentStatusChanged updates presence and, when the agent comes online,
// immediately drains the queue toward them.
func (s *LiveChatService) AgentStatusChanged(ctx context.Context, agentID uuid.UUID, status agent.Status, opts ...agentsession.Option) (agent.Agent, []*AssignmentResult, error) {
	updated, err := s.presenceService.SetStatus(ctx, agentID, status, opts...)
	if err != nil {
		return nil, nil, err
	}
	if status != agent.StatusOnline {
		return updated, nil, nil
	}
	assigned, err := s.routingService.DrainQueue(ctx)
	if err != nil {
		return nil, nil, err
	}
	return updated, assigned, nil
}

// CloseConversation resolves a conversation, releases the agent's slot,
// and folds the handle time into the tenant's rolling average.
func (s *LiveChatService) CloseConversation(ctx context.Context, input CloseInput) (conversation.Conversation, error) {
	closed, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (conversation.Conversation, error) {
		conv, err := s.conversationRepo.GetByID(txCtx, input.ConversationID)
		if err != nil {
			return nil, err
		}
		previous := conv.Status()
		now := time.Now()
		conv, err = conv.Close(input.ClosedBy, input.Reason, input.Resolution, now)
		if err != nil {
			return nil, err
		}
		if input.Satisfaction != nil {
			conv, err = conv.RateSatisfaction(*input.Satisfaction)
			if err != nil {
				return nil, err
			}
		}
		conv, err = s.conversationRepo.Update(txCtx, conv, previous)
		if err != nil {
			return nil, err
		}
		if agentID := conv.AssignedAgentID(); agentID != nil {
			if err := s.agentRepo.DecrementLoad(txCtx, *agentID); err != nil {
				return nil, err
			}
			if err := s.recordTagOutcome(txCtx, *agentID, conv); err != nil {
				return nil, err
			}
		}
		if d := conv.DurationSeconds(); d != nil {
			if err := s.settingsRepo.RecordHandleTime(txCtx, time.Duration(*d)*time.Second); err != nil {
				return nil, err
			}
		}
		return conv, nil
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(conversation.NewClosedEvent(closed, input.ClosedBy, input.Reason))
	return closed, nil
}

// AbandonConversation handles a customer leaving the queue. Only queued
// conversations can be abandoned; if an agent won the race and the chat is
// already active, ErrAlreadyAssigned comes back and the session stays up.
func (s *LiveChatService) AbandonConversation(ctx context.Context, conversationID uuid.UUID) (conversation.Conversation, error) {
	abandoned, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (conversation.Conversation, error) {
		// Take the queue lock before touching the conversation so this
		// cannot deadlock against an assignment, which locks the same
		// way around.
		removed, err := s.queueService.Dequeue(txCtx, conversationID)
		if err != nil {
			return nil, err
		}
		conv, err := s.conversationRepo.GetByID(txCtx, conversationID)
		if err != nil {
			return nil, err
		}
		if !removed {
			if conv.Status() == conversation.StatusQueued {
				return nil, conversation.ErrNotFound
			}
			return nil, conversation.ErrAlreadyAssigned
		}
		conv, err = conv.Abandon(time.Now())
		if err != nil {
			return nil, err
		}
		conv, err = s.conversationRepo.Update(txCtx, conv, conversation.StatusQueued)
		if err != nil {
			if errors.Is(err, conversation.ErrStaleStatus) {
				return nil, conversation.ErrAlreadyAssigned
			}
			return nil, err
		}
		return conv, nil
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(conversation.NewAbandonedEvent(abandoned))
	return abandoned, nil
}

// transferOutcome carries a finished transfer attempt out of its
// transaction. A rejected attempt still commits its record.
type transferOutcome struct {
	record   transfer.Transfer
	conv     conversation.Conversation
	rejected bool
}

// TransferConversation moves an active conversation between agents. A
// target who is offline, not accepting, or out of capacity rejects the
// transfer; the conversation stays with the source agent and the rejected
// record is kept.
func (s *LiveChatService) TransferConversation(ctx context.Context, input TransferInput) (transfer.Transfer, error) {
	outcome, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*transferOutcome, error) {
		conv, err := s.conversationRepo.GetByID(txCtx, input.ConversationID)
		if err != nil {
			return nil, err
		}
		if assigned := conv.AssignedAgentID(); assigned == nil || *assigned != input.FromAgentID {
			return nil, conversation.ErrInvalidTransition
		}

		target, err := s.agentRepo.GetByID(txCtx, input.ToAgentID)
		if err != nil {
			return nil, err
		}
		settings, err := s.settingsRepo.Get(txCtx)
		if err != nil {
			return nil, err
		}

		record := transfer.New(
			conv.TenantID(),
			input.ConversationID,
			input.FromAgentID,
			input.ToAgentID,
			transfer.WithReason(input.Reason),
			transfer.WithNotes(input.Notes),
			transfer.WithConversationSummary(input.ConversationSummary),
			transfer.WithCustomerContext(input.CustomerContext),
		)

		now := time.Now()
		if !s.routingService.canTake(target, settings, true) {
			// Return the rejection without an error so the transaction
			// commits and the record survives; the caller maps it back
			// to ErrRejected.
			rejected, err := s.transferRepo.Create(txCtx, record.Reject(now))
			if err != nil {
				return nil, err
			}
			return &transferOutcome{record: rejected, rejected: true}, nil
		}

		previous := conv.Status()
		conv, err = conv.BeginTransfer(now)
		if err != nil {
			return nil, err
		}
		conv, err = s.conversationRepo.Update(txCtx, conv, previous)
		if err != nil {
			return nil, err
		}
		conv, err = conv.CompleteTransfer(input.ToAgentID, now)
		if err != nil {
			return nil, err
		}
		conv, err = s.conversationRepo.Update(txCtx, conv, conversation.StatusPendingTransfer)
		if err != nil {
			return nil, err
		}

		if err := s.agentRepo.DecrementLoad(txCtx, input.FromAgentID); err != nil {
			return nil, err
		}
		if err := s.agentRepo.IncrementLoad(txCtx, input.ToAgentID); err != nil {
			return nil, err
		}
		if err := s.agentRepo.TouchAssigned(txCtx, input.ToAgentID, now); err != nil {
			return nil, err
		}

		completed, err := s.transferRepo.Create(txCtx, record.Complete(now))
		if err != nil {
			return nil, err
		}

		if _, err := s.routingRepo.Append(txCtx, routinglog.New(
			conv.TenantID(),
			conv.ID(),
			string(conversation.MethodTransfer),
			routinglog.WithSelectedAgent(input.ToAgentID, 1),
		)); err != nil {
			return nil, err
		}

		return &transferOutcome{record: completed, conv: conv}, nil
	})
	if err != nil {
		return nil, err
	}
	if outcome.rejected {
		return outcome.record, transfer.ErrRejected
	}
	s.publisher.Publish(conversation.NewTransferredEvent(outcome.conv, input.FromAgentID, input.ToAgentID, input.Reason))
	return outcome.record, nil
}

// EscalateConversation flags an active conversation for supervisor
// attention. The agent keeps it; escalation changes handling, not
// ownership.
func (s *LiveChatService) EscalateConversation(ctx context.Context, conversationID uuid.UUID, escalatedBy string) (conversation.Conversation, error) {
	escalated, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (conversation.Conversation, error) {
		conv, err := s.conversationRepo.GetByID(txCtx, conversationID)
		if err != nil {
			return nil, err
		}
		previous := conv.Status()
		conv, err = conv.Escalate(time.Now())
		if err != nil {
			return nil, err
		}
		return s.conversationRepo.Update(txCtx, conv, previous)
	})
	if err != nil {
		return nil, err
	}
	s.publisher.Publish(conversation.NewEscalatedEvent(escalated, escalatedBy))
	return escalated, nil
}

// QueueStatus reports the live queue for dashboards.
func (s *LiveChatService) QueueStatus(ctx context.Context) (*QueueStatus, error) {
	return s.queueService.Status(ctx)
}

// RoutingHistory returns every routing decision made for a conversation.
func (s *LiveChatService) RoutingHistory(ctx context.Context, conversationID uuid.UUID) ([]routinglog.Entry, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]routinglog.Entry, error) {
		return s.routingRepo.ListByConversation(txCtx, conversationID)
	})
}

// TransferHistory returns a conversation's transfer records, rejected ones
// included.
func (s *LiveChatService) TransferHistory(ctx context.Context, conversationID uuid.UUID) ([]transfer.Transfer, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]transfer.Transfer, error) {
		return s.transferRepo.ListByConversation(txCtx, conversationID)
	})
}

// Settings returns the tenant's live-chat configuration, defaults when
// none has been saved yet.
func (s *LiveChatService) Settings(ctx context.Context) (chatsettings.Settings, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (chatsettings.Settings, error) {
		return s.settingsRepo.Get(txCtx)
	})
}

func (s *LiveChatService) SaveSettings(ctx context.Context, settings chatsettings.Settings) (chatsettings.Settings, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (chatsettings.Settings, error) {
		return s.settingsRepo.Save(txCtx, settings)
	})
}

// recordTagOutcome folds the closed conversation into the handling agent's
// per-tag statistics, which the skills-based scorer reads on the next
// assignment. A closure without an explicit resolution counts as resolved.
func (s *LiveChatService) recordTagOutcome(ctx context.Context, agentID uuid.UUID, conv conversation.Conversation) error {
	if len(conv.SkillsRequired()) == 0 {
		return nil
	}
	a, err := s.agentRepo.GetByID(ctx, agentID)
	if err != nil {
		return err
	}
	resolved := conv.ResolutionStatus() == "" || conv.ResolutionStatus() == "resolved"
	_, err = s.agentRepo.Update(ctx, a.RecordOutcome(conv.SkillsRequired(), resolved, conv.Satisfaction()))
	return err
}

func (s *LiveChatService) recordMessage(ctx context.Context, conversationID uuid.UUID, record func(conversation.Conversation) conversation.Conversation) (conversation.Conversation, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (conversation.Conversation, error) {
		conv, err := s.conversationRepo.GetByID(txCtx, conversationID)
		if err != nil {
			return nil, err
		}
		if conv.Status().IsTerminal() {
			return nil, conversation.ErrInvalidTransition
		}
		return s.conversationRepo.Update(txCtx, record(conv), conv.Status())
	})
}

func intRef(v int) *int { return &v }
