package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/chatsettings"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/queueentry"
	"github.com/omnidesk/omnidesk/pkg/composables"
	"github.com/omnidesk/omnidesk/pkg/eventbus"
)

// QueueService owns the per-tenant waiting line. Positions are dense 1..N;
// every mutation happens under the tenant's queue lock so concurrent
// enqueues and dequeues never leave gaps or duplicates.
type QueueService struct {
	queueRepo    queueentry.Repository
	agentRepo    agent.Repository
	settingsRepo chatsettings.Repository
	publisher    eventbus.EventBus
}

func NewQueueService(
	queueRepo queueentry.Repository,
	agentRepo agent.Repository,
	settingsRepo chatsettings.Repository,
	publisher eventbus.EventBus,
) *QueueService {
	return &QueueService{
		queueRepo:    queueRepo,
		agentRepo:    agentRepo,
		settingsRepo: settingsRepo,
		publisher:    publisher,
	}
}

// QueueStatus is a point-in-time view of the tenant's queue.
type QueueStatus struct {
	Depth           int
	MaxSize         int
	AvailableAgents int
	Entries         []queueentry.QueueEntry
}

// Enqueue places the conversation into the queue at its priority slot:
// after the last entry of equal or higher priority, before the first of
// lower. Equal priorities keep arrival order.
func (s *QueueService) Enqueue(ctx context.Context, conv conversation.Conversation, opts ...queueentry.Option) (queueentry.QueueEntry, error) {
	inserted, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (queueentry.QueueEntry, error) {
		return s.enqueue(txCtx, conv, opts...)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(conversation.NewQueuedEvent(conv, inserted.Position()))
	return inserted, nil
}

// enqueue is Enqueue without the transaction and event boundary, for
// callers composing a larger unit of work. They publish the queued event
// themselves once their transaction commits.
func (s *QueueService) enqueue(txCtx context.Context, conv conversation.Conversation, opts ...queueentry.Option) (queueentry.QueueEntry, error) {
	entry := queueentry.New(
		conv.TenantID(),
		conv.ID(),
		append([]queueentry.Option{
			queueentry.WithPriority(int(conv.Priority())),
			queueentry.WithQueuedAt(conv.QueuedAt()),
		}, opts...)...,
	)

	if err := s.queueRepo.Lock(txCtx); err != nil {
		return nil, err
	}
	settings, err := s.settingsRepo.Get(txCtx)
	if err != nil {
		return nil, err
	}
	count, err := s.queueRepo.Count(txCtx)
	if err != nil {
		return nil, err
	}
	if count >= settings.MaxQueueSize() {
		return nil, queueentry.ErrQueueFull
	}

	position, err := s.insertionPoint(txCtx, entry)
	if err != nil {
		return nil, err
	}
	wait, err := s.estimateWait(txCtx, position, settings)
	if err != nil {
		return nil, err
	}
	return s.queueRepo.InsertAt(txCtx, entry.WithEstimatedWait(int(wait/time.Second)), position)
}

// Dequeue removes the conversation from the queue, closing the position
// gap. Reports false when it was not queued (already assigned or
// abandoned by a concurrent caller).
func (s *QueueService) Dequeue(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (bool, error) {
		if err := s.queueRepo.Lock(txCtx); err != nil {
			return false, err
		}
		return s.queueRepo.Remove(txCtx, conversationID)
	})
}

// PeekNext returns the highest-priority, longest-waiting entry whose skill
// requirements the given skills satisfy, without removing it. ErrNotFound
// means nothing in the queue matches.
func (s *QueueService) PeekNext(ctx context.Context, agentSkills []string) (queueentry.QueueEntry, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (queueentry.QueueEntry, error) {
		entries, err := s.queueRepo.List(txCtx)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.MatchesSkills(agentSkills) {
				return entry, nil
			}
		}
		return nil, queueentry.ErrNotFound
	})
}

// Entry returns the conversation's live queue entry.
func (s *QueueService) Entry(ctx context.Context, conversationID uuid.UUID) (queueentry.QueueEntry, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (queueentry.QueueEntry, error) {
		return s.queueRepo.GetByConversationID(txCtx, conversationID)
	})
}

func (s *QueueService) Status(ctx context.Context) (*QueueStatus, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*QueueStatus, error) {
		settings, err := s.settingsRepo.Get(txCtx)
		if err != nil {
			return nil, err
		}
		entries, err := s.queueRepo.List(txCtx)
		if err != nil {
			return nil, err
		}
		available, err := s.agentRepo.ListAvailable(txCtx)
		if err != nil {
			return nil, err
		}
		return &QueueStatus{
			Depth:           len(entries),
			MaxSize:         settings.MaxQueueSize(),
			AvailableAgents: len(available),
			Entries:         entries,
		}, nil
	})
}

// EstimateWait projects how long a customer at the given position waits:
// position times the tenant's rolling average handle time, divided across
// the agents currently able to take chats.
func (s *QueueService) EstimateWait(ctx context.Context, position int) (time.Duration, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (time.Duration, error) {
		settings, err := s.settingsRepo.Get(txCtx)
		if err != nil {
			return 0, err
		}
		return s.estimateWait(txCtx, position, settings)
	})
}

func (s *QueueService) estimateWait(ctx context.Context, position int, settings chatsettings.Settings) (time.Duration, error) {
	available, err := s.agentRepo.ListAvailable(ctx)
	if err != nil {
		return 0, err
	}
	agents := len(available)
	if agents < 1 {
		agents = 1
	}
	return time.Duration(position) * settings.AvgHandleTime() / time.Duration(agents), nil
}

// insertionPoint finds where the entry belongs in the current ordering.
// Callers hold the queue lock.
func (s *QueueService) insertionPoint(ctx context.Context, entry queueentry.QueueEntry) (int, error) {
	entries, err := s.queueRepo.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, existing := range entries {
		if queueentry.Less(entry, existing) {
			return existing.Position(), nil
		}
	}
	return len(entries) + 1, nil
}
