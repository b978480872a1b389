package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agentsession"
	"github.com/omnidesk/omnidesk/pkg/composables"
	"github.com/omnidesk/omnidesk/pkg/eventbus"
)

var ErrInvalidAgentStatus = errors.New("invalid agent status")

// PresenceService tracks who is online. The durable status lives on the
// agent row; the login session (where from, last heartbeat) lives in the
// expiring session store.
type PresenceService struct {
	agentRepo   agent.Repository
	sessionRepo agentsession.Repository
	publisher   eventbus.EventBus
}

func NewPresenceService(
	agentRepo agent.Repository,
	sessionRepo agentsession.Repository,
	publisher eventbus.EventBus,
) *PresenceService {
	return &PresenceService{
		agentRepo:   agentRepo,
		sessionRepo: sessionRepo,
		publisher:   publisher,
	}
}

func (s *PresenceService) Agent(ctx context.Context, agentID uuid.UUID) (agent.Agent, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (agent.Agent, error) {
		return s.agentRepo.GetByID(txCtx, agentID)
	})
}

func (s *PresenceService) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]agent.Agent, error) {
		return s.agentRepo.List(txCtx)
	})
}

func (s *PresenceService) ListAvailable(ctx context.Context) ([]agent.Agent, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]agent.Agent, error) {
		return s.agentRepo.ListAvailable(txCtx)
	})
}

func (s *PresenceService) RegisterAgent(ctx context.Context, a agent.Agent) (agent.Agent, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (agent.Agent, error) {
		return s.agentRepo.Create(txCtx, a)
	})
}

func (s *PresenceService) UpdateAgent(ctx context.Context, a agent.Agent) (agent.Agent, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (agent.Agent, error) {
		return s.agentRepo.Update(txCtx, a)
	})
}

// SetStatus transitions the agent's presence. Going online opens a login
// session; going offline closes it. The previous and new statuses are
// published so the assignment side can react.
func (s *PresenceService) SetStatus(ctx context.Context, agentID uuid.UUID, status agent.Status, opts ...agentsession.Option) (agent.Agent, error) {
	if !status.Valid() {
		return nil, ErrInvalidAgentStatus
	}
	var previous agent.Status
	updated, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (agent.Agent, error) {
		a, err := s.agentRepo.GetByID(txCtx, agentID)
		if err != nil {
			return nil, err
		}
		previous = a.Status()
		if err := s.agentRepo.SetStatus(txCtx, agentID, status); err != nil {
			return nil, err
		}
		return a.SetStatus(status), nil
	})
	if err != nil {
		return nil, err
	}

	switch status {
	case agent.StatusOffline:
		if err := s.sessionRepo.Delete(ctx, agentID); err != nil {
			return nil, err
		}
	default:
		if _, err := s.sessionRepo.Save(ctx, agentsession.New(updated.TenantID(), agentID, opts...)); err != nil {
			return nil, err
		}
	}

	if previous != status {
		s.publisher.Publish(agent.NewStatusChangedEvent(agentID, updated.TenantID(), previous, status))
	}
	return updated, nil
}

// Heartbeat refreshes the agent's session TTL and last-seen marker. An
// unknown session means the agent was expired out; the caller should have
// them log in again.
func (s *PresenceService) Heartbeat(ctx context.Context, agentID uuid.UUID) error {
	session, err := s.sessionRepo.GetByAgentID(ctx, agentID)
	if err != nil {
		return err
	}
	if _, err := s.sessionRepo.Save(ctx, session.Touch(time.Now())); err != nil {
		return err
	}
	return composables.InTenantTx(ctx, func(txCtx context.Context) error {
		a, err := s.agentRepo.GetByID(txCtx, agentID)
		if err != nil {
			return err
		}
		return s.agentRepo.SetStatus(txCtx, agentID, a.Status())
	})
}

// Sessions lists the tenant's live login sessions.
func (s *PresenceService) Sessions(ctx context.Context) ([]agentsession.Session, error) {
	return s.sessionRepo.List(ctx)
}
