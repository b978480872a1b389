package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agentsession"
	"github.com/omnidesk/omnidesk/modules/livechat/infrastructure/persistence/models"
	"github.com/omnidesk/omnidesk/pkg/composables"
)

// SessionRepository keeps agent login sessions in Redis under
// <prefix>:<tenant>:<agent> with a TTL. An expired key is how a crashed
// or disconnected agent eventually reads as offline.
type SessionRepository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewSessionRepository(client *redis.Client, keyPrefix string, ttl time.Duration) agentsession.Repository {
	return &SessionRepository{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (r *SessionRepository) Save(ctx context.Context, s agentsession.Session) (agentsession.Session, error) {
	m := toDBAgentSession(s)
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal session")
	}
	key := r.key(s.TenantID(), s.AgentID())
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to save session")
	}
	return s, nil
}

func (r *SessionRepository) GetByAgentID(ctx context.Context, agentID uuid.UUID) (agentsession.Session, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := r.client.Get(ctx, r.key(tenantID, agentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, agentsession.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get session")
	}
	return r.unmarshal(payload)
}

func (r *SessionRepository) Delete(ctx context.Context, agentID uuid.UUID) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	if err := r.client.Del(ctx, r.key(tenantID, agentID)).Err(); err != nil {
		return errors.Wrap(err, "failed to delete session")
	}
	return nil
}

func (r *SessionRepository) List(ctx context.Context) ([]agentsession.Session, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	pattern := fmt.Sprintf("%s:%s:*", r.keyPrefix, tenantID.String())

	var sessions []agentsession.Session
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		payload, err := r.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			// Key can expire between SCAN and GET.
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, errors.Wrap(err, "failed to get session")
		}
		s, err := r.unmarshal(payload)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan sessions")
	}
	return sessions, nil
}

func (r *SessionRepository) key(tenantID, agentID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", r.keyPrefix, tenantID.String(), agentID.String())
}

func (r *SessionRepository) unmarshal(payload []byte) (agentsession.Session, error) {
	var m models.AgentSession
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal session")
	}
	return toDomainAgentSession(&m)
}
