package agentsession

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("agent session not found")

// Repository stores ephemeral login sessions (who is connected from where).
// Backed by an expiring store; a session missing from the store means the
// agent dropped without logging out.
type Repository interface {
	Save(ctx context.Context, s Session) (Session, error)
	GetByAgentID(ctx context.Context, agentID uuid.UUID) (Session, error)
	Delete(ctx context.Context, agentID uuid.UUID) error
	List(ctx context.Context) ([]Session, error)
}

type Session interface {
	SessionID() uuid.UUID
	AgentID() uuid.UUID
	TenantID() uuid.UUID
	LoginAt() time.Time
	LastActivityAt() time.Time
	IPAddress() string
	UserAgent() string

	Touch(at time.Time) Session
}

type session struct {
	sessionID      uuid.UUID
	agentID        uuid.UUID
	tenantID       uuid.UUID
	loginAt        time.Time
	lastActivityAt time.Time
	ipAddress      string
	userAgent      string
}

func New(tenantID, agentID uuid.UUID, opts ...Option) Session {
	now := time.Now()
	s := &session{
		sessionID:      uuid.New(),
		agentID:        agentID,
		tenantID:       tenantID,
		loginAt:        now,
		lastActivityAt: now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Option func(*session)

func WithSessionID(id uuid.UUID) Option {
	return func(s *session) {
		if id != uuid.Nil {
			s.sessionID = id
		}
	}
}

func WithLoginAt(t time.Time) Option {
	return func(s *session) {
		if !t.IsZero() {
			s.loginAt = t
		}
	}
}

func WithLastActivityAt(t time.Time) Option {
	return func(s *session) {
		if !t.IsZero() {
			s.lastActivityAt = t
		}
	}
}

func WithIPAddress(ip string) Option {
	return func(s *session) { s.ipAddress = ip }
}

func WithUserAgent(ua string) Option {
	return func(s *session) { s.userAgent = ua }
}

func (s *session) SessionID() uuid.UUID      { return s.sessionID }
func (s *session) AgentID() uuid.UUID        { return s.agentID }
func (s *session) TenantID() uuid.UUID       { return s.tenantID }
func (s *session) LoginAt() time.Time        { return s.loginAt }
func (s *session) LastActivityAt() time.Time { return s.lastActivityAt }
func (s *session) IPAddress() string         { return s.ipAddress }
func (s *session) UserAgent() string         { return s.userAgent }

func (s *session) Touch(at time.Time) Session {
	s.lastActivityAt = at
	return s
}
