package chatsettings

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AssignmentMethod string

const (
	MethodRoundRobin  AssignmentMethod = "round_robin"
	MethodLeastBusy   AssignmentMethod = "least_busy"
	MethodSkillsBased AssignmentMethod = "skills_based"
)

const (
	DefaultMaxQueueSize     = 50
	DefaultMaxChatsPerAgent = 3
	// DefaultAvgHandleTime seeds the wait estimate until enough closed
	// conversations exist to compute a rolling average.
	DefaultAvgHandleTime = 5 * time.Minute
)

// Repository supplies the per-tenant configuration snapshot. Get never
// fails on a missing row; it falls back to defaults.
type Repository interface {
	Get(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) (Settings, error)
	// RecordHandleTime folds a closed conversation's duration into the
	// tenant's rolling average handle time.
	RecordHandleTime(ctx context.Context, duration time.Duration) error
}

type Settings interface {
	TenantID() uuid.UUID
	IsEnabled() bool
	MaxQueueSize() int
	AssignmentMethod() AssignmentMethod
	MaxChatsPerAgent() int
	AvgHandleTime() time.Duration
	HandledCount() int
	BusinessHoursEnabled() bool
	Timezone() string

	WithAvgHandleTime(avg time.Duration, handled int) Settings
}

type settings struct {
	tenantID             uuid.UUID
	isEnabled            bool
	maxQueueSize         int
	assignmentMethod     AssignmentMethod
	maxChatsPerAgent     int
	avgHandleTime        time.Duration
	handledCount         int
	businessHoursEnabled bool
	timezone             string
}

func New(tenantID uuid.UUID, opts ...Option) Settings {
	s := &settings{
		tenantID:         tenantID,
		isEnabled:        true,
		maxQueueSize:     DefaultMaxQueueSize,
		assignmentMethod: MethodSkillsBased,
		maxChatsPerAgent: DefaultMaxChatsPerAgent,
		avgHandleTime:    DefaultAvgHandleTime,
		timezone:         "UTC",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type Option func(*settings)

func WithEnabled(v bool) Option {
	return func(s *settings) { s.isEnabled = v }
}

func WithMaxQueueSize(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.maxQueueSize = n
		}
	}
}

func WithAssignmentMethod(m AssignmentMethod) Option {
	return func(s *settings) { s.assignmentMethod = m }
}

func WithMaxChatsPerAgent(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxChatsPerAgent = n
		}
	}
}

func WithAvgHandleTime(d time.Duration, handled int) Option {
	return func(s *settings) {
		if d > 0 {
			s.avgHandleTime = d
		}
		s.handledCount = handled
	}
}

func WithBusinessHours(enabled bool, timezone string) Option {
	return func(s *settings) {
		s.businessHoursEnabled = enabled
		if timezone != "" {
			s.timezone = timezone
		}
	}
}

func (s *settings) TenantID() uuid.UUID                { return s.tenantID }
func (s *settings) IsEnabled() bool                    { return s.isEnabled }
func (s *settings) MaxQueueSize() int                  { return s.maxQueueSize }
func (s *settings) AssignmentMethod() AssignmentMethod { return s.assignmentMethod }
func (s *settings) MaxChatsPerAgent() int              { return s.maxChatsPerAgent }
func (s *settings) AvgHandleTime() time.Duration       { return s.avgHandleTime }
func (s *settings) HandledCount() int                  { return s.handledCount }
func (s *settings) BusinessHoursEnabled() bool         { return s.businessHoursEnabled }
func (s *settings) Timezone() string                   { return s.timezone }

func (s *settings) WithAvgHandleTime(avg time.Duration, handled int) Settings {
	s.avgHandleTime = avg
	s.handledCount = handled
	return s
}
