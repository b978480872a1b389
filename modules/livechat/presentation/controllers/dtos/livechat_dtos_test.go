package dtos_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/chatsettings"
	"github.com/omnidesk/omnidesk/modules/livechat/presentation/controllers/dtos"
)

func TestStartConversationDTO_Validation(t *testing.T) {
	t.Parallel()

	dto := &dtos.StartConversationDTO{}
	verrs, ok := dto.Ok()
	require.False(t, ok)
	assert.Contains(t, verrs, "CustomerIdentifier")

	dto = &dtos.StartConversationDTO{
		CustomerIdentifier: "visitor-1",
		CustomerEmail:      "not-an-email",
	}
	verrs, ok = dto.Ok()
	require.False(t, ok)
	assert.Contains(t, verrs, "CustomerEmail")

	dto = &dtos.StartConversationDTO{
		CustomerIdentifier: "visitor-1",
		Priority:           "urgent",
	}
	_, ok = dto.Ok()
	require.True(t, ok)
	assert.Equal(t, conversation.PriorityUrgent, dto.ToPriority())
}

func TestStartConversationDTO_PriorityDefaultsToNormal(t *testing.T) {
	t.Parallel()

	dto := &dtos.StartConversationDTO{CustomerIdentifier: "visitor-1"}
	assert.Equal(t, conversation.PriorityNormal, dto.ToPriority())
}

func TestStartConversationDTO_PreferredAgentID(t *testing.T) {
	t.Parallel()

	id := uuid.New().String()
	dto := &dtos.StartConversationDTO{CustomerIdentifier: "v", PreferredAgentID: &id}
	got := dto.ToPreferredAgentID()
	require.NotNil(t, got)
	assert.Equal(t, id, got.String())

	dto.PreferredAgentID = nil
	assert.Nil(t, dto.ToPreferredAgentID())
}

func TestCloseConversationDTO_SatisfactionBounds(t *testing.T) {
	t.Parallel()

	six := 6
	dto := &dtos.CloseConversationDTO{ClosedBy: "agent", Satisfaction: &six}
	verrs, ok := dto.Ok()
	require.False(t, ok)
	assert.Contains(t, verrs, "Satisfaction")

	five := 5
	dto.Satisfaction = &five
	_, ok = dto.Ok()
	assert.True(t, ok)
}

func TestSaveSettingsDTO_ApplyPreservesRollingAverage(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	current := chatsettings.New(
		tenantID,
		chatsettings.WithAvgHandleTime(7*time.Minute, 12),
	)

	dto := &dtos.SaveSettingsDTO{
		MaxQueueSize:     10,
		AssignmentMethod: "least_busy",
	}
	_, ok := dto.Ok()
	require.True(t, ok)

	updated := dto.Apply(current)
	assert.Equal(t, tenantID, updated.TenantID())
	assert.Equal(t, 10, updated.MaxQueueSize())
	assert.Equal(t, chatsettings.MethodLeastBusy, updated.AssignmentMethod())
	assert.Equal(t, 7*time.Minute, updated.AvgHandleTime())
	assert.Equal(t, 12, updated.HandledCount())
	// Untouched fields keep their current values.
	assert.Equal(t, current.MaxChatsPerAgent(), updated.MaxChatsPerAgent())
}

func TestAgentStatusDTO_RejectsUnknownStatus(t *testing.T) {
	t.Parallel()

	dto := &dtos.AgentStatusDTO{Status: "sleeping"}
	verrs, ok := dto.Ok()
	require.False(t, ok)
	assert.Contains(t, verrs, "Status")
}

func TestSaveAgentDTO_ToEntity(t *testing.T) {
	t.Parallel()

	autoAssign := false
	dto := &dtos.SaveAgentDTO{
		Email:              "a@example.com",
		DisplayName:        "Agent A",
		MaxConcurrentChats: 5,
		AcceptsOverflow:    true,
		AutoAssign:         &autoAssign,
		Tags: []dtos.AgentTagDTO{
			{Name: "billing", Proficiency: 0.9},
		},
	}
	_, ok := dto.Ok()
	require.True(t, ok)

	tenantID := uuid.New()
	a := dto.ToEntity(tenantID)
	assert.Equal(t, tenantID, a.TenantID())
	assert.Equal(t, "a@example.com", a.Email())
	assert.Equal(t, 5, a.MaxConcurrentChats())
	assert.True(t, a.AcceptsOverflow())
	assert.False(t, a.AutoAssign())
	require.Len(t, a.Tags(), 1)
	assert.Equal(t, "billing", a.Tags()[0].Name)
}
