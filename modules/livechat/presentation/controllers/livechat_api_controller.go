package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agentsession"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/queueentry"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/transfer"
	"github.com/omnidesk/omnidesk/modules/livechat/presentation/controllers/dtos"
	"github.com/omnidesk/omnidesk/modules/livechat/services"
	"github.com/omnidesk/omnidesk/pkg/application"
	"github.com/omnidesk/omnidesk/pkg/composables"
	"github.com/omnidesk/omnidesk/pkg/httpapi"
	"github.com/omnidesk/omnidesk/pkg/middleware"
)

type LiveChatAPIController struct {
	app       application.Application
	livechat  *services.LiveChatService
	presence  *services.PresenceService
	apiPrefix string
}

func NewLiveChatAPIController(app application.Application) application.Controller {
	return &LiveChatAPIController{
		app:       app,
		livechat:  app.Service(services.LiveChatService{}).(*services.LiveChatService),
		presence:  app.Service(services.PresenceService{}).(*services.PresenceService),
		apiPrefix: "/livechat/api",
	}
}

func (c *LiveChatAPIController) Key() string {
	return c.apiPrefix
}

func (c *LiveChatAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()
	api.Use(middleware.RequireTenant())

	api.HandleFunc("/conversations", c.StartConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}", c.GetConversation).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", c.RecordMessage).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}:close", c.CloseConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}:abandon", c.AbandonConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}:transfer", c.TransferConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}:escalate", c.EscalateConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/routing", c.RoutingHistory).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/transfers", c.TransferHistory).Methods(http.MethodGet)

	api.HandleFunc("/queue", c.QueueStatus).Methods(http.MethodGet)

	api.HandleFunc("/agents", c.RegisterAgent).Methods(http.MethodPost)
	api.HandleFunc("/agents", c.ListAgents).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", c.GetAgent).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/status", c.SetAgentStatus).Methods(http.MethodPost)
	api.HandleFunc("/agents/{id}:accept-next", c.AcceptNext).Methods(http.MethodPost)
	api.HandleFunc("/agents/{id}:peek-next", c.PeekNext).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/heartbeat", c.Heartbeat).Methods(http.MethodPost)
	api.HandleFunc("/sessions", c.ListSessions).Methods(http.MethodGet)

	api.HandleFunc("/settings", c.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", c.SaveSettings).Methods(http.MethodPut)
}

type assignmentResponse struct {
	Conversation *dtos.ConversationResponse `json:"conversation"`
	Agent        *dtos.AgentResponse        `json:"agent"`
	Method       string                     `json:"method"`
	Confidence   float64                    `json:"confidence"`
}

func newAssignmentResponse(r *services.AssignmentResult) *assignmentResponse {
	if r == nil {
		return nil
	}
	return &assignmentResponse{
		Conversation: dtos.NewConversationResponse(r.Conversation),
		Agent:        dtos.NewAgentResponse(r.Agent),
		Method:       string(r.Method),
		Confidence:   r.Confidence,
	}
}

func (c *LiveChatAPIController) StartConversation(w http.ResponseWriter, r *http.Request) {
	var dto dtos.StartConversationDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if verrs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteValidationErrors(w, verrs)
		return
	}

	result, err := c.livechat.StartConversation(r.Context(), services.StartConversationInput{
		CustomerIdentifier: dto.CustomerIdentifier,
		CustomerName:       dto.CustomerName,
		CustomerEmail:      dto.CustomerEmail,
		ChatbotSessionID:   dto.ChatbotSessionID,
		HandoffReason:      dto.HandoffReason,
		OriginalQuestion:   dto.OriginalQuestion,
		Priority:           dto.ToPriority(),
		SkillsRequired:     dto.SkillsRequired,
		PreferredAgentID:   dto.ToPreferredAgentID(),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	type startResponse struct {
		Conversation *dtos.ConversationResponse `json:"conversation"`
		QueueEntry   *dtos.QueueEntryResponse   `json:"queue_entry,omitempty"`
		Assignment   *assignmentResponse        `json:"assignment,omitempty"`
	}
	resp := startResponse{
		Conversation: dtos.NewConversationResponse(result.Conversation),
		Assignment:   newAssignmentResponse(result.Assignment),
	}
	if result.Assignment == nil && result.Entry != nil {
		resp.QueueEntry = dtos.NewQueueEntryResponse(result.Entry)
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, resp)
}

func (c *LiveChatAPIController) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	conv, err := c.livechat.Conversation(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.NewConversationResponse(conv))
}

func (c *LiveChatAPIController) RecordMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var dto dtos.MessageDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if verrs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteValidationErrors(w, verrs)
		return
	}

	var (
		conv conversation.Conversation
		err  error
	)
	if dto.Sender == "agent" {
		conv, err = c.livechat.AgentMessage(r.Context(), id)
	} else {
		conv, err = c.livechat.CustomerMessage(r.Context(), id)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.NewConversationResponse(conv))
}

func (c *LiveChatAPIController) CloseConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var dto dtos.CloseConversationDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if verrs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteValidationErrors(w, verrs)
		return
	}

	conv, err := c.livechat.CloseConversation(r.Context(), services.CloseInput{
		ConversationID: id,
		ClosedBy:       dto.ClosedBy,
		Reason:         dto.Reason,
		Resolution:     dto.Resolution,
		Satisfaction:   dto.Satisfaction,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.NewConversationResponse(conv))
}

func (c *LiveChatAPIController) AbandonConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	conv, err := c.livechat.AbandonConversation(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.NewConversationResponse(conv))
}

func (c *LiveChatAPIController) TransferConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var dto dtos.TransferDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if verrs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteValidationErrors(w, verrs)
		return
	}

	from, err := uuid.Parse(dto.FromAgentID)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_AGENT_ID", "from_agent_id is not a uuid", nil)
		return
	}
	to, err := uuid.Parse(dto.ToAgentID)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_AGENT_ID", "to_agent_id is not a uuid", nil)
		return
	}

	record, err := c.livechat.TransferConversation(r.Context(), services.TransferInput{
		ConversationID:      id,
		FromAgentID:         from,
		ToAgentID:           to,
		Reason:              dto.Reason,
		Notes:               dto.Notes,
		ConversationSummary: dto.ConversationSummary,
		CustomerContext:     dto.CustomerContext,
	})
	if err != nil {
		// A rejected transfer still produced a record worth returning.
		if errors.Is(err, transfer.ErrRejected) && record != nil {
			_ = httpapi.WriteJSON(w, http.StatusConflict, dtos.NewTransferResponse(record))
			return
		}
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.NewTransferResponse(record))
}

func (c *LiveChatAPIController) EscalateConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var dto dtos.EscalateDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if verrs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteValidationErrors(w, verrs)
		return
	}
	conv, err := c.livechat.EscalateConversation(r.Context(), id, dto.EscalatedBy)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.NewConversationResponse(conv))
}

func (c *LiveChatAPIController) RoutingHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	entries, err := c.livechat.RoutingHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]*dtos.RoutingEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dtos.NewRoutingEntryResponse(e))
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}

func (c *LiveChatAPIController) TransferHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	records, err := c.livechat.TransferHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]*dtos.TransferResponse, 0, len(records))
	for _, t := range records {
		out = append(out, dtos.NewTransferResponse(t))
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}

func (c *LiveChatAPIController) QueueStatus(w http.ResponseWriter, r *http.Request) {
	status, err := c.livechat.QueueStatus(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	type queueResponse struct {
		Depth           int                        `json:"depth"`
		MaxSize         int                        `json:"max_size"`
		AvailableAgents int                        `json:"available_agents"`
		Entries         []*dtos.QueueEntryResponse `json:"entries"`
	}
	entries := make([]*dtos.QueueEntryResponse, 0, len(status.Entries))
	for _, e := range status.Entries {
		entries = append(entries, dtos.NewQueueEntryResponse(e))
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, queueResponse{
		Depth:           status.Depth,
		MaxSize:         status.MaxSize,
		AvailableAgents: status.AvailableAgents,
		Entries:         entries,
	})
}

func (c *LiveChatAPIController) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	var dto dtos.SaveAgentDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if verrs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteValidationErrors(w, verrs)
		return
	}
	tenantID, err := composables.UseTenantID(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	created, err := c.presence.RegisterAgent(r.Context(), dto.ToEntity(tenantID))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, dtos.NewAgentResponse(created))
}

func (c *LiveChatAPIController) ListAgents(w http.ResponseWriter, r *http.Request) {
	var (
		agents []agent.Agent
		err    error
	)
	if r.URL.Query().Get("available") == "true" {
		agents, err = c.presence.ListAvailable(r.Context())
	} else {
		agents, err = c.presence.ListAgents(r.Context())
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]*dtos.AgentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, dtos.NewAgentResponse(a))
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}

func (c *LiveChatAPIController) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	a, err := c.presence.Agent(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.NewAgentResponse(a))
}

func (c *LiveChatAPIController) SetAgentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var dto dtos.AgentStatusDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if verrs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteValidationErrors(w, verrs)
		return
	}

	var opts []agentsession.Option
	if dto.IPAddress != "" {
		opts = append(opts, agentsession.WithIPAddress(dto.IPAddress))
	}
	if dto.UserAgent != "" {
		opts = append(opts, agentsession.WithUserAgent(dto.UserAgent))
	}

	a, assignments, err := c.livechat.AgentStatusChanged(r.Context(), id, agent.Status(dto.Status), opts...)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	type statusResponse struct {
		Agent       *dtos.AgentResponse   `json:"agent"`
		Assignments []*assignmentResponse `json:"assignments,omitempty"`
	}
	resp := statusResponse{Agent: dtos.NewAgentResponse(a)}
	for _, assignment := range assignments {
		resp.Assignments = append(resp.Assignments, newAssignmentResponse(assignment))
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (c *LiveChatAPIController) AcceptNext(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	result, err := c.livechat.AgentAcceptsNext(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if result == nil {
		_ = httpapi.WriteJSON(w, http.StatusNoContent, nil)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, newAssignmentResponse(result))
}

// PeekNext previews the entry AcceptNext would hand this agent, without
// mutating the queue.
func (c *LiveChatAPIController) PeekNext(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	entry, err := c.livechat.PeekNextForAgent(r.Context(), id)
	if err != nil {
		if errors.Is(err, queueentry.ErrNotFound) {
			_ = httpapi.WriteJSON(w, http.StatusNoContent, nil)
			return
		}
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.NewQueueEntryResponse(entry))
}

func (c *LiveChatAPIController) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := c.presence.Heartbeat(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusNoContent, nil)
}

func (c *LiveChatAPIController) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := c.presence.Sessions(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]*dtos.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, dtos.NewSessionResponse(s))
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, out)
}

func (c *LiveChatAPIController) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := c.livechat.Settings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.NewSettingsResponse(settings))
}

func (c *LiveChatAPIController) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var dto dtos.SaveSettingsDTO
	if !decodeBody(w, r, &dto) {
		return
	}
	if verrs, ok := dto.Ok(); !ok {
		_ = httpapi.WriteValidationErrors(w, verrs)
		return
	}
	current, err := c.livechat.Settings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	saved, err := c.livechat.SaveSettings(r.Context(), dto.Apply(current))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, dtos.NewSettingsResponse(saved))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON", nil)
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", name+" is not a uuid", nil)
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps domain sentinels onto API statuses. Anything
// unrecognized is a 500 and gets logged with its cause.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, conversation.ErrNotFound),
		errors.Is(err, agent.ErrNotFound),
		errors.Is(err, queueentry.ErrNotFound),
		errors.Is(err, transfer.ErrNotFound),
		errors.Is(err, agentsession.ErrNotFound):
		_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, queueentry.ErrQueueFull):
		_ = httpapi.WriteError(w, http.StatusTooManyRequests, "QUEUE_FULL", err.Error(), nil)
	case errors.Is(err, conversation.ErrAlreadyAssigned),
		errors.Is(err, conversation.ErrInvalidTransition),
		errors.Is(err, conversation.ErrStaleStatus),
		errors.Is(err, transfer.ErrRejected):
		_ = httpapi.WriteError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, services.ErrChatDisabled):
		_ = httpapi.WriteError(w, http.StatusForbidden, "CHAT_DISABLED", err.Error(), nil)
	case errors.Is(err, services.ErrInvalidAgentStatus):
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_STATUS", err.Error(), nil)
	case errors.Is(err, composables.ErrNoTenant):
		_ = httpapi.WriteError(w, http.StatusBadRequest, "TENANT_REQUIRED", err.Error(), nil)
	default:
		composables.UseLogger(r.Context()).WithError(err).Error("live chat request failed")
		_ = httpapi.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}
