package services

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/modules/livechat/domain/aggregates/conversation"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/agent"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/chatsettings"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/queueentry"
	"github.com/omnidesk/omnidesk/modules/livechat/domain/entities/routinglog"
	"github.com/omnidesk/omnidesk/pkg/composables"
	"github.com/omnidesk/omnidesk/pkg/eventbus"
)

// Scoring weights for skills-based routing. Tag match dominates, current
// load keeps busy agents from over-accumulating, and the preferred-agent
// bonus breaks ties toward an explicitly requested agent.
const (
	tagMatchWeight = 0.55
	loadWeight     = 0.30
	preferredBonus = 0.15

	// Within a single tag, how much the agent knows the skill versus how
	// they have performed on it historically.
	proficiencyWeight  = 0.4
	successRateWeight  = 0.3
	satisfactionWeight = 0.3

	// Below this total score the skills-based pick is not trusted and
	// routing falls back to round-robin.
	confidenceThreshold = 0.3
)

const (
	fallbackNoAgents      = "no_agent_available"
	fallbackLowConfidence = "low_confidence"
	fallbackNoSkillMatch  = "no_skill_match"
)

// AssignmentResult reports one completed assignment.
type AssignmentResult struct {
	Conversation conversation.Conversation
	Agent        agent.Agent
	Method       conversation.AssignmentMethod
	Confidence   float64
}

// RoutingService picks an agent for a queued conversation and performs the
// dequeue and activation as one atomic step. Every decision, including
// failures to find an agent, is appended to the routing log.
type RoutingService struct {
	conversationRepo conversation.Repository
	agentRepo        agent.Repository
	queueRepo        queueentry.Repository
	routingRepo      routinglog.Repository
	settingsRepo     chatsettings.Repository
	publisher        eventbus.EventBus
}

func NewRoutingService(
	conversationRepo conversation.Repository,
	agentRepo agent.Repository,
	queueRepo queueentry.Repository,
	routingRepo routinglog.Repository,
	settingsRepo chatsettings.Repository,
	publisher eventbus.EventBus,
) *RoutingService {
	return &RoutingService{
		conversationRepo: conversationRepo,
		agentRepo:        agentRepo,
		queueRepo:        queueRepo,
		routingRepo:      routingRepo,
		settingsRepo:     settingsRepo,
		publisher:        publisher,
	}
}

// AssignConversation routes one queued conversation. A nil result with a
// nil error means no agent can take it right now; the conversation stays
// queued and the decision is logged.
func (s *RoutingService) AssignConversation(ctx context.Context, conversationID uuid.UUID) (*AssignmentResult, error) {
	result, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*AssignmentResult, error) {
		return s.assignQueued(txCtx, conversationID)
	})
	if err != nil {
		return nil, err
	}
	if result != nil {
		s.publisher.Publish(conversation.NewAssignedEvent(result.Conversation, result.Agent.ID(), result.Method))
	}
	return result, nil
}

// assignQueued is AssignConversation without the transaction and event
// boundary, for callers composing a larger unit of work. They publish the
// assigned event themselves once their transaction commits.
func (s *RoutingService) assignQueued(txCtx context.Context, conversationID uuid.UUID) (*AssignmentResult, error) {
	if err := s.queueRepo.Lock(txCtx); err != nil {
		return nil, err
	}
	entry, err := s.queueRepo.GetByConversationID(txCtx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.assignEntry(txCtx, entry, nil)
}

// AssignNext hands the agent the first queued conversation they qualify
// for. Entries whose skill requirements the agent cannot meet are skipped;
// a conversation snatched by a concurrent assignment is skipped too.
func (s *RoutingService) AssignNext(ctx context.Context, agentID uuid.UUID) (*AssignmentResult, error) {
	result, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*AssignmentResult, error) {
		if err := s.queueRepo.Lock(txCtx); err != nil {
			return nil, err
		}
		a, err := s.agentRepo.GetByID(txCtx, agentID)
		if err != nil {
			return nil, err
		}
		settings, err := s.settingsRepo.Get(txCtx)
		if err != nil {
			return nil, err
		}
		// A direct pull is the agent's own decision, so their overflow
		// slot counts.
		if !s.canTake(a, settings, true) {
			return nil, nil
		}
		entries, err := s.queueRepo.List(txCtx)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if !entry.MatchesSkills(a.SkillNames()) {
				continue
			}
			res, err := s.execute(txCtx, entry, a, conversation.MethodDirect, 1, nil)
			if err != nil {
				if errors.Is(err, conversation.ErrAlreadyAssigned) {
					continue
				}
				return nil, err
			}
			return res, nil
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	if result != nil {
		s.publisher.Publish(conversation.NewAssignedEvent(result.Conversation, result.Agent.ID(), result.Method))
	}
	return result, nil
}

// DrainQueue walks the queue in order and assigns everything that can be
// assigned. Called when an agent comes online or frees capacity.
func (s *RoutingService) DrainQueue(ctx context.Context) ([]*AssignmentResult, error) {
	results, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]*AssignmentResult, error) {
		if err := s.queueRepo.Lock(txCtx); err != nil {
			return nil, err
		}
		entries, err := s.queueRepo.List(txCtx)
		if err != nil {
			return nil, err
		}
		var assigned []*AssignmentResult
		for _, entry := range entries {
			res, err := s.assignEntry(txCtx, entry, nil)
			if err != nil {
				if errors.Is(err, conversation.ErrAlreadyAssigned) {
					continue
				}
				return nil, err
			}
			if res != nil {
				assigned = append(assigned, res)
			}
		}
		return assigned, nil
	})
	if err != nil {
		return nil, err
	}
	for _, res := range results {
		s.publisher.Publish(conversation.NewAssignedEvent(res.Conversation, res.Agent.ID(), res.Method))
	}
	return results, nil
}

// AssignToAgent routes a queued conversation to one specific agent,
// bypassing scoring. Used for transfer re-queues aimed at a target agent.
func (s *RoutingService) AssignToAgent(ctx context.Context, conversationID, agentID uuid.UUID, method conversation.AssignmentMethod) (*AssignmentResult, error) {
	result, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*AssignmentResult, error) {
		if err := s.queueRepo.Lock(txCtx); err != nil {
			return nil, err
		}
		entry, err := s.queueRepo.GetByConversationID(txCtx, conversationID)
		if err != nil {
			return nil, err
		}
		a, err := s.agentRepo.GetByID(txCtx, agentID)
		if err != nil {
			return nil, err
		}
		settings, err := s.settingsRepo.Get(txCtx)
		if err != nil {
			return nil, err
		}
		if !s.canTake(a, settings, true) {
			return nil, nil
		}
		return s.execute(txCtx, entry, a, method, 1, nil)
	})
	if err != nil {
		return nil, err
	}
	if result != nil {
		s.publisher.Publish(conversation.NewAssignedEvent(result.Conversation, result.Agent.ID(), result.Method))
	}
	return result, nil
}

// assignEntry picks an agent for the entry per the tenant's assignment
// method and executes the assignment. Callers hold the queue lock.
// excluded agents (the transferring agent, for re-queues) never win.
func (s *RoutingService) assignEntry(ctx context.Context, entry queueentry.QueueEntry, excluded *uuid.UUID) (*AssignmentResult, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	candidates, err := s.candidates(ctx, settings, excluded)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		if err := s.logDecision(ctx, entry, string(settings.AssignmentMethod()), nil, 0, nil, fallbackNoAgents); err != nil {
			return nil, err
		}
		return nil, nil
	}

	switch settings.AssignmentMethod() {
	case chatsettings.MethodSkillsBased:
		return s.assignSkillsBased(ctx, entry, candidates)
	case chatsettings.MethodLeastBusy:
		return s.assignLeastBusy(ctx, entry, candidates)
	default:
		picked := pickRoundRobin(candidates)
		return s.execute(ctx, entry, picked, conversation.MethodRoundRobin, 1, nil)
	}
}

func (s *RoutingService) assignSkillsBased(ctx context.Context, entry queueentry.QueueEntry, candidates []agent.Agent) (*AssignmentResult, error) {
	matching := make([]agent.Agent, 0, len(candidates))
	for _, a := range candidates {
		if entry.MatchesSkills(a.SkillNames()) {
			matching = append(matching, a)
		}
	}
	if len(matching) == 0 {
		// Nobody has the required tags; round-robin over everyone who
		// has capacity rather than starving the customer.
		picked := pickRoundRobin(candidates)
		return s.execute(ctx, entry, picked, conversation.MethodFallback, 0, nil, fallbackNoSkillMatch)
	}

	scores := scoreCandidates(entry, matching)
	best := scores[0]
	if best.TotalScore < confidenceThreshold {
		picked := pickRoundRobin(matching)
		return s.execute(ctx, entry, picked, conversation.MethodFallback, best.TotalScore, scores, fallbackLowConfidence)
	}

	var picked agent.Agent
	for _, a := range matching {
		if a.ID() == best.AgentID {
			picked = a
			break
		}
	}
	return s.execute(ctx, entry, picked, conversation.MethodSkillsBased, best.TotalScore, scores)
}

func (s *RoutingService) assignLeastBusy(ctx context.Context, entry queueentry.QueueEntry, candidates []agent.Agent) (*AssignmentResult, error) {
	// ListAvailable orders by load ascending already; keep the ordering
	// contract local so a different repository cannot break it.
	picked := candidates[0]
	for _, a := range candidates[1:] {
		if a.ActiveConversations() < picked.ActiveConversations() {
			picked = a
		}
	}
	confidence := 1 - float64(picked.ActiveConversations())/float64(maxInt(picked.MaxConcurrentChats(), 1))
	return s.execute(ctx, entry, picked, conversation.MethodLeastBusy, confidence, nil)
}

// execute atomically turns a queued conversation into an active one:
// remove from queue, compare-and-swap the status, bump the agent's load,
// and log the decision. A concurrent winner surfaces as
// conversation.ErrAlreadyAssigned.
func (s *RoutingService) execute(
	ctx context.Context,
	entry queueentry.QueueEntry,
	a agent.Agent,
	method conversation.AssignmentMethod,
	confidence float64,
	scores []routinglog.CandidateScore,
	fallbackReason ...string,
) (*AssignmentResult, error) {
	conv, err := s.conversationRepo.GetByID(ctx, entry.ConversationID())
	if err != nil {
		return nil, err
	}
	now := time.Now()
	conv, err = conv.Assign(a.ID(), method, now)
	if err != nil {
		return nil, conversation.ErrAlreadyAssigned
	}
	if _, err := s.conversationRepo.Update(ctx, conv, conversation.StatusQueued); err != nil {
		if errors.Is(err, conversation.ErrStaleStatus) {
			return nil, conversation.ErrAlreadyAssigned
		}
		return nil, err
	}
	if _, err := s.queueRepo.Remove(ctx, entry.ConversationID()); err != nil {
		return nil, err
	}
	if err := s.agentRepo.IncrementLoad(ctx, a.ID()); err != nil {
		return nil, err
	}
	if err := s.agentRepo.TouchAssigned(ctx, a.ID(), now); err != nil {
		return nil, err
	}

	reason := ""
	if len(fallbackReason) > 0 {
		reason = fallbackReason[0]
	}
	agentID := a.ID()
	if err := s.logDecision(ctx, entry, string(method), &agentID, confidence, scores, reason); err != nil {
		return nil, err
	}
	return &AssignmentResult{
		Conversation: conv,
		Agent:        a,
		Method:       method,
		Confidence:   confidence,
	}, nil
}

func (s *RoutingService) logDecision(
	ctx context.Context,
	entry queueentry.QueueEntry,
	method string,
	selected *uuid.UUID,
	confidence float64,
	scores []routinglog.CandidateScore,
	fallbackReason string,
) error {
	opts := []routinglog.Option{routinglog.WithCandidates(scores)}
	if selected != nil {
		opts = append(opts, routinglog.WithSelectedAgent(*selected, confidence))
	}
	if fallbackReason != "" {
		opts = append(opts, routinglog.WithFallbackReason(fallbackReason))
	}
	_, err := s.routingRepo.Append(ctx, routinglog.New(entry.TenantID(), entry.ConversationID(), method, opts...))
	return err
}

// candidates filters the tenant's agents down to those who can take a new
// chat right now: online, accepting, auto-assignable, and under their
// concurrency cap. The overflow slot of overflow agents only opens when
// nobody is under capacity.
func (s *RoutingService) candidates(ctx context.Context, settings chatsettings.Settings, excluded *uuid.UUID) ([]agent.Agent, error) {
	available, err := s.agentRepo.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	pick := func(allowOverflow bool) []agent.Agent {
		out := make([]agent.Agent, 0, len(available))
		for _, a := range available {
			if excluded != nil && a.ID() == *excluded {
				continue
			}
			if !a.AutoAssign() {
				continue
			}
			if !s.canTake(a, settings, allowOverflow) {
				continue
			}
			out = append(out, a)
		}
		return out
	}
	out := pick(false)
	if len(out) == 0 {
		out = pick(true)
	}
	return out, nil
}

// canTake reports whether the agent can host one more chat. allowOverflow
// opens the extra slot overflow agents carry beyond their configured cap.
func (s *RoutingService) canTake(a agent.Agent, settings chatsettings.Settings, allowOverflow bool) bool {
	if a.Status() != agent.StatusOnline || !a.IsAcceptingChats() {
		return false
	}
	limit := a.MaxConcurrentChats()
	if settings.MaxChatsPerAgent() > 0 && settings.MaxChatsPerAgent() < limit {
		limit = settings.MaxChatsPerAgent()
	}
	if allowOverflow && a.AcceptsOverflow() {
		limit++
	}
	return a.ActiveConversations() < limit
}

// scoreCandidates scores every candidate and returns the breakdowns
// ordered best first: total descending, then load ascending, then agent
// id for determinism.
func scoreCandidates(entry queueentry.QueueEntry, candidates []agent.Agent) []routinglog.CandidateScore {
	byID := make(map[uuid.UUID]agent.Agent, len(candidates))
	scores := make([]routinglog.CandidateScore, 0, len(candidates))
	for _, a := range candidates {
		byID[a.ID()] = a
		scores = append(scores, scoreAgent(entry, a))
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].TotalScore != scores[j].TotalScore {
			return scores[i].TotalScore > scores[j].TotalScore
		}
		ai, aj := byID[scores[i].AgentID], byID[scores[j].AgentID]
		if ai.ActiveConversations() != aj.ActiveConversations() {
			return ai.ActiveConversations() < aj.ActiveConversations()
		}
		return scores[i].AgentID.String() < scores[j].AgentID.String()
	})
	return scores
}

func scoreAgent(entry queueentry.QueueEntry, a agent.Agent) routinglog.CandidateScore {
	score := routinglog.CandidateScore{AgentID: a.ID()}

	required := entry.SkillsRequired()
	if len(required) == 0 {
		// No requirements to match against; neutral rather than perfect
		// so load still differentiates.
		score.TagMatchScore = 0.5
	} else {
		var sum float64
		for _, name := range required {
			if tag, ok := a.TagByName(name); ok {
				sum += tagScore(tag)
			}
		}
		score.TagMatchScore = sum / float64(len(required))
	}

	max := a.MaxConcurrentChats()
	if max < 1 {
		max = 1
	}
	score.LoadScore = 1 - float64(a.ActiveConversations())/float64(max)
	if score.LoadScore < 0 {
		score.LoadScore = 0
	}

	if preferred := entry.PreferredAgentID(); preferred != nil && *preferred == a.ID() {
		score.PreferredBonus = preferredBonus
	}

	score.TotalScore = score.TagMatchScore*tagMatchWeight + score.LoadScore*loadWeight + score.PreferredBonus
	return score
}

// tagScore blends how well the agent knows the skill with how they have
// actually performed on it. An unrated satisfaction counts as neutral so
// new agents are not buried under experienced ones.
func tagScore(tag agent.Tag) float64 {
	proficiency := tag.Proficiency
	if proficiency > 1 {
		proficiency = 1
	}
	success := tag.SuccessRate
	if success > 1 {
		success = 1
	}
	satisfaction := 0.5
	if tag.AvgSatisfaction > 0 {
		satisfaction = tag.AvgSatisfaction / 5
	}
	return proficiency*proficiencyWeight + success*successRateWeight + satisfaction*satisfactionWeight
}

// pickRoundRobin returns the candidate who has waited longest since their
// last assignment; never-assigned agents win outright.
func pickRoundRobin(candidates []agent.Agent) agent.Agent {
	picked := candidates[0]
	for _, a := range candidates[1:] {
		if roundRobinBefore(a, picked) {
			picked = a
		}
	}
	return picked
}

func roundRobinBefore(a, b agent.Agent) bool {
	at, bt := a.LastAssignedAt(), b.LastAssignedAt()
	switch {
	case at == nil && bt == nil:
		return a.ID().String() < b.ID().String()
	case at == nil:
		return true
	case bt == nil:
		return false
	case !at.Equal(*bt):
		return at.Before(*bt)
	default:
		return a.ID().String() < b.ID().String()
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
