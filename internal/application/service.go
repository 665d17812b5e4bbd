package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M72-workitem-service/internal/ports"
)

const aggregateTypeWorkItem = "workitem"

// Service is the work-item lifecycle service. Every transition loads the
// aggregate, applies the domain mutation, and persists the new state together
// with its contract-enforced outbox rows in one repository transaction.
// After a successful commit the internal bus notifies in-process subscribers;
// external delivery is the relay's job.
type Service struct {
	cfg          Config
	items        ports.WorkItemRepository
	procs        ports.ProcessInstanceRepository
	publisher    *EventPublisher
	harness      *SelfVerificationHarness
	bus          *EventBus
	agent        ports.AgentExecutor
	agentBreaker *CircuitBreaker
	logger       *slog.Logger
	nowFn        func() time.Time
}

type Dependencies struct {
	Config       Config
	Items        ports.WorkItemRepository
	Procs        ports.ProcessInstanceRepository
	Publisher    *EventPublisher
	Harness      *SelfVerificationHarness
	Bus          *EventBus
	Agent        ports.AgentExecutor
	AgentBreaker *CircuitBreaker
	Logger       *slog.Logger
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:          deps.Config,
		items:        deps.Items,
		procs:        deps.Procs,
		publisher:    deps.Publisher,
		harness:      deps.Harness,
		bus:          deps.Bus,
		agent:        deps.Agent,
		agentBreaker: deps.AgentBreaker,
		logger:       logger,
		nowFn:        func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a TODO work item for a process activity and stages the
// WORKITEM_CREATED event with it.
func (s *Service) Create(ctx context.Context, tenantID string, req CreateWorkItemRequest) (WorkItemView, error) {
	if strings.TrimSpace(tenantID) == "" {
		return WorkItemView{}, domain.ErrTenantRequired
	}

	id := strings.TrimSpace(req.WorkItemID)
	if id == "" {
		id = uuid.NewString()
	}
	now := s.nowFn()
	item, err := domain.NewWorkItem(id, tenantID, req.ActivityName, domain.ActivityType(req.ActivityType), domain.AgentMode(req.AgentMode), now)
	if err != nil {
		return WorkItemView{}, err
	}
	if procInst := strings.TrimSpace(req.ProcInstID); procInst != "" {
		item.ProcInstID = &procInst
	}
	if assignee := strings.TrimSpace(req.AssigneeID); assignee != "" {
		item.AssigneeID = &assignee
	}

	created := domain.Event{
		Type:       domain.EventWorkItemCreated,
		WorkItemID: item.ID,
		TenantID:   tenantID,
		OccurredAt: now,
		Payload: map[string]any{
			"activity_name": item.ActivityName,
			"activity_type": string(item.ActivityType),
			"agent_mode":    string(item.AgentMode),
		},
	}
	rows, err := s.stageEvents(tenantID, []domain.Event{created})
	if err != nil {
		return WorkItemView{}, err
	}
	if err := s.items.CreateWithOutboxTx(ctx, item, rows); err != nil {
		return WorkItemView{}, err
	}
	s.fanOut(ctx, []domain.Event{created})
	return toView(item), nil
}

// Start moves a TODO item to IN_PROGRESS.
func (s *Service) Start(ctx context.Context, tenantID, workItemID string) (WorkItemView, error) {
	item, err := s.items.GetByID(ctx, tenantID, workItemID)
	if err != nil {
		return WorkItemView{}, err
	}
	expected := item.Version
	events, err := item.Start(s.nowFn())
	if err != nil {
		return WorkItemView{}, err
	}
	if err := s.commit(ctx, tenantID, item, expected, events); err != nil {
		return WorkItemView{}, err
	}
	return toView(item), nil
}

// Submit runs self-verification on the result and completes or routes the
// item accordingly.
func (s *Service) Submit(ctx context.Context, tenantID, workItemID string, req SubmitRequest) (TransitionResult, error) {
	item, err := s.items.GetByID(ctx, tenantID, workItemID)
	if err != nil {
		return TransitionResult{}, err
	}

	mode := item.AgentMode
	if override := domain.AgentMode(strings.TrimSpace(req.AgentModeOverride)); override != "" {
		if !domain.ValidAgentMode(override) {
			return TransitionResult{}, fmt.Errorf("%w: unknown agent mode override %q", domain.ErrInvalidInput, override)
		}
		mode = override
	}

	outcome := s.harness.Evaluate(item.ID, req.ResultData, mode)

	expected := item.Version
	events, err := item.Submit(req.ResultData, outcome, s.nowFn())
	if err != nil {
		return TransitionResult{}, err
	}
	if err := s.commit(ctx, tenantID, item, expected, events); err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Item: toView(item), Verification: &outcome}, nil
}

// ApproveHITL resolves a SUBMITTED item after human review.
func (s *Service) ApproveHITL(ctx context.Context, tenantID, workItemID string, req ApproveHITLRequest) (WorkItemView, error) {
	item, err := s.items.GetByID(ctx, tenantID, workItemID)
	if err != nil {
		return WorkItemView{}, err
	}
	expected := item.Version
	events, err := item.ApproveHITL(req.Approved, req.Feedback, s.nowFn())
	if err != nil {
		return WorkItemView{}, err
	}
	if err := s.commit(ctx, tenantID, item, expected, events); err != nil {
		return WorkItemView{}, err
	}
	return toView(item), nil
}

// Rework sends a rejected or submitted item back to TODO, unless the owning
// process instance already completed.
func (s *Service) Rework(ctx context.Context, tenantID, workItemID string, req ReworkRequest) (WorkItemView, error) {
	item, err := s.items.GetByID(ctx, tenantID, workItemID)
	if err != nil {
		return WorkItemView{}, err
	}

	if item.ProcInstID != nil {
		status, err := s.procs.GetStatus(ctx, tenantID, *item.ProcInstID)
		if err != nil {
			return WorkItemView{}, err
		}
		if status == domain.ProcInstStatusCompleted {
			return WorkItemView{}, fmt.Errorf("%w: process instance %s", domain.ErrProcessCompleted, *item.ProcInstID)
		}
	}

	expected := item.Version
	events, err := item.Rework(req.Reason, s.nowFn())
	if err != nil {
		return WorkItemView{}, err
	}
	if err := s.commit(ctx, tenantID, item, expected, events); err != nil {
		return WorkItemView{}, err
	}
	return toView(item), nil
}

// Cancel aborts any non-terminal item.
func (s *Service) Cancel(ctx context.Context, tenantID, workItemID string, req CancelRequest) (WorkItemView, error) {
	item, err := s.items.GetByID(ctx, tenantID, workItemID)
	if err != nil {
		return WorkItemView{}, err
	}
	expected := item.Version
	events, err := item.Cancel(req.Reason, s.nowFn())
	if err != nil {
		return WorkItemView{}, err
	}
	if err := s.commit(ctx, tenantID, item, expected, events); err != nil {
		return WorkItemView{}, err
	}
	return toView(item), nil
}

// ExecuteAgentTask requests agent-driven execution behind the circuit
// breaker and submits the result. SELF_VERIFY items carry the agent's
// confidence into the verification config so low-confidence runs route to
// review.
func (s *Service) ExecuteAgentTask(ctx context.Context, tenantID, workItemID string, input map[string]any) (TransitionResult, error) {
	item, err := s.items.GetByID(ctx, tenantID, workItemID)
	if err != nil {
		return TransitionResult{}, err
	}
	if s.agent == nil {
		return TransitionResult{}, fmt.Errorf("%w: no agent executor configured", domain.ErrAgentUnavailable)
	}
	if s.agentBreaker != nil && !s.agentBreaker.AllowRequest() {
		return TransitionResult{}, fmt.Errorf("%w: circuit open", domain.ErrAgentUnavailable)
	}

	result, err := s.agent.Execute(ctx, ports.AgentTask{
		WorkItemID:   item.ID,
		TenantID:     tenantID,
		ActivityName: item.ActivityName,
		Input:        input,
	})
	if s.agentBreaker != nil {
		if err != nil {
			s.agentBreaker.RecordFailure()
		} else {
			s.agentBreaker.RecordSuccess()
		}
	}
	if err != nil {
		return TransitionResult{}, fmt.Errorf("agent execution: %w", err)
	}

	resultData := map[string]any{
		"output":           result.Output,
		"confidence":       result.Confidence,
		"suggested_status": result.SuggestedStatus,
	}
	if item.AgentMode == domain.AgentModeSelfVerify {
		resultData["self_verification"] = map[string]any{
			"enabled":    true,
			"confidence": result.Confidence,
		}
	}
	return s.Submit(ctx, tenantID, workItemID, SubmitRequest{ResultData: resultData})
}

// Get returns one tenant-scoped work item.
func (s *Service) Get(ctx context.Context, tenantID, workItemID string) (WorkItemView, error) {
	item, err := s.items.GetByID(ctx, tenantID, workItemID)
	if err != nil {
		return WorkItemView{}, err
	}
	return toView(item), nil
}

// ListByProcInst returns every work item of one process instance.
func (s *Service) ListByProcInst(ctx context.Context, tenantID, procInstID string) ([]WorkItemView, error) {
	items, err := s.items.ListByProcInst(ctx, tenantID, procInstID)
	if err != nil {
		return nil, err
	}
	views := make([]WorkItemView, 0, len(items))
	for _, item := range items {
		views = append(views, toView(item))
	}
	return views, nil
}

// List returns a filtered, paged tenant listing with the total count.
func (s *Service) List(ctx context.Context, tenantID string, query ListWorkItemsQuery) (WorkItemList, error) {
	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.items.ListByTenant(ctx, tenantID, ports.WorkItemFilters{
		Status:       query.Status,
		ActivityType: query.ActivityType,
		AssigneeID:   query.AssigneeID,
		ProcInstID:   query.ProcInstID,
	}, limit, offset)
	if err != nil {
		return WorkItemList{}, err
	}
	views := make([]WorkItemView, 0, len(items))
	for _, item := range items {
		views = append(views, toView(item))
	}
	return WorkItemList{Items: views, Total: total}, nil
}

// VerificationMetrics exposes the harness counters.
func (s *Service) VerificationMetrics() map[string]int64 {
	return s.harness.metrics.Snapshot()
}

// PublisherMetrics exposes the staging counters.
func (s *Service) PublisherMetrics() map[string]int64 {
	return s.publisher.metrics.Snapshot()
}

func (s *Service) commit(ctx context.Context, tenantID string, item domain.WorkItem, expectedVersion int64, events []domain.Event) error {
	rows, err := s.stageEvents(tenantID, events)
	if err != nil {
		return err
	}
	if err := s.items.UpdateWithOutboxTx(ctx, item, expectedVersion, rows); err != nil {
		return err
	}
	s.fanOut(ctx, events)
	return nil
}

func (s *Service) stageEvents(tenantID string, events []domain.Event) ([]ports.OutboxEvent, error) {
	rows := make([]ports.OutboxEvent, 0, len(events))
	for _, ev := range events {
		payload := map[string]any{
			"workitem_id": ev.WorkItemID,
			"tenant_id":   ev.TenantID,
			"occurred_at": ev.OccurredAt.UTC().Format(time.RFC3339Nano),
		}
		for k, v := range ev.Payload {
			payload[k] = v
		}
		row, err := s.publisher.Stage(StageParams{
			EventType:       string(ev.Type),
			AggregateType:   aggregateTypeWorkItem,
			AggregateID:     ev.WorkItemID,
			TenantID:        ev.TenantID,
			RequestTenantID: tenantID,
			Payload:         payload,
			OccurredAt:      ev.OccurredAt,
		})
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Service) fanOut(ctx context.Context, events []domain.Event) {
	if s.bus == nil {
		return
	}
	for _, ev := range events {
		payload := map[string]any{
			"workitem_id": ev.WorkItemID,
			"tenant_id":   ev.TenantID,
			"occurred_at": ev.OccurredAt,
		}
		for k, v := range ev.Payload {
			payload[k] = v
		}
		s.bus.Publish(ctx, string(ev.Type), payload)
	}
}
