package management

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "connector/pkg/errors"
	"connector/pkg/models"
)

type memoryRepository struct {
	mu    sync.Mutex
	rules map[string]RoutingRule
	seq   int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{rules: map[string]RoutingRule{}}
}

func (r *memoryRepository) CreateRoutingRule(ctx context.Context, rule *RoutingRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if rule.ID == "" {
		rule.ID = fmt.Sprintf("rule-%d", r.seq)
	}
	if _, ok := r.rules[rule.ID]; ok {
		return pkgerrors.ErrConflict.WithDetail("id", rule.ID)
	}
	rule.CreatedAt = time.Date(2024, 1, 1, 0, 0, r.seq, 0, time.UTC)
	rule.UpdatedAt = rule.CreatedAt
	r.rules[rule.ID] = *rule
	return nil
}

func (r *memoryRepository) ListRoutingRules(ctx context.Context, laneID string) ([]RoutingRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []RoutingRule{}
	for _, rule := range r.rules {
		if laneID == "" || rule.LaneID == laneID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) GetRoutingRule(ctx context.Context, id string) (*RoutingRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return &rule, nil
}

func (r *memoryRepository) UpdateRoutingRule(ctx context.Context, rule *RoutingRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.ID]; !ok {
		return pkgerrors.ErrNotFound.WithDetail("id", rule.ID)
	}
	r.rules[rule.ID] = *rule
	return nil
}

func (r *memoryRepository) DeleteRoutingRule(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	delete(r.rules, id)
	return nil
}

type memoryAudit struct {
	logs []AuditLog
	err  error
}

func (a *memoryAudit) CreateAuditLog(ctx context.Context, log *AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, *log)
	return nil
}

func (a *memoryAudit) GetAuditLogs(ctx context.Context, ruleID *string, ruleType string, limit int) ([]AuditLog, error) {
	out := []AuditLog{}
	for _, l := range a.logs {
		if ruleID != nil && (l.RuleID == nil || *l.RuleID != *ruleID) {
			continue
		}
		out = append(out, l)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type publishedEvent struct {
	topic string
	key   string
	event models.ConfigUpdateEvent
}

type recordingProducer struct {
	events []publishedEvent
	err    error
}

func (p *recordingProducer) Publish(ctx context.Context, topic string, env models.Envelope) error {
	return nil
}

func (p *recordingProducer) PublishEvent(ctx context.Context, topic, key string, event interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{topic: topic, key: key, event: event.(models.ConfigUpdateEvent)})
	return nil
}

func (p *recordingProducer) Close() error {
	return nil
}

type fixture struct {
	repo     *memoryRepository
	audit    *memoryAudit
	producer *recordingProducer
	svc      Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMemoryRepository(),
		audit:    &memoryAudit{},
		producer: &recordingProducer{},
	}
	f.svc = NewService(f.repo,
		WithAudit(f.audit),
		WithConfigEvents(NewConfigEventProducer(f.producer, "config-updates")),
		WithLanes([]string{"epo", "small-claims"}),
	)
	return f
}

func validRequest() CreateRoutingRuleRequest {
	return CreateRoutingRuleRequest{
		LaneID:      "epo",
		LinkName:    "backend-b",
		MatchClause: "&(equals(Action,'Form_A'),equals(ServiceName,'EPO'))",
		Priority:    10,
	}
}

func TestService_CreateRoutingRule(t *testing.T) {
	f := newFixture()
	ctx := context.WithValue(context.Background(), userIDKey, "alice")

	rule, err := f.svc.CreateRoutingRule(ctx, validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, rule.ID)
	assert.True(t, rule.Enabled)

	require.Len(t, f.audit.logs, 1)
	entry := f.audit.logs[0]
	assert.Equal(t, models.ActionCreate, entry.Action)
	assert.Equal(t, ruleTypeRouting, entry.RuleType)
	assert.Equal(t, "alice", entry.ChangedBy)
	assert.Nil(t, entry.OldValue)
	assert.Equal(t, "backend-b", entry.NewValue["link_name"])

	require.Len(t, f.producer.events, 1)
	published := f.producer.events[0]
	assert.Equal(t, "config-updates", published.topic)
	assert.Equal(t, "epo", published.key)
	assert.Equal(t, models.EventTypeRoutingRuleUpdated, published.event.EventType)
	assert.Equal(t, models.ServiceTypeRouting, published.event.ServiceType)
	assert.Equal(t, rule.ID, published.event.RuleID)
	assert.Equal(t, "alice", published.event.ChangedBy)
}

func TestService_CreateRoutingRule_Validation(t *testing.T) {
	disabled := false
	tests := []struct {
		name    string
		mutate  func(r *CreateRoutingRuleRequest)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *CreateRoutingRuleRequest) {}},
		{name: "disabled rule", mutate: func(r *CreateRoutingRuleRequest) { r.Enabled = &disabled }},
		{name: "missing lane", mutate: func(r *CreateRoutingRuleRequest) { r.LaneID = "" }, wantErr: true},
		{name: "unknown lane", mutate: func(r *CreateRoutingRuleRequest) { r.LaneID = "other" }, wantErr: true},
		{name: "invalid link name", mutate: func(r *CreateRoutingRuleRequest) { r.LinkName = "backend b" }, wantErr: true},
		{name: "empty match clause", mutate: func(r *CreateRoutingRuleRequest) { r.MatchClause = "" }, wantErr: true},
		{name: "unparsable match clause", mutate: func(r *CreateRoutingRuleRequest) { r.MatchClause = "equals(Action,'A'" }, wantErr: true},
		{name: "unknown attribute", mutate: func(r *CreateRoutingRuleRequest) { r.MatchClause = "equals(Subject,'A')" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := validRequest()
			tt.mutate(&req)

			rule, err := f.svc.CreateRoutingRule(context.Background(), req)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, pkgerrors.IsValidation(err))
				assert.Empty(t, f.producer.events)
				assert.Empty(t, f.repo.rules)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, req.Enabled == nil || *req.Enabled, rule.Enabled)
		})
	}
}

func TestService_UpdateRoutingRule(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rule, err := f.svc.CreateRoutingRule(ctx, validRequest())
	require.NoError(t, err)

	t.Run("change link", func(t *testing.T) {
		link := "backend-c"
		updated, err := f.svc.UpdateRoutingRule(ctx, rule.ID, UpdateRoutingRuleRequest{LinkName: &link})
		require.NoError(t, err)
		assert.Equal(t, "backend-c", updated.LinkName)
		assert.Equal(t, rule.MatchClause, updated.MatchClause)

		last := f.audit.logs[len(f.audit.logs)-1]
		assert.Equal(t, models.ActionUpdate, last.Action)
		assert.Equal(t, "backend-b", last.OldValue["link_name"])
		assert.Equal(t, "backend-c", last.NewValue["link_name"])
	})

	t.Run("enabled only is a toggle", func(t *testing.T) {
		enabled := false
		updated, err := f.svc.UpdateRoutingRule(ctx, rule.ID, UpdateRoutingRuleRequest{Enabled: &enabled})
		require.NoError(t, err)
		assert.False(t, updated.Enabled)
		assert.Equal(t, models.ActionToggle, f.producer.events[len(f.producer.events)-1].event.Action)
	})

	t.Run("invalid clause", func(t *testing.T) {
		clause := "|("
		_, err := f.svc.UpdateRoutingRule(ctx, rule.ID, UpdateRoutingRuleRequest{MatchClause: &clause})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("unknown rule", func(t *testing.T) {
		priority := 1
		_, err := f.svc.UpdateRoutingRule(ctx, "missing", UpdateRoutingRuleRequest{Priority: &priority})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestService_DeleteRoutingRule(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rule, err := f.svc.CreateRoutingRule(ctx, validRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteRoutingRule(ctx, rule.ID))

	_, err = f.svc.GetRoutingRule(ctx, rule.ID)
	assert.True(t, pkgerrors.IsNotFound(err))

	last := f.producer.events[len(f.producer.events)-1]
	assert.Equal(t, models.ActionDelete, last.event.Action)
	assert.Equal(t, "epo", last.key)

	err = f.svc.DeleteRoutingRule(ctx, rule.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestService_SideEffectFailuresDoNotFailRequests(t *testing.T) {
	f := newFixture()
	f.audit.err = pkgerrors.ErrInternal
	f.producer.err = pkgerrors.ErrServiceUnavailable

	_, err := f.svc.CreateRoutingRule(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Len(t, f.repo.rules, 1)
}

func TestService_ListRoutingRules(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.CreateRoutingRule(ctx, validRequest())
	require.NoError(t, err)
	other := validRequest()
	other.LaneID = "small-claims"
	_, err = f.svc.CreateRoutingRule(ctx, other)
	require.NoError(t, err)

	all, err := f.svc.ListRoutingRules(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	epo, err := f.svc.ListRoutingRules(ctx, "epo")
	require.NoError(t, err)
	require.Len(t, epo, 1)
	assert.Equal(t, "epo", epo[0].LaneID)
}

func TestService_ValidateMatchClause(t *testing.T) {
	svc := NewService(newMemoryRepository())

	ok := svc.ValidateMatchClause(context.Background(), "&( equals(Action;'A') , startswith(FinalRecipient,'AT'))")
	assert.True(t, ok.Valid)
	assert.Empty(t, ok.Error)
	assert.Equal(t, "&(equals(Action;'A'),startswith(FinalRecipient;'AT'))", ok.Normalized)
	assert.Equal(t, []string{"Action", "FinalRecipient"}, ok.Attributes)

	bad := svc.ValidateMatchClause(context.Background(), "equals(Action 'A')")
	assert.False(t, bad.Valid)
	assert.NotEmpty(t, bad.Error)
	assert.Positive(t, bad.Column)
}

func TestService_ReloadRouting(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.svc.ReloadRouting(context.Background(), "epo"))
	require.Len(t, f.producer.events, 1)
	assert.Equal(t, models.ActionReload, f.producer.events[0].event.Action)
	assert.Equal(t, "epo", f.producer.events[0].event.LaneID)

	err := NewService(newMemoryRepository()).ReloadRouting(context.Background(), "epo")
	require.Error(t, err)
}

func TestService_GetAuditLogs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	rule, err := f.svc.CreateRoutingRule(ctx, validRequest())
	require.NoError(t, err)
	_, err = f.svc.CreateRoutingRule(ctx, validRequest())
	require.NoError(t, err)

	logs, err := f.svc.GetAuditLogs(ctx, &rule.ID, ruleTypeRouting, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "system", logs[0].ChangedBy)

	_, err = NewService(newMemoryRepository()).GetAuditLogs(ctx, nil, "", 10)
	require.Error(t, err)
}
