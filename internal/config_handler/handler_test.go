package config_handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connector/internal/logger"
	"connector/pkg/models"
)

type countingReloader struct {
	calls int
	err   error
}

func (r *countingReloader) ReloadRules(ctx context.Context, skipJitter ...bool) error {
	r.calls++
	return r.err
}

func eventBytes(t *testing.T, event models.ConfigUpdateEvent) []byte {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return b
}

func TestHandleConfigUpdateEvent(t *testing.T) {
	tests := []struct {
		name      string
		payload   func(t *testing.T) []byte
		reloadErr error
		wantCalls int
		wantErr   bool
	}{
		{
			name: "matching event reloads",
			payload: func(t *testing.T) []byte {
				return eventBytes(t, models.ConfigUpdateEvent{
					EventType:   models.EventTypeRoutingRuleUpdated,
					ServiceType: models.ServiceTypeRouting,
					Action:      models.ActionCreate,
					RuleID:      "r-1",
				})
			},
			wantCalls: 1,
		},
		{
			name: "other service ignored",
			payload: func(t *testing.T) []byte {
				return eventBytes(t, models.ConfigUpdateEvent{
					EventType:   models.EventTypeRoutingRuleUpdated,
					ServiceType: "pmode",
				})
			},
		},
		{
			name: "missing event type ignored",
			payload: func(t *testing.T) []byte {
				return eventBytes(t, models.ConfigUpdateEvent{ServiceType: models.ServiceTypeRouting})
			},
		},
		{
			name:    "malformed payload skipped",
			payload: func(t *testing.T) []byte { return []byte("{not json") },
		},
		{
			name: "reload failure propagates",
			payload: func(t *testing.T) []byte {
				return eventBytes(t, models.ConfigUpdateEvent{
					EventType:   models.EventTypeRoutingRuleUpdated,
					ServiceType: models.ServiceTypeRouting,
					Action:      models.ActionDelete,
				})
			},
			reloadErr: errors.New("db down"),
			wantCalls: 1,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reloader := &countingReloader{err: tt.reloadErr}
			h := NewHandler(models.EventTypeRoutingRuleUpdated, models.ServiceTypeRouting, reloader, logger.NopLogger())

			err := h.HandleConfigUpdateEvent(context.Background(), tt.payload(t))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, reloader.calls)
		})
	}
}
