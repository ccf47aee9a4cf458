package config_handler

import (
	"context"
	"encoding/json"

	"connector/internal/logger"
	"connector/pkg/models"
)

type ConfigReloader interface {
	ReloadRules(ctx context.Context, skipJitter ...bool) error
}

// Handler reloads a rule set when a matching config update event arrives.
type Handler struct {
	expectedEventType   string
	expectedServiceType string
	reloader            ConfigReloader
	logger              logger.Logger
}

func NewHandler(expectedEventType, expectedServiceType string, reloader ConfigReloader, log logger.Logger) *Handler {
	return &Handler{
		expectedEventType:   expectedEventType,
		expectedServiceType: expectedServiceType,
		reloader:            reloader,
		logger:              log,
	}
}

// HandleConfigUpdateEvent is a broker.EventHandlerFunc. Malformed and
// unrelated events are logged and skipped.
func (h *Handler) HandleConfigUpdateEvent(ctx context.Context, payload []byte) error {
	var event models.ConfigUpdateEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.WarnwCtx(ctx, "Skipping malformed config event", "error", err)
		return nil
	}

	if event.EventType == "" || event.ServiceType == "" {
		h.logger.WarnwCtx(ctx, "Config event missing event_type or service_type")
		return nil
	}

	if event.EventType != h.expectedEventType || event.ServiceType != h.expectedServiceType {
		return nil
	}

	h.logger.InfowCtx(ctx, "Received config update event",
		"event_type", event.EventType,
		"action", event.Action,
		"rule_id", event.RuleID,
		"lane_id", event.LaneID,
	)

	if h.reloader == nil {
		return nil
	}

	// every instance receives the event, reload immediately
	if err := h.reloader.ReloadRules(ctx, true); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to reload rules after config update", "error", err)
		return err
	}
	h.logger.InfowCtx(ctx, "Rules reloaded after config update", "action", event.Action)
	return nil
}
