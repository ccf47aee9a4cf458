// Package pmode checks messages against the processing modes configured per
// lane.
package pmode

import (
	"context"
	"fmt"

	"connector/internal/config"
	"connector/internal/logger"
	"connector/pkg/cel"
	"connector/pkg/errors"
	"connector/pkg/models"
)

type entry struct {
	service     string
	serviceType string
	action      string
	fromParties map[string]bool
	toParties   map[string]bool
	constraint  *cel.Program
}

func (e entry) matchesExchange(d models.MessageDetails) bool {
	if e.service != d.Service.Name || e.action != d.Action {
		return false
	}
	return e.serviceType == "" || e.serviceType == d.Service.Type
}

func (e entry) permitsParties(d models.MessageDetails) bool {
	if len(e.fromParties) > 0 && !e.fromParties[d.FromParty.ID] {
		return false
	}
	if len(e.toParties) > 0 && !e.toParties[d.ToParty.ID] {
		return false
	}
	return true
}

// Verifier is immutable after construction and safe for concurrent use.
type Verifier struct {
	lanes  map[string][]entry
	logger logger.Logger
}

// NewVerifier compiles every lane's processing modes. A constraint that does
// not compile is a configuration error.
func NewVerifier(lanes []config.LaneConfig, log logger.Logger) (*Verifier, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}

	v := &Verifier{lanes: make(map[string][]entry, len(lanes)), logger: log}
	for _, lane := range lanes {
		entries := make([]entry, 0, len(lane.PModes))
		for i, pm := range lane.PModes {
			e := entry{
				service:     pm.Service,
				serviceType: pm.ServiceType,
				action:      pm.Action,
				fromParties: toSet(pm.FromParties),
				toParties:   toSet(pm.ToParties),
			}
			if pm.Constraint != "" {
				program, err := evaluator.Compile(pm.Constraint)
				if err != nil {
					return nil, errors.ErrConfiguration.
						WithMessage(fmt.Sprintf("lane %s pmode %d: %v", lane.ID, i, err)).
						WithCause(err)
				}
				e.constraint = program
			}
			entries = append(entries, e)
		}
		v.lanes[lane.ID] = entries
	}
	return v, nil
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// Verify returns nil when msg is permitted by one of its lane's processing
// modes, a security validation error when it is not, and a configuration
// error when the lane has no processing modes at all.
func (v *Verifier) Verify(ctx context.Context, msg *models.Message) error {
	entries := v.lanes[msg.LaneID]
	if len(entries) == 0 {
		return errors.ErrConfiguration.
			WithMessage("no processing modes configured for lane").
			WithDetail("lane_id", msg.LaneID)
	}

	d := msg.Details
	exchangeKnown := false
	for _, e := range entries {
		if !e.matchesExchange(d) {
			continue
		}
		exchangeKnown = true
		if !e.permitsParties(d) {
			continue
		}
		if e.constraint == nil {
			return nil
		}
		ok, err := e.constraint.Evaluate(ctx, msg)
		if err != nil {
			return errors.ErrConfiguration.
				WithMessage("processing mode constraint failed").
				WithDetail("constraint", e.constraint.Expression()).
				WithCause(err)
		}
		if ok {
			return nil
		}
	}

	reason := "no processing mode for service and action"
	if exchangeKnown {
		reason = "parties or constraints not permitted"
	}
	v.logger.WarnwCtx(ctx, "Message not permitted by processing mode",
		"lane_id", msg.LaneID,
		"service", d.Service.Name,
		"action", d.Action,
		"from_party", d.FromParty.ID,
		"to_party", d.ToParty.ID,
		"reason", reason,
	)
	return errors.ErrSecurityValidation.
		WithMessage(reason).
		WithDetail("rejection_reason", string(models.RejectionReasonNotPermitted))
}
