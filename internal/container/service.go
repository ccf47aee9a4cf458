// Package container wraps business documents into signed containers and
// validates containers received from gateways.
package container

import (
	"context"
	"fmt"

	"connector/internal/config"
	"connector/internal/logger"
	"connector/pkg/errors"
	"connector/pkg/models"
)

const (
	typePassthrough = "passthrough"
	typeHTTP        = "http"
)

// Service returns new content; the message passed in is never modified.
type Service interface {
	// BuildContainer assembles the signed container for an outbound message.
	BuildContainer(ctx context.Context, msg *models.Message) (*models.MessageContent, error)
	// ValidateContainer checks an inbound container and extracts the
	// business document from it.
	ValidateContainer(ctx context.Context, msg *models.Message) (*models.MessageContent, error)
}

func NewService(cfg config.ContainerConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) (Service, error) {
	switch cfg.Type {
	case "", typePassthrough:
		return Passthrough{}, nil
	case typeHTTP:
		return NewHTTPService(cfg, cbCfg, log), nil
	default:
		return nil, fmt.Errorf("unknown container type: %s", cfg.Type)
	}
}

func invalidContainer(message string) *errors.Error {
	return errors.ErrSecurityValidation.
		WithMessage(message).
		WithDetail("rejection_reason", string(models.RejectionReasonInvalidContainer))
}

// Passthrough leaves content as is. It only insists that there is a document
// to deliver.
type Passthrough struct{}

func (Passthrough) BuildContainer(ctx context.Context, msg *models.Message) (*models.MessageContent, error) {
	return passthrough(ctx, msg)
}

func (Passthrough) ValidateContainer(ctx context.Context, msg *models.Message) (*models.MessageContent, error) {
	return passthrough(ctx, msg)
}

func passthrough(ctx context.Context, msg *models.Message) (*models.MessageContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.Content == nil || (len(msg.Content.Document) == 0 && len(msg.Content.Container) == 0) {
		return nil, invalidContainer("message has no business document")
	}
	return msg.Clone().Content, nil
}
