package container

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"connector/internal/config"
	"connector/internal/constants"
	"connector/internal/logger"
	"connector/pkg/circuitbreaker"
	"connector/pkg/models"
	"connector/pkg/retry"
)

const (
	buildPath    = "/containers/build"
	validatePath = "/containers/validate"
)

type containerRequest struct {
	ConnectorMessageID string                 `json:"connector_message_id"`
	Details            models.MessageDetails  `json:"details"`
	Content            *models.MessageContent `json:"content"`
	Attachments        []models.Attachment    `json:"attachments,omitempty"`
}

type containerResponse struct {
	Content *models.MessageContent `json:"content"`
	Error   string                 `json:"error,omitempty"`
}

// HTTPService talks to an external container service. Client errors mean the
// container is invalid; everything else is retried.
type HTTPService struct {
	baseURL string
	client  *http.Client
	policy  retry.Policy
	cb      *circuitbreaker.Wrapper
	logger  logger.Logger
}

func NewHTTPService(cfg config.ContainerConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) *HTTPService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	return &HTTPService{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  &http.Client{Timeout: timeout},
		policy:  retry.FromConfig(cfg.Retry),
		cb:      circuitbreaker.FromSettings("container-service", cbCfg),
		logger:  log,
	}
}

func (s *HTTPService) BuildContainer(ctx context.Context, msg *models.Message) (*models.MessageContent, error) {
	return s.call(ctx, buildPath, msg)
}

func (s *HTTPService) ValidateContainer(ctx context.Context, msg *models.Message) (*models.MessageContent, error) {
	if msg.Content == nil || len(msg.Content.Container) == 0 {
		return nil, invalidContainer("message carries no container")
	}
	return s.call(ctx, validatePath, msg)
}

func (s *HTTPService) call(ctx context.Context, path string, msg *models.Message) (*models.MessageContent, error) {
	body, err := json.Marshal(containerRequest{
		ConnectorMessageID: msg.ConnectorMessageID,
		Details:            msg.Details,
		Content:            msg.Content,
		Attachments:        msg.Attachments,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode container request: %w", err)
	}

	var content *models.MessageContent
	err = retry.RetryWithCallback(ctx, s.policy, func() error {
		return s.cb.Do(ctx, func() error {
			out, postErr := s.post(ctx, path, body)
			if postErr != nil {
				return postErr
			}
			content = out
			return nil
		})
	}, func(attempt int, err error, next time.Duration) {
		s.logger.WarnwCtx(ctx, "Container service call failed, retrying",
			"path", path,
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (s *HTTPService) post(ctx context.Context, path string, body []byte) (*models.MessageContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, retry.NewFatalError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("container service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, retry.NewRetryableError(fmt.Errorf("container service throttled request"))
	}
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
		var out containerResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		reason := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &out) == nil && out.Error != "" {
			reason = out.Error
		}
		return nil, invalidContainer(fmt.Sprintf("container rejected: %s", reason))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("container service returned status: %d", resp.StatusCode)
	}

	var out containerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode container response: %w", err)
	}
	if out.Content == nil {
		return nil, retry.NewFatalError(fmt.Errorf("container service returned no content"))
	}
	return out.Content, nil
}
