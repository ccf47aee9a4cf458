package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"connector/internal/config"
	"connector/internal/constants"
	"connector/internal/logger"
	"connector/pkg/circuitbreaker"
	"connector/pkg/retry"
)

type signResponse struct {
	Evidence []byte `json:"evidence"`
}

// RemoteSigner delegates signing to an evidence service over HTTP.
type RemoteSigner struct {
	url    string
	client *http.Client
	policy retry.Policy
	cb     *circuitbreaker.Wrapper
	logger logger.Logger
}

func NewRemoteSigner(cfg config.SignerConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) *RemoteSigner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	return &RemoteSigner{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
		policy: retry.FromConfig(cfg.Retry),
		cb:     circuitbreaker.FromSettings("evidence-signer", cbCfg),
		logger: log,
	}
}

func (s *RemoteSigner) Sign(ctx context.Context, req SignRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sign request: %w", err)
	}

	var evidence []byte
	err = retry.RetryWithCallback(ctx, s.policy, func() error {
		return s.cb.Do(ctx, func() error {
			out, postErr := s.post(ctx, body)
			if postErr != nil {
				return postErr
			}
			evidence = out
			return nil
		})
	}, func(attempt int, err error, next time.Duration) {
		s.logger.WarnwCtx(ctx, "Evidence signer call failed, retrying",
			"attempt", attempt,
			"next_delay", next,
			"evidence_type", req.Facts.EvidenceType,
			"error", err,
		)
	})
	if err != nil {
		return nil, err
	}
	return evidence, nil
}

func (s *RemoteSigner) post(ctx context.Context, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.NewFatalError(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("signer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, retry.NewRetryableError(fmt.Errorf("signer throttled request"))
	}
	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, retry.NewFatalError(fmt.Errorf("signer rejected request: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("signer returned status: %d", resp.StatusCode)
	}

	var out signResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode signer response: %w", err)
	}
	if len(out.Evidence) == 0 {
		return nil, retry.NewFatalError(fmt.Errorf("signer returned empty evidence"))
	}
	return out.Evidence, nil
}
