package container

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connector/internal/config"
	"connector/internal/logger"
	pkgerrors "connector/pkg/errors"
	"connector/pkg/models"
)

func message(content *models.MessageContent) *models.Message {
	return models.NewMessageBuilder().
		WithDirection(models.DirectionGatewayToBackend).
		WithLane("epo").
		WithContent(content).
		Build()
}

func TestPassthrough(t *testing.T) {
	tests := []struct {
		name    string
		content *models.MessageContent
		wantErr bool
	}{
		{name: "document", content: &models.MessageContent{Document: []byte("doc")}},
		{name: "container only", content: &models.MessageContent{Container: []byte("asic")}},
		{name: "empty content", content: &models.MessageContent{}, wantErr: true},
		{name: "no content", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := message(tt.content)
			got, err := Passthrough{}.ValidateContainer(context.Background(), msg)
			if tt.wantErr {
				assert.True(t, pkgerrors.IsSecurityValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.content, got)
			assert.NotSame(t, tt.content, got)
		})
	}
}

func httpService(url string) *HTTPService {
	return NewHTTPService(config.ContainerConfig{
		Type:    typeHTTP,
		URL:     url + "/",
		Timeout: time.Second,
		Retry:   config.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
	}, config.CircuitBreakerConfig{}, logger.NopLogger())
}

func TestHTTPService_ValidateContainer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, validatePath, r.URL.Path)
		var req containerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if string(req.Content.Container) == "tampered" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(containerResponse{Error: "signature invalid"})
			return
		}
		json.NewEncoder(w).Encode(containerResponse{Content: &models.MessageContent{
			DocumentName: "form.pdf",
			Document:     []byte("extracted"),
			Container:    req.Content.Container,
		}})
	}))
	defer server.Close()

	svc := httpService(server.URL)
	ctx := context.Background()

	got, err := svc.ValidateContainer(ctx, message(&models.MessageContent{Container: []byte("asic")}))
	require.NoError(t, err)
	assert.Equal(t, []byte("extracted"), got.Document)

	_, err = svc.ValidateContainer(ctx, message(&models.MessageContent{Container: []byte("tampered")}))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsSecurityValidation(err))
	assert.Contains(t, err.Error(), "signature invalid")

	_, err = svc.ValidateContainer(ctx, message(&models.MessageContent{Document: []byte("raw")}))
	assert.True(t, pkgerrors.IsSecurityValidation(err))
}

func TestHTTPService_BuildContainerRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, buildPath, r.URL.Path)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(containerResponse{Content: &models.MessageContent{
			Document:  []byte("doc"),
			Container: []byte("asic"),
		}})
	}))
	defer server.Close()

	got, err := httpService(server.URL).BuildContainer(context.Background(), message(&models.MessageContent{Document: []byte("doc")}))
	require.NoError(t, err)
	assert.Equal(t, []byte("asic"), got.Container)
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewService(t *testing.T) {
	svc, err := NewService(config.ContainerConfig{}, config.CircuitBreakerConfig{}, logger.NopLogger())
	require.NoError(t, err)
	assert.IsType(t, Passthrough{}, svc)

	svc, err = NewService(config.ContainerConfig{Type: "http", URL: "http://asic"}, config.CircuitBreakerConfig{}, logger.NopLogger())
	require.NoError(t, err)
	assert.IsType(t, &HTTPService{}, svc)

	_, err = NewService(config.ContainerConfig{Type: "soap"}, config.CircuitBreakerConfig{}, logger.NopLogger())
	assert.Error(t, err)
}
