package evidence

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
	"connector/pkg/models"
)

func remoteSigner(url string) *RemoteSigner {
	return NewRemoteSigner(config.SignerConfig{
		Type:    signerTypeRemote,
		URL:     url,
		Timeout: time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		},
	}, config.CircuitBreakerConfig{}, logger.NopLogger())
}

func TestRemoteSigner_Sign(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req SignRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.EvidenceDelivery, req.Facts.EvidenceType)
		assert.Equal(t, []byte("previous"), req.Predecessor)
		json.NewEncoder(w).Encode(signResponse{Evidence: []byte("signed:" + req.Facts.ConnectorMessageID)})
	}))
	defer server.Close()

	out, err := remoteSigner(server.URL).Sign(context.Background(), SignRequest{
		Facts:       Facts{EvidenceType: models.EvidenceDelivery, ConnectorMessageID: "m-1"},
		Predecessor: []byte("previous"),
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("signed:m-1"), out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRemoteSigner_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown issuer", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := remoteSigner(server.URL).Sign(context.Background(), SignRequest{Facts: Facts{EvidenceType: models.EvidenceDelivery}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown issuer")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRemoteSigner_ThrottlingIsRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(signResponse{Evidence: []byte("signed")})
	}))
	defer server.Close()

	out, err := remoteSigner(server.URL).Sign(context.Background(), SignRequest{Facts: Facts{EvidenceType: models.EvidenceDelivery}})
	require.NoError(t, err)
	assert.Equal(t, []byte("signed"), out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRemoteSigner_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := remoteSigner(server.URL).Sign(context.Background(), SignRequest{})
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDocumentSigner_DetectsTampering(t *testing.T) {
	signed, err := NewDocumentSigner().Sign(context.Background(), SignRequest{
		Facts: Facts{EvidenceType: models.EvidenceSubmissionAcceptance, ConnectorMessageID: "m-1"},
	})
	require.NoError(t, err)

	doc, err := ParseDocument(signed)
	require.NoError(t, err)
	require.NoError(t, doc.Verify(nil))

	doc.Facts.ConnectorMessageID = "m-2"
	assert.Error(t, doc.Verify(nil))
}

func TestNewSigner(t *testing.T) {
	tests := []struct {
		name     string
		kind     string
		wantType interface{}
		wantErr  bool
	}{
		{name: "default", kind: "", wantType: &DocumentSigner{}},
		{name: "document", kind: "document", wantType: &DocumentSigner{}},
		{name: "remote", kind: "remote", wantType: &RemoteSigner{}},
		{name: "unknown", kind: "pkcs11", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := NewSigner(config.EvidenceConfig{Signer: config.SignerConfig{Type: tt.kind, URL: "http://signer"}},
				config.CircuitBreakerConfig{}, logger.NopLogger())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, signer)
		})
	}
}
